package assets

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vkngwrapper/frameloop/internal/gpu"
)

const quadsOBJ = `mtllib scene.mtl
o ground
v 0 0 0
v 1 0 0
v 1 0 1
v 0 0 1
v 0 1 0
v 1 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 1 0
usemtl stone
f 1/1/1 2/2/1 3/3/1 4/4/1
usemtl glass
f 1/1/1 2/2/1 6/3/1 5/4/1
`

const sceneMTL = `newmtl stone
Kd 0.5 0.5 0.5
d 1.0
map_Kd stone.png

newmtl glass
Kd 0.2 0.4 0.8
d 0.25
`

func TestLoadOBJGroupsPrimitivesByMaterial(t *testing.T) {
	mesh, err := LoadOBJ(strings.NewReader(quadsOBJ), strings.NewReader(sceneMTL))
	if err != nil {
		t.Fatalf("LoadOBJ: %+v", err)
	}

	if len(mesh.Materials) != 2 {
		t.Fatalf("materials = %d, want 2", len(mesh.Materials))
	}
	// Sorted by name.
	glass, stone := mesh.Materials[0], mesh.Materials[1]
	if glass.Name != "glass" || stone.Name != "stone" {
		t.Fatalf("material order = %s, %s", glass.Name, stone.Name)
	}
	if stone.Texture != "stone.png" || stone.PipelineKind() != gpu.PipelineOpaque {
		t.Errorf("stone = %+v", stone)
	}
	if glass.AlphaMode != AlphaBlend || glass.PipelineKind() != gpu.PipelineBlendDoubleSided {
		t.Errorf("glass = %+v", glass)
	}

	want := []Primitive{
		{FirstIndex: 0, IndexCount: 6, Material: 1},
		{FirstIndex: 6, IndexCount: 6, Material: 0},
	}
	if len(mesh.Primitives) != len(want) {
		t.Fatalf("primitives = %+v, want %+v", mesh.Primitives, want)
	}
	for i := range want {
		if mesh.Primitives[i] != want[i] {
			t.Errorf("primitive %d = %+v, want %+v", i, mesh.Primitives[i], want[i])
		}
	}
	if len(mesh.Indices) != 12 {
		t.Fatalf("indices = %d, want 12", len(mesh.Indices))
	}
}

func TestLoadOBJDeduplicatesAndFlipsV(t *testing.T) {
	mesh, err := LoadOBJ(strings.NewReader(quadsOBJ), strings.NewReader(sceneMTL))
	if err != nil {
		t.Fatalf("LoadOBJ: %+v", err)
	}

	// The first quad shares corners 0 and 2 between its two triangles.
	first := mesh.Indices[:6]
	if first[0] != first[3] || first[2] != first[4] {
		t.Errorf("fan triangulation did not reuse vertices: %v", first)
	}

	v := mesh.Vertices[first[2]]
	if v.TexCoord != [2]float32{1, 0} {
		t.Errorf("texcoord = %v, want V flipped to (1, 0)", v.TexCoord)
	}
	if v.Normal != [3]float32{0, 1, 0} {
		t.Errorf("normal = %v", v.Normal)
	}
	if v.Color != mesh.Materials[1].BaseColor {
		t.Errorf("vertex color = %v, want stone base color", v.Color)
	}
}

func writePNG(t *testing.T, path string, w, h int, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	if err := png.Encode(file, img); err != nil {
		t.Fatal(err)
	}
}

func TestLoadPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "red.png")
	writePNG(t, path, 3, 2, color.RGBA{R: 255, A: 255})

	tex, err := LoadPNG(path)
	if err != nil {
		t.Fatalf("LoadPNG: %+v", err)
	}
	if tex.Width != 3 || tex.Height != 2 || len(tex.Pixels) != 3*2*4 {
		t.Fatalf("texture = %dx%d with %d bytes", tex.Width, tex.Height, len(tex.Pixels))
	}
	last := tex.Pixels[len(tex.Pixels)-4:]
	if last[0] != 255 || last[1] != 0 || last[2] != 0 || last[3] != 255 {
		t.Errorf("last pixel = %v", last)
	}
}

func TestLoadCube(t *testing.T) {
	dir := t.TempDir()
	for _, name := range CubeFaces {
		writePNG(t, filepath.Join(dir, name), 4, 4, color.RGBA{B: 255, A: 255})
	}

	faces, err := LoadCube(dir)
	if err != nil {
		t.Fatalf("LoadCube: %+v", err)
	}
	for i, face := range faces {
		if face == nil || face.Width != 4 {
			t.Fatalf("face %d = %+v", i, face)
		}
	}

	writePNG(t, filepath.Join(dir, CubeFaces[3]), 8, 8, color.RGBA{A: 255})
	if _, err := LoadCube(dir); err == nil {
		t.Fatal("mismatched face sizes accepted")
	}
}

func TestLoadMaterialTexturesShares(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wood.png")
	writePNG(t, path, 1, 1, color.RGBA{G: 255, A: 255})

	materials := []Material{{Name: "a", Texture: path}, {Name: "b"}, {Name: "c", Texture: path}}
	textures, indices, err := LoadMaterialTextures(materials)
	if err != nil {
		t.Fatalf("LoadMaterialTextures: %+v", err)
	}
	if len(textures) != 1 {
		t.Fatalf("loaded %d textures, want 1", len(textures))
	}
	if indices[0] != 0 || indices[1] != -1 || indices[2] != 0 {
		t.Fatalf("indices = %v", indices)
	}
}
