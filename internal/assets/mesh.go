// Package assets loads meshes, materials and textures from disk into flat
// CPU-side arrays ready for upload.
package assets

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/vkngwrapper/frameloop/internal/gpu"
)

type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	TexCoord mgl32.Vec2
	Color    mgl32.Vec4
}

type AlphaMode int

const (
	AlphaOpaque AlphaMode = iota
	AlphaMask
	AlphaBlend
)

// Material holds the per-material factors consumed by the mesh shaders.
type Material struct {
	Name        string
	BaseColor   mgl32.Vec4
	Texture     string
	AlphaCutoff float32
	AlphaMode   AlphaMode
	DoubleSided bool
}

// PipelineKind is the mesh pipeline variant that draws the material.
func (m Material) PipelineKind() gpu.PipelineKind {
	return gpu.MeshPipeline(m.DoubleSided, m.AlphaMode == AlphaBlend)
}

// Primitive is a contiguous index range drawn with one material. Material
// may be outside the material list; the renderer draws such ranges with a
// fallback.
type Primitive struct {
	FirstIndex int
	IndexCount int
	Material   int
}

type Mesh struct {
	Vertices   []Vertex
	Indices    []uint32
	Materials  []Material
	Primitives []Primitive
}

// NoMaterial marks faces that reference no material, or one the material
// library does not define.
const NoMaterial = -1

const defaultAlphaCutoff = 0.5

type vertexKey struct {
	position, uv, normal, material int
}

// LoadOBJ decodes a Wavefront mesh and its material library. Polygons are fan
// triangulated and consecutive faces sharing a material become one
// primitive. Texture paths are left relative to the material library.
func LoadOBJ(objReader, mtlReader io.Reader) (*Mesh, error) {
	decoder, err := obj.DecodeReader(objReader, mtlReader)
	if err != nil {
		return nil, errors.Wrap(err, "decode obj")
	}

	mesh := &Mesh{}
	materialIndex := mesh.loadMaterials(decoder)

	unique := make(map[vertexKey]uint32)
	primitive := Primitive{Material: NoMaterial}

	for _, object := range decoder.Objects {
		for _, face := range object.Faces {
			material, ok := materialIndex[face.Material]
			if !ok {
				material = NoMaterial
			}

			if material != primitive.Material && primitive.IndexCount > 0 {
				mesh.Primitives = append(mesh.Primitives, primitive)
				primitive = Primitive{FirstIndex: len(mesh.Indices)}
			}
			primitive.Material = material

			for i := 2; i < len(face.Vertices); i++ {
				for _, corner := range []int{0, i - 1, i} {
					mesh.addVertex(decoder, unique, face, corner, material)
				}
				primitive.IndexCount += 3
			}
		}
	}

	if primitive.IndexCount > 0 {
		mesh.Primitives = append(mesh.Primitives, primitive)
	}

	return mesh, nil
}

// LoadOBJFile loads name.obj and name.mtl from dir. Texture paths of the
// returned materials are joined with dir.
func LoadOBJFile(dir, name string) (*Mesh, error) {
	meshFile, err := os.Open(filepath.Join(dir, name+".obj"))
	if err != nil {
		return nil, err
	}
	defer meshFile.Close()

	matFile, err := os.Open(filepath.Join(dir, name+".mtl"))
	if err != nil {
		return nil, err
	}
	defer matFile.Close()

	mesh, err := LoadOBJ(meshFile, matFile)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", name)
	}

	for i := range mesh.Materials {
		if mesh.Materials[i].Texture != "" {
			mesh.Materials[i].Texture = filepath.Join(dir, mesh.Materials[i].Texture)
		}
	}

	return mesh, nil
}

// loadMaterials converts the decoded library in name order so indices are
// stable between runs.
func (m *Mesh) loadMaterials(decoder *obj.Decoder) map[string]int {
	names := make([]string, 0, len(decoder.Materials))
	for name := range decoder.Materials {
		names = append(names, name)
	}
	sort.Strings(names)

	index := make(map[string]int, len(names))
	for _, name := range names {
		src := decoder.Materials[name]
		material := Material{
			Name:        name,
			BaseColor:   mgl32.Vec4{src.Diffuse.R, src.Diffuse.G, src.Diffuse.B, src.Opacity},
			Texture:     src.MapKd,
			AlphaCutoff: defaultAlphaCutoff,
		}
		// Transparent surfaces are seen from both sides.
		if src.Opacity < 1 {
			material.AlphaMode = AlphaBlend
			material.DoubleSided = true
		}

		index[name] = len(m.Materials)
		m.Materials = append(m.Materials, material)
	}

	return index
}

func (m *Mesh) addVertex(decoder *obj.Decoder, unique map[vertexKey]uint32, face obj.Face, corner, material int) {
	key := vertexKey{position: face.Vertices[corner], uv: -1, normal: -1, material: material}
	if corner < len(face.Uvs) {
		key.uv = face.Uvs[corner]
	}
	if corner < len(face.Normals) {
		key.normal = face.Normals[corner]
	}

	if index, ok := unique[key]; ok {
		m.Indices = append(m.Indices, index)
		return
	}

	vert := Vertex{
		Position: mgl32.Vec3{
			decoder.Vertices[key.position*3],
			decoder.Vertices[key.position*3+1],
			decoder.Vertices[key.position*3+2],
		},
		Color: mgl32.Vec4{1, 1, 1, 1},
	}
	if key.uv >= 0 && key.uv*2+1 < len(decoder.Uvs) {
		vert.TexCoord = mgl32.Vec2{
			decoder.Uvs[key.uv*2],
			1.0 - decoder.Uvs[key.uv*2+1],
		}
	}
	if key.normal >= 0 && key.normal*3+2 < len(decoder.Normals) {
		vert.Normal = mgl32.Vec3{
			decoder.Normals[key.normal*3],
			decoder.Normals[key.normal*3+1],
			decoder.Normals[key.normal*3+2],
		}
	}
	if material >= 0 {
		vert.Color = m.Materials[material].BaseColor
	}

	index := uint32(len(m.Vertices))
	m.Vertices = append(m.Vertices, vert)
	unique[key] = index
	m.Indices = append(m.Indices, index)
}
