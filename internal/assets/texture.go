package assets

import (
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// Texture is tightly packed 8-bit RGBA pixel data.
type Texture struct {
	Width  int
	Height int
	Pixels []byte
}

// CubeFaces are the skybox face file names in cube map layer order.
var CubeFaces = [6]string{"xpos.png", "xneg.png", "ypos.png", "yneg.png", "zpos.png", "zneg.png"}

// WhiteTexture is the 1x1 texture bound for materials without one.
func WhiteTexture() *Texture {
	return &Texture{Width: 1, Height: 1, Pixels: []byte{255, 255, 255, 255}}
}

func LoadPNG(path string) (*Texture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoded, err := png.Decode(file)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}

	bounds := decoded.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), decoded, bounds.Min, draw.Src)

	return &Texture{Width: bounds.Dx(), Height: bounds.Dy(), Pixels: rgba.Pix}, nil
}

// LoadCube loads the six skybox faces from dir. All faces must be square and
// of the same size.
func LoadCube(dir string) ([6]*Texture, error) {
	var faces [6]*Texture
	for i, name := range CubeFaces {
		face, err := LoadPNG(filepath.Join(dir, name))
		if err != nil {
			return faces, err
		}
		if face.Width != face.Height {
			return faces, errors.Newf("skybox face %s is %dx%d, not square", name, face.Width, face.Height)
		}
		if i > 0 && face.Width != faces[0].Width {
			return faces, errors.Newf("skybox face %s is %d pixels wide, %s is %d", name, face.Width, CubeFaces[0], faces[0].Width)
		}
		faces[i] = face
	}

	return faces, nil
}

// LoadMaterialTextures loads every distinct material texture. Materials
// without a texture map to index -1; the rest index into the returned slice.
func LoadMaterialTextures(materials []Material) ([]*Texture, []int, error) {
	var textures []*Texture
	indices := make([]int, len(materials))
	loaded := make(map[string]int)

	for i, material := range materials {
		if material.Texture == "" {
			indices[i] = -1
			continue
		}
		if index, ok := loaded[material.Texture]; ok {
			indices[i] = index
			continue
		}

		texture, err := LoadPNG(material.Texture)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "material %s", material.Name)
		}
		loaded[material.Texture] = len(textures)
		indices[i] = len(textures)
		textures = append(textures, texture)
	}

	return textures, indices, nil
}
