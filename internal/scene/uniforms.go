package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/vkngwrapper/frameloop/internal/gpu"
)

// FrameUniforms is the per-slot uniform block read by the mesh, skybox and
// particle shaders. Field order and padding follow std140.
type FrameUniforms struct {
	Proj      mgl32.Mat4
	View      mgl32.Mat4
	Model     mgl32.Mat4
	CameraPos mgl32.Vec3
	NumLights uint32
	Lights    [MaxPointLights]PointLight
	Sun       DirectionalLight
}

// ComputeUniforms drives the path mask dispatch.
type ComputeUniforms struct {
	MousePosition mgl32.Vec3
	IsAdditive    int32
	PathMaskDims  mgl32.Vec2
}

// Brush is where the path mask is painted, in world space.
type Brush struct {
	Position mgl32.Vec3
	Additive bool
	// Dims is the world space area the mask covers.
	Dims mgl32.Vec2
}

func (b Brush) Uniforms() ComputeUniforms {
	u := ComputeUniforms{
		MousePosition: b.Position,
		PathMaskDims:  b.Dims,
	}
	if b.Additive {
		u.IsAdditive = 1
	}
	return u
}

// BuildFrameUniforms assembles the uniform block for one frame drawn at
// extent.
func BuildFrameUniforms(camera *Camera, lights *Lights, extent gpu.Extent) FrameUniforms {
	u := FrameUniforms{
		Proj:      Projection(extent),
		View:      camera.View(),
		Model:     mgl32.Ident4(),
		CameraPos: camera.Position,
		NumLights: uint32(lights.Count),
		Sun:       lights.Directional,
	}
	copy(u.Lights[:lights.Count], lights.Point[:lights.Count])
	return u
}
