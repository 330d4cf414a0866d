package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/frameloop/internal/assets"
	"github.com/vkngwrapper/frameloop/internal/gpu"
	"github.com/vkngwrapper/frameloop/internal/scene"
	"github.com/vkngwrapper/frameloop/internal/sequencer"
)

// materialUniforms matches the std140 MaterialParams block of the mesh
// fragment shader.
type materialUniforms struct {
	BaseColor   mgl32.Vec4
	HasTexture  int32
	AlphaCutoff float32
	AlphaMode   int32
	_           int32
}

// SceneData is everything uploaded once at startup.
type SceneData struct {
	FramesInFlight int
	Mesh           *assets.Mesh
	// Textures and TextureIndices come from assets.LoadMaterialTextures.
	Textures       []*assets.Texture
	TextureIndices []int
	Skybox         [6]*assets.Texture
	Particles      []mgl32.Vec4
	DrawParticles  bool
	MaskSize       int
}

// GPUScene owns the descriptor sets and per-frame uniform buffers of an
// uploaded scene. Buffers and images belong to the Resources it was
// uploaded into.
type GPUScene struct {
	Scene *sequencer.Scene

	descriptors     *Descriptors
	frameUniforms   []*hostBuffer
	computeUniforms *hostBuffer
}

// UploadScene uploads data into resources and builds the descriptor sets
// the sequencer binds. The returned scene has no UniformSource yet.
func UploadScene(ctx *Context, resources *Resources, layouts *Layouts, data SceneData) (s *GPUScene, err error) {
	if data.Mesh == nil {
		return nil, errors.AssertionFailedf("scene without a mesh")
	}

	materials := len(data.Mesh.Materials)
	// One set per frame slot and per material, plus the fallback material,
	// the skybox, the particle draw and both compute sets.
	sets := data.FramesInFlight + materials + 1 + 4
	descriptors, err := NewDescriptors(ctx, DescriptorCounts{
		Sets:           sets,
		Uniforms:       data.FramesInFlight + materials + 1 + 3,
		Samplers:       data.FramesInFlight + materials + 1 + 1,
		StorageImages:  1,
		StorageBuffers: 1,
	})
	if err != nil {
		return nil, err
	}

	s = &GPUScene{
		Scene:       &sequencer.Scene{DrawParticles: data.DrawParticles},
		descriptors: descriptors,
	}
	defer func() {
		if err != nil {
			s.Destroy()
			s = nil
		}
	}()

	clampSampler, err := resources.Sampler(false)
	if err != nil {
		return nil, err
	}
	repeatSampler, err := resources.Sampler(true)
	if err != nil {
		return nil, err
	}

	mask, err := s.uploadMask(resources, layouts, data.MaskSize)
	if err != nil {
		return nil, err
	}

	err = s.uploadFrameSets(resources, layouts, data.FramesInFlight, mask, clampSampler)
	if err != nil {
		return nil, err
	}

	err = s.uploadSkybox(resources, layouts, data.Skybox, clampSampler)
	if err != nil {
		return nil, err
	}

	err = s.uploadMesh(resources, layouts, data, repeatSampler)
	if err != nil {
		return nil, err
	}

	err = s.uploadParticles(resources, layouts, data.Particles)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *GPUScene) uploadMask(resources *Resources, layouts *Layouts, size int) (*texture, error) {
	var err error
	s.computeUniforms, err = resources.MappedBuffer(int(unsafe.Sizeof(scene.ComputeUniforms{})), core1_0.BufferUsageUniformBuffer)
	if err != nil {
		return nil, err
	}

	extent := gpu.Extent{Width: size, Height: size}
	mask, err := resources.StorageImage(extent)
	if err != nil {
		return nil, errors.Wrap(err, "path mask")
	}

	set, err := s.descriptors.Allocate(layouts.MaskCompute,
		Write{View: mask.view, Layout: core1_0.ImageLayoutGeneral, Storage: true},
		s.computeUniformsWrite())
	if err != nil {
		return nil, err
	}

	s.Scene.Mask = sequencer.Mask{Image: mask.image, Extent: extent, Set: set}
	return mask, nil
}

func (s *GPUScene) computeUniformsWrite() Write {
	return Write{Buffer: s.computeUniforms.buffer, Size: len(s.computeUniforms.bytes)}
}

func (s *GPUScene) uploadFrameSets(resources *Resources, layouts *Layouts, n int, mask *texture, sampler core1_0.Sampler) error {
	size := int(unsafe.Sizeof(scene.FrameUniforms{}))
	for i := 0; i < n; i++ {
		uniforms, err := resources.MappedBuffer(size, core1_0.BufferUsageUniformBuffer)
		if err != nil {
			return err
		}
		s.frameUniforms = append(s.frameUniforms, uniforms)

		set, err := s.descriptors.Allocate(layouts.Frame,
			Write{Buffer: uniforms.buffer, Size: size},
			Write{View: mask.view, Sampler: sampler, Layout: core1_0.ImageLayoutShaderReadOnlyOptimal})
		if err != nil {
			return err
		}
		s.Scene.FrameSets = append(s.Scene.FrameSets, set)
	}
	return nil
}

func (s *GPUScene) uploadSkybox(resources *Resources, layouts *Layouts, faces [6]*assets.Texture, sampler core1_0.Sampler) error {
	vertices := scene.SkyboxVertices()
	data, err := encode(vertices)
	if err != nil {
		return err
	}
	buffer, err := resources.DeviceBuffer(data, core1_0.BufferUsageVertexBuffer)
	if err != nil {
		return errors.Wrap(err, "skybox vertices")
	}

	cube, err := resources.Cube(faces)
	if err != nil {
		return errors.Wrap(err, "skybox")
	}

	set, err := s.descriptors.Allocate(layouts.Skybox,
		Write{View: cube.view, Sampler: sampler, Layout: core1_0.ImageLayoutShaderReadOnlyOptimal})
	if err != nil {
		return err
	}

	s.Scene.Skybox = sequencer.Skybox{Vertices: buffer, VertexCount: len(vertices), Set: set}
	return nil
}

func (s *GPUScene) uploadMesh(resources *Resources, layouts *Layouts, data SceneData, sampler core1_0.Sampler) error {
	mesh := data.Mesh
	if len(mesh.Vertices) == 0 || len(mesh.Indices) == 0 {
		return errors.Newf("mesh has %d vertices and %d indices", len(mesh.Vertices), len(mesh.Indices))
	}

	vertexData, err := encode(mesh.Vertices)
	if err != nil {
		return err
	}
	vertices, err := resources.DeviceBuffer(vertexData, core1_0.BufferUsageVertexBuffer)
	if err != nil {
		return errors.Wrap(err, "mesh vertices")
	}

	indexData, err := encode(mesh.Indices)
	if err != nil {
		return err
	}
	indices, err := resources.DeviceBuffer(indexData, core1_0.BufferUsageIndexBuffer)
	if err != nil {
		return errors.Wrap(err, "mesh indices")
	}

	s.Scene.Mesh = sequencer.Mesh{
		Vertices:   vertices,
		Indices:    indices,
		IndexCount: len(mesh.Indices),
		Primitives: mesh.Primitives,
	}

	views := make([]core1_0.ImageView, len(data.Textures))
	for i, tex := range data.Textures {
		uploaded, err := resources.Texture(tex)
		if err != nil {
			return errors.Wrapf(err, "texture %d", i)
		}
		views[i] = uploaded.view
	}
	white, err := resources.Texture(assets.WhiteTexture())
	if err != nil {
		return err
	}

	for i, material := range mesh.Materials {
		view := white.view
		if i < len(data.TextureIndices) && data.TextureIndices[i] >= 0 {
			view = views[data.TextureIndices[i]]
		}
		binding, err := s.material(resources, layouts, material, view, view != white.view, sampler)
		if err != nil {
			return errors.Wrapf(err, "material %s", material.Name)
		}
		s.Scene.Materials = append(s.Scene.Materials, binding)
	}

	s.Scene.Fallback, err = s.material(resources, layouts, assets.Material{
		Name:        "fallback",
		BaseColor:   mgl32.Vec4{1, 1, 1, 1},
		AlphaCutoff: 0.5,
	}, white.view, false, sampler)
	return err
}

func (s *GPUScene) material(resources *Resources, layouts *Layouts, material assets.Material, view core1_0.ImageView, textured bool, sampler core1_0.Sampler) (sequencer.MaterialBinding, error) {
	params := materialUniforms{
		BaseColor:   material.BaseColor,
		AlphaCutoff: material.AlphaCutoff,
		AlphaMode:   int32(material.AlphaMode),
	}
	if textured {
		params.HasTexture = 1
	}

	data, err := encode(&params)
	if err != nil {
		return sequencer.MaterialBinding{}, err
	}
	buffer, err := resources.DeviceBuffer(data, core1_0.BufferUsageUniformBuffer)
	if err != nil {
		return sequencer.MaterialBinding{}, err
	}

	set, err := s.descriptors.Allocate(layouts.Material,
		Write{Buffer: buffer, Size: len(data)},
		Write{View: view, Sampler: sampler, Layout: core1_0.ImageLayoutShaderReadOnlyOptimal})
	if err != nil {
		return sequencer.MaterialBinding{}, err
	}

	return sequencer.MaterialBinding{Kind: material.PipelineKind(), Set: set}, nil
}

func (s *GPUScene) uploadParticles(resources *Resources, layouts *Layouts, particles []mgl32.Vec4) error {
	// Zero particles still get a one-element buffer so every set is valid.
	seed := particles
	if len(seed) == 0 {
		seed = []mgl32.Vec4{{}}
	}

	data, err := encode(seed)
	if err != nil {
		return err
	}
	buffer, err := resources.DeviceBuffer(data, core1_0.BufferUsageVertexBuffer|core1_0.BufferUsageStorageBuffer)
	if err != nil {
		return errors.Wrap(err, "particles")
	}

	computeSet, err := s.descriptors.Allocate(layouts.ParticleStep,
		Write{Buffer: buffer, Size: len(data), Storage: true},
		s.computeUniformsWrite())
	if err != nil {
		return err
	}

	drawSet, err := s.descriptors.Allocate(layouts.Particle, s.computeUniformsWrite())
	if err != nil {
		return err
	}

	s.Scene.Particles = sequencer.Particles{
		Buffer:     buffer,
		Count:      len(particles),
		ComputeSet: computeSet,
		DrawSet:    drawSet,
	}
	return nil
}

// WriteFrameUniforms copies u into the uniform buffer of frame slot.
func (s *GPUScene) WriteFrameUniforms(slot int, u *scene.FrameUniforms) error {
	if slot < 0 || slot >= len(s.frameUniforms) {
		return errors.AssertionFailedf("no uniform buffer for slot %d", slot)
	}
	data, err := encode(u)
	if err != nil {
		return err
	}
	copy(s.frameUniforms[slot].bytes, data)
	return nil
}

// WriteComputeUniforms copies u into the brush uniform buffer. Only called
// while no compute work is in flight.
func (s *GPUScene) WriteComputeUniforms(u scene.ComputeUniforms) error {
	data, err := encode(&u)
	if err != nil {
		return err
	}
	copy(s.computeUniforms.bytes, data)
	return nil
}

// Destroy frees the descriptor pool. Buffers are released with Resources.
func (s *GPUScene) Destroy() {
	if s.descriptors != nil {
		s.descriptors.Destroy()
		s.descriptors = nil
	}
}
