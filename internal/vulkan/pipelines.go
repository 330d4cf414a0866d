package vulkan

import (
	"os"
	"path/filepath"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/core1_0"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/frameloop/internal/assets"
	"github.com/vkngwrapper/frameloop/internal/gpu"
	swapchainmgr "github.com/vkngwrapper/frameloop/internal/swapchain"
)

// pipeline is the gpu.Pipeline handle: the pipeline with the layout and bind
// point its descriptor sets are bound through.
type pipeline struct {
	handle    core1_0.Pipeline
	layout    core1_0.PipelineLayout
	bindPoint core1_0.PipelineBindPoint
}

var shaderFiles = []string{
	"mesh.vert.spv", "mesh.frag.spv",
	"skybox.vert.spv", "skybox.frag.spv",
	"particle.vert.spv", "particle.frag.spv",
	"mask.comp.spv", "particle.comp.spv",
}

// Pipelines builds every pipeline variant. Graphics pipelines bake in the
// swapchain extent and render pass, so they are rebuilt for each
// generation; compute pipelines live as long as Pipelines does.
type Pipelines struct {
	ctx    *Context
	logger *slog.Logger

	code map[string][]uint32

	meshLayout     core1_0.PipelineLayout
	skyboxLayout   core1_0.PipelineLayout
	particleLayout core1_0.PipelineLayout
	maskLayout     core1_0.PipelineLayout
	stepLayout     core1_0.PipelineLayout

	graphics map[gpu.PipelineKind]*pipeline
	compute  map[gpu.PipelineKind]*pipeline
}

// NewPipelines loads the SPIR-V in shaderDir and creates the compute
// pipelines. Graphics pipelines are created by BuildGeneration.
func NewPipelines(ctx *Context, layouts *Layouts, shaderDir string, logger *slog.Logger) (p *Pipelines, err error) {
	p = &Pipelines{
		ctx:      ctx,
		logger:   logger,
		code:     make(map[string][]uint32),
		graphics: make(map[gpu.PipelineKind]*pipeline),
		compute:  make(map[gpu.PipelineKind]*pipeline),
	}
	defer func() {
		if err != nil {
			p.Destroy()
			p = nil
		}
	}()

	for _, name := range shaderFiles {
		b, err := os.ReadFile(filepath.Join(shaderDir, name))
		if err != nil {
			return nil, errors.WithHint(
				errors.Mark(errors.Wrapf(err, "load shader %s", name), gpu.ErrConfiguration),
				"compile the shaders with go generate ./shaders")
		}
		if len(b)%4 != 0 {
			return nil, gpu.Configurationf("shader %s is %d bytes, not SPIR-V", name, len(b))
		}
		p.code[name] = bytesToBytecode(b)
	}

	p.meshLayout, err = ctx.createPipelineLayout(layouts.Frame, layouts.Material)
	if err != nil {
		return nil, err
	}
	p.skyboxLayout, err = ctx.createPipelineLayout(layouts.Frame, layouts.Skybox)
	if err != nil {
		return nil, err
	}
	p.particleLayout, err = ctx.createPipelineLayout(layouts.Frame, layouts.Particle)
	if err != nil {
		return nil, err
	}
	p.maskLayout, err = ctx.createPipelineLayout(layouts.MaskCompute)
	if err != nil {
		return nil, err
	}
	p.stepLayout, err = ctx.createPipelineLayout(layouts.ParticleStep)
	if err != nil {
		return nil, err
	}

	p.compute[gpu.PipelineMaskCompute], err = p.createCompute("mask.comp.spv", p.maskLayout)
	if err != nil {
		return nil, err
	}
	p.compute[gpu.PipelineParticleCompute], err = p.createCompute("particle.comp.spv", p.stepLayout)
	if err != nil {
		return nil, err
	}

	return p, nil
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}

func (c *Context) createPipelineLayout(setLayouts ...core1_0.DescriptorSetLayout) (core1_0.PipelineLayout, error) {
	layout, res, err := c.device.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: setLayouts,
	})
	if err != nil {
		return nil, check("create pipeline layout", res, err)
	}
	return layout, nil
}

func (p *Pipelines) shaderModule(name string) (core1_0.ShaderModule, error) {
	module, res, err := p.ctx.device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: p.code[name],
	})
	if err != nil {
		return nil, check("create shader module "+name, res, err)
	}
	return module, nil
}

func (p *Pipelines) createCompute(name string, layout core1_0.PipelineLayout) (*pipeline, error) {
	module, err := p.shaderModule(name)
	if err != nil {
		return nil, err
	}
	defer module.Destroy(nil)

	pipelines, res, err := p.ctx.device.CreateComputePipelines(nil, nil, []core1_0.ComputePipelineCreateInfo{
		{
			Stage: core1_0.PipelineShaderStageCreateInfo{
				Stage:  core1_0.StageCompute,
				Module: module,
				Name:   "main",
			},
			Layout:            layout,
			BasePipelineIndex: -1,
		},
	})
	if err != nil {
		return nil, check("create compute pipeline", res, err)
	}

	return &pipeline{handle: pipelines[0], layout: layout, bindPoint: core1_0.PipelineBindPointCompute}, nil
}

// Pipeline returns the variant for kind. Graphics variants are only valid
// between BuildGeneration and ReleaseGeneration.
func (p *Pipelines) Pipeline(kind gpu.PipelineKind) gpu.Pipeline {
	if pl, ok := p.compute[kind]; ok {
		return pl
	}
	return p.graphics[kind]
}

// graphicsVariant describes how one graphics pipeline differs from the
// opaque mesh pipeline.
type graphicsVariant struct {
	vert, frag string
	layout     core1_0.PipelineLayout
	input      *core1_0.PipelineVertexInputStateCreateInfo
	topology   core1_0.PrimitiveTopology

	cullMode   core1_0.CullModeFlags
	depthWrite bool
	depthOp    core1_0.CompareOp
	blend      bool
	additive   bool
}

func (p *Pipelines) variants() map[gpu.PipelineKind]graphicsVariant {
	mesh := graphicsVariant{
		vert:       "mesh.vert.spv",
		frag:       "mesh.frag.spv",
		layout:     p.meshLayout,
		input:      meshVertexInput(),
		topology:   core1_0.PrimitiveTopologyTriangleList,
		cullMode:   core1_0.CullModeBack,
		depthWrite: true,
		depthOp:    core1_0.CompareOpLess,
	}

	doubleSided := mesh
	doubleSided.cullMode = core1_0.CullModeFlags(0)

	blend := mesh
	blend.blend = true
	blend.depthWrite = false

	blendDoubleSided := blend
	blendDoubleSided.cullMode = core1_0.CullModeFlags(0)

	return map[gpu.PipelineKind]graphicsVariant{
		gpu.PipelineOpaque:           mesh,
		gpu.PipelineDoubleSided:      doubleSided,
		gpu.PipelineBlend:            blend,
		gpu.PipelineBlendDoubleSided: blendDoubleSided,
		gpu.PipelineSkybox: {
			vert:     "skybox.vert.spv",
			frag:     "skybox.frag.spv",
			layout:   p.skyboxLayout,
			input:    singleAttributeInput(int(unsafe.Sizeof(mgl32.Vec3{})), core1_0.FormatR32G32B32SignedFloat),
			topology: core1_0.PrimitiveTopologyTriangleList,
			cullMode: core1_0.CullModeFlags(0),
			depthOp:  core1_0.CompareOpLessOrEqual,
		},
		gpu.PipelineParticles: {
			vert:     "particle.vert.spv",
			frag:     "particle.frag.spv",
			layout:   p.particleLayout,
			input:    singleAttributeInput(int(unsafe.Sizeof(mgl32.Vec4{})), core1_0.FormatR32G32B32A32SignedFloat),
			topology: core1_0.PrimitiveTopologyPointList,
			cullMode: core1_0.CullModeFlags(0),
			depthOp:  core1_0.CompareOpLess,
			blend:    true,
			additive: true,
		},
	}
}

func meshVertexInput() *core1_0.PipelineVertexInputStateCreateInfo {
	v := assets.Vertex{}
	return &core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions: []core1_0.VertexInputBindingDescription{
			{
				Binding:   0,
				Stride:    int(unsafe.Sizeof(v)),
				InputRate: core1_0.VertexInputRateVertex,
			},
		},
		VertexAttributeDescriptions: []core1_0.VertexInputAttributeDescription{
			{
				Binding:  0,
				Location: 0,
				Format:   core1_0.FormatR32G32B32SignedFloat,
				Offset:   int(unsafe.Offsetof(v.Position)),
			},
			{
				Binding:  0,
				Location: 1,
				Format:   core1_0.FormatR32G32B32SignedFloat,
				Offset:   int(unsafe.Offsetof(v.Normal)),
			},
			{
				Binding:  0,
				Location: 2,
				Format:   core1_0.FormatR32G32SignedFloat,
				Offset:   int(unsafe.Offsetof(v.TexCoord)),
			},
			{
				Binding:  0,
				Location: 3,
				Format:   core1_0.FormatR32G32B32A32SignedFloat,
				Offset:   int(unsafe.Offsetof(v.Color)),
			},
		},
	}
}

func singleAttributeInput(stride int, format core1_0.Format) *core1_0.PipelineVertexInputStateCreateInfo {
	return &core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions: []core1_0.VertexInputBindingDescription{
			{
				Binding:   0,
				Stride:    stride,
				InputRate: core1_0.VertexInputRateVertex,
			},
		},
		VertexAttributeDescriptions: []core1_0.VertexInputAttributeDescription{
			{
				Binding:  0,
				Location: 0,
				Format:   format,
				Offset:   0,
			},
		},
	}
}

// BuildGeneration creates the graphics pipelines for the manager's current
// render pass and extent.
func (p *Pipelines) BuildGeneration(manager *swapchainmgr.Manager) error {
	extent := manager.Extent()
	pass := manager.RenderPass().(*renderPass).handle

	for kind, variant := range p.variants() {
		pl, err := p.createGraphics(variant, pass, extent)
		if err != nil {
			return errors.Wrapf(err, "%s pipeline", kind)
		}
		p.graphics[kind] = pl
	}

	p.logger.Debug("graphics pipelines built",
		slog.Int("generation", manager.Generation()),
		slog.String("extent", extent.String()))
	return nil
}

// ReleaseGeneration destroys the graphics pipelines. The device must be
// idle.
func (p *Pipelines) ReleaseGeneration() {
	for kind, pl := range p.graphics {
		pl.handle.Destroy(nil)
		delete(p.graphics, kind)
	}
}

func (p *Pipelines) createGraphics(variant graphicsVariant, pass core1_0.RenderPass, extent gpu.Extent) (*pipeline, error) {
	vertShader, err := p.shaderModule(variant.vert)
	if err != nil {
		return nil, err
	}
	defer vertShader.Destroy(nil)

	fragShader, err := p.shaderModule(variant.frag)
	if err != nil {
		return nil, err
	}
	defer fragShader.Destroy(nil)

	inputAssembly := &core1_0.PipelineInputAssemblyStateCreateInfo{
		Topology:               variant.topology,
		PrimitiveRestartEnable: false,
	}

	vertStage := core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageVertex,
		Module: vertShader,
		Name:   "main",
	}

	fragStage := core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageFragment,
		Module: fragShader,
		Name:   "main",
	}

	viewport := &core1_0.PipelineViewportStateCreateInfo{
		Viewports: []core1_0.Viewport{
			{
				X:        0,
				Y:        0,
				Width:    float32(extent.Width),
				Height:   float32(extent.Height),
				MinDepth: 0,
				MaxDepth: 1,
			},
		},
		Scissors: []core1_0.Rect2D{
			{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: core1_0.Extent2D{Width: extent.Width, Height: extent.Height},
			},
		},
	}

	rasterization := &core1_0.PipelineRasterizationStateCreateInfo{
		DepthClampEnable:        false,
		RasterizerDiscardEnable: false,

		PolygonMode: core1_0.PolygonModeFill,
		CullMode:    variant.cullMode,
		FrontFace:   core1_0.FrontFaceCounterClockwise,

		DepthBiasEnable: false,

		LineWidth: 1.0,
	}

	multisample := &core1_0.PipelineMultisampleStateCreateInfo{
		SampleShadingEnable:  false,
		RasterizationSamples: core1_0.Samples1,
		MinSampleShading:     1.0,
	}

	depthStencil := &core1_0.PipelineDepthStencilStateCreateInfo{
		DepthTestEnable:  true,
		DepthWriteEnable: variant.depthWrite,
		DepthCompareOp:   variant.depthOp,
	}

	attachment := core1_0.PipelineColorBlendAttachmentState{
		BlendEnabled:   variant.blend,
		ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
	}
	if variant.blend {
		attachment.SrcColorBlendFactor = core1_0.BlendFactorSrcAlpha
		attachment.DstColorBlendFactor = core1_0.BlendFactorOneMinusSrcAlpha
		if variant.additive {
			attachment.DstColorBlendFactor = core1_0.BlendFactorOne
		}
		attachment.ColorBlendOp = core1_0.BlendOpAdd
		attachment.SrcAlphaBlendFactor = core1_0.BlendFactorOne
		attachment.DstAlphaBlendFactor = core1_0.BlendFactorZero
		attachment.AlphaBlendOp = core1_0.BlendOpAdd
	}

	colorBlend := &core1_0.PipelineColorBlendStateCreateInfo{
		LogicOpEnabled: false,
		LogicOp:        core1_0.LogicOpCopy,

		BlendConstants: [4]float32{0, 0, 0, 0},
		Attachments:    []core1_0.PipelineColorBlendAttachmentState{attachment},
	}

	pipelines, res, err := p.ctx.device.CreateGraphicsPipelines(nil, nil, []core1_0.GraphicsPipelineCreateInfo{
		{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				vertStage,
				fragStage,
			},
			VertexInputState:   variant.input,
			InputAssemblyState: inputAssembly,
			ViewportState:      viewport,
			RasterizationState: rasterization,
			MultisampleState:   multisample,
			DepthStencilState:  depthStencil,
			ColorBlendState:    colorBlend,
			Layout:             variant.layout,
			RenderPass:         pass,
			Subpass:            0,
			BasePipelineIndex:  -1,
		},
	})
	if err != nil {
		return nil, check("create graphics pipeline", res, err)
	}

	return &pipeline{handle: pipelines[0], layout: variant.layout, bindPoint: core1_0.PipelineBindPointGraphics}, nil
}

// Destroy releases every pipeline and layout. The device must be idle.
func (p *Pipelines) Destroy() {
	p.ReleaseGeneration()
	for kind, pl := range p.compute {
		pl.handle.Destroy(nil)
		delete(p.compute, kind)
	}
	for _, layout := range []core1_0.PipelineLayout{p.meshLayout, p.skyboxLayout, p.particleLayout, p.maskLayout, p.stepLayout} {
		if layout != nil {
			layout.Destroy(nil)
		}
	}
	p.meshLayout, p.skyboxLayout, p.particleLayout, p.maskLayout, p.stepLayout = nil, nil, nil, nil, nil
}
