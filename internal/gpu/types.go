package gpu

import "fmt"

// Layout is the tracked access layout of an image.
type Layout int

const (
	LayoutUndefined Layout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthAttachment
	LayoutShaderReadOnly
	LayoutTransferDst
	LayoutPresentSrc
)

var layoutNames = map[Layout]string{
	LayoutUndefined:       "Undefined",
	LayoutGeneral:         "General",
	LayoutColorAttachment: "ColorAttachment",
	LayoutDepthAttachment: "DepthAttachment",
	LayoutShaderReadOnly:  "ShaderReadOnly",
	LayoutTransferDst:     "TransferDst",
	LayoutPresentSrc:      "PresentSrc",
}

func (l Layout) String() string {
	name, ok := layoutNames[l]
	if !ok {
		return fmt.Sprintf("Layout(%d)", int(l))
	}
	return name
}

// Stage is a set of pipeline stages.
type Stage uint32

const (
	StageTopOfPipe Stage = 1 << iota
	StageVertexInput
	StageFragmentShader
	StageEarlyFragmentTests
	StageColorAttachmentOutput
	StageComputeShader
	StageTransfer
	StageBottomOfPipe
)

// Access is a set of memory access kinds.
type Access uint32

const (
	AccessVertexAttributeRead Access = 1 << iota
	AccessShaderRead
	AccessShaderWrite
	AccessColorAttachmentWrite
	AccessDepthStencilAttachmentWrite
	AccessTransferWrite
)

// Aspect selects the color or depth part of an image.
type Aspect int

const (
	AspectColor Aspect = iota
	AspectDepth
)

// Format is an opaque pixel format value owned by the backend.
type Format int

// ColorSpace is an opaque color space value owned by the backend.
type ColorSpace int

// PresentMode is an opaque presentation mode value owned by the backend.
type PresentMode int

// UndefinedExtent is the surface current extent width reported when the
// swapchain decides its own extent.
const UndefinedExtent = -1

type Extent struct {
	Width  int
	Height int
}

// IsZero reports whether either dimension is empty, as for a minimized window.
func (e Extent) IsZero() bool {
	return e.Width <= 0 || e.Height <= 0
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Rect is a region of an image in pixels.
type Rect struct {
	X, Y          int
	Width, Height int
}

// PresentResult classifies acquire and present outcomes that are handled
// before the fatal path.
type PresentResult int

const (
	PresentOK PresentResult = iota
	PresentSuboptimal
	PresentStale
)

func (r PresentResult) String() string {
	switch r {
	case PresentOK:
		return "ok"
	case PresentSuboptimal:
		return "suboptimal"
	case PresentStale:
		return "stale"
	}
	return fmt.Sprintf("PresentResult(%d)", int(r))
}

// PipelineKind selects a pipeline variant. Mesh variants follow material
// properties; the rest are fixed-purpose.
type PipelineKind int

const (
	PipelineOpaque PipelineKind = iota
	PipelineDoubleSided
	PipelineBlend
	PipelineBlendDoubleSided
	PipelineSkybox
	PipelineParticles
	PipelineMaskCompute
	PipelineParticleCompute
)

func (k PipelineKind) String() string {
	switch k {
	case PipelineOpaque:
		return "opaque"
	case PipelineDoubleSided:
		return "double-sided"
	case PipelineBlend:
		return "blend"
	case PipelineBlendDoubleSided:
		return "blend-double-sided"
	case PipelineSkybox:
		return "skybox"
	case PipelineParticles:
		return "particles"
	case PipelineMaskCompute:
		return "mask-compute"
	case PipelineParticleCompute:
		return "particle-compute"
	}
	return fmt.Sprintf("PipelineKind(%d)", int(k))
}

// MeshPipeline returns the mesh pipeline variant for a material.
func MeshPipeline(doubleSided, blend bool) PipelineKind {
	switch {
	case blend && doubleSided:
		return PipelineBlendDoubleSided
	case blend:
		return PipelineBlend
	case doubleSided:
		return PipelineDoubleSided
	}
	return PipelineOpaque
}
