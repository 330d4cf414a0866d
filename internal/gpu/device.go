// Package gpu is the vocabulary the frame orchestration engine is written
// against. A backend (the vkngwrapper implementation in internal/vulkan, or the
// recording fake in gputest) supplies the handles.
//
// Handles without a lifecycle of their own (images owned by a swapchain,
// buffers, descriptor sets, pipelines) are opaque values that are only passed
// back to the backend that produced them.
package gpu

// Image is an opaque image handle.
type Image interface{}

// Buffer is an opaque buffer handle.
type Buffer interface{}

// DescriptorSet is an opaque descriptor set handle.
type DescriptorSet interface{}

// Pipeline is an opaque pipeline handle. The backend keeps the layout and
// bind point with it.
type Pipeline interface{}

type Semaphore interface {
	Destroy()
}

// Fence is a CPU-observable completion signal.
type Fence interface {
	// Wait blocks until the fence is signaled. There is no timeout: the only
	// outcome other than success is a fatal device error.
	Wait() error
	Reset() error
	Destroy()
}

type ImageView interface {
	Destroy()
}

type RenderPass interface {
	Destroy()
}

type Framebuffer interface {
	Destroy()
}

// Attachment is an image created together with its memory and view.
type Attachment interface {
	Image() Image
	View() ImageView
	Destroy()
}

// HostBuffer is a persistently mapped, host-visible transfer source.
type HostBuffer interface {
	Buffer() Buffer
	Bytes() []byte
	Destroy()
}

type ImageBarrier struct {
	Image     Image
	Aspect    Aspect
	OldLayout Layout
	NewLayout Layout
	SrcStage  Stage
	DstStage  Stage
	SrcAccess Access
	DstAccess Access
}

type MemoryBarrier struct {
	SrcStage  Stage
	DstStage  Stage
	SrcAccess Access
	DstAccess Access
}

type ClearValues struct {
	Color [4]float32
	Depth float32
}

// RenderTarget is everything needed to begin the main render pass.
type RenderTarget struct {
	Pass        RenderPass
	Framebuffer Framebuffer
	Extent      Extent
	Clear       ClearValues
}

// CommandBuffer is a reusable recording context.
type CommandBuffer interface {
	Begin() error
	End() error
	Reset() error

	ImageBarrier(barrier ImageBarrier) error
	MemoryBarrier(barrier MemoryBarrier) error

	BeginRenderPass(target RenderTarget) error
	EndRenderPass()

	BindPipeline(pipeline Pipeline)
	BindDescriptorSets(pipeline Pipeline, sets ...DescriptorSet)
	BindVertexBuffer(buffer Buffer)
	BindIndexBuffer(buffer Buffer)
	Draw(vertexCount int)
	DrawIndexed(indexCount, firstIndex int)
	Dispatch(x, y, z int)

	CopyBufferToImage(src Buffer, dst Image, region Rect) error
}

// Submission is one batch of a queue submit. WaitStages pairs with Wait.
type Submission struct {
	Wait       []Semaphore
	WaitStages []Stage
	Commands   []CommandBuffer
	Signal     []Semaphore
}

type Queue interface {
	// Submit queues the batches; fence, if not nil, is signaled once all of
	// them complete.
	Submit(fence Fence, batches ...Submission) error
}

// Device creates synchronization primitives, recording contexts and the
// swapchain-generation resources the engine rebuilds on recreation.
type Device interface {
	CreateSemaphore() (Semaphore, error)
	CreateFence(signaled bool) (Fence, error)
	AllocateCommandBuffers(count int) ([]CommandBuffer, error)
	FreeCommandBuffers(buffers []CommandBuffer)

	CreateImageView(image Image, format Format) (ImageView, error)
	CreateDepthAttachment(extent Extent) (Attachment, error)
	CreateRenderPass(color Format) (RenderPass, error)
	CreateFramebuffer(pass RenderPass, color, depth ImageView, extent Extent) (Framebuffer, error)
	CreateStagingBuffer(size int) (HostBuffer, error)

	Queue() Queue
	WaitIdle() error
}

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

type SurfaceCapabilities struct {
	MinImageCount int
	// MaxImageCount of zero means no upper limit.
	MaxImageCount int
	// CurrentExtent.Width is UndefinedExtent when the swapchain picks the
	// extent.
	CurrentExtent Extent
	MinExtent     Extent
	MaxExtent     Extent
	// TransferDst reports whether presentable images can be copied into.
	TransferDst bool
}

type SurfaceSupport struct {
	Capabilities SurfaceCapabilities
	Formats      []SurfaceFormat
	PresentModes []PresentMode
}

type SwapchainInfo struct {
	ImageCount  int
	Format      SurfaceFormat
	Extent      Extent
	PresentMode PresentMode
}

// Surface is the presentation target.
type Surface interface {
	Support() (SurfaceSupport, error)
	CreateSwapchain(info SwapchainInfo) (Swapchain, error)
}

type Swapchain interface {
	Images() ([]Image, error)
	// AcquireNextImage blocks without timeout. A stale result carries no
	// image index and leaves signal unsignaled.
	AcquireNextImage(signal Semaphore) (int, PresentResult, error)
	Present(imageIndex int, wait Semaphore) (PresentResult, error)
	Destroy()
}

// Pipelines resolves a pipeline variant for the current swapchain
// generation.
type Pipelines interface {
	Pipeline(kind PipelineKind) Pipeline
}
