package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/vkngwrapper/frameloop/internal/gpu"
)

// Device implements gpu.Device on the context's logical device.
type Device struct {
	ctx *Context
}

type semaphore struct {
	handle core1_0.Semaphore
}

func (s *semaphore) Destroy() { s.handle.Destroy(nil) }

type fence struct {
	device core1_0.Device
	handle core1_0.Fence
}

func (f *fence) Wait() error {
	res, err := f.handle.Wait(common.NoTimeout)
	return check("wait for fence", res, err)
}

func (f *fence) Reset() error {
	res, err := f.device.ResetFences([]core1_0.Fence{f.handle})
	return check("reset fence", res, err)
}

func (f *fence) Destroy() { f.handle.Destroy(nil) }

type imageView struct {
	handle core1_0.ImageView
}

func (v *imageView) Destroy() { v.handle.Destroy(nil) }

type renderPass struct {
	handle core1_0.RenderPass
}

func (p *renderPass) Destroy() { p.handle.Destroy(nil) }

type framebuffer struct {
	handle core1_0.Framebuffer
}

func (f *framebuffer) Destroy() { f.handle.Destroy(nil) }

// attachment is an image with its own memory and a single view.
type attachment struct {
	image  core1_0.Image
	memory core1_0.DeviceMemory
	view   *imageView
}

func (a *attachment) Image() gpu.Image    { return a.image }
func (a *attachment) View() gpu.ImageView { return a.view }

func (a *attachment) Destroy() {
	if a.view != nil {
		a.view.Destroy()
	}
	a.image.Destroy(nil)
	a.memory.Free(nil)
}

// hostBuffer is persistently mapped until destroyed.
type hostBuffer struct {
	buffer core1_0.Buffer
	memory core1_0.DeviceMemory
	bytes  []byte
}

func (b *hostBuffer) Buffer() gpu.Buffer { return b.buffer }
func (b *hostBuffer) Bytes() []byte      { return b.bytes }

func (b *hostBuffer) Destroy() {
	b.memory.Unmap()
	b.buffer.Destroy(nil)
	b.memory.Free(nil)
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	handle, res, err := d.ctx.device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return nil, check("create semaphore", res, err)
	}
	return &semaphore{handle: handle}, nil
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	var flags core1_0.FenceCreateFlags
	if signaled {
		flags = core1_0.FenceCreateSignaled
	}

	handle, res, err := d.ctx.device.CreateFence(nil, core1_0.FenceCreateInfo{Flags: flags})
	if err != nil {
		return nil, check("create fence", res, err)
	}
	return &fence{device: d.ctx.device, handle: handle}, nil
}

func (d *Device) AllocateCommandBuffers(count int) ([]gpu.CommandBuffer, error) {
	buffers, res, err := d.ctx.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        d.ctx.commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	})
	if err != nil {
		return nil, check("allocate command buffers", res, err)
	}

	commands := make([]gpu.CommandBuffer, 0, len(buffers))
	for _, buffer := range buffers {
		commands = append(commands, &commandBuffer{handle: buffer})
	}
	return commands, nil
}

func (d *Device) FreeCommandBuffers(buffers []gpu.CommandBuffer) {
	if len(buffers) == 0 {
		return
	}

	handles := make([]core1_0.CommandBuffer, 0, len(buffers))
	for _, buffer := range buffers {
		handles = append(handles, buffer.(*commandBuffer).handle)
	}
	d.ctx.device.FreeCommandBuffers(handles)
}

func (d *Device) CreateImageView(image gpu.Image, format gpu.Format) (gpu.ImageView, error) {
	view, err := d.ctx.createImageView(image.(core1_0.Image), core1_0.Format(format), core1_0.ImageAspectColor)
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (c *Context) createImageView(image core1_0.Image, format core1_0.Format, aspect core1_0.ImageAspectFlags) (*imageView, error) {
	handle, res, err := c.device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		return nil, check("create image view", res, err)
	}
	return &imageView{handle: handle}, nil
}

func (d *Device) CreateDepthAttachment(extent gpu.Extent) (gpu.Attachment, error) {
	image, memory, err := d.ctx.createImage(imageOptions{
		extent: extent,
		format: d.ctx.depthFormat,
		usage:  core1_0.ImageUsageDepthStencilAttachment,
	}, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, err
	}

	view, err := d.ctx.createImageView(image, d.ctx.depthFormat, core1_0.ImageAspectDepth)
	if err != nil {
		image.Destroy(nil)
		memory.Free(nil)
		return nil, err
	}

	return &attachment{image: image, memory: memory, view: view}, nil
}

// CreateRenderPass creates the main pass: one color and one depth
// attachment, both cleared. Attachment layouts never change inside the
// pass; the frame's explicit barriers move the images in and out of it.
func (d *Device) CreateRenderPass(color gpu.Format) (gpu.RenderPass, error) {
	handle, res, err := d.ctx.device.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         core1_0.Format(color),
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutColorAttachmentOptimal,
				FinalLayout:    core1_0.ImageLayoutColorAttachmentOptimal,
			},
			{
				Format:         d.ctx.depthFormat,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpDontCare,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutDepthStencilAttachmentOptimal,
				FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
				DepthStencilAttachment: &core1_0.AttachmentReference{
					Attachment: 1,
					Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
				},
			},
		},
	})
	if err != nil {
		return nil, check("create render pass", res, err)
	}
	return &renderPass{handle: handle}, nil
}

func (d *Device) CreateFramebuffer(pass gpu.RenderPass, color, depth gpu.ImageView, extent gpu.Extent) (gpu.Framebuffer, error) {
	handle, res, err := d.ctx.device.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass: pass.(*renderPass).handle,
		Layers:     1,
		Attachments: []core1_0.ImageView{
			color.(*imageView).handle,
			depth.(*imageView).handle,
		},
		Width:  extent.Width,
		Height: extent.Height,
	})
	if err != nil {
		return nil, check("create framebuffer", res, err)
	}
	return &framebuffer{handle: handle}, nil
}

func (d *Device) CreateStagingBuffer(size int) (gpu.HostBuffer, error) {
	return d.ctx.createHostBuffer(size, core1_0.BufferUsageTransferSrc)
}

func (c *Context) createHostBuffer(size int, usage core1_0.BufferUsageFlags) (*hostBuffer, error) {
	buffer, memory, err := c.createBuffer(size, usage, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, err
	}

	ptr, res, err := memory.Map(0, size, 0)
	if err != nil {
		buffer.Destroy(nil)
		memory.Free(nil)
		return nil, check("map memory", res, err)
	}

	return &hostBuffer{
		buffer: buffer,
		memory: memory,
		bytes:  unsafe.Slice((*byte)(ptr), size),
	}, nil
}

func (d *Device) Queue() gpu.Queue {
	return &queue{handle: d.ctx.queue}
}

func (d *Device) WaitIdle() error {
	res, err := d.ctx.device.WaitIdle()
	return check("wait for device idle", res, err)
}

type queue struct {
	handle core1_0.Queue
}

func (q *queue) Submit(f gpu.Fence, batches ...gpu.Submission) error {
	infos := make([]core1_0.SubmitInfo, 0, len(batches))
	for _, batch := range batches {
		if len(batch.Wait) != len(batch.WaitStages) {
			return errors.AssertionFailedf("%d wait semaphores with %d stages", len(batch.Wait), len(batch.WaitStages))
		}

		info := core1_0.SubmitInfo{}
		for i, wait := range batch.Wait {
			info.WaitSemaphores = append(info.WaitSemaphores, wait.(*semaphore).handle)
			info.WaitDstStageMask = append(info.WaitDstStageMask, stageFlags(batch.WaitStages[i]))
		}
		for _, cmd := range batch.Commands {
			info.CommandBuffers = append(info.CommandBuffers, cmd.(*commandBuffer).handle)
		}
		for _, signal := range batch.Signal {
			info.SignalSemaphores = append(info.SignalSemaphores, signal.(*semaphore).handle)
		}
		infos = append(infos, info)
	}

	var handle core1_0.Fence
	if f != nil {
		handle = f.(*fence).handle
	}

	res, err := q.handle.Submit(handle, infos)
	return check("submit", res, err)
}

// present is the one place a presentable image is handed back to the
// surface.
func (q *queue) present(ext khr_swapchain.Extension, swapchain khr_swapchain.Swapchain, imageIndex int, wait gpu.Semaphore) (gpu.PresentResult, error) {
	info := khr_swapchain.PresentInfo{
		Swapchains:   []khr_swapchain.Swapchain{swapchain},
		ImageIndices: []int{imageIndex},
	}
	if wait != nil {
		info.WaitSemaphores = []core1_0.Semaphore{wait.(*semaphore).handle}
	}

	res, err := ext.QueuePresent(q.handle, info)
	return classify("present", res, err)
}
