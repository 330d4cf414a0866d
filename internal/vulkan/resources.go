package vulkan

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/frameloop/internal/assets"
	"github.com/vkngwrapper/frameloop/internal/gpu"
)

type imageOptions struct {
	extent gpu.Extent
	format core1_0.Format
	usage  core1_0.ImageUsageFlags
	layers int
	flags  core1_0.ImageCreateFlags
}

func (c *Context) createImage(opts imageOptions, memoryProperties core1_0.MemoryPropertyFlags) (core1_0.Image, core1_0.DeviceMemory, error) {
	layers := opts.layers
	if layers == 0 {
		layers = 1
	}

	image, res, err := c.device.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  opts.extent.Width,
			Height: opts.extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   layers,
		Format:        opts.format,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         opts.usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
		Flags:         opts.flags,
	})
	if err != nil {
		return nil, nil, check("create image", res, err)
	}

	memReqs := image.MemoryRequirements()
	memoryIndex, err := c.findMemoryType(memReqs.MemoryTypeBits, memoryProperties)
	if err != nil {
		image.Destroy(nil)
		return nil, nil, err
	}

	imageMemory, res, err := c.device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memoryIndex,
	})
	if err != nil {
		image.Destroy(nil)
		return nil, nil, check("allocate image memory", res, err)
	}

	res, err = image.BindImageMemory(imageMemory, 0)
	if err != nil {
		image.Destroy(nil)
		imageMemory.Free(nil)
		return nil, nil, check("bind image memory", res, err)
	}

	return image, imageMemory, nil
}

func (c *Context) createBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (core1_0.Buffer, core1_0.DeviceMemory, error) {
	buffer, res, err := c.device.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, nil, check("create buffer", res, err)
	}

	memRequirements := buffer.MemoryRequirements()
	memoryTypeIndex, err := c.findMemoryType(memRequirements.MemoryTypeBits, properties)
	if err != nil {
		buffer.Destroy(nil)
		return nil, nil, err
	}

	memory, res, err := c.device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		buffer.Destroy(nil)
		return nil, nil, check("allocate buffer memory", res, err)
	}

	res, err = buffer.BindBufferMemory(memory, 0)
	if err != nil {
		buffer.Destroy(nil)
		memory.Free(nil)
		return nil, nil, check("bind buffer memory", res, err)
	}
	return buffer, memory, nil
}

// oneShot records fn into a temporary command buffer, submits it and waits
// for the queue to drain. Only used while loading.
func (c *Context) oneShot(fn func(buffer core1_0.CommandBuffer) error) error {
	buffers, res, err := c.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        c.commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return check("allocate upload commands", res, err)
	}
	buffer := buffers[0]
	defer c.device.FreeCommandBuffers(buffers)

	res, err = buffer.Begin(core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return check("begin upload commands", res, err)
	}

	err = fn(buffer)
	if err != nil {
		return err
	}

	res, err = buffer.End()
	if err != nil {
		return check("end upload commands", res, err)
	}

	res, err = c.queue.Submit(nil, []core1_0.SubmitInfo{
		{
			CommandBuffers: []core1_0.CommandBuffer{buffer},
		},
	})
	if err != nil {
		return check("submit upload", res, err)
	}

	res, err = c.queue.WaitIdle()
	return check("wait for upload", res, err)
}

// encode lays data out in the byte order the device reads.
func encode(data any) ([]byte, error) {
	buf := &bytes.Buffer{}
	err := binary.Write(buf, common.ByteOrder, data)
	if err != nil {
		return nil, errors.Wrap(err, "encode")
	}
	return buf.Bytes(), nil
}

// Resources owns every long-lived buffer, image and sampler. Everything it
// creates is destroyed together by Destroy.
type Resources struct {
	ctx *Context

	buffers  []*deviceBuffer
	mapped   []*hostBuffer
	images   []*texture
	samplers []core1_0.Sampler
}

func NewResources(ctx *Context) *Resources {
	return &Resources{ctx: ctx}
}

type deviceBuffer struct {
	buffer core1_0.Buffer
	memory core1_0.DeviceMemory
}

// texture is a sampled or storage image with a view over all of its layers.
type texture struct {
	image  core1_0.Image
	memory core1_0.DeviceMemory
	view   core1_0.ImageView
	extent gpu.Extent
}

// DeviceBuffer uploads data into a new device-local buffer through a
// temporary staging buffer.
func (r *Resources) DeviceBuffer(data []byte, usage core1_0.BufferUsageFlags) (core1_0.Buffer, error) {
	if len(data) == 0 {
		return nil, errors.AssertionFailedf("empty device buffer")
	}

	staging, err := r.ctx.createHostBuffer(len(data), core1_0.BufferUsageTransferSrc)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()
	copy(staging.bytes, data)

	buffer, memory, err := r.ctx.createBuffer(len(data), usage|core1_0.BufferUsageTransferDst, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, err
	}
	r.buffers = append(r.buffers, &deviceBuffer{buffer: buffer, memory: memory})

	err = r.ctx.oneShot(func(cmd core1_0.CommandBuffer) error {
		return cmd.CmdCopyBuffer(staging.buffer, buffer, []core1_0.BufferCopy{
			{
				SrcOffset: 0,
				DstOffset: 0,
				Size:      len(data),
			},
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "upload buffer")
	}
	return buffer, nil
}

// MappedBuffer creates a host-visible buffer that stays mapped for its
// lifetime, for data the CPU rewrites every frame.
func (r *Resources) MappedBuffer(size int, usage core1_0.BufferUsageFlags) (*hostBuffer, error) {
	buffer, err := r.ctx.createHostBuffer(size, usage)
	if err != nil {
		return nil, err
	}
	r.mapped = append(r.mapped, buffer)
	return buffer, nil
}

// Texture uploads an 8-bit sRGB texture and leaves it ready for sampling.
func (r *Resources) Texture(tex *assets.Texture) (*texture, error) {
	return r.sampledImage([]*assets.Texture{tex}, core1_0.FormatR8G8B8A8SRGB, core1_0.ImageViewType2D, 0)
}

// Cube uploads the six skybox faces as one cube map.
func (r *Resources) Cube(faces [6]*assets.Texture) (*texture, error) {
	return r.sampledImage(faces[:], core1_0.FormatR8G8B8A8SRGB, core1_0.ImageViewTypeCube, core1_0.ImageCreateCubeCompatible)
}

func (r *Resources) sampledImage(layers []*assets.Texture, format core1_0.Format, viewType core1_0.ImageViewType, flags core1_0.ImageCreateFlags) (*texture, error) {
	extent := gpu.Extent{Width: layers[0].Width, Height: layers[0].Height}
	layerSize := len(layers[0].Pixels)

	staging, err := r.ctx.createHostBuffer(layerSize*len(layers), core1_0.BufferUsageTransferSrc)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	var regions []core1_0.BufferImageCopy
	for i, layer := range layers {
		if len(layer.Pixels) != layerSize {
			return nil, errors.AssertionFailedf("layer %d holds %d bytes, layer 0 holds %d", i, len(layer.Pixels), layerSize)
		}
		copy(staging.bytes[i*layerSize:], layer.Pixels)
		regions = append(regions, core1_0.BufferImageCopy{
			BufferOffset: i * layerSize,
			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       0,
				BaseArrayLayer: i,
				LayerCount:     1,
			},
			ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
			ImageExtent: core1_0.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
		})
	}

	tex, err := r.image(imageOptions{
		extent: extent,
		format: format,
		usage:  core1_0.ImageUsageTransferDst | core1_0.ImageUsageSampled,
		layers: len(layers),
		flags:  flags,
	}, viewType)
	if err != nil {
		return nil, err
	}

	err = r.ctx.oneShot(func(cmd core1_0.CommandBuffer) error {
		err := layerBarrier(cmd, tex.image, len(layers),
			core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal,
			core1_0.PipelineStageTopOfPipe, core1_0.PipelineStageTransfer,
			0, core1_0.AccessTransferWrite)
		if err != nil {
			return err
		}

		err = cmd.CmdCopyBufferToImage(staging.buffer, tex.image, core1_0.ImageLayoutTransferDstOptimal, regions)
		if err != nil {
			return err
		}

		return layerBarrier(cmd, tex.image, len(layers),
			core1_0.ImageLayoutTransferDstOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal,
			core1_0.PipelineStageTransfer, core1_0.PipelineStageFragmentShader,
			core1_0.AccessTransferWrite, core1_0.AccessShaderRead)
	})
	if err != nil {
		return nil, errors.Wrap(err, "upload texture")
	}

	return tex, nil
}

// StorageImage creates a 32-bit float image written by compute and sampled
// by fragment shaders. Its contents start undefined.
func (r *Resources) StorageImage(extent gpu.Extent) (*texture, error) {
	return r.image(imageOptions{
		extent: extent,
		format: core1_0.FormatR32G32B32A32SignedFloat,
		usage:  core1_0.ImageUsageStorage | core1_0.ImageUsageSampled,
	}, core1_0.ImageViewType2D)
}

func (r *Resources) image(opts imageOptions, viewType core1_0.ImageViewType) (*texture, error) {
	image, memory, err := r.ctx.createImage(opts, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, err
	}

	layers := opts.layers
	if layers == 0 {
		layers = 1
	}

	view, res, err := r.ctx.device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: viewType,
		Format:   opts.format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     core1_0.ImageAspectColor,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     layers,
		},
	})
	if err != nil {
		image.Destroy(nil)
		memory.Free(nil)
		return nil, check("create texture view", res, err)
	}

	tex := &texture{image: image, memory: memory, view: view, extent: opts.extent}
	r.images = append(r.images, tex)
	return tex, nil
}

func layerBarrier(cmd core1_0.CommandBuffer, image core1_0.Image, layers int, oldLayout, newLayout core1_0.ImageLayout, srcStage, dstStage core1_0.PipelineStageFlags, srcAccess, dstAccess core1_0.AccessFlags) error {
	return cmd.CmdPipelineBarrier(srcStage, dstStage, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           oldLayout,
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               image,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     core1_0.ImageAspectColor,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     layers,
			},
			SrcAccessMask: srcAccess,
			DstAccessMask: dstAccess,
		},
	})
}

// Sampler creates a linear sampler. Repeat addressing is used for material
// textures, clamping for the skybox and the path mask.
func (r *Resources) Sampler(repeat bool) (core1_0.Sampler, error) {
	address := core1_0.SamplerAddressModeClampToEdge
	if repeat {
		address = core1_0.SamplerAddressModeRepeat
	}

	sampler, res, err := r.ctx.device.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:    core1_0.FilterLinear,
		MinFilter:    core1_0.FilterLinear,
		AddressModeU: address,
		AddressModeV: address,
		AddressModeW: address,

		AnisotropyEnable: true,
		MaxAnisotropy:    r.ctx.maxAnisotropy,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,

		MipmapMode: core1_0.SamplerMipmapModeLinear,
	})
	if err != nil {
		return nil, check("create sampler", res, err)
	}
	r.samplers = append(r.samplers, sampler)
	return sampler, nil
}

// Destroy releases everything in reverse creation order per kind. The
// device must be idle.
func (r *Resources) Destroy() {
	for i := len(r.samplers) - 1; i >= 0; i-- {
		r.samplers[i].Destroy(nil)
	}
	for i := len(r.images) - 1; i >= 0; i-- {
		tex := r.images[i]
		tex.view.Destroy(nil)
		tex.image.Destroy(nil)
		tex.memory.Free(nil)
	}
	for i := len(r.mapped) - 1; i >= 0; i-- {
		r.mapped[i].Destroy()
	}
	for i := len(r.buffers) - 1; i >= 0; i-- {
		r.buffers[i].buffer.Destroy(nil)
		r.buffers[i].memory.Free(nil)
	}
	r.samplers, r.images, r.mapped, r.buffers = nil, nil, nil, nil
}
