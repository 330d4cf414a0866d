package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/vkngwrapper/frameloop/internal/gpu"
)

var layouts = map[gpu.Layout]core1_0.ImageLayout{
	gpu.LayoutUndefined:       core1_0.ImageLayoutUndefined,
	gpu.LayoutGeneral:         core1_0.ImageLayoutGeneral,
	gpu.LayoutColorAttachment: core1_0.ImageLayoutColorAttachmentOptimal,
	gpu.LayoutDepthAttachment: core1_0.ImageLayoutDepthStencilAttachmentOptimal,
	gpu.LayoutShaderReadOnly:  core1_0.ImageLayoutShaderReadOnlyOptimal,
	gpu.LayoutTransferDst:     core1_0.ImageLayoutTransferDstOptimal,
	gpu.LayoutPresentSrc:      khr_swapchain.ImageLayoutPresentSrc,
}

var stages = []struct {
	stage gpu.Stage
	flag  core1_0.PipelineStageFlags
}{
	{gpu.StageTopOfPipe, core1_0.PipelineStageTopOfPipe},
	{gpu.StageVertexInput, core1_0.PipelineStageVertexInput},
	{gpu.StageFragmentShader, core1_0.PipelineStageFragmentShader},
	{gpu.StageEarlyFragmentTests, core1_0.PipelineStageEarlyFragmentTests},
	{gpu.StageColorAttachmentOutput, core1_0.PipelineStageColorAttachmentOutput},
	{gpu.StageComputeShader, core1_0.PipelineStageComputeShader},
	{gpu.StageTransfer, core1_0.PipelineStageTransfer},
	{gpu.StageBottomOfPipe, core1_0.PipelineStageBottomOfPipe},
}

var accesses = []struct {
	access gpu.Access
	flag   core1_0.AccessFlags
}{
	{gpu.AccessVertexAttributeRead, core1_0.AccessVertexAttributeRead},
	{gpu.AccessShaderRead, core1_0.AccessShaderRead},
	{gpu.AccessShaderWrite, core1_0.AccessShaderWrite},
	{gpu.AccessColorAttachmentWrite, core1_0.AccessColorAttachmentWrite},
	{gpu.AccessDepthStencilAttachmentWrite, core1_0.AccessDepthStencilAttachmentWrite},
	{gpu.AccessTransferWrite, core1_0.AccessTransferWrite},
}

func imageLayout(layout gpu.Layout) (core1_0.ImageLayout, error) {
	l, ok := layouts[layout]
	if !ok {
		return 0, errors.AssertionFailedf("unknown layout %s", layout)
	}
	return l, nil
}

func stageFlags(stage gpu.Stage) core1_0.PipelineStageFlags {
	var flags core1_0.PipelineStageFlags
	for _, s := range stages {
		if stage&s.stage != 0 {
			flags |= s.flag
		}
	}
	return flags
}

// barrierStage maps an empty stage set to the pipeline end it stands for;
// Vulkan rejects a zero stage mask.
func barrierStage(stage gpu.Stage, empty core1_0.PipelineStageFlags) core1_0.PipelineStageFlags {
	if flags := stageFlags(stage); flags != 0 {
		return flags
	}
	return empty
}

func accessFlags(access gpu.Access) core1_0.AccessFlags {
	var flags core1_0.AccessFlags
	for _, a := range accesses {
		if access&a.access != 0 {
			flags |= a.flag
		}
	}
	return flags
}

func aspectFlags(aspect gpu.Aspect) core1_0.ImageAspectFlags {
	if aspect == gpu.AspectDepth {
		return core1_0.ImageAspectDepth
	}
	return core1_0.ImageAspectColor
}

// commandBuffer implements gpu.CommandBuffer. Buffers come from a pool
// created with the reset flag so each one is re-recorded in place.
type commandBuffer struct {
	handle core1_0.CommandBuffer
}

func (c *commandBuffer) Begin() error {
	res, err := c.handle.Begin(core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	return check("begin command buffer", res, err)
}

func (c *commandBuffer) End() error {
	res, err := c.handle.End()
	return check("end command buffer", res, err)
}

func (c *commandBuffer) Reset() error {
	res, err := c.handle.Reset(0)
	return check("reset command buffer", res, err)
}

func (c *commandBuffer) ImageBarrier(barrier gpu.ImageBarrier) error {
	oldLayout, err := imageLayout(barrier.OldLayout)
	if err != nil {
		return err
	}
	newLayout, err := imageLayout(barrier.NewLayout)
	if err != nil {
		return err
	}

	return c.handle.CmdPipelineBarrier(
		barrierStage(barrier.SrcStage, core1_0.PipelineStageTopOfPipe),
		barrierStage(barrier.DstStage, core1_0.PipelineStageBottomOfPipe),
		0, nil, nil,
		[]core1_0.ImageMemoryBarrier{
			{
				OldLayout:           oldLayout,
				NewLayout:           newLayout,
				SrcQueueFamilyIndex: -1,
				DstQueueFamilyIndex: -1,
				Image:               barrier.Image.(core1_0.Image),
				SubresourceRange: core1_0.ImageSubresourceRange{
					AspectMask:     aspectFlags(barrier.Aspect),
					BaseMipLevel:   0,
					LevelCount:     1,
					BaseArrayLayer: 0,
					LayerCount:     1,
				},
				SrcAccessMask: accessFlags(barrier.SrcAccess),
				DstAccessMask: accessFlags(barrier.DstAccess),
			},
		})
}

func (c *commandBuffer) MemoryBarrier(barrier gpu.MemoryBarrier) error {
	return c.handle.CmdPipelineBarrier(
		barrierStage(barrier.SrcStage, core1_0.PipelineStageTopOfPipe),
		barrierStage(barrier.DstStage, core1_0.PipelineStageBottomOfPipe),
		0,
		[]core1_0.MemoryBarrier{
			{
				SrcAccessMask: accessFlags(barrier.SrcAccess),
				DstAccessMask: accessFlags(barrier.DstAccess),
			},
		},
		nil, nil)
}

func (c *commandBuffer) BeginRenderPass(target gpu.RenderTarget) error {
	return c.handle.CmdBeginRenderPass(core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  target.Pass.(*renderPass).handle,
			Framebuffer: target.Framebuffer.(*framebuffer).handle,
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: core1_0.Extent2D{Width: target.Extent.Width, Height: target.Extent.Height},
			},
			ClearValues: []core1_0.ClearValue{
				core1_0.ClearValueFloat(target.Clear.Color),
				core1_0.ClearValueDepthStencil{Depth: target.Clear.Depth, Stencil: 0},
			},
		})
}

func (c *commandBuffer) EndRenderPass() {
	c.handle.CmdEndRenderPass()
}

func (c *commandBuffer) BindPipeline(p gpu.Pipeline) {
	pl := p.(*pipeline)
	c.handle.CmdBindPipeline(pl.bindPoint, pl.handle)
}

func (c *commandBuffer) BindDescriptorSets(p gpu.Pipeline, sets ...gpu.DescriptorSet) {
	pl := p.(*pipeline)
	handles := make([]core1_0.DescriptorSet, 0, len(sets))
	for _, set := range sets {
		handles = append(handles, set.(core1_0.DescriptorSet))
	}
	c.handle.CmdBindDescriptorSets(pl.bindPoint, pl.layout, handles, nil)
}

func (c *commandBuffer) BindVertexBuffer(buffer gpu.Buffer) {
	c.handle.CmdBindVertexBuffers(0, []core1_0.Buffer{buffer.(core1_0.Buffer)}, []int{0})
}

func (c *commandBuffer) BindIndexBuffer(buffer gpu.Buffer) {
	c.handle.CmdBindIndexBuffer(buffer.(core1_0.Buffer), 0, core1_0.IndexTypeUInt32)
}

func (c *commandBuffer) Draw(vertexCount int) {
	c.handle.CmdDraw(vertexCount, 1, 0, 0)
}

func (c *commandBuffer) DrawIndexed(indexCount, firstIndex int) {
	c.handle.CmdDrawIndexed(indexCount, 1, uint32(firstIndex), 0, 0)
}

func (c *commandBuffer) Dispatch(x, y, z int) {
	c.handle.CmdDispatch(x, y, z)
}

// CopyBufferToImage copies tightly packed texels from the start of src into
// region of dst, which must be in the transfer destination layout.
func (c *commandBuffer) CopyBufferToImage(src gpu.Buffer, dst gpu.Image, region gpu.Rect) error {
	return c.handle.CmdCopyBufferToImage(src.(core1_0.Buffer), dst.(core1_0.Image), core1_0.ImageLayoutTransferDstOptimal, []core1_0.BufferImageCopy{
		{
			BufferOffset:      0,
			BufferRowLength:   0,
			BufferImageHeight: 0,

			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageOffset: core1_0.Offset3D{X: region.X, Y: region.Y, Z: 0},
			ImageExtent: core1_0.Extent3D{Width: region.Width, Height: region.Height, Depth: 1},
		},
	})
}
