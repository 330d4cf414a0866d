// Package sequencer records each frame's GPU work in a fixed order with the
// layout transitions the presentable image needs.
package sequencer

import (
	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/frameloop/internal/assets"
	"github.com/vkngwrapper/frameloop/internal/frame"
	"github.com/vkngwrapper/frameloop/internal/gpu"
	"github.com/vkngwrapper/frameloop/internal/swapchain"
)

// UniformSource writes per-frame uniform data into pre-mapped host-visible
// memory. It records no commands.
type UniformSource interface {
	WriteFrameUniforms(slot int, extent gpu.Extent) error
	WriteComputeUniforms() error
}

// MaterialBinding is the pipeline variant and descriptor set a material is
// drawn with.
type MaterialBinding struct {
	Kind gpu.PipelineKind
	Set  gpu.DescriptorSet
}

type Mesh struct {
	Vertices   gpu.Buffer
	Indices    gpu.Buffer
	IndexCount int
	Primitives []assets.Primitive
}

type Skybox struct {
	Vertices    gpu.Buffer
	VertexCount int
	Set         gpu.DescriptorSet
}

// Mask is the compute-written storage image sampled by the mesh shaders.
type Mask struct {
	Image  gpu.Image
	Extent gpu.Extent
	Set    gpu.DescriptorSet
}

type Particles struct {
	Buffer gpu.Buffer
	Count  int
	// ComputeSet is bound for the simulation dispatch, DrawSet for the point
	// draw.
	ComputeSet gpu.DescriptorSet
	DrawSet    gpu.DescriptorSet
}

// Scene is everything the sequencer draws. Handles are owned elsewhere.
type Scene struct {
	// FrameSets holds one descriptor set per frame slot.
	FrameSets []gpu.DescriptorSet
	Skybox    Skybox
	Mesh      Mesh
	Materials []MaterialBinding
	// Fallback draws primitives whose material is unknown.
	Fallback      MaterialBinding
	Mask          Mask
	Particles     Particles
	DrawParticles bool
	Uniforms      UniformSource
}

// ClearColor is the presentable image clear value.
var ClearColor = [4]float32{0, 0, 0, 1}

const (
	maskGroupSize     = 16
	particleGroupSize = 256
)

type Sequencer struct {
	manager   *swapchain.Manager
	pipelines gpu.Pipelines
	scene     *Scene
}

func New(manager *swapchain.Manager, pipelines gpu.Pipelines, scene *Scene) *Sequencer {
	return &Sequencer{
		manager:   manager,
		pipelines: pipelines,
		scene:     scene,
	}
}

// Binding returns the binding for a material index, or the fallback when
// the index is out of range.
func (s *Sequencer) Binding(material int) MaterialBinding {
	if material < 0 || material >= len(s.scene.Materials) {
		return s.scene.Fallback
	}
	return s.scene.Materials[material]
}

// RecordFrame records the main pass for the presentable image at imageIndex
// into the slot's commands. The slot must have been reset.
func (s *Sequencer) RecordFrame(slot *frame.Slot, imageIndex int) error {
	if slot.Index >= len(s.scene.FrameSets) {
		return errors.AssertionFailedf("no frame descriptor set for slot %d", slot.Index)
	}

	cmd := slot.Commands
	err := cmd.Begin()
	if err != nil {
		return errors.Wrap(err, "begin frame commands")
	}

	err = s.manager.Transition(cmd, imageIndex, gpu.LayoutColorAttachment,
		gpu.StageTopOfPipe, gpu.StageColorAttachmentOutput,
		0, gpu.AccessColorAttachmentWrite)
	if err != nil {
		return err
	}

	// The depth image is fully cleared every frame so its contents are
	// discarded.
	err = cmd.ImageBarrier(gpu.ImageBarrier{
		Image:     s.manager.DepthImage(),
		Aspect:    gpu.AspectDepth,
		OldLayout: gpu.LayoutUndefined,
		NewLayout: gpu.LayoutDepthAttachment,
		SrcStage:  gpu.StageEarlyFragmentTests,
		DstStage:  gpu.StageEarlyFragmentTests,
		DstAccess: gpu.AccessDepthStencilAttachmentWrite,
	})
	if err != nil {
		return err
	}

	err = cmd.BeginRenderPass(s.manager.RenderTarget(imageIndex, gpu.ClearValues{Color: ClearColor, Depth: 1}))
	if err != nil {
		return err
	}

	err = s.scene.Uniforms.WriteFrameUniforms(slot.Index, s.manager.Extent())
	if err != nil {
		return errors.Wrap(err, "write frame uniforms")
	}

	frameSet := s.scene.FrameSets[slot.Index]
	s.recordSkybox(cmd, frameSet)
	s.recordMesh(cmd, frameSet)
	if s.scene.DrawParticles {
		s.recordParticles(cmd, frameSet)
	}

	cmd.EndRenderPass()

	err = s.manager.Transition(cmd, imageIndex, gpu.LayoutPresentSrc,
		gpu.StageColorAttachmentOutput, gpu.StageBottomOfPipe,
		gpu.AccessColorAttachmentWrite, 0)
	if err != nil {
		return err
	}

	err = cmd.End()
	if err != nil {
		return errors.Wrap(err, "end frame commands")
	}

	return nil
}

func (s *Sequencer) recordSkybox(cmd gpu.CommandBuffer, frameSet gpu.DescriptorSet) {
	pipeline := s.pipelines.Pipeline(gpu.PipelineSkybox)
	cmd.BindPipeline(pipeline)
	cmd.BindVertexBuffer(s.scene.Skybox.Vertices)
	cmd.BindDescriptorSets(pipeline, frameSet, s.scene.Skybox.Set)
	cmd.Draw(s.scene.Skybox.VertexCount)
}

func (s *Sequencer) recordMesh(cmd gpu.CommandBuffer, frameSet gpu.DescriptorSet) {
	mesh := s.scene.Mesh
	cmd.BindVertexBuffer(mesh.Vertices)
	cmd.BindIndexBuffer(mesh.Indices)

	if len(mesh.Primitives) == 0 {
		s.drawRange(cmd, frameSet, s.scene.Fallback, 0, mesh.IndexCount)
		return
	}

	for _, primitive := range mesh.Primitives {
		s.drawRange(cmd, frameSet, s.Binding(primitive.Material), primitive.FirstIndex, primitive.IndexCount)
	}
}

func (s *Sequencer) drawRange(cmd gpu.CommandBuffer, frameSet gpu.DescriptorSet, binding MaterialBinding, first, count int) {
	pipeline := s.pipelines.Pipeline(binding.Kind)
	cmd.BindPipeline(pipeline)
	cmd.BindDescriptorSets(pipeline, frameSet, binding.Set)
	cmd.DrawIndexed(count, first)
}

func (s *Sequencer) recordParticles(cmd gpu.CommandBuffer, frameSet gpu.DescriptorSet) {
	pipeline := s.pipelines.Pipeline(gpu.PipelineParticles)
	cmd.BindPipeline(pipeline)
	cmd.BindVertexBuffer(s.scene.Particles.Buffer)
	cmd.BindDescriptorSets(pipeline, frameSet, s.scene.Particles.DrawSet)
	cmd.Draw(s.scene.Particles.Count)
}
