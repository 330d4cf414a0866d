package sequencer

import (
	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/frameloop/internal/gpu"
)

// RecordCompute records the mask and particle dispatches into cmd. The mask
// is rewritten in full every frame, so its previous contents are discarded,
// but only after earlier frames finished sampling it.
func (s *Sequencer) RecordCompute(cmd gpu.CommandBuffer) error {
	err := cmd.Begin()
	if err != nil {
		return errors.Wrap(err, "begin compute commands")
	}

	err = s.scene.Uniforms.WriteComputeUniforms()
	if err != nil {
		return errors.Wrap(err, "write compute uniforms")
	}

	err = s.recordMask(cmd)
	if err != nil {
		return err
	}

	err = s.recordParticleStep(cmd)
	if err != nil {
		return err
	}

	err = cmd.End()
	if err != nil {
		return errors.Wrap(err, "end compute commands")
	}

	return nil
}

func (s *Sequencer) recordMask(cmd gpu.CommandBuffer) error {
	mask := s.scene.Mask

	err := cmd.ImageBarrier(gpu.ImageBarrier{
		Image:     mask.Image,
		Aspect:    gpu.AspectColor,
		OldLayout: gpu.LayoutUndefined,
		NewLayout: gpu.LayoutGeneral,
		SrcStage:  gpu.StageFragmentShader,
		DstStage:  gpu.StageComputeShader,
		DstAccess: gpu.AccessShaderWrite,
	})
	if err != nil {
		return err
	}

	pipeline := s.pipelines.Pipeline(gpu.PipelineMaskCompute)
	cmd.BindPipeline(pipeline)
	cmd.BindDescriptorSets(pipeline, mask.Set)
	cmd.Dispatch(groups(mask.Extent.Width, maskGroupSize), groups(mask.Extent.Height, maskGroupSize), 1)

	return cmd.ImageBarrier(gpu.ImageBarrier{
		Image:     mask.Image,
		Aspect:    gpu.AspectColor,
		OldLayout: gpu.LayoutGeneral,
		NewLayout: gpu.LayoutShaderReadOnly,
		SrcStage:  gpu.StageComputeShader,
		DstStage:  gpu.StageFragmentShader,
		SrcAccess: gpu.AccessShaderWrite,
		DstAccess: gpu.AccessShaderRead,
	})
}

func (s *Sequencer) recordParticleStep(cmd gpu.CommandBuffer) error {
	particles := s.scene.Particles
	if particles.Count == 0 {
		return nil
	}

	pipeline := s.pipelines.Pipeline(gpu.PipelineParticleCompute)
	cmd.BindPipeline(pipeline)
	cmd.BindDescriptorSets(pipeline, particles.ComputeSet)
	cmd.Dispatch(groups(particles.Count, particleGroupSize), 1, 1)

	return cmd.MemoryBarrier(gpu.MemoryBarrier{
		SrcStage:  gpu.StageComputeShader,
		DstStage:  gpu.StageVertexInput,
		SrcAccess: gpu.AccessShaderWrite,
		DstAccess: gpu.AccessVertexAttributeRead,
	})
}

func groups(n, size int) int {
	return (n + size - 1) / size
}
