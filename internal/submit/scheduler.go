// Package submit chains one frame's recorded work across queue submissions
// with wait/signal edges.
package submit

import (
	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/frameloop/internal/frame"
	"github.com/vkngwrapper/frameloop/internal/gpu"
	"github.com/vkngwrapper/frameloop/internal/swapchain"
)

// Overlay renders the UI into a presentable image. It waits on wait and
// returns the signal its own submission raises when done.
type Overlay interface {
	Render(imageIndex int, wait gpu.Semaphore) (gpu.Semaphore, error)
}

// Hop is one edge of the dependency chain.
type Hop struct {
	Wait      gpu.Semaphore
	WaitStage gpu.Stage
	Signal    gpu.Semaphore
	Fence     gpu.Fence
}

// Chain describes the submissions made for one frame. It is rebuilt every
// frame and only kept for inspection.
type Chain struct {
	Slot       int
	ImageIndex int
	Main       Hop
	Overlay    Hop
	Present    Hop
}

type Scheduler struct {
	device  gpu.Device
	manager *swapchain.Manager
	overlay Overlay

	compute     gpu.CommandBuffer
	computeDone gpu.Fence
}

func New(device gpu.Device, manager *swapchain.Manager, overlay Overlay) (*Scheduler, error) {
	commands, err := device.AllocateCommandBuffers(1)
	if err != nil {
		return nil, errors.Wrap(err, "allocate compute commands")
	}

	computeDone, err := device.CreateFence(false)
	if err != nil {
		device.FreeCommandBuffers(commands)
		return nil, errors.Wrap(err, "create compute fence")
	}

	return &Scheduler{
		device:      device,
		manager:     manager,
		overlay:     overlay,
		compute:     commands[0],
		computeDone: computeDone,
	}, nil
}

// RunCompute records the compute work with record, submits it and blocks
// until it completes. Nothing on the GPU waits for it; the main pass is only
// recorded afterwards.
func (s *Scheduler) RunCompute(record func(cmd gpu.CommandBuffer) error) error {
	err := s.compute.Reset()
	if err != nil {
		return errors.Wrap(err, "reset compute commands")
	}

	err = record(s.compute)
	if err != nil {
		return err
	}

	err = s.device.Queue().Submit(s.computeDone, gpu.Submission{Commands: []gpu.CommandBuffer{s.compute}})
	if err != nil {
		return errors.Wrap(err, "submit compute")
	}

	err = s.computeDone.Wait()
	if err != nil {
		return errors.Wrap(err, "wait for compute")
	}

	return s.computeDone.Reset()
}

// Submit queues the main, overlay and present-transition hops for the slot's
// recorded frame targeting imageIndex. The main submission arms the slot's
// fence.
func (s *Scheduler) Submit(slot *frame.Slot, imageIndex int) (Chain, error) {
	image := s.manager.Image(imageIndex)
	queue := s.device.Queue()

	chain := Chain{
		Slot:       slot.Index,
		ImageIndex: imageIndex,
		Main: Hop{
			Wait:      slot.ImageAcquired,
			WaitStage: gpu.StageColorAttachmentOutput,
			Signal:    image.RenderComplete,
			Fence:     slot.InFlight,
		},
	}

	err := queue.Submit(slot.InFlight, submission(chain.Main, slot.Commands))
	if err != nil {
		return chain, errors.Wrap(err, "submit frame")
	}

	overlayDone, err := s.overlay.Render(imageIndex, image.RenderComplete)
	if err != nil {
		return chain, errors.Wrap(err, "render overlay")
	}
	chain.Overlay = Hop{Wait: image.RenderComplete, Signal: overlayDone}

	chain.Present = Hop{
		Wait:      overlayDone,
		WaitStage: gpu.StageBottomOfPipe,
		Signal:    image.PresentReady,
		Fence:     image.PresentIdle,
	}

	err = s.recordPresentTransition(imageIndex)
	if err != nil {
		return chain, err
	}

	// Only unsignal the fence once a submission is certain to signal it again.
	err = image.PresentIdle.Reset()
	if err != nil {
		return chain, err
	}
	err = queue.Submit(image.PresentIdle, submission(chain.Present, image.PresentCommands))
	if err != nil {
		return chain, errors.Wrap(err, "submit present transition")
	}

	return chain, nil
}

// recordPresentTransition records the image's present hop. It is empty unless
// the image is not yet tracked as presentable.
func (s *Scheduler) recordPresentTransition(imageIndex int) error {
	image := s.manager.Image(imageIndex)

	err := image.PresentIdle.Wait()
	if err != nil {
		return errors.Wrapf(err, "wait for present transition of image %d", imageIndex)
	}

	cmd := image.PresentCommands
	err = cmd.Reset()
	if err != nil {
		return err
	}
	err = cmd.Begin()
	if err != nil {
		return err
	}

	if s.manager.CurrentLayout(imageIndex) != gpu.LayoutPresentSrc {
		err = s.manager.Transition(cmd, imageIndex, gpu.LayoutPresentSrc,
			gpu.StageColorAttachmentOutput|gpu.StageTransfer, gpu.StageBottomOfPipe,
			gpu.AccessColorAttachmentWrite|gpu.AccessTransferWrite, 0)
		if err != nil {
			return err
		}
	}

	return cmd.End()
}

func submission(hop Hop, cmd gpu.CommandBuffer) gpu.Submission {
	return gpu.Submission{
		Wait:       []gpu.Semaphore{hop.Wait},
		WaitStages: []gpu.Stage{hop.WaitStage},
		Commands:   []gpu.CommandBuffer{cmd},
		Signal:     []gpu.Semaphore{hop.Signal},
	}
}

// Destroy releases the compute resources. The device must be idle.
func (s *Scheduler) Destroy() {
	s.computeDone.Destroy()
	s.device.FreeCommandBuffers([]gpu.CommandBuffer{s.compute})
}
