// Package renderer drives acquire, record, submit and present for each frame
// and rebuilds the swapchain generation when presentation goes stale.
package renderer

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/frameloop/internal/frame"
	"github.com/vkngwrapper/frameloop/internal/gpu"
	"github.com/vkngwrapper/frameloop/internal/sequencer"
	"github.com/vkngwrapper/frameloop/internal/submit"
	"github.com/vkngwrapper/frameloop/internal/swapchain"
)

// Outcome is what happened to one RenderFrame call.
type Outcome int

const (
	// Presented means the frame was queued for display.
	Presented Outcome = iota
	// Skipped means the image could not be acquired; nothing was submitted
	// and the swapchain was rebuilt.
	Skipped
	// Recreated means the frame was presented and the swapchain was rebuilt
	// afterwards.
	Recreated
)

func (o Outcome) String() string {
	switch o {
	case Presented:
		return "presented"
	case Skipped:
		return "skipped"
	case Recreated:
		return "recreated"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

type Driver struct {
	manager    *swapchain.Manager
	frames     *frame.Pool
	sequencer  *sequencer.Sequencer
	scheduler  *submit.Scheduler
	controller *Controller
	logger     *slog.Logger

	// Events, if set, is told about suboptimal and stale presentation.
	Events EventLog

	resizePending bool
	frameNumber   uint64
	lastChain     submit.Chain
}

func NewDriver(manager *swapchain.Manager, frames *frame.Pool, seq *sequencer.Sequencer, scheduler *submit.Scheduler, controller *Controller, logger *slog.Logger) *Driver {
	return &Driver{
		manager:    manager,
		frames:     frames,
		sequencer:  seq,
		scheduler:  scheduler,
		controller: controller,
		logger:     logger,
	}
}

// OnResize flags the swapchain for recreation after the next present.
func (d *Driver) OnResize() {
	d.resizePending = true
}

// LastChain is the dependency chain submitted by the last presented frame.
func (d *Driver) LastChain() submit.Chain { return d.lastChain }

// RenderFrame renders and presents one frame. Only fatal errors are
// returned; stale and suboptimal presentation are handled by recreation.
func (d *Driver) RenderFrame() (Outcome, error) {
	d.frameNumber++

	slot, err := d.frames.Acquire()
	if err != nil {
		return Presented, err
	}

	imageIndex, result, err := d.manager.AcquireNextImage(slot.ImageAcquired)
	if err != nil {
		return Presented, errors.Wrap(err, "acquire presentable image")
	}

	if result == gpu.PresentStale {
		d.logger.Debug("presentable image stale, skipping frame", slog.Uint64("frame", d.frameNumber))
		d.event("frame %d skipped: stale", d.frameNumber)

		err = d.frames.Release(slot)
		if err != nil {
			return Skipped, err
		}
		return Skipped, d.controller.Recreate()
	}
	recreate := result == gpu.PresentSuboptimal

	err = d.scheduler.RunCompute(d.sequencer.RecordCompute)
	if err != nil {
		return Presented, errors.Wrap(err, "compute pass")
	}

	err = d.frames.Reset(slot)
	if err != nil {
		return Presented, err
	}

	err = d.sequencer.RecordFrame(slot, imageIndex)
	if err != nil {
		return Presented, errors.Wrap(err, "record frame")
	}

	chain, err := d.scheduler.Submit(slot, imageIndex)
	if err != nil {
		return Presented, err
	}
	d.frames.Submitted(slot)
	d.lastChain = chain

	result, err = d.manager.Present(imageIndex)
	if err != nil {
		return Presented, errors.Wrap(err, "present")
	}

	switch {
	case result != gpu.PresentOK:
		d.logger.Debug("presentation needs recreation", slog.String("result", result.String()))
		d.event("frame %d %s", d.frameNumber, result)
	case recreate:
		d.logger.Debug("acquired image was suboptimal")
		d.event("frame %d suboptimal", d.frameNumber)
	case d.resizePending:
		d.logger.Debug("window resized")
	default:
		return Presented, nil
	}

	d.resizePending = false
	return Recreated, d.controller.Recreate()
}

func (d *Driver) event(format string, args ...interface{}) {
	if d.Events != nil {
		d.Events.Logf(format, args...)
	}
}
