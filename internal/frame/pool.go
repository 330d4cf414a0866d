// Package frame manages the fixed ring of frames in flight.
package frame

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/frameloop/internal/gpu"
)

// Slot is one frame in flight. Its recording context is never aliased and is
// only handed out again once the submission that used it has completed.
type Slot struct {
	Index    int
	Commands gpu.CommandBuffer
	// ImageAcquired is signaled by the presentation engine when the image
	// acquired for this slot may be written.
	ImageAcquired gpu.Semaphore
	// InFlight is signaled when the slot's main submission completes.
	InFlight gpu.Fence
}

// Pool is the single source of truth for which slot is active.
type Pool struct {
	device gpu.Device
	logger *slog.Logger

	slots   []*Slot
	current int
	held    bool
	armed   bool
}

// New creates n slots. Fences start signaled so the first pass through the
// ring does not wait.
func New(device gpu.Device, n int, logger *slog.Logger) (*Pool, error) {
	if n < 1 {
		return nil, errors.Newf("frame pool needs at least one slot, got %d", n)
	}

	p := &Pool{
		device:  device,
		logger:  logger,
		current: n - 1,
	}

	commands, err := device.AllocateCommandBuffers(n)
	if err != nil {
		return nil, errors.Wrap(err, "allocate frame commands")
	}

	for i := 0; i < n; i++ {
		slot := &Slot{Index: i, Commands: commands[i]}
		p.slots = append(p.slots, slot)

		slot.ImageAcquired, err = device.CreateSemaphore()
		if err != nil {
			p.Destroy()
			return nil, errors.Wrapf(err, "frame slot %d", i)
		}

		slot.InFlight, err = device.CreateFence(true)
		if err != nil {
			p.Destroy()
			return nil, errors.Wrapf(err, "frame slot %d", i)
		}
	}

	return p, nil
}

// Acquire advances to the next slot and blocks until the GPU has finished
// the work last submitted from it.
func (p *Pool) Acquire() (*Slot, error) {
	if p.held {
		return nil, errors.AssertionFailedf("slot %d acquired twice", p.current)
	}

	next := (p.current + 1) % len(p.slots)
	slot := p.slots[next]

	err := slot.InFlight.Wait()
	if err != nil {
		return nil, errors.Wrapf(err, "wait for frame slot %d", next)
	}

	p.current = next
	p.held = true
	return slot, nil
}

// Reset clears the slot's completion signal and recording context. It must
// follow Acquire and precede recording.
func (p *Pool) Reset(slot *Slot) error {
	if !p.held || slot.Index != p.current {
		return errors.AssertionFailedf("reset of slot %d which is not the acquired slot", slot.Index)
	}

	err := slot.InFlight.Reset()
	if err != nil {
		return errors.Wrapf(err, "reset fence of slot %d", slot.Index)
	}

	p.armed = true

	err = slot.Commands.Reset()
	if err != nil {
		return errors.Wrapf(err, "reset commands of slot %d", slot.Index)
	}

	return nil
}

// Submitted marks the acquired slot as handed to the GPU.
func (p *Pool) Submitted(slot *Slot) {
	if slot.Index == p.current {
		p.held = false
		p.armed = false
	}
}

// Release gives back an acquired slot that was never reset or submitted, so
// the next Acquire returns it again.
func (p *Pool) Release(slot *Slot) error {
	if !p.held || slot.Index != p.current {
		return errors.AssertionFailedf("release of slot %d which is not the acquired slot", slot.Index)
	}
	if p.armed {
		return errors.AssertionFailedf("release of slot %d after its fence was reset", slot.Index)
	}

	p.logger.Debug("frame slot released unused", slog.Int("slot", slot.Index))
	p.current = (p.current - 1 + len(p.slots)) % len(p.slots)
	p.held = false
	return nil
}

// Current is the index of the most recently acquired slot.
func (p *Pool) Current() int { return p.current }

func (p *Pool) Len() int { return len(p.slots) }

// Destroy releases every slot. The device must be idle.
func (p *Pool) Destroy() {
	var commands []gpu.CommandBuffer
	for _, slot := range p.slots {
		if slot.Commands != nil {
			commands = append(commands, slot.Commands)
		}
		if slot.InFlight != nil {
			slot.InFlight.Destroy()
		}
		if slot.ImageAcquired != nil {
			slot.ImageAcquired.Destroy()
		}
	}
	if len(commands) > 0 {
		p.device.FreeCommandBuffers(commands)
	}
	p.slots = nil
}
