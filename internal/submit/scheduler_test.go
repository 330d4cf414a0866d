package submit_test

import (
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/frameloop/internal/frame"
	"github.com/vkngwrapper/frameloop/internal/gpu"
	"github.com/vkngwrapper/frameloop/internal/gpu/gputest"
	"github.com/vkngwrapper/frameloop/internal/overlay"
	"github.com/vkngwrapper/frameloop/internal/submit"
	"github.com/vkngwrapper/frameloop/internal/swapchain"
)

// recordingOverlay remembers which signal each overlay render waited on.
type recordingOverlay struct {
	next  submit.Overlay
	waits []gpu.Semaphore
}

func (o *recordingOverlay) Render(imageIndex int, wait gpu.Semaphore) (gpu.Semaphore, error) {
	o.waits = append(o.waits, wait)
	return o.next.Render(imageIndex, wait)
}

type fixture struct {
	dev     *gputest.Device
	manager *swapchain.Manager
	pool    *frame.Pool
	overlay *recordingOverlay
	sched   *submit.Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{dev: gputest.NewDevice()}
	surface := gputest.NewSurface(f.dev, gpu.Extent{Width: 64, Height: 64})
	f.manager = swapchain.New(f.dev, surface, swapchain.Options{FallbackPresentMode: gputest.PresentModeFIFO}, gputest.Logger(t))
	if err := f.manager.Create(gpu.Extent{Width: 64, Height: 64}); err != nil {
		t.Fatalf("Create: %+v", err)
	}

	var err error
	f.pool, err = frame.New(f.dev, 2, gputest.Logger(t))
	if err != nil {
		t.Fatalf("frame.New: %+v", err)
	}

	f.overlay = &recordingOverlay{next: overlay.NewPassthrough(f.dev, f.manager)}
	f.sched, err = submit.New(f.dev, f.manager, f.overlay)
	if err != nil {
		t.Fatalf("submit.New: %+v", err)
	}
	return f
}

// frame records a trivial main pass that leaves the image presentable and
// submits it.
func (f *fixture) frame(t *testing.T, imageIndex int, leaveLayout gpu.Layout) submit.Chain {
	t.Helper()
	slot, err := f.pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %+v", err)
	}
	if err := f.pool.Reset(slot); err != nil {
		t.Fatalf("Reset: %+v", err)
	}
	_ = slot.Commands.Begin()
	if err := f.manager.Transition(slot.Commands, imageIndex, leaveLayout, gpu.StageTopOfPipe, gpu.StageBottomOfPipe, 0, 0); err != nil {
		t.Fatalf("Transition: %+v", err)
	}
	_ = slot.Commands.End()

	chain, err := f.sched.Submit(slot, imageIndex)
	if err != nil {
		t.Fatalf("Submit: %+v", err)
	}
	f.pool.Submitted(slot)
	return chain
}

// The overlay always waits on exactly the signal the main submission of the
// same frame raised, and the present hop waits on what the overlay raised.
func TestChainOrdering(t *testing.T) {
	f := newFixture(t)

	for n := 0; n < 8; n++ {
		image := (n * 2) % f.manager.ImageCount()
		submitsBefore := len(f.dev.Submits)

		chain := f.frame(t, image, gpu.LayoutPresentSrc)

		if chain.Overlay.Wait != chain.Main.Signal {
			t.Fatalf("frame %d: overlay waits on a different signal than main raised", n)
		}
		if chain.Main.Signal != f.manager.Image(image).RenderComplete {
			t.Fatalf("frame %d: main signals another image's render-complete", n)
		}
		if got := f.overlay.waits[len(f.overlay.waits)-1]; got != chain.Main.Signal {
			t.Fatalf("frame %d: overlay called with %v", n, got)
		}
		if chain.Present.Wait != chain.Overlay.Signal || chain.Present.Signal != f.manager.Image(image).PresentReady {
			t.Fatalf("frame %d: present hop = %+v", n, chain.Present)
		}

		batches := f.dev.Submits[submitsBefore:]
		if len(batches) != 3 {
			t.Fatalf("frame %d: %d submissions, want main, overlay, present", n, len(batches))
		}
		main, over, present := batches[0], batches[1], batches[2]
		if main.Fence == nil || main.Batches[0].Wait[0] != chain.Main.Wait || main.Batches[0].WaitStages[0] != gpu.StageColorAttachmentOutput {
			t.Fatalf("frame %d: main submission = %+v", n, main.Batches[0])
		}
		if over.Batches[0].Wait[0] != main.Batches[0].Signal[0] {
			t.Fatalf("frame %d: overlay submission does not wait on main's signal", n)
		}
		if present.Batches[0].Wait[0] != over.Batches[0].Signal[0] || present.Batches[0].WaitStages[0] != gpu.StageBottomOfPipe {
			t.Fatalf("frame %d: present submission = %+v", n, present.Batches[0])
		}
	}

	if len(f.dev.Violations) != 0 {
		t.Fatalf("violations: %v", f.dev.Violations)
	}
}

func TestPresentTransitionIsDefensive(t *testing.T) {
	f := newFixture(t)

	f.frame(t, 0, gpu.LayoutPresentSrc)
	presentCmd := f.manager.Image(0).PresentCommands.(*gputest.CommandBuffer)
	if len(presentCmd.Commands) != 0 {
		t.Fatalf("present hop recorded %v for a presentable image", presentCmd.Ops())
	}

	f.frame(t, 1, gpu.LayoutColorAttachment)
	presentCmd = f.manager.Image(1).PresentCommands.(*gputest.CommandBuffer)
	barriers := presentCmd.Barriers(f.manager.Image(1).Handle)
	if len(barriers) != 1 || barriers[0].OldLayout != gpu.LayoutColorAttachment || barriers[0].NewLayout != gpu.LayoutPresentSrc {
		t.Fatalf("present hop barriers = %+v", barriers)
	}
	if f.manager.CurrentLayout(1) != gpu.LayoutPresentSrc {
		t.Errorf("tracked layout = %s", f.manager.CurrentLayout(1))
	}
}

// A present hop that fails to record leaves the image's fence signaled, so
// the image can be presented again afterwards.
func TestFailedPresentRecordingKeepsFenceSignaled(t *testing.T) {
	f := newFixture(t)

	slot, err := f.pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %+v", err)
	}
	if err := f.pool.Reset(slot); err != nil {
		t.Fatalf("Reset: %+v", err)
	}
	_ = slot.Commands.Begin()
	_ = slot.Commands.End()

	f.dev.Errors["End"] = errors.New("recording failed")
	if _, err := f.sched.Submit(slot, 0); err == nil {
		t.Fatal("Submit succeeded with failing present recording")
	}
	f.pool.Submitted(slot)
	if !f.manager.Image(0).PresentIdle.(*gputest.Fence).Signaled {
		t.Fatal("present fence unsignaled without a submission")
	}

	delete(f.dev.Errors, "End")
	f.frame(t, 0, gpu.LayoutColorAttachment)
	if len(f.dev.Violations) != 0 {
		t.Fatalf("violations: %v", f.dev.Violations)
	}
}

func TestRunComputeBlocksUntilDone(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		var recorded gpu.CommandBuffer
		err := f.sched.RunCompute(func(cmd gpu.CommandBuffer) error {
			recorded = cmd
			if err := cmd.Begin(); err != nil {
				return err
			}
			cmd.Dispatch(1, 1, 1)
			return cmd.End()
		})
		if err != nil {
			t.Fatalf("RunCompute: %+v", err)
		}
		if recorded.(*gputest.CommandBuffer).InFlight() {
			t.Fatal("compute work still pending after RunCompute")
		}
	}

	if len(f.dev.Blocked) != 3 {
		t.Errorf("compute waits blocked %d times, want 3", len(f.dev.Blocked))
	}
	for _, s := range f.dev.Submits {
		if len(s.Batches[0].Wait) != 0 {
			t.Errorf("compute submission waits on %v", s.Batches[0].Wait)
		}
	}
	if len(f.dev.Violations) != 0 {
		t.Fatalf("violations: %v", f.dev.Violations)
	}
}

func TestDestroyReleasesComputeResources(t *testing.T) {
	f := newFixture(t)
	f.sched.Destroy()
	f.pool.Destroy()
	f.manager.Destroy()
	if live := f.dev.Live(); len(live) != 0 {
		t.Fatalf("leaked: %v", live)
	}
}
