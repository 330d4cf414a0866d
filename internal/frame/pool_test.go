package frame_test

import (
	"testing"

	"github.com/vkngwrapper/frameloop/internal/frame"
	"github.com/vkngwrapper/frameloop/internal/gpu"
	"github.com/vkngwrapper/frameloop/internal/gpu/gputest"
)

func runFrame(t *testing.T, dev *gputest.Device, pool *frame.Pool) (*frame.Slot, *gputest.Batch) {
	t.Helper()

	slot, err := pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %+v", err)
	}
	if err := pool.Reset(slot); err != nil {
		t.Fatalf("Reset: %+v", err)
	}
	if err := slot.Commands.Begin(); err != nil {
		t.Fatalf("Begin: %+v", err)
	}
	if err := slot.Commands.End(); err != nil {
		t.Fatalf("End: %+v", err)
	}
	err = dev.Queue().Submit(slot.InFlight, gpu.Submission{Commands: []gpu.CommandBuffer{slot.Commands}})
	if err != nil {
		t.Fatalf("Submit: %+v", err)
	}
	pool.Submitted(slot)

	return slot, dev.Submits[len(dev.Submits)-1]
}

// Two slots, five frames, GPU work finishing only when waited on: the third
// frame must block on the first frame's completion and leave the second
// frame's submission pending.
func TestAcquireWaitsForSlotOwner(t *testing.T) {
	dev := gputest.NewDevice()
	pool, err := frame.New(dev, 2, gputest.Logger(t))
	if err != nil {
		t.Fatalf("New: %+v", err)
	}

	var batches []*gputest.Batch
	var slots []int
	for f := 1; f <= 5; f++ {
		blockedBefore := len(dev.Blocked)
		slot, batch := runFrame(t, dev, pool)
		slots = append(slots, slot.Index)

		if f >= 3 {
			owner := batches[f-3]
			if len(dev.Blocked) != blockedBefore+1 {
				t.Fatalf("frame %d did not block on its slot", f)
			}
			if dev.Blocked[len(dev.Blocked)-1] != owner.Fence.Name {
				t.Fatalf("frame %d blocked on %s, want %s (frame %d)", f, dev.Blocked[len(dev.Blocked)-1], owner.Fence.Name, f-2)
			}
			previous := batches[f-2]
			if !isPending(dev, previous) {
				t.Fatalf("frame %d released frame %d's submission too", f, f-1)
			}
		} else if len(dev.Blocked) != blockedBefore {
			t.Fatalf("frame %d blocked on a fresh slot", f)
		}
		batches = append(batches, batch)
	}

	want := []int{0, 1, 0, 1, 0}
	for i := range want {
		if slots[i] != want[i] {
			t.Fatalf("slot sequence = %v, want %v", slots, want)
		}
	}
	if len(dev.Violations) != 0 {
		t.Fatalf("violations: %v", dev.Violations)
	}
}

func isPending(dev *gputest.Device, b *gputest.Batch) bool {
	for _, p := range dev.Pending {
		if p == b {
			return true
		}
	}
	return false
}

// No slot's recording context is reset or begun while its previous
// submission is still pending.
func TestRecordingContextNeverReusedInFlight(t *testing.T) {
	for _, n := range []int{1, 2, 3} {
		dev := gputest.NewDevice()
		pool, err := frame.New(dev, n, gputest.Logger(t))
		if err != nil {
			t.Fatalf("New: %+v", err)
		}
		for f := 0; f < 10; f++ {
			runFrame(t, dev, pool)
		}
		if len(dev.Violations) != 0 {
			t.Fatalf("n=%d violations: %v", n, dev.Violations)
		}
		if len(dev.Pending) > n {
			t.Fatalf("n=%d: %d submissions pending, CPU ran ahead", n, len(dev.Pending))
		}
	}
}

func TestReleaseReturnsSameSlot(t *testing.T) {
	dev := gputest.NewDevice()
	pool, err := frame.New(dev, 2, gputest.Logger(t))
	if err != nil {
		t.Fatalf("New: %+v", err)
	}

	runFrame(t, dev, pool)

	slot, err := pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %+v", err)
	}
	if err := pool.Release(slot); err != nil {
		t.Fatalf("Release: %+v", err)
	}

	again, err := pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %+v", err)
	}
	if again != slot {
		t.Fatalf("acquired slot %d after release of %d", again.Index, slot.Index)
	}
}

func TestReleaseAfterResetFails(t *testing.T) {
	dev := gputest.NewDevice()
	pool, err := frame.New(dev, 2, gputest.Logger(t))
	if err != nil {
		t.Fatalf("New: %+v", err)
	}

	slot, err := pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %+v", err)
	}
	if err := pool.Reset(slot); err != nil {
		t.Fatalf("Reset: %+v", err)
	}
	if err := pool.Release(slot); err == nil {
		t.Fatal("Release of a reset slot succeeded")
	}
}

func TestDoubleAcquireFails(t *testing.T) {
	dev := gputest.NewDevice()
	pool, err := frame.New(dev, 2, gputest.Logger(t))
	if err != nil {
		t.Fatalf("New: %+v", err)
	}
	if _, err := pool.Acquire(); err != nil {
		t.Fatalf("Acquire: %+v", err)
	}
	if _, err := pool.Acquire(); err == nil {
		t.Fatal("second Acquire without submit or release succeeded")
	}
}

func TestDestroyReleasesEverything(t *testing.T) {
	dev := gputest.NewDevice()
	pool, err := frame.New(dev, 3, gputest.Logger(t))
	if err != nil {
		t.Fatalf("New: %+v", err)
	}
	pool.Destroy()
	if live := dev.Live(); len(live) != 0 {
		t.Fatalf("leaked: %v", live)
	}
}
