package swapchain_test

import (
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/frameloop/internal/gpu"
	"github.com/vkngwrapper/frameloop/internal/gpu/gputest"
	"github.com/vkngwrapper/frameloop/internal/swapchain"
)

var defaultOptions = swapchain.Options{
	Format:              gpu.SurfaceFormat{Format: gputest.FormatBGRA8SRGB, ColorSpace: gputest.ColorSpaceSRGB},
	PresentMode:         gputest.PresentModeMailbox,
	FallbackPresentMode: gputest.PresentModeFIFO,
}

func newManager(t *testing.T, extent gpu.Extent) (*swapchain.Manager, *gputest.Device, *gputest.Surface) {
	t.Helper()
	dev := gputest.NewDevice()
	surface := gputest.NewSurface(dev, extent)
	return swapchain.New(dev, surface, defaultOptions, gputest.Logger(t)), dev, surface
}

func TestCreateBuildsGeneration(t *testing.T) {
	m, dev, surface := newManager(t, gpu.Extent{Width: 1280, Height: 720})

	if err := m.Create(gpu.Extent{Width: 1280, Height: 720}); err != nil {
		t.Fatalf("Create: %+v", err)
	}

	if m.Generation() != 1 {
		t.Errorf("generation = %d, want 1", m.Generation())
	}
	if m.ImageCount() != 3 {
		t.Errorf("image count = %d, want min+1 = 3", m.ImageCount())
	}
	if got := m.Extent(); got != (gpu.Extent{Width: 1280, Height: 720}) {
		t.Errorf("extent = %s", got)
	}
	if got := surface.Last().Info.PresentMode; got != gputest.PresentModeMailbox {
		t.Errorf("present mode = %d, want mailbox", got)
	}

	seen := map[gpu.Semaphore]bool{}
	for i := 0; i < m.ImageCount(); i++ {
		if got := m.CurrentLayout(i); got != gpu.LayoutUndefined {
			t.Errorf("image %d layout = %s, want Undefined", i, got)
		}
		img := m.Image(i)
		for _, sem := range []gpu.Semaphore{img.RenderComplete, img.OverlayComplete, img.PresentReady} {
			if sem == nil || seen[sem] {
				t.Fatalf("image %d has a missing or shared semaphore", i)
			}
			seen[sem] = true
		}
		if img.PresentCommands == nil || img.PresentIdle == nil || img.Framebuffer == nil || img.View == nil {
			t.Fatalf("image %d is missing per-image resources", i)
		}
	}

	m.Destroy()
	if live := dev.Live(); len(live) != 0 {
		t.Fatalf("leaked after Destroy: %v", live)
	}
	if len(dev.Violations) != 0 {
		t.Fatalf("violations: %v", dev.Violations)
	}
}

func TestChooseExtentAndCount(t *testing.T) {
	tests := []struct {
		name      string
		current   gpu.Extent
		window    gpu.Extent
		min, max  int
		want      gpu.Extent
		wantCount int
	}{
		{
			name:      "surface decides",
			current:   gpu.Extent{Width: 640, Height: 480},
			window:    gpu.Extent{Width: 800, Height: 600},
			min:       2,
			max:       0,
			want:      gpu.Extent{Width: 640, Height: 480},
			wantCount: 3,
		},
		{
			name:      "window clamped",
			current:   gpu.Extent{Width: gpu.UndefinedExtent, Height: gpu.UndefinedExtent},
			window:    gpu.Extent{Width: 10000, Height: 600},
			min:       3,
			max:       3,
			want:      gpu.Extent{Width: 8192, Height: 600},
			wantCount: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, surface := newManager(t, tt.current)
			surface.Capabilities.MinImageCount = tt.min
			surface.Capabilities.MaxImageCount = tt.max

			if err := m.Create(tt.window); err != nil {
				t.Fatalf("Create: %+v", err)
			}
			if m.Extent() != tt.want {
				t.Errorf("extent = %s, want %s", m.Extent(), tt.want)
			}
			if m.ImageCount() != tt.wantCount {
				t.Errorf("count = %d, want %d", m.ImageCount(), tt.wantCount)
			}
		})
	}
}

func TestFallbacks(t *testing.T) {
	m, _, surface := newManager(t, gpu.Extent{Width: 64, Height: 64})
	surface.Formats = []gpu.SurfaceFormat{{Format: gputest.FormatRGBA8UNorm, ColorSpace: gputest.ColorSpaceSRGB}}
	surface.PresentModes = []gpu.PresentMode{gputest.PresentModeFIFO}

	if err := m.Create(gpu.Extent{Width: 64, Height: 64}); err != nil {
		t.Fatalf("Create: %+v", err)
	}
	if m.Format().Format != gputest.FormatRGBA8UNorm {
		t.Errorf("format = %d, want first offered", m.Format().Format)
	}
	if got := surface.Last().Info.PresentMode; got != gputest.PresentModeFIFO {
		t.Errorf("present mode = %d, want FIFO", got)
	}
}

func TestUnsupportedSurfaceIsConfigurationError(t *testing.T) {
	m, dev, surface := newManager(t, gpu.Extent{Width: 64, Height: 64})
	surface.PresentModes = nil

	err := m.Create(gpu.Extent{Width: 64, Height: 64})
	if !errors.Is(err, gpu.ErrConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
	if live := dev.Live(); len(live) != 0 {
		t.Fatalf("created resources on failure: %v", live)
	}
}

func TestZeroExtentIsStale(t *testing.T) {
	m, dev, _ := newManager(t, gpu.Extent{})

	err := m.Create(gpu.Extent{})
	if !errors.Is(err, gpu.ErrStale) {
		t.Fatalf("err = %v, want stale", err)
	}
	if m.Alive() || len(dev.Live()) != 0 {
		t.Fatalf("zero extent created resources: %v", dev.Live())
	}
}

func TestPartialCreateIsReleased(t *testing.T) {
	// Each fails after the present command buffers of every image exist.
	for _, op := range []string{"CreateImageView", "CreateFramebuffer", "CreateSemaphore", "CreateFence"} {
		t.Run(op, func(t *testing.T) {
			m, dev, _ := newManager(t, gpu.Extent{Width: 64, Height: 64})
			dev.Errors[op] = errors.New("out of host memory")

			if err := m.Create(gpu.Extent{Width: 64, Height: 64}); err == nil {
				t.Fatalf("Create succeeded with failing %s", op)
			}
			if m.Alive() {
				t.Fatal("manager still holds a swapchain")
			}
			if live := dev.Live(); len(live) != 0 {
				t.Fatalf("leaked after failed Create: %v", live)
			}
			if m.Generation() != 0 {
				t.Fatalf("generation advanced on failure: %d", m.Generation())
			}
		})
	}
}

func TestCreateTwiceFails(t *testing.T) {
	m, _, _ := newManager(t, gpu.Extent{Width: 64, Height: 64})
	if err := m.Create(gpu.Extent{Width: 64, Height: 64}); err != nil {
		t.Fatalf("Create: %+v", err)
	}
	if err := m.Create(gpu.Extent{Width: 64, Height: 64}); err == nil {
		t.Fatal("second Create over a live generation succeeded")
	}
}

func TestTransitionTracksLayout(t *testing.T) {
	m, dev, _ := newManager(t, gpu.Extent{Width: 64, Height: 64})
	if err := m.Create(gpu.Extent{Width: 64, Height: 64}); err != nil {
		t.Fatalf("Create: %+v", err)
	}
	cmds, _ := dev.AllocateCommandBuffers(1)
	cmd := cmds[0].(*gputest.CommandBuffer)
	_ = cmd.Begin()

	steps := []gpu.Layout{gpu.LayoutColorAttachment, gpu.LayoutPresentSrc, gpu.LayoutTransferDst, gpu.LayoutPresentSrc}
	for _, layout := range steps {
		if err := m.Transition(cmd, 1, layout, gpu.StageTopOfPipe, gpu.StageBottomOfPipe, 0, 0); err != nil {
			t.Fatalf("Transition: %+v", err)
		}
	}

	barriers := cmd.Barriers(m.Image(1).Handle)
	if len(barriers) != len(steps) {
		t.Fatalf("recorded %d barriers, want %d", len(barriers), len(steps))
	}
	prev := gpu.LayoutUndefined
	for i, b := range barriers {
		if b.OldLayout != prev || b.NewLayout != steps[i] {
			t.Errorf("barrier %d: %s -> %s, want %s -> %s", i, b.OldLayout, b.NewLayout, prev, steps[i])
		}
		prev = b.NewLayout
	}
	if m.CurrentLayout(1) != gpu.LayoutPresentSrc {
		t.Errorf("tracked layout = %s", m.CurrentLayout(1))
	}
	if m.CurrentLayout(0) != gpu.LayoutUndefined {
		t.Errorf("untouched image layout changed to %s", m.CurrentLayout(0))
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	m, dev, _ := newManager(t, gpu.Extent{Width: 64, Height: 64})
	if err := m.Create(gpu.Extent{Width: 64, Height: 64}); err != nil {
		t.Fatalf("Create: %+v", err)
	}
	m.Destroy()
	m.Destroy()
	if len(dev.Violations) != 0 {
		t.Fatalf("violations: %v", dev.Violations)
	}
}
