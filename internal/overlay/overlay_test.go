package overlay

import (
	"image/color"
	"testing"

	"github.com/vkngwrapper/frameloop/internal/gpu"
	"github.com/vkngwrapper/frameloop/internal/gpu/gputest"
	"github.com/vkngwrapper/frameloop/internal/swapchain"
)

func newManager(t *testing.T, extent gpu.Extent) (*swapchain.Manager, *gputest.Device) {
	t.Helper()
	dev := gputest.NewDevice()
	surface := gputest.NewSurface(dev, extent)
	m := swapchain.New(dev, surface, swapchain.Options{
		Format:              gpu.SurfaceFormat{Format: gputest.FormatBGRA8SRGB, ColorSpace: gputest.ColorSpaceSRGB},
		FallbackPresentMode: gputest.PresentModeFIFO,
	}, gputest.Logger(t))
	if err := m.Create(extent); err != nil {
		t.Fatalf("Create: %+v", err)
	}
	return m, dev
}

func TestCanvasScrollWraps(t *testing.T) {
	c := NewCanvas(4, 3)
	red := color.RGBA{R: 255, A: 255}
	c.SetPixel(1, 0, red)
	c.SetPixel(9, 9, red)

	if c.At(1, 0) != red {
		t.Fatalf("At(1,0) = %v", c.At(1, 0))
	}

	c.SetScroll(1)
	if c.At(1, 2) != red {
		t.Errorf("scrolled row 0 not shown at the bottom: %v", c.At(1, 2))
	}
	if c.At(1, 0) == red {
		t.Error("scrolled row still shown at the top")
	}
}

func TestCanvasPackOrder(t *testing.T) {
	c := NewCanvas(2, 2)
	c.SetPixel(1, 1, color.RGBA{R: 1, G: 2, B: 3, A: 4})

	dst := make([]byte, 4)
	c.Pack(dst, gpu.Rect{X: 1, Y: 1, Width: 1, Height: 1}, OrderBGRA)
	if dst[0] != 3 || dst[1] != 2 || dst[2] != 1 || dst[3] != 4 {
		t.Errorf("BGRA = %v", dst)
	}

	c.Pack(dst, gpu.Rect{X: 1, Y: 1, Width: 1, Height: 1}, OrderRGBA)
	if dst[0] != 1 || dst[2] != 3 {
		t.Errorf("RGBA = %v", dst)
	}
}

func TestHUDRenderChainsSignals(t *testing.T) {
	m, dev := newManager(t, gpu.Extent{Width: 320, Height: 240})
	hud, err := NewHUD(dev, m, HUDOptions{X: 10, Y: 10, Order: OrderBGRA}, gputest.Logger(t))
	if err != nil {
		t.Fatalf("NewHUD: %+v", err)
	}
	m.SetLayout(1, gpu.LayoutPresentSrc)

	wait := m.Image(1).RenderComplete
	done, err := hud.Render(1, wait)
	if err != nil {
		t.Fatalf("Render: %+v", err)
	}
	if done != m.Image(1).OverlayComplete {
		t.Fatal("Render did not return the image's overlay-complete signal")
	}

	submit := dev.Submits[len(dev.Submits)-1]
	batch := submit.Batches[0]
	if len(batch.Wait) != 1 || batch.Wait[0] != wait {
		t.Errorf("HUD submission waits on %v", batch.Wait)
	}
	if len(batch.Signal) != 1 || batch.Signal[0] != done {
		t.Errorf("HUD submission signals %v", batch.Signal)
	}
	if submit.Fence == nil {
		t.Error("HUD submission has no fence")
	}

	cmd := batch.Commands[0].(*gputest.CommandBuffer)
	barriers := cmd.Barriers(m.Image(1).Handle)
	if len(barriers) != 2 ||
		barriers[0].OldLayout != gpu.LayoutPresentSrc || barriers[0].NewLayout != gpu.LayoutTransferDst ||
		barriers[1].OldLayout != gpu.LayoutTransferDst || barriers[1].NewLayout != gpu.LayoutPresentSrc {
		t.Fatalf("barriers = %+v", barriers)
	}
	if m.CurrentLayout(1) != gpu.LayoutPresentSrc {
		t.Errorf("tracked layout = %s", m.CurrentLayout(1))
	}

	var copied *gputest.Command
	for i := range cmd.Commands {
		if cmd.Commands[i].Op == "copy-buffer-to-image" {
			copied = &cmd.Commands[i]
		}
	}
	if copied == nil {
		t.Fatal("no copy recorded")
	}
	if want := (gpu.Rect{X: 10, Y: 10, Width: Width, Height: Height}); copied.Region != want {
		t.Errorf("copy region = %+v, want %+v", copied.Region, want)
	}
	if copied.Dst != m.Image(1).Handle {
		t.Errorf("copy target = %v", copied.Dst)
	}
	if len(dev.Violations) != 0 {
		t.Fatalf("violations: %v", dev.Violations)
	}
}

func TestHUDDrawsStats(t *testing.T) {
	m, dev := newManager(t, gpu.Extent{Width: 320, Height: 240})
	hud, err := NewHUD(dev, m, HUDOptions{Order: OrderBGRA}, gputest.Logger(t))
	if err != nil {
		t.Fatalf("NewHUD: %+v", err)
	}
	hud.SetFPS(59.9)

	if _, err := hud.Render(0, m.Image(0).RenderComplete); err != nil {
		t.Fatalf("Render: %+v", err)
	}

	staging := hud.images[0].staging.Bytes()
	if staging[0] != background.B || staging[2] != background.R || staging[3] != 255 {
		t.Errorf("first pixel = %v, want background in BGRA", staging[:4])
	}

	text := 0
	for i := 0; i < Width*headerHeight*4; i += 4 {
		if staging[i] != background.B || staging[i+1] != background.G || staging[i+2] != background.R {
			text++
		}
	}
	if text == 0 {
		t.Error("header has no text pixels")
	}
}

func TestHUDReusesImageResourcesAfterCompletion(t *testing.T) {
	m, dev := newManager(t, gpu.Extent{Width: 320, Height: 240})
	hud, err := NewHUD(dev, m, HUDOptions{}, gputest.Logger(t))
	if err != nil {
		t.Fatalf("NewHUD: %+v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := hud.Render(2, m.Image(2).RenderComplete); err != nil {
			t.Fatalf("Render: %+v", err)
		}
	}

	if len(dev.Blocked) != 1 {
		t.Errorf("second render blocked %d times, want once on the first render", len(dev.Blocked))
	}
	if len(dev.Violations) != 0 {
		t.Fatalf("violations: %v", dev.Violations)
	}
}

// A failed recording leaves the image's fence signaled, so the next render
// of that image does not wait forever.
func TestHUDRecordFailureKeepsFenceSignaled(t *testing.T) {
	m, dev := newManager(t, gpu.Extent{Width: 320, Height: 240})
	hud, err := NewHUD(dev, m, HUDOptions{}, gputest.Logger(t))
	if err != nil {
		t.Fatalf("NewHUD: %+v", err)
	}

	dev.Errors["End"] = errString("recording failed")
	if _, err := hud.Render(1, m.Image(1).RenderComplete); err == nil {
		t.Fatal("Render succeeded with failing recording")
	}
	if !hud.images[1].idle.(*gputest.Fence).Signaled {
		t.Fatal("fence unsignaled without a submission")
	}
	if len(dev.Submits) != 0 {
		t.Fatalf("failed render submitted %d times", len(dev.Submits))
	}

	delete(dev.Errors, "End")
	if _, err := hud.Render(1, m.Image(1).RenderComplete); err != nil {
		t.Fatalf("Render after failure: %+v", err)
	}
	if len(dev.Violations) != 0 {
		t.Fatalf("violations: %v", dev.Violations)
	}
}

func TestHUDClipsToExtent(t *testing.T) {
	m, dev := newManager(t, gpu.Extent{Width: 100, Height: 50})
	hud, err := NewHUD(dev, m, HUDOptions{X: 10, Y: 10}, gputest.Logger(t))
	if err != nil {
		t.Fatalf("NewHUD: %+v", err)
	}
	if got, want := hud.region(), (gpu.Rect{X: 10, Y: 10, Width: 90, Height: 40}); got != want {
		t.Fatalf("region = %+v, want %+v", got, want)
	}

	hud.opts.X = 200
	if got := hud.region(); got.Width != 0 {
		t.Fatalf("region outside the image = %+v", got)
	}
	if _, err := hud.Render(0, m.Image(0).RenderComplete); err != nil {
		t.Fatalf("Render: %+v", err)
	}
}

func TestHUDGenerationRebuild(t *testing.T) {
	m, dev := newManager(t, gpu.Extent{Width: 320, Height: 240})
	hud, err := NewHUD(dev, m, HUDOptions{}, gputest.Logger(t))
	if err != nil {
		t.Fatalf("NewHUD: %+v", err)
	}
	if err := hud.BuildGeneration(m); err == nil {
		t.Fatal("BuildGeneration over live resources succeeded")
	}

	hud.ReleaseGeneration()
	m.Destroy()
	if err := m.Create(gpu.Extent{Width: 320, Height: 240}); err != nil {
		t.Fatalf("Create: %+v", err)
	}
	if err := hud.BuildGeneration(m); err != nil {
		t.Fatalf("BuildGeneration: %+v", err)
	}
	if len(hud.images) != m.ImageCount() {
		t.Fatalf("%d HUD images for %d swapchain images", len(hud.images), m.ImageCount())
	}

	hud.ReleaseGeneration()
	m.Destroy()
	if live := dev.Live(); len(live) != 0 {
		t.Fatalf("leaked: %v", live)
	}
	if len(dev.Violations) != 0 {
		t.Fatalf("violations: %v", dev.Violations)
	}
}

func TestHUDBuildFailureReleases(t *testing.T) {
	m, dev := newManager(t, gpu.Extent{Width: 320, Height: 240})
	dev.Errors["CreateStagingBuffer"] = errString("out of device memory")

	if _, err := NewHUD(dev, m, HUDOptions{}, gputest.Logger(t)); err == nil {
		t.Fatal("NewHUD succeeded")
	}
	m.Destroy()
	if live := dev.Live(); len(live) != 0 {
		t.Fatalf("leaked: %v", live)
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func TestPassthroughForwardsSignal(t *testing.T) {
	m, dev := newManager(t, gpu.Extent{Width: 64, Height: 64})
	p := NewPassthrough(dev, m)

	done, err := p.Render(0, m.Image(0).RenderComplete)
	if err != nil {
		t.Fatalf("Render: %+v", err)
	}
	batch := dev.Submits[len(dev.Submits)-1].Batches[0]
	if done != m.Image(0).OverlayComplete || batch.Wait[0] != m.Image(0).RenderComplete || batch.Signal[0] != done {
		t.Fatalf("passthrough batch = %+v", batch)
	}
	if len(batch.Commands) != 0 {
		t.Errorf("passthrough recorded %d command buffers", len(batch.Commands))
	}
}
