// Package window wraps the SDL2 window, its events and the camera controls.
package window

import (
	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/frameloop/internal/config"
	"github.com/vkngwrapper/frameloop/internal/gpu"
	"github.com/vkngwrapper/frameloop/internal/scene"
)

// Window must only be used from the thread that created it.
type Window struct {
	win    *sdl.Window
	logger *slog.Logger

	closed  bool
	resized bool

	lookX, lookY float32
}

func New(cfg config.WindowConfig, logger *slog.Logger) (*Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, errors.Wrap(err, "initialize SDL")
	}

	win, err := sdl.CreateWindow(cfg.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Width), int32(cfg.Height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return nil, errors.WithHint(errors.Wrap(err, "create window"), "SDL must be built with Vulkan support")
	}

	sdl.SetRelativeMouseMode(true)

	logger.Info("window created", slog.String("title", cfg.Title), slog.Int("width", cfg.Width), slog.Int("height", cfg.Height))
	return &Window{win: win, logger: logger}, nil
}

// SDL exposes the native window for surface creation.
func (w *Window) SDL() *sdl.Window { return w.win }

// Extent is the drawable size in pixels, zero while minimized.
func (w *Window) Extent() gpu.Extent {
	if w.win.GetFlags()&sdl.WINDOW_MINIMIZED != 0 {
		return gpu.Extent{}
	}
	width, height := w.win.VulkanGetDrawableSize()
	return gpu.Extent{Width: int(width), Height: int(height)}
}

// PollEvents handles every queued event without blocking.
func (w *Window) PollEvents() {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		w.handle(event)
	}
}

// WaitEvents blocks for one event, then drains the queue.
func (w *Window) WaitEvents() {
	if event := sdl.WaitEvent(); event != nil {
		w.handle(event)
	}
	w.PollEvents()
}

func (w *Window) handle(event sdl.Event) {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		w.closed = true
	case *sdl.KeyboardEvent:
		if e.Type == sdl.KEYDOWN && e.Keysym.Sym == sdl.K_ESCAPE {
			w.closed = true
		}
	case *sdl.MouseMotionEvent:
		w.lookX += float32(e.XRel)
		w.lookY -= float32(e.YRel)
	case *sdl.WindowEvent:
		switch e.Event {
		case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED, sdl.WINDOWEVENT_MINIMIZED, sdl.WINDOWEVENT_RESTORED:
			w.resized = true
		}
	}
}

func (w *Window) ShouldClose() bool { return w.closed }

// Close makes ShouldClose report true.
func (w *Window) Close() { w.closed = true }

// Interrupt queues a quit event, waking a blocked WaitEvents. It may be
// called from any goroutine.
func (w *Window) Interrupt() {
	_, err := sdl.PushEvent(&sdl.QuitEvent{Type: sdl.QUIT})
	if err != nil {
		w.logger.Warn("could not queue quit event", slog.Any("error", err))
	}
}

// ResizePending reports, and clears, whether the window changed size since
// the last call.
func (w *Window) ResizePending() bool {
	r := w.resized
	w.resized = false
	return r
}

// Input samples the movement keys and takes the mouse motion accumulated
// since the last call.
func (w *Window) Input() scene.Input {
	keys := sdl.GetKeyboardState()
	in := scene.Input{
		Forward: keys[sdl.SCANCODE_W] != 0,
		Back:    keys[sdl.SCANCODE_S] != 0,
		Left:    keys[sdl.SCANCODE_A] != 0,
		Right:   keys[sdl.SCANCODE_D] != 0,
		Up:      keys[sdl.SCANCODE_Q] != 0,
		Down:    keys[sdl.SCANCODE_E] != 0,
		LookX:   w.lookX,
		LookY:   w.lookY,
	}
	w.lookX, w.lookY = 0, 0
	return in
}

// Painting reports whether the left mouse button is held.
func (w *Window) Painting() bool {
	_, _, state := sdl.GetMouseState()
	return state&sdl.ButtonLMask() != 0
}

func (w *Window) Destroy() {
	if w.win != nil {
		w.win.Destroy()
		w.win = nil
	}
	sdl.Quit()
}
