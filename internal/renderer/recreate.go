package renderer

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/frameloop/internal/gpu"
	"github.com/vkngwrapper/frameloop/internal/swapchain"
)

type State int

const (
	Stable State = iota
	Draining
	Rebuilding
)

func (s State) String() string {
	switch s {
	case Stable:
		return "stable"
	case Draining:
		return "draining"
	case Rebuilding:
		return "rebuilding"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Window is the part of the window the controller needs.
type Window interface {
	// Extent is the current drawable size; zero while minimized.
	Extent() gpu.Extent
	// WaitEvents blocks until at least one window event arrives.
	WaitEvents()
	// ShouldClose reports whether the user asked to quit.
	ShouldClose() bool
}

// ErrClosed is returned when the window is closed while waiting for it to
// regain area.
var ErrClosed = errors.New("window closed")

// WaitForArea blocks on window events until the window has a drawable area.
func WaitForArea(w Window) (gpu.Extent, error) {
	extent := w.Extent()
	for extent.IsZero() {
		if w.ShouldClose() {
			return gpu.Extent{}, ErrClosed
		}
		w.WaitEvents()
		extent = w.Extent()
	}
	return extent, nil
}

// GenerationBound is state whose validity is tied to the swapchain
// generation. Dependents are released newest first and rebuilt in
// registration order.
type GenerationBound interface {
	ReleaseGeneration()
	BuildGeneration(manager *swapchain.Manager) error
}

// EventLog receives human readable lifecycle events.
type EventLog interface {
	Logf(format string, args ...interface{})
}

// Controller is the only owner of swapchain generation transitions.
type Controller struct {
	device     gpu.Device
	manager    *swapchain.Manager
	window     Window
	dependents []GenerationBound
	logger     *slog.Logger

	// Events, if set, is told about every completed recreation.
	Events EventLog

	state State
}

func NewController(device gpu.Device, manager *swapchain.Manager, window Window, logger *slog.Logger, dependents ...GenerationBound) *Controller {
	return &Controller{
		device:     device,
		manager:    manager,
		window:     window,
		dependents: dependents,
		logger:     logger,
	}
}

func (c *Controller) State() State { return c.state }

// Recreate drains the device and rebuilds the swapchain generation and its
// dependents. While the window has no area it waits for events before
// touching anything. A rebuilt surface that is already stale, or a window
// that resized during the rebuild, is rebuilt again. Closing the window
// while it has no area ends the wait with ErrClosed.
func (c *Controller) Recreate() error {
	c.state = Draining
	c.logger.Info("swapchain recreation started", slog.Int("generation", c.manager.Generation()))

	extent, err := WaitForArea(c.window)
	if err != nil {
		return err
	}

	err = c.device.WaitIdle()
	if err != nil {
		return errors.Wrap(err, "drain device")
	}

	c.state = Rebuilding
	for i := len(c.dependents) - 1; i >= 0; i-- {
		c.dependents[i].ReleaseGeneration()
	}

	for {
		c.manager.Destroy()

		err = c.manager.Create(extent)
		if errors.Is(err, gpu.ErrStale) {
			c.logger.Debug("rebuilt surface is stale, waiting", slog.String("extent", extent.String()))
			c.window.WaitEvents()
			if c.window.ShouldClose() {
				return ErrClosed
			}
			extent, err = WaitForArea(c.window)
			if err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return errors.Wrap(err, "rebuild swapchain")
		}

		current := c.window.Extent()
		if current == extent {
			break
		}
		c.logger.Debug("window resized during rebuild",
			slog.String("built", extent.String()),
			slog.String("window", current.String()))
		extent, err = WaitForArea(c.window)
		if err != nil {
			return err
		}
	}

	for _, dependent := range c.dependents {
		err = dependent.BuildGeneration(c.manager)
		if err != nil {
			return errors.Wrap(err, "rebuild swapchain dependents")
		}
	}

	c.state = Stable
	c.logger.Info("swapchain recreated",
		slog.Int("generation", c.manager.Generation()),
		slog.String("extent", c.manager.Extent().String()),
		slog.Int("images", c.manager.ImageCount()))
	if c.Events != nil {
		c.Events.Logf("rebuilt gen %d %s", c.manager.Generation(), c.manager.Extent())
	}

	return nil
}
