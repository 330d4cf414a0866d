// Package clock measures frame times and frames per second.
package clock

import (
	"time"

	"github.com/loov/hrtime"
)

// Clock measures frame deltas and frames per second averaged over windows of
// at least Window.
type Clock struct {
	now    func() time.Duration
	Window time.Duration

	start time.Duration
	last  time.Duration

	windowStart time.Duration
	frames      int
	fps         float64
}

func New() *Clock {
	return NewWithSource(hrtime.Now)
}

// NewWithSource builds a clock over a monotonic time source.
func NewWithSource(now func() time.Duration) *Clock {
	t := now()
	return &Clock{
		now:         now,
		Window:      time.Second,
		start:       t,
		last:        t,
		windowStart: t,
	}
}

// Tick marks the start of a frame. It returns the seconds since the previous
// Tick and whether the FPS value was refreshed.
func (c *Clock) Tick() (float32, bool) {
	t := c.now()
	dt := t - c.last
	c.last = t

	c.frames++
	refreshed := false
	if elapsed := t - c.windowStart; elapsed >= c.Window {
		c.fps = float64(c.frames) / elapsed.Seconds()
		c.frames = 0
		c.windowStart = t
		refreshed = true
	}

	return float32(dt.Seconds()), refreshed
}

// Elapsed is the seconds between creation and the last Tick.
func (c *Clock) Elapsed() float64 {
	return (c.last - c.start).Seconds()
}

func (c *Clock) FPS() float64 { return c.fps }
