package gpu

import "github.com/cockroachdb/errors"

// Error categories. Backends mark every failure with one of these; callers
// test with errors.Is.
var (
	// ErrConfiguration covers a missing presentable surface, queue, format or
	// present mode. Fatal at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrStale is a presentation surface that no longer matches the
	// swapchain. Recovered by recreation, never fatal on its own.
	ErrStale = errors.New("presentation surface is stale")
	// ErrExhausted is a fixed-capacity pool or allocation running out.
	ErrExhausted = errors.New("resource exhausted")
	// ErrDeviceLost is an unrecoverable GPU context.
	ErrDeviceLost = errors.New("device lost")
	// ErrDriver is any other driver failure.
	ErrDriver = errors.New("driver error")
)

// Category returns the sentinel err is marked with, or nil.
func Category(err error) error {
	for _, sentinel := range []error{ErrConfiguration, ErrStale, ErrExhausted, ErrDeviceLost, ErrDriver} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

// Configurationf returns a new configuration error.
func Configurationf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfiguration)
}
