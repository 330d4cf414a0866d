package gputest

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/frameloop/internal/gpu"
)

const (
	FormatBGRA8SRGB gpu.Format = iota + 1
	FormatRGBA8UNorm
)

const (
	ColorSpaceSRGB gpu.ColorSpace = iota + 1
)

const (
	PresentModeFIFO gpu.PresentMode = iota + 1
	PresentModeMailbox
)

// Surface is the fake gpu.Surface. Acquire and present outcomes are scripted
// per call; an exhausted script means PresentOK.
type Surface struct {
	dev *Device

	Capabilities gpu.SurfaceCapabilities
	Formats      []gpu.SurfaceFormat
	PresentModes []gpu.PresentMode

	// Follow, if set, is consulted on every Support query for the current
	// extent, emulating a window that resizes under the surface.
	Follow func() gpu.Extent

	AcquireScript []gpu.PresentResult
	PresentScript []gpu.PresentResult
	AcquireErr    error
	PresentErr    error

	Swapchains []*Swapchain
	Queries    int
	Acquires   int
	Presents   []Present
}

// Present is one recorded present request.
type Present struct {
	Swapchain  *Swapchain
	ImageIndex int
	Wait       gpu.Semaphore
}

func NewSurface(dev *Device, extent gpu.Extent) *Surface {
	return &Surface{
		dev: dev,
		Capabilities: gpu.SurfaceCapabilities{
			MinImageCount: 2,
			MaxImageCount: 8,
			CurrentExtent: extent,
			MinExtent:     gpu.Extent{Width: 1, Height: 1},
			MaxExtent:     gpu.Extent{Width: 8192, Height: 8192},
			TransferDst:   true,
		},
		Formats:      []gpu.SurfaceFormat{{Format: FormatBGRA8SRGB, ColorSpace: ColorSpaceSRGB}},
		PresentModes: []gpu.PresentMode{PresentModeFIFO, PresentModeMailbox},
	}
}

func (s *Surface) Support() (gpu.SurfaceSupport, error) {
	s.Queries++
	if err := s.dev.fail("Support"); err != nil {
		return gpu.SurfaceSupport{}, err
	}
	caps := s.Capabilities
	if s.Follow != nil {
		caps.CurrentExtent = s.Follow()
	}
	return gpu.SurfaceSupport{
		Capabilities: caps,
		Formats:      s.Formats,
		PresentModes: s.PresentModes,
	}, nil
}

func (s *Surface) CreateSwapchain(info gpu.SwapchainInfo) (gpu.Swapchain, error) {
	if err := s.dev.fail("CreateSwapchain"); err != nil {
		return nil, err
	}
	sc := &Swapchain{
		Object:  Object{Name: s.dev.name("swapchain")},
		surface: s,
		Info:    info,
	}
	for i := 0; i < info.ImageCount; i++ {
		sc.images = append(sc.images, Handle{Name: fmt.Sprintf("%s/image#%d", sc.Name, i)})
	}
	s.dev.track(&sc.Object)
	s.Swapchains = append(s.Swapchains, sc)
	s.dev.record("create %s %s x%d", sc.Name, info.Extent, info.ImageCount)
	return sc, nil
}

// Last returns the most recently created swapchain.
func (s *Surface) Last() *Swapchain {
	if len(s.Swapchains) == 0 {
		return nil
	}
	return s.Swapchains[len(s.Swapchains)-1]
}

// Swapchain is the fake gpu.Swapchain; images are handed out round-robin.
type Swapchain struct {
	Object
	surface *Surface
	Info    gpu.SwapchainInfo
	images  []gpu.Image
	next    int
}

func (sc *Swapchain) Images() ([]gpu.Image, error) {
	return append([]gpu.Image(nil), sc.images...), nil
}

func (sc *Swapchain) AcquireNextImage(signal gpu.Semaphore) (int, gpu.PresentResult, error) {
	s := sc.surface
	s.Acquires++
	if sc.Destroyed {
		return 0, gpu.PresentOK, errors.Newf("acquire on destroyed %s", sc.Name)
	}
	if s.AcquireErr != nil {
		return 0, gpu.PresentOK, s.AcquireErr
	}
	result := gpu.PresentOK
	if len(s.AcquireScript) > 0 {
		result = s.AcquireScript[0]
		s.AcquireScript = s.AcquireScript[1:]
	}
	if result == gpu.PresentStale {
		s.dev.record("acquire %s stale", sc.Name)
		return 0, result, nil
	}
	index := sc.next
	sc.next = (sc.next + 1) % len(sc.images)
	signal.(*Semaphore).Signals++
	s.dev.record("acquire %s image#%d %s", sc.Name, index, result)
	return index, result, nil
}

func (sc *Swapchain) Present(imageIndex int, wait gpu.Semaphore) (gpu.PresentResult, error) {
	s := sc.surface
	if s.PresentErr != nil {
		return gpu.PresentOK, s.PresentErr
	}
	s.Presents = append(s.Presents, Present{Swapchain: sc, ImageIndex: imageIndex, Wait: wait})
	result := gpu.PresentOK
	if len(s.PresentScript) > 0 {
		result = s.PresentScript[0]
		s.PresentScript = s.PresentScript[1:]
	}
	s.dev.record("present %s image#%d %s", sc.Name, imageIndex, result)
	return result, nil
}

func (sc *Swapchain) Destroy() { sc.surface.dev.destroy(&sc.Object) }
