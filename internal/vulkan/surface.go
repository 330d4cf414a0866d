package vulkan

import (
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/vkngwrapper/frameloop/internal/gpu"
)

// Surface values the engine asks for by name.
const (
	FormatB8G8R8A8SRGB   = gpu.Format(core1_0.FormatB8G8R8A8SRGB)
	FormatR8G8B8A8SRGB   = gpu.Format(core1_0.FormatR8G8B8A8SRGB)
	ColorSpaceSRGB       = gpu.ColorSpace(khr_surface.ColorSpaceSRGBNonlinear)
	PresentModeMailbox   = gpu.PresentMode(khr_surface.PresentModeMailbox)
	PresentModeFIFO      = gpu.PresentMode(khr_surface.PresentModeFIFO)
	PresentModeImmediate = gpu.PresentMode(khr_surface.PresentModeImmediate)
)

// Surface implements gpu.Surface on the window surface.
type Surface struct {
	ctx *Context
}

func (s *Surface) Support() (gpu.SurfaceSupport, error) {
	var support gpu.SurfaceSupport
	surface := s.ctx.surface
	device := s.ctx.physicalDevice

	caps, res, err := surface.PhysicalDeviceSurfaceCapabilities(device)
	if err != nil {
		return support, check("query surface capabilities", res, err)
	}
	support.Capabilities = gpu.SurfaceCapabilities{
		MinImageCount: caps.MinImageCount,
		MaxImageCount: caps.MaxImageCount,
		CurrentExtent: gpu.Extent{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height},
		MinExtent:     gpu.Extent{Width: caps.MinImageExtent.Width, Height: caps.MinImageExtent.Height},
		MaxExtent:     gpu.Extent{Width: caps.MaxImageExtent.Width, Height: caps.MaxImageExtent.Height},
		TransferDst:   caps.SupportedUsageFlags&core1_0.ImageUsageTransferDst != 0,
	}
	s.ctx.transform = caps.CurrentTransform

	formats, res, err := surface.PhysicalDeviceSurfaceFormats(device)
	if err != nil {
		return support, check("query surface formats", res, err)
	}
	for _, format := range formats {
		support.Formats = append(support.Formats, gpu.SurfaceFormat{
			Format:     gpu.Format(format.Format),
			ColorSpace: gpu.ColorSpace(format.ColorSpace),
		})
	}

	modes, res, err := surface.PhysicalDeviceSurfacePresentModes(device)
	if err != nil {
		return support, check("query present modes", res, err)
	}
	for _, mode := range modes {
		support.PresentModes = append(support.PresentModes, gpu.PresentMode(mode))
	}

	return support, nil
}

// CreateSwapchain creates a swapchain for the surface. Images are usable as
// color attachments and, for the overlay copy, as transfer destinations.
func (s *Surface) CreateSwapchain(info gpu.SwapchainInfo) (gpu.Swapchain, error) {
	ext := s.ctx.swapchainExtension

	handle, res, err := ext.CreateSwapchain(s.ctx.device, nil, khr_swapchain.SwapchainCreateInfo{
		Surface: s.ctx.surface,

		MinImageCount:    info.ImageCount,
		ImageFormat:      core1_0.Format(info.Format.Format),
		ImageColorSpace:  khr_surface.ColorSpace(info.Format.ColorSpace),
		ImageExtent:      core1_0.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height},
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment | core1_0.ImageUsageTransferDst,

		ImageSharingMode: core1_0.SharingModeExclusive,

		PreTransform:   s.ctx.transform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    khr_surface.PresentMode(info.PresentMode),
		Clipped:        true,
	})
	if err != nil {
		return nil, check("create swapchain", res, err)
	}

	return &swapchain{ctx: s.ctx, handle: handle}, nil
}

type swapchain struct {
	ctx    *Context
	handle khr_swapchain.Swapchain
}

func (s *swapchain) Images() ([]gpu.Image, error) {
	images, res, err := s.handle.SwapchainImages()
	if err != nil {
		return nil, check("get swapchain images", res, err)
	}

	handles := make([]gpu.Image, 0, len(images))
	for _, image := range images {
		handles = append(handles, image)
	}
	return handles, nil
}

func (s *swapchain) AcquireNextImage(signal gpu.Semaphore) (int, gpu.PresentResult, error) {
	index, res, err := s.handle.AcquireNextImage(common.NoTimeout, signal.(*semaphore).handle, nil)
	result, err := classify("acquire next image", res, err)
	if err != nil || result == gpu.PresentStale {
		return -1, result, err
	}
	return index, result, nil
}

func (s *swapchain) Present(imageIndex int, wait gpu.Semaphore) (gpu.PresentResult, error) {
	q := &queue{handle: s.ctx.queue}
	return q.present(s.ctx.swapchainExtension, s.handle, imageIndex, wait)
}

func (s *swapchain) Destroy() {
	s.handle.Destroy(nil)
}
