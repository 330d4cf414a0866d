package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/vkngwrapper/frameloop/internal/gpu"
)

// check is the single point every driver result passes through. A nil err
// returns nil; anything else is wrapped with op and marked with its
// category.
func check(op string, res common.VkResult, err error) error {
	if err == nil {
		return nil
	}

	switch res {
	case core1_0.VKErrorDeviceLost:
		return errors.WithHint(
			errors.Mark(errors.Wrap(err, op), gpu.ErrDeviceLost),
			"the GPU was reset or the driver crashed; restart the application")
	case core1_0.VKErrorOutOfHostMemory, core1_0.VKErrorOutOfDeviceMemory, core1_0.VKErrorFragmentedPool, core1_0.VKErrorTooManyObjects:
		return errors.WithHint(
			errors.Mark(errors.Wrap(err, op), gpu.ErrExhausted),
			"lower the particle count or the texture sizes")
	case core1_0.VKErrorExtensionNotPresent, core1_0.VKErrorLayerNotPresent, core1_0.VKErrorFeatureNotPresent, core1_0.VKErrorIncompatibleDriver, core1_0.VKErrorFormatNotSupported:
		return errors.WithHint(
			errors.Mark(errors.Wrap(err, op), gpu.ErrConfiguration),
			"update the graphics driver or select another GPU")
	case khr_swapchain.VKErrorOutOfDate, khr_surface.VKErrorSurfaceLost:
		return errors.Mark(errors.Wrap(err, op), gpu.ErrStale)
	}

	if res == core1_0.VKSuccess {
		// Rejected by the wrapper before reaching the driver.
		return errors.Mark(errors.Wrap(err, op), gpu.ErrDriver)
	}
	return errors.Mark(errors.Wrapf(err, "%s: %v", op, res), gpu.ErrDriver)
}

// classify turns an acquire or present result into the outcome the
// presentation driver handles. Only results that cannot be recovered by
// recreating the swapchain come back as errors.
func classify(op string, res common.VkResult, err error) (gpu.PresentResult, error) {
	switch res {
	case core1_0.VKSuccess:
		return gpu.PresentOK, nil
	case khr_swapchain.VKSuboptimal:
		return gpu.PresentSuboptimal, nil
	case khr_swapchain.VKErrorOutOfDate:
		return gpu.PresentStale, nil
	}
	if err == nil {
		err = errors.Newf("unexpected result %v", res)
	}
	return gpu.PresentOK, check(op, res, err)
}
