// Package vulkan implements the gpu interfaces on top of vkngwrapper and owns
// every long-lived device object: the instance, device, queue, memory,
// pipelines and descriptors.
package vulkan

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/ext_debug_utils"
	"github.com/vkngwrapper/extensions/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/khr_portability_subset"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/frameloop/internal/gpu"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

type ContextOptions struct {
	AppName    string
	Validation bool
}

// Context owns the instance, the presentation surface, the logical device
// and its single queue. Graphics, compute, transfer and presentation all go
// through that one queue.
type Context struct {
	logger *slog.Logger
	opts   ContextOptions

	window *sdl.Window
	loader core.Loader

	instance       core1_0.Instance
	debugMessenger ext_debug_utils.DebugUtilsMessenger
	surface        khr_surface.Surface

	// transform is the surface transform last reported by Support.
	transform khr_surface.SurfaceTransformFlags

	physicalDevice core1_0.PhysicalDevice
	device         core1_0.Device
	queueFamily    int
	queue          core1_0.Queue
	commandPool    core1_0.CommandPool

	swapchainExtension khr_swapchain.Extension
	depthFormat        core1_0.Format
	maxAnisotropy      float32
}

// NewContext brings up Vulkan for window. On failure everything created so
// far is destroyed again.
func NewContext(window *sdl.Window, opts ContextOptions, logger *slog.Logger) (c *Context, err error) {
	c = &Context{logger: logger, opts: opts, window: window}
	defer func() {
		if err != nil {
			c.Destroy()
			c = nil
		}
	}()

	c.loader, err = core.CreateLoaderFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return nil, errors.WithHint(
			errors.Mark(errors.Wrap(err, "load vulkan"), gpu.ErrConfiguration),
			"install a Vulkan driver or the Vulkan SDK")
	}

	err = c.createInstance()
	if err != nil {
		return nil, err
	}

	err = c.setupDebugMessenger()
	if err != nil {
		return nil, err
	}

	err = c.createSurface()
	if err != nil {
		return nil, err
	}

	err = c.pickPhysicalDevice()
	if err != nil {
		return nil, err
	}

	err = c.createLogicalDevice()
	if err != nil {
		return nil, err
	}

	err = c.createCommandPool()
	if err != nil {
		return nil, err
	}

	c.depthFormat, err = c.findDepthFormat()
	if err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Context) createInstance() error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    c.opts.AppName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "frameloop",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	sdlExtensions := c.window.VulkanGetInstanceExtensions()
	extensions, res, err := c.loader.AvailableExtensions()
	if err != nil {
		return check("enumerate instance extensions", res, err)
	}

	for _, ext := range sdlExtensions {
		_, hasExt := extensions[ext]
		if !hasExt {
			return gpu.Configurationf("instance extension %s required by SDL is missing", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if c.opts.Validation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	_, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if c.opts.Validation {
		layers, res, err := c.loader.AvailableLayers()
		if err != nil {
			return check("enumerate layers", res, err)
		}

		for _, layer := range validationLayers {
			_, hasValidation := layers[layer]
			if !hasValidation {
				return errors.WithHint(
					gpu.Configurationf("validation layer %s not available", layer),
					"install the LunarG Vulkan SDK or run without -validation")
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		instanceOptions.Next = c.debugMessengerOptions()
	}

	c.instance, res, err = c.loader.CreateInstance(nil, instanceOptions)
	return check("create instance", res, err)
}

func (c *Context) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    c.logDebug,
	}
}

func (c *Context) setupDebugMessenger() error {
	if !c.opts.Validation {
		return nil
	}

	var res common.VkResult
	var err error
	debugLoader := ext_debug_utils.CreateExtensionFromInstance(c.instance)
	c.debugMessenger, res, err = debugLoader.CreateDebugUtilsMessenger(c.instance, nil, c.debugMessengerOptions())
	return check("create debug messenger", res, err)
}

func (c *Context) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	level := slog.LevelWarn
	if severity&ext_debug_utils.SeverityError != 0 {
		level = slog.LevelError
	}
	c.logger.Log(context.Background(), level, data.Message, slog.Any("type", msgType))
	return false
}

func (c *Context) createSurface() error {
	surfaceLoader := khr_surface.CreateExtensionFromInstance(c.instance)

	surface, err := vkng_sdl2.CreateSurface(c.instance, surfaceLoader, c.window)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "create surface"), gpu.ErrConfiguration)
	}

	c.surface = surface
	return nil
}

func (c *Context) pickPhysicalDevice() error {
	physicalDevices, res, err := c.instance.EnumeratePhysicalDevices()
	if err != nil {
		return check("enumerate physical devices", res, err)
	}

	for _, device := range physicalDevices {
		family, ok := c.deviceQueueFamily(device)
		if ok {
			c.physicalDevice = device
			c.queueFamily = family
			break
		}
	}

	if c.physicalDevice == nil {
		return errors.WithHint(
			gpu.Configurationf("no GPU with a graphics, compute and present queue and %v", deviceExtensions),
			"the window must be presentable from a queue that also renders and computes")
	}

	properties, err := c.physicalDevice.Properties()
	if err != nil {
		return errors.Wrap(err, "physical device properties")
	}
	c.maxAnisotropy = properties.Limits.MaxSamplerAnisotropy

	c.logger.Info("physical device selected",
		slog.String("name", properties.DriverName),
		slog.Int("queueFamily", c.queueFamily))
	return nil
}

// deviceQueueFamily returns a queue family of device that supports graphics,
// compute and presentation to the surface, if the device is usable at all.
func (c *Context) deviceQueueFamily(device core1_0.PhysicalDevice) (int, bool) {
	extensions, _, err := device.EnumerateDeviceExtensionProperties()
	if err != nil {
		return 0, false
	}
	for _, extension := range deviceExtensions {
		if _, ok := extensions[extension]; !ok {
			return 0, false
		}
	}

	formats, _, err := c.surface.PhysicalDeviceSurfaceFormats(device)
	if err != nil || len(formats) == 0 {
		return 0, false
	}
	presentModes, _, err := c.surface.PhysicalDeviceSurfacePresentModes(device)
	if err != nil || len(presentModes) == 0 {
		return 0, false
	}

	if !device.Features().SamplerAnisotropy {
		return 0, false
	}

	const required = core1_0.QueueGraphics | core1_0.QueueCompute
	for idx, family := range device.QueueFamilyProperties() {
		if family.QueueFlags&required != required {
			continue
		}
		supported, _, err := c.surface.PhysicalDeviceSurfaceSupport(device, idx)
		if err == nil && supported {
			return idx, true
		}
	}
	return 0, false
}

func (c *Context) createLogicalDevice() error {
	extensionNames := append([]string(nil), deviceExtensions...)

	// Portability subset must be enabled where offered, as on MoltenVK.
	extensions, res, err := c.physicalDevice.EnumerateDeviceExtensionProperties()
	if err != nil {
		return check("enumerate device extensions", res, err)
	}
	if _, supported := extensions[khr_portability_subset.ExtensionName]; supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	c.device, res, err = c.physicalDevice.CreateDevice(nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: []core1_0.DeviceQueueCreateInfo{
			{
				QueueFamilyIndex: c.queueFamily,
				QueuePriorities:  []float32{1.0},
			},
		},
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: true,
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return check("create device", res, err)
	}

	c.queue = c.device.GetQueue(c.queueFamily, 0)
	c.swapchainExtension = khr_swapchain.CreateExtensionFromDevice(c.device)
	return nil
}

func (c *Context) createCommandPool() error {
	pool, res, err := c.device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: c.queueFamily,
	})
	if err != nil {
		return check("create command pool", res, err)
	}
	c.commandPool = pool
	return nil
}

func (c *Context) findDepthFormat() (core1_0.Format, error) {
	candidates := []core1_0.Format{core1_0.FormatD32SignedFloat, core1_0.FormatD32SignedFloatS8UnsignedInt, core1_0.FormatD24UnsignedNormalizedS8UnsignedInt}
	for _, format := range candidates {
		props := c.physicalDevice.FormatProperties(format)
		if props.OptimalTilingFeatures&core1_0.FormatFeatureDepthStencilAttachment != 0 {
			return format, nil
		}
	}
	return 0, gpu.Configurationf("no depth format among %v", candidates)
}

func (c *Context) findMemoryType(typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	memProperties := c.physicalDevice.MemoryProperties()
	for i, memoryType := range memProperties.MemoryTypes {
		typeBit := uint32(1 << i)

		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}

	return 0, errors.Mark(errors.Newf("no memory type with %v in %b", properties, typeFilter), gpu.ErrExhausted)
}

// Device returns the gpu.Device view of the context.
func (c *Context) Device() *Device {
	return &Device{ctx: c}
}

// Surface returns the gpu.Surface view of the window surface.
func (c *Context) Surface() *Surface {
	return &Surface{ctx: c}
}

// Destroy releases everything NewContext created. The device must be idle.
func (c *Context) Destroy() {
	if c.commandPool != nil {
		c.commandPool.Destroy(nil)
		c.commandPool = nil
	}

	if c.device != nil {
		c.device.Destroy(nil)
		c.device = nil
	}

	if c.debugMessenger != nil {
		c.debugMessenger.Destroy(nil)
		c.debugMessenger = nil
	}

	if c.surface != nil {
		c.surface.Destroy(nil)
		c.surface = nil
	}

	if c.instance != nil {
		c.instance.Destroy(nil)
		c.instance = nil
	}
}
