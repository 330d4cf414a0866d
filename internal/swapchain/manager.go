// Package swapchain owns the presentable image array and everything whose
// validity is tied to its count, format and extent.
package swapchain

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/frameloop/internal/gpu"
)

// Options are the presentation preferences. Anything the surface does not
// offer falls back to the first format and to FallbackPresentMode.
type Options struct {
	Format              gpu.SurfaceFormat
	PresentMode         gpu.PresentMode
	FallbackPresentMode gpu.PresentMode
}

// Image is one presentable image and its per-image signals.
type Image struct {
	Handle      gpu.Image
	View        gpu.ImageView
	Framebuffer gpu.Framebuffer

	RenderComplete  gpu.Semaphore
	OverlayComplete gpu.Semaphore
	PresentReady    gpu.Semaphore

	// PresentCommands holds the present-transition hop; PresentIdle is
	// signaled once that hop's last submission completed.
	PresentCommands gpu.CommandBuffer
	PresentIdle     gpu.Fence

	layout gpu.Layout
}

// Manager is the Surface & Swap Chain Manager. It must only be destroyed or
// rebuilt while the device is idle; the recreation controller is the only
// caller that does so after startup.
type Manager struct {
	device  gpu.Device
	surface gpu.Surface
	opts    Options
	logger  *slog.Logger

	swapchain gpu.Swapchain
	images    []*Image
	depth     gpu.Attachment
	pass      gpu.RenderPass

	format      gpu.SurfaceFormat
	presentMode gpu.PresentMode
	extent      gpu.Extent
	generation  int
}

func New(device gpu.Device, surface gpu.Surface, opts Options, logger *slog.Logger) *Manager {
	return &Manager{
		device:  device,
		surface: surface,
		opts:    opts,
		logger:  logger,
	}
}

// Create builds a new generation for a window whose drawable size is window.
// On failure everything created so far is released again.
func (m *Manager) Create(window gpu.Extent) (err error) {
	if m.swapchain != nil {
		return errors.AssertionFailedf("swapchain generation %d is still alive", m.generation)
	}

	support, err := m.surface.Support()
	if err != nil {
		return errors.Wrap(err, "query surface support")
	}
	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		return errors.WithHint(
			gpu.Configurationf("surface offers %d formats and %d present modes", len(support.Formats), len(support.PresentModes)),
			"the selected GPU cannot present to this window")
	}
	if !support.Capabilities.TransferDst {
		return errors.WithHint(
			gpu.Configurationf("surface images do not support transfer destination usage"),
			"the overlay is copied into presentable images")
	}

	extent := chooseExtent(support.Capabilities, window)
	if extent.IsZero() {
		return errors.Mark(errors.Newf("surface extent is %s", extent), gpu.ErrStale)
	}

	defer func() {
		if err != nil {
			m.Destroy()
		}
	}()

	m.format = chooseFormat(support.Formats, m.opts.Format)
	m.presentMode = choosePresentMode(support.PresentModes, m.opts.PresentMode, m.opts.FallbackPresentMode)
	m.extent = extent

	m.swapchain, err = m.surface.CreateSwapchain(gpu.SwapchainInfo{
		ImageCount:  chooseImageCount(support.Capabilities),
		Format:      m.format,
		Extent:      extent,
		PresentMode: m.presentMode,
	})
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}

	handles, err := m.swapchain.Images()
	if err != nil {
		return errors.Wrap(err, "swapchain images")
	}

	m.depth, err = m.device.CreateDepthAttachment(extent)
	if err != nil {
		return errors.Wrap(err, "create depth attachment")
	}

	m.pass, err = m.device.CreateRenderPass(m.format.Format)
	if err != nil {
		return errors.Wrap(err, "create render pass")
	}

	commands, err := m.device.AllocateCommandBuffers(len(handles))
	if err != nil {
		return errors.Wrap(err, "allocate present commands")
	}

	// Every command buffer is owned by an image before anything else can
	// fail, so Destroy frees all of them.
	for i, handle := range handles {
		m.images = append(m.images, &Image{Handle: handle, PresentCommands: commands[i], layout: gpu.LayoutUndefined})
	}

	for i, image := range m.images {
		err = m.createImageResources(image)
		if err != nil {
			return errors.Wrapf(err, "swapchain image %d", i)
		}
	}

	m.generation++
	m.logger.Info("swapchain generation built",
		slog.Int("generation", m.generation),
		slog.String("extent", extent.String()),
		slog.Int("images", len(m.images)),
		slog.Int("format", int(m.format.Format)),
		slog.Int("presentMode", int(m.presentMode)))

	return nil
}

func (m *Manager) createImageResources(image *Image) error {
	var err error

	image.View, err = m.device.CreateImageView(image.Handle, m.format.Format)
	if err != nil {
		return err
	}

	image.Framebuffer, err = m.device.CreateFramebuffer(m.pass, image.View, m.depth.View(), m.extent)
	if err != nil {
		return err
	}

	image.RenderComplete, err = m.device.CreateSemaphore()
	if err != nil {
		return err
	}

	image.OverlayComplete, err = m.device.CreateSemaphore()
	if err != nil {
		return err
	}

	image.PresentReady, err = m.device.CreateSemaphore()
	if err != nil {
		return err
	}

	image.PresentIdle, err = m.device.CreateFence(true)
	return err
}

// Destroy releases the current generation. The device must be idle. Calling
// it without a live generation does nothing.
func (m *Manager) Destroy() {
	var commands []gpu.CommandBuffer
	for _, image := range m.images {
		if image.PresentCommands != nil {
			commands = append(commands, image.PresentCommands)
		}
		if image.PresentIdle != nil {
			image.PresentIdle.Destroy()
		}
		for _, sem := range []gpu.Semaphore{image.PresentReady, image.OverlayComplete, image.RenderComplete} {
			if sem != nil {
				sem.Destroy()
			}
		}
		if image.Framebuffer != nil {
			image.Framebuffer.Destroy()
		}
		if image.View != nil {
			image.View.Destroy()
		}
	}
	if len(commands) > 0 {
		m.device.FreeCommandBuffers(commands)
	}
	m.images = nil

	if m.pass != nil {
		m.pass.Destroy()
		m.pass = nil
	}

	if m.depth != nil {
		m.depth.Destroy()
		m.depth = nil
	}

	if m.swapchain != nil {
		m.swapchain.Destroy()
		m.swapchain = nil
	}
}

// CurrentLayout is the last layout recorded for image i.
func (m *Manager) CurrentLayout(i int) gpu.Layout {
	return m.images[i].layout
}

// SetLayout records that a transition of image i to layout was recorded.
func (m *Manager) SetLayout(i int, layout gpu.Layout) {
	m.images[i].layout = layout
}

// Transition records a barrier moving image i from its tracked layout to
// layout and updates the tracker.
func (m *Manager) Transition(cmd gpu.CommandBuffer, i int, layout gpu.Layout, srcStage, dstStage gpu.Stage, srcAccess, dstAccess gpu.Access) error {
	err := cmd.ImageBarrier(gpu.ImageBarrier{
		Image:     m.images[i].Handle,
		Aspect:    gpu.AspectColor,
		OldLayout: m.CurrentLayout(i),
		NewLayout: layout,
		SrcStage:  srcStage,
		DstStage:  dstStage,
		SrcAccess: srcAccess,
		DstAccess: dstAccess,
	})
	if err != nil {
		return err
	}
	m.SetLayout(i, layout)
	return nil
}

// AcquireNextImage asks for the next presentable image, signaling signal
// when it may be written.
func (m *Manager) AcquireNextImage(signal gpu.Semaphore) (int, gpu.PresentResult, error) {
	index, result, err := m.swapchain.AcquireNextImage(signal)
	if err != nil || result == gpu.PresentStale {
		return index, result, err
	}
	if index < 0 || index >= len(m.images) {
		return 0, gpu.PresentOK, errors.AssertionFailedf("acquired image %d of %d", index, len(m.images))
	}
	return index, result, nil
}

// Present queues image i for display once its present-ready signal fires.
func (m *Manager) Present(i int) (gpu.PresentResult, error) {
	return m.swapchain.Present(i, m.images[i].PresentReady)
}

// RenderTarget describes the main pass for image i.
func (m *Manager) RenderTarget(i int, clear gpu.ClearValues) gpu.RenderTarget {
	return gpu.RenderTarget{
		Pass:        m.pass,
		Framebuffer: m.images[i].Framebuffer,
		Extent:      m.extent,
		Clear:       clear,
	}
}

func (m *Manager) Image(i int) *Image { return m.images[i] }
func (m *Manager) ImageCount() int { return len(m.images) }
func (m *Manager) Extent() gpu.Extent { return m.extent }
func (m *Manager) Format() gpu.SurfaceFormat { return m.format }
func (m *Manager) Generation() int { return m.generation }
func (m *Manager) RenderPass() gpu.RenderPass { return m.pass }
func (m *Manager) Alive() bool { return m.swapchain != nil }

// DepthImage is the generation's shared depth image.
func (m *Manager) DepthImage() gpu.Image {
	return m.depth.Image()
}

func chooseFormat(available []gpu.SurfaceFormat, preferred gpu.SurfaceFormat) gpu.SurfaceFormat {
	for _, format := range available {
		if format == preferred {
			return format
		}
	}

	return available[0]
}

func choosePresentMode(available []gpu.PresentMode, preferred, fallback gpu.PresentMode) gpu.PresentMode {
	for _, mode := range available {
		if mode == preferred {
			return mode
		}
	}

	return fallback
}

func chooseExtent(caps gpu.SurfaceCapabilities, window gpu.Extent) gpu.Extent {
	if caps.CurrentExtent.Width != gpu.UndefinedExtent {
		return caps.CurrentExtent
	}
	if window.IsZero() {
		return gpu.Extent{}
	}

	return gpu.Extent{
		Width:  clamp(window.Width, caps.MinExtent.Width, caps.MaxExtent.Width),
		Height: clamp(window.Height, caps.MinExtent.Height, caps.MaxExtent.Height),
	}
}

func chooseImageCount(caps gpu.SurfaceCapabilities) int {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && caps.MaxImageCount < count {
		count = caps.MaxImageCount
	}
	return count
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
