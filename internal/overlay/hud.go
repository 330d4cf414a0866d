// Package overlay draws the on-screen HUD into presentable images after the
// main pass. Each render is its own submission that waits on the image's
// render-complete signal and raises its overlay-complete signal.
package overlay

import (
	"fmt"
	"image/color"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
	"tinygo.org/x/tinyterm"

	"github.com/vkngwrapper/frameloop/internal/gpu"
	"github.com/vkngwrapper/frameloop/internal/swapchain"
)

const (
	Width        = 200
	Height       = 72
	headerHeight = 24
)

var (
	background = color.RGBA{R: 16, G: 16, B: 24, A: 255}
	foreground = color.RGBA{R: 230, G: 230, B: 230, A: 255}
	accent     = color.RGBA{R: 120, G: 200, B: 255, A: 255}
)

type HUDOptions struct {
	// X and Y place the HUD's top left corner in the presentable image.
	X, Y  int
	Order ChannelOrder
}

// HUD is the frame statistics panel with a scrolling event log. It copies a
// CPU-rasterized canvas into the presentable image.
type HUD struct {
	device  gpu.Device
	manager *swapchain.Manager
	opts    HUDOptions
	logger  *slog.Logger

	canvas *Canvas
	log    *Canvas
	term   *tinyterm.Terminal
	fps    float64

	images []*hudImage
}

// hudImage is owned by one presentable image and lives as long as its
// swapchain generation.
type hudImage struct {
	staging  gpu.HostBuffer
	commands gpu.CommandBuffer
	idle     gpu.Fence
}

// NewHUD creates the HUD and its resources for the manager's current
// generation.
func NewHUD(device gpu.Device, manager *swapchain.Manager, opts HUDOptions, logger *slog.Logger) (*HUD, error) {
	h := &HUD{
		device:  device,
		manager: manager,
		opts:    opts,
		logger:  logger,
		canvas:  NewCanvas(Width, Height),
		log:     NewCanvas(Width, Height-headerHeight),
	}
	h.log.Fill(background)

	h.term = tinyterm.NewTerminal(h.log)
	h.term.Configure(&tinyterm.Config{
		Font:       &proggy.TinySZ8pt7b,
		FontHeight: 10,
		FontOffset: 7,
	})

	err := h.BuildGeneration(manager)
	if err != nil {
		return nil, err
	}

	return h, nil
}

// SetFPS sets the frame rate shown on the next render.
func (h *HUD) SetFPS(fps float64) {
	h.fps = fps
}

// Logf appends a line to the event log.
func (h *HUD) Logf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(h.term, format+"\r\n", args...)
}

// ReleaseGeneration destroys the per-image resources. The device must be
// idle.
func (h *HUD) ReleaseGeneration() {
	for _, image := range h.images {
		image.release(h.device)
	}
	h.images = nil
}

// BuildGeneration creates per-image resources for the manager's current
// generation.
func (h *HUD) BuildGeneration(manager *swapchain.Manager) error {
	if len(h.images) > 0 {
		return errors.AssertionFailedf("HUD resources of a previous generation are still alive")
	}
	h.manager = manager

	commands, err := h.device.AllocateCommandBuffers(manager.ImageCount())
	if err != nil {
		return errors.Wrap(err, "allocate HUD commands")
	}

	for i := 0; i < manager.ImageCount(); i++ {
		image := &hudImage{commands: commands[i]}
		h.images = append(h.images, image)

		image.staging, err = h.device.CreateStagingBuffer(Width * Height * 4)
		if err == nil {
			image.idle, err = h.device.CreateFence(true)
		}
		if err != nil {
			for _, unused := range commands[i+1:] {
				h.device.FreeCommandBuffers([]gpu.CommandBuffer{unused})
			}
			h.ReleaseGeneration()
			return errors.Wrapf(err, "HUD resources for image %d", i)
		}
	}

	h.Logf("generation %d %s", manager.Generation(), manager.Extent())
	return nil
}

func (r *hudImage) release(device gpu.Device) {
	if r.idle != nil {
		r.idle.Destroy()
	}
	if r.staging != nil {
		r.staging.Destroy()
	}
	device.FreeCommandBuffers([]gpu.CommandBuffer{r.commands})
}

// Render copies the HUD into the presentable image once wait has been
// signaled and returns the image's overlay-complete signal.
func (h *HUD) Render(imageIndex int, wait gpu.Semaphore) (gpu.Semaphore, error) {
	if imageIndex >= len(h.images) {
		return nil, errors.AssertionFailedf("HUD has no resources for image %d", imageIndex)
	}
	res := h.images[imageIndex]
	target := h.manager.Image(imageIndex)

	// The staging buffer and commands may still be read by this image's
	// previous HUD submission.
	err := res.idle.Wait()
	if err != nil {
		return nil, errors.Wrapf(err, "wait for HUD of image %d", imageIndex)
	}

	h.draw()
	region := h.region()
	h.canvas.Pack(res.staging.Bytes(), gpu.Rect{Width: region.Width, Height: region.Height}, h.opts.Order)

	err = h.record(res.commands, imageIndex, res.staging, region)
	if err != nil {
		return nil, errors.Wrap(err, "record HUD")
	}

	err = res.idle.Reset()
	if err != nil {
		return nil, err
	}
	err = h.device.Queue().Submit(res.idle, gpu.Submission{
		Wait:       []gpu.Semaphore{wait},
		WaitStages: []gpu.Stage{gpu.StageTransfer},
		Commands:   []gpu.CommandBuffer{res.commands},
		Signal:     []gpu.Semaphore{target.OverlayComplete},
	})
	if err != nil {
		return nil, errors.Wrap(err, "submit HUD")
	}

	return target.OverlayComplete, nil
}

func (h *HUD) record(cmd gpu.CommandBuffer, imageIndex int, staging gpu.HostBuffer, region gpu.Rect) error {
	err := cmd.Reset()
	if err != nil {
		return err
	}
	err = cmd.Begin()
	if err != nil {
		return err
	}

	err = h.manager.Transition(cmd, imageIndex, gpu.LayoutTransferDst,
		gpu.StageTransfer, gpu.StageTransfer,
		0, gpu.AccessTransferWrite)
	if err != nil {
		return err
	}

	if region.Width > 0 && region.Height > 0 {
		err = cmd.CopyBufferToImage(staging.Buffer(), h.manager.Image(imageIndex).Handle, region)
		if err != nil {
			return err
		}
	}

	err = h.manager.Transition(cmd, imageIndex, gpu.LayoutPresentSrc,
		gpu.StageTransfer, gpu.StageBottomOfPipe,
		gpu.AccessTransferWrite, 0)
	if err != nil {
		return err
	}

	return cmd.End()
}

func (h *HUD) draw() {
	h.canvas.Fill(background)
	tinyfont.WriteLine(h.canvas, &proggy.TinySZ8pt7b, 4, 10, fmt.Sprintf("%.1f fps", h.fps), accent)
	tinyfont.WriteLine(h.canvas, &proggy.TinySZ8pt7b, 4, 21,
		fmt.Sprintf("gen %d  %s  x%d", h.manager.Generation(), h.manager.Extent(), h.manager.ImageCount()), foreground)
	h.log.DrawTo(h.canvas, 0, headerHeight)
}

// region is the part of the HUD that fits in the current extent, in image
// coordinates.
func (h *HUD) region() gpu.Rect {
	extent := h.manager.Extent()
	r := gpu.Rect{
		X:      h.opts.X,
		Y:      h.opts.Y,
		Width:  min(Width, extent.Width-h.opts.X),
		Height: min(Height, extent.Height-h.opts.Y),
	}
	if r.Width < 0 {
		r.Width = 0
	}
	if r.Height < 0 {
		r.Height = 0
	}
	return r
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
