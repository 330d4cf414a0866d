package overlay

import (
	"github.com/vkngwrapper/frameloop/internal/gpu"
	"github.com/vkngwrapper/frameloop/internal/swapchain"
)

// Passthrough is the overlay used when the HUD is disabled. It forwards the
// render-complete signal to the overlay-complete signal with an empty
// submission.
type Passthrough struct {
	device  gpu.Device
	manager *swapchain.Manager
}

func NewPassthrough(device gpu.Device, manager *swapchain.Manager) *Passthrough {
	return &Passthrough{device: device, manager: manager}
}

func (p *Passthrough) Render(imageIndex int, wait gpu.Semaphore) (gpu.Semaphore, error) {
	done := p.manager.Image(imageIndex).OverlayComplete
	err := p.device.Queue().Submit(nil, gpu.Submission{
		Wait:       []gpu.Semaphore{wait},
		WaitStages: []gpu.Stage{gpu.StageBottomOfPipe},
		Signal:     []gpu.Semaphore{done},
	})
	if err != nil {
		return nil, err
	}
	return done, nil
}
