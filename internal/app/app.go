// Package app builds every owner of the engine in dependency order, runs
// the frame loop and tears everything down again.
package app

import (
	"context"
	"math/rand"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/frameloop/internal/assets"
	"github.com/vkngwrapper/frameloop/internal/clock"
	"github.com/vkngwrapper/frameloop/internal/config"
	"github.com/vkngwrapper/frameloop/internal/frame"
	"github.com/vkngwrapper/frameloop/internal/gpu"
	"github.com/vkngwrapper/frameloop/internal/overlay"
	"github.com/vkngwrapper/frameloop/internal/renderer"
	"github.com/vkngwrapper/frameloop/internal/scene"
	"github.com/vkngwrapper/frameloop/internal/sequencer"
	"github.com/vkngwrapper/frameloop/internal/submit"
	"github.com/vkngwrapper/frameloop/internal/swapchain"
	"github.com/vkngwrapper/frameloop/internal/vulkan"
	"github.com/vkngwrapper/frameloop/internal/window"
)

// App must be created, run and destroyed on the main OS thread.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	window    *window.Window
	vk        *vulkan.Context
	device    *vulkan.Device
	resources *vulkan.Resources
	layouts   *vulkan.Layouts
	pipelines *vulkan.Pipelines
	gpuScene  *vulkan.GPUScene

	manager    *swapchain.Manager
	frames     *frame.Pool
	hud        *overlay.HUD
	scheduler  *submit.Scheduler
	controller *renderer.Controller
	driver     *renderer.Driver

	clock  *clock.Clock
	camera *scene.Camera
	lights scene.Lights

	stopInterrupt func()
}

// New opens the window, brings up the device, uploads the scene and builds
// the first swapchain generation. On failure everything created so far is
// destroyed again. Once ctx is done, a wait for a minimized window ends with
// renderer.ErrClosed.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (a *App, err error) {
	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	a = &App{
		cfg:    cfg,
		logger: logger,
		clock:  clock.New(),
		camera: scene.NewCamera(
			mgl32.Vec3{float32(cfg.Camera.X), float32(cfg.Camera.Y), float32(cfg.Camera.Z)},
			float32(cfg.Camera.Yaw), float32(cfg.Camera.Pitch),
			float32(cfg.Camera.Speed), float32(cfg.Camera.Sensitivity)),
		lights: scene.DefaultLights(cfg.Scene.PointLights),
	}
	defer func() {
		if err != nil {
			a.Destroy()
			a = nil
		}
	}()

	a.window, err = window.New(cfg.Window, logger)
	if err != nil {
		return nil, err
	}
	a.stopInterrupt = interruptOnDone(ctx, a.window)

	a.vk, err = vulkan.NewContext(a.window.SDL(), vulkan.ContextOptions{
		AppName:    cfg.Window.Title,
		Validation: cfg.Renderer.Validation,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.device = a.vk.Device()
	a.resources = vulkan.NewResources(a.vk)

	a.layouts, err = vulkan.NewLayouts(a.vk)
	if err != nil {
		return nil, err
	}

	a.pipelines, err = vulkan.NewPipelines(a.vk, a.layouts, cfg.Renderer.ShaderDir, logger)
	if err != nil {
		return nil, err
	}

	err = a.uploadScene()
	if err != nil {
		return nil, err
	}

	return a, a.buildEngine()
}

func (a *App) uploadScene() error {
	modelPath := a.cfg.Scene.ModelPath()
	mesh, err := assets.LoadOBJFile(filepath.Dir(modelPath), strings.TrimSuffix(filepath.Base(modelPath), ".obj"))
	if err != nil {
		return errors.WithHint(errors.Wrap(err, "load model"), "set -assets and -model to an OBJ with its MTL next to it")
	}

	textures, indices, err := assets.LoadMaterialTextures(mesh.Materials)
	if err != nil {
		return err
	}

	skybox, err := assets.LoadCube(a.cfg.Scene.SkyboxDir())
	if err != nil {
		return errors.Wrap(err, "load skybox")
	}

	rng := rand.New(rand.NewSource(1))
	a.gpuScene, err = vulkan.UploadScene(a.vk, a.resources, a.layouts, vulkan.SceneData{
		FramesInFlight: a.cfg.Renderer.FramesInFlight,
		Mesh:           mesh,
		Textures:       textures,
		TextureIndices: indices,
		Skybox:         skybox,
		Particles:      scene.SeedParticles(a.cfg.Scene.Particles, rng),
		DrawParticles:  a.cfg.Scene.DrawParticles,
		MaskSize:       a.cfg.Scene.MaskSize,
	})
	if err != nil {
		return errors.Wrap(err, "upload scene")
	}
	a.gpuScene.Scene.Uniforms = a

	a.logger.Info("scene uploaded",
		slog.Int("vertices", len(mesh.Vertices)),
		slog.Int("indices", len(mesh.Indices)),
		slog.Int("materials", len(mesh.Materials)),
		slog.Int("textures", len(textures)))
	return nil
}

func (a *App) buildEngine() error {
	presentMode := vulkan.PresentModeFIFO
	if a.cfg.Renderer.Mailbox {
		presentMode = vulkan.PresentModeMailbox
	}

	a.manager = swapchain.New(a.device, a.vk.Surface(), swapchain.Options{
		Format:              gpu.SurfaceFormat{Format: vulkan.FormatB8G8R8A8SRGB, ColorSpace: vulkan.ColorSpaceSRGB},
		PresentMode:         presentMode,
		FallbackPresentMode: vulkan.PresentModeFIFO,
	}, a.logger)

	extent, err := renderer.WaitForArea(a.window)
	if err != nil {
		return err
	}
	err = a.manager.Create(extent)
	if err != nil {
		return err
	}

	err = a.pipelines.BuildGeneration(a.manager)
	if err != nil {
		return err
	}

	a.frames, err = frame.New(a.device, a.cfg.Renderer.FramesInFlight, a.logger)
	if err != nil {
		return err
	}

	dependents := []renderer.GenerationBound{a.pipelines}
	var ui submit.Overlay = overlay.NewPassthrough(a.device, a.manager)
	if a.cfg.Overlay.Enabled {
		order := overlay.OrderRGBA
		if a.manager.Format().Format == vulkan.FormatB8G8R8A8SRGB {
			order = overlay.OrderBGRA
		}
		a.hud, err = overlay.NewHUD(a.device, a.manager, overlay.HUDOptions{
			X:     a.cfg.Overlay.X,
			Y:     a.cfg.Overlay.Y,
			Order: order,
		}, a.logger)
		if err != nil {
			return err
		}
		ui = a.hud
		dependents = append(dependents, a.hud)
	}

	a.scheduler, err = submit.New(a.device, a.manager, ui)
	if err != nil {
		return err
	}

	seq := sequencer.New(a.manager, a.pipelines, a.gpuScene.Scene)
	a.controller = renderer.NewController(a.device, a.manager, a.window, a.logger, dependents...)
	a.driver = renderer.NewDriver(a.manager, a.frames, seq, a.scheduler, a.controller, a.logger)
	if a.hud != nil {
		a.controller.Events = a.hud
		a.driver.Events = a.hud
	}

	return nil
}

// Run renders frames until the window closes, ctx is done or a frame fails
// fatally. The device is idle when Run returns.
func (a *App) Run(ctx context.Context) error {
	err := a.loop(ctx)
	if errors.Is(err, renderer.ErrClosed) {
		a.logger.Info("window closed while minimized")
		err = nil
	}

	idleErr := a.device.WaitIdle()
	if err == nil {
		err = idleErr
	}
	return err
}

// interruptOnDone wakes a window blocked waiting for events once ctx is done.
// The returned func stops watching.
func interruptOnDone(ctx context.Context, w *window.Window) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			w.Interrupt()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func (a *App) loop(ctx context.Context) error {
	for !a.window.ShouldClose() {
		select {
		case <-ctx.Done():
			a.logger.Info("shutting down", slog.String("reason", ctx.Err().Error()))
			return nil
		default:
		}

		a.window.PollEvents()

		dt, refreshed := a.clock.Tick()
		a.camera.Update(a.window.Input(), dt)
		a.lights.Animate(a.clock.Elapsed())
		if refreshed {
			a.logger.Debug("frame rate", slog.Float64("fps", a.clock.FPS()))
			if a.hud != nil {
				a.hud.SetFPS(a.clock.FPS())
			}
		}

		if a.window.ResizePending() {
			a.driver.OnResize()
		}

		_, err := a.driver.RenderFrame()
		if err != nil {
			return err
		}
	}

	return nil
}

// WriteFrameUniforms writes the camera and lights for the frame drawn by
// slot.
func (a *App) WriteFrameUniforms(slot int, extent gpu.Extent) error {
	u := scene.BuildFrameUniforms(a.camera, &a.lights, extent)
	return a.gpuScene.WriteFrameUniforms(slot, &u)
}

// WriteComputeUniforms paints the path mask under the camera while the left
// mouse button is held.
func (a *App) WriteComputeUniforms() error {
	size := float32(a.cfg.Scene.MaskWorldSize)
	brush := scene.Brush{
		Position: a.camera.Position,
		Additive: a.window.Painting(),
		Dims:     mgl32.Vec2{size, size},
	}
	return a.gpuScene.WriteComputeUniforms(brush.Uniforms())
}

// Destroy releases everything in reverse creation order. The device must be
// idle.
func (a *App) Destroy() {
	if a.scheduler != nil {
		a.scheduler.Destroy()
	}
	if a.hud != nil {
		a.hud.ReleaseGeneration()
	}
	if a.frames != nil {
		a.frames.Destroy()
	}
	if a.pipelines != nil {
		a.pipelines.Destroy()
	}
	if a.manager != nil {
		a.manager.Destroy()
	}
	if a.gpuScene != nil {
		a.gpuScene.Destroy()
	}
	if a.layouts != nil {
		a.layouts.Destroy()
	}
	if a.resources != nil {
		a.resources.Destroy()
	}
	if a.vk != nil {
		a.vk.Destroy()
	}
	if a.stopInterrupt != nil {
		a.stopInterrupt()
		a.stopInterrupt = nil
	}
	if a.window != nil {
		a.window.Destroy()
	}
}
