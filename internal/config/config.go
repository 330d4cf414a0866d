// Package config holds the engine settings and their command line binding.
package config

import (
	"flag"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/frameloop/internal/gpu"
)

// Config is the complete engine configuration.
type Config struct {
	Window   WindowConfig
	Renderer RendererConfig
	Camera   CameraConfig
	Scene    SceneConfig
	Overlay  OverlayConfig
	Log      LogConfig
}

type WindowConfig struct {
	Title  string
	Width  int
	Height int
}

// RendererConfig configures the device and presentation.
type RendererConfig struct {
	// FramesInFlight is how many frames the CPU may record ahead of the GPU.
	FramesInFlight int
	// Mailbox prefers mailbox presentation; FIFO is used otherwise.
	Mailbox    bool
	Validation bool
	ShaderDir  string
}

type CameraConfig struct {
	X, Y, Z     float64
	Yaw, Pitch  float64
	Speed       float64
	Sensitivity float64
}

type SceneConfig struct {
	AssetDir string
	Model    string
	// Skybox is the directory holding the six cube faces.
	Skybox        string
	PointLights   int
	Particles     int
	DrawParticles bool
	MaskSize      int
	// MaskWorldSize is the world space edge length the path mask covers.
	MaskWorldSize float64
}

type OverlayConfig struct {
	Enabled bool
	X, Y    int
}

type LogConfig struct {
	Level string
}

// Default returns the settings the engine runs with when no flags are given.
func Default() Config {
	return Config{
		Window: WindowConfig{
			Title:  "Vulkan Test",
			Width:  1280,
			Height: 720,
		},
		Renderer: RendererConfig{
			FramesInFlight: 2,
			Mailbox:        true,
			Validation:     false,
			ShaderDir:      "shaders",
		},
		Camera: CameraConfig{
			X:           0,
			Y:           111,
			Z:           10,
			Yaw:         -90,
			Pitch:       -20,
			Speed:       20.5,
			Sensitivity: 0.1,
		},
		Scene: SceneConfig{
			AssetDir:      "assets",
			Model:         "scene.obj",
			Skybox:        "skybox",
			PointLights:   4,
			Particles:     1024,
			DrawParticles: false,
			MaskSize:      512,
			MaskWorldSize: 200,
		},
		Overlay: OverlayConfig{
			Enabled: true,
			X:       10,
			Y:       10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// RegisterFlags binds every setting to a flag on fs, using the current
// values as defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Window.Title, "title", c.Window.Title, "window title")
	fs.IntVar(&c.Window.Width, "width", c.Window.Width, "initial window width")
	fs.IntVar(&c.Window.Height, "height", c.Window.Height, "initial window height")

	fs.IntVar(&c.Renderer.FramesInFlight, "frames-in-flight", c.Renderer.FramesInFlight, "frames the CPU may record ahead of the GPU")
	fs.BoolVar(&c.Renderer.Mailbox, "mailbox", c.Renderer.Mailbox, "prefer mailbox presentation over FIFO")
	fs.BoolVar(&c.Renderer.Validation, "validation", c.Renderer.Validation, "enable the Khronos validation layer")
	fs.StringVar(&c.Renderer.ShaderDir, "shaders", c.Renderer.ShaderDir, "directory holding compiled SPIR-V")

	fs.Float64Var(&c.Camera.Speed, "camera-speed", c.Camera.Speed, "camera speed in units per second")
	fs.Float64Var(&c.Camera.Sensitivity, "mouse-sensitivity", c.Camera.Sensitivity, "mouse look degrees per pixel")

	fs.StringVar(&c.Scene.AssetDir, "assets", c.Scene.AssetDir, "asset directory")
	fs.StringVar(&c.Scene.Model, "model", c.Scene.Model, "OBJ model, relative to the asset directory")
	fs.StringVar(&c.Scene.Skybox, "skybox", c.Scene.Skybox, "skybox face directory, relative to the asset directory")
	fs.IntVar(&c.Scene.PointLights, "lights", c.Scene.PointLights, "active point lights")
	fs.IntVar(&c.Scene.Particles, "particles", c.Scene.Particles, "particle count")
	fs.BoolVar(&c.Scene.DrawParticles, "draw-particles", c.Scene.DrawParticles, "draw the particle system")
	fs.IntVar(&c.Scene.MaskSize, "mask-size", c.Scene.MaskSize, "path mask resolution")

	fs.BoolVar(&c.Overlay.Enabled, "hud", c.Overlay.Enabled, "show the HUD overlay")

	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "debug, info, warn or error")
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...interface{}) {
		errs = append(errs, gpu.Configurationf(format, args...))
	}

	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		fail("window size %dx%d must be positive", c.Window.Width, c.Window.Height)
	}
	if c.Renderer.FramesInFlight < 1 || c.Renderer.FramesInFlight > 4 {
		fail("frames in flight %d must be between 1 and 4", c.Renderer.FramesInFlight)
	}
	if c.Camera.Speed < 0 || c.Camera.Sensitivity < 0 {
		fail("camera speed and sensitivity must not be negative")
	}
	if c.Scene.PointLights < 0 || c.Scene.PointLights > 4 {
		fail("%d point lights requested, between 0 and 4 are animated", c.Scene.PointLights)
	}
	if c.Scene.Particles < 0 {
		fail("particle count %d is negative", c.Scene.Particles)
	}
	if c.Scene.MaskSize <= 0 || c.Scene.MaskWorldSize <= 0 {
		fail("path mask size must be positive")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	var err error
	for _, e := range errs {
		if err == nil {
			err = e
		} else {
			err = errors.CombineErrors(err, e)
		}
	}
	return err
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, errors.WithHint(gpu.Configurationf("log level %q", l.Level), "use debug, info, warn or error")
	}
	return level, nil
}

func (s SceneConfig) ModelPath() string {
	return filepath.Join(s.AssetDir, s.Model)
}

func (s SceneConfig) SkyboxDir() string {
	return filepath.Join(s.AssetDir, s.Skybox)
}
