// Package scene holds the CPU side of what is drawn: the fly camera, the
// lights and the uniform blocks the shaders read.
package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/vkngwrapper/frameloop/internal/gpu"
)

const (
	FieldOfView = 45
	NearPlane   = 0.01
	FarPlane    = 1000

	maxPitch = 89
)

// Input is one frame's worth of camera controls. LookX and LookY are mouse
// motion in pixels, LookY positive upward.
type Input struct {
	Forward, Back bool
	Left, Right   bool
	Up, Down      bool

	LookX, LookY float32
}

type Camera struct {
	Position mgl32.Vec3
	Front    mgl32.Vec3
	Up       mgl32.Vec3

	Yaw   float32
	Pitch float32

	// Speed is in units per second, Sensitivity in degrees per pixel.
	Speed       float32
	Sensitivity float32
}

func NewCamera(position mgl32.Vec3, yaw, pitch, speed, sensitivity float32) *Camera {
	c := &Camera{
		Position:    position,
		Up:          mgl32.Vec3{0, 1, 0},
		Yaw:         yaw,
		Pitch:       clampPitch(pitch),
		Speed:       speed,
		Sensitivity: sensitivity,
	}
	c.updateFront()
	return c
}

// Update applies mouse look first, then moves along the new front vector.
func (c *Camera) Update(in Input, dt float32) {
	if in.LookX != 0 || in.LookY != 0 {
		c.Yaw += in.LookX * c.Sensitivity
		c.Pitch = clampPitch(c.Pitch + in.LookY*c.Sensitivity)
		c.updateFront()
	}

	step := c.Speed * dt
	right := c.Front.Cross(c.Up).Normalize()

	if in.Forward {
		c.Position = c.Position.Add(c.Front.Mul(step))
	}
	if in.Back {
		c.Position = c.Position.Sub(c.Front.Mul(step))
	}
	if in.Left {
		c.Position = c.Position.Sub(right.Mul(step))
	}
	if in.Right {
		c.Position = c.Position.Add(right.Mul(step))
	}
	if in.Up {
		c.Position = c.Position.Add(c.Up.Mul(step))
	}
	if in.Down {
		c.Position = c.Position.Sub(c.Up.Mul(step))
	}
}

func (c *Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.Position.Add(c.Front), c.Up)
}

// Projection is a right handed perspective with Y flipped for Vulkan clip
// space.
func Projection(extent gpu.Extent) mgl32.Mat4 {
	aspect := float32(1)
	if extent.Height > 0 {
		aspect = float32(extent.Width) / float32(extent.Height)
	}
	proj := mgl32.Perspective(mgl32.DegToRad(FieldOfView), aspect, NearPlane, FarPlane)
	proj[5] *= -1
	return proj
}

func (c *Camera) updateFront() {
	yaw := float64(mgl32.DegToRad(c.Yaw))
	pitch := float64(mgl32.DegToRad(c.Pitch))
	c.Front = mgl32.Vec3{
		float32(math.Cos(yaw) * math.Cos(pitch)),
		float32(math.Sin(pitch)),
		float32(math.Sin(yaw) * math.Cos(pitch)),
	}.Normalize()
}

func clampPitch(p float32) float32 {
	if p > maxPitch {
		return maxPitch
	}
	if p < -maxPitch {
		return -maxPitch
	}
	return p
}
