package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const MaxPointLights = 8

const orbitRadius = 3

// PointLight matches the std140 layout of the shader's PointLight.
type PointLight struct {
	Position  mgl32.Vec3
	_         float32
	Color     mgl32.Vec3
	Intensity float32
	Constant  float32
	Linear    float32
	Quadratic float32
	_         float32
}

// DirectionalLight matches the std140 layout of the shader's
// DirectionalLight.
type DirectionalLight struct {
	Direction mgl32.Vec3
	_         float32
	Color     mgl32.Vec3
	Intensity float32
}

type Lights struct {
	Point       [MaxPointLights]PointLight
	Count       int
	Directional DirectionalLight
}

// DefaultLights returns the four orbiting point lights and the yellow sun.
// count limits how many point lights are active.
func DefaultLights(count int) Lights {
	attenuate := func(pos, color mgl32.Vec3) PointLight {
		return PointLight{
			Position:  pos,
			Color:     color,
			Intensity: 1,
			Constant:  1,
			Linear:    0.09,
			Quadratic: 0.032,
		}
	}

	l := Lights{
		Directional: DirectionalLight{
			Direction: mgl32.Vec3{-0.2, -1, -0.3},
			Color:     mgl32.Vec3{1, 1, 0},
			Intensity: 10,
		},
	}
	l.Point[0] = attenuate(mgl32.Vec3{2, 1, 0}, mgl32.Vec3{1, 0.3, 0.3})
	l.Point[1] = attenuate(mgl32.Vec3{-2, 1, 0}, mgl32.Vec3{0.3, 1, 0.3})
	l.Point[2] = attenuate(mgl32.Vec3{0, 1, 2}, mgl32.Vec3{0.3, 0.3, 1})
	l.Point[3] = attenuate(mgl32.Vec3{0, 1, -2}, mgl32.Vec3{1, 1, 1})

	if count < 0 {
		count = 0
	}
	if count > 4 {
		count = 4
	}
	l.Count = count
	return l
}

// Animate moves the lights to where they are t seconds after start.
func (l *Lights) Animate(t float64) {
	sin := func(v float64) float32 { return float32(math.Sin(v)) }
	cos := func(v float64) float32 { return float32(math.Cos(v)) }

	l.Point[0].Position[0] = cos(t) * orbitRadius
	l.Point[0].Position[2] = sin(t) * orbitRadius

	l.Point[1].Position[0] = cos(t+math.Pi) * orbitRadius
	l.Point[1].Position[2] = sin(t+math.Pi) * orbitRadius

	l.Point[2].Position[1] = 1 + sin(t*2)*1.5

	l.Point[3].Position[0] = cos(t*0.5) * orbitRadius * 0.7
	l.Point[3].Position[1] = 1 + sin(t*0.7)
	l.Point[3].Position[2] = sin(t*0.5) * orbitRadius * 0.7

	l.Directional.Direction[0] = sin(t * 2)
	l.Directional.Direction[2] = cos(t * 2)
}
