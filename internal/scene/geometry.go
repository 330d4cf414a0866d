package scene

import (
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
)

var skyboxFaces = [6][4]mgl32.Vec3{
	// -Z
	{{-1, 1, -1}, {-1, -1, -1}, {1, -1, -1}, {1, 1, -1}},
	// -X
	{{-1, -1, 1}, {-1, -1, -1}, {-1, 1, -1}, {-1, 1, 1}},
	// +X
	{{1, -1, -1}, {1, -1, 1}, {1, 1, 1}, {1, 1, -1}},
	// +Z
	{{-1, -1, 1}, {-1, 1, 1}, {1, 1, 1}, {1, -1, 1}},
	// +Y
	{{-1, 1, -1}, {1, 1, -1}, {1, 1, 1}, {-1, 1, 1}},
	// -Y
	{{-1, -1, -1}, {-1, -1, 1}, {1, -1, 1}, {1, -1, -1}},
}

// SkyboxVertices is the unit cube as 36 vertices, two triangles per face,
// wound to be seen from inside.
func SkyboxVertices() []mgl32.Vec3 {
	vertices := make([]mgl32.Vec3, 0, 36)
	for _, f := range skyboxFaces {
		vertices = append(vertices, f[0], f[1], f[2], f[2], f[3], f[0])
	}
	return vertices
}

// SeedParticles scatters n particles over [-1,1] in X and Y.
func SeedParticles(n int, rng *rand.Rand) []mgl32.Vec4 {
	particles := make([]mgl32.Vec4, n)
	for i := range particles {
		particles[i] = mgl32.Vec4{
			rng.Float32()*2 - 1,
			rng.Float32()*2 - 1,
			0,
			1,
		}
	}
	return particles
}
