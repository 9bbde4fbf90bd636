package game

import (
	"math"
	"math/rand"

	"github.com/aquilax/go-perlin"

	"swarm-grid/internal/game/spatial"
)

// RandPosition returns a uniformly distributed point inside b.
func RandPosition(rng *rand.Rand, b spatial.Bounds) (x, y float64) {
	return b.MinX + rng.Float64()*b.Width(), b.MinY + rng.Float64()*b.Height()
}

// RandVelocity returns a velocity whose components are each drawn uniformly
// from [min, max).
func RandVelocity(rng *rand.Rand, min, max float64) (vx, vy float64) {
	return min + rng.Float64()*(max-min), min + rng.Float64()*(max-min)
}

// Noise parameters (same as the usual go-perlin defaults).
const (
	noiseAlpha = 2.0
	noiseBeta  = 2.0
	noiseOcts  = 3
)

// WanderField is a smooth, slowly drifting direction field. Particles sample
// it at their position so nearby particles steer the same way.
type WanderField struct {
	noise    *perlin.Perlin
	scale    float64 // world units -> noise space
	drift    float64 // noise-space z advance per second
	strength float64
	z        float64
}

// NewWanderField creates a field; strength is the acceleration magnitude in
// world units per second squared.
func NewWanderField(seed int64, strength float64) *WanderField {
	return &WanderField{
		noise:    perlin.NewPerlin(noiseAlpha, noiseBeta, noiseOcts, seed),
		scale:    0.004,
		drift:    0.15,
		strength: strength,
	}
}

// Advance moves the field forward in time by dt seconds.
func (w *WanderField) Advance(dt float64) {
	w.z += w.drift * dt
}

// At returns the steering acceleration at (x, y).
func (w *WanderField) At(x, y float64) (ax, ay float64) {
	if w == nil || w.strength == 0 {
		return 0, 0
	}
	// Noise3D is roughly in [-1, 1]; map it onto a full turn.
	angle := (w.noise.Noise3D(x*w.scale, y*w.scale, w.z) + 1) * math.Pi
	return math.Cos(angle) * w.strength, math.Sin(angle) * w.strength
}
