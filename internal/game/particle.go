package game

import "math"

// Particle is one simulated body. Particles live by value in the engine's
// arena; the spatial grid refers to them by slice index.
type Particle struct {
	ID       uint32
	X, Y     float64
	VX, VY   float64
	Radius   float64
	Mass     float64
	MaxSpeed float64
	Kind     int
	Color    string
}

// Speed returns the length of the velocity vector.
func (p *Particle) Speed() float64 {
	return math.Hypot(p.VX, p.VY)
}

// SpeedLimit rescales the velocity so its length does not exceed MaxSpeed.
func (p *Particle) SpeedLimit() {
	if p.MaxSpeed <= 0 {
		return
	}
	speed := p.Speed()
	if speed > p.MaxSpeed {
		scale := p.MaxSpeed / speed
		p.VX *= scale
		p.VY *= scale
	}
}

// ApplyFriction damps velocity by friction (fraction lost per second) over dt.
func (p *Particle) ApplyFriction(friction, dt float64) {
	if friction <= 0 {
		return
	}
	damp := 1 - friction*dt
	if damp < 0 {
		damp = 0
	}
	p.VX *= damp
	p.VY *= damp
}
