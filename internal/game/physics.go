package game

import (
	"math"

	"swarm-grid/internal/config"
)

// Vec2 is a 2D vector in world units.
type Vec2 struct {
	X, Y float64
}

// Add returns v+o.
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }

// Sub returns v-o.
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }

// Scale returns v*s.
func (v Vec2) Scale(s float64) Vec2 { return Vec2{v.X * s, v.Y * s} }

// Dot returns the dot product of v and o.
func (v Vec2) Dot(o Vec2) float64 { return v.X*o.X + v.Y*o.Y }

// Len returns the length of v.
func (v Vec2) Len() float64 { return math.Hypot(v.X, v.Y) }

// ElasticCollision returns the post-impact velocities of two discs.
//
// Only the velocity components along the line between the centres change;
// tangential components are kept. With equal masses the normal components are
// simply exchanged. Coincident centres use (1,0) as the collision normal.
func ElasticCollision(p1 Vec2, m1 float64, v1 Vec2, p2 Vec2, m2 float64, v2 Vec2) (Vec2, Vec2) {
	n := p1.Sub(p2)
	dist := n.Len()
	if dist == 0 {
		n, dist = Vec2{1, 0}, 1
	}
	n = n.Scale(1 / dist)

	a := v1.Dot(n)
	b := v2.Dot(n)

	var af, bf float64
	if total := m1 + m2; m1 == m2 || total <= 0 {
		af, bf = b, a
	} else {
		af = (a*(m1-m2) + 2*m2*b) / total
		bf = (b*(m2-m1) + 2*m1*a) / total
	}

	return v1.Add(n.Scale(af - a)), v2.Add(n.Scale(bf - b))
}

// OverlapCorrection returns how far the first of two overlapping discs must
// move so that, once the second moves by the opposite amount, they just touch.
// (dx, dy) is the displacement from the first centre to the second and dist
// its length. ok is false when the discs do not overlap.
func OverlapCorrection(r1, r2, dx, dy, dist float64) (cx, cy float64, ok bool) {
	delta := r1 + r2 - dist
	if delta <= 0 {
		return 0, 0, false
	}
	nx, ny := 1.0, 0.0
	if dist > 0 {
		nx, ny = dx/dist, dy/dist
	}
	return -0.5 * delta * nx, -0.5 * delta * ny, true
}

// Neighbor is another particle seen from the querying particle, with the
// shortest toroidal displacement to it already resolved.
type Neighbor struct {
	Index  int
	DX, DY float64
	Dist   float64
}

// Flock returns the steering acceleration for self from its neighbors:
// separation from every close particle, alignment and cohesion with
// particles of the same kind.
func Flock(self *Particle, neighbors []Neighbor, arena []Particle, w config.FlockConfig) (ax, ay float64) {
	var sepX, sepY float64
	var avgVX, avgVY, avgDX, avgDY float64
	same := 0

	for _, n := range neighbors {
		if n.Dist > 0 && n.Dist < w.SeparationDistance {
			push := 1 - n.Dist/w.SeparationDistance
			sepX -= n.DX / n.Dist * push
			sepY -= n.DY / n.Dist * push
		}

		other := &arena[n.Index]
		if other.Kind != self.Kind {
			continue
		}
		avgVX += other.VX
		avgVY += other.VY
		avgDX += n.DX
		avgDY += n.DY
		same++
	}

	ax = sepX * self.MaxSpeed * w.Separation
	ay = sepY * self.MaxSpeed * w.Separation

	if same > 0 {
		inv := 1 / float64(same)
		ax += (avgVX*inv - self.VX) * w.Alignment
		ay += (avgVY*inv - self.VY) * w.Alignment
		ax += avgDX * inv * w.Cohesion
		ay += avgDY * inv * w.Cohesion
	}
	return ax, ay
}
