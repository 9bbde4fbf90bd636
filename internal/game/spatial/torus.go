package spatial

import (
	"fmt"
	"math"
)

// Bounds is the axis-aligned world rectangle [MinX,MaxX]×[MinY,MaxY].
// The world wraps: leaving one edge re-enters at the opposite edge.
type Bounds struct {
	MinX, MaxX float64
	MinY, MaxY float64
}

// Width returns MaxX-MinX.
func (b Bounds) Width() float64 { return b.MaxX - b.MinX }

// Height returns MaxY-MinY.
func (b Bounds) Height() float64 { return b.MaxY - b.MinY }

// Contains reports whether (x, y) lies inside the closed rectangle.
func (b Bounds) Contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

func (b Bounds) validate() error {
	for _, v := range [...]float64{b.MinX, b.MaxX, b.MinY, b.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: bounds %+v must be finite", ErrInvalidConfiguration, b)
		}
	}
	if !(b.Width() > 0) || !(b.Height() > 0) {
		return fmt.Errorf("%w: bounds %gx%g must have positive extent", ErrInvalidConfiguration, b.Width(), b.Height())
	}
	return nil
}

// Wrap folds a position back into [MinX,MaxX)×[MinY,MaxY).
func (b Bounds) Wrap(x, y float64) (float64, float64) {
	return wrap(x, b.MinX, b.Width()), wrap(y, b.MinY, b.Height())
}

func wrap(v, lo, size float64) float64 {
	v = math.Mod(v-lo, size)
	if v < 0 {
		v += size
	}
	// A tiny negative remainder rounds up to size when folded back.
	if v >= size {
		v = 0
	}
	return v + lo
}

// Delta returns the shortest displacement from (x1,y1) to (x2,y2) on the torus.
func (b Bounds) Delta(x1, y1, x2, y2 float64) (dx, dy float64) {
	return shortest(x2-x1, b.Width()), shortest(y2-y1, b.Height())
}

func shortest(d, size float64) float64 {
	if d > size/2 {
		d -= size
	} else if d < -size/2 {
		d += size
	}
	return d
}

// DistanceSq returns the squared toroidal distance between two positions.
func (b Bounds) DistanceSq(x1, y1, x2, y2 float64) float64 {
	dx, dy := b.Delta(x1, y1, x2, y2)
	return dx*dx + dy*dy
}

// Distance returns the toroidal distance between two positions.
func (b Bounds) Distance(x1, y1, x2, y2 float64) float64 {
	return math.Sqrt(b.DistanceSq(x1, y1, x2, y2))
}
