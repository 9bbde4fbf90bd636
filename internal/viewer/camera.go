// Package viewer holds the view math of the desktop viewer: a pan/zoom
// camera over a toroidal world. It has no windowing dependencies.
package viewer

import "math"

const (
	DefaultZoomStrength = 0.08
	MinZoom             = 0.1
	MaxZoom             = 20
)

// Camera maps world coordinates to screen pixels. (X, Y) is the world point
// shown at the top-left corner of the screen.
type Camera struct {
	X, Y     float64
	Zoom     float64
	Strength float64 // Relative zoom change per wheel notch

	lastX, lastY float64
	dragging     bool
}

// NewCamera returns a camera at the world origin with the given zoom.
func NewCamera(zoom float64) *Camera {
	c := &Camera{Strength: DefaultZoomStrength}
	c.Zoom = clampZoom(zoom)
	return c
}

// WorldToScreen converts a world position to screen pixels.
func (c *Camera) WorldToScreen(wx, wy float64) (float64, float64) {
	return (wx - c.X) * c.Zoom, (wy - c.Y) * c.Zoom
}

// ScreenToWorld converts screen pixels to an (unwrapped) world position.
func (c *Camera) ScreenToWorld(sx, sy float64) (float64, float64) {
	return sx/c.Zoom + c.X, sy/c.Zoom + c.Y
}

// ZoomAt zooms in for delta > 0 and out for delta < 0, keeping the world
// point under the screen position (sx, sy) fixed.
func (c *Camera) ZoomAt(delta, sx, sy float64) {
	if delta == 0 {
		return
	}
	wx, wy := c.ScreenToWorld(sx, sy)

	scale := 1 + c.Strength
	if delta < 0 {
		scale = 1 - c.Strength
	}
	c.Zoom = clampZoom(c.Zoom * scale)

	c.X = wx - sx/c.Zoom
	c.Y = wy - sy/c.Zoom
}

// Drag pans the camera by the cursor movement since the previous call while
// pressed is true.
func (c *Camera) Drag(mx, my float64, pressed bool) {
	if pressed && c.dragging {
		c.X -= (mx - c.lastX) / c.Zoom
		c.Y -= (my - c.lastY) / c.Zoom
	}
	c.lastX, c.lastY = mx, my
	c.dragging = pressed
}

// Reset returns to the origin at zoom 1.
func (c *Camera) Reset() {
	c.X, c.Y, c.Zoom = 0, 0, 1
}

// Tiles returns the half-open range of world copies, in units of the world
// size, that intersect a screen of the given size. Drawing every particle
// once per tile makes the torus appear seamless at any pan or zoom.
func (c *Camera) Tiles(screenW, screenH, worldW, worldH float64) (x0, x1, y0, y1 int) {
	minX, minY := c.ScreenToWorld(0, 0)
	maxX, maxY := c.ScreenToWorld(screenW, screenH)
	x0 = int(math.Floor(minX / worldW))
	x1 = int(math.Ceil(maxX / worldW))
	y0 = int(math.Floor(minY / worldH))
	y1 = int(math.Ceil(maxY / worldH))
	return
}

func clampZoom(z float64) float64 {
	if !(z > 0) {
		return 1
	}
	return math.Max(MinZoom, math.Min(MaxZoom, z))
}
