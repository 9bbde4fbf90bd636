package viewer

import (
	"math"
	"testing"
)

func TestCameraRoundTrip(t *testing.T) {
	c := NewCamera(2)
	c.X, c.Y = 100, -50

	sx, sy := c.WorldToScreen(110, -40)
	if sx != 20 || sy != 20 {
		t.Errorf("Expected (20,20), got (%g,%g)", sx, sy)
	}
	wx, wy := c.ScreenToWorld(sx, sy)
	if wx != 110 || wy != -40 {
		t.Errorf("Expected (110,-40), got (%g,%g)", wx, wy)
	}
}

func TestCameraZoomKeepsCursorFixed(t *testing.T) {
	c := NewCamera(1)
	c.X, c.Y = 30, 40

	wantX, wantY := c.ScreenToWorld(200, 150)
	for _, delta := range []float64{1, 1, -1, 3, -2} {
		c.ZoomAt(delta, 200, 150)
		gotX, gotY := c.ScreenToWorld(200, 150)
		if math.Abs(gotX-wantX) > 1e-9 || math.Abs(gotY-wantY) > 1e-9 {
			t.Fatalf("Cursor drifted after zoom %g: (%g,%g) -> (%g,%g)", delta, wantX, wantY, gotX, gotY)
		}
	}

	before := c.Zoom
	c.ZoomAt(0, 200, 150)
	if c.Zoom != before {
		t.Errorf("Expected zero delta to keep zoom %g, got %g", before, c.Zoom)
	}
}

func TestCameraZoomClamped(t *testing.T) {
	c := NewCamera(1)
	for i := 0; i < 500; i++ {
		c.ZoomAt(1, 0, 0)
	}
	if c.Zoom != MaxZoom {
		t.Errorf("Expected zoom capped at %g, got %g", float64(MaxZoom), c.Zoom)
	}
	for i := 0; i < 500; i++ {
		c.ZoomAt(-1, 0, 0)
	}
	if c.Zoom != MinZoom {
		t.Errorf("Expected zoom floored at %g, got %g", MinZoom, c.Zoom)
	}

	if z := NewCamera(math.NaN()).Zoom; z != 1 {
		t.Errorf("Expected NaN zoom to fall back to 1, got %g", z)
	}
}

func TestCameraDrag(t *testing.T) {
	c := NewCamera(2)

	c.Drag(10, 10, false)
	c.Drag(50, 50, false)
	if c.X != 0 || c.Y != 0 {
		t.Fatalf("Expected no pan without button, got (%g,%g)", c.X, c.Y)
	}

	c.Drag(50, 50, true) // press
	c.Drag(70, 40, true)
	if c.X != -10 || c.Y != 5 {
		t.Errorf("Expected (-10,5), got (%g,%g)", c.X, c.Y)
	}

	c.Drag(90, 40, false) // release
	c.Drag(200, 200, true)
	if c.X != -10 || c.Y != 5 {
		t.Errorf("Expected press to not jump, got (%g,%g)", c.X, c.Y)
	}

	c.Reset()
	if c.X != 0 || c.Y != 0 || c.Zoom != 1 {
		t.Errorf("Expected reset camera, got %+v", c)
	}
}

func TestCameraTiles(t *testing.T) {
	tests := []struct {
		name           string
		x, y, zoom     float64
		x0, x1, y0, y1 int
	}{
		{"exact fit", 0, 0, 1, 0, 1, 0, 1},
		{"panned left", -10, 0, 1, -1, 1, 0, 1},
		{"zoomed out", 0, 0, 0.5, 0, 2, 0, 2},
		{"zoomed in", 50, 50, 4, 0, 1, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCamera(tt.zoom)
			c.X, c.Y = tt.x, tt.y
			x0, x1, y0, y1 := c.Tiles(100, 100, 100, 100)
			if x0 != tt.x0 || x1 != tt.x1 || y0 != tt.y0 || y1 != tt.y1 {
				t.Errorf("Expected [%d,%d)x[%d,%d), got [%d,%d)x[%d,%d)", tt.x0, tt.x1, tt.y0, tt.y1, x0, x1, y0, y1)
			}
		})
	}
}
