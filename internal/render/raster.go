package render

import (
	"image"
	"image/color"
	"math"
)

// raster draws simple primitives straight into an RGBA pixel buffer.
// This bypasses the overhead of gg.Context for the thousands of particles
// and cells drawn every frame; gg is still used for background and text.
type raster struct {
	pix    []byte
	width  int
	height int
	stride int
}

func newRaster(img *image.RGBA) raster {
	b := img.Bounds()
	return raster{pix: img.Pix, width: b.Dx(), height: b.Dy(), stride: img.Stride}
}

// put writes c at byte offset idx, blending when c is translucent.
// The destination is assumed opaque.
func (r raster) put(idx int, c color.RGBA) {
	switch c.A {
	case 255:
		r.pix[idx] = c.R
		r.pix[idx+1] = c.G
		r.pix[idx+2] = c.B
		r.pix[idx+3] = 255
	case 0:
	default:
		a := float64(c.A) / 255
		inv := 1 - a
		r.pix[idx] = uint8(float64(c.R)*a + float64(r.pix[idx])*inv)
		r.pix[idx+1] = uint8(float64(c.G)*a + float64(r.pix[idx+1])*inv)
		r.pix[idx+2] = uint8(float64(c.B)*a + float64(r.pix[idx+2])*inv)
		r.pix[idx+3] = 255
	}
}

// fillRect fills the clipped rectangle [x, x+w)×[y, y+h).
func (r raster) fillRect(x, y, w, h int, c color.RGBA) {
	x1, y1 := max(0, x), max(0, y)
	x2, y2 := min(r.width, x+w), min(r.height, y+h)

	for py := y1; py < y2; py++ {
		row := py * r.stride
		for px := x1; px < x2; px++ {
			r.put(row+px*4, c)
		}
	}
}

// fillCircle fills the pixels whose centres lie within radius of (cx, cy).
func (r raster) fillCircle(cx, cy int, radius float64, c color.RGBA) {
	rad := int(radius + 0.5)
	radSq := radius * radius

	for py := max(0, cy-rad); py < min(r.height, cy+rad+1); py++ {
		dy := float64(py - cy)
		dySq := dy * dy
		if dySq > radSq {
			continue
		}
		ext := int(math.Sqrt(radSq-dySq) + 0.5)
		row := py * r.stride
		for px := max(0, cx-ext); px < min(r.width, cx+ext+1); px++ {
			dx := float64(px - cx)
			if dx*dx+dySq <= radSq {
				r.put(row+px*4, c)
			}
		}
	}
}

func (r raster) hline(x1, x2, y int, c color.RGBA) {
	if y < 0 || y >= r.height {
		return
	}
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	row := y * r.stride
	for x := max(0, x1); x <= min(r.width-1, x2); x++ {
		r.put(row+x*4, c)
	}
}

func (r raster) vline(x, y1, y2 int, c color.RGBA) {
	if x < 0 || x >= r.width {
		return
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	for y := max(0, y1); y <= min(r.height-1, y2); y++ {
		r.put(y*r.stride+x*4, c)
	}
}
