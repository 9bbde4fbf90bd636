// Package render draws world snapshots to images: grid lines, per-cell
// occupancy shading and particles, with a small text overlay.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"sync"

	"github.com/fogleman/gg"

	"swarm-grid/internal/game"
)

var errNoSnapshot = errors.New("render: no snapshot")

// Options controls frame size and overlays.
type Options struct {
	Width, Height int
	DrawGrid      bool
	Background    color.RGBA
}

// DefaultOptions returns a 1280x720 frame with the grid overlay on.
func DefaultOptions() Options {
	return Options{
		Width:      1280,
		Height:     720,
		DrawGrid:   true,
		Background: color.RGBA{12, 12, 28, 255},
	}
}

var (
	gridLineColor = color.RGBA{50, 50, 75, 255}
	heatColor     = color.RGBA{255, 190, 60, 0} // Alpha set per cell
)

// Renderer turns snapshots into images. One drawing context is reused for
// every frame, so calls are serialised.
type Renderer struct {
	mu   sync.Mutex
	opts Options
	dc   *gg.Context
}

// NewRenderer creates a renderer; zero sizes fall back to the defaults.
func NewRenderer(opts Options) *Renderer {
	def := DefaultOptions()
	if opts.Width <= 0 {
		opts.Width = def.Width
	}
	if opts.Height <= 0 {
		opts.Height = def.Height
	}
	return &Renderer{
		opts: opts,
		dc:   gg.NewContext(opts.Width, opts.Height),
	}
}

// Options returns the renderer options.
func (r *Renderer) Options() Options {
	return r.opts
}

// Image renders snap and returns a copy of the frame.
func (r *Renderer) Image(snap *game.WorldSnapshot) (*image.RGBA, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.draw(snap); err != nil {
		return nil, err
	}
	src := r.frame()
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst, nil
}

// RenderPNG renders snap and writes it to w as PNG.
func (r *Renderer) RenderPNG(snap *game.WorldSnapshot, w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.draw(snap); err != nil {
		return err
	}
	return r.dc.EncodePNG(w)
}

// SavePNG renders snap to a PNG file.
func (r *Renderer) SavePNG(snap *game.WorldSnapshot, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.draw(snap); err != nil {
		return err
	}
	return r.dc.SavePNG(path)
}

func (r *Renderer) frame() *image.RGBA {
	return r.dc.Image().(*image.RGBA)
}

// draw must be called with r.mu held.
func (r *Renderer) draw(snap *game.WorldSnapshot) error {
	if snap == nil || snap.Width <= 0 || snap.Height <= 0 {
		return errNoSnapshot
	}
	dc := r.dc
	w, h := float64(r.opts.Width), float64(r.opts.Height)
	sx, sy := w/snap.Width, h/snap.Height

	dc.SetColor(r.opts.Background)
	dc.Clear()

	px := newRaster(r.frame())
	if r.opts.DrawGrid {
		drawOccupancy(px, snap.Grid, sx, sy)
		drawGridLines(px, snap.Grid, sx, sy)
	}
	drawParticles(px, snap, sx, sy)

	dc.SetColor(ContrastText(r.opts.Background))
	dc.DrawString(fmt.Sprintf("tick %d   particles %d   %.1f tps   cells %d/%d   max/cell %d",
		snap.Tick, snap.ParticleCount, snap.TPS,
		snap.Grid.Stats.NonEmptyCells, snap.Grid.Stats.TotalCells, snap.Grid.Stats.MaxInCell), 8, 16)

	return nil
}

// drawOccupancy shades every non-empty cell, brighter the fuller it is
// relative to the fullest cell.
func drawOccupancy(px raster, g game.GridSnapshot, sx, sy float64) {
	peak := g.Stats.MaxInCell
	if peak == 0 || len(g.Occupancy) != g.Cols*g.Rows {
		return
	}
	for cy := 0; cy < g.Rows; cy++ {
		y0 := int(math.Round(float64(cy) * g.CellH * sy))
		y1 := int(math.Round(float64(cy+1) * g.CellH * sy))
		for cx := 0; cx < g.Cols; cx++ {
			n := g.Occupancy[cy*g.Cols+cx]
			if n == 0 {
				continue
			}
			x0 := int(math.Round(float64(cx) * g.CellW * sx))
			x1 := int(math.Round(float64(cx+1) * g.CellW * sx))
			c := heatColor
			c.A = uint8(20 + 100*n/peak)
			px.fillRect(x0, y0, x1-x0, y1-y0, c)
		}
	}
}

func drawGridLines(px raster, g game.GridSnapshot, sx, sy float64) {
	for cx := 0; cx <= g.Cols; cx++ {
		x := int(math.Round(float64(cx) * g.CellW * sx))
		px.vline(min(x, px.width-1), 0, px.height-1, gridLineColor)
	}
	for cy := 0; cy <= g.Rows; cy++ {
		y := int(math.Round(float64(cy) * g.CellH * sy))
		px.hline(0, px.width-1, min(y, px.height-1), gridLineColor)
	}
}

// drawParticles draws each particle, plus its wrapped copy when it straddles
// an edge of the torus.
func drawParticles(px raster, snap *game.WorldSnapshot, sx, sy float64) {
	w, h := float64(px.width), float64(px.height)
	for i := range snap.Particles {
		p := &snap.Particles[i]
		c := HexToRGB(p.Color)
		if p.Color == "" {
			c = KindColor(p.Kind, 8)
		}
		x, y := p.X*sx, p.Y*sy
		rad := math.Max(1, p.Radius*math.Min(sx, sy))

		for _, ox := range edgeCopies(x, rad, w) {
			for _, oy := range edgeCopies(y, rad, h) {
				px.fillCircle(int(x+ox+0.5), int(y+oy+0.5), rad, c)
			}
		}
	}
}

// edgeCopies returns the offsets at which a disc at v must be drawn so it
// wraps around an axis of length size.
func edgeCopies(v, rad, size float64) []float64 {
	switch {
	case v-rad < 0:
		return []float64{0, size}
	case v+rad >= size:
		return []float64{0, -size}
	default:
		return []float64{0}
	}
}
