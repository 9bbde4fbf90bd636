// Command viewer runs the simulation locally in a window.
//
// Controls: drag to pan, wheel to zoom, Space pauses, G toggles the grid
// overlay, N steps once while paused, R resets the camera, + spawns a batch
// of particles, the right mouse button highlights the neighbors of the cursor.
package main

import (
	"fmt"
	"image/color"
	"log"

	"swarm-grid/internal/config"
	"swarm-grid/internal/game"
	"swarm-grid/internal/render"
	"swarm-grid/internal/viewer"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/joho/godotenv"
)

var (
	background    = color.RGBA{12, 12, 28, 255}
	gridLineColor = color.RGBA{50, 50, 75, 255}
	heatColor     = color.RGBA{255, 190, 60, 255}
	probeColor    = color.RGBA{255, 255, 255, 255}
)

// Viewer implements ebiten.Game around a local engine. Update and Draw run
// on the same goroutine, so reading the snapshot in Draw cannot race a tick.
type Viewer struct {
	engine *game.Engine
	cam    *viewer.Camera
	colors map[string]color.RGBA

	paused   bool
	showGrid bool
	batch    int

	probing    bool
	probeX     float64
	probeY     float64
	probeFound []game.ParticleSnapshot
	probeCell  game.CellInfo
	last       game.TickStats
}

func newViewer(engine *game.Engine, batch int) *Viewer {
	return &Viewer{
		engine:   engine,
		cam:      viewer.NewCamera(1),
		colors:   make(map[string]color.RGBA),
		showGrid: true,
		batch:    batch,
	}
}

// Update is called every tick by ebiten
func (v *Viewer) Update() error {
	v.handleInput()

	if !v.paused {
		v.last = v.engine.Step()
	} else if inpututil.IsKeyJustPressed(ebiten.KeyN) {
		v.last = v.engine.Step()
	}

	if v.probing {
		v.probeFound = v.engine.Neighbors(v.probeX, v.probeY, v.engine.Config().QueryRadius)
		v.probeCell, _ = v.engine.CellAt(v.probeX, v.probeY)
	}
	return nil
}

func (v *Viewer) handleInput() {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		v.paused = !v.paused
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyG) {
		v.showGrid = !v.showGrid
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		v.cam.Reset()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEqual) || inpututil.IsKeyJustPressed(ebiten.KeyKPAdd) {
		if n := v.engine.AddParticles(v.batch); n < v.batch {
			log.Printf("⚠️ Only %d of %d particles added", n, v.batch)
		}
	}

	mx, my := ebiten.CursorPosition()
	sx, sy := float64(mx), float64(my)

	// Zoom
	_, wheelY := ebiten.Wheel()
	v.cam.ZoomAt(wheelY, sx, sy)

	// Pan (drag)
	v.cam.Drag(sx, sy, ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft))

	v.probing = ebiten.IsMouseButtonPressed(ebiten.MouseButtonRight)
	if v.probing {
		v.probeX, v.probeY = v.cam.ScreenToWorld(sx, sy)
	}
}

// Draw is called each frame by ebiten
func (v *Viewer) Draw(screen *ebiten.Image) {
	screen.Fill(background)

	snap := v.engine.GetSnapshot()
	if snap == nil {
		return
	}
	sw, sh := float64(screen.Bounds().Dx()), float64(screen.Bounds().Dy())
	x0, x1, y0, y1 := v.cam.Tiles(sw, sh, snap.Width, snap.Height)

	for tx := x0; tx < x1; tx++ {
		for ty := y0; ty < y1; ty++ {
			ox, oy := float64(tx)*snap.Width, float64(ty)*snap.Height
			if v.showGrid {
				v.drawGrid(screen, snap, ox, oy)
			}
			v.drawParticles(screen, snap, ox, oy, sw, sh)
		}
	}

	if v.probing {
		v.drawProbe(screen)
	}

	g := snap.Grid.Stats
	state := "running"
	if v.paused {
		state = "paused"
	}
	ebitenutil.DebugPrint(screen, fmt.Sprintf(
		"FPS %.0f  TPS %.0f  tick %d (%s)\nparticles %d  cells %d/%d  max/cell %d\ntick %s  query %s  rebuild %s\ncandidates %d  neighbors %d  zoom %.2f",
		ebiten.ActualFPS(), ebiten.ActualTPS(), snap.Tick, state,
		snap.ParticleCount, g.NonEmptyCells, g.TotalCells, g.MaxInCell,
		v.last.Duration, v.last.Query, v.last.Rebuild,
		snap.Candidates, snap.Neighbors, v.cam.Zoom))
}

func (v *Viewer) drawGrid(screen *ebiten.Image, snap *game.WorldSnapshot, ox, oy float64) {
	gs := snap.Grid
	peak := gs.Stats.MaxInCell
	cw, ch := float32(gs.CellW*v.cam.Zoom), float32(gs.CellH*v.cam.Zoom)

	if peak > 0 && len(gs.Occupancy) == gs.Cols*gs.Rows {
		for i, n := range gs.Occupancy {
			if n == 0 {
				continue
			}
			cx, cy := i%gs.Cols, i/gs.Cols
			sx, sy := v.cam.WorldToScreen(ox+float64(cx)*gs.CellW, oy+float64(cy)*gs.CellH)
			c := heatColor
			a := uint8(20 + 100*n/peak)
			c.R, c.G, c.B, c.A = premul(c.R, a), premul(c.G, a), premul(c.B, a), a
			vector.DrawFilledRect(screen, float32(sx), float32(sy), cw, ch, c, false)
		}
	}

	ax, ay := v.cam.WorldToScreen(ox, oy)
	bx, by := v.cam.WorldToScreen(ox+snap.Width, oy+snap.Height)
	for cx := 0; cx <= gs.Cols; cx++ {
		x, _ := v.cam.WorldToScreen(ox+float64(cx)*gs.CellW, oy)
		vector.StrokeLine(screen, float32(x), float32(ay), float32(x), float32(by), 1, gridLineColor, false)
	}
	for cy := 0; cy <= gs.Rows; cy++ {
		_, y := v.cam.WorldToScreen(ox, oy+float64(cy)*gs.CellH)
		vector.StrokeLine(screen, float32(ax), float32(y), float32(bx), float32(y), 1, gridLineColor, false)
	}
}

func (v *Viewer) drawParticles(screen *ebiten.Image, snap *game.WorldSnapshot, ox, oy, sw, sh float64) {
	for i := range snap.Particles {
		p := &snap.Particles[i]
		sx, sy := v.cam.WorldToScreen(p.X+ox, p.Y+oy)
		r := p.Radius * v.cam.Zoom
		if sx < -r || sy < -r || sx > sw+r || sy > sh+r {
			continue
		}
		vector.DrawFilledCircle(screen, float32(sx), float32(sy), float32(max(r, 1)), v.color(p), true)
	}
}

func (v *Viewer) drawProbe(screen *ebiten.Image) {
	radius := v.engine.Config().QueryRadius
	b := v.engine.Config().Bounds
	wx, wy := b.Wrap(v.probeX, v.probeY)

	// Outline the cell under the cursor, shifted onto the tile being hovered.
	c := v.probeCell
	cx, cy := v.cam.WorldToScreen(c.X+v.probeX-wx, c.Y+v.probeY-wy)
	vector.StrokeRect(screen, float32(cx), float32(cy), float32(c.W*v.cam.Zoom), float32(c.H*v.cam.Zoom), 1, probeColor, false)

	sx, sy := v.cam.WorldToScreen(v.probeX, v.probeY)
	vector.StrokeCircle(screen, float32(sx), float32(sy), float32(radius*v.cam.Zoom), 1, probeColor, true)

	for i := range v.probeFound {
		p := &v.probeFound[i]
		// Draw each hit at its nearest image relative to the cursor.
		dx, dy := b.Delta(wx, wy, p.X, p.Y)
		px, py := v.cam.WorldToScreen(v.probeX+dx, v.probeY+dy)
		vector.StrokeCircle(screen, float32(px), float32(py), float32(max(p.Radius*v.cam.Zoom, 2)+2), 1.5, probeColor, true)
	}
}

func (v *Viewer) color(p *game.ParticleSnapshot) color.RGBA {
	if c, ok := v.colors[p.Color]; ok {
		return c
	}
	c := render.HexToRGB(p.Color)
	v.colors[p.Color] = c
	return c
}

// Layout follows the window size
func (v *Viewer) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

// premul scales a color channel by alpha, as ebiten expects premultiplied colors.
func premul(ch, a uint8) uint8 {
	return uint8(uint16(ch) * uint16(a) / 255)
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("💡 No .env file found, using environment variables only")
	}

	appConfig := config.Load()
	if err := appConfig.Validate(); err != nil {
		log.Fatalf("❌ %v", err)
	}

	engineCfg := game.EngineConfigFrom(appConfig)
	engineCfg.Palette = render.Palette(engineCfg.Kinds)
	engine, err := game.NewEngine(engineCfg)
	if err != nil {
		log.Fatalf("❌ Engine: %v", err)
	}

	log.Printf("🐝 Viewer: %d particles on a %dx%d grid", engine.ParticleCount(), engineCfg.CellsX, engineCfg.CellsY)

	ebiten.SetWindowSize(int(appConfig.World.Width), int(appConfig.World.Height))
	ebiten.SetWindowTitle("Swarm Grid")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetTPS(appConfig.Sim.TickRate)

	if err := ebiten.RunGame(newViewer(engine, 100)); err != nil {
		log.Fatal(err)
	}
}
