package game

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"testing"
	"time"

	"swarm-grid/internal/game/spatial"
)

func newTestEngine(t testing.TB, particles, workers int) *Engine {
	t.Helper()
	cfg := DefaultEngineConfig()
	cfg.Seed = 42
	cfg.InitialParticles = particles
	cfg.Workers = workers
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine
}

// TestNewEngine verifies construction and configuration errors
func TestNewEngine(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*EngineConfig)
		wantErr bool
	}{
		{"defaults", func(c *EngineConfig) {}, false},
		{"offset bounds", func(c *EngineConfig) {
			c.Bounds = spatial.Bounds{MinX: -640, MaxX: 640, MinY: -360, MaxY: 360}
		}, false},
		{"zero cells", func(c *EngineConfig) { c.CellsX = 0 }, true},
		{"empty world", func(c *EngineConfig) { c.Bounds.MaxX = 0 }, true},
		{"zero tick rate", func(c *EngineConfig) { c.TickRate = 0 }, true},
		{"zero query radius", func(c *EngineConfig) { c.QueryRadius = 0 }, true},
		{"radius below diameter", func(c *EngineConfig) { c.QueryRadius = c.MaxRadius }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultEngineConfig()
			cfg.InitialParticles = 10
			tt.mutate(&cfg)

			engine, err := NewEngine(cfg)
			if tt.wantErr {
				if !errors.Is(err, spatial.ErrInvalidConfiguration) {
					t.Fatalf("Expected ErrInvalidConfiguration, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewEngine failed: %v", err)
			}
			if engine.ParticleCount() != 10 {
				t.Errorf("Expected 10 particles, got %d", engine.ParticleCount())
			}
			if engine.GetSnapshot() == nil {
				t.Error("Expected an initial snapshot")
			}
		})
	}
}

// TestEngineStartStop verifies engine can start and stop without panics
func TestEngineStartStop(t *testing.T) {
	engine := newTestEngine(t, 50, 2)

	engine.Start()
	if !engine.Running() {
		t.Fatal("Expected engine to be running")
	}
	time.Sleep(100 * time.Millisecond)
	engine.Stop()

	// Should not panic on double stop
	engine.Stop()

	if engine.LastTick().Tick == 0 {
		t.Error("Expected at least one tick while running")
	}

	// Restart after stop
	engine.Start()
	engine.Stop()
	if engine.Running() {
		t.Error("Expected engine to be stopped")
	}
}

func TestAddParticlesLimits(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Seed = 1
	cfg.InitialParticles = 0
	cfg.Limits.MaxBatchAdd = 10
	cfg.Limits.MaxParticles = 25
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	if got := engine.AddParticles(100); got != 10 {
		t.Errorf("Expected batch limit of 10, got %d", got)
	}
	engine.AddParticles(10)
	if got := engine.AddParticles(10); got != 5 {
		t.Errorf("Expected 5 particles to fit under the cap, got %d", got)
	}
	if got := engine.AddParticles(10); got != 0 {
		t.Errorf("Expected no room left, got %d", got)
	}
	if got := engine.AddParticles(-3); got != 0 {
		t.Errorf("Expected negative count to add nothing, got %d", got)
	}
	if engine.ParticleCount() != 25 {
		t.Errorf("Expected 25 particles, got %d", engine.ParticleCount())
	}
	if _, ok := engine.AddParticleAt(10, 10, 0, 0); ok {
		t.Error("Expected AddParticleAt to fail at the cap")
	}
}

func TestAddParticleAt(t *testing.T) {
	engine := newTestEngine(t, 0, 1)
	w := engine.Config().Bounds.Width()

	id, ok := engine.AddParticleAt(-10, 100, 5, 0)
	if !ok {
		t.Fatal("AddParticleAt failed")
	}

	// Visible to queries before any tick: the incremental path indexes it.
	found := engine.Neighbors(w-10, 100, 1)
	if len(found) != 1 || found[0].ID != id {
		t.Fatalf("Expected particle %d wrapped to x=%g, got %+v", id, w-10, found)
	}

	// A query window across the left edge finds it too.
	if n := engine.Neighbors(5, 100, 20); len(n) != 1 {
		t.Errorf("Expected wrap-around neighbor, got %d", len(n))
	}

	for _, bad := range [][4]float64{
		{math.NaN(), 0, 0, 0},
		{0, math.Inf(1), 0, 0},
		{0, 0, math.Inf(-1), 0},
	} {
		if _, ok := engine.AddParticleAt(bad[0], bad[1], bad[2], bad[3]); ok {
			t.Errorf("Expected AddParticleAt(%v) to be rejected", bad)
		}
	}

	// NaN velocity asks for a random one.
	id, ok = engine.AddParticleAt(300, 300, math.NaN(), math.NaN())
	if !ok {
		t.Fatal("Expected NaN velocity to be accepted")
	}
	p := engine.particles[len(engine.particles)-1]
	if p.ID != id || math.IsNaN(p.VX) || math.IsNaN(p.VY) {
		t.Errorf("Expected a random finite velocity, got %+v", p)
	}
}

// TestAddParticleJustBelowEdge covers a position whose wrap rounds onto the
// far edge: it must still be indexed and found across the seam.
func TestAddParticleJustBelowEdge(t *testing.T) {
	engine := newTestEngine(t, 0, 1)
	b := engine.Config().Bounds

	if _, ok := engine.AddParticleAt(b.MinX-1e-13, b.MinY+5, 0, 0); !ok {
		t.Fatal("AddParticleAt failed")
	}
	if gs := engine.GridStats(); gs.TotalEntities != 1 {
		t.Fatalf("Expected 1 indexed particle, got %d", gs.TotalEntities)
	}
	if n := engine.Neighbors(b.MaxX-1, b.MinY+5, 5); len(n) != 1 {
		t.Errorf("Expected the particle across the seam, got %d", len(n))
	}

	engine.Step()
	if gs := engine.GridStats(); gs.TotalEntities != 1 {
		t.Errorf("Expected 1 indexed particle after a tick, got %d", gs.TotalEntities)
	}
}

func TestCellAt(t *testing.T) {
	engine := newTestEngine(t, 0, 1)
	b := engine.Config().Bounds
	cw := b.Width() / float64(engine.Config().CellsX)
	ch := b.Height() / float64(engine.Config().CellsY)

	engine.AddParticleAt(b.MinX+cw/2, b.MinY+ch/2, 0, 0)
	engine.AddParticleAt(b.MinX+cw/3, b.MinY+ch/3, 0, 0)

	tests := []struct {
		name   string
		x, y   float64
		cx, cy int
		count  int
	}{
		{"first cell", b.MinX + 1, b.MinY + 1, 0, 0, 2},
		{"wrapped left of the world", b.MinX - 1, b.MinY + 1, engine.Config().CellsX - 1, 0, 0},
		{"wrapped past the far corner", b.MaxX + cw + 1, b.MaxY + 1, 1, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := engine.CellAt(tt.x, tt.y)
			if !ok {
				t.Fatal("Expected a cell")
			}
			if c.CX != tt.cx || c.CY != tt.cy || c.Count != tt.count {
				t.Errorf("Expected cell (%d,%d) with %d particles, got %+v", tt.cx, tt.cy, tt.count, c)
			}
			wantX := b.MinX + float64(tt.cx)*cw
			if math.Abs(c.X-wantX) > 1e-9 || math.Abs(c.W-cw) > 1e-9 || math.Abs(c.H-ch) > 1e-9 {
				t.Errorf("Expected rect at x=%g size %gx%g, got %+v", wantX, cw, ch, c)
			}
		})
	}

	if _, ok := engine.CellAt(math.NaN(), 0); ok {
		t.Error("Expected NaN to be rejected")
	}
}

func TestStepKeepsParticlesInBounds(t *testing.T) {
	engine := newTestEngine(t, 400, 4)
	b := engine.Config().Bounds

	for i := 0; i < 60; i++ {
		engine.Step()
	}

	for _, p := range engine.particles {
		if p.X < b.MinX || p.X >= b.MaxX || p.Y < b.MinY || p.Y >= b.MaxY {
			t.Fatalf("Particle %d escaped the world: (%g,%g)", p.ID, p.X, p.Y)
		}
		if s := p.Speed(); s > p.MaxSpeed+1e-9 {
			t.Fatalf("Particle %d exceeds max speed: %g", p.ID, s)
		}
	}
}

// TestTickNeighborsMatchBruteForce checks the grid-driven neighbor phase
// finds exactly the pairs an exhaustive toroidal scan finds.
func TestTickNeighborsMatchBruteForce(t *testing.T) {
	engine := newTestEngine(t, 300, 3)
	engine.Step()

	b := engine.Config().Bounds
	r := engine.Config().QueryRadius
	ps := append([]Particle(nil), engine.particles...)

	want := 0
	perParticle := make([]int, len(ps))
	for i := range ps {
		for j := range ps {
			if i != j && b.DistanceSq(ps[i].X, ps[i].Y, ps[j].X, ps[j].Y) <= r*r {
				perParticle[i]++
				want++
			}
		}
	}

	stats := engine.Step()
	if stats.Neighbors != want {
		t.Errorf("Expected %d neighbor pairs, got %d", want, stats.Neighbors)
	}
	if stats.Candidates < stats.Neighbors {
		t.Errorf("Candidates %d fewer than neighbors %d", stats.Candidates, stats.Neighbors)
	}
	for i, n := range perParticle {
		if engine.counts[i] != n {
			t.Fatalf("Particle %d: expected %d neighbors, got %d", i, n, engine.counts[i])
		}
	}
}

func TestNeighborsMatchesBruteForce(t *testing.T) {
	engine := newTestEngine(t, 500, 4)
	for i := 0; i < 5; i++ {
		engine.Step()
	}

	b := engine.Config().Bounds
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 50; trial++ {
		x, y := RandPosition(rng, b)
		r := 10 + rng.Float64()*150

		var want []uint32
		for _, p := range engine.particles {
			if b.DistanceSq(x, y, p.X, p.Y) <= r*r {
				want = append(want, p.ID)
			}
		}
		var got []uint32
		for _, p := range engine.Neighbors(x, y, r) {
			got = append(got, p.ID)
		}

		sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
		sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
		if len(got) != len(want) {
			t.Fatalf("Query (%g,%g,r=%g): expected %d neighbors, got %d", x, y, r, len(want), len(got))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("Query (%g,%g,r=%g): expected IDs %v, got %v", x, y, r, want, got)
			}
		}
	}
}

func TestNeighborsRadiusLimits(t *testing.T) {
	engine := newTestEngine(t, 100, 1)

	if n := engine.Neighbors(100, 100, -1); n != nil {
		t.Errorf("Expected nil for negative radius, got %d results", len(n))
	}
	if n := engine.Neighbors(100, 100, math.NaN()); n != nil {
		t.Errorf("Expected nil for NaN radius, got %d results", len(n))
	}

	// Radius far beyond the limit is capped, not rejected.
	huge := engine.Neighbors(100, 100, 1e9)
	if len(huge) == 0 {
		t.Error("Expected capped huge radius to still return neighbors")
	}
}

func TestSnapshotAfterStep(t *testing.T) {
	engine := newTestEngine(t, 200, 2)
	engine.Step()

	snap := engine.GetSnapshot()
	if snap == nil {
		t.Fatal("GetSnapshot returned nil")
	}
	if snap.Tick != 1 {
		t.Errorf("Expected tick 1, got %d", snap.Tick)
	}
	if snap.ParticleCount != 200 || len(snap.Particles) != 200 {
		t.Errorf("Expected 200 particles, got count=%d len=%d", snap.ParticleCount, len(snap.Particles))
	}

	cols, rows := snap.Grid.Cols, snap.Grid.Rows
	if len(snap.Grid.Occupancy) != cols*rows {
		t.Fatalf("Expected %d occupancy cells, got %d", cols*rows, len(snap.Grid.Occupancy))
	}
	total := 0
	for _, n := range snap.Grid.Occupancy {
		total += n
	}
	if total != snap.Grid.Stats.TotalEntities {
		t.Errorf("Occupancy sum %d disagrees with stats %d", total, snap.Grid.Stats.TotalEntities)
	}
	if total != 200 {
		t.Errorf("Expected every particle indexed after the tick, got %d", total)
	}

	prev := snap.Sequence
	engine.Step()
	if next := engine.GetSnapshot(); next.Sequence <= prev {
		t.Errorf("Expected sequence to advance past %d, got %d", prev, next.Sequence)
	}
}

func TestSnapshotParticleCap(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Seed = 3
	cfg.InitialParticles = 50
	cfg.Limits.MaxSnapshotParticles = 20
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	engine.Step()

	snap := engine.GetSnapshot()
	if len(snap.Particles) != 20 {
		t.Errorf("Expected snapshot capped at 20, got %d", len(snap.Particles))
	}
	if snap.ParticleCount != 50 {
		t.Errorf("Expected live count 50, got %d", snap.ParticleCount)
	}
}

func TestTickObserver(t *testing.T) {
	engine := newTestEngine(t, 20, 1)

	var ticks []uint64
	engine.SetTickObserver(func(s TickStats) {
		ticks = append(ticks, s.Tick)
		if s.Particles != 20 {
			t.Errorf("Expected 20 particles in stats, got %d", s.Particles)
		}
	})
	engine.Step()
	engine.Step()
	engine.SetTickObserver(nil)
	engine.Step()

	if len(ticks) != 2 || ticks[0] != 1 || ticks[1] != 2 {
		t.Errorf("Expected observer to see ticks [1 2], got %v", ticks)
	}
}

// TestWorkerCountDoesNotChangeResults verifies the neighbor phase is a pure
// function of the tick-start state, however the particles are split.
func TestWorkerCountDoesNotChangeResults(t *testing.T) {
	serial := newTestEngine(t, 300, 1)
	parallel := newTestEngine(t, 300, 8)

	for i := 0; i < 20; i++ {
		serial.Step()
		parallel.Step()
	}

	for i := range serial.particles {
		a, b := serial.particles[i], parallel.particles[i]
		if a != b {
			t.Fatalf("Particle %d diverged: serial %+v, parallel %+v", i, a, b)
		}
	}
}

func TestCoincidentParticlesSeparate(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Seed = 9
	cfg.InitialParticles = 0
	cfg.Wander = 0
	cfg.Flock.Separation = 0
	cfg.Flock.Alignment = 0
	cfg.Flock.Cohesion = 0
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	engine.AddParticleAt(200, 200, 0, 0)
	engine.AddParticleAt(200, 200, 0, 0)

	engine.Step()

	a, b := engine.particles[0], engine.particles[1]
	d := engine.Config().Bounds.Distance(a.X, a.Y, b.X, b.Y)
	if math.Abs(d-(a.Radius+b.Radius)) > 1e-9 {
		t.Errorf("Expected coincident particles pushed to touching distance %g, got %g", a.Radius+b.Radius, d)
	}
}
