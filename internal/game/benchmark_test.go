package game

import (
	"math/rand"
	"testing"

	"swarm-grid/internal/config"
	"swarm-grid/internal/game/spatial"
)

// =============================================================================
// BENCHMARK SUITE: CRITICAL PATH PERFORMANCE TESTS
// Run with: go test -bench=. -benchmem ./internal/game/...
// =============================================================================

// -----------------------------------------------------------------------------
// ENGINE TICK BENCHMARKS
// -----------------------------------------------------------------------------

func BenchmarkEngineTick_500Particles(b *testing.B)  { benchmarkEngineTick(b, 500, 1) }
func BenchmarkEngineTick_2000Particles(b *testing.B) { benchmarkEngineTick(b, 2000, 1) }
func BenchmarkEngineTick_2000Parallel(b *testing.B)  { benchmarkEngineTick(b, 2000, 8) }
func BenchmarkEngineTick_10000Parallel(b *testing.B) { benchmarkEngineTick(b, 10000, 8) }

func benchmarkEngineTick(b *testing.B, particles, workers int) {
	engine := newTestEngine(b, particles, workers)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		engine.Step()
	}
}

// -----------------------------------------------------------------------------
// NEIGHBOR SEARCH: GRID VS EXHAUSTIVE SCAN
// -----------------------------------------------------------------------------

func BenchmarkNeighborSearch_Grid(b *testing.B) {
	engine := newTestEngine(b, 2000, 1)
	engine.Step()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		engine.ensureScratch()
		engine.queryNeighbors()
	}
}

func BenchmarkNeighborSearch_BruteForce(b *testing.B) {
	engine := newTestEngine(b, 2000, 1)
	bounds := engine.Config().Bounds
	r2 := engine.Config().QueryRadius * engine.Config().QueryRadius
	ps := engine.particles

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		n := 0
		for a := range ps {
			for c := range ps {
				if a != c && bounds.DistanceSq(ps[a].X, ps[a].Y, ps[c].X, ps[c].Y) <= r2 {
					n++
				}
			}
		}
		_ = n
	}
}

// -----------------------------------------------------------------------------
// SNAPSHOT GENERATION BENCHMARKS
// -----------------------------------------------------------------------------

func BenchmarkProduceSnapshot_5000Particles(b *testing.B) {
	engine := newTestEngine(b, 5000, 1)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		engine.mu.Lock()
		engine.produceSnapshot()
		engine.mu.Unlock()
	}
}

// -----------------------------------------------------------------------------
// GRID REBUILD UNDER DIFFERENT CELL COUNTS
// -----------------------------------------------------------------------------

func BenchmarkGridRebuild_CellCounts(b *testing.B) {
	w, h := config.DefaultWorld().Width, config.DefaultWorld().Height
	rng := rand.New(rand.NewSource(1))
	pos := make([][2]float64, 5000)
	for i := range pos {
		pos[i] = [2]float64{rng.Float64() * w, rng.Float64() * h}
	}

	for _, cells := range []struct {
		name   string
		cx, cy int
	}{
		{"8x4", 8, 4},
		{"16x9", 16, 9},
		{"64x36", 64, 36},
	} {
		b.Run(cells.name, func(b *testing.B) {
			g, err := spatial.NewSpatialGridFromCounts(w, h, cells.cx, cells.cy)
			if err != nil {
				b.Fatal(err)
			}
			g.Reserve(len(pos))

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				g.RebuildFunc(len(pos), func(j int) (float64, float64) { return pos[j][0], pos[j][1] })
			}
		})
	}
}
