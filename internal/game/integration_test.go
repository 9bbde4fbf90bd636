package game

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// INTEGRATION TESTS: LIVE ENGINE UNDER CONCURRENT CALLERS
// The tick loop runs while API-style callers query and add particles.
// Run with -race to check the phase barrier.
// =============================================================================

func TestIntegration_ConcurrentQueriesWhileTicking(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cfg := DefaultEngineConfig()
	cfg.Seed = 11
	cfg.TickRate = 60
	cfg.Workers = 4
	cfg.InitialParticles = 800
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	var ticks int64
	engine.SetTickObserver(func(TickStats) { atomic.AddInt64(&ticks, 1) })
	engine.Start()
	defer engine.Stop()

	var (
		wg      sync.WaitGroup
		queries int64
		added   int64
	)
	stop := make(chan struct{})

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for {
				select {
				case <-stop:
					return
				default:
				}
				x, y := RandPosition(rng, cfg.Bounds)
				for _, p := range engine.Neighbors(x, y, 80) {
					if d := cfg.Bounds.Distance(x, y, p.X, p.Y); d > 80+1e-9 {
						t.Errorf("Neighbor %d at distance %g outside radius", p.ID, d)
						return
					}
				}
				engine.GridStats()
				atomic.AddInt64(&queries, 1)
			}
		}(int64(w))
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			atomic.AddInt64(&added, int64(engine.AddParticles(10)))
			time.Sleep(10 * time.Millisecond)
		}
	}()

	time.Sleep(500 * time.Millisecond)
	close(stop)
	wg.Wait()

	if atomic.LoadInt64(&ticks) == 0 {
		t.Fatal("Expected the engine to tick")
	}
	if atomic.LoadInt64(&queries) == 0 {
		t.Fatal("Expected queries to run")
	}
	if want := 800 + int(atomic.LoadInt64(&added)); engine.ParticleCount() != want {
		t.Errorf("Expected %d particles, got %d", want, engine.ParticleCount())
	}

	t.Logf("ticks=%d queries=%d added=%d tps=%.1f",
		atomic.LoadInt64(&ticks), atomic.LoadInt64(&queries), atomic.LoadInt64(&added), engine.TickRate())
}
