package game

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"swarm-grid/internal/config"
	"swarm-grid/internal/game/spatial"
)

// EngineConfig holds everything the engine needs to build its world.
type EngineConfig struct {
	TickRate         int
	Bounds           spatial.Bounds
	CellsX, CellsY   int
	QueryRadius      float64
	Workers          int
	Seed             int64 // 0 picks one from the clock
	InitialParticles int

	Friction             float64
	MaxSpeed             float64
	MinRadius, MaxRadius float64
	Kinds                int
	Palette              []string // Color per kind; empty leaves Particle.Color unset
	Wander               float64
	Flock                config.FlockConfig

	Limits config.ResourceLimits
}

// EngineConfigFrom maps application configuration onto engine settings.
func EngineConfigFrom(c config.AppConfig) EngineConfig {
	return EngineConfig{
		TickRate:         c.Sim.TickRate,
		Bounds:           spatial.Bounds{MinX: 0, MaxX: c.World.Width, MinY: 0, MaxY: c.World.Height},
		CellsX:           c.Spatial.CellsX,
		CellsY:           c.Spatial.CellsY,
		QueryRadius:      c.Spatial.QueryRadius,
		Workers:          c.Sim.Workers,
		Seed:             c.Sim.Seed,
		InitialParticles: c.Sim.Particles,
		Friction:         c.Sim.Friction,
		MaxSpeed:         c.Sim.MaxSpeed,
		MinRadius:        c.Sim.MinRadius,
		MaxRadius:        c.Sim.MaxRadius,
		Kinds:            c.Sim.Kinds,
		Wander:           c.Sim.Wander,
		Flock:            c.Sim.Flock,
		Limits:           c.Limits,
	}
}

// DefaultEngineConfig returns engine settings built from config defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfigFrom(config.Default())
}

// TickStats describes one completed tick.
type TickStats struct {
	Tick       uint64
	Particles  int
	Duration   time.Duration // Whole tick
	Query      time.Duration // Parallel neighbor phase
	Integrate  time.Duration
	Rebuild    time.Duration
	Grid       spatial.GridStats
	Candidates int // Handles returned by grid queries
	Neighbors  int // Candidates within the exact query radius
}

// Engine runs a particle simulation on a toroidal world, using the spatial
// grid for every neighbor lookup.
//
// Each tick runs in strict phases: parallel read-only neighbor queries, then
// a serial integration step that moves particles, then a grid rebuild so the
// index matches the new positions. No goroutine queries the grid while it is
// being rebuilt.
type Engine struct {
	mu        sync.RWMutex
	cfg       EngineConfig
	particles []Particle
	grid      *spatial.SpatialGrid
	nextID    uint32
	dirty     bool // Grid lags particle positions

	// Per-particle outputs of the neighbor phase
	accel   []Vec2
	dv      []Vec2
	dp      []Vec2
	counts  []int
	workers []workerScratch

	wander *WanderField
	rng    *rand.Rand

	tickRate int
	running  bool
	ticker   *time.Ticker
	stopChan chan struct{}
	done     chan struct{}

	tickCount uint64
	lastStats TickStats
	meter     *RateMeter
	observer  func(TickStats)

	// Snapshot system for lock-free render separation
	snapshotPool *SnapshotPool
}

// workerScratch is owned by exactly one goroutine during the neighbor phase.
type workerScratch struct {
	candidates []spatial.Handle
	neighbors  []Neighbor
	nCand      int
	nNeigh     int
}

// NewEngine builds the grid and spawns the initial particles. Invalid grid
// geometry is reported as spatial.ErrInvalidConfiguration.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.TickRate <= 0 {
		return nil, fmt.Errorf("%w: tick rate %d must be positive", spatial.ErrInvalidConfiguration, cfg.TickRate)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Kinds <= 0 {
		cfg.Kinds = 1
	}
	if !(cfg.QueryRadius > 0) {
		return nil, fmt.Errorf("%w: query radius %g must be positive", spatial.ErrInvalidConfiguration, cfg.QueryRadius)
	}
	if cfg.QueryRadius < 2*cfg.MaxRadius {
		// Touching particles must always show up as neighbors.
		return nil, fmt.Errorf("%w: query radius %g below particle diameter %g",
			spatial.ErrInvalidConfiguration, cfg.QueryRadius, 2*cfg.MaxRadius)
	}

	grid, err := spatial.NewSpatialGridWithCounts(cfg.Bounds, cfg.CellsX, cfg.CellsY)
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	capacity := cfg.Limits.MaxParticles
	if capacity <= 0 || capacity < cfg.InitialParticles {
		capacity = cfg.InitialParticles
	}
	grid.Reserve(capacity)

	cols, rows, _ := grid.Dimensions()
	snapCap := cfg.Limits.MaxSnapshotParticles
	if snapCap <= 0 {
		snapCap = capacity
	}

	e := &Engine{
		cfg:          cfg,
		particles:    make([]Particle, 0, capacity),
		grid:         grid,
		workers:      make([]workerScratch, cfg.Workers),
		wander:       NewWanderField(seed, cfg.Wander),
		rng:          rand.New(rand.NewSource(seed)),
		tickRate:     cfg.TickRate,
		meter:        NewRateMeter(cfg.TickRate),
		snapshotPool: NewSnapshotPool(snapCap, cols*rows),
	}

	if cfg.InitialParticles > 0 {
		e.mu.Lock()
		for i := 0; i < cfg.InitialParticles; i++ {
			x, y := RandPosition(e.rng, cfg.Bounds)
			e.spawn(x, y, math.NaN(), math.NaN())
		}
		e.mu.Unlock()
	}
	e.mu.Lock()
	e.produceSnapshot()
	e.mu.Unlock()

	return e, nil
}

// Start begins the simulation loop
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopChan = make(chan struct{})
	e.done = make(chan struct{})
	e.ticker = time.NewTicker(time.Second / time.Duration(e.tickRate))
	ticker, stop, done := e.ticker, e.stopChan, e.done
	e.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-ticker.C:
				e.Step()
			case <-stop:
				return
			}
		}
	}()

	log.Printf("🎮 Engine started at %d TPS with %d particles", e.tickRate, e.ParticleCount())
}

// Stop stops the simulation loop and waits for the running tick to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.ticker.Stop()
	close(e.stopChan)
	done := e.done
	e.mu.Unlock()

	<-done
	log.Println("🛑 Engine stopped")
}

// Running reports whether the tick loop is active.
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// SetTickObserver registers fn to be called after every tick, outside the
// engine lock. Pass nil to remove it.
func (e *Engine) SetTickObserver(fn func(TickStats)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer = fn
}

// Step advances the simulation by exactly one tick.
func (e *Engine) Step() TickStats {
	e.mu.Lock()
	stats := e.tick()
	observer := e.observer
	e.mu.Unlock()

	e.meter.Tick()
	if observer != nil {
		observer(stats)
	}
	return stats
}

// tick must be called with e.mu held.
func (e *Engine) tick() TickStats {
	start := time.Now()
	e.tickCount++
	dt := 1.0 / float64(e.tickRate)

	stats := TickStats{Tick: e.tickCount, Particles: len(e.particles)}

	// Phase 1: make sure the index reflects current positions
	if e.dirty {
		stats.Rebuild += e.rebuild()
	}

	// Phase 2: parallel, read-only neighbor queries
	qStart := time.Now()
	e.ensureScratch()
	e.queryNeighbors()
	stats.Query = time.Since(qStart)
	for i := range e.workers {
		stats.Candidates += e.workers[i].nCand
		stats.Neighbors += e.workers[i].nNeigh
	}

	// Phase 3: serial integration
	iStart := time.Now()
	e.integrate(dt)
	e.wander.Advance(dt)
	e.dirty = true
	stats.Integrate = time.Since(iStart)

	// Phase 4: reindex and publish
	stats.Rebuild += e.rebuild()
	stats.Grid = e.grid.Stats()
	stats.Duration = time.Since(start)
	e.lastStats = stats

	e.produceSnapshot()
	return stats
}

func (e *Engine) rebuild() time.Duration {
	start := time.Now()
	ps := e.particles
	e.grid.RebuildFunc(len(ps), func(i int) (float64, float64) {
		return ps[i].X, ps[i].Y
	})
	e.dirty = false
	return time.Since(start)
}

func (e *Engine) ensureScratch() {
	n := len(e.particles)
	if cap(e.accel) < n {
		c := cap(e.particles)
		e.accel = make([]Vec2, n, c)
		e.dv = make([]Vec2, n, c)
		e.dp = make([]Vec2, n, c)
		e.counts = make([]int, n, c)
		return
	}
	e.accel = e.accel[:n]
	e.dv = e.dv[:n]
	e.dp = e.dp[:n]
	e.counts = e.counts[:n]
}

// queryNeighbors splits the particles into one contiguous chunk per worker.
// Workers only read particles and the grid and only write their own
// particles' output slots.
func (e *Engine) queryNeighbors() {
	n := len(e.particles)
	workers := len(e.workers)
	chunk := (n + workers - 1) / workers

	var g errgroup.Group
	g.SetLimit(workers)
	for w := 0; w < workers; w++ {
		ws := &e.workers[w]
		ws.nCand, ws.nNeigh = 0, 0
		lo := w * chunk
		if lo >= n {
			continue
		}
		hi := min(lo+chunk, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				e.interact(i, ws)
			}
			return nil
		})
	}
	_ = g.Wait() // workers never fail
}

// interact computes steering, collision and overlap responses for particle i.
func (e *Engine) interact(i int, ws *workerScratch) {
	ps := e.particles
	p := &ps[i]
	r := e.cfg.QueryRadius
	r2 := r * r

	ws.candidates = e.grid.QueryRadiusInto(ws.candidates[:0], p.X, p.Y, r)
	ws.neighbors = ws.neighbors[:0]
	ws.nCand += len(ws.candidates)

	var dv, dp Vec2
	for _, h := range ws.candidates {
		j := int(h)
		if j == i {
			continue
		}
		o := &ps[j]
		dx, dy := e.cfg.Bounds.Delta(p.X, p.Y, o.X, o.Y)
		d2 := dx*dx + dy*dy
		if d2 > r2 {
			continue
		}
		dist := math.Sqrt(d2)
		ws.neighbors = append(ws.neighbors, Neighbor{Index: j, DX: dx, DY: dy, Dist: dist})

		cx, cy, ok := OverlapCorrection(p.Radius, o.Radius, dx, dy, dist)
		if !ok {
			continue
		}
		if dist == 0 && j < i {
			// Coincident pair: the two halves must push opposite ways.
			cx, cy = -cx, -cy
		}
		dp.X += cx
		dp.Y += cy

		// Only exchange momentum while closing in, otherwise a resting
		// overlap would bounce every tick.
		if (o.VX-p.VX)*dx+(o.VY-p.VY)*dy < 0 {
			v := Vec2{p.VX, p.VY}
			nv, _ := ElasticCollision(Vec2{}, p.Mass, v, Vec2{dx, dy}, o.Mass, Vec2{o.VX, o.VY})
			dv = dv.Add(nv.Sub(v))
		}
	}
	ws.nNeigh += len(ws.neighbors)

	ax, ay := Flock(p, ws.neighbors, ps, e.cfg.Flock)
	wx, wy := e.wander.At(p.X, p.Y)

	e.accel[i] = Vec2{ax + wx, ay + wy}
	e.dv[i] = dv
	e.dp[i] = dp
	e.counts[i] = len(ws.neighbors)
}

func (e *Engine) integrate(dt float64) {
	b := e.cfg.Bounds
	for i := range e.particles {
		p := &e.particles[i]
		p.VX += e.dv[i].X + e.accel[i].X*dt
		p.VY += e.dv[i].Y + e.accel[i].Y*dt
		p.ApplyFriction(e.cfg.Friction, dt)
		p.SpeedLimit()

		// The position may leave the bounds here; Wrap folds it back.
		p.X += e.dp[i].X + p.VX*dt
		p.Y += e.dp[i].Y + p.VY*dt
		p.X, p.Y = b.Wrap(p.X, p.Y)
	}
}

// spawn appends a particle and indexes it immediately. NaN velocity picks a
// random one. Must be called with e.mu held.
func (e *Engine) spawn(x, y, vx, vy float64) uint32 {
	c := e.cfg
	if math.IsNaN(vx) || math.IsNaN(vy) {
		vx, vy = RandVelocity(e.rng, -c.MaxSpeed/2, c.MaxSpeed/2)
	}
	radius := c.MinRadius + e.rng.Float64()*(c.MaxRadius-c.MinRadius)
	kind := e.rng.Intn(c.Kinds)
	color := ""
	if len(c.Palette) > 0 {
		color = c.Palette[kind%len(c.Palette)]
	}

	e.nextID++
	x, y = c.Bounds.Wrap(x, y)
	e.particles = append(e.particles, Particle{
		ID:       e.nextID,
		X:        x,
		Y:        y,
		VX:       vx,
		VY:       vy,
		Radius:   radius,
		Mass:     radius * radius,
		MaxSpeed: c.MaxSpeed,
		Kind:     kind,
		Color:    color,
	})

	handle := spatial.Handle(len(e.particles) - 1)
	e.grid.Insert(handle, x, y)
	return e.nextID
}

// AddParticles spawns up to n particles at random positions and returns how
// many were added. Both the per-call batch limit and the global particle cap
// apply.
func (e *Engine) AddParticles(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n = e.admit(n)
	for i := 0; i < n; i++ {
		x, y := RandPosition(e.rng, e.cfg.Bounds)
		e.spawn(x, y, math.NaN(), math.NaN())
	}
	return n
}

// AddParticleAt spawns one particle at (x, y) with the given velocity; a NaN
// velocity component picks a random velocity. It returns false if the
// position is not finite, the velocity is infinite or the particle cap is
// reached.
func (e *Engine) AddParticleAt(x, y, vx, vy float64) (uint32, bool) {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return 0, false
	}
	if math.IsInf(vx, 0) || math.IsInf(vy, 0) {
		return 0, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.admit(1) == 0 {
		return 0, false
	}
	return e.spawn(x, y, vx, vy), true
}

func (e *Engine) admit(n int) int {
	lim := e.cfg.Limits
	if lim.MaxBatchAdd > 0 && n > lim.MaxBatchAdd {
		n = lim.MaxBatchAdd
	}
	if lim.MaxParticles > 0 {
		if room := lim.MaxParticles - len(e.particles); n > room {
			if room <= 0 {
				log.Printf("⚠️ Particle limit reached (%d)", lim.MaxParticles)
			}
			n = max(room, 0)
		}
	}
	return max(n, 0)
}

// Neighbors returns the particles within radius of (x, y), measured on the
// torus. The radius is capped by the configured maximum query radius.
func (e *Engine) Neighbors(x, y, radius float64) []ParticleSnapshot {
	if limit := e.cfg.Limits.MaxQueryRadius; limit > 0 && radius > limit {
		radius = limit
	}
	if !(radius >= 0) {
		return nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	b := e.cfg.Bounds
	x, y = b.Wrap(x, y)
	r2 := radius * radius
	out := make([]ParticleSnapshot, 0, 16)
	for _, h := range e.grid.QueryRadius(x, y, radius) {
		p := &e.particles[h]
		if b.DistanceSq(x, y, p.X, p.Y) > r2 {
			continue
		}
		out = append(out, e.particleSnapshot(int(h)))
	}
	return out
}

// CellInfo describes one grid cell.
type CellInfo struct {
	CX, CY     int
	X, Y, W, H float64 // World-space rectangle
	Count      int     // Particles indexed in the cell
}

// CellAt returns the grid cell containing (x, y) once wrapped onto the world.
// It reports false for non-finite coordinates.
func (e *Engine) CellAt(x, y float64) (CellInfo, bool) {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return CellInfo{}, false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	x, y = e.cfg.Bounds.Wrap(x, y)
	cx, cy := e.grid.CellIndex(x, y)
	maxX, maxY := e.grid.MaxIndex()
	if cx < 0 || cx > maxX || cy < 0 || cy > maxY {
		return CellInfo{}, false
	}
	rx, ry, w, h := e.grid.CellRect(cx, cy)
	return CellInfo{CX: cx, CY: cy, X: rx, Y: ry, W: w, H: h, Count: len(e.grid.Cell(cx, cy))}, true
}

func (e *Engine) particleSnapshot(i int) ParticleSnapshot {
	p := &e.particles[i]
	n := 0
	if i < len(e.counts) {
		n = e.counts[i]
	}
	return ParticleSnapshot{
		ID:        p.ID,
		X:         p.X,
		Y:         p.Y,
		VX:        p.VX,
		VY:        p.VY,
		Radius:    p.Radius,
		Kind:      p.Kind,
		Color:     p.Color,
		Neighbors: n,
	}
}

// produceSnapshot publishes an immutable copy of the world. Must be called
// with e.mu held.
func (e *Engine) produceSnapshot() {
	snap := e.snapshotPool.AcquireWrite()
	snap.Tick = e.tickCount
	snap.Width = e.cfg.Bounds.Width()
	snap.Height = e.cfg.Bounds.Height()
	snap.TPS = e.meter.Rate()
	snap.ParticleCount = len(e.particles)
	snap.Candidates = e.lastStats.Candidates
	snap.Neighbors = e.lastStats.Neighbors

	limit := min(len(e.particles), e.snapshotPool.MaxParticles())
	for i := 0; i < limit; i++ {
		s := e.particleSnapshot(i)
		// Snapshots are in world-relative coordinates.
		s.X -= e.cfg.Bounds.MinX
		s.Y -= e.cfg.Bounds.MinY
		snap.Particles = append(snap.Particles, s)
	}

	cols, rows, cell := e.grid.Dimensions()
	snap.Grid.Cols = cols
	snap.Grid.Rows = rows
	snap.Grid.CellW = cell.W
	snap.Grid.CellH = cell.H
	snap.Grid.Occupancy = e.grid.Occupancy(snap.Grid.Occupancy)
	snap.Grid.Stats = e.grid.Stats()

	e.snapshotPool.PublishWrite()
}

// GetSnapshot returns the latest snapshot without pinning it. Only safe on
// the goroutine that ticks the engine; see SnapshotPool.AcquireRead.
func (e *Engine) GetSnapshot() *WorldSnapshot {
	return e.snapshotPool.AcquireRead()
}

// ViewSnapshot calls fn with the latest snapshot, which cannot be reused by
// the tick until fn returns. It reports false before the first snapshot.
func (e *Engine) ViewSnapshot(fn func(*WorldSnapshot)) bool {
	return e.snapshotPool.Read(fn)
}

// GridStats returns occupancy statistics of the spatial index.
func (e *Engine) GridStats() spatial.GridStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.grid.Stats()
}

// LastTick returns statistics of the most recent tick.
func (e *Engine) LastTick() TickStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastStats
}

// ParticleCount returns the number of live particles.
func (e *Engine) ParticleCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.particles)
}

// TickRate returns the smoothed measured ticks per second.
func (e *Engine) TickRate() float64 {
	return e.meter.Rate()
}

// Config returns the engine configuration.
func (e *Engine) Config() EngineConfig {
	return e.cfg
}
