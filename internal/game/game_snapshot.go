package game

import (
	"sync"
	"sync/atomic"
	"time"

	"swarm-grid/internal/game/spatial"
)

// ParticleSnapshot is an immutable copy of particle state for rendering.
// Uses value types (not pointers) to ensure immutability.
type ParticleSnapshot struct {
	ID        uint32  `json:"id" msgpack:"id"`
	X         float64 `json:"x" msgpack:"x"`
	Y         float64 `json:"y" msgpack:"y"`
	VX        float64 `json:"vx" msgpack:"vx"`
	VY        float64 `json:"vy" msgpack:"vy"`
	Radius    float64 `json:"radius" msgpack:"radius"`
	Kind      int     `json:"kind" msgpack:"kind"`
	Color     string  `json:"color" msgpack:"color"`
	Neighbors int     `json:"neighbors" msgpack:"neighbors"` // Within query radius last tick
}

// GridSnapshot describes the spatial grid as of the snapshot tick.
type GridSnapshot struct {
	Cols      int               `json:"cols" msgpack:"cols"`
	Rows      int               `json:"rows" msgpack:"rows"`
	CellW     float64           `json:"cellW" msgpack:"cellW"`
	CellH     float64           `json:"cellH" msgpack:"cellH"`
	Occupancy []int             `json:"occupancy" msgpack:"occupancy"` // Row-major entity count per cell
	Stats     spatial.GridStats `json:"stats" msgpack:"stats"`
}

// WorldSnapshot is a complete immutable world state for rendering.
// All slices are pre-allocated and capped to prevent memory attacks.
type WorldSnapshot struct {
	Sequence  uint64    `json:"sequence" msgpack:"sequence"`   // Monotonic sequence for ordering
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"` // When snapshot was created
	Tick      uint64    `json:"tick" msgpack:"tick"`           // Simulation tick this represents

	Width  float64 `json:"width" msgpack:"width"`
	Height float64 `json:"height" msgpack:"height"`
	TPS    float64 `json:"tps" msgpack:"tps"` // Smoothed ticks per second

	// Pre-allocated capped slice (never grows beyond limits)
	Particles     []ParticleSnapshot `json:"particles" msgpack:"particles"`
	ParticleCount int                `json:"particleCount" msgpack:"particleCount"` // Live particles, may exceed len(Particles)

	Grid GridSnapshot `json:"grid" msgpack:"grid"`

	// Aggregate neighbor stats for the tick
	Candidates int `json:"candidates" msgpack:"candidates"`
	Neighbors  int `json:"neighbors" msgpack:"neighbors"`
}

// SnapshotPool pre-allocates snapshots to avoid GC pressure.
// Uses triple buffering; each slot has its own lock so a reader inside Read
// only ever delays the producer when it laps that reader.
type SnapshotPool struct {
	snapshots    [3]WorldSnapshot // Triple buffer
	slots        [3]sync.RWMutex
	maxParticles int
	writeIdx     uint32 // atomic - producer index
	readIdx      uint32 // atomic - consumer index
	sequence     uint64 // atomic - monotonic sequence
	published    atomic.Bool
}

// NewSnapshotPool creates a pool with pre-allocated slices.
func NewSnapshotPool(maxParticles, totalCells int) *SnapshotPool {
	pool := &SnapshotPool{maxParticles: maxParticles}

	for i := 0; i < 3; i++ {
		pool.snapshots[i] = WorldSnapshot{
			Particles: make([]ParticleSnapshot, 0, maxParticles),
			Grid: GridSnapshot{
				Occupancy: make([]int, 0, totalCells),
			},
		}
	}

	return pool
}

// AcquireWrite gets the next write slot (producer only, called from the tick).
// Returns a snapshot with reset slices but preserved capacity.
func (p *SnapshotPool) AcquireWrite() *WorldSnapshot {
	idx := atomic.AddUint32(&p.writeIdx, 1) % 3
	p.slots[idx].Lock()
	snap := &p.snapshots[idx]

	snap.Particles = snap.Particles[:0]
	snap.Grid.Occupancy = snap.Grid.Occupancy[:0]

	snap.Sequence = atomic.AddUint64(&p.sequence, 1)
	snap.Timestamp = time.Now()

	return snap
}

// PublishWrite marks write complete and advances read pointer.
// Called after snapshot is fully populated.
func (p *SnapshotPool) PublishWrite() {
	w := atomic.LoadUint32(&p.writeIdx)
	atomic.StoreUint32(&p.readIdx, w)
	p.published.Store(true)
	p.slots[w%3].Unlock()
}

// Read calls fn with the latest complete snapshot and keeps its slot from
// being reused until fn returns. fn must not retain the pointer. It reports
// false if no snapshot has been published yet.
func (p *SnapshotPool) Read(fn func(*WorldSnapshot)) bool {
	if !p.published.Load() {
		return false
	}
	idx := atomic.LoadUint32(&p.readIdx) % 3
	p.slots[idx].RLock()
	defer p.slots[idx].RUnlock()
	fn(&p.snapshots[idx])
	return true
}

// AcquireRead gets the latest complete snapshot without holding its slot.
// Returns nil if no snapshot has been published yet.
//
// The slot is overwritten two publishes later and nothing stops that from
// overlapping the caller's reads, so this is only race-free for callers on
// the producer's goroutine (tick observers, a viewer that also steps the
// engine). Other goroutines must use Read.
func (p *SnapshotPool) AcquireRead() *WorldSnapshot {
	if !p.published.Load() {
		return nil
	}
	idx := atomic.LoadUint32(&p.readIdx) % 3
	return &p.snapshots[idx]
}

// MaxParticles returns the per-snapshot particle cap.
func (p *SnapshotPool) MaxParticles() int {
	return p.maxParticles
}
