package render

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"swarm-grid/internal/game"
)

// Timelapse saves every Nth tick's snapshot as a numbered PNG in a directory.
type Timelapse struct {
	renderer *Renderer
	dir      string
	every    uint64

	mu       sync.Mutex
	frames   int
	lastTick uint64
	captured bool
}

// NewTimelapse creates dir if needed. every < 1 captures every tick.
func NewTimelapse(r *Renderer, dir string, every int) (*Timelapse, error) {
	if dir == "" {
		return nil, fmt.Errorf("timelapse: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("timelapse: %w", err)
	}
	if every < 1 {
		every = 1
	}
	log.Printf("🎞️ Timelapse: one frame every %d ticks into %s", every, dir)
	return &Timelapse{renderer: r, dir: dir, every: uint64(every)}, nil
}

// Capture writes snap if its tick is due. It reports whether a frame was
// written. Repeated calls for the same tick write at most one frame.
func (t *Timelapse) Capture(snap *game.WorldSnapshot) (bool, error) {
	if t == nil || snap == nil || snap.Tick%t.every != 0 {
		return false, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.captured && snap.Tick == t.lastTick {
		return false, nil
	}
	path := filepath.Join(t.dir, fmt.Sprintf("frame_%06d.png", t.frames))
	if err := t.renderer.SavePNG(snap, path); err != nil {
		return false, fmt.Errorf("timelapse: frame %d: %w", t.frames, err)
	}
	t.frames++
	t.lastTick = snap.Tick
	t.captured = true
	return true, nil
}

// Frames returns the number of frames written so far.
func (t *Timelapse) Frames() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames
}
