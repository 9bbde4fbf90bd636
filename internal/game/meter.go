package game

import (
	"sync"
	"time"
)

// RateMeter smooths a tick or frame rate by averaging the instantaneous rate
// over the last N samples.
type RateMeter struct {
	mu      sync.Mutex
	samples []float64
	next    int
	count   int
	last    time.Time
	now     func() time.Time
}

// NewRateMeter creates a meter averaging over resolution samples.
func NewRateMeter(resolution int) *RateMeter {
	if resolution < 1 {
		resolution = 1
	}
	return &RateMeter{
		samples: make([]float64, resolution),
		now:     time.Now,
	}
}

// Tick records that one tick has completed now.
func (m *RateMeter) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.last.IsZero() {
		m.last = now
		return
	}
	elapsed := now.Sub(m.last)
	if elapsed <= 0 {
		return
	}

	m.samples[m.next] = float64(time.Second) / float64(elapsed)
	m.next = (m.next + 1) % len(m.samples)
	if m.count < len(m.samples) {
		m.count++
	}
	m.last = now
}

// Rate returns the average rate per second, or 0 before two ticks.
func (m *RateMeter) Rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.count == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range m.samples[:m.count] {
		sum += s
	}
	return sum / float64(m.count)
}
