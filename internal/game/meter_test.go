package game

import (
	"math"
	"testing"
	"time"
)

func TestRateMeter(t *testing.T) {
	base := time.Unix(1000, 0)
	clock := base
	m := NewRateMeter(2)
	m.now = func() time.Time { return clock }

	if r := m.Rate(); r != 0 {
		t.Errorf("Expected 0 before any ticks, got %g", r)
	}

	steps := []struct {
		at   time.Duration
		want float64
	}{
		{0, 0},
		{100 * time.Millisecond, 10},
		{150 * time.Millisecond, 15}, // (10 + 20) / 2
		{200 * time.Millisecond, 20}, // window of 2 drops the first sample
		{200 * time.Millisecond, 20}, // zero elapsed is ignored
	}

	for _, s := range steps {
		clock = base.Add(s.at)
		m.Tick()
		if r := m.Rate(); math.Abs(r-s.want) > 1e-9 {
			t.Errorf("At %v: expected rate %g, got %g", s.at, s.want, r)
		}
	}
}
