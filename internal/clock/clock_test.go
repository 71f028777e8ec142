package clock_test

import (
	"sync"
	"testing"
	"time"

	"github.com/abrezinsky/racetrial/internal/clock"
)

func TestSystem_Now(t *testing.T) {
	before := time.Now()
	got := clock.System{}.Now()
	if got.Before(before) {
		t.Errorf("System.Now() = %v, before %v", got, before)
	}
}

func TestManual_AdvanceAndSet(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := clock.NewManual(start)

	if got := m.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}
	if got := m.Advance(1500 * time.Millisecond); !got.Equal(start.Add(1500 * time.Millisecond)) {
		t.Errorf("Advance returned %v", got)
	}
	later := start.Add(time.Hour)
	m.Set(later)
	if got := m.Now(); !got.Equal(later) {
		t.Errorf("after Set, Now() = %v, want %v", got, later)
	}
}

func TestManual_ConcurrentAdvance(t *testing.T) {
	start := time.Unix(0, 0)
	m := clock.NewManual(start)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Advance(time.Millisecond)
			_ = m.Now()
		}()
	}
	wg.Wait()

	if got := m.Now().Sub(start); got != 50*time.Millisecond {
		t.Errorf("elapsed = %v, want 50ms", got)
	}
}
