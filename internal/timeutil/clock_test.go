package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	d := clock.Since(past)

	if d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestMockClock_NowSetAdvance(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(base)

	if got := clock.Now(); !got.Equal(base) {
		t.Errorf("Now() = %v, want %v", got, base)
	}

	clock.Advance(90 * time.Second)
	if got := clock.Now(); !got.Equal(base.Add(90 * time.Second)) {
		t.Errorf("Now() after Advance = %v", got)
	}

	later := base.Add(time.Hour)
	clock.Set(later)
	if got := clock.Now(); !got.Equal(later) {
		t.Errorf("Now() after Set = %v", got)
	}
}

func TestMockClock_Since(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(base)
	clock.Advance(2 * time.Second)

	if d := clock.Since(base); d != 2*time.Second {
		t.Errorf("Since() = %v, want 2s", d)
	}
}

func TestMockClock_ImplementsClock(t *testing.T) {
	var _ Clock = RealClock{}
	var _ Clock = NewMockClock(time.Now())
}
