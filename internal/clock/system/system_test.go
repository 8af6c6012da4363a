package system

import (
	"context"
	"testing"
	"time"
)

// TestClockNowUTC ensures the clock returns UTC timestamps.
func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	if got.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", got.Location())
	}
	if got.Before(before) || got.After(after) {
		t.Fatalf("expected %v to be between %v and %v", got, before, after)
	}
}

func TestPauseSleeps(t *testing.T) {
	t.Parallel()

	start := time.Now()
	New().Pause(context.Background(), 30*time.Millisecond)
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("expected pause of at least 30ms, got %v", elapsed)
	}
}

// TestPauseReturnsOnCancel checks a canceled context cuts the sleep short.
func TestPauseReturnsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	New().Pause(ctx, time.Hour)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expected canceled pause to return promptly, took %v", elapsed)
	}
}

func TestPauseIgnoresNonPositive(t *testing.T) {
	t.Parallel()

	start := time.Now()
	New().Pause(context.Background(), -time.Second)
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("expected immediate return, took %v", elapsed)
	}
}
