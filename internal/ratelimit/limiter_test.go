package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSpacing_EnforcesMinimumGap(t *testing.T) {
	s := NewSpacing(0, map[string]time.Duration{"yahoo": 50 * time.Millisecond})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := s.Wait(ctx, "yahoo"); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	// First call passes immediately (burst 1), the next two wait ~50ms each.
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("elapsed = %v, want >= ~100ms", elapsed)
	}
}

func TestSpacing_ProvidersAreIndependent(t *testing.T) {
	s := NewSpacing(time.Hour, map[string]time.Duration{"fast": 0})
	ctx := context.Background()

	// Default spacing is an hour, but the first token is always available.
	if err := s.Wait(ctx, "slow"); err != nil {
		t.Fatalf("Wait(slow): %v", err)
	}

	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := s.Wait(ctx, "fast"); err != nil {
			t.Fatalf("Wait(fast): %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("unlimited provider took %v", elapsed)
	}
}

func TestSpacing_CancelledWait(t *testing.T) {
	s := NewSpacing(time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())

	if err := s.Wait(ctx, "p"); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	cancel()
	if err := s.Wait(ctx, "p"); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait after cancel = %v, want context.Canceled", err)
	}
}

func TestSpacing_Spacing(t *testing.T) {
	s := NewSpacing(2*time.Second, map[string]time.Duration{"a": time.Second})
	if got := s.Spacing("a"); got != time.Second {
		t.Errorf("Spacing(a) = %v, want 1s", got)
	}
	if got := s.Spacing("b"); got != 2*time.Second {
		t.Errorf("Spacing(b) = %v, want 2s", got)
	}
}
