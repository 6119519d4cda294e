package resilience

import (
	"errors"
	"testing"
	"time"
)

var errFeed = errors.New("feed down")

func failing() error { return errFeed }
func healthy() error { return nil }

func TestCircuitOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	})

	for i := 0; i < 3; i++ {
		if cb.State() != CircuitClosed {
			t.Fatalf("circuit opened after %d failures, threshold is 3", i)
		}
		if err := cb.Execute(failing); !errors.Is(err, errFeed) {
			t.Fatalf("expected the feed error through a closed circuit, got %v", err)
		}
	}

	if cb.State() != CircuitOpen {
		t.Fatalf("state = %s, want OPEN after threshold", cb.State())
	}
	if err := cb.Execute(healthy); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("open circuit must reject, got %v", err)
	}
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	})

	cb.Execute(failing)
	cb.Execute(failing)
	cb.Execute(healthy)
	cb.Execute(failing)
	cb.Execute(failing)

	if cb.State() != CircuitClosed {
		t.Fatalf("state = %s, want CLOSED while failures are not consecutive", cb.State())
	}
}

func TestCircuitRecoversThroughHalfOpen(t *testing.T) {
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	})
	cb.clock = func() time.Time { return now }

	cb.Execute(failing)
	cb.Execute(failing)
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %s, want OPEN", cb.State())
	}

	// Before the timeout every call is rejected.
	now = now.Add(10 * time.Second)
	if err := cb.Execute(healthy); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected rejection before timeout, got %v", err)
	}

	// After the timeout a probe goes through; two successes close it.
	now = now.Add(30 * time.Second)
	if err := cb.Execute(healthy); err != nil {
		t.Fatalf("probe after timeout failed: %v", err)
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("state = %s, want HALF_OPEN after first probe", cb.State())
	}
	if err := cb.Execute(healthy); err != nil {
		t.Fatalf("second probe failed: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("state = %s, want CLOSED after recovery", cb.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          30 * time.Second,
	})
	cb.clock = func() time.Time { return now }

	cb.Execute(failing)
	now = now.Add(time.Minute)
	if err := cb.Execute(failing); !errors.Is(err, errFeed) {
		t.Fatalf("probe should run and fail, got %v", err)
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %s, want OPEN after failed probe", cb.State())
	}

	stats := cb.GetStats()
	if stats.Failures != 2 || stats.Rejected != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}
