package sync

import (
	"testing"
	"time"
)

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	breaker := NewCircuitBreaker(3, 5*time.Minute)

	for i := 0; i < 2; i++ {
		breaker.RecordFailure()
	}
	if breaker.State() != BreakerClosed {
		t.Fatalf("state after 2 failures = %s, want closed", breaker.State())
	}
	breaker.RecordFailure()
	if breaker.State() != BreakerOpen {
		t.Fatalf("state after 3 failures = %s, want open", breaker.State())
	}
	if breaker.Allow() {
		t.Fatal("open breaker admitted a pull")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	breaker := NewCircuitBreaker(3, 5*time.Minute)

	breaker.RecordFailure()
	breaker.RecordFailure()
	breaker.RecordSuccess()
	breaker.RecordFailure()
	breaker.RecordFailure()
	if breaker.State() != BreakerClosed {
		t.Fatalf("non-consecutive failures tripped the breaker: %s", breaker.State())
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	now := time.Now()
	breaker := NewCircuitBreaker(1, 5*time.Minute)
	breaker.now = func() time.Time { return now }

	breaker.RecordFailure()
	if breaker.Allow() {
		t.Fatal("breaker should be open")
	}

	// Cooldown elapses; exactly one probe is admitted.
	now = now.Add(5*time.Minute + time.Second)
	if !breaker.Allow() {
		t.Fatal("expired breaker refused the probe")
	}
	if breaker.State() != BreakerHalfOpen {
		t.Fatalf("state = %s, want half_open", breaker.State())
	}
	if breaker.Allow() {
		t.Fatal("second concurrent probe admitted")
	}

	breaker.RecordSuccess()
	if breaker.State() != BreakerClosed {
		t.Fatalf("state after probe success = %s, want closed", breaker.State())
	}
	if !breaker.Allow() {
		t.Fatal("closed breaker refused a pull")
	}
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	now := time.Now()
	breaker := NewCircuitBreaker(1, 5*time.Minute)
	breaker.now = func() time.Time { return now }

	breaker.RecordFailure()
	now = now.Add(6 * time.Minute)
	if !breaker.Allow() {
		t.Fatal("probe refused")
	}
	breaker.RecordFailure()
	if breaker.State() != BreakerOpen {
		t.Fatalf("state after failed probe = %s, want open", breaker.State())
	}
	// The cooldown restarts from the failed probe.
	if breaker.Allow() {
		t.Fatal("reopened breaker admitted a pull")
	}
	now = now.Add(6 * time.Minute)
	if !breaker.Allow() {
		t.Fatal("second probe refused after fresh cooldown")
	}
}
