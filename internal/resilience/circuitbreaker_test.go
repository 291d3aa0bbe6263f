package resilience

import (
	"errors"
	"testing"
	"time"
)

var errTest = errors.New("test error")

func TestNewCircuitBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Name: "test"})
	if cb.cfg.MaxFailures != 5 {
		t.Errorf("MaxFailures = %d, want 5", cb.cfg.MaxFailures)
	}
	if cb.cfg.ResetTimeout != 30*time.Second {
		t.Errorf("ResetTimeout = %v, want 30s", cb.cfg.ResetTimeout)
	}
	if cb.cfg.HalfOpenMax != 3 {
		t.Errorf("HalfOpenMax = %d, want 3", cb.cfg.HalfOpenMax)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestCircuitBreakerClosedAllowsCalls(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Name: "test", MaxFailures: 3})
	called := false
	err := cb.Do(func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("fn was not called")
	}
}

func TestCircuitBreakerClosedToOpen(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		Name:         "test",
		MaxFailures:  3,
		ResetTimeout: time.Hour, // long timeout so it stays open
	})

	for i := 0; i < 3; i++ {
		_ = cb.Do(func() error { return errTest })
	}

	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after 3 failures", cb.State())
	}

	err := cb.Do(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Name: "test", MaxFailures: 3})

	// 2 failures, then a success: must not open.
	_ = cb.Do(func() error { return errTest })
	_ = cb.Do(func() error { return errTest })
	_ = cb.Do(func() error { return nil })

	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed (success should reset counter)", cb.State())
	}

	_ = cb.Do(func() error { return errTest })
	_ = cb.Do(func() error { return errTest })
	if cb.State() != StateClosed {
		t.Fatal("should still be closed after 2 failures post-reset")
	}
}

func TestCircuitBreakerOpenToHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		Name:         "test",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  2,
	})

	_ = cb.Do(func() error { return errTest })
	_ = cb.Do(func() error { return errTest })
	if cb.State() != StateOpen {
		t.Fatal("expected open")
	}

	time.Sleep(15 * time.Millisecond)

	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after timeout", cb.State())
	}
}

func TestCircuitBreakerHalfOpenToClosed(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		Name:         "test",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  2,
	})

	_ = cb.Do(func() error { return errTest })
	_ = cb.Do(func() error { return errTest })

	time.Sleep(15 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if err := cb.Do(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: unexpected error: %v", i, err)
		}
	}

	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after successful probes", cb.State())
	}
}

func TestCircuitBreakerHalfOpenToOpen(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		Name:         "test",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  3,
	})

	_ = cb.Do(func() error { return errTest })
	_ = cb.Do(func() error { return errTest })

	time.Sleep(15 * time.Millisecond)

	if err := cb.Do(func() error { return errTest }); err == nil {
		t.Fatal("expected error from failing probe")
	}

	// Open again, and lastFailure was just refreshed so State() reports open.
	cb.mu.Lock()
	s := cb.state
	cb.mu.Unlock()
	if s != StateOpen {
		t.Fatalf("state = %v, want open after half-open failure", s)
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		Name:         "test",
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})

	_ = cb.Do(func() error { return errTest })
	_ = cb.Do(func() error { return errTest })
	if cb.State() != StateOpen {
		t.Fatal("expected open")
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after Reset", cb.State())
	}

	if err := cb.Do(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error after reset: %v", err)
	}
}
