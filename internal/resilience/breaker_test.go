package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: expected boom, got %v", i, err)
		}
	}

	if b.State() != StateOpen {
		t.Fatal("expected open circuit after max failures")
	}
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := NewBreaker(2, time.Minute)

	_ = b.Execute(func() error { return errBoom })
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	// One more failure must not trip the breaker: the count was reset.
	_ = b.Execute(func() error { return errBoom })
	if b.State() != StateClosed {
		t.Fatal("expected closed circuit")
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, 10*time.Second)
	b.now = func() time.Time { return now }

	_ = b.Execute(func() error { return errBoom })
	if b.State() != StateOpen {
		t.Fatal("expected open circuit")
	}

	// Before the timeout, calls are rejected.
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	// After the timeout, a probe is admitted; success closes the circuit.
	now = now.Add(11 * time.Second)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected probe success, got %v", err)
	}
	if b.State() != StateClosed {
		t.Fatal("expected closed circuit after probe success")
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, 10*time.Second)
	b.now = func() time.Time { return now }

	_ = b.Execute(func() error { return errBoom })
	now = now.Add(11 * time.Second)
	_ = b.Execute(func() error { return errBoom })

	if b.State() != StateOpen {
		t.Fatal("expected reopened circuit after failed probe")
	}
}
