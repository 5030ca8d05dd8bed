package service

import (
	"context"
	"testing"
	"time"
)

func TestPoolBlocksSameActorProject(t *testing.T) {
	p := NewRunPool(1)
	ctx := context.Background()

	release, err := p.Acquire(ctx, "alice", "p1")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		release2, err := p.Acquire(ctx, "alice", "p1")
		if err != nil {
			t.Errorf("second acquire: %v", err)
			return
		}
		close(acquired)
		release2()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while slot was held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never unblocked after release")
	}
}

func TestPoolIndependentKeys(t *testing.T) {
	p := NewRunPool(1)
	ctx := context.Background()

	r1, err := p.Acquire(ctx, "alice", "p1")
	if err != nil {
		t.Fatalf("acquire alice/p1: %v", err)
	}
	defer r1()

	// A different actor or project is a different slot.
	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	r2, err := p.Acquire(ctx2, "bob", "p1")
	if err != nil {
		t.Fatalf("acquire bob/p1: %v", err)
	}
	r2()
	r3, err := p.Acquire(ctx2, "alice", "p2")
	if err != nil {
		t.Fatalf("acquire alice/p2: %v", err)
	}
	r3()
}

func TestPoolAcquireCancelled(t *testing.T) {
	p := NewRunPool(1)

	release, err := p.Acquire(context.Background(), "alice", "p1")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx, "alice", "p1"); err == nil {
		t.Fatal("expected error on cancelled acquire")
	}
}

func TestPoolReleaseIdempotent(t *testing.T) {
	p := NewRunPool(1)
	ctx := context.Background()

	release, err := p.Acquire(ctx, "alice", "p1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release()
	release()

	// Double release must not have freed a second slot.
	r2, err := p.Acquire(ctx, "alice", "p1")
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	defer r2()

	ctx2, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx2, "alice", "p1"); err == nil {
		t.Fatal("expected the slot to still be limited to one")
	}
}
