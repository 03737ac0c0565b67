package engine

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestRegistryRegisterAndRelease(t *testing.T) {
	r := NewRegistry()
	first := uuid.New()
	second := uuid.New()

	if err := r.Register(1, first); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}

	// Re-registering the same session is a no-op.
	if err := r.Register(1, first); err != nil {
		t.Fatalf("idempotent Register failed: %v", err)
	}

	// A different session cannot claim the slot.
	if err := r.Register(1, second); !errors.Is(err, ErrSessionAlreadyActive) {
		t.Fatalf("Register = %v, want ErrSessionAlreadyActive", err)
	}

	// Release by the wrong session must not free the slot.
	r.Release(1, second)
	if _, ok := r.Active(1); !ok {
		t.Fatal("slot freed by a session that did not hold it")
	}

	r.Release(1, first)
	if _, ok := r.Active(1); ok {
		t.Fatal("slot still held after release")
	}

	if err := r.Register(1, second); err != nil {
		t.Fatalf("Register after release failed: %v", err)
	}
}

func TestRegistryIndependentUsers(t *testing.T) {
	r := NewRegistry()
	a := uuid.New()
	b := uuid.New()

	if err := r.Register(1, a); err != nil {
		t.Fatalf("user 1 Register failed: %v", err)
	}
	if err := r.Register(2, b); err != nil {
		t.Fatalf("user 2 Register failed: %v", err)
	}

	got, ok := r.Active(2)
	if !ok || got != b {
		t.Fatalf("Active(2) = %v, %t; want %v, true", got, ok, b)
	}
}

func TestRegistryConcurrentStart(t *testing.T) {
	// Many concurrent claims for the same user: exactly one must win.
	r := NewRegistry()

	const attempts = 64
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Register(7, uuid.New()); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
}
