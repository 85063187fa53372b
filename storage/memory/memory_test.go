package memory

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/oidcd/oidcd/storage"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b := New(slog.New(slog.DiscardHandler))
	t.Cleanup(b.Close)
	return b
}

func TestSetGet(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	if err := b.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := b.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Get() = %q, want %q", got, "v")
	}
}

func TestGetMissing(t *testing.T) {
	b := newTestBackend(t)

	_, err := b.Get(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestGetExpired(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	if err := b.Set(ctx, "k", []byte("v"), time.Nanosecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	_, err := b.Get(ctx, "k")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() after expiry error = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	if err := b.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := b.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := b.Get(ctx, "k"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}

	// Deleting a missing key is not an error.
	if err := b.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}
}

func TestGetDelExactlyOneWinner(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	if err := b.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	const callers = 16
	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.GetDel(ctx, "k"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("GetDel winners = %d, want exactly 1", wins)
	}
}

func TestAppendList(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	for _, member := range []string{"a", "b", "c"} {
		if err := b.Append(ctx, "list", member, time.Minute); err != nil {
			t.Fatalf("Append(%q) error = %v", member, err)
		}
	}

	members, err := b.List(ctx, "list")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(members) != 3 || members[0] != "a" || members[2] != "c" {
		t.Errorf("List() = %v, want [a b c]", members)
	}
}

func TestConsume(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	env := []byte(`{"payload":{"code":"abc"}}`)
	if err := b.Set(ctx, "k", env, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if err := b.Consume(ctx, "k", time.Now()); err != nil {
		t.Fatalf("first Consume() error = %v", err)
	}
	if err := b.Consume(ctx, "k", time.Now()); !errors.Is(err, storage.ErrConsumed) {
		t.Errorf("second Consume() error = %v, want ErrConsumed", err)
	}
	if err := b.Consume(ctx, "missing", time.Now()); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Consume(missing) error = %v, want ErrNotFound", err)
	}
}

func TestConsumeConcurrent(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	env := []byte(`{"payload":{"code":"abc"}}`)
	if err := b.Set(ctx, "k", env, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	const callers = 16
	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.Consume(ctx, "k", time.Now()); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("Consume winners = %d, want exactly 1", wins)
	}
}
