// Package memory provides an in-process storage backend. It is intended
// for development and tests: data does not survive a restart and is not
// shared between instances.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oidcd/oidcd/storage"
)

var _ storage.Backend = (*Backend)(nil)

type value struct {
	data      []byte
	list      []string
	expiresAt time.Time
}

func (v *value) expired(now time.Time) bool {
	return !v.expiresAt.IsZero() && v.expiresAt.Before(now)
}

// Backend is a mutex-guarded map with a janitor goroutine evicting
// expired entries.
type Backend struct {
	mu     sync.RWMutex
	values map[string]*value

	janitorStop chan struct{}
	janitorOnce sync.Once
}

// New creates a memory backend and starts its eviction janitor.
func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("using in-memory storage backend, data will not survive a restart")

	b := &Backend{
		values:      make(map[string]*value),
		janitorStop: make(chan struct{}),
	}
	go b.janitor()
	return b
}

// Close stops the eviction janitor.
func (b *Backend) Close() {
	b.janitorOnce.Do(func() { close(b.janitorStop) })
}

func (b *Backend) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-b.janitorStop:
			return
		case now := <-ticker.C:
			b.mu.Lock()
			for key, v := range b.values {
				if v.expired(now) {
					delete(b.values, key)
				}
			}
			b.mu.Unlock()
		}
	}
}

// live returns the unexpired value at key. Callers hold at least the
// read lock.
func (b *Backend) live(key string) (*value, bool) {
	v, ok := b.values[key]
	if !ok || v.expired(time.Now()) {
		return nil, false
	}
	return v, true
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.live(key)
	if !ok || v.data == nil {
		return nil, storage.ErrNotFound
	}
	return v.data, nil
}

func (b *Backend) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	v := &value{data: data}
	if ttl > 0 {
		v.expiresAt = time.Now().Add(ttl)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = v
	return nil
}

func (b *Backend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, key)
	return nil
}

func (b *Backend) GetDel(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.live(key)
	if !ok || v.data == nil {
		return nil, storage.ErrNotFound
	}
	delete(b.values, key)
	return v.data, nil
}

func (b *Backend) Append(_ context.Context, key, member string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.live(key)
	if !ok {
		v = &value{}
		b.values[key] = v
	}
	v.list = append(v.list, member)
	if ttl > 0 {
		expiry := time.Now().Add(ttl)
		if v.expiresAt.IsZero() || expiry.After(v.expiresAt) {
			v.expiresAt = expiry
		}
	}
	return nil
}

func (b *Backend) List(_ context.Context, key string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.live(key)
	if !ok || v.list == nil {
		return nil, storage.ErrNotFound
	}
	members := make([]string, len(v.list))
	copy(members, v.list)
	return members, nil
}

func (b *Backend) Consume(_ context.Context, key string, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.live(key)
	if !ok || v.data == nil {
		return storage.ErrNotFound
	}
	stamped, err := storage.MarkConsumed(v.data, at)
	if err != nil {
		return err
	}
	v.data = stamped
	return nil
}
