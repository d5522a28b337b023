// Package lock provides the per-item single-writer discipline the
// embedding lifecycle requires: concurrent embedding updates for the
// same item must not interleave, while distinct items proceed freely.
package lock

import (
	"context"
	"sync"
)

// Locker serializes work on a string key. Acquire blocks until the key
// is held or the context is done, and returns a release function.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Memory is an in-process Locker backed by a map of refcounted mutexes.
// It is the default when no Redis URL is configured and the only writer
// runs in one process.
type Memory struct {
	mu    sync.Mutex
	locks map[string]*memEntry
}

type memEntry struct {
	mu   sync.Mutex
	refs int
}

// NewMemory creates an in-process Locker.
func NewMemory() *Memory {
	return &Memory{locks: make(map[string]*memEntry)}
}

// Acquire blocks until the key's mutex is held. The context is checked
// before waiting; a held mutex is always released in bounded time by
// its holder, so no further cancellation point is needed.
func (m *Memory) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &memEntry{}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			e.mu.Unlock()
			m.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(m.locks, key)
			}
			m.mu.Unlock()
		})
	}
	return release, nil
}
