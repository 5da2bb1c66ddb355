package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"finguard-ledger/internal/core/ports"
)

// LockManager implements ports.LockManager inside one process. Each key is
// a one-slot channel; holding the slot means holding the lock. A slot lives
// only while someone holds or waits on it.
type LockManager struct {
	mu      sync.Mutex
	slots   map[string]*lockSlot
	timeout time.Duration
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

// NewLockManager creates a LockManager whose Acquire gives up after timeout.
func NewLockManager(timeout time.Duration) *LockManager {
	return &LockManager{
		slots:   make(map[string]*lockSlot),
		timeout: timeout,
	}
}

// ref returns the slot for key, counting the caller as a user of it.
func (m *LockManager) ref(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	if !ok {
		s = &lockSlot{ch: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	return s.ch
}

func (m *LockManager) unref(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.slots[key]; ok {
		if s.refs--; s.refs == 0 {
			delete(m.slots, key)
		}
	}
}

// Acquire locks keys in sorted order, waiting up to the configured timeout
// for all of them.
func (m *LockManager) Acquire(ctx context.Context, keys ...string) (ports.Release, error) {
	keys = slices.Compact(slices.Sorted(slices.Values(keys)))

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	held := make([]string, 0, len(keys))
	for _, key := range keys {
		ch := m.ref(key)
		select {
		case ch <- struct{}{}:
			held = append(held, key)
		case <-timer.C:
			m.unref(key)
			m.release(held)
			return nil, fmt.Errorf("%w: %s", ports.ErrLockTimeout, key)
		case <-ctx.Done():
			m.unref(key)
			m.release(held)
			return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		}
	}

	var once sync.Once
	return func(context.Context) { once.Do(func() { m.release(held) }) }, nil
}

// TryAcquire takes key only if it is free right now.
func (m *LockManager) TryAcquire(ctx context.Context, key string) (ports.Release, bool, error) {
	ch := m.ref(key)
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func(context.Context) { once.Do(func() { m.release([]string{key}) }) }, true, nil
	default:
		m.unref(key)
		return nil, false, nil
	}
}

// release frees held keys in reverse order. The slot is drained before it is
// unreferenced so a waiter sharing it sees the same channel.
func (m *LockManager) release(held []string) {
	for i := len(held) - 1; i >= 0; i-- {
		m.mu.Lock()
		ch := m.slots[held[i]].ch
		m.mu.Unlock()
		<-ch
		m.unref(held[i])
	}
}
