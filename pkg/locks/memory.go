package locks

import (
	"context"
	"sync"
)

// MemoryLocker serialises entities inside one process. It backs local sqlite
// runs and tests where no redis is available.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]chan struct{})}
}

func (m *MemoryLocker) slot(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		m.slots[key] = ch
	}
	return ch
}

func (m *MemoryLocker) Acquire(ctx context.Context, entity, id string) (Release, error) {
	ch := m.slot(entity + ":" + id)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return noopRelease, busyError(entity, id)
	}

	var once sync.Once
	return func(context.Context) {
		once.Do(func() { <-ch })
	}, nil
}
