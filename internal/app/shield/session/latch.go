package session

import (
	"context"
	"sync"
)

// Latch is a single-use gate keyed by session id. Acquire returns true exactly
// once per key.
type Latch interface {
	Acquire(ctx context.Context, key string) (bool, error)
}

// MemoryLatch keeps fired keys in process memory.
type MemoryLatch struct {
	fired sync.Map
}

func NewMemoryLatch() *MemoryLatch {
	return &MemoryLatch{}
}

func (l *MemoryLatch) Acquire(_ context.Context, key string) (bool, error) {
	_, loaded := l.fired.LoadOrStore(key, struct{}{})
	return !loaded, nil
}

// Release forgets key once its session is gone.
func (l *MemoryLatch) Release(key string) {
	l.fired.Delete(key)
}
