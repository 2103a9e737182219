package registration

import (
	"context"
	"sync"
	"time"
)

type loginAttempts struct {
	count int
	last  time.Time
}

// MemoryLoginTracker is a process-local LoginTracker. Counts reset on
// restart; deployments that need durable throttling implement LoginTracker
// over their own store.
type MemoryLoginTracker struct {
	mu       sync.Mutex
	attempts map[string]loginAttempts
}

var _ LoginTracker = (*MemoryLoginTracker)(nil)

func NewMemoryLoginTracker() *MemoryLoginTracker {
	return &MemoryLoginTracker{
		attempts: make(map[string]loginAttempts),
	}
}

func (t *MemoryLoginTracker) LoginAttempts(_ context.Context, login string) (int, *time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.attempts[login]
	if !ok {
		return 0, nil, nil
	}
	last := entry.last
	return entry.count, &last, nil
}

func (t *MemoryLoginTracker) TrackAttemptedLogin(_ context.Context, login string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := t.attempts[login]
	entry.count++
	entry.last = time.Now()
	t.attempts[login] = entry
	return nil
}

func (t *MemoryLoginTracker) TrackSuccessfulLogin(_ context.Context, login string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.attempts, login)
	return nil
}
