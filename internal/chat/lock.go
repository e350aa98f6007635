package chat

import "sync"

// streamTracker enforces the single-active-stream-per-session rule with
// TryLock semantics: a second send on a busy session is rejected
// immediately with a conflict, never blocked waiting for the first to
// finish.
type streamTracker struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newStreamTracker() *streamTracker {
	return &streamTracker{active: map[string]struct{}{}}
}

// Acquire claims the session for streaming. ok is false if a stream is
// already active on this session.
func (t *streamTracker) Acquire(sessionID string) (release func(), ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, busy := t.active[sessionID]; busy {
		return nil, false
	}
	t.active[sessionID] = struct{}{}
	return func() {
		t.mu.Lock()
		delete(t.active, sessionID)
		t.mu.Unlock()
	}, true
}
