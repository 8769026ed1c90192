package chat

import (
	"sync"
	"time"

	"roamlink/clock"
)

// TypingState tracks who is typing, with a TTL safety net: a stop
// message can race a disconnect and never arrive, so a flag expires
// on its own after the inactivity window.
type TypingState struct {
	clk clock.Clock
	ttl time.Duration

	mu    sync.Mutex
	since map[string]time.Time
}

func NewTypingState(clk clock.Clock, ttl time.Duration) *TypingState {
	if clk == nil {
		clk = clock.System{}
	}
	if ttl <= 0 {
		ttl = 4 * time.Second
	}
	return &TypingState{clk: clk, ttl: ttl, since: make(map[string]time.Time)}
}

// Set flips one user's typing flag. Setting true refreshes the TTL.
func (t *TypingState) Set(userID string, typing bool) {
	if userID == "" {
		return
	}
	t.mu.Lock()
	if typing {
		t.since[userID] = t.clk.Now()
	} else {
		delete(t.since, userID)
	}
	t.mu.Unlock()
}

// Typing reports whether the user's flag is set and unexpired.
func (t *TypingState) Typing(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.since[userID]
	if !ok {
		return false
	}
	if t.clk.Now().Sub(at) > t.ttl {
		delete(t.since, userID)
		return false
	}
	return true
}

// Sweep drops expired flags and returns the ids that were cleared.
// Called from the shared tick loop.
func (t *TypingState) Sweep() []string {
	now := t.clk.Now()
	var cleared []string
	t.mu.Lock()
	for id, at := range t.since {
		if now.Sub(at) > t.ttl {
			delete(t.since, id)
			cleared = append(cleared, id)
		}
	}
	t.mu.Unlock()
	return cleared
}

// Remove clears a user outright, used when they leave.
func (t *TypingState) Remove(userID string) {
	t.mu.Lock()
	delete(t.since, userID)
	t.mu.Unlock()
}
