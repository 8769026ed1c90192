package avatarsync

import (
	"sync"
	"time"

	"roamlink/clock"
	"roamlink/wire"
)

// Sender is the outbound half the broadcaster needs; the session
// manager satisfies it.
type Sender interface {
	Send(event string, payload any)
}

// Broadcaster rate-limits outbound movement. Dropping intermediate
// frames is fine: only the latest position matters, so a pending
// update is overwritten, never queued. Customization is a whole-object
// message and goes out unthrottled.
type Broadcaster struct {
	sender   Sender
	clk      clock.Clock
	interval time.Duration

	mu       sync.Mutex
	userID   string
	lastSent time.Time
	pending  *wire.MoveUpdate

	position wire.Vector3
	rotation wire.Vector3
}

func NewBroadcaster(sender Sender, clk clock.Clock, interval time.Duration) *Broadcaster {
	if clk == nil {
		clk = clock.System{}
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Broadcaster{sender: sender, clk: clk, interval: interval}
}

// SetUserID must be called once the relay assigns the session id;
// moves before that are recorded locally but not transmitted.
func (b *Broadcaster) SetUserID(id string) {
	b.mu.Lock()
	b.userID = id
	b.mu.Unlock()
}

// Position returns the local avatar's current position.
func (b *Broadcaster) Position() wire.Vector3 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.position
}

// UpdatePosition records new local movement and transmits it if the
// rate limit allows, otherwise it stays pending for the next Flush.
func (b *Broadcaster) UpdatePosition(pos, rot wire.Vector3) {
	b.mu.Lock()
	b.position = pos
	b.rotation = rot
	if b.userID == "" {
		b.mu.Unlock()
		return
	}
	mv := &wire.MoveUpdate{UserID: b.userID, Position: &pos, Rotation: &rot}
	now := b.clk.Now()
	if now.Sub(b.lastSent) >= b.interval {
		b.lastSent = now
		b.pending = nil
		b.mu.Unlock()
		b.sender.Send(string(wire.EventUserMoved), mv)
		return
	}
	b.pending = mv
	b.mu.Unlock()
}

// Flush transmits a pending update once the rate window has elapsed.
// Called from the shared tick loop.
func (b *Broadcaster) Flush() {
	b.mu.Lock()
	if b.pending == nil {
		b.mu.Unlock()
		return
	}
	now := b.clk.Now()
	if now.Sub(b.lastSent) < b.interval {
		b.mu.Unlock()
		return
	}
	mv := b.pending
	b.pending = nil
	b.lastSent = now
	b.mu.Unlock()
	b.sender.Send(string(wire.EventUserMoved), mv)
}

// UpdateCustomization broadcasts the complete customization object.
func (b *Broadcaster) UpdateCustomization(custom map[string]any) {
	b.mu.Lock()
	id := b.userID
	b.mu.Unlock()
	if id == "" {
		return
	}
	b.sender.Send(string(wire.EventAvatarUpdate), &wire.AvatarUpdate{
		UserID:        id,
		Customization: custom,
	})
}
