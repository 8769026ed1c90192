package proximity

import (
	"math"
	"sync"

	"roamlink/logger"
	"roamlink/presence"
	"roamlink/wire"
)

// PositionSource yields the local avatar's current position. The
// avatar broadcaster satisfies it.
type PositionSource interface {
	Position() wire.Vector3
}

// Link is one derived distance for the current tick. Links have no
// identity beyond the tick; consumers re-derive every time.
type Link struct {
	UserID   string
	Distance float64
}

// Engine selects the single nearest user within the proximity radius
// as the active proximity-chat target, once per tick. Transitions
// fire exactly once; per-pairing conversation history survives the
// target going away.
type Engine struct {
	tracker *presence.Tracker
	local   PositionSource
	radius  float64

	mu      sync.Mutex
	worldID string
	target  string
	convs   map[string][]wire.ChatMessage

	onEnter func(userID string)
	onLeave func(userID string)
}

func NewEngine(tracker *presence.Tracker, local PositionSource, radius float64) *Engine {
	if radius <= 0 {
		radius = 3.0
	}
	return &Engine{
		tracker: tracker,
		local:   local,
		radius:  radius,
		convs:   make(map[string][]wire.ChatMessage),
	}
}

// OnEnter fires when a proximity target appears or changes.
func (e *Engine) OnEnter(f func(userID string)) { e.onEnter = f }

// OnLeave fires when the current target leaves the radius or
// disconnects.
func (e *Engine) OnLeave(f func(userID string)) { e.onLeave = f }

// SetWorld restricts candidates to the local world.
func (e *Engine) SetWorld(worldID string) {
	e.mu.Lock()
	e.worldID = worldID
	e.mu.Unlock()
}

// Target returns the active proximity-chat target, if any.
func (e *Engine) Target() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.target, e.target != ""
}

// Distance computes the Euclidean distance between two positions.
func Distance(a, b wire.Vector3) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Links derives the distance to every candidate right now.
func (e *Engine) Links() []Link {
	pos := e.local.Position()
	e.mu.Lock()
	world := e.worldID
	e.mu.Unlock()

	var links []Link
	for _, u := range e.tracker.Snapshot() {
		if !u.Online {
			continue
		}
		if world != "" && u.WorldID != "" && u.WorldID != world {
			continue
		}
		links = append(links, Link{UserID: u.ID, Distance: Distance(pos, u.Position)})
	}
	return links
}

// Tick re-evaluates the nearest-in-radius target and fires transition
// callbacks. Staying out of (or in) proximity across ticks fires
// nothing; only the crossing does.
func (e *Engine) Tick() {
	nearest := ""
	best := math.MaxFloat64
	for _, l := range e.Links() {
		if l.Distance <= e.radius && l.Distance < best {
			nearest = l.UserID
			best = l.Distance
		}
	}

	e.mu.Lock()
	prev := e.target
	if nearest == prev {
		e.mu.Unlock()
		return
	}
	e.target = nearest
	e.mu.Unlock()

	if prev != "" && e.onLeave != nil {
		logger.Debugf("[proximity] left target=%s", prev)
		e.onLeave(prev)
	}
	if nearest != "" {
		// a new pairing starts a fresh open conversation; history for
		// the pairing is preserved in convs
		logger.Debugf("[proximity] entered target=%s dist=%.2f", nearest, best)
		if e.onEnter != nil {
			e.onEnter(nearest)
		}
	}
}

// RecordMessage appends one message to the pairing's conversation.
func (e *Engine) RecordMessage(otherUserID string, msg wire.ChatMessage) {
	e.mu.Lock()
	e.convs[otherUserID] = append(e.convs[otherUserID], msg)
	e.mu.Unlock()
}

// Conversation returns the retained conversation for a pairing. Kept
// in memory even after the pairing leaves proximity.
func (e *Engine) Conversation(otherUserID string) []wire.ChatMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	conv := e.convs[otherUserID]
	out := make([]wire.ChatMessage, len(conv))
	copy(out, conv)
	return out
}
