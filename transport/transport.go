package transport

import (
	"context"
	"errors"
)

// Kind names a concrete adapter for diagnostics. Callers never branch
// on it for behavior.
type Kind string

const (
	KindWebSocket Kind = "websocket"
	KindChannel   Kind = "channel"
)

// ErrNotConnected is returned by Send when no link is up. The session
// manager downgrades it to a logged warning.
var ErrNotConnected = errors.New("transport: not connected")

// Transport is the uniform contract both adapters implement. One
// adapter multiplexes named events over a duplex socket; the other
// maps them onto a pub/sub service's broadcast and presence
// primitives. The session manager treats them identically.
type Transport interface {
	// Connect dials the relay. It blocks until the link is confirmed,
	// the context is done, or the dial fails. Safe to call again after
	// Disconnect.
	Connect(ctx context.Context) error
	// Disconnect tears the link down. Idempotent.
	Disconnect()
	// Send publishes one named event. Events sent while disconnected
	// are dropped with ErrNotConnected, never queued.
	Send(event string, payload any) error
	// On registers the handler for one event name, replacing any
	// previous handler for that name.
	On(event string, h Handler)
	// Off removes the handler for an event name.
	Off(event string)
	Connected() bool
	Kind() Kind
}

// Factory builds a fresh adapter per connection attempt. The manager
// never reuses an adapter across attempts.
type Factory func() Transport
