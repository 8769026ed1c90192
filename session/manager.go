package session

import (
	"context"
	"sync"

	xctx "golang.org/x/net/context"

	"roamlink/clock"
	"roamlink/config"
	"roamlink/logger"
	"roamlink/tools/safe"
	"roamlink/transport"
	"roamlink/wire"
)

// Adapter pairs a transport kind with its factory so the manager can
// order fallbacks without constructing adapters it will not use.
type Adapter struct {
	Kind transport.Kind
	New  transport.Factory
}

// Manager owns adapter selection, retry/backoff, and the connection
// state machine: Idle -> Connecting -> {Connected | Idle+error}, and
// Connected -> Idle on disconnect or transport drop. A dropped link is
// a fresh connect from Idle; there is no separate reconnecting state.
type Manager struct {
	cfg config.Config
	clk clock.Clock

	adapters []Adapter

	mu       sync.Mutex
	state    State
	active   transport.Transport
	gen      uint64 // bumped per attempt/teardown so late results are ignored
	handlers map[string]transport.Handler

	onChange func(bool)
	onError  func(string)
}

// NewManager builds a manager over an ordered list of adapters. The
// order is the fallback order.
func NewManager(cfg config.Config, clk clock.Clock, adapters ...Adapter) *Manager {
	if clk == nil {
		clk = clock.System{}
	}
	return &Manager{
		cfg:      cfg,
		clk:      clk,
		adapters: adapters,
		handlers: make(map[string]transport.Handler),
	}
}

// OnConnectionChanged registers the connectionChanged callback.
func (m *Manager) OnConnectionChanged(f func(bool)) { m.onChange = f }

// OnConnectionError registers the connectionError callback.
func (m *Manager) OnConnectionError(f func(string)) { m.onError = f }

// On registers an upward event handler. Handlers survive adapter
// swaps; they are re-attached to every new adapter.
func (m *Manager) On(event string, h transport.Handler) {
	m.mu.Lock()
	m.handlers[event] = h
	m.mu.Unlock()
}

// Off removes an upward event handler.
func (m *Manager) Off(event string) {
	m.mu.Lock()
	delete(m.handlers, event)
	m.mu.Unlock()
}

// Snapshot returns a copy of the connection state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether a link is up.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Connected
}

// Active returns the live adapter, or nil. Callers may probe it for
// optional capabilities (presence tracking) but must not branch on
// its kind.
func (m *Manager) Active() transport.Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// ActiveKind reports the live adapter kind for diagnostics.
func (m *Manager) ActiveKind() transport.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Kind
}

func (m *Manager) factoryFor(preferred transport.Kind) transport.Factory {
	if len(m.adapters) == 0 {
		return nil
	}
	for _, a := range m.adapters {
		if a.Kind == preferred {
			return a.New
		}
	}
	return m.adapters[0].New
}

// Connect runs one connection attempt against the preferred adapter
// kind (or the first configured one). It is guarded against
// re-entrancy: a second call while an attempt is in flight returns
// false without creating a second adapter.
func (m *Manager) Connect(preferred transport.Kind) bool {
	m.mu.Lock()
	if m.state.Connecting {
		m.mu.Unlock()
		logger.Warnf("[session] connect ignored, attempt already in flight")
		return false
	}
	if m.state.Connected {
		m.mu.Unlock()
		return true
	}
	factory := m.factoryFor(preferred)
	if factory == nil {
		m.mu.Unlock()
		logger.Errorf("[session] no transports configured")
		return false
	}
	m.state.Connecting = true
	m.state.Err = ""
	m.gen++
	gen := m.gen
	t := factory()
	m.attachLocked(t)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
	defer cancel()
	err := t.Connect(ctx)

	m.mu.Lock()
	if m.gen != gen {
		// attempt was abandoned (disconnect or timeout raced us)
		m.mu.Unlock()
		if err == nil {
			t.Disconnect()
		}
		return false
	}
	if err != nil {
		m.state.Connecting = false
		m.state.Err = err.Error()
		m.mu.Unlock()
		logger.Warnf("[session] connect failed kind=%s err=%v", t.Kind(), err)
		m.emitError(err.Error())
		return false
	}
	m.active = t
	m.state.Connected = true
	m.state.Connecting = false
	m.state.RetryCount = 0
	m.state.Kind = t.Kind()
	m.mu.Unlock()

	m.emitChange(true)

	// forward the connect event only now that the state says so;
	// the adapter's own connect fired mid-dial and was swallowed
	m.mu.Lock()
	h := m.handlers[string(wire.EventConnect)]
	m.mu.Unlock()
	if h != nil {
		safe.Call(func() {
			h(context.Background(), transport.Message{Event: string(wire.EventConnect)})
		})
	}
	return true
}

// RetryWithFallback walks the configured transport order until one
// connects, waiting cfg.RetryDelay between attempts. It gives up
// after cfg.MaxRetries attempts, leaving the last failure reason on
// the state.
func (m *Manager) RetryWithFallback() bool {
	kinds := make([]transport.Kind, 0, len(m.adapters))
	for _, a := range m.adapters {
		kinds = append(kinds, a.Kind)
	}
	if len(kinds) == 0 {
		logger.Errorf("[session] no transports configured")
		return false
	}

	maxRetries := m.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	for attempt := 0; attempt < maxRetries; attempt++ {
		kind := kinds[attempt%len(kinds)]
		m.mu.Lock()
		m.state.RetryCount++
		m.mu.Unlock()

		logger.Infof("[session] attempt %d/%d kind=%s", attempt+1, maxRetries, kind)
		if m.Connect(kind) {
			return true
		}
		if attempt < maxRetries-1 {
			<-m.clk.After(m.cfg.RetryDelay)
		}
	}
	logger.Warnf("[session] all %d attempts failed, giving up", maxRetries)
	return false
}

// Disconnect tears down the active adapter and resets the state.
// Idempotent; emits connectionChanged(false) only on an actual
// transition out of Connected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	wasConnected := m.state.Connected
	t := m.active
	m.active = nil
	m.state.reset()
	m.mu.Unlock()

	if t != nil {
		t.Disconnect()
	}
	if wasConnected {
		m.emitChange(false)
	}
}

// Send forwards one event to the live adapter. Fail-soft: while
// disconnected it logs a warning and drops the event, it never
// returns an error to the caller.
func (m *Manager) Send(event string, payload any) {
	m.mu.Lock()
	t := m.active
	connected := m.state.Connected
	m.mu.Unlock()
	if !connected || t == nil {
		logger.Warnf("[session] send while disconnected, drop event=%s", event)
		return
	}
	if err := t.Send(event, payload); err != nil {
		logger.Warnf("[session] send failed event=%s err=%v", event, err)
	}
}

// traceEvents is the one middleware on the inbound path; it records
// every frame before the manager routes it.
func traceEvents(next transport.Handler) transport.Handler {
	return func(ctx xctx.Context, msg transport.Message) {
		logger.Debugf("[session] recv event=%s bytes=%d origin=%s",
			msg.Event, len(msg.Data), msg.Header[wire.HeaderOrigin])
		next(ctx, msg)
	}
}

// attachLocked wires every known event through the manager so upward
// handlers survive adapter swaps and the manager sees drops first.
func (m *Manager) attachLocked(t transport.Transport) {
	events := []wire.Event{
		wire.EventConnect, wire.EventDisconnect, wire.EventError,
		wire.EventUserID, wire.EventUserData, wire.EventUsersUpdate,
		wire.EventUserJoined, wire.EventUserLeft, wire.EventUserMoved,
		wire.EventAvatarUpdate, wire.EventChatMessage, wire.EventUserTyping,
		wire.EventReactionUpdated,
	}
	for _, ev := range events {
		event := string(ev)
		h := transport.Chain(func(ctx xctx.Context, msg transport.Message) {
			m.handleEvent(t, ctx, msg)
		}, traceEvents)
		t.On(event, h)
	}
}

func (m *Manager) handleEvent(t transport.Transport, ctx xctx.Context, msg transport.Message) {
	if msg.Event == string(wire.EventConnect) {
		// dispatched after the state transition in Connect instead
		return
	}
	if msg.Event == string(wire.EventDisconnect) {
		m.mu.Lock()
		if m.active == t && m.state.Connected {
			m.gen++
			m.active = nil
			m.state.reset()
			m.mu.Unlock()
			logger.Infof("[session] transport dropped kind=%s", t.Kind())
			m.emitChange(false)
		} else {
			m.mu.Unlock()
		}
	}

	m.mu.Lock()
	h := m.handlers[msg.Event]
	m.mu.Unlock()
	if h != nil {
		safe.Call(func() { h(ctx, msg) })
	}
}

func (m *Manager) emitChange(connected bool) {
	if m.onChange != nil {
		safe.Call(func() { m.onChange(connected) })
	}
}

func (m *Manager) emitError(reason string) {
	if m.onError != nil {
		safe.Call(func() { m.onError(reason) })
	}
}
