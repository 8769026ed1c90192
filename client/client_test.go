package client

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	xctx "golang.org/x/net/context"

	"roamlink/clock"
	"roamlink/config"
	"roamlink/session"
	"roamlink/transport"
	"roamlink/wire"
)

// fakeRelay routes frames between in-memory transports the way the
// real relay would: it assigns user ids on join announces and fans
// everything else out. Chat is delivered twice to everyone to exercise
// the at-least-once dedup path.
type fakeRelay struct {
	mu     sync.Mutex
	nextID int
	peers  []*relayTransport
}

type relayTransport struct {
	relay *fakeRelay

	mu        sync.Mutex
	handlers  map[string]transport.Handler
	connected bool
	userID    string
}

func newFakeRelay() *fakeRelay { return &fakeRelay{} }

func (r *fakeRelay) transport() *relayTransport {
	return &relayTransport{relay: r, handlers: make(map[string]transport.Handler)}
}

func (t *relayTransport) Connect(ctx xctx.Context) error {
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	t.relay.mu.Lock()
	t.relay.peers = append(t.relay.peers, t)
	t.relay.mu.Unlock()
	return nil
}

func (t *relayTransport) Disconnect() {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
}

func (t *relayTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *relayTransport) Kind() transport.Kind { return transport.KindWebSocket }

func (t *relayTransport) On(event string, h transport.Handler) {
	t.mu.Lock()
	t.handlers[event] = h
	t.mu.Unlock()
}

func (t *relayTransport) Off(event string) {
	t.mu.Lock()
	delete(t.handlers, event)
	t.mu.Unlock()
}

func (t *relayTransport) deliver(event string, payload any) {
	data, _ := json.Marshal(payload)
	t.mu.Lock()
	h := t.handlers[event]
	t.mu.Unlock()
	if h != nil {
		h(xctx.Background(), transport.Message{Event: event, Data: data})
	}
}

func (t *relayTransport) Send(event string, payload any) error {
	if !t.Connected() {
		return transport.ErrNotConnected
	}
	r := t.relay
	switch event {
	case string(wire.EventUserData):
		r.mu.Lock()
		if t.userID == "" {
			r.nextID++
			t.userID = fmt.Sprintf("u%d", r.nextID)
		}
		id := t.userID
		peers := append([]*relayTransport(nil), r.peers...)
		r.mu.Unlock()

		t.deliver(string(wire.EventUserID), &wire.SessionInfo{UserID: id})
		for _, p := range peers {
			if p != t {
				p.deliver(string(wire.EventUserJoined), map[string]any{"id": id})
			}
		}
	case string(wire.EventChatMessage):
		// at-least-once: everyone gets it twice, including the sender
		for _, p := range t.peersSnapshot() {
			p.deliver(event, payload)
			p.deliver(event, payload)
		}
	default:
		for _, p := range t.peersSnapshot() {
			if p != t {
				p.deliver(event, payload)
			}
		}
	}
	return nil
}

func (t *relayTransport) peersSnapshot() []*relayTransport {
	t.relay.mu.Lock()
	defer t.relay.mu.Unlock()
	return append([]*relayTransport(nil), t.relay.peers...)
}

func testClient(relay *fakeRelay, clk clock.Clock, username string) *Client {
	cfg := config.Default()
	cfg.Username = username
	cfg.WorldID = "plaza"
	// keep virtual-time advances from tripping the stale sweep
	cfg.PresenceTTL = time.Hour
	return New(cfg, clk,
		session.Adapter{Kind: transport.KindWebSocket, New: func() transport.Transport {
			return relay.transport()
		}},
	)
}

func waitFor(t *testing.T, clk *clock.Manual, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("condition never became true")
		default:
			clk.Advance(500 * time.Millisecond)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestEndToEndProximityChat(t *testing.T) {
	relay := newFakeRelay()
	clk := clock.NewManual()

	a := testClient(relay, clk, "alice")
	b := testClient(relay, clk, "bob")
	defer a.Dispose()
	defer b.Dispose()

	if !a.Init(transport.KindWebSocket) {
		t.Fatalf("a failed to connect")
	}
	sa, ok := a.CurrentUser()
	if !ok || sa.UserID != "u1" {
		t.Fatalf("expected a assigned u1, got %+v", sa)
	}

	if !b.Init(transport.KindWebSocket) {
		t.Fatalf("b failed to connect")
	}
	sb, _ := b.CurrentUser()
	if sb.UserID != "u2" {
		t.Fatalf("expected b assigned u2, got %+v", sb)
	}

	// a saw b join
	waitFor(t, clk, func() bool { return len(a.Users()) == 1 })

	// b moves to (5,0,5); a moves to (4,0,4): distance ~1.41 < 3
	b.UpdatePosition(wire.Vector3{X: 5, Z: 5}, wire.Vector3{})
	a.UpdatePosition(wire.Vector3{X: 4, Z: 4}, wire.Vector3{})

	waitFor(t, clk, func() bool {
		target, ok := a.ProximityTarget()
		return ok && target == "u2"
	})

	msg, err := a.SendProximityMessage("psst")
	if err != nil {
		t.Fatalf("proximity send failed: %v", err)
	}

	countByID := func(c *Client) int {
		n := 0
		for _, m := range c.History() {
			if m.ID == msg.ID {
				n++
			}
		}
		return n
	}
	if got := countByID(a); got != 1 {
		t.Fatalf("expected exactly one copy in a's history, got %d", got)
	}
	if got := countByID(b); got != 1 {
		t.Fatalf("expected exactly one copy in b's history despite duplicate delivery, got %d", got)
	}
}

func TestMoveBeforeJoinVisible(t *testing.T) {
	relay := newFakeRelay()
	clk := clock.NewManual()
	a := testClient(relay, clk, "alice")
	defer a.Dispose()
	if !a.Init(transport.KindWebSocket) {
		t.Fatalf("connect failed")
	}

	// a move about an unseen user synthesizes the entry
	for _, p := range relay.peers {
		p.deliver(string(wire.EventUserMoved), &wire.MoveUpdate{
			UserID:   "ghost",
			Position: &wire.Vector3{X: 1},
		})
	}
	users := a.Users()
	if len(users) != 1 || users[0].ID != "ghost" {
		t.Fatalf("expected ghost tracked, got %+v", users)
	}
}

func TestRelayErrorBecomesSystemMessage(t *testing.T) {
	relay := newFakeRelay()
	clk := clock.NewManual()
	a := testClient(relay, clk, "alice")
	defer a.Dispose()
	if !a.Init(transport.KindWebSocket) {
		t.Fatalf("connect failed")
	}

	for _, p := range relay.peers {
		p.deliver(string(wire.EventError), &wire.ErrorInfo{Code: 400, Message: "bad join payload"})
	}

	hist := a.History()
	if len(hist) != 1 || hist[0].Type != wire.MessageSystem || hist[0].Message != "bad join payload" {
		t.Fatalf("expected system entry for relay error, got %+v", hist)
	}
}

func TestDisposeIdempotent(t *testing.T) {
	relay := newFakeRelay()
	a := testClient(relay, clock.NewManual(), "alice")
	if !a.Init(transport.KindWebSocket) {
		t.Fatalf("connect failed")
	}
	a.Dispose()
	a.Dispose()
	if a.Connected() {
		t.Fatalf("expected disconnected after dispose")
	}
	if _, ok := a.CurrentUser(); ok {
		t.Fatalf("expected session cleared after dispose")
	}
}
