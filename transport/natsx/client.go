package natsx

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"roamlink/logger"
	"roamlink/tools/ids"
	"roamlink/tools/safe"
	"roamlink/transport"
	"roamlink/wire"
)

const hdrOrigin = wire.HeaderOrigin

// Config 客户端配置
type Config struct {
	Servers []string
	// Key is the backend JWT. Passed as the connection token and
	// checked for expiry before dialing; never verified locally.
	Key           string
	Name          string
	Prefix        string // subject namespace, one per world/session
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// Client is the channel-style adapter: named events map onto pub/sub
// subjects under a shared prefix, presence onto a dedicated presence
// subject tree. Every connected client sees every broadcast; frames
// originating from this connection are filtered out on receipt.
type Client struct {
	cfg Config

	mu       sync.RWMutex
	handlers map[string]transport.Handler

	connMu sync.Mutex
	nc     *nats.Conn
	subs   []*nats.Subscription
	connID string

	connected atomic.Bool
}

// New creates an adapter. Defaults mirror the gateway client tuning.
func New(cfg Config) *Client {
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "roam"
	}
	if cfg.Name == "" {
		cfg.Name = "roam-client"
	}
	return &Client{cfg: cfg, handlers: make(map[string]transport.Handler)}
}

func (c *Client) Kind() transport.Kind { return transport.KindChannel }
func (c *Client) Connected() bool      { return c.connected.Load() }

func (c *Client) eventSubject(event string) string {
	return c.cfg.Prefix + ".evt." + event
}

func (c *Client) presenceSubject(action string) string {
	return c.cfg.Prefix + ".presence." + action
}

// checkKey rejects an expired backend key before we ever dial. The
// relay does the real verification; this only avoids a guaranteed
// auth round-trip failure.
func checkKey(key string) error {
	if key == "" {
		return nil
	}
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(key, claims); err != nil {
		return errors.Wrap(err, "parse backend key")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if exp.Before(time.Now()) {
		return fmt.Errorf("backend key expired at %s", exp.Time.Format(time.RFC3339))
	}
	return nil
}

// Connect dials the pub/sub service and subscribes the event and
// presence subject trees.
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.connected.Load() {
		return nil
	}
	if len(c.cfg.Servers) == 0 {
		return errors.New("nats servers missing")
	}
	if err := checkKey(c.cfg.Key); err != nil {
		return err
	}

	timeout := c.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}

	opts := []nats.Option{
		nats.Name(c.cfg.Name),
		nats.MaxReconnects(0),
		nats.ReconnectWait(c.cfg.ReconnectWait),
		nats.Timeout(timeout),
	}
	if c.cfg.Key != "" {
		opts = append(opts, nats.Token(c.cfg.Key))
	}

	nc, err := nats.Connect(strings.Join(c.cfg.Servers, ","), opts...)
	if err != nil {
		return errors.Wrap(err, "connect nats")
	}

	c.nc = nc
	c.connID = ids.GenerateString()

	evtSub, err := nc.Subscribe(c.eventSubject(">"), c.onEventMsg)
	if err != nil {
		nc.Close()
		c.nc = nil
		return errors.Wrap(err, "subscribe events")
	}
	prsSub, err := nc.Subscribe(c.presenceSubject(">"), c.onPresenceMsg)
	if err != nil {
		_ = evtSub.Unsubscribe()
		nc.Close()
		c.nc = nil
		return errors.Wrap(err, "subscribe presence")
	}
	c.subs = []*nats.Subscription{evtSub, prsSub}
	c.connected.Store(true)

	nc.SetDisconnectErrHandler(func(_ *nats.Conn, derr error) {
		logger.Infof("[natsx] link lost connID=%s err=%v", c.connID, derr)
		c.connMu.Lock()
		c.teardownLocked(true)
		c.connMu.Unlock()
	})

	logger.Infof("[natsx] connected servers=%v connID=%s", c.cfg.Servers, c.connID)
	c.dispatch(string(wire.EventConnect), nil, nil)
	return nil
}

// Disconnect drains subscriptions and closes the connection. Idempotent.
func (c *Client) Disconnect() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.teardownLocked(true)
}

func (c *Client) teardownLocked(emit bool) {
	if !c.connected.Swap(false) {
		return
	}
	for _, sub := range c.subs {
		_ = sub.Drain()
	}
	c.subs = nil
	if c.nc != nil {
		c.nc.SetDisconnectErrHandler(nil)
		c.nc.Close()
		c.nc = nil
	}
	logger.Infof("[natsx] disconnected connID=%s", c.connID)
	if emit {
		c.dispatch(string(wire.EventDisconnect), nil, nil)
	}
}

// Send publishes one named event onto its subject. Never queued while
// disconnected.
func (c *Client) Send(event string, payload any) error {
	c.connMu.Lock()
	nc := c.nc
	connID := c.connID
	c.connMu.Unlock()
	if !c.connected.Load() || nc == nil {
		return transport.ErrNotConnected
	}

	var data []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "marshal payload")
		}
		data = b
	}
	msg := nats.NewMsg(c.eventSubject(event))
	msg.Data = data
	msg.Header.Set(hdrOrigin, connID)
	if err := nc.PublishMsg(msg); err != nil {
		return errors.Wrapf(err, "publish %s", event)
	}
	return nil
}

// Track announces liveness on the presence tree. Callers republish it
// on a heartbeat interval; receivers fold the traffic into join/sync
// semantics with last-seen timeouts.
func (c *Client) Track(userID string, meta map[string]any) error {
	payload := map[string]any{"id": userID}
	for k, v := range meta {
		payload[k] = v
	}
	c.connMu.Lock()
	nc := c.nc
	connID := c.connID
	c.connMu.Unlock()
	if !c.connected.Load() || nc == nil {
		return transport.ErrNotConnected
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal presence meta")
	}
	msg := nats.NewMsg(c.presenceSubject("track"))
	msg.Data = b
	msg.Header.Set(hdrOrigin, connID)
	return errors.Wrap(nc.PublishMsg(msg), "publish presence")
}

// Untrack publishes a leave tombstone.
func (c *Client) Untrack(userID string) error {
	c.connMu.Lock()
	nc := c.nc
	connID := c.connID
	c.connMu.Unlock()
	if !c.connected.Load() || nc == nil {
		return transport.ErrNotConnected
	}
	b, _ := json.Marshal(map[string]any{"userId": userID})
	msg := nats.NewMsg(c.presenceSubject("leave"))
	msg.Data = b
	msg.Header.Set(hdrOrigin, connID)
	return errors.Wrap(nc.PublishMsg(msg), "publish presence leave")
}

func (c *Client) On(event string, h transport.Handler) {
	c.mu.Lock()
	c.handlers[event] = h
	c.mu.Unlock()
}

func (c *Client) Off(event string) {
	c.mu.Lock()
	delete(c.handlers, event)
	c.mu.Unlock()
}

func (c *Client) dispatch(event string, data []byte, hdr map[string]string) {
	c.mu.RLock()
	h := c.handlers[event]
	c.mu.RUnlock()
	if h == nil {
		return
	}
	safe.Call(func() { h(context.Background(), transport.Message{Event: event, Data: data, Header: hdr}) })
}

// headerMap flattens nats headers into the transport message shape.
func headerMap(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

func (c *Client) fromSelf(msg *nats.Msg) bool {
	return msg.Header.Get(hdrOrigin) == c.connID
}

func (c *Client) onEventMsg(msg *nats.Msg) {
	if c.fromSelf(msg) {
		return
	}
	event := strings.TrimPrefix(msg.Subject, c.eventSubject(""))
	if !wire.Known(wire.Event(event)) {
		logger.Debugf("[natsx] unknown event subject=%s, drop", msg.Subject)
		return
	}
	c.dispatch(event, msg.Data, headerMap(msg.Header))
}

// onPresenceMsg folds presence primitives into the shared event
// vocabulary: track becomes user-joined (partial-merge semantics make
// repeated joins harmless), leave becomes user-left.
func (c *Client) onPresenceMsg(msg *nats.Msg) {
	if c.fromSelf(msg) {
		return
	}
	action := strings.TrimPrefix(msg.Subject, c.presenceSubject(""))
	switch action {
	case "track":
		c.dispatch(string(wire.EventUserJoined), msg.Data, headerMap(msg.Header))
	case "leave":
		c.dispatch(string(wire.EventUserLeft), msg.Data, headerMap(msg.Header))
	default:
		logger.Debugf("[natsx] unknown presence action=%s, drop", action)
	}
}
