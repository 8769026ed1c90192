package wsx

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"roamlink/logger"
	"roamlink/tools/ids"
	"roamlink/tools/safe"
	"roamlink/transport"
	"roamlink/wire"
)

const (
	pingInterval = 25 * time.Second
	writeWait    = 10 * time.Second
)

// Client is the socket-style adapter: every named event is one JSON
// envelope over a single duplex websocket. Outbound frames go through
// a buffered queue consumed by a single writer goroutine.
type Client struct {
	url       string
	queueSize int

	mu       sync.RWMutex
	handlers map[string]transport.Handler

	connMu sync.Mutex
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	connID string

	connected atomic.Bool
}

// New creates an adapter for one relay URL. The adapter is inert until
// Connect.
func New(url string, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Client{
		url:       url,
		queueSize: queueSize,
		handlers:  make(map[string]transport.Handler),
	}
}

func (c *Client) Kind() transport.Kind { return transport.KindWebSocket }
func (c *Client) Connected() bool      { return c.connected.Load() }

// Connect dials the relay and starts the read/write pumps. The dial
// honors ctx for the connection timeout.
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.connected.Load() {
		return nil
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return errors.Wrapf(err, "dial websocket %s", c.url)
	}

	c.conn = conn
	c.send = make(chan []byte, c.queueSize)
	c.done = make(chan struct{})
	c.connID = ids.GenerateString()
	c.connected.Store(true)

	safe.Go(func() { c.readLoop(conn, c.done) })
	safe.Go(func() { c.writeLoop(conn, c.send, c.done) })

	logger.Infof("[wsx] connected url=%s connID=%s", c.url, c.connID)
	c.dispatch(string(wire.EventConnect), nil)
	return nil
}

// Disconnect closes the link and stops the pumps. Idempotent.
func (c *Client) Disconnect() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.teardownLocked(true)
}

func (c *Client) teardownLocked(emit bool) {
	if !c.connected.Swap(false) {
		return
	}
	close(c.done)
	if c.conn != nil {
		deadline := time.Now().Add(writeWait)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.conn.Close()
		c.conn = nil
	}
	logger.Infof("[wsx] disconnected connID=%s", c.connID)
	if emit {
		c.dispatch(string(wire.EventDisconnect), nil)
	}
}

// Send queues one frame. Frames issued while disconnected are dropped,
// not queued; a full queue drops the frame as well since only the
// latest state matters for movement traffic.
func (c *Client) Send(event string, payload any) error {
	if !c.connected.Load() {
		return transport.ErrNotConnected
	}
	frame, err := wire.BuildFrame(wire.Event(event), payload)
	if err != nil {
		return errors.Wrap(err, "build frame")
	}
	c.connMu.Lock()
	send := c.send
	c.connMu.Unlock()
	if send == nil {
		return transport.ErrNotConnected
	}
	select {
	case send <- frame:
	default:
		logger.Warnf("[wsx] send queue full, drop event=%s", event)
	}
	return nil
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

func (c *Client) dispatch(event string, data []byte) {
	c.mu.RLock()
	h := c.handlers[event]
	c.mu.RUnlock()
	if h == nil {
		return
	}
	safe.Call(func() { h(context.Background(), transport.Message{Event: event, Data: data}) })
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				// local teardown already ran
			default:
				if websocket.IsCloseError(err,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway,
					websocket.CloseNoStatusReceived,
				) {
					logger.Infof("[wsx] peer closed connID=%s err=%v", c.connID, err)
				} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
					logger.Infof("[wsx] read timeout connID=%s err=%v", c.connID, err)
				} else {
					logger.Infof("[wsx] read err connID=%s err=%v", c.connID, err)
				}
				c.connMu.Lock()
				c.teardownLocked(true)
				c.connMu.Unlock()
			}
			return
		}

		env, perr := wire.ParseFrameJSON(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Warnf("[wsx] bad frame connID=%s err=%v sample=%q", c.connID, perr, sample)
			continue
		}
		if !wire.Known(env.Event) {
			logger.Debugf("[wsx] unknown event=%s, drop", env.Event)
			continue
		}
		c.dispatch(string(env.Event), env.Data)
	}
}

func (c *Client) writeLoop(conn *websocket.Conn, send chan []byte, done chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Infof("[wsx] write err connID=%s err=%v", c.connID, err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Infof("[wsx] ping err connID=%s err=%v", c.connID, err)
				return
			}
		case <-done:
			return
		}
	}
}
