package client

import (
	"sync"

	xctx "golang.org/x/net/context"

	"roamlink/avatarsync"
	"roamlink/chat"
	"roamlink/clock"
	"roamlink/config"
	"roamlink/logger"
	"roamlink/presence"
	"roamlink/proximity"
	"roamlink/session"
	"roamlink/tools/safe"
	"roamlink/transport"
	"roamlink/wire"
)

// Session is the local client's identity. Assigned by the relay on
// join, cleared on disconnect; exactly one per client.
type Session struct {
	UserID   string
	Username string
	WorldID  string
}

// presenceTracker is the optional capability a transport may expose
// for announcing liveness (the channel adapter does).
type presenceTracker interface {
	Track(userID string, meta map[string]any) error
	Untrack(userID string) error
}

// Client is the upward surface the rest of the application talks to:
// imperative update methods, read-only getters, and typed callbacks.
// Construct one per process; Init starts it, Dispose tears it down.
type Client struct {
	cfg config.Config
	clk clock.Clock

	mgr         *session.Manager
	tracker     *presence.Tracker
	broadcaster *avatarsync.Broadcaster
	applier     *avatarsync.Applier
	typing      *chat.TypingState
	channel     *chat.Channel
	engine      *proximity.Engine
	zones       *proximity.ZoneSet

	mu      sync.Mutex
	sess    Session
	started bool
	stop    chan struct{}

	onConnection func(bool)
	onChat       func(wire.ChatMessage)
	onJoin       func(string)
	onLeave      func(string)
}

// New wires the components over the given adapters. Pass a nil clock
// for wall time.
func New(cfg config.Config, clk clock.Clock, adapters ...session.Adapter) *Client {
	if clk == nil {
		clk = clock.System{}
	}
	c := &Client{cfg: cfg, clk: clk}
	c.mgr = session.NewManager(cfg, clk, adapters...)
	c.tracker = presence.NewTracker(clk)
	c.broadcaster = avatarsync.NewBroadcaster(c.mgr, clk, cfg.MoveInterval)
	c.applier = avatarsync.NewApplier(c.tracker)
	c.typing = chat.NewTypingState(clk, cfg.TypingTTL)
	c.channel = chat.NewChannel(c.mgr, clk, cfg.HistoryCap, c.typing)
	c.engine = proximity.NewEngine(c.tracker, c.broadcaster, cfg.ProximityRadius)
	c.zones = proximity.NewZoneSet(c.broadcaster)
	c.mgr.OnConnectionChanged(func(up bool) {
		if !up {
			c.clearSession()
		}
		if c.onConnection != nil {
			c.onConnection(up)
		}
	})
	c.route()
	return c
}

// OnConnectionChanged registers the connection-status callback.
func (c *Client) OnConnectionChanged(f func(bool)) { c.onConnection = f }

// OnConnectionError registers the connection-failure callback.
func (c *Client) OnConnectionError(f func(reason string)) { c.mgr.OnConnectionError(f) }

// OnChat fires for every new message appended to history.
func (c *Client) OnChat(f func(wire.ChatMessage)) { c.onChat = f }

// OnUserJoined / OnUserLeft fire on presence changes.
func (c *Client) OnUserJoined(f func(userID string)) { c.onJoin = f }
func (c *Client) OnUserLeft(f func(userID string))   { c.onLeave = f }

// OnProximityEnter / OnProximityLeave fire on target transitions.
func (c *Client) OnProximityEnter(f func(userID string)) { c.engine.OnEnter(f) }
func (c *Client) OnProximityLeave(f func(userID string)) { c.engine.OnLeave(f) }

// OnZoneEnter / OnZoneExit fire once per zone crossing.
func (c *Client) OnZoneEnter(f func(zone string)) { c.zones.OnEnter(f) }
func (c *Client) OnZoneExit(f func(zone string))  { c.zones.OnExit(f) }

// AddZone registers a named static region.
func (c *Client) AddZone(z proximity.Zone) { c.zones.Add(z) }

// Init connects (falling back across transports) and starts the tick
// loop. Returns whether a link came up.
func (c *Client) Init(preferred transport.Kind) bool {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		logger.Warnf("[client] init called twice, ignoring")
		return c.mgr.Connected()
	}
	c.started = true
	c.stop = make(chan struct{})
	c.mu.Unlock()

	ok := c.mgr.Connect(preferred)
	if !ok {
		ok = c.mgr.RetryWithFallback()
	}

	stop := c.stop
	safe.Go(func() { c.run(stop) })
	return ok
}

// Dispose stops the tick loop and disconnects. Idempotent.
func (c *Client) Dispose() {
	c.mu.Lock()
	if c.started {
		c.started = false
		close(c.stop)
	}
	sess := c.sess
	c.mu.Unlock()

	if sess.UserID != "" {
		if pt, ok := c.mgr.Active().(presenceTracker); ok {
			_ = pt.Untrack(sess.UserID)
		}
	}
	c.mgr.Disconnect()
}

// RetryWithFallback re-runs the connect sequence across transports.
func (c *Client) RetryWithFallback() bool { return c.mgr.RetryWithFallback() }

// Connected reports link status.
func (c *Client) Connected() bool { return c.mgr.Connected() }

// ConnectionState returns the full connection-state record.
func (c *Client) ConnectionState() session.State { return c.mgr.Snapshot() }

// CurrentUser returns the session identity, if assigned.
func (c *Client) CurrentUser() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess, c.sess.UserID != ""
}

// Users returns the remote-user table.
func (c *Client) Users() []presence.RemoteUser { return c.tracker.Snapshot() }

// History returns retained chat history, oldest first.
func (c *Client) History() []wire.ChatMessage { return c.channel.History() }

// ProximityTarget returns the active proximity-chat target.
func (c *Client) ProximityTarget() (string, bool) { return c.engine.Target() }

// ProximityConversation returns the retained pairing history.
func (c *Client) ProximityConversation(userID string) []wire.ChatMessage {
	return c.engine.Conversation(userID)
}

// Typing reports whether a remote user is typing.
func (c *Client) Typing(userID string) bool { return c.channel.Typing(userID) }

// Reactions returns emoji counts for a message.
func (c *Client) Reactions(messageID string) map[string]int {
	return c.channel.Reactions(messageID)
}

// UpdatePosition records and (rate-limited) broadcasts local movement.
func (c *Client) UpdatePosition(pos, rot wire.Vector3) {
	c.broadcaster.UpdatePosition(pos, rot)
}

// UpdateCustomization broadcasts the complete customization object.
func (c *Client) UpdateCustomization(custom map[string]any) {
	c.broadcaster.UpdateCustomization(custom)
}

// SendMessage sends a chat message of the given type.
func (c *Client) SendMessage(text string, typ wire.MessageType, targetUserID string) (*wire.ChatMessage, error) {
	msg, err := c.channel.SendMessage(text, typ, targetUserID)
	if err != nil {
		return nil, err
	}
	if typ == wire.MessageProximity && targetUserID != "" {
		c.engine.RecordMessage(targetUserID, *msg)
	}
	if c.onChat != nil {
		c.onChat(*msg)
	}
	return msg, nil
}

// SendProximityMessage sends to the current proximity target.
func (c *Client) SendProximityMessage(text string) (*wire.ChatMessage, error) {
	target, ok := c.engine.Target()
	if !ok {
		return nil, chat.ErrNoSession
	}
	return c.SendMessage(text, wire.MessageProximity, target)
}

func (c *Client) StartTyping() { c.channel.StartTyping() }
func (c *Client) StopTyping()  { c.channel.StopTyping() }

func (c *Client) ReactToMessage(messageID, reaction string) {
	c.channel.ReactToMessage(messageID, reaction)
}

func (c *Client) clearSession() {
	c.mu.Lock()
	c.sess = Session{}
	c.mu.Unlock()
}

// run is the shared tick loop: flush pending movement, evaluate
// proximity and zones, expire typing flags, prune stale presence, and
// heartbeat our own liveness.
func (c *Client) run(stop chan struct{}) {
	tick := c.clk.NewTicker(c.cfg.ProximityTick)
	defer tick.Stop()
	heartbeat := c.clk.NewTicker(c.cfg.PresenceHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-tick.C():
			c.broadcaster.Flush()
			c.engine.Tick()
			c.zones.Tick()
			for _, id := range c.typing.Sweep() {
				logger.Debugf("[client] typing expired user=%s", id)
			}
			for _, id := range c.tracker.PruneStale(c.cfg.PresenceTTL) {
				c.typing.Remove(id)
				if c.onLeave != nil {
					safe.Call(func() { c.onLeave(id) })
				}
			}
		case <-heartbeat.C():
			c.trackPresence()
		case <-stop:
			return
		}
	}
}

func (c *Client) trackPresence() {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess.UserID == "" {
		return
	}
	pt, ok := c.mgr.Active().(presenceTracker)
	if !ok {
		return
	}
	pos := c.broadcaster.Position()
	if err := pt.Track(sess.UserID, map[string]any{
		"username": sess.Username,
		"worldId":  sess.WorldID,
		"position": pos,
	}); err != nil {
		logger.Warnf("[client] presence track failed: %v", err)
	}
}

// route registers the inbound event handlers on the session manager.
func (c *Client) route() {
	on := func(event wire.Event, f func(env *wire.Envelope)) {
		c.mgr.On(string(event), func(_ xctx.Context, msg transport.Message) {
			f(&wire.Envelope{Event: event, Data: msg.Data})
		})
	}

	on(wire.EventConnect, func(*wire.Envelope) {
		c.mu.Lock()
		username, world := c.cfg.Username, c.cfg.WorldID
		c.mu.Unlock()
		// announce ourselves; the relay answers with user-id
		c.mgr.Send(string(wire.EventUserData), &wire.SessionInfo{
			Username: username,
			WorldID:  world,
		})
	})

	on(wire.EventUserID, func(env *wire.Envelope) {
		info, err := wire.DecodePayload[wire.SessionInfo](env)
		if err != nil {
			logger.Warnf("[client] bad user-id payload: %v", err)
			return
		}
		c.mu.Lock()
		c.sess.UserID = info.UserID
		if info.Username != "" {
			c.sess.Username = info.Username
		} else if c.sess.Username == "" {
			c.sess.Username = c.cfg.Username
		}
		if info.WorldID != "" {
			c.sess.WorldID = info.WorldID
		} else if c.sess.WorldID == "" {
			c.sess.WorldID = c.cfg.WorldID
		}
		sess := c.sess
		c.mu.Unlock()

		c.tracker.SetLocalID(sess.UserID)
		c.broadcaster.SetUserID(sess.UserID)
		c.channel.SetSession(sess.UserID, sess.Username)
		c.engine.SetWorld(sess.WorldID)
		logger.Infof("[client] session assigned userID=%s world=%s", sess.UserID, sess.WorldID)
		c.trackPresence()
	})

	on(wire.EventUserData, func(env *wire.Envelope) {
		info, err := wire.DecodePayload[wire.SessionInfo](env)
		if err != nil {
			logger.Warnf("[client] bad user-data payload: %v", err)
			return
		}
		c.mu.Lock()
		if info.Username != "" {
			c.sess.Username = info.Username
		}
		if info.WorldID != "" {
			c.sess.WorldID = info.WorldID
		}
		sess := c.sess
		c.mu.Unlock()
		if sess.UserID != "" {
			c.channel.SetSession(sess.UserID, sess.Username)
			c.engine.SetWorld(sess.WorldID)
		}
	})

	on(wire.EventUsersUpdate, func(env *wire.Envelope) {
		snap, err := wire.DecodeSnapshot(env)
		if err != nil {
			logger.Warnf("[client] bad snapshot payload: %v", err)
			return
		}
		c.tracker.ApplySnapshot(snap)
	})

	on(wire.EventUserJoined, func(env *wire.Envelope) {
		u, err := wire.DecodePayload[wire.UserState](env)
		if err != nil {
			logger.Warnf("[client] bad join payload: %v", err)
			return
		}
		known := c.tracker.Count()
		c.tracker.ApplyJoin(u)
		if c.onJoin != nil && c.tracker.Count() > known {
			c.onJoin(u.ID)
		}
	})

	on(wire.EventUserLeft, func(env *wire.Envelope) {
		lv, err := wire.DecodePayload[wire.LeaveUpdate](env)
		if err != nil {
			logger.Warnf("[client] bad leave payload: %v", err)
			return
		}
		c.tracker.ApplyLeave(lv.UserID)
		c.typing.Remove(lv.UserID)
		if c.onLeave != nil {
			c.onLeave(lv.UserID)
		}
	})

	on(wire.EventUserMoved, func(env *wire.Envelope) { c.applier.HandleMove(env) })
	on(wire.EventAvatarUpdate, func(env *wire.Envelope) { c.applier.HandleCustomization(env) })

	on(wire.EventChatMessage, func(env *wire.Envelope) {
		msg, err := wire.DecodePayload[wire.ChatMessage](env)
		if err != nil {
			logger.Warnf("[client] bad chat payload: %v", err)
			return
		}
		if !c.channel.Append(*msg) {
			return // duplicate delivery
		}
		if msg.Type == wire.MessageProximity {
			c.engine.RecordMessage(msg.UserID, *msg)
		}
		if c.onChat != nil {
			c.onChat(*msg)
		}
	})

	on(wire.EventUserTyping, func(env *wire.Envelope) { c.channel.HandleTyping(env) })
	on(wire.EventReactionUpdated, func(env *wire.Envelope) { c.channel.HandleReaction(env) })

	on(wire.EventError, func(env *wire.Envelope) {
		info, err := wire.DecodePayload[wire.ErrorInfo](env)
		if err != nil {
			logger.Warnf("[client] bad error payload: %v", err)
			return
		}
		logger.Warnf("[client] relay error code=%d msg=%s", info.Code, info.Message)
		c.channel.SystemMessage(info.Message)
	})
}
