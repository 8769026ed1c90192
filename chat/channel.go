package chat

import (
	"sync"

	"github.com/pkg/errors"

	"roamlink/clock"
	"roamlink/logger"
	"roamlink/tools/ids"
	"roamlink/wire"
)

// ErrNoSession is returned when sending before the relay has assigned
// a user id.
var ErrNoSession = errors.New("chat: no active session")

// Sender is the outbound half the channel needs.
type Sender interface {
	Send(event string, payload any)
}

// Channel owns chat history, reactions, and typing state. History is
// a bounded ordered sequence, oldest evicted first; message ids are
// the idempotency keys against at-least-once relay delivery.
type Channel struct {
	sender Sender
	clk    clock.Clock
	cap    int

	mu       sync.RWMutex
	userID   string
	username string
	history  []wire.ChatMessage
	present  map[string]struct{}            // ids currently in history
	reacts   map[string]map[string]reactSet // messageID -> emoji -> users
	typing   *TypingState
}

type reactSet map[string]struct{}

func NewChannel(sender Sender, clk clock.Clock, historyCap int, typing *TypingState) *Channel {
	if clk == nil {
		clk = clock.System{}
	}
	if historyCap <= 0 {
		historyCap = 50
	}
	return &Channel{
		sender:  sender,
		clk:     clk,
		cap:     historyCap,
		present: make(map[string]struct{}),
		reacts:  make(map[string]map[string]reactSet),
		typing:  typing,
	}
}

// SetSession records the local identity once the relay assigns it.
func (c *Channel) SetSession(userID, username string) {
	c.mu.Lock()
	c.userID = userID
	c.username = username
	c.mu.Unlock()
}

// SendMessage constructs, records, and transmits one message. The
// fresh id is safe as a dedup key if the relay echoes it back.
func (c *Channel) SendMessage(text string, typ wire.MessageType, targetUserID string) (*wire.ChatMessage, error) {
	c.mu.RLock()
	userID, username := c.userID, c.username
	c.mu.RUnlock()
	if userID == "" {
		return nil, ErrNoSession
	}
	if typ == "" {
		typ = wire.MessageText
	}
	msg := &wire.ChatMessage{
		ID:           ids.MessageID(),
		UserID:       userID,
		Username:     username,
		Message:      text,
		Type:         typ,
		TargetUserID: targetUserID,
		TimestampMS:  c.clk.Now().UnixMilli(),
	}
	c.Append(*msg)
	c.sender.Send(string(wire.EventChatMessage), msg)
	return msg, nil
}

// Append records one message, ignoring ids already in history.
// Returns whether the message was new.
func (c *Channel) Append(msg wire.ChatMessage) bool {
	if msg.ID == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.present[msg.ID]; dup {
		return false
	}
	c.history = append(c.history, msg)
	c.present[msg.ID] = struct{}{}
	for len(c.history) > c.cap {
		evicted := c.history[0]
		c.history = c.history[1:]
		delete(c.present, evicted.ID)
		delete(c.reacts, evicted.ID)
	}
	return true
}

// HandleMessage folds one inbound chat-message event into history.
func (c *Channel) HandleMessage(env *wire.Envelope) {
	msg, err := wire.DecodePayload[wire.ChatMessage](env)
	if err != nil {
		logger.Warnf("[chat] bad message payload: %v", err)
		return
	}
	c.Append(*msg)
}

// SystemMessage records a local-only system entry, used for
// relay-reported errors.
func (c *Channel) SystemMessage(text string) {
	c.Append(wire.ChatMessage{
		ID:          ids.MessageID(),
		UserID:      "system",
		Username:    "System",
		Message:     text,
		Type:        wire.MessageSystem,
		TimestampMS: c.clk.Now().UnixMilli(),
	})
}

// History returns a copy of the retained messages, oldest first.
func (c *Channel) History() []wire.ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]wire.ChatMessage, len(c.history))
	copy(out, c.history)
	return out
}

// StartTyping broadcasts the local typing indicator.
func (c *Channel) StartTyping() {
	c.sendTyping(true)
}

// StopTyping clears the local typing indicator.
func (c *Channel) StopTyping() {
	c.sendTyping(false)
}

func (c *Channel) sendTyping(on bool) {
	c.mu.RLock()
	userID := c.userID
	c.mu.RUnlock()
	if userID == "" {
		logger.Warnf("[chat] typing before session, drop")
		return
	}
	c.sender.Send(string(wire.EventUserTyping), &wire.TypingUpdate{UserID: userID, Typing: on})
}

// HandleTyping folds an inbound typing flip into the typing table.
func (c *Channel) HandleTyping(env *wire.Envelope) {
	up, err := wire.DecodePayload[wire.TypingUpdate](env)
	if err != nil {
		logger.Warnf("[chat] bad typing payload: %v", err)
		return
	}
	c.typing.Set(up.UserID, up.Typing)
}

// Typing reports whether a user is currently typing.
func (c *Channel) Typing(userID string) bool {
	return c.typing.Typing(userID)
}

// ReactToMessage toggles the local user's reaction and broadcasts it.
// Fire-and-forget: clients seeing different delivery orders converge
// because toggles commute per (message, emoji, user).
func (c *Channel) ReactToMessage(messageID, reaction string) {
	c.mu.RLock()
	userID := c.userID
	c.mu.RUnlock()
	if userID == "" {
		logger.Warnf("[chat] react before session, drop")
		return
	}
	up := &wire.ReactionUpdate{MessageID: messageID, UserID: userID, Reaction: reaction}
	c.applyReaction(up)
	c.sender.Send(string(wire.EventReactionUpdated), up)
}

// HandleReaction folds an inbound reaction toggle into the counts.
func (c *Channel) HandleReaction(env *wire.Envelope) {
	up, err := wire.DecodePayload[wire.ReactionUpdate](env)
	if err != nil {
		logger.Warnf("[chat] bad reaction payload: %v", err)
		return
	}
	c.applyReaction(up)
}

func (c *Channel) applyReaction(up *wire.ReactionUpdate) {
	if up.MessageID == "" || up.Reaction == "" || up.UserID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.present[up.MessageID]; !ok {
		// reaction to a message we no longer (or never) hold
		return
	}
	byEmoji, ok := c.reacts[up.MessageID]
	if !ok {
		byEmoji = make(map[string]reactSet)
		c.reacts[up.MessageID] = byEmoji
	}
	users, ok := byEmoji[up.Reaction]
	if !ok {
		users = make(reactSet)
		byEmoji[up.Reaction] = users
	}
	if _, has := users[up.UserID]; has {
		delete(users, up.UserID)
		if len(users) == 0 {
			delete(byEmoji, up.Reaction)
		}
	} else {
		users[up.UserID] = struct{}{}
	}
}

// Reactions returns emoji counts for one message.
func (c *Channel) Reactions(messageID string) map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byEmoji, ok := c.reacts[messageID]
	if !ok {
		return nil
	}
	out := make(map[string]int, len(byEmoji))
	for emoji, users := range byEmoji {
		out[emoji] = len(users)
	}
	return out
}
