package wire

// Vector3 is a world-space position or Euler rotation.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// UserState is the full view of one remote user. Snapshot entries and
// join events carry it; partial updates only fill some fields. Online
// is a pointer so an absent field (assume online) is distinguishable
// from an explicit false.
type UserState struct {
	ID            string         `json:"id"`
	Username      string         `json:"username,omitempty"`
	WorldID       string         `json:"worldId,omitempty"`
	Position      *Vector3       `json:"position,omitempty"`
	Rotation      *Vector3       `json:"rotation,omitempty"`
	Online        *bool          `json:"online,omitempty"`
	Customization map[string]any `json:"customization,omitempty"`
}

// UserSnapshot replaces the whole remote-user table (users-update).
type UserSnapshot struct {
	Users []UserState `json:"users"`
}

// SessionInfo is delivered on user-id / user-data after the relay
// accepts a join.
type SessionInfo struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
	WorldID  string `json:"worldId,omitempty"`
}

// MoveUpdate carries one avatar movement tick (user-moved).
type MoveUpdate struct {
	UserID   string   `json:"userId"`
	Position *Vector3 `json:"position,omitempty"`
	Rotation *Vector3 `json:"rotation,omitempty"`
}

// AvatarUpdate replaces a user's customization wholesale
// (avatar-update). The editor sends complete objects, so receivers
// never merge field-by-field.
type AvatarUpdate struct {
	UserID        string         `json:"userId"`
	Customization map[string]any `json:"customization"`
}

// LeaveUpdate announces a departed user (user-left).
type LeaveUpdate struct {
	UserID string `json:"userId"`
}

// ChatMessage is one chat entry. ID doubles as the idempotency key:
// the relay delivers at-least-once and receivers drop duplicates.
type ChatMessage struct {
	ID           string      `json:"id"`
	UserID       string      `json:"userId"`
	Username     string      `json:"username,omitempty"`
	Message      string      `json:"message"`
	Type         MessageType `json:"type"`
	TargetUserID string      `json:"targetUserId,omitempty"`
	TimestampMS  int64       `json:"ts"`
}

// TypingUpdate broadcasts a typing-indicator flip (user-typing).
type TypingUpdate struct {
	UserID string `json:"userId"`
	Typing bool   `json:"typing"`
}

// ReactionUpdate records one reaction toggle on a chat message
// (message-reaction-updated).
type ReactionUpdate struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	Reaction  string `json:"reaction"`
}

// ErrorInfo is a relay-reported application error. Non-fatal; the
// client surfaces it as a system chat line.
type ErrorInfo struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}
