package wire

// Event names exchanged with the relay. The set is closed: transports
// and the session manager only route names listed here, anything else
// is logged and dropped.
type Event string

const (
	EventConnect         Event = "connect"
	EventDisconnect      Event = "disconnect"
	EventError           Event = "error"
	EventUserID          Event = "user-id"
	EventUserData        Event = "user-data"
	EventUsersUpdate     Event = "users-update"
	EventUserJoined      Event = "user-joined"
	EventUserLeft        Event = "user-left"
	EventUserMoved       Event = "user-moved"
	EventAvatarUpdate    Event = "avatar-update"
	EventChatMessage     Event = "chat-message"
	EventUserTyping      Event = "user-typing"
	EventReactionUpdated Event = "message-reaction-updated"
)

// Known reports whether e belongs to the closed event set.
func Known(e Event) bool {
	switch e {
	case EventConnect, EventDisconnect, EventError,
		EventUserID, EventUserData, EventUsersUpdate,
		EventUserJoined, EventUserLeft, EventUserMoved,
		EventAvatarUpdate, EventChatMessage, EventUserTyping,
		EventReactionUpdated:
		return true
	}
	return false
}

// HeaderOrigin carries the sending connection's id on broadcast
// transports so adapters can drop their own echoes.
const HeaderOrigin = "Roam-Origin"

// MessageType classifies chat messages.
type MessageType string

const (
	MessageText        MessageType = "text"
	MessageSystem      MessageType = "system"
	MessageWhisper     MessageType = "whisper"
	MessageProximity   MessageType = "proximity"
	MessageAchievement MessageType = "achievement"
)
