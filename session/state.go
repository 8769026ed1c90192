package session

import "roamlink/transport"

// State is the single connection-state record the rest of the app
// reads. Only the Manager mutates it. Connected and Connecting are
// never both true.
type State struct {
	Connected  bool
	Connecting bool
	Err        string
	Kind       transport.Kind // empty until a link is up
	RetryCount int
}

// Idle resets everything back to the initial values.
func (s *State) reset() {
	*s = State{}
}
