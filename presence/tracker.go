package presence

import (
	"sync"
	"time"

	"roamlink/clock"
	"roamlink/logger"
	"roamlink/wire"
)

// RemoteUser is the tracked view of one other client. The table is
// last-write-wins per field; arrival order decides conflicts.
type RemoteUser struct {
	ID            string
	Username      string
	WorldID       string
	Position      wire.Vector3
	Rotation      wire.Vector3
	Online        bool
	LastSeen      time.Time
	Customization map[string]any
}

// Tracker owns the remote-user table. It is the only writer; everyone
// else reads through Snapshot/Get. The local user is never in the
// table.
type Tracker struct {
	clk clock.Clock

	mu      sync.RWMutex
	localID string
	users   map[string]*RemoteUser
}

func NewTracker(clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.System{}
	}
	return &Tracker{clk: clk, users: make(map[string]*RemoteUser)}
}

// SetLocalID records the session's own id so echoes of our own state
// never land in the remote table.
func (t *Tracker) SetLocalID(id string) {
	t.mu.Lock()
	t.localID = id
	delete(t.users, id)
	t.mu.Unlock()
}

// ApplySnapshot replaces the whole table (users-update). Snapshots are
// the authoritative reconciliation point after reconnect: whatever was
// merged in before is discarded, snapshot wins.
func (t *Tracker) ApplySnapshot(snap *wire.UserSnapshot) {
	now := t.clk.Now()
	next := make(map[string]*RemoteUser, len(snap.Users))
	t.mu.Lock()
	for _, u := range snap.Users {
		if u.ID == "" || u.ID == t.localID {
			continue
		}
		// absent online field means online; explicit false is honored
		ru := &RemoteUser{ID: u.ID, Online: true, LastSeen: now}
		applyState(ru, &u)
		next[u.ID] = ru
	}
	t.users = next
	t.mu.Unlock()
}

// ApplyJoin merges a join (or presence track) into the table. Only
// fields present in the message overwrite; an unknown id creates an
// entry with defaults.
func (t *Tracker) ApplyJoin(u *wire.UserState) {
	if u.ID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if u.ID == t.localID {
		return
	}
	ru := t.ensureLocked(u.ID)
	applyState(ru, u)
	if u.Online == nil {
		ru.Online = true
	}
	ru.LastSeen = t.clk.Now()
}

// ApplyMove overwrites position/rotation only. A move for an unknown
// id synthesizes a minimal entry: join and move can arrive in either
// order.
func (t *Tracker) ApplyMove(mv *wire.MoveUpdate) {
	if mv.UserID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if mv.UserID == t.localID {
		return
	}
	ru := t.ensureLocked(mv.UserID)
	if mv.Position != nil {
		ru.Position = *mv.Position
	}
	if mv.Rotation != nil {
		ru.Rotation = *mv.Rotation
	}
	ru.Online = true
	ru.LastSeen = t.clk.Now()
}

// ApplyCustomization replaces the customization object wholesale. The
// editor always sends complete objects, so there is no field merge.
func (t *Tracker) ApplyCustomization(up *wire.AvatarUpdate) {
	if up.UserID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if up.UserID == t.localID {
		return
	}
	ru := t.ensureLocked(up.UserID)
	ru.Customization = up.Customization
	ru.LastSeen = t.clk.Now()
}

// ApplyLeave removes a user. Removing an unknown id is a no-op.
func (t *Tracker) ApplyLeave(id string) {
	t.mu.Lock()
	if _, ok := t.users[id]; ok {
		delete(t.users, id)
		logger.Debugf("[presence] user left id=%s", id)
	}
	t.mu.Unlock()
}

// PruneStale drops users not seen within ttl. Covers leave messages
// lost to the at-least-once relay.
func (t *Tracker) PruneStale(ttl time.Duration) []string {
	cutoff := t.clk.Now().Add(-ttl)
	var pruned []string
	t.mu.Lock()
	for id, u := range t.users {
		if u.LastSeen.Before(cutoff) {
			delete(t.users, id)
			pruned = append(pruned, id)
		}
	}
	t.mu.Unlock()
	for _, id := range pruned {
		logger.Infof("[presence] pruned stale user id=%s", id)
	}
	return pruned
}

// Get returns a copy of one user.
func (t *Tracker) Get(id string) (RemoteUser, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	u, ok := t.users[id]
	if !ok {
		return RemoteUser{}, false
	}
	return *u, true
}

// Snapshot returns copies of every tracked user.
func (t *Tracker) Snapshot() []RemoteUser {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]RemoteUser, 0, len(t.users))
	for _, u := range t.users {
		out = append(out, *u)
	}
	return out
}

// Count reports the table size.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.users)
}

func (t *Tracker) ensureLocked(id string) *RemoteUser {
	if u, ok := t.users[id]; ok {
		return u
	}
	u := &RemoteUser{ID: id, Online: true, LastSeen: t.clk.Now()}
	t.users[id] = u
	return u
}

func applyState(ru *RemoteUser, u *wire.UserState) {
	if u.Username != "" {
		ru.Username = u.Username
	}
	if u.WorldID != "" {
		ru.WorldID = u.WorldID
	}
	if u.Position != nil {
		ru.Position = *u.Position
	}
	if u.Rotation != nil {
		ru.Rotation = *u.Rotation
	}
	if u.Online != nil {
		ru.Online = *u.Online
	}
	if u.Customization != nil {
		ru.Customization = u.Customization
	}
}
