package avatarsync

import (
	"roamlink/logger"
	"roamlink/presence"
	"roamlink/wire"
)

// Applier folds inbound avatar traffic into the presence table. Moves
// for ids the table has never seen synthesize a minimal entry, since
// user-moved may outrun user-joined.
type Applier struct {
	tracker *presence.Tracker
}

func NewApplier(tracker *presence.Tracker) *Applier {
	return &Applier{tracker: tracker}
}

func (a *Applier) HandleMove(env *wire.Envelope) {
	mv, err := wire.DecodePayload[wire.MoveUpdate](env)
	if err != nil {
		logger.Warnf("[avatarsync] bad move payload: %v", err)
		return
	}
	a.tracker.ApplyMove(mv)
}

func (a *Applier) HandleCustomization(env *wire.Envelope) {
	up, err := wire.DecodePayload[wire.AvatarUpdate](env)
	if err != nil {
		logger.Warnf("[avatarsync] bad avatar payload: %v", err)
		return
	}
	a.tracker.ApplyCustomization(up)
}
