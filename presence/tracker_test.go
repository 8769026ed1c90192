package presence

import (
	"testing"
	"time"

	"roamlink/clock"
	"roamlink/wire"
)

func vec(x, y, z float64) *wire.Vector3 {
	return &wire.Vector3{X: x, Y: y, Z: z}
}

func TestPartialMergeKeepsUnsetFields(t *testing.T) {
	tr := NewTracker(clock.NewManual())
	tr.ApplyJoin(&wire.UserState{ID: "u1", Username: "A", Position: vec(1, 1, 1)})

	tr.ApplyMove(&wire.MoveUpdate{UserID: "u1", Position: vec(2, 2, 2)})

	u, ok := tr.Get("u1")
	if !ok {
		t.Fatalf("expected u1 to be tracked")
	}
	if u.Position != (wire.Vector3{X: 2, Y: 2, Z: 2}) {
		t.Fatalf("expected position overwritten, got %+v", u.Position)
	}
	if u.Username != "A" {
		t.Fatalf("expected username preserved, got %q", u.Username)
	}
}

func TestSnapshotReplacesWholeTable(t *testing.T) {
	tr := NewTracker(clock.NewManual())
	tr.ApplyJoin(&wire.UserState{ID: "u1", Username: "A", Position: vec(1, 1, 1)})

	tr.ApplySnapshot(&wire.UserSnapshot{Users: []wire.UserState{
		{ID: "u2", Username: "B", Position: vec(0, 0, 0)},
	}})

	if _, ok := tr.Get("u1"); ok {
		t.Fatalf("expected u1 gone after snapshot")
	}
	u2, ok := tr.Get("u2")
	if !ok || u2.Username != "B" {
		t.Fatalf("expected snapshot to install u2, got %+v ok=%v", u2, ok)
	}
	if tr.Count() != 1 {
		t.Fatalf("expected exactly one user, got %d", tr.Count())
	}
}

func TestMoveBeforeJoinSynthesizesEntry(t *testing.T) {
	tr := NewTracker(clock.NewManual())
	tr.ApplyMove(&wire.MoveUpdate{UserID: "ghost", Position: vec(7, 0, 7)})

	u, ok := tr.Get("ghost")
	if !ok {
		t.Fatalf("expected synthesized entry for out-of-order move")
	}
	if u.Position.X != 7 || !u.Online {
		t.Fatalf("unexpected synthesized entry %+v", u)
	}

	// the late join fills in the rest without losing the position
	tr.ApplyJoin(&wire.UserState{ID: "ghost", Username: "Casper"})
	u, _ = tr.Get("ghost")
	if u.Username != "Casper" || u.Position.X != 7 {
		t.Fatalf("expected merge of late join, got %+v", u)
	}
}

func TestLeaveUnknownIsNoop(t *testing.T) {
	tr := NewTracker(clock.NewManual())
	tr.ApplyLeave("nobody")
	if tr.Count() != 0 {
		t.Fatalf("expected empty table")
	}

	tr.ApplyJoin(&wire.UserState{ID: "u1"})
	tr.ApplyLeave("u1")
	if _, ok := tr.Get("u1"); ok {
		t.Fatalf("expected u1 removed")
	}
}

func TestLocalIDNeverTracked(t *testing.T) {
	tr := NewTracker(clock.NewManual())
	tr.SetLocalID("me")

	tr.ApplyJoin(&wire.UserState{ID: "me", Username: "self-echo"})
	tr.ApplyMove(&wire.MoveUpdate{UserID: "me", Position: vec(1, 2, 3)})
	tr.ApplySnapshot(&wire.UserSnapshot{Users: []wire.UserState{
		{ID: "me"}, {ID: "u2"},
	}})

	if _, ok := tr.Get("me"); ok {
		t.Fatalf("local id must never appear in the remote table")
	}
	if tr.Count() != 1 {
		t.Fatalf("expected only u2, got %d entries", tr.Count())
	}
}

func TestSetLocalIDEvictsExistingEntry(t *testing.T) {
	tr := NewTracker(clock.NewManual())
	tr.ApplyJoin(&wire.UserState{ID: "u9"})
	tr.SetLocalID("u9")
	if _, ok := tr.Get("u9"); ok {
		t.Fatalf("expected own entry evicted once id is known")
	}
}

func TestExplicitOfflineHonored(t *testing.T) {
	offline := false
	tr := NewTracker(clock.NewManual())
	tr.ApplySnapshot(&wire.UserSnapshot{Users: []wire.UserState{
		{ID: "away", Online: &offline},
		{ID: "here"},
	}})

	away, ok := tr.Get("away")
	if !ok || away.Online {
		t.Fatalf("expected away tracked as offline, got %+v ok=%v", away, ok)
	}
	here, _ := tr.Get("here")
	if !here.Online {
		t.Fatalf("absent online field means online, got %+v", here)
	}

	// a join without the field flips the user back online
	tr.ApplyJoin(&wire.UserState{ID: "away"})
	away, _ = tr.Get("away")
	if !away.Online {
		t.Fatalf("expected join to mark away online, got %+v", away)
	}

	// and a join carrying an explicit false keeps them offline
	tr.ApplyJoin(&wire.UserState{ID: "away", Online: &offline})
	away, _ = tr.Get("away")
	if away.Online {
		t.Fatalf("expected explicit offline join honored, got %+v", away)
	}
}

func TestPruneStaleDropsQuietUsers(t *testing.T) {
	clk := clock.NewManual()
	tr := NewTracker(clk)
	tr.ApplyJoin(&wire.UserState{ID: "quiet"})

	clk.Advance(10 * time.Second)
	tr.ApplyJoin(&wire.UserState{ID: "chatty"})

	pruned := tr.PruneStale(5 * time.Second)
	if len(pruned) != 1 || pruned[0] != "quiet" {
		t.Fatalf("expected only quiet pruned, got %v", pruned)
	}
	if _, ok := tr.Get("chatty"); !ok {
		t.Fatalf("expected chatty kept")
	}
}
