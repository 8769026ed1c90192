package proximity

import (
	"testing"

	"roamlink/wire"
)

func TestZoneEdgeFiresOncePerCrossing(t *testing.T) {
	local := &fixedPosition{}
	zs := NewZoneSet(local, Zone{Name: "fountain", Center: wire.Vector3{X: 10}, Radius: 5})

	var entered, exited int
	zs.OnEnter(func(string) { entered++ })
	zs.OnExit(func(string) { exited++ })

	zs.Tick()
	zs.Tick()
	if entered != 0 {
		t.Fatalf("outside zone, no enter expected")
	}

	local.move(wire.Vector3{X: 8})
	zs.Tick()
	zs.Tick()
	zs.Tick()
	if entered != 1 {
		t.Fatalf("expected one enter, got %d", entered)
	}
	if !zs.Inside("fountain") {
		t.Fatalf("expected containment reported")
	}

	local.move(wire.Vector3{X: 20})
	zs.Tick()
	zs.Tick()
	if exited != 1 {
		t.Fatalf("expected one exit, got %d", exited)
	}
}

func TestIndependentZones(t *testing.T) {
	local := &fixedPosition{}
	zs := NewZoneSet(local,
		Zone{Name: "a", Center: wire.Vector3{X: 0}, Radius: 2},
		Zone{Name: "b", Center: wire.Vector3{X: 3}, Radius: 2},
	)

	var events []string
	zs.OnEnter(func(z string) { events = append(events, "enter:"+z) })
	zs.OnExit(func(z string) { events = append(events, "exit:"+z) })

	zs.Tick() // inside a at origin
	local.move(wire.Vector3{X: 3})
	zs.Tick() // crossed into b, out of a

	want := map[string]bool{"enter:a": true, "exit:a": true, "enter:b": true}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %v", events)
	}
	for _, e := range events {
		if !want[e] {
			t.Fatalf("unexpected event %q in %v", e, events)
		}
	}
}

func TestAddZoneAtRuntime(t *testing.T) {
	local := &fixedPosition{}
	zs := NewZoneSet(local)
	var entered []string
	zs.OnEnter(func(z string) { entered = append(entered, z) })

	zs.Add(Zone{Name: "spawn", Center: wire.Vector3{}, Radius: 1})
	zs.Tick()
	if len(entered) != 1 || entered[0] != "spawn" {
		t.Fatalf("expected enter for added zone, got %v", entered)
	}
}
