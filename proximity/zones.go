package proximity

import (
	"sync"

	"roamlink/wire"
)

// Zone is a named static region with a fixed center and radius.
type Zone struct {
	Name   string
	Center wire.Vector3
	Radius float64
}

// ZoneSet tracks containment per zone against the local avatar and
// fires enter/exit exactly once per crossing. It keeps the previous
// tick's containment to detect the edge.
type ZoneSet struct {
	local PositionSource

	mu     sync.Mutex
	zones  []Zone
	inside map[string]bool

	onEnter func(zone string)
	onExit  func(zone string)
}

func NewZoneSet(local PositionSource, zones ...Zone) *ZoneSet {
	return &ZoneSet{
		local:  local,
		zones:  zones,
		inside: make(map[string]bool),
	}
}

func (z *ZoneSet) OnEnter(f func(zone string)) { z.onEnter = f }
func (z *ZoneSet) OnExit(f func(zone string))  { z.onExit = f }

// Add registers another zone at runtime.
func (z *ZoneSet) Add(zone Zone) {
	z.mu.Lock()
	z.zones = append(z.zones, zone)
	z.mu.Unlock()
}

// Inside reports current containment for one zone.
func (z *ZoneSet) Inside(name string) bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.inside[name]
}

// Tick re-evaluates containment for every zone.
func (z *ZoneSet) Tick() {
	pos := z.local.Position()

	type edge struct {
		name    string
		entered bool
	}
	var edges []edge

	z.mu.Lock()
	for _, zone := range z.zones {
		now := Distance(pos, zone.Center) <= zone.Radius
		was := z.inside[zone.Name]
		if now == was {
			continue
		}
		z.inside[zone.Name] = now
		edges = append(edges, edge{name: zone.Name, entered: now})
	}
	z.mu.Unlock()

	for _, e := range edges {
		if e.entered {
			if z.onEnter != nil {
				z.onEnter(e.name)
			}
		} else if z.onExit != nil {
			z.onExit(e.name)
		}
	}
}
