// Package proximity turns accepted fixes into enter/exit events against the
// station catalog.
package proximity

import (
	"time"

	"github.com/playperu/chargehunt/internal/chargehunt"
	"github.com/playperu/chargehunt/internal/geomath"
)

// DefaultRadius is the activation radius in meters.
const DefaultRadius = 25.0

type Kind int

const (
	Enter Kind = iota
	Exit
)

func (k Kind) String() string {
	if k == Exit {
		return "exit"
	}
	return "enter"
}

type Event struct {
	Kind      Kind
	StationID string
	Distance  float64
	At        time.Time
}

// Stations is the read side of the catalog.
type Stations interface {
	Snapshot() []chargehunt.Station
}

// Engine remembers which stations were in range after the previous fix.
// It is owned by one player session and is not safe for concurrent use.
type Engine struct {
	inRange map[string]bool
}

// NewEngine starts with the given stations already in range, typically the
// ones persisted as discoverable.
func NewEngine(inRange ...string) *Engine {
	e := &Engine{inRange: make(map[string]bool, len(inRange))}
	for _, id := range inRange {
		e.inRange[id] = true
	}
	return e
}

// InRange reports whether the station was in range after the last evaluation.
func (e *Engine) InRange(id string) bool {
	return e.inRange[id]
}

// Forget drops the remembered range state for a station.
func (e *Engine) Forget(id string) {
	delete(e.inRange, id)
}

// Evaluate scans every station and emits an event for each range change.
// Stations for which claimed returns true never produce events.
func (e *Engine) Evaluate(fix chargehunt.Position, stations Stations, radius float64, claimed func(id string) bool) []Event {
	var events []Event

	for _, s := range stations.Snapshot() {
		if claimed != nil && claimed(s.ExternalID) {
			delete(e.inRange, s.ExternalID)
			continue
		}

		d := geomath.Distance(fix.Latitude, fix.Longitude, s.Latitude, s.Longitude)
		now := d <= radius
		was := e.inRange[s.ExternalID]

		switch {
		case now && !was:
			e.inRange[s.ExternalID] = true
			events = append(events, Event{Kind: Enter, StationID: s.ExternalID, Distance: d, At: fix.CapturedAt})
		case !now && was:
			delete(e.inRange, s.ExternalID)
			events = append(events, Event{Kind: Exit, StationID: s.ExternalID, Distance: d, At: fix.CapturedAt})
		}
	}
	return events
}
