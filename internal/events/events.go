// Package events defines the events exchanged between the scheduler, the
// power monitor and their observers, and an in-process bus to carry them.
package events

import (
	"fmt"
	"time"
)

// Kind identifies an event type.
type Kind int

const (
	KindCycleCompleted Kind = iota
	KindPowerStateChanged
	KindJankPercentUpdate
)

// String returns the event name.
func (k Kind) String() string {
	switch k {
	case KindCycleCompleted:
		return "cycle_completed"
	case KindPowerStateChanged:
		return "power_state_changed"
	case KindJankPercentUpdate:
		return "jank_percent_update"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is anything published on the bus.
type Event interface {
	Kind() Kind
}

// Sources of JankPercentUpdate.
const (
	SourceCycles = "cycles"
	SourceFrames = "frames"
)

// CycleCompleted is emitted once per successful scheduler cycle.
type CycleCompleted struct {
	Cycle     uint64        `json:"cycle"`
	Timestamp time.Time     `json:"timestamp"`
	Latency   time.Duration `json:"latency_ns"`
	IsJank    bool          `json:"is_jank"`
	Intensity int           `json:"intensity"`
	RateHz    int           `json:"rate_hz"`
}

func (CycleCompleted) Kind() Kind { return KindCycleCompleted }

// LatencyMs returns the latency in whole milliseconds.
func (e CycleCompleted) LatencyMs() int64 {
	return e.Latency.Milliseconds()
}

// PowerStateChanged is emitted when the power-save flag flips.
type PowerStateChanged struct {
	Timestamp   time.Time `json:"timestamp"`
	IsPowerSave bool      `json:"is_power_save"`
}

func (PowerStateChanged) Kind() Kind { return KindPowerStateChanged }

// JankPercentUpdate carries a freshly computed windowed jank percentage.
type JankPercentUpdate struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Percent   float64   `json:"percent"`
	Samples   int       `json:"samples"`
}

func (JankPercentUpdate) Kind() Kind { return KindJankPercentUpdate }

// Publisher accepts events for delivery.
type Publisher interface {
	Publish(ev Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ev Event)

func (f PublisherFunc) Publish(ev Event) { f(ev) }

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(Event) {})
