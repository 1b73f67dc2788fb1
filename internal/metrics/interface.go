package metrics

import (
	"net/http"

	"codeberg.org/mutker/telemetrylab/internal/events"
)

// Collector defines the core domain interface
type Collector interface {
	RecordCycle(ev events.CycleCompleted)
	RecordFailure()
	RecordPowerState(ev events.PowerStateChanged)
	RecordJankPercent(ev events.JankPercentUpdate)
	Handler() http.Handler
	Close() error
}
