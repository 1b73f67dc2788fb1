package telemetry

import (
	"time"

	"codeberg.org/mutker/telemetrylab/internal/history"
)

// RunStatus reports the scheduler's lifecycle to the recorder.
type RunStatus interface {
	IsRunning() bool
	RunID() string
}

// Snapshot is the presentation state derived from the event stream.
type Snapshot struct {
	Timestamp        time.Time       `json:"timestamp"`
	RunID            string          `json:"run_id,omitempty"`
	IsRunning        bool            `json:"running"`
	Latency          time.Duration   `json:"latency_ns"`
	LatencyMs        int64           `json:"latency_ms"`
	JankPercent      float64         `json:"jank_percent"`
	FrameJankPercent float64         `json:"frame_jank_percent"`
	IsPowerSave      bool            `json:"power_save"`
	RateHz           int             `json:"rate_hz"`
	Intensity        int             `json:"intensity"`
	Cycles           uint64          `json:"cycles"`
	Samples          int             `json:"samples"`
	History          []history.Entry `json:"history"`
}
