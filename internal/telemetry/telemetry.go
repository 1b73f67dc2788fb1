// Package telemetry turns the scheduler's event stream into the state an
// observer displays: the rolling cycle jank percentage, the recent cycle
// history and the latest power and frame readings.
package telemetry

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/telemetrylab/internal/errors"
	"codeberg.org/mutker/telemetrylab/internal/events"
	"codeberg.org/mutker/telemetrylab/internal/history"
	"codeberg.org/mutker/telemetrylab/internal/logger"
	"codeberg.org/mutker/telemetrylab/internal/metrics"
	"codeberg.org/mutker/telemetrylab/internal/window"
)

type Option func(*Recorder)

// WithPublisher sets where cycle JankPercentUpdate events are sent.
func WithPublisher(p events.Publisher) Option {
	return func(r *Recorder) { r.out = p }
}

func WithMetrics(m metrics.Collector) Option {
	return func(r *Recorder) { r.metrics = m }
}

func WithLogger(l logger.Logger) Option {
	return func(r *Recorder) { r.log = l }
}

func WithRunStatus(s RunStatus) Option {
	return func(r *Recorder) { r.status = s }
}

// Recorder is the single consumer of a subscription. The window and
// history it owns are only mutated from Handle.
type Recorder struct {
	out     events.Publisher
	metrics metrics.Collector
	log     logger.Logger
	status  RunStatus

	mu           sync.RWMutex
	window       *window.Aggregator
	history      *history.History
	last         events.CycleCompleted
	jankPct      float64
	frameJankPct float64
	powerSave    bool
}

func NewRecorder(cfg Config, opts ...Option) (*Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	r := &Recorder{
		out:     events.Discard,
		metrics: metrics.Nop(),
		log:     logger.Nop(),
		window:  window.New(cfg.WindowDuration),
		history: history.New(cfg.HistorySize),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Run handles events until ch is closed or ctx is done.
func (r *Recorder) Run(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				r.log.Debug().Msg("Event stream closed")
				return
			}
			r.Handle(ev)
		}
	}
}

// Handle applies a single event.
func (r *Recorder) Handle(ev events.Event) {
	switch e := ev.(type) {
	case events.CycleCompleted:
		r.handleCycle(e)
	case events.PowerStateChanged:
		r.mu.Lock()
		r.powerSave = e.IsPowerSave
		r.mu.Unlock()
		r.metrics.RecordPowerState(e)
	case events.JankPercentUpdate:
		// Our own cycle updates loop back through the bus; they were
		// already recorded when published.
		if e.Source == events.SourceCycles {
			return
		}
		r.mu.Lock()
		r.frameJankPct = e.Percent
		r.mu.Unlock()
		r.metrics.RecordJankPercent(e)
	default:
		r.log.Debug().Str("kind", ev.Kind().String()).Msg("Ignoring event")
	}
}

func (r *Recorder) handleCycle(e events.CycleCompleted) {
	r.mu.Lock()
	r.window.Record(e.Timestamp, e.IsJank)
	r.history.Append(e.Latency, e.IsJank)
	r.last = e
	r.jankPct = r.window.Percentage()
	update := events.JankPercentUpdate{
		Timestamp: e.Timestamp,
		Source:    events.SourceCycles,
		Percent:   r.jankPct,
		Samples:   r.window.Len(),
	}
	r.mu.Unlock()

	r.metrics.RecordCycle(e)
	r.metrics.RecordJankPercent(update)
	r.out.Publish(update)
}

// Snapshot returns a consistent copy of the current state.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.RLock()
	snap := Snapshot{
		Timestamp:        time.Now(),
		Latency:          r.last.Latency,
		LatencyMs:        r.last.LatencyMs(),
		JankPercent:      r.jankPct,
		FrameJankPercent: r.frameJankPct,
		IsPowerSave:      r.powerSave,
		RateHz:           r.last.RateHz,
		Intensity:        r.last.Intensity,
		Cycles:           r.last.Cycle,
		Samples:          r.window.Len(),
		History:          r.history.Entries(),
	}
	r.mu.RUnlock()

	if r.status != nil {
		snap.IsRunning = r.status.IsRunning()
		snap.RunID = r.status.RunID()
	}

	return snap
}

// History returns the recent cycles, oldest first.
func (r *Recorder) History() []history.Entry {
	return r.history.Entries()
}

// JankPercent returns the rolling cycle jank percentage.
func (r *Recorder) JankPercent() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jankPct
}
