// Package frames measures rendered-frame smoothness. It keeps its own
// jank window, separate from the compute cycles.
package frames

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/telemetrylab/internal/events"
	"codeberg.org/mutker/telemetrylab/internal/logger"
	"codeberg.org/mutker/telemetrylab/internal/window"
)

const (
	DefaultRateHz     = 60
	DefaultJankFactor = 2.0
)

// Observer owns the frame jank window and reports every update.
type Observer struct {
	bus events.Publisher

	mu     sync.Mutex
	window *window.Aggregator
	frames uint64
}

func NewObserver(duration time.Duration, bus events.Publisher) *Observer {
	if bus == nil {
		bus = events.Discard
	}
	return &Observer{
		bus:    bus,
		window: window.New(duration),
	}
}

// RecordFrame records one rendered frame and publishes the new percentage.
func (o *Observer) RecordFrame(ts time.Time, duration time.Duration, isJank bool) {
	o.mu.Lock()
	o.window.Record(ts, isJank)
	o.frames++
	update := events.JankPercentUpdate{
		Timestamp: ts,
		Source:    events.SourceFrames,
		Percent:   o.window.Percentage(),
		Samples:   o.window.Len(),
	}
	o.mu.Unlock()

	o.bus.Publish(update)
}

func (o *Observer) Percentage() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.window.Percentage()
}

// Frames returns the number of frames recorded so far.
func (o *Observer) Frames() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.frames
}

// Pacer stands in for a display's frame callback. It ticks at a fixed rate
// and treats each tick interval as a frame duration.
type Pacer struct {
	observer *Observer
	period   time.Duration
	factor   float64
	log      logger.Logger
}

func NewPacer(observer *Observer, rateHz int, jankFactor float64, log logger.Logger) *Pacer {
	if rateHz <= 0 {
		rateHz = DefaultRateHz
	}
	if jankFactor <= 1 {
		jankFactor = DefaultJankFactor
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pacer{
		observer: observer,
		period:   time.Second / time.Duration(rateHz),
		factor:   jankFactor,
		log:      log,
	}
}

// Period returns the target frame length.
func (p *Pacer) Period() time.Duration {
	return p.period
}

// IsJank reports whether a frame took longer than jankFactor periods.
func (p *Pacer) IsJank(d time.Duration) bool {
	return float64(d) > p.factor*float64(p.period)
}

// Run ticks until ctx is done. Call in a goroutine.
func (p *Pacer) Run(ctx context.Context) {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	p.log.Debug().Dur("period", p.period).Float64("jank_factor", p.factor).Msg("Frame pacer started")

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			p.log.Debug().Uint64("frames", p.observer.Frames()).Msg("Frame pacer stopped")
			return
		case <-ticker.C:
			ts := time.Now()
			d := ts.Sub(last)
			last = ts
			p.observer.RecordFrame(ts, d, p.IsJank(d))
		}
	}
}
