// Package scheduler runs the adaptive compute loop: a fixed-rate cycle of
// synthetic work whose rate and intensity follow the power-save flag.
package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/telemetrylab/internal/errors"
	"codeberg.org/mutker/telemetrylab/internal/events"
	"codeberg.org/mutker/telemetrylab/internal/logger"
	"codeberg.org/mutker/telemetrylab/internal/metrics"
	"codeberg.org/mutker/telemetrylab/internal/power"
	"codeberg.org/mutker/telemetrylab/internal/workload"
	"github.com/google/uuid"
)

// State is the lifecycle state of a Scheduler.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithWakeLock(w WakeLock) Option {
	return func(s *Scheduler) { s.wake = w }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

func WithMetrics(m metrics.Collector) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// Scheduler owns the compute loop. At most one loop runs at a time.
type Scheduler struct {
	cfg     Config
	power   power.Reader
	work    workload.Workload
	bus     events.Publisher
	clock   Clock
	wake    WakeLock
	log     logger.Logger
	metrics metrics.Collector

	// ctl serializes Start and Stop, including Stop's wait for the loop.
	ctl sync.Mutex

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	runID  string
	params Params

	baseline atomic.Int64
	cycles   atomic.Uint64
	failures atomic.Uint64
}

// New creates an idle scheduler.
func New(cfg Config, pr power.Reader, work workload.Workload, bus events.Publisher, opts ...Option) *Scheduler {
	cfg = cfg.Normalize()
	if bus == nil {
		bus = events.Discard
	}

	s := &Scheduler{
		cfg:     cfg,
		power:   pr,
		work:    work,
		bus:     bus,
		clock:   realClock{},
		wake:    noopWakeLock{},
		log:     logger.Nop(),
		metrics: metrics.Nop(),
		params:  Params{RateHz: cfg.NormalRateHz, Intensity: cfg.BaselineIntensity},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.baseline.Store(int64(cfg.BaselineIntensity))

	return s
}

// Config returns the normalized configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Start launches the loop. Calling Start while running is a no-op; a
// stopped scheduler may be started again. The loop ends when Stop is
// called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		s.log.Debug().Msg("Scheduler already running")
		return nil
	}
	prevDone := s.done
	s.mu.Unlock()

	// The previous loop must have released the wake lock before this run
	// acquires it.
	if prevDone != nil {
		<-prevDone
	}

	if err := s.wake.Acquire(); err != nil {
		return errors.New().Wrap(ErrWakeLock, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	runID := uuid.NewString()

	s.mu.Lock()
	s.state = StateRunning
	s.cancel = cancel
	s.done = done
	s.runID = runID
	s.mu.Unlock()

	s.log.Info().
		Str("run_id", runID).
		Int("normal_rate_hz", s.cfg.NormalRateHz).
		Int("power_save_rate_hz", s.cfg.PowerSaveRateHz).
		Int("baseline_intensity", int(s.baseline.Load())).
		Msg("Scheduler started")

	go s.run(loopCtx, ctx, done)

	return nil
}

// Stop ends the loop and waits for the in-flight cycle to finish. It is a
// no-op unless the scheduler is running.
func (s *Scheduler) Stop() {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

// Wait blocks until the current loop, if any, has exited.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (s *Scheduler) run(ctx, parent context.Context, done chan struct{}) {
	defer close(done)

	// The loop stays on one OS thread for its whole life.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	// Runs after the wake lock is released, so a state of Stopped implies
	// the lock is no longer held by this loop.
	defer func() {
		s.mu.Lock()
		if parent.Err() != nil {
			s.state = StateStopped
		}
		s.mu.Unlock()
		s.log.Info().
			Uint64("cycles", s.cycles.Load()).
			Uint64("failures", s.failures.Load()).
			Msg("Scheduler stopped")
	}()

	defer func() {
		if err := s.wake.Release(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to release wake lock")
		}
	}()

	intensity := int(s.baseline.Load())
	for ctx.Err() == nil {
		p := s.step(ctx, intensity)
		intensity = p.Intensity
	}
}

// step derives the parameters, runs one cycle and then sleeps for the rest
// of the period.
func (s *Scheduler) step(ctx context.Context, prevIntensity int) Params {
	p := Derive(s.power.IsPowerSave(), prevIntensity, int(s.baseline.Load()), s.cfg)
	s.setParams(p)

	elapsed := s.cycle(ctx, p)

	if err := s.clock.Sleep(ctx, SleepFor(p.RateHz, elapsed)); err != nil {
		s.log.Debug().Err(err).Msg("Cycle sleep interrupted")
	}

	return p
}

// cycle runs the workload once and publishes the result. A failing
// workload drops the cycle but leaves the loop running. A cycle that ends
// after cancellation is discarded.
func (s *Scheduler) cycle(ctx context.Context, p Params) (elapsed time.Duration) {
	start := s.clock.Now()

	err := s.runWorkload(p.Intensity)
	end := s.clock.Now()
	elapsed = end.Sub(start)

	if err != nil {
		s.failures.Add(1)
		s.metrics.RecordFailure()
		s.log.Warn().
			Err(err).
			Int("intensity", p.Intensity).
			Dur("elapsed", elapsed).
			Msg("Compute cycle failed")
		return elapsed
	}

	if ctx.Err() != nil {
		return elapsed
	}

	n := s.cycles.Add(1)
	ev := events.CycleCompleted{
		Cycle:     n,
		Timestamp: end,
		Latency:   elapsed,
		IsJank:    IsJank(elapsed, s.cfg.JankThreshold),
		Intensity: p.Intensity,
		RateHz:    p.RateHz,
	}
	s.bus.Publish(ev)

	s.log.Debug().
		Uint64("cycle", n).
		Dur("latency", elapsed).
		Bool("jank", ev.IsJank).
		Int("intensity", p.Intensity).
		Int("rate_hz", p.RateHz).
		Msg("Cycle completed")

	return elapsed
}

func (s *Scheduler) runWorkload(intensity int) (err error) {
	errFactory := errors.New()

	defer func() {
		if r := recover(); r != nil {
			err = errFactory.WithData(ErrWorkloadPanic, r)
		}
	}()

	if err := s.work.Run(intensity); err != nil {
		return errFactory.Wrap(ErrCycleFailed, err)
	}
	return nil
}

// SetIntensity sets the baseline intensity used outside power-save mode.
// The value is rounded and clamped to [1, MaxIntensity]; the clamped value
// is returned. It takes effect on the next cycle.
func (s *Scheduler) SetIntensity(v float64) int {
	n, ok := intensityFromFloat(v, s.cfg.MaxIntensity)
	if !ok {
		return int(s.baseline.Load())
	}
	s.baseline.Store(int64(n))
	s.log.Info().Float64("requested", v).Int("intensity", n).Msg("Baseline intensity updated")
	return n
}

// Intensity returns the baseline intensity.
func (s *Scheduler) Intensity() int {
	return int(s.baseline.Load())
}

func (s *Scheduler) setParams(p Params) {
	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
}

// Params returns the parameters of the current or last cycle.
func (s *Scheduler) Params() Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) IsRunning() bool {
	return s.State() == StateRunning
}

// RunID identifies the latest Start. It is empty before the first Start.
func (s *Scheduler) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// Cycles returns the number of completed cycles across all runs.
func (s *Scheduler) Cycles() uint64 {
	return s.cycles.Load()
}

// Failures returns the number of dropped cycles across all runs.
func (s *Scheduler) Failures() uint64 {
	return s.failures.Load()
}
