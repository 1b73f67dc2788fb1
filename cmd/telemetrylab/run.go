package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"codeberg.org/mutker/telemetrylab/internal/config"
	"codeberg.org/mutker/telemetrylab/internal/errors"
	"codeberg.org/mutker/telemetrylab/internal/events"
	"codeberg.org/mutker/telemetrylab/internal/frames"
	"codeberg.org/mutker/telemetrylab/internal/logger"
	"codeberg.org/mutker/telemetrylab/internal/metrics"
	"codeberg.org/mutker/telemetrylab/internal/pid"
	"codeberg.org/mutker/telemetrylab/internal/power"
	"codeberg.org/mutker/telemetrylab/internal/scheduler"
	"codeberg.org/mutker/telemetrylab/internal/server"
	"codeberg.org/mutker/telemetrylab/internal/telemetry"
	"codeberg.org/mutker/telemetrylab/internal/workload"
	"github.com/spf13/cobra"
)

const monitorInterval = time.Second

var monitorMode bool

// wakeLock is held by the scheduler loop while it runs. Nil means the host
// has no wake lock to take.
var wakeLock scheduler.WakeLock

// workers runs background goroutines bound to one context and joins them
// on shutdown.
type workers struct {
	wg     sync.WaitGroup
	cancel context.CancelFunc
	once   sync.Once
}

func newWorkers(ctx context.Context) (*workers, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	return &workers{cancel: cancel}, ctx
}

func (w *workers) spawn(fn func()) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		fn()
	}()
}

// shutdown cancels the context and waits for every worker. Safe to call
// more than once.
func (w *workers) shutdown() {
	w.once.Do(w.cancel)
	w.wg.Wait()
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the compute scheduler until interrupted.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go handleSignals(cancel)

		if err := run(ctx, cfg); err != nil {
			if e, ok := err.(errors.Error); ok {
				logger.ErrorWithCode(e).Msg("Exiting with error")
			}
			return err
		}

		logger.Info().Msg("Exiting...")
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&monitorMode, "monitor", false, "Print a live status line and cycle history")
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

// run wires every component and blocks until ctx is done.
func run(ctx context.Context, cfg *config.Config) error {
	errFactory := errors.New()

	group, ctx := newWorkers(ctx)
	defer group.shutdown()

	if err := pid.Write(cfg.PIDFile); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(cfg.PIDFile); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	collector, err := metrics.NewService(metrics.Config{
		Enabled:   cfg.Metrics.Enabled,
		Namespace: "telemetrylab",
	}, logger.With("metrics"))
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	defer collector.Close()

	bus := events.NewBus()
	defer bus.Close()

	source, err := power.NewSource(cfg.Power.Source, cfg.Power.ProfilePath, cfg.Power.PowerSave)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	state := &power.State{}
	monitor := power.NewMonitor(source, state, bus, cfg.Power.PollInterval, logger.With("power"))

	work, err := workload.NewConvolution(cfg.Scheduler.WorkloadSize)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	schedOpts := []scheduler.Option{
		scheduler.WithLogger(logger.With("scheduler")),
		scheduler.WithMetrics(collector),
	}
	if wakeLock != nil {
		schedOpts = append(schedOpts, scheduler.WithWakeLock(wakeLock))
	}
	sched := scheduler.New(cfg.SchedulerParams(), state, work, bus, schedOpts...)

	recorder, err := telemetry.NewRecorder(telemetry.Config{
		WindowDuration: cfg.Window.Duration,
		HistorySize:    cfg.Window.HistorySize,
	},
		telemetry.WithPublisher(bus),
		telemetry.WithMetrics(collector),
		telemetry.WithLogger(logger.With("telemetry")),
		telemetry.WithRunStatus(sched),
	)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	sub := bus.Subscribe(events.DefaultBuffer)

	spawn := group.spawn

	spawn(func() { recorder.Run(ctx, sub.C()) })
	spawn(func() { monitor.Run(ctx) })

	if cfg.Frames.Enabled {
		observer := frames.NewObserver(cfg.Window.Duration, bus)
		pacer := frames.NewPacer(observer, cfg.Frames.RateHz, cfg.Frames.JankFactor, logger.With("frames"))
		spawn(func() { pacer.Run(ctx) })
	}

	serveErr := make(chan error, 1)
	if cfg.Server.Enabled {
		deps := server.Deps{
			Scheduler: sched,
			Telemetry: recorder,
			Power:     monitor,
		}
		if cfg.Metrics.Enabled {
			deps.Metrics = collector.Handler()
		}
		srv := server.New(ctx, deps, logger.With("server"))
		spawn(func() { serveErr <- srv.Serve(ctx, cfg.Server.Listen) })
	}

	if monitorMode {
		spawn(func() { runMonitor(ctx, recorder, os.Stdout) })
	}

	if err := sched.Start(ctx); err != nil {
		group.shutdown()
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	var loopErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error().Err(err).Msg("HTTP server failed, shutting down")
			loopErr = errFactory.Wrap(errors.ErrMainLoop, err)
		}
	}

	sched.Stop()
	sched.Wait()
	group.shutdown()

	if loopErr != nil {
		return loopErr
	}

	if dropped := sub.Dropped(); dropped > 0 {
		logger.Warn().Uint64("dropped", dropped).Msg("Telemetry subscriber dropped events")
	}
	logger.Info().
		Uint64("cycles", sched.Cycles()).
		Uint64("failures", sched.Failures()).
		Msg("Scheduler summary")

	return nil
}

func runMonitor(ctx context.Context, rec *telemetry.Recorder, out io.Writer) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := renderStatus(out, rec.Snapshot(), monitorRows); err != nil {
				logger.Warn().Err(err).Msg("Failed to render status")
			}
		}
	}
}
