package metrics

import (
	"net/http"

	"codeberg.org/mutker/telemetrylab/internal/errors"
	"codeberg.org/mutker/telemetrylab/internal/events"
	"codeberg.org/mutker/telemetrylab/internal/logger"
)

// No-op implementation
type noopMetricsCollector struct{}

func NewService(cfg Config, log logger.Logger) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if log == nil {
		log = logger.Nop()
	}

	// If metrics is disabled, return a no-op collector
	if !cfg.Enabled {
		log.Debug().Msg("Metrics collection disabled, using no-op collector")
		return &noopMetricsCollector{}, nil
	}

	c, err := newPrometheusCollector(cfg)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create metrics collector")
		return nil, err
	}

	log.Debug().
		Str("namespace", cfg.Namespace).
		Bool("enabled", cfg.Enabled).
		Msg("Metrics service initialized successfully")

	return c, nil
}

// Nop returns a collector that records nothing.
func Nop() Collector {
	return &noopMetricsCollector{}
}

func (*noopMetricsCollector) RecordCycle(events.CycleCompleted)          {}
func (*noopMetricsCollector) RecordFailure()                             {}
func (*noopMetricsCollector) RecordPowerState(events.PowerStateChanged)  {}
func (*noopMetricsCollector) RecordJankPercent(events.JankPercentUpdate) {}

func (*noopMetricsCollector) Handler() http.Handler {
	return http.NotFoundHandler()
}

func (*noopMetricsCollector) Close() error {
	return nil
}
