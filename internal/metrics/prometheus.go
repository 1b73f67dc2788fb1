package metrics

import (
	"net/http"

	"codeberg.org/mutker/telemetrylab/internal/errors"
	"codeberg.org/mutker/telemetrylab/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// cycleLatencyBuckets straddle the 16ms frame budget.
var cycleLatencyBuckets = []float64{0.001, 0.0025, 0.005, 0.008, 0.012, 0.016, 0.024, 0.033, 0.05, 0.1, 0.25}

type prometheusCollector struct {
	registry *prometheus.Registry

	cycleLatency prometheus.Histogram
	cycles       prometheus.Counter
	jankCycles   prometheus.Counter
	failures     prometheus.Counter
	intensity    prometheus.Gauge
	rateHz       prometheus.Gauge
	powerSave    prometheus.Gauge
	jankPercent  *prometheus.GaugeVec
}

func newPrometheusCollector(cfg Config) (_ *prometheusCollector, err error) {
	reg := prometheus.NewRegistry()

	// promauto panics on duplicate registration; surface that as an error.
	defer func() {
		if r := recover(); r != nil {
			err = errors.New().WithData(ErrRegisterFailed, r)
		}
	}()

	factory := promauto.With(reg)
	ns := cfg.Namespace

	c := &prometheusCollector{
		registry: reg,
		cycleLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "cycle_latency_seconds",
			Help:      "Measured duration of each compute cycle.",
			Buckets:   cycleLatencyBuckets,
		}),
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cycles_total",
			Help:      "Completed compute cycles.",
		}),
		jankCycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "jank_cycles_total",
			Help:      "Compute cycles that exceeded the frame budget.",
		}),
		failures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cycle_failures_total",
			Help:      "Compute cycles dropped because the workload failed.",
		}),
		intensity: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "cycle_intensity",
			Help:      "Workload intensity of the latest cycle.",
		}),
		rateHz: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "cycle_rate_hz",
			Help:      "Target cycle rate of the latest cycle.",
		}),
		powerSave: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "power_save",
			Help:      "Power-save mode (1=active, 0=inactive).",
		}),
		jankPercent: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "jank_percent",
			Help:      "Jank percentage over the trailing window, by signal source.",
		}, []string{"source"}),
	}

	reg.MustRegister(collectors.NewGoCollector())

	return c, nil
}

func (c *prometheusCollector) RecordCycle(ev events.CycleCompleted) {
	c.cycleLatency.Observe(ev.Latency.Seconds())
	c.cycles.Inc()
	if ev.IsJank {
		c.jankCycles.Inc()
	}
	c.intensity.Set(float64(ev.Intensity))
	c.rateHz.Set(float64(ev.RateHz))
}

func (c *prometheusCollector) RecordFailure() {
	c.failures.Inc()
}

func (c *prometheusCollector) RecordPowerState(ev events.PowerStateChanged) {
	c.powerSave.Set(boolToFloat(ev.IsPowerSave))
}

func (c *prometheusCollector) RecordJankPercent(ev events.JankPercentUpdate) {
	c.jankPercent.WithLabelValues(ev.Source).Set(ev.Percent)
}

func (c *prometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *prometheusCollector) Close() error {
	c.jankPercent.Reset()
	return nil
}
