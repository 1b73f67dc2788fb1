package power

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/telemetrylab/internal/events"
	"codeberg.org/mutker/telemetrylab/internal/logger"
)

// DefaultPollInterval is how often the source is sampled.
const DefaultPollInterval = 5 * time.Second

// Monitor is the sole writer of a State. It polls a Source and publishes
// PowerStateChanged whenever the flag flips.
type Monitor struct {
	source   Source
	state    *State
	bus      events.Publisher
	interval time.Duration
	log      logger.Logger
	now      func() time.Time

	mu        sync.Mutex
	published bool
}

// NewMonitor creates a monitor writing into state.
func NewMonitor(source Source, state *State, bus events.Publisher, interval time.Duration, log logger.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if bus == nil {
		bus = events.Discard
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Monitor{
		source:   source,
		state:    state,
		bus:      bus,
		interval: interval,
		log:      log,
		now:      time.Now,
	}
}

// State returns the flag the monitor writes.
func (m *Monitor) State() Reader {
	return m.state
}

// Run polls until ctx is done. Call in a goroutine.
func (m *Monitor) Run(ctx context.Context) {
	m.poll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

func (m *Monitor) poll(ctx context.Context) {
	v, err := m.source.PowerSave(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.log.Warn().Err(err).Bool("power_save", m.state.IsPowerSave()).
			Msg("Failed to read power state, keeping previous value")
		return
	}
	m.Update(v)
}

// Update records a new flag value, for hosts that receive power
// notifications themselves. The first update is always published.
func (m *Monitor) Update(powerSave bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := m.state.Set(powerSave)
	if !changed && m.published {
		return
	}
	m.published = true

	m.log.Info().Bool("power_save", powerSave).Msg("Power state changed")
	m.bus.Publish(events.PowerStateChanged{
		Timestamp:   m.now(),
		IsPowerSave: powerSave,
	})
}
