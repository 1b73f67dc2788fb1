package telemetry

import (
	"time"

	"codeberg.org/mutker/telemetrylab/internal/errors"
	"codeberg.org/mutker/telemetrylab/internal/history"
	"codeberg.org/mutker/telemetrylab/internal/window"
)

type Config struct {
	WindowDuration time.Duration
	HistorySize    int
}

func DefaultConfig() Config {
	return Config{
		WindowDuration: window.DefaultDuration,
		HistorySize:    history.DefaultCapacity,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.WindowDuration < 0 {
		return errFactory.WithData(ErrInvalidWindow, c.WindowDuration.String())
	}
	if c.HistorySize < 0 {
		return errFactory.WithData(ErrInvalidHistorySize, c.HistorySize)
	}
	return nil
}
