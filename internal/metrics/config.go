package metrics

import "codeberg.org/mutker/telemetrylab/internal/errors"

const defaultNamespace = "telemetrylab"

type Config struct {
	Enabled   bool
	Namespace string
}

func DefaultConfig() Config {
	return Config{
		Namespace: defaultNamespace,
		Enabled:   false, // Disabled by default
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate the namespace if metrics is enabled
	if c.Enabled && c.Namespace == "" {
		return errFactory.New(ErrInvalidNamespace)
	}
	return nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
