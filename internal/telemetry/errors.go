package telemetry

import "codeberg.org/mutker/telemetrylab/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig      = errors.ErrorCode("telemetry_invalid_config")
	ErrInvalidWindow      = errors.ErrorCode("telemetry_invalid_window")
	ErrInvalidHistorySize = errors.ErrorCode("telemetry_invalid_history_size")
)
