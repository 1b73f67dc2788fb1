package metrics

import "codeberg.org/mutker/telemetrylab/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig    = errors.ErrInvalidConfig
	ErrInvalidNamespace = errors.ErrorCode("metrics_invalid_namespace")

	// Registry Errors
	ErrRegisterFailed = errors.ErrInitMetrics

	// Service Errors
	ErrServiceShutdown = errors.ErrCloseMetrics
)
