package power

import "codeberg.org/mutker/telemetrylab/internal/errors"

const (
	ErrInvalidSource = errors.ErrInvalidPowerSource
	ErrReadProfile   = errors.ErrorCode("power_read_profile_failed")
)
