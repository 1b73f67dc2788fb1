package scheduler

import "codeberg.org/mutker/telemetrylab/internal/errors"

const (
	ErrCycleFailed   = errors.ErrCycleFailed
	ErrWorkloadPanic = errors.ErrorCode("scheduler_workload_panic")
	ErrWakeLock      = errors.ErrorCode("scheduler_wake_lock_failed")
)
