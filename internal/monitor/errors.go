package monitor

import "codeberg.org/werrin/pithermd/internal/errors"

const (
	ErrInvalidConfig = errors.ErrorCode("monitor_invalid_config")
	ErrProbeFailed   = errors.ErrorCode("monitor_probe_failed")
)
