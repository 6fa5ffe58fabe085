package orchestrator

import "codeberg.org/werrin/pithermd/internal/errors"

const (
	// Lifecycle Errors
	ErrAlreadyStarted = errors.ErrorCode("orchestrator_already_started")
	ErrNotStarted     = errors.ErrorCode("orchestrator_not_started")
	ErrStartupFailed  = errors.ErrorCode("orchestrator_startup_failed")

	// Component Errors
	ErrComponentInit = errors.ErrorCode("orchestrator_component_init_failed")
)
