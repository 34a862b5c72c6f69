package domain

import "errors"

// Common domain errors
var (
	ErrInvalidPlugin    = errors.New("invalid plugin")
	ErrPluginExists     = errors.New("plugin already registered")
	ErrPluginNotFound   = errors.New("plugin not found")
	ErrConfigInvalid    = errors.New("invalid pipeline configuration")
	ErrGraphInvalid     = errors.New("invalid pipeline graph")
	ErrCycleDetected    = errors.New("dependency cycle detected")
	ErrSelfDependency   = errors.New("node depends on itself")
	ErrExecutionAborted = errors.New("execution aborted")
	ErrRunCancelled     = errors.New("run cancelled")
	ErrRunTimeout       = errors.New("run exceeded timeout")
	ErrRunNotFound      = errors.New("run not found")
)

// DomainError wraps errors with additional context.
//
//nolint:revive // Name is intentionally verbose to distinguish domain-layer errors
type DomainError struct {
	Err     error
	Code    string
	Message string
	Details map[string]any
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}
