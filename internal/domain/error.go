package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrConflict           = errors.New("conflicting operation in progress")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Job execution errors
	ErrTransient     = errors.New("transient external-service failure")
	ErrTerminalState = errors.New("job already in a terminal state")
	ErrJobTimedOut   = errors.New("job timed out and was reclaimed")

	// Elimination errors
	ErrSessionRunning = errors.New("elimination session has a running stage")
	ErrUnknownJobType = errors.New("unknown analysis job type")
)

// Transient wraps err so the worker retries it before failing the job.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrTransient, err)
}

// IsTransient reports whether err is eligible for bounded in-worker retry.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }
