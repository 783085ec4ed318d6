package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// Generation provider errors
	ErrAuth       = errors.New("credential rejected")
	ErrValidation = errors.New("request rejected as invalid")
	ErrTransport  = errors.New("transport failure")
	ErrProvider   = errors.New("provider error")
	ErrTimeout    = errors.New("wait exceeded timeout")
	ErrDownload   = errors.New("artifact download failed")

	// Run-level errors
	ErrPoolExhausted       = errors.New("no usable credential in pool")
	ErrMissingPrerequisite = errors.New("missing prerequisite checkpoint")
	ErrRunLocked           = errors.New("run is locked by another process")

	// Storage errors
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")
)

// ProviderFailure carries a provider's own error details next to one of the
// taxonomy sentinels above. errors.Is matches on Kind.
type ProviderFailure struct {
	Kind       error
	Provider   string
	HTTPStatus int
	Code       int
	Message    string
	Err        error
}

func (e *ProviderFailure) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Code != 0:
		return fmt.Sprintf("%s: %v (code %d): %s", e.Provider, e.Kind, e.Code, msg)
	case e.HTTPStatus != 0:
		return fmt.Sprintf("%s: %v (http %d): %s", e.Provider, e.Kind, e.HTTPStatus, msg)
	default:
		return fmt.Sprintf("%s: %v: %s", e.Provider, e.Kind, msg)
	}
}

func (e *ProviderFailure) Is(target error) bool { return target == e.Kind }

func (e *ProviderFailure) Unwrap() error { return e.Err }

// NewProviderFailure is a shorthand for the common fields.
func NewProviderFailure(kind error, provider string, httpStatus, code int, message string, cause error) *ProviderFailure {
	return &ProviderFailure{Kind: kind, Provider: provider, HTTPStatus: httpStatus, Code: code, Message: message, Err: cause}
}

// IsRetryable reports whether err may succeed when retried with backoff.
// Only transport-level failures qualify.
func IsRetryable(err error) bool { return errors.Is(err, ErrTransport) }

// ProviderMessage returns the provider's original message when err carries one.
func ProviderMessage(err error) string {
	var pf *ProviderFailure
	if errors.As(err, &pf) && pf.Message != "" {
		return pf.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// StageError names the stage an error belongs to.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }
