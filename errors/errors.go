package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrInvalidIdentity  = fmt.Errorf("invalid identity")
	ErrValidation       = fmt.Errorf("validation error")
	ErrStoreUnavailable = fmt.Errorf("store unavailable")
	ErrAlreadyBound     = fmt.Errorf("connection already bound to another user")
	ErrUnauthorized     = fmt.Errorf("unauthorized")
	ErrRelayBusy        = fmt.Errorf("relay is busy")
	ErrNotRegistered    = fmt.Errorf("connection is not registered")
	ErrUnknownCommand   = fmt.Errorf("unknown command")
	ErrThreadNotFound   = fmt.Errorf("thread not found")
	ErrSearchDisabled   = fmt.Errorf("search is disabled")
)

// Is and As are re-exported so callers importing this package under the
// "errors" name keep access to the standard helpers.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

// Describe maps an error to the public {error, details} pair sent to clients.
// The first value is a stable, human-readable summary, the second carries the
// underlying cause.
func Describe(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	switch {
	case Is(err, ErrValidation):
		return "Invalid message", err.Error()
	case Is(err, ErrStoreUnavailable):
		return "Failed to send message", err.Error()
	case Is(err, ErrRelayBusy):
		return "Relay is busy, retry later", err.Error()
	case Is(err, ErrUnauthorized):
		return "Unauthorized", err.Error()
	case Is(err, ErrNotRegistered):
		return "Connection is not registered", err.Error()
	case Is(err, ErrAlreadyBound):
		return "Connection already registered", err.Error()
	case Is(err, ErrInvalidIdentity):
		return "Invalid identity", err.Error()
	case Is(err, ErrSearchDisabled):
		return "Search is disabled", err.Error()
	default:
		return "Unknown error", err.Error()
	}
}
