package poster

import (
	"context"
	"errors"
)

// Submit errors.
var (
	ErrAlreadyRunning = errors.New("job already running")
	ErrInvalidSpec    = errors.New("invalid job spec")
	ErrClosed         = errors.New("registry closed")
)

// Publish and retract errors. RemotePoster implementations wrap these so
// callers can match with errors.Is.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrRateLimited     = errors.New("rate limited")
	ErrRejected        = errors.New("rejected")
	ErrTransport       = errors.New("transport error")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
)

// ResultLabel classifies a call outcome for metrics and logs.
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "other"
	}
}
