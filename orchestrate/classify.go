// Failure classification for provider outcomes.

package orchestrate

import (
	"context"
	"errors"
	"strings"

	"github.com/halverson/binwise/gate"
)

// FailureClass drives retry and failover decisions.
type FailureClass int

const (
	// Transient failures (timeout, rate limit, backend hiccup) are
	// retried with backoff before failing over.
	Transient FailureClass = iota
	// Permanent failures (auth, malformed request, capability mismatch)
	// skip retries and fail over immediately.
	Permanent
)

func (c FailureClass) String() string {
	if c == Permanent {
		return "permanent"
	}
	return "transient"
}

// TransientError marks an error as retryable.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks an error as not worth retrying.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

var permanentMarkers = []string{
	"401", "403", "unauthorized", "forbidden", "api key", "invalid_api_key",
	"authentication", "invalid request", "400", "model_not_found",
	"unsupported", "context length", "maximum context",
}

var transientMarkers = []string{
	"429", "rate limit", "too many requests", "timeout", "timed out",
	"temporar", "unavailable", "overloaded", "connection refused",
	"connection reset", "502", "503", "504", "500",
}

// Classify maps an attempt error to a failure class. Typed wrappers win;
// otherwise SDK error strings are matched heuristically. Unknown errors
// classify as transient so a flaky provider still gets its retry budget.
func Classify(err error) FailureClass {
	var transient *TransientError
	if errors.As(err, &transient) {
		return Transient
	}
	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return Permanent
	}
	if errors.Is(err, gate.ErrGateTimeout) ||
		errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return Permanent
		}
	}
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return Transient
		}
	}
	return Transient
}
