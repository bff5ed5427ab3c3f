package engine

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a document or project cannot be resolved.
	ErrNotFound = errors.New("not found")

	// ErrCancelled is returned when the caller gave up on a request. It is
	// an outcome, not a failure, and must not be retried.
	ErrCancelled = errors.New("cancelled")

	// ErrEngineFailure is returned when the intelligence engine raised an
	// unexpected condition.
	ErrEngineFailure = errors.New("engine failure")

	// ErrLoadFailure is returned when a project could not be opened.
	ErrLoadFailure = errors.New("project load failure")

	// ErrTimeout is returned when a project did not finish initializing in time.
	ErrTimeout = errors.New("timed out")
)

// kindError tags a cause with one of the sentinels above while keeping the
// cause reachable through errors.Is/As.
type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return e.kind.Error()
	}
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

// Mark wraps cause so that errors.Is(err, kind) holds.
func Mark(kind, cause error) error {
	if cause == nil {
		return kind
	}
	if errors.Is(cause, kind) {
		return cause
	}
	return &kindError{kind: kind, cause: cause}
}

// NotFoundf builds an ErrNotFound with a formatted reason.
func NotFoundf(format string, args ...any) error {
	return Mark(ErrNotFound, errors.Errorf(format, args...))
}

// CheckCancelled returns ErrCancelled once ctx is done.
func CheckCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return Mark(ErrCancelled, err)
	}
	return nil
}

// Classify reduces err to one of the sentinels. Errors that carry none of
// them are engine failures; context errors count as cancellation.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return ErrCancelled
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, ErrLoadFailure):
		return ErrLoadFailure
	default:
		return ErrEngineFailure
	}
}
