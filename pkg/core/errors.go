package core

import (
	"errors"
	"fmt"
	"time"
)

// Validation errors
var (
	ErrInvalidJobKind     = errors.New("jobs: invalid job kind (must be alphanumeric, start with letter)")
	ErrJobKindTooLong     = errors.New("jobs: job kind too long")
	ErrInvalidQueueName   = errors.New("jobs: invalid queue name")
	ErrQueueNameTooLong   = errors.New("jobs: queue name too long")
	ErrUnknownQueue       = errors.New("jobs: unknown queue")
	ErrJobPayloadTooLarge = errors.New("jobs: job payload exceeds size limit")
	ErrJobNotOwned        = errors.New("jobs: job not owned by this worker")
	ErrDuplicateJob       = errors.New("jobs: duplicate job with same unique key")
	ErrUniqueKeyTooLong   = errors.New("jobs: unique key exceeds maximum length")
	ErrCannotRetryStatus  = errors.New("jobs: job status cannot be retried")
)

// Pipeline error taxonomy. Wrap with %w so callers can test with errors.Is.
var (
	// ErrNotFound marks a referenced article or job that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExternalService marks a failed AI, image or social call.
	ErrExternalService = errors.New("external service failure")
	// ErrPersistence marks a failed store write.
	ErrPersistence = errors.New("persistence failure")
	// ErrConfigurationMissing marks a collaborator that is not configured.
	ErrConfigurationMissing = errors.New("configuration missing")
)

// NotFound builds a terminal not-found error for the given entity.
func NotFound(entity, id string) error {
	return NoRetry(fmt.Errorf("%s %s: %w", entity, id, ErrNotFound))
}

// ExternalFailure wraps err from the named service as a retriable failure.
func ExternalFailure(service string, err error) error {
	return fmt.Errorf("%s: %w: %w", service, ErrExternalService, err)
}

// PersistenceFailure wraps a store error as a retriable failure.
func PersistenceFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// NoRetryError indicates an error that should not be retried.
type NoRetryError struct {
	Err error
}

func (e *NoRetryError) Error() string {
	return fmt.Sprintf("no retry: %v", e.Err)
}

func (e *NoRetryError) Unwrap() error {
	return e.Err
}

// NoRetry wraps an error to indicate it should not be retried.
func NoRetry(err error) error {
	return &NoRetryError{Err: err}
}

// RetryAfterError indicates an error that should be retried after a delay.
type RetryAfterError struct {
	Err   error
	Delay time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("retry after %v: %v", e.Delay, e.Err)
}

func (e *RetryAfterError) Unwrap() error {
	return e.Err
}

// RetryAfter wraps an error to indicate it should be retried after a delay.
func RetryAfter(d time.Duration, err error) error {
	return &RetryAfterError{Err: err, Delay: d}
}
