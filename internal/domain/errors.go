package domain

import (
	"errors"
	"fmt"
)

var (
	ErrLeaseNotFound  = errors.New("lease not found")
	ErrNotLeaseHolder = errors.New("lease held by another participant")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrAlreadyStarted = errors.New("election already started")
	ErrElectionClosed = errors.New("election closed")
)

// StoreError wraps a backend failure with enough context to tell which
// backend, operation and election produced it. The engine classifies every
// StoreError as transient.
type StoreError struct {
	Backend  string
	Op       string
	Election string
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("lease store[%s] %s %q: %v", e.Backend, e.Op, e.Election, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func NewStoreError(backend, op, election string, err error) *StoreError {
	return &StoreError{Backend: backend, Op: op, Election: election, Err: err}
}

func IsStoreError(err error) bool {
	var storeErr *StoreError
	return errors.As(err, &storeErr)
}

// IsContention reports whether the error is the lost-to-a-peer sentinel
// family rather than a backend fault.
func IsContention(err error) bool {
	return errors.Is(err, ErrLeaseNotFound) || errors.Is(err, ErrNotLeaseHolder)
}

func IsInvalidConfig(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

func IsClosed(err error) bool {
	return errors.Is(err, ErrElectionClosed)
}
