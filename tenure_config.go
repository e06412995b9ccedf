package tenure

import "github.com/eleven-am/tenure/internal/domain"

// Sentinel errors surfaced by elections and stores.
var (
	ErrLeaseNotFound  = domain.ErrLeaseNotFound
	ErrNotLeaseHolder = domain.ErrNotLeaseHolder
	ErrInvalidConfig  = domain.ErrInvalidConfig
	ErrAlreadyStarted = domain.ErrAlreadyStarted
	ErrElectionClosed = domain.ErrElectionClosed
)

// IsContention reports whether an error means the lease is held by another
// participant rather than that the backend failed.
func IsContention(err error) bool {
	return domain.IsContention(err)
}

// IsStoreError reports whether an error originated from a lease backend.
func IsStoreError(err error) bool {
	return domain.IsStoreError(err)
}
