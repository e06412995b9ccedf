package ports

import (
	"context"
	"time"

	"github.com/eleven-am/tenure/internal/domain"
)

// LeaseStore defines the contract every lease backend implements. One
// election name maps to at most one stored record; mutual exclusion is only
// as strong as the backend's own atomic primitive (mutex, server-side script,
// guarded single statement). Every call is bounded by the caller's context.
type LeaseStore interface {
	// TryAcquire attempts to take the lease for electionName. It returns the
	// resulting record and true when the caller became (or already was) the
	// holder. It returns false with a nil error when another participant
	// currently holds a valid lease; the returned record then describes that
	// holder on a best-effort basis and may be nil.
	TryAcquire(ctx context.Context, electionName, participantID string, ttl time.Duration, metadata map[string]string) (*domain.LeaseRecord, bool, error)

	// TryRenew extends the lease expiry if participantID still holds a valid
	// record. It returns domain.ErrLeaseNotFound when no record exists and
	// domain.ErrNotLeaseHolder when someone else holds it; both mean the
	// caller has lost leadership. Metadata is merged over the stored
	// annotations.
	TryRenew(ctx context.Context, electionName, participantID string, ttl time.Duration, metadata map[string]string) (*domain.LeaseRecord, error)

	// Release removes the record only if participantID is the holder. It
	// returns false without error when the caller is not the holder or no
	// record exists; it must never evict another participant's lease.
	Release(ctx context.Context, electionName, participantID string) (bool, error)

	// GetCurrent fetches a read-only snapshot of the current record. The
	// record may already be expired; callers decide validity against their
	// own clock. The second return is false when no record exists.
	GetCurrent(ctx context.Context, electionName string) (*domain.LeaseRecord, bool, error)
}
