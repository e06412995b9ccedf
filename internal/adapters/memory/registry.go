package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/tenure/internal/domain"
)

// Store is the in-process lease backend: an explicit registry keyed by
// election name, with one mutex per election so unrelated elections never
// contend on a shared lock. Share a single Store instance across handles to
// coordinate participants inside one process.
type Store struct {
	logger *slog.Logger

	mu        sync.Mutex
	elections map[string]*election
}

type election struct {
	mu     sync.Mutex
	record *domain.LeaseRecord
}

func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger:    logger.With("component", "memory-lease-store"),
		elections: make(map[string]*election),
	}
}

func (s *Store) election(name string) *election {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.elections[name]
	if !ok {
		e = &election{}
		s.elections[name] = e
	}
	return e
}

// TryAcquire takes the lease when no valid record exists or the caller
// already holds it. Generation increments only when ownership changes.
func (s *Store) TryAcquire(ctx context.Context, electionName, participantID string, ttl time.Duration, metadata map[string]string) (*domain.LeaseRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, domain.NewStoreError("memory", "try_acquire", electionName, err)
	}

	e := s.election(electionName)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()
	current := e.record

	if current != nil && !current.HeldBy(participantID) && current.Valid(now) {
		return current.Clone(), false, nil
	}

	record := &domain.LeaseRecord{
		ElectionName:  electionName,
		ParticipantID: participantID,
		AcquiredAt:    now,
		RenewedAt:     now,
		ExpiresAt:     now.Add(ttl),
		Generation:    1,
		Metadata:      domain.CloneMetadata(metadata),
	}

	if current != nil {
		if current.HeldBy(participantID) && current.Valid(now) {
			record.AcquiredAt = current.AcquiredAt
			record.Generation = current.Generation
		} else {
			record.Generation = current.Generation + 1
		}
	}

	e.record = record
	return record.Clone(), true, nil
}

// TryRenew extends the lease only while the caller holds a still-valid
// record. An expired record renews as lost, not as held, because another
// participant may already have observed the expiry.
func (s *Store) TryRenew(ctx context.Context, electionName, participantID string, ttl time.Duration, metadata map[string]string) (*domain.LeaseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("memory", "try_renew", electionName, err)
	}

	e := s.election(electionName)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()
	current := e.record

	if current == nil {
		return nil, domain.ErrLeaseNotFound
	}
	if !current.HeldBy(participantID) {
		return nil, domain.ErrNotLeaseHolder
	}
	if !current.Valid(now) {
		return nil, domain.ErrLeaseNotFound
	}

	renewed := current.Clone()
	renewed.RenewedAt = now
	renewed.ExpiresAt = now.Add(ttl)
	renewed.Metadata = domain.MergeMetadata(current.Metadata, metadata)

	e.record = renewed
	return renewed.Clone(), nil
}

// Release removes the record only when the caller is the holder.
func (s *Store) Release(ctx context.Context, electionName, participantID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, domain.NewStoreError("memory", "release", electionName, err)
	}

	e := s.election(electionName)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.record == nil || !e.record.HeldBy(participantID) {
		return false, nil
	}

	e.record = nil
	return true, nil
}

// GetCurrent returns the stored record even when expired; callers judge
// validity against their own clock.
func (s *Store) GetCurrent(ctx context.Context, electionName string) (*domain.LeaseRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, domain.NewStoreError("memory", "get_current", electionName, err)
	}

	e := s.election(electionName)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.record == nil {
		return nil, false, nil
	}
	return e.record.Clone(), true, nil
}
