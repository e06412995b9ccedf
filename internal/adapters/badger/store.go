package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/eleven-am/tenure/internal/domain"
	json "github.com/goccy/go-json"
)

const keyPrefix = "lease:"

// Store is the embedded persistent lease backend. Each mutation runs inside a
// single serializable badger transaction, so the holder check and the write
// commit together or not at all; a transaction that loses a commit race
// surfaces as contention, never as a stale overwrite. Lease entries carry the
// lease duration as their badger TTL; the generation counter lives in a
// sidecar key without TTL so it survives expiry.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

func NewStore(db *badger.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "badger-lease-store"),
	}
}

func leaseKey(electionName string) []byte {
	return []byte(keyPrefix + electionName)
}

func generationKey(electionName string) []byte {
	return []byte(keyPrefix + electionName + ":gen")
}

func (s *Store) TryAcquire(ctx context.Context, electionName, participantID string, ttl time.Duration, metadata map[string]string) (*domain.LeaseRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, domain.NewStoreError("badger", "try_acquire", electionName, err)
	}

	var (
		acquired bool
		result   *domain.LeaseRecord
	)

	err := s.db.Update(func(txn *badger.Txn) error {
		now := time.Now().UTC()
		current, err := readRecord(txn, leaseKey(electionName))
		if err != nil {
			return err
		}

		if current != nil && !current.HeldBy(participantID) && current.Valid(now) {
			acquired = false
			result = current
			return nil
		}

		record := &domain.LeaseRecord{
			ElectionName:  electionName,
			ParticipantID: participantID,
			AcquiredAt:    now,
			RenewedAt:     now,
			ExpiresAt:     now.Add(ttl),
			Metadata:      domain.CloneMetadata(metadata),
		}

		if current != nil && current.HeldBy(participantID) && current.Valid(now) {
			record.AcquiredAt = current.AcquiredAt
			record.Generation = current.Generation
		} else {
			generation, err := nextGeneration(txn, electionName)
			if err != nil {
				return err
			}
			record.Generation = generation
		}

		if err := writeRecord(txn, electionName, record, ttl); err != nil {
			return err
		}

		acquired = true
		result = record
		return nil
	})
	if err != nil {
		if errors.Is(err, badger.ErrConflict) {
			// Lost a commit race against another participant.
			return nil, false, nil
		}
		return nil, false, domain.NewStoreError("badger", "try_acquire", electionName, err)
	}

	return result, acquired, nil
}

func (s *Store) TryRenew(ctx context.Context, electionName, participantID string, ttl time.Duration, metadata map[string]string) (*domain.LeaseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("badger", "try_renew", electionName, err)
	}

	var result *domain.LeaseRecord

	err := s.db.Update(func(txn *badger.Txn) error {
		now := time.Now().UTC()
		current, err := readRecord(txn, leaseKey(electionName))
		if err != nil {
			return err
		}

		if current == nil {
			return domain.ErrLeaseNotFound
		}
		if !current.HeldBy(participantID) {
			return domain.ErrNotLeaseHolder
		}
		if !current.Valid(now) {
			return domain.ErrLeaseNotFound
		}

		renewed := current.Clone()
		renewed.RenewedAt = now
		renewed.ExpiresAt = now.Add(ttl)
		renewed.Metadata = domain.MergeMetadata(current.Metadata, metadata)

		if err := writeRecord(txn, electionName, renewed, ttl); err != nil {
			return err
		}

		result = renewed
		return nil
	})
	if err != nil {
		if domain.IsContention(err) {
			return nil, err
		}
		if errors.Is(err, badger.ErrConflict) {
			return nil, domain.ErrNotLeaseHolder
		}
		return nil, domain.NewStoreError("badger", "try_renew", electionName, err)
	}

	return result, nil
}

func (s *Store) Release(ctx context.Context, electionName, participantID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, domain.NewStoreError("badger", "release", electionName, err)
	}

	released := false

	err := s.db.Update(func(txn *badger.Txn) error {
		current, err := readRecord(txn, leaseKey(electionName))
		if err != nil {
			return err
		}
		if current == nil || !current.HeldBy(participantID) {
			return nil
		}
		if err := txn.Delete(leaseKey(electionName)); err != nil {
			return err
		}
		released = true
		return nil
	})
	if err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return false, nil
		}
		return false, domain.NewStoreError("badger", "release", electionName, err)
	}

	return released, nil
}

func (s *Store) GetCurrent(ctx context.Context, electionName string) (*domain.LeaseRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, domain.NewStoreError("badger", "get_current", electionName, err)
	}

	var record *domain.LeaseRecord

	err := s.db.View(func(txn *badger.Txn) error {
		current, err := readRecord(txn, leaseKey(electionName))
		if err != nil {
			return err
		}
		record = current
		return nil
	})
	if err != nil {
		return nil, false, domain.NewStoreError("badger", "get_current", electionName, err)
	}

	return record, record != nil, nil
}

func readRecord(txn *badger.Txn, key []byte) (*domain.LeaseRecord, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var record domain.LeaseRecord
	err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func writeRecord(txn *badger.Txn, electionName string, record *domain.LeaseRecord, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	entry := badger.NewEntry(leaseKey(electionName), payload).WithTTL(ttl)
	return txn.SetEntry(entry)
}

func nextGeneration(txn *badger.Txn, electionName string) (int64, error) {
	key := generationKey(electionName)
	var generation int64

	item, err := txn.Get(key)
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		generation = 1
	case err != nil:
		return 0, err
	default:
		err = item.Value(func(value []byte) error {
			if len(value) == 8 {
				generation = int64(binary.BigEndian.Uint64(value)) + 1
			} else {
				generation = 1
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(generation))
	if err := txn.Set(key, buf); err != nil {
		return 0, err
	}
	return generation, nil
}
