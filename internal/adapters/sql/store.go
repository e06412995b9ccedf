package sql

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/eleven-am/tenure/internal/domain"
	json "github.com/goccy/go-json"
	"gorm.io/gorm"
)

const tableName = "election_leases"

// leaseRow is the persisted shape of one lease. election_name is the primary
// key, so the table holds at most one row per election.
type leaseRow struct {
	ElectionName  string    `gorm:"column:election_name;primaryKey;size:255"`
	ParticipantID string    `gorm:"column:participant_id;size:255;not null"`
	AcquiredAt    time.Time `gorm:"column:acquired_at;not null"`
	RenewedAt     time.Time `gorm:"column:renewed_at;not null"`
	ExpiresAt     time.Time `gorm:"column:expires_at;not null;index"`
	Generation    int64     `gorm:"column:generation;not null"`
	Metadata      string    `gorm:"column:metadata;type:text"`
}

func (leaseRow) TableName() string {
	return tableName
}

// Store is the relational lease backend. Every mutation is a single guarded
// statement (UPDATE ... WHERE holder/expiry conditions, or an INSERT whose
// duplicate-key failure signals contention), so atomicity comes from the
// database's row-level guarantees rather than client-side locking. Expiry
// guards compare against CURRENT_TIMESTAMP so lease validity is judged by the
// database clock, never by a participant's wall clock.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewStore(db *gorm.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "sql-lease-store"),
	}
}

// Migrate creates or updates the lease table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&leaseRow{}); err != nil {
		return domain.NewStoreError("sql", "migrate", "", err)
	}
	return nil
}

func (s *Store) TryAcquire(ctx context.Context, electionName, participantID string, ttl time.Duration, metadata map[string]string) (*domain.LeaseRecord, bool, error) {
	now := time.Now().UTC()
	encoded, err := encodeMetadata(metadata)
	if err != nil {
		return nil, false, domain.NewStoreError("sql", "try_acquire", electionName, err)
	}

	// Extend our own row first: covers both steady-state re-acquire and
	// reclaiming our own lapsed lease without bumping the generation.
	extend := s.db.WithContext(ctx).Exec(
		`UPDATE `+tableName+` SET renewed_at = ?, expires_at = ?, metadata = ? WHERE election_name = ? AND participant_id = ?`,
		now, now.Add(ttl), encoded, electionName, participantID,
	)
	if extend.Error != nil {
		return nil, false, domain.NewStoreError("sql", "try_acquire", electionName, extend.Error)
	}
	if extend.RowsAffected > 0 {
		return s.snapshot(ctx, electionName, participantID, "try_acquire")
	}

	// Take over a lease the database clock says has expired.
	takeover := s.db.WithContext(ctx).Exec(
		`UPDATE `+tableName+` SET participant_id = ?, acquired_at = ?, renewed_at = ?, expires_at = ?, generation = generation + 1, metadata = ? WHERE election_name = ? AND expires_at <= CURRENT_TIMESTAMP`,
		participantID, now, now, now.Add(ttl), encoded, electionName,
	)
	if takeover.Error != nil {
		return nil, false, domain.NewStoreError("sql", "try_acquire", electionName, takeover.Error)
	}
	if takeover.RowsAffected > 0 {
		return s.snapshot(ctx, electionName, participantID, "try_acquire")
	}

	// No row yet: insert one. A duplicate-key failure means another
	// participant inserted first, which is contention, not an error.
	row := leaseRow{
		ElectionName:  electionName,
		ParticipantID: participantID,
		AcquiredAt:    now,
		RenewedAt:     now,
		ExpiresAt:     now.Add(ttl),
		Generation:    1,
		Metadata:      encoded,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if !isDuplicateKey(err) {
			return nil, false, domain.NewStoreError("sql", "try_acquire", electionName, err)
		}
		record, _, lookupErr := s.GetCurrent(ctx, electionName)
		if lookupErr != nil {
			// Contention is proven by the duplicate key; the holder record
			// is best effort.
			s.logger.Warn("holder lookup failed after contended insert",
				"election", electionName, "error", lookupErr)
			return nil, false, nil
		}
		return record, false, nil
	}

	return rowToRecord(&row), true, nil
}

func (s *Store) TryRenew(ctx context.Context, electionName, participantID string, ttl time.Duration, metadata map[string]string) (*domain.LeaseRecord, error) {
	current, exists, err := s.GetCurrent(ctx, electionName)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrLeaseNotFound
	}

	now := time.Now().UTC()
	merged := domain.MergeMetadata(current.Metadata, metadata)
	encoded, err := encodeMetadata(merged)
	if err != nil {
		return nil, domain.NewStoreError("sql", "try_renew", electionName, err)
	}

	// The WHERE clause re-checks holder and validity atomically on the
	// database clock; the read above only supplied the metadata merge base,
	// which no one but the holder mutates.
	result := s.db.WithContext(ctx).Exec(
		`UPDATE `+tableName+` SET renewed_at = ?, expires_at = ?, metadata = ? WHERE election_name = ? AND participant_id = ? AND expires_at > CURRENT_TIMESTAMP`,
		now, now.Add(ttl), encoded, electionName, participantID,
	)
	if result.Error != nil {
		return nil, domain.NewStoreError("sql", "try_renew", electionName, result.Error)
	}
	if result.RowsAffected == 0 {
		if current.HeldBy(participantID) {
			return nil, domain.ErrLeaseNotFound
		}
		return nil, domain.ErrNotLeaseHolder
	}

	renewed := current.Clone()
	renewed.RenewedAt = now
	renewed.ExpiresAt = now.Add(ttl)
	renewed.Metadata = merged
	return renewed, nil
}

func (s *Store) Release(ctx context.Context, electionName, participantID string) (bool, error) {
	result := s.db.WithContext(ctx).Exec(
		`DELETE FROM `+tableName+` WHERE election_name = ? AND participant_id = ?`,
		electionName, participantID,
	)
	if result.Error != nil {
		return false, domain.NewStoreError("sql", "release", electionName, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *Store) GetCurrent(ctx context.Context, electionName string) (*domain.LeaseRecord, bool, error) {
	var row leaseRow
	err := s.db.WithContext(ctx).Where("election_name = ?", electionName).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, domain.NewStoreError("sql", "get_current", electionName, err)
	}
	return rowToRecord(&row), true, nil
}

// snapshot re-reads the row after a successful guarded update. If another
// participant overtook the row between the update and the read, the caller is
// reported as not having acquired.
func (s *Store) snapshot(ctx context.Context, electionName, participantID, op string) (*domain.LeaseRecord, bool, error) {
	record, exists, err := s.GetCurrent(ctx, electionName)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, domain.NewStoreError("sql", op, electionName, errors.New("lease row vanished after guarded update"))
	}
	return record, record.HeldBy(participantID), nil
}

func rowToRecord(row *leaseRow) *domain.LeaseRecord {
	record := &domain.LeaseRecord{
		ElectionName:  row.ElectionName,
		ParticipantID: row.ParticipantID,
		AcquiredAt:    row.AcquiredAt,
		RenewedAt:     row.RenewedAt,
		ExpiresAt:     row.ExpiresAt,
		Generation:    row.Generation,
	}
	if row.Metadata != "" {
		metadata := map[string]string{}
		if err := json.Unmarshal([]byte(row.Metadata), &metadata); err == nil {
			record.Metadata = metadata
		}
	}
	return record
}

func encodeMetadata(metadata map[string]string) (string, error) {
	if len(metadata) == 0 {
		return "", nil
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// isDuplicateKey matches the portable gorm sentinel plus the raw dialect
// messages gorm surfaces when error translation is disabled.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
