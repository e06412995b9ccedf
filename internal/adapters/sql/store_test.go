package sql

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/eleven-am/tenure/internal/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestMetadataEncoding(t *testing.T) {
	encoded, err := encodeMetadata(map[string]string{"host": "a"})
	require.NoError(t, err)
	require.NotEmpty(t, encoded)

	empty, err := encodeMetadata(nil)
	require.NoError(t, err)
	require.Empty(t, empty)

	record := rowToRecord(&leaseRow{
		ElectionName:  "jobs",
		ParticipantID: "node-a",
		Generation:    3,
		Metadata:      encoded,
	})
	require.Equal(t, "a", record.Metadata["host"])
	require.Equal(t, int64(3), record.Generation)

	bare := rowToRecord(&leaseRow{ElectionName: "jobs"})
	require.Nil(t, bare.Metadata)
}

func TestIsDuplicateKey(t *testing.T) {
	require.True(t, isDuplicateKey(gorm.ErrDuplicatedKey))
	require.True(t, isDuplicateKey(errors.New("Error 1062: Duplicate entry 'jobs' for key 'PRIMARY'")))
	require.True(t, isDuplicateKey(errors.New(`pq: duplicate key value violates unique constraint "election_leases_pkey"`)))
	require.True(t, isDuplicateKey(errors.New("UNIQUE constraint failed: election_leases.election_name")))
	require.False(t, isDuplicateKey(errors.New("connection refused")))
}

// Integration tests run against a real database when TENURE_MYSQL_DSN is set,
// e.g. TENURE_MYSQL_DSN='user:pass@tcp(localhost:3306)/tenure?parseTime=true'
func newIntegrationStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("TENURE_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TENURE_MYSQL_DSN not set")
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	store := NewStore(db, nil)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func integrationElection(t *testing.T) string {
	return fmt.Sprintf("%s-%d", t.Name(), time.Now().UnixNano())
}

func TestSQLAcquireRenewRelease(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()
	election := integrationElection(t)

	record, acquired, err := store.TryAcquire(ctx, election, "node-a", time.Minute, map[string]string{"host": "a"})
	require.NoError(t, err)
	require.True(t, acquired)
	require.Equal(t, int64(1), record.Generation)

	held, acquired, err := store.TryAcquire(ctx, election, "node-b", time.Minute, nil)
	require.NoError(t, err)
	require.False(t, acquired)
	require.Equal(t, "node-a", held.ParticipantID)

	_, err = store.TryRenew(ctx, election, "node-b", time.Minute, nil)
	require.ErrorIs(t, err, domain.ErrNotLeaseHolder)

	renewed, err := store.TryRenew(ctx, election, "node-a", time.Minute, map[string]string{"version": "2"})
	require.NoError(t, err)
	require.Equal(t, "2", renewed.Metadata["version"])
	require.Equal(t, "a", renewed.Metadata["host"])

	released, err := store.Release(ctx, election, "node-b")
	require.NoError(t, err)
	require.False(t, released)

	released, err = store.Release(ctx, election, "node-a")
	require.NoError(t, err)
	require.True(t, released)
}

func TestSQLExpiryTakeoverIncrementsGeneration(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()
	election := integrationElection(t)

	_, acquired, err := store.TryAcquire(ctx, election, "node-a", 100*time.Millisecond, nil)
	require.NoError(t, err)
	require.True(t, acquired)

	time.Sleep(200 * time.Millisecond)

	_, err = store.TryRenew(ctx, election, "node-a", time.Minute, nil)
	require.ErrorIs(t, err, domain.ErrLeaseNotFound)

	record, acquired, err := store.TryAcquire(ctx, election, "node-b", time.Minute, nil)
	require.NoError(t, err)
	require.True(t, acquired)
	require.Equal(t, "node-b", record.ParticipantID)
	require.Equal(t, int64(2), record.Generation)

	current, exists, err := store.GetCurrent(ctx, election)
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, "node-b", current.ParticipantID)
	require.True(t, current.Valid(time.Now().UTC()))
}

func TestSQLSameHolderExtends(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()
	election := integrationElection(t)

	first, acquired, err := store.TryAcquire(ctx, election, "node-a", time.Minute, nil)
	require.NoError(t, err)
	require.True(t, acquired)

	second, acquired, err := store.TryAcquire(ctx, election, "node-a", time.Minute, nil)
	require.NoError(t, err)
	require.True(t, acquired)
	require.Equal(t, first.Generation, second.Generation)
	require.False(t, second.ExpiresAt.Before(first.ExpiresAt))
}
