package badger

import (
	"context"
	"testing"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/eleven-am/tenure/internal/domain"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	opts := badgerdb.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	return NewStore(db, nil)
}

func TestBadgerAcquireAndInspect(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record, acquired, err := store.TryAcquire(ctx, "jobs", "node-a", time.Minute, map[string]string{"host": "a"})
	require.NoError(t, err)
	require.True(t, acquired)
	require.Equal(t, int64(1), record.Generation)

	current, exists, err := store.GetCurrent(ctx, "jobs")
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, "node-a", current.ParticipantID)
	require.Equal(t, "a", current.Metadata["host"])
}

func TestBadgerAcquireContention(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, acquired, err := store.TryAcquire(ctx, "jobs", "node-a", time.Minute, nil)
	require.NoError(t, err)
	require.True(t, acquired)

	record, acquired, err := store.TryAcquire(ctx, "jobs", "node-b", time.Minute, nil)
	require.NoError(t, err)
	require.False(t, acquired)
	require.Equal(t, "node-a", record.ParticipantID)
}

func TestBadgerExpiryHandoff(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, acquired, err := store.TryAcquire(ctx, "jobs", "node-a", time.Second, nil)
	require.NoError(t, err)
	require.True(t, acquired)

	time.Sleep(1100 * time.Millisecond)

	record, acquired, err := store.TryAcquire(ctx, "jobs", "node-b", time.Minute, nil)
	require.NoError(t, err)
	require.True(t, acquired)
	require.Equal(t, "node-b", record.ParticipantID)
	require.Equal(t, int64(2), record.Generation)
}

func TestBadgerRenewAuthenticity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.TryAcquire(ctx, "jobs", "node-a", time.Minute, nil)
	require.NoError(t, err)

	_, err = store.TryRenew(ctx, "jobs", "node-b", time.Minute, nil)
	require.ErrorIs(t, err, domain.ErrNotLeaseHolder)

	_, err = store.TryRenew(ctx, "missing", "node-a", time.Minute, nil)
	require.ErrorIs(t, err, domain.ErrLeaseNotFound)

	renewed, err := store.TryRenew(ctx, "jobs", "node-a", time.Minute, map[string]string{"version": "2"})
	require.NoError(t, err)
	require.Equal(t, "2", renewed.Metadata["version"])
	require.Equal(t, int64(1), renewed.Generation)
}

func TestBadgerReleaseAuthenticity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.TryAcquire(ctx, "jobs", "node-a", time.Minute, nil)
	require.NoError(t, err)

	released, err := store.Release(ctx, "jobs", "node-b")
	require.NoError(t, err)
	require.False(t, released)

	released, err = store.Release(ctx, "jobs", "node-a")
	require.NoError(t, err)
	require.True(t, released)

	_, exists, err := store.GetCurrent(ctx, "jobs")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestBadgerGenerationSurvivesRelease(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.TryAcquire(ctx, "jobs", "node-a", time.Minute, nil)
	require.NoError(t, err)

	_, err = store.Release(ctx, "jobs", "node-a")
	require.NoError(t, err)

	record, acquired, err := store.TryAcquire(ctx, "jobs", "node-b", time.Minute, nil)
	require.NoError(t, err)
	require.True(t, acquired)
	require.Equal(t, int64(2), record.Generation)
}
