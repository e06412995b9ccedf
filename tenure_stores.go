package tenure

import (
	"log/slog"

	badgerdb "github.com/dgraph-io/badger/v3"
	badgerstore "github.com/eleven-am/tenure/internal/adapters/badger"
	"github.com/eleven-am/tenure/internal/adapters/memory"
	redisstore "github.com/eleven-am/tenure/internal/adapters/redis"
	sqlstore "github.com/eleven-am/tenure/internal/adapters/sql"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// NewMemoryStore returns the in-process backend: a registry keyed by election
// name with one lock per election. Share a single instance across handles to
// coordinate participants inside one process.
func NewMemoryStore(logger *slog.Logger) *memory.Store {
	return memory.NewStore(logger)
}

// NewRedisStore returns the Redis backend. Acquire is a set-if-absent with
// expiry; renew and release run as server-side scripts that check the holder
// before mutating.
func NewRedisStore(client goredis.UniversalClient, logger *slog.Logger) *redisstore.Store {
	return redisstore.NewStore(client, logger)
}

// NewSQLStore returns the relational backend on an existing gorm handle.
// Call its Migrate method once to create the lease table.
func NewSQLStore(db *gorm.DB, logger *slog.Logger) *sqlstore.Store {
	return sqlstore.NewStore(db, logger)
}

// NewBadgerStore returns the embedded backend on an open badger database.
func NewBadgerStore(db *badgerdb.DB, logger *slog.Logger) *badgerstore.Store {
	return badgerstore.NewStore(db, logger)
}
