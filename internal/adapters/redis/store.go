package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/eleven-am/tenure/internal/domain"
	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "tenure:lease:"

// Lua scripts carry the owner check and the write in one server-side step; a
// client-side read-then-write would let a second participant slip in between.
// Lease validity is enforced by the key's own TTL, so the redis server clock
// is the authority on expiry. The generation counter lives in a sidecar key
// without TTL so it survives lease expiry.
var (
	acquireScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
local record = cjson.decode(ARGV[1])
if current then
	local held = cjson.decode(current)
	if held.participant_id ~= ARGV[2] then
		return {0, current}
	end
	record.acquired_at = held.acquired_at
	record.generation = held.generation
else
	record.generation = redis.call('INCR', KEYS[2])
end
local payload = cjson.encode(record)
redis.call('SET', KEYS[1], payload, 'PX', tonumber(ARGV[3]))
return {1, payload}
`)

	renewScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
	return {-1, ''}
end
local held = cjson.decode(current)
if held.participant_id ~= ARGV[2] then
	return {-2, current}
end
local record = cjson.decode(ARGV[1])
record.acquired_at = held.acquired_at
record.generation = held.generation
if held.metadata then
	local merged = held.metadata
	if record.metadata then
		for k, v in pairs(record.metadata) do
			merged[k] = v
		end
	end
	record.metadata = merged
end
local payload = cjson.encode(record)
redis.call('SET', KEYS[1], payload, 'PX', tonumber(ARGV[3]))
return {1, payload}
`)

	releaseScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
	return 0
end
local held = cjson.decode(current)
if held.participant_id ~= ARGV[1] then
	return 0
end
redis.call('DEL', KEYS[1])
return 1
`)
)

// Store is the remote key-value lease backend. One namespaced key per
// election holds the JSON record with the lease duration as its TTL.
type Store struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewStore(client redis.UniversalClient, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client: client,
		logger: logger.With("component", "redis-lease-store"),
	}
}

// Key returns the redis key holding the lease record for an election.
func (s *Store) Key(electionName string) string {
	return keyPrefix + electionName
}

func (s *Store) generationKey(electionName string) string {
	return s.Key(electionName) + ":gen"
}

func (s *Store) TryAcquire(ctx context.Context, electionName, participantID string, ttl time.Duration, metadata map[string]string) (*domain.LeaseRecord, bool, error) {
	payload, err := encodeRecord(electionName, participantID, ttl, metadata)
	if err != nil {
		return nil, false, domain.NewStoreError("redis", "try_acquire", electionName, err)
	}

	keys := []string{s.Key(electionName), s.generationKey(electionName)}
	result, err := acquireScript.Run(ctx, s.client, keys, payload, participantID, ttl.Milliseconds()).Result()
	if err != nil {
		return nil, false, domain.NewStoreError("redis", "try_acquire", electionName, err)
	}

	status, body, err := scriptReply(result)
	if err != nil {
		return nil, false, domain.NewStoreError("redis", "try_acquire", electionName, err)
	}

	record, err := decodeRecord(body)
	if err != nil {
		return nil, false, domain.NewStoreError("redis", "try_acquire", electionName, err)
	}

	if status != 1 {
		return record, false, nil
	}
	return record, true, nil
}

func (s *Store) TryRenew(ctx context.Context, electionName, participantID string, ttl time.Duration, metadata map[string]string) (*domain.LeaseRecord, error) {
	payload, err := encodeRecord(electionName, participantID, ttl, metadata)
	if err != nil {
		return nil, domain.NewStoreError("redis", "try_renew", electionName, err)
	}

	keys := []string{s.Key(electionName)}
	result, err := renewScript.Run(ctx, s.client, keys, payload, participantID, ttl.Milliseconds()).Result()
	if err != nil {
		return nil, domain.NewStoreError("redis", "try_renew", electionName, err)
	}

	status, body, err := scriptReply(result)
	if err != nil {
		return nil, domain.NewStoreError("redis", "try_renew", electionName, err)
	}

	switch status {
	case 1:
		record, err := decodeRecord(body)
		if err != nil {
			return nil, domain.NewStoreError("redis", "try_renew", electionName, err)
		}
		return record, nil
	case -1:
		return nil, domain.ErrLeaseNotFound
	default:
		return nil, domain.ErrNotLeaseHolder
	}
}

func (s *Store) Release(ctx context.Context, electionName, participantID string) (bool, error) {
	keys := []string{s.Key(electionName)}
	result, err := releaseScript.Run(ctx, s.client, keys, participantID).Int64()
	if err != nil {
		return false, domain.NewStoreError("redis", "release", electionName, err)
	}
	return result == 1, nil
}

func (s *Store) GetCurrent(ctx context.Context, electionName string) (*domain.LeaseRecord, bool, error) {
	body, err := s.client.Get(ctx, s.Key(electionName)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, domain.NewStoreError("redis", "get_current", electionName, err)
	}

	record, err := decodeRecord(body)
	if err != nil {
		return nil, false, domain.NewStoreError("redis", "get_current", electionName, err)
	}
	return record, true, nil
}

func encodeRecord(electionName, participantID string, ttl time.Duration, metadata map[string]string) (string, error) {
	now := time.Now().UTC()
	record := domain.LeaseRecord{
		ElectionName:  electionName,
		ParticipantID: participantID,
		AcquiredAt:    now,
		RenewedAt:     now,
		ExpiresAt:     now.Add(ttl),
		Generation:    1,
		Metadata:      domain.CloneMetadata(metadata),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func decodeRecord(body string) (*domain.LeaseRecord, error) {
	if body == "" {
		return nil, nil
	}
	var record domain.LeaseRecord
	if err := json.Unmarshal([]byte(body), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// scriptReply unpacks the {status, payload} table the acquire and renew
// scripts return.
func scriptReply(result interface{}) (int64, string, error) {
	reply, ok := result.([]interface{})
	if !ok || len(reply) != 2 {
		return 0, "", errors.New("unexpected script reply shape")
	}
	status, ok := reply[0].(int64)
	if !ok {
		return 0, "", errors.New("unexpected script status type")
	}
	body, _ := reply[1].(string)
	return status, body, nil
}
