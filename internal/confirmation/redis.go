package confirmation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wrapshot/agent/internal/domain"
)

// DefaultRetention keeps resolved and expired records around so that late
// duplicates get a precise error instead of not-found.
const DefaultRetention = 24 * time.Hour

const pendingIndexKey = "confirmations:pending"

// resolveScript transitions a pending confirmation hash.
// KEYS[1] confirmation hash, KEYS[2] pending index.
// ARGV project_id, new status, now (unix ms), resolved_at, resolved_by, id.
var resolveScript = redis.NewScript(`
local f = redis.call('HMGET', KEYS[1], 'project_id', 'status', 'expires_at_ms')
if not f[1] then return {'not_found'} end
if f[1] ~= ARGV[1] then return {'forbidden'} end
if f[2] == 'expired' then return {'expired'} end
if f[2] ~= 'pending' then return {'resolved', f[2]} end
if tonumber(f[3]) <= tonumber(ARGV[3]) then
	redis.call('HSET', KEYS[1], 'status', 'expired', 'resolved_at', ARGV[4])
	redis.call('ZREM', KEYS[2], ARGV[6])
	return {'expired'}
end
redis.call('HSET', KEYS[1], 'status', ARGV[2], 'resolved_at', ARGV[4], 'resolved_by', ARGV[5])
redis.call('ZREM', KEYS[2], ARGV[6])
return {'ok'}
`)

// expireScript marks one confirmation expired if it is still pending.
// KEYS[1] confirmation hash, KEYS[2] pending index. ARGV id, resolved_at.
var expireScript = redis.NewScript(`
redis.call('ZREM', KEYS[2], ARGV[1])
if redis.call('HGET', KEYS[1], 'status') == 'pending' then
	redis.call('HSET', KEYS[1], 'status', 'expired', 'resolved_at', ARGV[2])
	return 1
end
return 0
`)

// RedisStore keeps confirmations in Redis hashes with a TTL.
type RedisStore struct {
	rdb       redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewRedisStore creates a store on rdb.
func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "confirmation:", retention: DefaultRetention}
}

// NewRedisStoreFromURL parses a redis:// URL and connects.
func NewRedisStoreFromURL(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisStore(rdb), nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// Create implements Store.
func (s *RedisStore) Create(ctx context.Context, conf *domain.Confirmation) error {
	record, err := json.Marshal(conf)
	if err != nil {
		return fmt.Errorf("failed to encode confirmation: %w", err)
	}
	ttl := time.Until(conf.ExpiresAt) + s.retention
	if ttl <= 0 {
		ttl = s.retention
	}
	key := s.key(conf.ConfirmationID)
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			"record", string(record),
			"project_id", conf.ProjectID,
			"status", string(domain.ConfirmationStatusPending),
			"expires_at_ms", conf.ExpiresAt.UnixMilli(),
		)
		p.Expire(ctx, key, ttl)
		p.ZAdd(ctx, pendingIndexKey, redis.Z{Score: float64(conf.ExpiresAt.UnixMilli()), Member: conf.ConfirmationID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create confirmation: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, confirmationID string) (*domain.Confirmation, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key(confirmationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get confirmation: %w: %w", domain.ErrStoreUnavailable, err)
	}
	if len(fields) == 0 || fields["record"] == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfirmationNotFound, confirmationID)
	}
	var conf domain.Confirmation
	if err := json.Unmarshal([]byte(fields["record"]), &conf); err != nil {
		return nil, fmt.Errorf("failed to decode confirmation %s: %w", confirmationID, err)
	}
	conf.Status = domain.ConfirmationStatus(fields["status"])
	if at := fields["resolved_at"]; at != "" {
		if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
			conf.ResolvedAt = &t
		}
	}
	conf.ResolvedBy = fields["resolved_by"]
	return &conf, nil
}

// Resolve implements Store.
func (s *RedisStore) Resolve(ctx context.Context, confirmationID, projectID, userID string, approved bool, now time.Time) (*domain.Confirmation, error) {
	status := domain.ConfirmationStatusDeclined
	if approved {
		status = domain.ConfirmationStatusApproved
	}
	now = now.UTC()
	res, err := resolveScript.Run(ctx, s.rdb,
		[]string{s.key(confirmationID), pendingIndexKey},
		projectID, string(status), strconv.FormatInt(now.UnixMilli(), 10), now.Format(time.RFC3339Nano), userID, confirmationID,
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve confirmation: %w: %w", domain.ErrStoreUnavailable, err)
	}
	if len(res) == 0 {
		return nil, errors.New("unexpected empty reply from resolve script")
	}
	switch res[0] {
	case "ok":
		return s.Get(ctx, confirmationID)
	case "not_found":
		return nil, fmt.Errorf("%w: %s", domain.ErrConfirmationNotFound, confirmationID)
	case "forbidden":
		return nil, fmt.Errorf("%w: %s", domain.ErrConfirmationForbidden, confirmationID)
	case "expired":
		return nil, fmt.Errorf("%w: %s", domain.ErrConfirmationExpired, confirmationID)
	case "resolved":
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrConfirmationResolved, confirmationID, res[len(res)-1])
	}
	return nil, fmt.Errorf("unexpected resolve script reply %q", res[0])
}

// ExpirePending implements Store using the pending index.
func (s *RedisStore) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	now = now.UTC()
	ids, err := s.rdb.ZRangeByScore(ctx, pendingIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan pending confirmations: %w: %w", domain.ErrStoreUnavailable, err)
	}
	var expired int64
	for _, id := range ids {
		n, err := expireScript.Run(ctx, s.rdb, []string{s.key(id), pendingIndexKey}, id, now.Format(time.RFC3339Nano)).Int64()
		if err != nil {
			return expired, fmt.Errorf("failed to expire confirmation %s: %w", id, err)
		}
		expired += n
	}
	return expired, nil
}
