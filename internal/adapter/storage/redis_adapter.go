package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stock-guard/internal/core/domain"
	"github.com/rl1809/stock-guard/internal/port"
)

const (
	stockKeyPrefix      = "stock:"
	lockKeyPrefix       = "lock:stock:"
	idempotencyKeyTTL   = 24 * time.Hour
	defaultLockTTL      = 10 * time.Second
	defaultLockPollBase = time.Millisecond
	defaultLockPollMax  = 50 * time.Millisecond
)

// ErrLockLost is returned when a write under an exclusive lock finds the lock
// expired or taken over by another holder.
var ErrLockLost = errors.New("exclusive lock lost")

var decrementStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local current = redis.call('HGET', key, 'quantity')
if not current then
	return 0
end

current = tonumber(current)
if current >= quantity then
	redis.call('HINCRBY', key, 'quantity', -quantity)
	redis.call('HINCRBY', key, 'version', 1)
	redis.call('HSET', key, 'updated_at', ARGV[2])
	return 1
end

return 0
`)

var versionedUpdateScript = redis.NewScript(`
local key = KEYS[1]

local version = redis.call('HGET', key, 'version')
if not version then
	return -1
end
if tonumber(version) ~= tonumber(ARGV[2]) then
	return 0
end

redis.call('HSET', key, 'quantity', ARGV[1], 'updated_at', ARGV[3])
redis.call('HINCRBY', key, 'version', 1)
return 1
`)

var putScript = redis.NewScript(`
local key = KEYS[1]

if redis.call('EXISTS', key) == 0 then
	return -1
end

redis.call('HSET', key, 'quantity', ARGV[1], 'updated_at', ARGV[2])
redis.call('HINCRBY', key, 'version', 1)
return 1
`)

// lockedSetScript writes only while KEYS[2] still holds our lock token.
var lockedSetScript = redis.NewScript(`
if redis.call('GET', KEYS[2]) ~= ARGV[3] then
	return 0
end

redis.call('HSET', KEYS[1], 'quantity', ARGV[1], 'updated_at', ARGV[2])
redis.call('HINCRBY', KEYS[1], 'version', 1)
return 1
`)

var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
else
	return 0
end
`)

type RedisAdapter struct {
	client       *redis.Client
	lockTTL      time.Duration
	lockPollBase time.Duration
	lockPollMax  time.Duration
	now          func() time.Time
	log          logr.Logger
}

// RedisOption configures a RedisAdapter.
type RedisOption func(*RedisAdapter)

// WithLockTTL bounds how long an exclusive lock survives a crashed holder.
func WithLockTTL(d time.Duration) RedisOption {
	return func(r *RedisAdapter) {
		r.lockTTL = d
	}
}

// WithLogger reports lock releases that fail or find the lock already gone.
func WithLogger(log logr.Logger) RedisOption {
	return func(r *RedisAdapter) {
		r.log = log
	}
}

// WithLockPoll sets the wait between lock attempts, doubling from base to max.
func WithLockPoll(base, maxWait time.Duration) RedisOption {
	return func(r *RedisAdapter) {
		r.lockPollBase = base
		r.lockPollMax = maxWait
	}
}

func NewRedisAdapter(client *redis.Client, opts ...RedisOption) *RedisAdapter {
	r := &RedisAdapter{
		client:       client,
		lockTTL:      defaultLockTTL,
		lockPollBase: defaultLockPollBase,
		lockPollMax:  defaultLockPollMax,
		now:          time.Now,
		log:          logr.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisAdapter) Initialize(ctx context.Context, key string, quantity int64) error {
	k := stockKeyPrefix + key
	now := r.now().UnixNano()
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, "quantity", quantity, "version", 0, "updated_at", now)
		pipe.HSetNX(ctx, k, "created_at", now)
		return nil
	})
	if err != nil {
		return fmt.Errorf("initialize stock: %w", err)
	}
	return nil
}

func (r *RedisAdapter) Get(ctx context.Context, key string) (*domain.StockRecord, error) {
	vals, err := r.client.HMGet(ctx, stockKeyPrefix+key, "quantity", "version", "created_at", "updated_at").Result()
	if err != nil {
		return nil, fmt.Errorf("query stock: %w", err)
	}
	if vals[0] == nil {
		return nil, nil
	}

	rec := domain.StockRecord{Key: key}
	nums := make([]int64, len(vals))
	for i, v := range vals {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("stock %s: unexpected field type %T", key, v)
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("stock %s: %w", key, err)
		}
		nums[i] = n
	}
	rec.Quantity = nums[0]
	rec.Version = nums[1]
	rec.CreatedAt = time.Unix(0, nums[2])
	rec.UpdatedAt = time.Unix(0, nums[3])
	return &rec, nil
}

func (r *RedisAdapter) Put(ctx context.Context, rec domain.StockRecord) error {
	res, err := putScript.Run(ctx, r.client, []string{stockKeyPrefix + rec.Key}, rec.Quantity, r.now().UnixNano()).Int()
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	if res < 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *RedisAdapter) UpdateVersioned(ctx context.Context, rec domain.StockRecord) error {
	res, err := versionedUpdateScript.Run(ctx, r.client, []string{stockKeyPrefix + rec.Key},
		rec.Quantity, rec.Version, r.now().UnixNano()).Int()
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	switch res {
	case -1:
		return domain.ErrNotFound
	case 0:
		return domain.ErrVersionConflict
	}
	return nil
}

func (r *RedisAdapter) DecrementIfEnough(ctx context.Context, key string, amount int64) (bool, error) {
	result, err := decrementStockScript.Run(ctx, r.client, []string{stockKeyPrefix + key}, amount, r.now().UnixNano()).Int()
	if err != nil {
		return false, err
	}

	return result == 1, nil
}

// WithExclusiveLock takes a SET NX lock on the record, polling until it is
// free or ctx is done. Writes made through the LockedRecord are fenced by the
// lock token, so a holder whose lock expired cannot overwrite a newer value.
func (r *RedisAdapter) WithExclusiveLock(ctx context.Context, key string, fn func(ctx context.Context, rec port.LockedRecord) error) error {
	lockKey := lockKeyPrefix + key
	token, err := r.acquire(ctx, lockKey)
	if err != nil {
		return err
	}
	defer r.release(context.WithoutCancel(ctx), lockKey, token)

	rec, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	if rec == nil {
		return domain.ErrNotFound
	}
	return fn(ctx, &redisLockedRecord{adapter: r, lockKey: lockKey, token: token, rec: *rec})
}

func (r *RedisAdapter) acquire(ctx context.Context, lockKey string) (string, error) {
	token := uuid.NewString()
	wait := r.lockPollBase
	for {
		ok, err := r.client.SetNX(ctx, lockKey, token, r.lockTTL).Result()
		if err != nil {
			return "", fmt.Errorf("acquire lock: %w", err)
		}
		if ok {
			return token, nil
		}

		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		}
		if wait *= 2; wait > r.lockPollMax {
			wait = r.lockPollMax
		}
	}
}

// release drops the lock if we still own it. A failed release is only logged:
// the work under the lock has already happened, and the TTL frees the key.
func (r *RedisAdapter) release(ctx context.Context, lockKey, token string) {
	n, err := unlockScript.Run(ctx, r.client, []string{lockKey}, token).Int()
	switch {
	case err != nil:
		r.log.Error(err, "release lock", "lock", lockKey, "ttl", r.lockTTL)
	case n == 0:
		r.log.Info("lock expired before release", "lock", lockKey, "ttl", r.lockTTL)
	}
}

type redisLockedRecord struct {
	adapter *RedisAdapter
	lockKey string
	token   string
	rec     domain.StockRecord
}

func (l *redisLockedRecord) Record() domain.StockRecord {
	return l.rec
}

func (l *redisLockedRecord) SetQuantity(ctx context.Context, quantity int64) error {
	keys := []string{stockKeyPrefix + l.rec.Key, l.lockKey}
	res, err := lockedSetScript.Run(ctx, l.adapter.client, keys, quantity, l.adapter.now().UnixNano(), l.token).Int()
	if err != nil {
		return fmt.Errorf("update locked stock: %w", err)
	}
	if res == 0 {
		return ErrLockLost
	}
	l.rec.Quantity = quantity
	l.rec.Version++
	return nil
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

var (
	_ port.VersionedStore   = (*RedisAdapter)(nil)
	_ port.LockingStore     = (*RedisAdapter)(nil)
	_ port.AtomicStore      = (*RedisAdapter)(nil)
	_ port.IdempotencyGuard = (*RedisAdapter)(nil)
)
