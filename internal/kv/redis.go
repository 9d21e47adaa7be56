package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/langgate/internal/observability"
)

const (
	backendRedis = "redis"

	// seqKeySuffix names the global version counter. '%' never appears
	// unescaped in an encoded key, so the name cannot collide.
	seqKeySuffix = "%seq"

	fieldValue   = "val"
	fieldVersion = "ver"

	scanCount = 200
)

// casScript performs the version check and write atomically on the server.
// KEYS[1] entry hash, KEYS[2] version counter.
// ARGV[1] expected version ("" for absent), ARGV[2] value, ARGV[3] ttl ms.
var casScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'ver')
if cur == false then cur = '' end
if cur ~= ARGV[1] then return false end
local ver = redis.call('INCR', KEYS[2])
redis.call('HSET', KEYS[1], 'val', ARGV[2], 'ver', tostring(ver))
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
else
  redis.call('PERSIST', KEYS[1])
end
return tostring(ver)
`)

// RedisStore keeps each entry in a hash {val, ver}. Redis expires keys
// itself, so no sweeper is needed.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	logger observability.Logger
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisLogger sets the logger.
func WithRedisLogger(logger observability.Logger) RedisOption {
	return func(s *RedisStore) {
		s.logger = logger
	}
}

// NewRedisStore wraps an existing client. prefix namespaces every key.
func NewRedisStore(client redis.UniversalClient, prefix string, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: prefix,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DialRedis connects to a standalone Redis server and verifies it with a
// ping.
func DialRedis(ctx context.Context, addr, password string, db int, prefix string, opts ...RedisOption) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	s := NewRedisStore(client, prefix, opts...)
	s.logger.Info("redis store initialized",
		observability.String("addr", addr),
		observability.Int("db", db),
		observability.String("keyPrefix", prefix),
	)
	return s, nil
}

func (s *RedisStore) redisKey(key Key) string {
	return s.prefix + EncodeKey(key)
}

// wrapErr maps transport failures to ErrUnavailable while preserving
// context errors.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key Key) (Entry, error) {
	if err := checkKey(ctx, key); err != nil {
		return Entry{}, err
	}
	ctx, obs := startOp(ctx, backendRedis, "get", key)

	vals, err := s.client.HMGet(ctx, s.redisKey(key), fieldValue, fieldVersion).Result()
	if err != nil {
		err = wrapErr(err)
		obs.end(err)
		s.logger.Error("redis get failed", observability.String("key", key.String()), observability.Error(err))
		return Entry{}, err
	}

	entry := Entry{Key: key}
	ver, _ := vals[1].(string)
	if ver != "" {
		val, _ := vals[0].(string)
		entry.Value = []byte(val)
		entry.Version = Version(ver)
	}
	obs.end(nil)
	return entry, nil
}

// CompareAndSwap implements Store.
func (s *RedisStore) CompareAndSwap(
	ctx context.Context, key Key, expected Version, value []byte, ttl time.Duration,
) (bool, error) {
	if err := checkKey(ctx, key); err != nil {
		return false, err
	}
	ctx, obs := startOp(ctx, backendRedis, "cas", key)

	keys := []string{s.redisKey(key), s.prefix + seqKeySuffix}
	_, err := casScript.Run(ctx, s.client, keys, string(expected), value, ttl.Milliseconds()).Text()
	if errors.Is(err, redis.Nil) {
		obs.endCAS(false, nil)
		return false, nil
	}
	if err != nil {
		err = wrapErr(err)
		obs.endCAS(false, err)
		s.logger.Error("redis compare-and-swap failed", observability.String("key", key.String()), observability.Error(err))
		return false, err
	}
	obs.endCAS(true, nil)
	return true, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := checkKey(ctx, key); err != nil {
		return err
	}
	ctx, obs := startOp(ctx, backendRedis, "delete", key)

	err := wrapErr(s.client.Del(ctx, s.redisKey(key)).Err())
	obs.end(err)
	return err
}

// ListByPrefix implements Store. Keys are collected with SCAN and sorted
// client-side, so a page costs a full scan of the matching keyspace.
func (s *RedisStore) ListByPrefix(ctx context.Context, prefix Key, opts ListOptions) (ListResult, error) {
	if err := ctx.Err(); err != nil {
		return ListResult{}, err
	}
	after, err := decodeCursor(opts.Cursor)
	if err != nil {
		return ListResult{}, err
	}
	ctx, obs := startOp(ctx, backendRedis, "list", prefix)

	full := s.prefix + listPrefix(prefix)
	pattern := globEscape(full) + "*"
	seqKey := s.prefix + seqKeySuffix

	var encoded []string
	iter := s.client.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if k == seqKey {
			continue
		}
		encoded = append(encoded, strings.TrimPrefix(k, s.prefix))
	}
	if err := iter.Err(); err != nil {
		err = wrapErr(err)
		obs.end(err)
		return ListResult{}, err
	}
	sort.Strings(encoded)

	selected, next := page(encoded, after, opts.Limit)
	result := ListResult{Entries: make([]Entry, 0, len(selected)), Cursor: next}
	if len(selected) == 0 {
		obs.end(nil)
		return result, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(selected))
	for i, enc := range selected {
		cmds[i] = pipe.HMGet(ctx, s.prefix+enc, fieldValue, fieldVersion)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		err = wrapErr(err)
		obs.end(err)
		return ListResult{}, err
	}

	for i, enc := range selected {
		vals := cmds[i].Val()
		ver, _ := vals[1].(string)
		if ver == "" {
			// Expired between SCAN and HMGET.
			continue
		}
		key, err := DecodeKey(enc)
		if err != nil {
			continue
		}
		val, _ := vals[0].(string)
		result.Entries = append(result.Entries, Entry{Key: key, Value: []byte(val), Version: Version(ver)})
	}
	obs.end(nil)
	return result, nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	return wrapErr(s.client.Ping(ctx).Err())
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// globEscape escapes Redis MATCH metacharacters.
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
