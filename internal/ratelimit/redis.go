package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// admitScript runs purge, count and append atomically on a sorted set whose
// scores are admission times in unix milliseconds.
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. (now - window))
local count = redis.call('ZCARD', key)
local allowed = 0
if limit - count > 0 then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
if count > 0 then
  redis.call('PEXPIRE', key, math.max(window, 1))
end
local oldest = -1
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
  oldest = tonumber(first[2])
end
return {allowed, count, oldest}
`)

// RedisGovernor shares request logs between processes through Redis sorted
// sets. Keys expire on their own, so Sweep has nothing to do.
type RedisGovernor struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisGovernor(client redis.UniversalClient) *RedisGovernor {
	return &RedisGovernor{client: client, now: time.Now}
}

func (g *RedisGovernor) Admit(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if window < 0 {
		window = 0
	}
	now := g.now().UnixMilli()
	res, err := admitScript.Run(ctx, g.client,
		[]string{redisKeyPrefix + normalizeKey(key)},
		now, window.Milliseconds(), limit, strconv.FormatInt(now, 10)+"-"+uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis admit: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("redis admit: unexpected reply length %d", len(res))
	}

	decision := Decision{Limit: limit, Allowed: res[0] == 1}
	if decision.Allowed {
		decision.Remaining = clampRemaining(limit - int(res[1]))
	}
	if res[2] >= 0 {
		t := time.UnixMilli(res[2]).Add(window)
		decision.ResetAt = &t
	}
	return decision, nil
}

func (g *RedisGovernor) Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	count, _, err := g.inspect(ctx, key, window)
	if err != nil {
		return 0, err
	}
	return clampRemaining(limit - int(count)), nil
}

func (g *RedisGovernor) ResetAt(ctx context.Context, key string, window time.Duration) (*time.Time, error) {
	_, oldest, err := g.inspect(ctx, key, window)
	if err != nil || oldest == nil {
		return nil, err
	}
	t := oldest.Add(window)
	return &t, nil
}

func (g *RedisGovernor) Reset(ctx context.Context) error {
	iter := g.client.Scan(ctx, 0, redisKeyPrefix+"*", 200).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis reset scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return g.client.Del(ctx, keys...).Err()
}

func (g *RedisGovernor) Sweep(context.Context) error { return nil }

func (g *RedisGovernor) inspect(ctx context.Context, key string, window time.Duration) (int64, *time.Time, error) {
	rkey := redisKeyPrefix + normalizeKey(key)
	cutoff := g.now().UnixMilli() - window.Milliseconds()

	pipe := g.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, rkey, "-inf", "("+strconv.FormatInt(cutoff, 10))
	card := pipe.ZCard(ctx, rkey)
	first := pipe.ZRangeWithScores(ctx, rkey, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, nil, fmt.Errorf("redis inspect: %w", err)
	}

	zs := first.Val()
	if len(zs) == 0 {
		return card.Val(), nil, nil
	}
	oldest := time.UnixMilli(int64(zs[0].Score))
	return card.Val(), &oldest, nil
}
