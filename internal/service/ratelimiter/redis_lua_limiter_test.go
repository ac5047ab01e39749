package ratelimiter

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRedisLuaLimiter(t *testing.T, store Store) (*RedisLuaLimiter, *miniredis.Miniredis, *clock) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clk := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	limiter := NewRedisLuaLimiter(rdb, store, map[string]BucketConfig{
		BucketGenerate: NewBucketConfigFromPerMinute(3),
	})
	limiter.now = clk.Now
	return limiter, mr, clk
}

func TestNewBucketConfigFromPerMinute(t *testing.T) {
	cfg := NewBucketConfigFromPerMinute(60)
	assert.Equal(t, int64(60), cfg.Capacity)
	assert.Equal(t, 1.0, cfg.RefillRate)
	assert.Equal(t, BucketConfig{}, NewBucketConfigFromPerMinute(0))
}

func TestNewRedisLuaLimiter_NilRedis(t *testing.T) {
	assert.Nil(t, NewRedisLuaLimiter(nil, nil, nil))
}

func TestAllow_NilLimiterFailsOpen(t *testing.T) {
	var limiter *RedisLuaLimiter
	allowed, retryAfter, err := limiter.Allow(context.Background(), "generate:u", 1)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Zero(t, retryAfter)
	limiter.SetBucketConfig("x", BucketConfig{Capacity: 1, RefillRate: 1})
}

func TestAllow_UnconfiguredFamily(t *testing.T) {
	limiter, mr, _ := newTestRedisLuaLimiter(t, nil)
	for i := 0; i < 10; i++ {
		allowed, _, err := limiter.Allow(context.Background(), Key("other", "u"), 1)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	assert.False(t, mr.Exists("rate:other:u"))
}

func TestAllow_ExhaustsAndRefills(t *testing.T) {
	limiter, mr, clk := newTestRedisLuaLimiter(t, nil)
	ctx := context.Background()
	key := Key(BucketGenerate, "user-1")

	for i := 0; i < 3; i++ {
		allowed, retryAfter, err := limiter.Allow(ctx, key, 1)
		require.NoError(t, err)
		assert.True(t, allowed, "call %d", i)
		assert.Zero(t, retryAfter)
	}

	allowed, retryAfter, err := limiter.Allow(ctx, key, 1)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 20*time.Second, retryAfter)
	assert.True(t, mr.Exists("rate:generate:user-1"))

	// another owner has its own bucket
	allowed, _, err = limiter.Allow(ctx, Key(BucketGenerate, "user-2"), 1)
	require.NoError(t, err)
	assert.True(t, allowed)

	clk.Advance(10 * time.Second)
	allowed, retryAfter, err = limiter.Allow(ctx, key, 1)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 10*time.Second, retryAfter)

	clk.Advance(10 * time.Second)
	allowed, _, err = limiter.Allow(ctx, key, 1)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestAllow_CostAboveOneAndDefault(t *testing.T) {
	limiter, _, _ := newTestRedisLuaLimiter(t, nil)
	ctx := context.Background()

	allowed, _, err := limiter.Allow(ctx, "generate:u", 3)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, retryAfter, err := limiter.Allow(ctx, "generate:u", 0) // non-positive cost counts as one
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 20*time.Second, retryAfter)
}

func TestAllow_RedisDownFailsOpen(t *testing.T) {
	limiter, mr, _ := newTestRedisLuaLimiter(t, nil)
	mr.Close()

	allowed, _, err := limiter.Allow(context.Background(), "generate:u", 1)
	assert.Error(t, err)
	assert.True(t, allowed)
}

func TestSetBucketConfig(t *testing.T) {
	limiter, _, _ := newTestRedisLuaLimiter(t, nil)
	limiter.SetBucketConfig(BucketGenerate, BucketConfig{Capacity: 1, RefillRate: 1})

	allowed, _, _ := limiter.Allow(context.Background(), "generate:u", 1)
	assert.True(t, allowed)
	allowed, retryAfter, _ := limiter.Allow(context.Background(), "generate:u", 1)
	assert.False(t, allowed)
	assert.Equal(t, time.Second, retryAfter)
}

type execCall struct {
	sql  string
	args []any
}

type fakeStore struct {
	mu    sync.Mutex
	execs []execCall
	rows  pgx.Rows
}

func (s *fakeStore) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs = append(s.execs, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, nil
}

func (s *fakeStore) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return s.rows, nil
}

type bucketRow struct {
	key        string
	tokens     float64
	lastRefill float64
}

// fakeRows implements the pgx.Rows methods WarmFromPostgres uses.
type fakeRows struct {
	pgx.Rows
	data []bucketRow
	i    int
}

func (r *fakeRows) Next() bool {
	r.i++
	return r.i <= len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.i-1]
	*dest[0].(*string) = row.key
	*dest[1].(*float64) = row.tokens
	*dest[2].(*float64) = row.lastRefill
	return nil
}

func (r *fakeRows) Close()     {}
func (r *fakeRows) Err() error { return nil }

func TestAllow_MirrorsToStore(t *testing.T) {
	store := &fakeStore{}
	limiter, _, clk := newTestRedisLuaLimiter(t, store)

	_, _, err := limiter.Allow(context.Background(), "generate:u", 1)
	require.NoError(t, err)

	require.Len(t, store.execs, 1)
	call := store.execs[0]
	assert.Contains(t, call.sql, "INSERT INTO rate_limit_buckets")
	assert.Equal(t, "generate:u", call.args[0])
	assert.Equal(t, int64(3), call.args[1])
	assert.Equal(t, 2.0, call.args[3])
	assert.WithinDuration(t, clk.Now(), call.args[4].(time.Time), time.Millisecond)
}

func TestWarmFromPostgres(t *testing.T) {
	last := float64(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Unix())
	store := &fakeStore{rows: &fakeRows{data: []bucketRow{{key: "generate:u", tokens: 0, lastRefill: last}}}}
	limiter, mr, _ := newTestRedisLuaLimiter(t, store)

	require.NoError(t, limiter.WarmFromPostgres(context.Background()))
	assert.Equal(t, "0", mr.HGet("rate:generate:u", "tokens"))

	// the restored empty bucket denies the next request
	allowed, _, err := limiter.Allow(context.Background(), "generate:u", 1)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestWarmFromPostgres_NoStore(t *testing.T) {
	limiter := &RedisLuaLimiter{}
	assert.NoError(t, limiter.WarmFromPostgres(context.Background()))
}

func TestConversions(t *testing.T) {
	assert.Equal(t, int64(5), toInt64(int64(5)))
	assert.Equal(t, int64(7), toInt64(7.9))
	assert.Equal(t, int64(2), toInt64("2.5"))
	assert.Equal(t, int64(0), toInt64("x"))
	assert.Equal(t, 1.5, toFloat64("1.5"))
	assert.Equal(t, 2.0, toFloat64(int64(2)))
	assert.True(t, toFloat64(struct{}{}) != toFloat64(struct{}{}))
	assert.Equal(t, "generate", family("generate:a:b"))
	assert.Equal(t, "plain", family("plain"))
	assert.Equal(t, time.Unix(10, 500000000).UTC(), fromUnixSeconds(10.5))
}
