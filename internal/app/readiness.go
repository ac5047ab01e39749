package app

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"
)

// Pinger is the minimal interface for a database pool capable of Ping.
type Pinger interface{ Ping(ctx context.Context) error }

// AIStatus reports whether the AI client currently accepts calls.
type AIStatus interface{ Available() bool }

var (
	errDBNotConfigured    = errors.New("db not configured")
	errRedisNotConfigured = errors.New("redis not configured")
	errAINotConfigured    = errors.New("AI service not configured")
	errAICircuitOpen      = errors.New("AI circuit breaker open")
)

// BuildReadinessChecks returns the db, redis and ai readiness checks.
func BuildReadinessChecks(pool Pinger, rdb goredis.Cmdable, ai AIStatus) (
	func(ctx context.Context) error,
	func(ctx context.Context) error,
	func(ctx context.Context) error,
) {
	dbCheck := func(ctx context.Context) error {
		if pool == nil {
			return errDBNotConfigured
		}
		return pool.Ping(ctx)
	}
	redisCheck := func(ctx context.Context) error {
		if rdb == nil {
			return errRedisNotConfigured
		}
		return rdb.Ping(ctx).Err()
	}
	aiCheck := func(context.Context) error {
		if ai == nil {
			return errAINotConfigured
		}
		if !ai.Available() {
			return errAICircuitOpen
		}
		return nil
	}
	return dbCheck, redisCheck, aiCheck
}
