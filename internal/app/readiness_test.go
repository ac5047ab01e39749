package app

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeAI struct{ available bool }

func (a fakeAI) Available() bool { return a.available }

func TestBuildReadinessChecks_AllOK(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db, red, ai := BuildReadinessChecks(fakePinger{}, rdb, fakeAI{available: true})
	ctx := context.Background()
	assert.NoError(t, db(ctx))
	assert.NoError(t, red(ctx))
	assert.NoError(t, ai(ctx))
}

func TestBuildReadinessChecks_Failures(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	dbErr := errors.New("connection refused")
	db, red, ai := BuildReadinessChecks(fakePinger{err: dbErr}, rdb, fakeAI{available: false})
	ctx := context.Background()
	assert.ErrorIs(t, db(ctx), dbErr)
	assert.Error(t, red(ctx))
	assert.ErrorIs(t, ai(ctx), errAICircuitOpen)
}

func TestBuildReadinessChecks_NotConfigured(t *testing.T) {
	db, red, ai := BuildReadinessChecks(nil, nil, nil)
	ctx := context.Background()
	require.ErrorIs(t, db(ctx), errDBNotConfigured)
	require.ErrorIs(t, red(ctx), errRedisNotConfigured)
	require.ErrorIs(t, ai(ctx), errAINotConfigured)
}
