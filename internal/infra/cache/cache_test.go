package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/civic-triage/internal/application"
	domain "github.com/bryanwahyu/civic-triage/internal/domain/analysis"
	"github.com/bryanwahyu/civic-triage/internal/logging"
)

var sample = domain.Result{
	Label: "pothole", Severity: 0.8, Confidence: 0.9,
	Source: domain.SourceLocal, Tags: []string{"pothole", "road"},
}

func TestRedisRoundTripAndTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	c := NewRedis(rdb, nil)
	ctx := context.Background()
	key := domain.HashBytes([]byte("image"))

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got, "miss before set")

	require.NoError(t, c.Set(ctx, key, sample, time.Hour))
	assert.True(t, mr.Exists(keyPrefix+key))

	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sample, *got)

	mr.FastForward(time.Hour + time.Second)
	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got, "expired")
}

func TestRedisCorruptEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	c := NewRedis(rdb, nil)

	require.NoError(t, mr.Set(keyPrefix+"k", "{not json"))
	_, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
}

func TestRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	c := NewRedis(rdb, nil)
	mr.Close()

	_, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, c.Set(context.Background(), "k", sample, time.Minute))
}

func TestDialUnreachableKeepsClient(t *testing.T) {
	rdb := Dial(context.Background(), "127.0.0.1:1", "", 0, logging.Discard())
	require.NotNil(t, rdb)
	defer rdb.Close()

	c := NewRedis(rdb, nil)
	_, err := c.Get(context.Background(), "k")
	assert.Error(t, err, "lookups fail until redis is reachable")
}

func TestDialRecoversWhenServerAppears(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	addr := mr.Addr()
	mr.Close()

	rdb := Dial(context.Background(), addr, "", 0, logging.Discard())
	defer rdb.Close()
	c := NewRedis(rdb, nil)

	require.NoError(t, mr.StartAddr(addr))
	defer mr.Close()
	require.NoError(t, c.Set(context.Background(), "k", sample, time.Minute))
	got, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, sample, *got)
}

func TestMemoryRoundTripAndTTL(t *testing.T) {
	clock := application.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewMemory(clock)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", sample, time.Hour))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sample, *got)

	// callers cannot mutate the stored tags
	got.Tags[0] = "changed"
	again, _ := c.Get(ctx, "k")
	assert.Equal(t, "pothole", again.Tags[0])

	clock.Advance(59 * time.Minute)
	got, _ = c.Get(ctx, "k")
	assert.NotNil(t, got)

	clock.Advance(time.Minute)
	got, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryNoTTL(t *testing.T) {
	clock := application.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewMemory(clock)
	require.NoError(t, c.Set(context.Background(), "k", sample, 0))
	clock.Advance(1000 * time.Hour)
	got, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
