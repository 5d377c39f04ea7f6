package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"stagecost/pkg/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	text  string
	err   error
	calls int
}

func (s *countingSource) Fetch(ctx context.Context, jobID string) (string, error) {
	s.calls++
	return s.text, s.err
}

const finishedDump = "JobID State\n----- -----\n1_1 COMPLETED\n1_1.0 COMPLETED\n"

func newCache(t *testing.T, inner *countingSource) (*AccountingCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return NewAccountingCache(client, inner, time.Hour), mr
}

func TestAccountingCache_CachesFinishedJobs(t *testing.T) {
	inner := &countingSource{text: finishedDump}
	cache, mr := newCache(t, inner)
	ctx := context.Background()

	text, err := cache.Fetch(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, finishedDump, text)

	text, err = cache.Fetch(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, finishedDump, text)
	assert.Equal(t, 1, inner.calls)

	assert.True(t, mr.Exists(accountingKeyPrefix+"1"))
	assert.Equal(t, time.Hour, mr.TTL(accountingKeyPrefix+"1"))

	jobs, err := cache.CachedJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, jobs)
}

func TestAccountingCache_ExpiredEntryRefetches(t *testing.T) {
	inner := &countingSource{text: finishedDump}
	cache, mr := newCache(t, inner)
	ctx := context.Background()

	_, err := cache.Fetch(ctx, "2")
	require.NoError(t, err)
	mr.FastForward(2 * time.Hour)

	_, err = cache.Fetch(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestAccountingCache_SkipsRunningJobs(t *testing.T) {
	inner := &countingSource{text: "JobID State\n----- -----\n3_1 RUNNING\n"}
	cache, mr := newCache(t, inner)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := cache.Fetch(ctx, "3")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, inner.calls)
	assert.False(t, mr.Exists(accountingKeyPrefix+"3"))
}

func TestAccountingCache_SkipsHeaderOnlyDumps(t *testing.T) {
	ctx := context.Background()
	for name, dump := range map[string]string{
		"header and separator": "JobID State\n----- -----\n",
		"header only":          "JobID State\n",
	} {
		t.Run(name, func(t *testing.T) {
			inner := &countingSource{text: dump}
			cache, mr := newCache(t, inner)

			for i := 0; i < 2; i++ {
				text, err := cache.Fetch(ctx, "999")
				require.NoError(t, err)
				assert.Equal(t, dump, text)
			}
			assert.Equal(t, 2, inner.calls)
			assert.False(t, mr.Exists(accountingKeyPrefix+"999"))
		})
	}
}

func TestDataRows(t *testing.T) {
	assert.Equal(t, 0, dataRows(""))
	assert.Equal(t, 0, dataRows("JobID State\n----- -----\n\n"))
	assert.Equal(t, 2, dataRows(finishedDump))
	assert.Equal(t, 1, dataRows("JobID State\n1_1 COMPLETED\n"))
}

func TestAccountingCache_PropagatesFetchErrors(t *testing.T) {
	inner := &countingSource{err: errors.New("sacct: command not found")}
	cache, mr := newCache(t, inner)

	_, err := cache.Fetch(context.Background(), "4")
	assert.Error(t, err)
	assert.False(t, mr.Exists(accountingKeyPrefix+"4"))
}

func TestAccountingCache_Invalidate(t *testing.T) {
	inner := &countingSource{text: finishedDump}
	cache, mr := newCache(t, inner)
	ctx := context.Background()

	_, err := cache.Fetch(ctx, "5")
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, "5"))
	assert.False(t, mr.Exists(accountingKeyPrefix+"5"))

	_, err = cache.Fetch(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestAccountingCache_RedisDownFallsThrough(t *testing.T) {
	inner := &countingSource{text: finishedDump}
	cache, mr := newCache(t, inner)
	mr.Close()

	text, err := cache.Fetch(context.Background(), "6")
	require.NoError(t, err)
	assert.Equal(t, finishedDump, text)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: addr})
	assert.Error(t, err)
}
