package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stagecost/pkg/interfaces"
	"stagecost/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	accountingKeyPrefix = "accounting:dump:" // Raw sacct dump (accounting:dump:{jobID})
	accountingJobsSet   = "accounting:jobs"  // Job ids with a cached dump
)

// States that mean the job can still change; such dumps are not cached.
var unsettledStates = []string{"RUNNING", "PENDING", "REQUEUED", "SUSPENDED", "COMPLETING"}

// AccountingCache caches sacct dumps of finished jobs in Redis so repeated
// analyses of the same run do not hit slurmdbd again.
type AccountingCache struct {
	redis *redis.Client
	inner interfaces.AccountingSource
	ttl   time.Duration
}

// NewAccountingCache wraps inner with a Redis cache whose entries expire after ttl
func NewAccountingCache(redisClient *RedisClient, inner interfaces.AccountingSource, ttl time.Duration) *AccountingCache {
	return &AccountingCache{
		redis: redisClient.GetClient(),
		inner: inner,
		ttl:   ttl,
	}
}

// Fetch implements interfaces.AccountingSource. Redis failures fall through
// to the wrapped source.
func (c *AccountingCache) Fetch(ctx context.Context, jobID string) (string, error) {
	key := accountingKeyPrefix + jobID
	data, err := c.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		logger.Debug("accounting cache hit", zap.String("job_id", jobID))
		return data, nil
	case err != redis.Nil:
		logger.Warn("accounting cache read failed", zap.String("job_id", jobID), zap.Error(err))
	}

	text, err := c.inner.Fetch(ctx, jobID)
	if err != nil {
		return "", err
	}
	if !settled(text) {
		return text, nil
	}
	if err := c.store(ctx, jobID, text); err != nil {
		logger.Warn("accounting cache write failed", zap.String("job_id", jobID), zap.Error(err))
	}
	return text, nil
}

func (c *AccountingCache) store(ctx context.Context, jobID, text string) error {
	pipe := c.redis.Pipeline()
	pipe.Set(ctx, accountingKeyPrefix+jobID, text, c.ttl)
	pipe.SAdd(ctx, accountingJobsSet, jobID)
	pipe.Expire(ctx, accountingJobsSet, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache accounting dump: %w", err)
	}
	return nil
}

// Invalidate drops the cached dump of jobID
func (c *AccountingCache) Invalidate(ctx context.Context, jobID string) error {
	pipe := c.redis.Pipeline()
	pipe.Del(ctx, accountingKeyPrefix+jobID)
	pipe.SRem(ctx, accountingJobsSet, jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to invalidate accounting dump: %w", err)
	}
	return nil
}

// CachedJobs lists job ids whose dump is cached
func (c *AccountingCache) CachedJobs(ctx context.Context) ([]string, error) {
	ids, err := c.redis.SMembers(ctx, accountingJobsSet).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list cached jobs: %w", err)
	}
	return ids, nil
}

// settled reports whether the dump has data rows and none of them is in a
// state that can change. A header-only dump means slurmdbd does not know the
// job yet.
func settled(text string) bool {
	if dataRows(text) == 0 {
		return false
	}
	for _, s := range unsettledStates {
		if strings.Contains(text, s) {
			return false
		}
	}
	return true
}

// dataRows counts the lines below the header and its dashed separator.
func dataRows(text string) int {
	n := 0
	header := true
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case header:
			header = false
			continue
		case strings.Trim(line, "- ") == "":
			continue
		}
		n++
	}
	return n
}
