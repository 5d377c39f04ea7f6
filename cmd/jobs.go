package main

import (
	"context"
	"errors"
	"time"

	"stagecost/internal/jobs"
	"stagecost/internal/service"
	"stagecost/pkg/logger"
)

// refreshLockKey keeps replicas sharing a Redis from refreshing together
const refreshLockKey = "refresh:analysis-lock"

func newJobsManager(ctx context.Context, interval time.Duration, refresh *service.RefreshService) *jobs.Manager {
	manager := jobs.NewManager(ctx)
	manager.Register(&refreshJob{interval: interval, refresh: refresh})
	return manager
}

// refreshJob periodically re-analyzes the configured run
type refreshJob struct {
	interval time.Duration
	refresh  *service.RefreshService
}

func (j *refreshJob) Name() string { return "analysis-refresh" }

func (j *refreshJob) Interval() time.Duration { return j.interval }

func (j *refreshJob) Run(ctx context.Context) error {
	_, err := j.refresh.Refresh(ctx)
	if errors.Is(err, service.ErrRefreshInProgress) {
		logger.DebugCtx(ctx, "another instance is refreshing the run, skipping this cycle")
		return nil
	}
	return err
}
