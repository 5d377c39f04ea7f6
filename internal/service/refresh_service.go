package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"stagecost/pkg/interfaces"
	"stagecost/pkg/logger"
)

// ErrRefreshInProgress is returned when another refresh holds the lock
var ErrRefreshInProgress = errors.New("a refresh is already in progress")

// Locker is the lock shared by all instances refreshing the same run
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// RefreshService re-analyzes the configured run and records the result
type RefreshService struct {
	analysis     *AnalysisService
	timingFile   string
	resourceFile string
	withUsage    bool
	lock         Locker // nil: process-local exclusion only

	running sync.Mutex
}

// NewRefreshService creates a new refresh service. withUsage adds the
// accounting pass to every refresh.
func NewRefreshService(analysis *AnalysisService, timingFile, resourceFile string, withUsage bool, lock Locker) *RefreshService {
	return &RefreshService{
		analysis:     analysis,
		timingFile:   timingFile,
		resourceFile: resourceFile,
		withUsage:    withUsage,
		lock:         lock,
	}
}

// Refresh analyzes the run once and records it. It returns
// ErrRefreshInProgress without doing any work when another refresh is
// running here or on another instance.
func (s *RefreshService) Refresh(ctx context.Context) (*interfaces.RunRecord, error) {
	if !s.running.TryLock() {
		return nil, ErrRefreshInProgress
	}
	defer s.running.Unlock()

	if s.lock != nil {
		acquired, err := s.lock.TryLock(ctx)
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, ErrRefreshInProgress
		}
		defer func() {
			if err := s.lock.Unlock(ctx); err != nil {
				logger.WarnCtx(ctx, "%v", err)
			}
		}()
	}

	a, err := s.analysis.Analyze(ctx, s.timingFile, s.resourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze %s: %w", s.timingFile, err)
	}
	if s.withUsage {
		if err := s.analysis.CollectUsage(ctx, a); err != nil {
			return nil, err
		}
	}
	if err := s.analysis.Record(ctx, a); err != nil {
		return nil, err
	}

	logger.InfoCtx(logger.WithRunID(ctx, a.RunID), "refreshed run from %s", s.timingFile)
	return ToRunRecord(a, s.analysis.Config().Currency), nil
}
