package service

import (
	"context"

	"stagecost/pkg/interfaces"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

// RunService provides read access to recorded analyses
type RunService struct {
	store interfaces.RunStore
}

// NewRunService creates a new run service
func NewRunService(store interfaces.RunStore) *RunService {
	return &RunService{store: store}
}

// ListRuns lists recorded runs newest first. A non-positive limit uses the
// default; larger limits are capped.
func (s *RunService) ListRuns(ctx context.Context, limit int) ([]*interfaces.RunRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.store.ListRuns(ctx, limit)
}

// GetRun retrieves a recorded run by id
func (s *RunService) GetRun(ctx context.Context, id string) (*interfaces.RunRecord, error) {
	return s.store.GetRun(ctx, id)
}

// LatestRun retrieves the most recently recorded run
func (s *RunService) LatestRun(ctx context.Context) (*interfaces.RunRecord, error) {
	return s.store.LatestRun(ctx)
}
