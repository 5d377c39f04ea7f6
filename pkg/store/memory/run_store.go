// Package memory keeps run history in process memory, for the CLI and for
// servers started without MySQL.
package memory

import (
	"context"
	"sort"
	"sync"

	"stagecost/pkg/interfaces"
)

// RunStore is a bounded in-memory interfaces.RunStore
type RunStore struct {
	mu   sync.RWMutex
	runs []*interfaces.RunRecord // oldest first
	max  int
}

// NewRunStore keeps at most max runs; max <= 0 keeps everything
func NewRunStore(max int) *RunStore {
	return &RunStore{max: max}
}

var _ interfaces.RunStore = (*RunStore)(nil)

// SaveRun stores a copy of run, evicting the oldest run when full
func (s *RunStore) SaveRun(ctx context.Context, run *interfaces.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = append(s.runs, clone(run))
	sort.SliceStable(s.runs, func(i, j int) bool {
		return s.runs[i].AnalyzedAt.Before(s.runs[j].AnalyzedAt)
	})
	if s.max > 0 && len(s.runs) > s.max {
		s.runs = append([]*interfaces.RunRecord(nil), s.runs[len(s.runs)-s.max:]...)
	}
	return nil
}

// GetRun retrieves a run by id
func (s *RunStore) GetRun(ctx context.Context, id string) (*interfaces.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.runs {
		if r.ID == id {
			return clone(r), nil
		}
	}
	return nil, interfaces.ErrRunNotFound
}

// LatestRun retrieves the most recently analyzed run
func (s *RunStore) LatestRun(ctx context.Context) (*interfaces.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.runs) == 0 {
		return nil, interfaces.ErrRunNotFound
	}
	return clone(s.runs[len(s.runs)-1]), nil
}

// ListRuns lists runs newest first
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]*interfaces.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.runs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*interfaces.RunRecord, 0, n)
	for i := len(s.runs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, clone(s.runs[i]))
	}
	return out, nil
}

func clone(r *interfaces.RunRecord) *interfaces.RunRecord {
	c := *r
	c.Stages = append([]interfaces.StageRecord(nil), r.Stages...)
	return &c
}
