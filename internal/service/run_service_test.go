package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"stagecost/pkg/interfaces"
	"stagecost/pkg/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunService_ListLimits(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRunStore(0)
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		require.NoError(t, store.SaveRun(ctx, &interfaces.RunRecord{
			ID:         fmt.Sprint(i),
			AnalyzedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	svc := NewRunService(store)

	runs, err := svc.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, defaultListLimit)
	assert.Equal(t, "29", runs[0].ID)

	runs, err = svc.ListRuns(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, runs, 5)

	runs, err = svc.ListRuns(ctx, 10000)
	require.NoError(t, err)
	assert.Len(t, runs, 30)

	latest, err := svc.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "29", latest.ID)

	_, err = svc.GetRun(ctx, "missing")
	assert.True(t, errors.Is(err, interfaces.ErrRunNotFound))
}

type stubLock struct {
	free     bool
	err      error
	unlocked int
}

func (l *stubLock) TryLock(ctx context.Context) (bool, error) { return l.free, l.err }
func (l *stubLock) Unlock(ctx context.Context) error {
	l.unlocked++
	return nil
}

func TestRefreshService_Refresh(t *testing.T) {
	dir := t.TempDir()
	timingFile := writeTemp(t, dir, "time_unix.txt", timingLog)
	resourceFile := writeTemp(t, dir, "resources.cfg", resourceTable)
	store := memory.NewRunStore(0)
	lock := &stubLock{free: true}
	svc := NewRefreshService(newAnalysisService(dir, nil, store), timingFile, resourceFile, false, lock)
	ctx := context.Background()

	run, err := svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "14", run.TotalCost)
	assert.Equal(t, 1, lock.unlocked)

	stored, err := store.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, run.ID, stored.ID)
}

func TestRefreshService_LockHeldElsewhere(t *testing.T) {
	dir := t.TempDir()
	store := memory.NewRunStore(0)
	svc := NewRefreshService(newAnalysisService(dir, nil, store),
		filepath.Join(dir, "t.txt"), filepath.Join(dir, "r.cfg"), false, &stubLock{free: false})

	_, err := svc.Refresh(context.Background())
	assert.True(t, errors.Is(err, ErrRefreshInProgress))

	runs, _ := store.ListRuns(context.Background(), 0)
	assert.Empty(t, runs)
}

func TestRefreshService_LockError(t *testing.T) {
	dir := t.TempDir()
	svc := NewRefreshService(newAnalysisService(dir, nil, nil),
		filepath.Join(dir, "t.txt"), filepath.Join(dir, "r.cfg"), false, &stubLock{err: errors.New("redis down")})

	_, err := svc.Refresh(context.Background())
	assert.EqualError(t, err, "redis down")
}

func TestRefreshService_MissingTimingLog(t *testing.T) {
	dir := t.TempDir()
	svc := NewRefreshService(newAnalysisService(dir, nil, nil),
		filepath.Join(dir, "t.txt"), filepath.Join(dir, "r.cfg"), false, nil)

	_, err := svc.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to analyze")
}
