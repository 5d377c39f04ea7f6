package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"stagecost/pkg/interfaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(id string, at time.Time) *interfaces.RunRecord {
	return &interfaces.RunRecord{
		ID:         id,
		AnalyzedAt: at,
		Stages:     []interfaces.StageRecord{{Seq: 1, Stage: "s"}},
	}
}

func TestRunStore(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	store := NewRunStore(0)

	_, err := store.LatestRun(ctx)
	assert.True(t, errors.Is(err, interfaces.ErrRunNotFound))

	require.NoError(t, store.SaveRun(ctx, run("b", base.Add(time.Hour))))
	require.NoError(t, store.SaveRun(ctx, run("a", base)))
	require.NoError(t, store.SaveRun(ctx, run("c", base.Add(2*time.Hour))))

	latest, err := store.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c", latest.ID)

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"c", "b", "a"}, ids)

	runs, err = store.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	got, err := store.GetRun(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", got.ID)

	_, err = store.GetRun(ctx, "zzz")
	assert.True(t, errors.Is(err, interfaces.ErrRunNotFound))
}

func TestRunStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore(0)
	original := run("x", time.Now())
	require.NoError(t, store.SaveRun(ctx, original))

	original.Stages[0].Stage = "mutated"
	got, err := store.GetRun(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "s", got.Stages[0].Stage)

	got.Stages[0].Stage = "mutated again"
	again, _ := store.GetRun(ctx, "x")
	assert.Equal(t, "s", again.Stages[0].Stage)
}

func TestRunStore_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	base := time.Now()
	store := NewRunStore(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.SaveRun(ctx, run(fmt.Sprint(i), base.Add(time.Duration(i)*time.Minute))))
	}

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "4", runs[0].ID)
	assert.Equal(t, "2", runs[2].ID)

	_, err = store.GetRun(ctx, "0")
	assert.Error(t, err)
}
