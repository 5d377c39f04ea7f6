package mysql

import (
	"context"
	"errors"
	"fmt"

	"stagecost/pkg/interfaces"
	"stagecost/pkg/store/mysql/model"

	"gorm.io/gorm"
)

// RunRepository persists analyzed runs; implements interfaces.RunStore
type RunRepository struct {
	ds *Datastore
}

// NewRunRepository creates a new run repository
func NewRunRepository(ds *Datastore) *RunRepository {
	return &RunRepository{ds: ds}
}

var _ interfaces.RunStore = (*RunRepository)(nil)

func preloadStages(db *gorm.DB) *gorm.DB {
	return db.Order("seq ASC")
}

// SaveRun stores a run and its stages in one transaction
func (r *RunRepository) SaveRun(ctx context.Context, run *interfaces.RunRecord) error {
	row := FromRunDomain(run)
	return r.ds.ExecTx(ctx, func(ctx context.Context) error {
		if err := r.ds.DB(ctx).Omit("Stages").Create(row).Error; err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		if len(row.Stages) == 0 {
			return nil
		}
		if err := r.ds.DB(ctx).Create(&row.Stages).Error; err != nil {
			return fmt.Errorf("failed to save run stages: %w", err)
		}
		return nil
	})
}

// GetRun retrieves a run by its run id
func (r *RunRepository) GetRun(ctx context.Context, id string) (*interfaces.RunRecord, error) {
	var row model.Run
	err := r.ds.DB(ctx).Preload("Stages", preloadStages).Where("run_id = ?", id).First(&row).Error
	if err != nil {
		return nil, wrapNotFound(err, "failed to get run")
	}
	return ToRunDomain(&row), nil
}

// LatestRun retrieves the most recently analyzed run
func (r *RunRepository) LatestRun(ctx context.Context) (*interfaces.RunRecord, error) {
	var row model.Run
	err := r.ds.DB(ctx).Preload("Stages", preloadStages).Order("analyzed_at DESC, id DESC").First(&row).Error
	if err != nil {
		return nil, wrapNotFound(err, "failed to get latest run")
	}
	return ToRunDomain(&row), nil
}

// ListRuns lists runs newest first; limit <= 0 means all
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]*interfaces.RunRecord, error) {
	var rows []*model.Run
	query := r.ds.DB(ctx).Preload("Stages", preloadStages).Order("analyzed_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]*interfaces.RunRecord, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, ToRunDomain(row))
	}
	return runs, nil
}

func wrapNotFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return interfaces.ErrRunNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}
