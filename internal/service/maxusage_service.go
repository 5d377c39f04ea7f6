package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"stagecost/internal/report"
	"stagecost/pkg/accounting"
	"stagecost/pkg/interfaces"
	"stagecost/pkg/logger"
	"stagecost/pkg/timing"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MaxUsageConfig controls the accounting pass
type MaxUsageConfig struct {
	Mode    accounting.StepMode
	Workers int
	MemDir  string // raw and condensed dumps, and the summary file, go here
	MemFile string
	SaveRaw bool
}

// MaxUsageService finds the largest-memory task of every stage
type MaxUsageService struct {
	source interfaces.AccountingSource
	cfg    MaxUsageConfig
}

// NewMaxUsageService creates a new max-usage service
func NewMaxUsageService(source interfaces.AccountingSource, cfg MaxUsageConfig) *MaxUsageService {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &MaxUsageService{source: source, cfg: cfg}
}

// Collect fetches and normalizes accounting for each stage's job on a
// bounded worker pool. Results keep stage order; a stage whose accounting
// cannot be fetched or has no usable rows gets a failed entry.
func (s *MaxUsageService) Collect(ctx context.Context, stages []timing.StageSummary) []accounting.StageUsage {
	if s.cfg.SaveRaw && s.cfg.MemDir != "" {
		if err := os.MkdirAll(s.cfg.MemDir, 0755); err != nil {
			logger.WarnCtx(ctx, "cannot create %s, dumps will not be saved: %v", s.cfg.MemDir, err)
		}
	}

	usages := make([]accounting.StageUsage, len(stages))
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, stage := range stages {
		i, stage := i, stage
		g.Go(func() error {
			usages[i] = s.collectStage(ctx, i+1, stage)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, u := range usages {
		if u.Failed() {
			failed++
		}
	}
	if failed > 0 {
		logger.WarnCtx(ctx, "no memory usage for %d of %d stage(s)", failed, len(usages))
	}
	return usages
}

func (s *MaxUsageService) collectStage(ctx context.Context, seq int, stage timing.StageSummary) accounting.StageUsage {
	usage := accounting.StageUsage{Seq: seq, Stage: stage.Stage, JobID: stage.JobID}
	fail := func(err error) accounting.StageUsage {
		usage.Err = err
		usage.Reason = err.Error()
		logger.Warn("stage memory usage unavailable",
			zap.String("run_id", logger.RunID(ctx)),
			zap.Int("seq", seq),
			zap.String("stage", stage.Stage),
			zap.String("job_id", stage.JobID),
			zap.Error(err))
		return usage
	}

	text, err := s.source.Fetch(ctx, stage.JobID)
	if err != nil {
		return fail(err)
	}
	s.save(ctx, fmt.Sprintf("%d_%s_sacct.txt", seq, stage.JobID), []byte(text))

	rows, stats, err := accounting.Normalize(text, s.cfg.Mode)
	usage.Stats = stats
	if err != nil {
		return fail(fmt.Errorf("job %s: %w", stage.JobID, err))
	}
	if stats.MixedSteps {
		logger.WarnCtx(ctx, "job %s has both numbered and batch steps, using %s steps", stage.JobID, s.cfg.Mode)
	}

	var condensed bytes.Buffer
	if err := accounting.WriteCondensed(&condensed, rows); err == nil {
		s.save(ctx, fmt.Sprintf("%d_%s.txt", seq, stage.JobID), condensed.Bytes())
	}

	usage.Rows = len(rows)
	idx := accounting.MaxUsage(rows)
	if idx < 0 {
		return fail(fmt.Errorf("no usable accounting rows for job %s (%d elements, %d without %s step, %d with bad MaxRSS)",
			stage.JobID, stats.Elements, stats.DroppedNoStep, s.cfg.Mode, stats.DroppedBadSize))
	}
	top := rows[idx]
	usage.Max = &top
	return usage
}

func (s *MaxUsageService) save(ctx context.Context, name string, data []byte) {
	if !s.cfg.SaveRaw || s.cfg.MemDir == "" {
		return
	}
	path := filepath.Join(s.cfg.MemDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		logger.WarnCtx(ctx, "failed to save %s: %v", path, err)
	}
}

// WriteReport writes the max-usage table to MemDir/MemFile and returns its path
func (s *MaxUsageService) WriteReport(usages []accounting.StageUsage) (string, error) {
	dir := s.cfg.MemDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, s.cfg.MemFile)

	var buf bytes.Buffer
	if err := report.WriteMaxUsage(&buf, usages); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write max usage report: %w", err)
	}
	return path, nil
}
