package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"stagecost/internal/report"
	"stagecost/pkg/accounting"
	"stagecost/pkg/billing"
	"stagecost/pkg/interfaces"
	"stagecost/pkg/logger"
	"stagecost/pkg/resource"
	"stagecost/pkg/timing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AnalysisConfig is the policy an analysis runs under
type AnalysisConfig struct {
	Policy           billing.Policy
	Currency         string
	Location         *time.Location
	ZoneName         string
	SubmitOffset     int
	CPUsPerNodeLimit int
	SummaryFile      string // empty: not written
	JSONFile         string // empty: not written
}

// Analysis is the result of one analysis of a run
type Analysis struct {
	RunID      string                  `json:"run_id"`
	TimingFile string                  `json:"timing_file"`
	AnalyzedAt time.Time               `json:"analyzed_at"`
	Timeline   *timing.Timeline        `json:"timeline"`
	Skipped    []*timing.ParseError    `json:"skipped_lines,omitempty"`
	Resources  []resource.Spec         `json:"resources,omitempty"`
	Estimate   *billing.Estimate       `json:"estimate,omitempty"`
	CostErr    error                   `json:"-"`
	CostError  string                  `json:"cost_error,omitempty"`
	Warnings   []string                `json:"warnings,omitempty"`
	Usage      []accounting.StageUsage `json:"usage,omitempty"`
}

// Summary returns the printable summary of the analysis
func (a *Analysis) Summary(cfg AnalysisConfig) report.Summary {
	return report.Summary{
		Timeline: a.Timeline,
		Estimate: a.Estimate,
		CostErr:  a.CostErr,
		Location: cfg.Location,
		ZoneName: cfg.ZoneName,
		Currency: cfg.Currency,
	}
}

// AnalysisService reads the timing log and resource table of a run and
// prices it, optionally adding the memory pass and recording the result
type AnalysisService struct {
	cfg   AnalysisConfig
	usage *MaxUsageService  // nil: no memory pass
	store interfaces.RunStore // nil: results are not recorded
}

// NewAnalysisService creates a new analysis service
func NewAnalysisService(cfg AnalysisConfig, usage *MaxUsageService, store interfaces.RunStore) *AnalysisService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &AnalysisService{cfg: cfg, usage: usage, store: store}
}

// Config returns the policy the service runs under
func (s *AnalysisService) Config() AnalysisConfig {
	return s.cfg
}

// Analyze builds the timeline and cost of a run. Only an unreadable timing
// log is an error; a missing or inconsistent resource table leaves the
// estimate empty with CostErr set.
func (s *AnalysisService) Analyze(ctx context.Context, timingFile, resourceFile string) (*Analysis, error) {
	a := &Analysis{
		RunID:      uuid.NewString(),
		TimingFile: timingFile,
		AnalyzedAt: time.Now().UTC(),
	}
	ctx = logger.WithRunID(ctx, a.RunID)

	log, err := timing.ReadFile(timingFile, s.cfg.SubmitOffset)
	if err != nil {
		return nil, err
	}
	a.Skipped = log.Skipped
	for _, pe := range log.Skipped {
		logger.DebugCtx(ctx, "skipped %v", pe)
	}
	if n := len(log.Skipped); n > 0 {
		logger.WarnCtx(ctx, "skipped %d malformed line(s) in %s", n, timingFile)
	}

	a.Timeline = timing.Aggregate(log.Records, log.Submitted)
	logger.Info("timing aggregated",
		zap.String("run_id", a.RunID),
		zap.Int("records", len(log.Records)),
		zap.Int("stages", len(a.Timeline.Stages)))
	for _, st := range a.Timeline.Stages {
		if st.QueueTime < 0 {
			a.warn(ctx, fmt.Sprintf("stage %s started %s before the previous stage finished", st.Stage, report.FormatDuration(-st.QueueTime)))
		}
	}

	specs, err := resource.LoadFile(resourceFile)
	if err != nil {
		a.setCostErr(ctx, err)
		return a, nil
	}
	a.Resources = specs
	for _, p := range resource.Check(specs, s.cfg.CPUsPerNodeLimit) {
		a.warn(ctx, p)
	}

	est, err := billing.Price(a.Timeline.Stages, specs, s.cfg.Policy)
	if err != nil {
		a.setCostErr(ctx, err)
		return a, nil
	}
	a.Estimate = est
	for i, st := range a.Timeline.Stages {
		if specs[i].WalltimeReached(st.MaxElapsed) {
			a.warn(ctx, fmt.Sprintf("stage %s: a task ran %s, reaching the requested walltime %s",
				st.Stage, report.FormatDuration(st.MaxElapsed), specs[i].WalltimeRaw))
		}
	}
	return a, nil
}

// CollectUsage runs the memory pass for an analysis
func (s *AnalysisService) CollectUsage(ctx context.Context, a *Analysis) error {
	if s.usage == nil {
		return fmt.Errorf("accounting is not configured")
	}
	a.Usage = s.usage.Collect(logger.WithRunID(ctx, a.RunID), a.Timeline.Stages)
	return nil
}

// WriteUsageReport writes the memory table of an analysis
func (s *AnalysisService) WriteUsageReport(a *Analysis) (string, error) {
	if s.usage == nil {
		return "", fmt.Errorf("accounting is not configured")
	}
	return s.usage.WriteReport(a.Usage)
}

// WriteReports writes the summary file and the JSON file, when configured
func (s *AnalysisService) WriteReports(a *Analysis) error {
	if s.cfg.SummaryFile != "" {
		var buf bytes.Buffer
		if err := report.WriteSummary(&buf, a.Summary(s.cfg)); err != nil {
			return err
		}
		if err := writeFile(s.cfg.SummaryFile, buf.Bytes()); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}
	if s.cfg.JSONFile != "" {
		var buf bytes.Buffer
		if err := report.WriteJSON(&buf, a); err != nil {
			return err
		}
		if err := writeFile(s.cfg.JSONFile, buf.Bytes()); err != nil {
			return fmt.Errorf("failed to write json report: %w", err)
		}
	}
	return nil
}

// Record stores the analysis in the run store
func (s *AnalysisService) Record(ctx context.Context, a *Analysis) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.SaveRun(ctx, ToRunRecord(a, s.cfg.Currency)); err != nil {
		return fmt.Errorf("failed to record run %s: %w", a.RunID, err)
	}
	return nil
}

func (a *Analysis) warn(ctx context.Context, msg string) {
	a.Warnings = append(a.Warnings, msg)
	logger.WarnCtx(ctx, "%s", msg)
}

func (a *Analysis) setCostErr(ctx context.Context, err error) {
	a.CostErr = err
	a.CostError = err.Error()
	logger.ErrorCtx(ctx, "cost estimate unavailable: %v", err)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// ToRunRecord converts an analysis to its stored form
func ToRunRecord(a *Analysis, currency string) *interfaces.RunRecord {
	tl := a.Timeline
	run := &interfaces.RunRecord{
		ID:           a.RunID,
		TimingFile:   a.TimingFile,
		Submitted:    tl.Submitted,
		Finished:     tl.End(),
		TotalSeconds: seconds(tl.TotalTime()),
		RunSeconds:   seconds(tl.TotalRunTime()),
		QueueSeconds: seconds(tl.TotalQueueTime()),
		TaskCount:    tl.TaskCount(),
		SkippedLines: len(a.Skipped),
		Currency:     currency,
		CostError:    a.CostError,
		AnalyzedAt:   a.AnalyzedAt,
		Stages:       make([]interfaces.StageRecord, len(tl.Stages)),
	}
	if a.Estimate != nil {
		run.TotalCost = a.Estimate.Total.String()
	}

	for i, st := range tl.Stages {
		rec := interfaces.StageRecord{
			Seq:            i + 1,
			Stage:          st.Stage,
			JobID:          st.JobID,
			Start:          st.Start,
			Finish:         st.Finish,
			TaskCount:      st.TaskCount,
			ElapsedSeconds: seconds(st.TotalElapsed),
			QueueSeconds:   seconds(st.QueueTime),
			MeanSeconds:    seconds(st.ArrayMean),
			StdSeconds:     seconds(st.ArrayStd),
		}
		if a.Estimate != nil {
			e := a.Estimate.Entries[i]
			rec.CPUs, rec.GPUs = e.CPUs, e.GPUs
			rec.Units, rec.Cost = e.Units.String(), e.Cost.String()
		}
		if i < len(a.Usage) {
			u := a.Usage[i]
			if u.Max != nil {
				rec.MaxRSSTask, rec.MaxRSS, rec.ReqMem = u.Max.TaskID, u.Max.MaxRSS, u.Max.ReqMem
			} else {
				rec.UsageError = u.Reason
			}
		}
		run.Stages[i] = rec
	}
	return run
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
