package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run id (or any run) is unknown to the store
var ErrRunNotFound = errors.New("run not found")

// RunStore run history storage interface
// Supports in-memory and MySQL backends.
type RunStore interface {
	// SaveRun saves one analysis result
	SaveRun(ctx context.Context, run *RunRecord) error

	// GetRun retrieves a run by id
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// LatestRun retrieves the most recently analyzed run
	LatestRun(ctx context.Context) (*RunRecord, error)

	// ListRuns lists runs, newest first
	// limit: maximum number of runs, <= 0 means all
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)
}

// RunRecord one analyzed run. Durations are whole seconds.
type RunRecord struct {
	ID         string    `json:"id"`
	TimingFile string    `json:"timingFile"`
	Submitted  time.Time `json:"submitted"`
	Finished   time.Time `json:"finished"`

	TotalSeconds int64 `json:"totalSeconds"` // submission to last finish
	RunSeconds   int64 `json:"runSeconds"`   // sum of stage spans
	QueueSeconds int64 `json:"queueSeconds"` // total minus run

	TaskCount    int    `json:"taskCount"`
	SkippedLines int    `json:"skippedLines"`
	TotalCost    string `json:"totalCost"` // decimal string, full precision
	Currency     string `json:"currency"`
	CostError    string `json:"costError,omitempty"` // set when stage and resource tables disagree

	Stages []StageRecord `json:"stages"`

	AnalyzedAt time.Time `json:"analyzedAt"`
}

// StageRecord one stage of a run
type StageRecord struct {
	Seq   int    `json:"seq"` // 1-based
	Stage string `json:"stage"`
	JobID string `json:"jobId"`

	Start  time.Time `json:"start"`
	Finish time.Time `json:"finish"`

	TaskCount      int   `json:"taskCount"`
	ElapsedSeconds int64 `json:"elapsedSeconds"`
	QueueSeconds   int64 `json:"queueSeconds"`
	MeanSeconds    int64 `json:"meanSeconds"`
	StdSeconds     int64 `json:"stdSeconds"`

	// Cost fields, empty when cost could not be computed
	CPUs  int    `json:"cpus"`
	GPUs  int    `json:"gpus"`
	Units string `json:"units,omitempty"`
	Cost  string `json:"cost,omitempty"`

	// Max memory usage, empty until the accounting pass ran
	MaxRSSTask string `json:"maxRssTask,omitempty"`
	MaxRSS     string `json:"maxRss,omitempty"`
	ReqMem     string `json:"reqMem,omitempty"`
	UsageError string `json:"usageError,omitempty"`
}
