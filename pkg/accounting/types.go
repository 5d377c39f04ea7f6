// Package accounting turns Slurm accounting dumps (sacct output for one job
// id) into one row per task-array element.
package accounting

import (
	"fmt"
	"strings"
	"time"
)

// StepMode selects which job step represents an array element.
type StepMode int

const (
	// StepModeSrun keeps the numbered steps ".0" to ".9" created by srun.
	StepModeSrun StepMode = iota
	// StepModeBatch keeps the ".batch" step.
	StepModeBatch
)

// ParseStepMode maps the configuration value to a StepMode.
func ParseStepMode(s string) (StepMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "srun", "":
		return StepModeSrun, nil
	case "batch":
		return StepModeBatch, nil
	default:
		return StepModeSrun, fmt.Errorf("unknown step mode %q", s)
	}
}

func (m StepMode) String() string {
	switch m {
	case StepModeSrun:
		return "srun"
	case StepModeBatch:
		return "batch"
	default:
		return fmt.Sprintf("StepMode(%d)", int(m))
	}
}

// matches reports whether a step suffix (the text after the last ".") is the
// representative step under this mode.
func (m StepMode) matches(suffix string) bool {
	switch m {
	case StepModeSrun:
		return isNumericStep(suffix)
	case StepModeBatch:
		return suffix == "batch"
	}
	return false
}

func isNumericStep(suffix string) bool {
	return len(suffix) == 1 && suffix[0] >= '0' && suffix[0] <= '9'
}

// AccountingRow is the selected step of one array element.
type AccountingRow struct {
	TaskID      string        `json:"task_id"`
	NodeList    string        `json:"node_list"`
	ReqMem      string        `json:"req_mem"`
	MaxRSS      string        `json:"max_rss"`
	MaxRSSBytes int64         `json:"max_rss_bytes"`
	MaxVMSize   string        `json:"max_vm_size"`
	AveRSS      string        `json:"ave_rss"`
	AveVMSize   string        `json:"ave_vm_size"`
	Elapsed     time.Duration `json:"elapsed"`
	ElapsedRaw  string        `json:"elapsed_raw"`
	State       string        `json:"state"`
}

// Stats counts what the normalizer saw in one dump.
type Stats struct {
	Elements       int  // rows without a step separator
	Rows           int  // rows emitted
	DroppedNoStep  int  // elements without a step matching the mode
	DroppedBadSize int  // elements whose MaxRSS did not convert
	MixedSteps     bool // dump has both numbered and batch steps
}

// FetchError is returned when a job's accounting could not be retrieved.
type FetchError struct {
	JobID    string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch accounting for job %s after %d attempt(s): %v", e.JobID, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StageUsage is the largest-memory task of one stage, or why there is none.
type StageUsage struct {
	Seq   int            `json:"seq"` // 1-based
	Stage string         `json:"stage"`
	JobID string         `json:"job_id"`
	Max   *AccountingRow `json:"max,omitempty"`
	Rows  int            `json:"rows"`
	Stats Stats          `json:"-"`
	Err   error          `json:"-"`
	// Reason is Err as text, for the JSON output
	Reason string `json:"reason,omitempty"`
}

// Failed reports whether the stage has no usable accounting row.
func (u StageUsage) Failed() bool {
	return u.Max == nil
}
