// Package timing reads the per-task timing log written by the stage job
// scripts and folds it into per-stage summaries.
package timing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TaskRecord is one array element of one stage, as logged by the job script.
type TaskRecord struct {
	Stage      string        `json:"stage"`
	JobID      string        `json:"job_id"`
	ArrayIndex string        `json:"array_index"`
	Start      time.Time     `json:"start"`
	Finish     time.Time     `json:"finish"`
	Elapsed    time.Duration `json:"elapsed"`
}

// ParseError reports a timing line that does not have the six-field shape.
type ParseError struct {
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("timing line %d: %s: %q", e.Line, e.Reason, e.Text)
}

const recordFields = 6

// ParseRecord parses "stage jobid array start finish elapsed", the last
// three being epoch-second integers.
func ParseRecord(line string) (TaskRecord, error) {
	fields := strings.Fields(line)
	if len(fields) != recordFields {
		return TaskRecord{}, fmt.Errorf("expected %d fields, got %d", recordFields, len(fields))
	}

	var nums [3]int64
	for i, f := range fields[3:] {
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return TaskRecord{}, fmt.Errorf("field %d is not an integer: %q", i+4, f)
		}
		nums[i] = n
	}

	return TaskRecord{
		Stage:      fields[0],
		JobID:      fields[1],
		ArrayIndex: fields[2],
		Start:      time.Unix(nums[0], 0).UTC(),
		Finish:     time.Unix(nums[1], 0).UTC(),
		Elapsed:    time.Duration(nums[2]) * time.Second,
	}, nil
}
