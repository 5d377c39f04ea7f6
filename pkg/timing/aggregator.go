package timing

import (
	"math"
	"time"
)

// StageSummary describes one stage's task array.
type StageSummary struct {
	Stage     string    `json:"stage"`
	JobID     string    `json:"job_id"`
	Start     time.Time `json:"start"`
	Finish    time.Time `json:"finish"`
	TaskCount int       `json:"task_count"`

	// TotalElapsed is the wall-clock span Finish-Start. It exceeds ArrayMean
	// when array elements queued behind each other.
	TotalElapsed time.Duration `json:"total_elapsed"`
	ArrayMean    time.Duration `json:"array_mean"`
	ArrayStd     time.Duration `json:"array_std"`
	MaxElapsed   time.Duration `json:"max_elapsed"`

	// QueueTime is the idle gap before this stage started: since submission
	// for the first stage, since the previous stage finished otherwise. It
	// may be negative.
	QueueTime time.Duration `json:"queue_time"`
}

// Timeline is the ordered stage list of one run.
type Timeline struct {
	Submitted time.Time      `json:"submitted"`
	Stages    []StageSummary `json:"stages"`
}

// Aggregate groups records by stage in order of first appearance and
// computes each stage's span, array statistics and queue time.
func Aggregate(records []TaskRecord, submitted time.Time) *Timeline {
	order := make([]string, 0)
	groups := make(map[string][]TaskRecord)
	for _, rec := range records {
		if _, seen := groups[rec.Stage]; !seen {
			order = append(order, rec.Stage)
		}
		groups[rec.Stage] = append(groups[rec.Stage], rec)
	}

	tl := &Timeline{
		Submitted: submitted,
		Stages:    make([]StageSummary, 0, len(order)),
	}
	for _, stage := range order {
		tl.Stages = append(tl.Stages, summarize(stage, groups[stage]))
	}

	// queue time needs the previous stage's finish
	for i := range tl.Stages {
		if i == 0 {
			tl.Stages[i].QueueTime = tl.Stages[i].Start.Sub(submitted)
			continue
		}
		tl.Stages[i].QueueTime = tl.Stages[i].Start.Sub(tl.Stages[i-1].Finish)
	}
	return tl
}

func summarize(stage string, members []TaskRecord) StageSummary {
	s := StageSummary{
		Stage:     stage,
		JobID:     members[0].JobID,
		Start:     members[0].Start,
		Finish:    members[0].Finish,
		TaskCount: len(members),
	}

	var sum float64
	for _, m := range members {
		if m.Start.Before(s.Start) {
			s.Start = m.Start
		}
		if m.Finish.After(s.Finish) {
			s.Finish = m.Finish
		}
		if m.Elapsed > s.MaxElapsed {
			s.MaxElapsed = m.Elapsed
		}
		sum += float64(m.Elapsed)
	}
	s.TotalElapsed = s.Finish.Sub(s.Start)

	n := float64(len(members))
	mean := sum / n
	s.ArrayMean = time.Duration(math.Round(mean))

	if len(members) > 1 {
		var sq float64
		for _, m := range members {
			d := float64(m.Elapsed) - mean
			sq += d * d
		}
		s.ArrayStd = time.Duration(math.Round(math.Sqrt(sq / n)))
	}
	return s
}

// End is the last stage's finish, or the submission time for an empty run.
func (t *Timeline) End() time.Time {
	if len(t.Stages) == 0 {
		return t.Submitted
	}
	return t.Stages[len(t.Stages)-1].Finish
}

// TotalTime is the time from submission to the last stage's finish.
func (t *Timeline) TotalTime() time.Duration {
	return t.End().Sub(t.Submitted)
}

// TotalRunTime sums the stages' wall-clock spans.
func (t *Timeline) TotalRunTime() time.Duration {
	var total time.Duration
	for _, s := range t.Stages {
		total += s.TotalElapsed
	}
	return total
}

// TotalQueueTime is the part of TotalTime during which no stage ran.
func (t *Timeline) TotalQueueTime() time.Duration {
	return t.TotalTime() - t.TotalRunTime()
}

// TaskCount is the number of records folded into the timeline.
func (t *Timeline) TaskCount() int {
	n := 0
	for _, s := range t.Stages {
		n += s.TaskCount
	}
	return n
}

// StageNames lists the stages in order.
func (t *Timeline) StageNames() []string {
	names := make([]string, len(t.Stages))
	for i, s := range t.Stages {
		names[i] = s.Stage
	}
	return names
}
