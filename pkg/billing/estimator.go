// Package billing prices a run's stages in CPU-equivalent hours.
package billing

import (
	"fmt"
	"strings"
	"time"

	"stagecost/pkg/resource"
	"stagecost/pkg/timing"

	"github.com/shopspring/decimal"
)

var secondsPerHour = decimal.NewFromInt(3600)

// Policy is the rate card applied to a run.
type Policy struct {
	Rate      decimal.Decimal // currency per CPU-equivalent hour
	GPUWeight decimal.Decimal // CPU-equivalents per GPU
}

// NewPolicy builds a Policy from configuration values.
func NewPolicy(rate, gpuWeight float64) Policy {
	return Policy{
		Rate:      decimal.NewFromFloat(rate),
		GPUWeight: decimal.NewFromFloat(gpuWeight),
	}
}

// CostEntry is the price of one stage.
type CostEntry struct {
	Stage string          `json:"stage"`
	CPUs  int             `json:"cpus"`
	GPUs  int             `json:"gpus"`
	Units decimal.Decimal `json:"units"`
	Cost  decimal.Decimal `json:"cost"`
}

// Estimate is the priced run.
type Estimate struct {
	Entries []CostEntry     `json:"entries"`
	Total   decimal.Decimal `json:"total"`
}

// ConsistencyError reports stage and resource tables that do not describe
// the same stages in the same order.
type ConsistencyError struct {
	Stages    []string
	Resources []string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("stage list does not match resource table: stages [%s], resources [%s]",
		strings.Join(e.Stages, " "), strings.Join(e.Resources, " "))
}

// Price computes one CostEntry per stage. Units are
// (CPUs per task + GPU weight x GPUs) x tasks x mean hours, where the mean
// elapsed time is truncated to whole seconds. Nothing is computed when the
// two lists differ in length or names.
func Price(stages []timing.StageSummary, specs []resource.Spec, policy Policy) (*Estimate, error) {
	if err := checkConsistency(stages, specs); err != nil {
		return nil, err
	}

	est := &Estimate{
		Entries: make([]CostEntry, len(stages)),
		Total:   decimal.Zero,
	}
	for i, stage := range stages {
		spec := specs[i]
		hours := decimal.NewFromInt(int64(stage.ArrayMean / time.Second)).Div(secondsPerHour)
		perTask := decimal.NewFromInt(int64(spec.CPUsPerTask)).
			Add(policy.GPUWeight.Mul(decimal.NewFromInt(int64(spec.GPUs))))
		units := perTask.Mul(decimal.NewFromInt(int64(stage.TaskCount))).Mul(hours)
		cost := units.Mul(policy.Rate)

		est.Entries[i] = CostEntry{
			Stage: stage.Stage,
			CPUs:  spec.CPUsPerTask,
			GPUs:  spec.GPUs,
			Units: units,
			Cost:  cost,
		}
		est.Total = est.Total.Add(cost)
	}
	return est, nil
}

func checkConsistency(stages []timing.StageSummary, specs []resource.Spec) error {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Stage
	}
	resNames := resource.Names(specs)

	mismatch := len(names) != len(resNames)
	for i := 0; !mismatch && i < len(names); i++ {
		mismatch = names[i] != resNames[i]
	}
	if mismatch {
		return &ConsistencyError{Stages: names, Resources: resNames}
	}
	return nil
}
