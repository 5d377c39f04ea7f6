package mysql

import (
	"stagecost/pkg/interfaces"
	"stagecost/pkg/store/mysql/model"
)

// ToRunDomain converts a MySQL run with its stages to the domain record
func ToRunDomain(row *model.Run) *interfaces.RunRecord {
	if row == nil {
		return nil
	}

	run := &interfaces.RunRecord{
		ID:           row.RunID,
		TimingFile:   row.TimingFile,
		Submitted:    row.SubmittedAt.UTC(),
		Finished:     row.FinishedAt.UTC(),
		TotalSeconds: row.TotalSeconds,
		RunSeconds:   row.RunSeconds,
		QueueSeconds: row.QueueSeconds,
		TaskCount:    row.TaskCount,
		SkippedLines: row.SkippedLines,
		TotalCost:    row.TotalCost,
		Currency:     row.Currency,
		CostError:    row.CostError,
		AnalyzedAt:   row.AnalyzedAt.UTC(),
		Stages:       make([]interfaces.StageRecord, 0, len(row.Stages)),
	}
	for _, s := range row.Stages {
		run.Stages = append(run.Stages, interfaces.StageRecord{
			Seq:            s.Seq,
			Stage:          s.Stage,
			JobID:          s.JobID,
			Start:          s.StartAt.UTC(),
			Finish:         s.FinishAt.UTC(),
			TaskCount:      s.TaskCount,
			ElapsedSeconds: s.ElapsedSeconds,
			QueueSeconds:   s.QueueSeconds,
			MeanSeconds:    s.MeanSeconds,
			StdSeconds:     s.StdSeconds,
			CPUs:           s.CPUs,
			GPUs:           s.GPUs,
			Units:          s.Units,
			Cost:           s.Cost,
			MaxRSSTask:     s.MaxRSSTask,
			MaxRSS:         s.MaxRSS,
			ReqMem:         s.ReqMem,
			UsageError:     s.UsageError,
		})
	}
	return run
}

// FromRunDomain converts a domain run record to its MySQL rows
func FromRunDomain(run *interfaces.RunRecord) *model.Run {
	if run == nil {
		return nil
	}

	row := &model.Run{
		RunID:        run.ID,
		TimingFile:   run.TimingFile,
		SubmittedAt:  run.Submitted,
		FinishedAt:   run.Finished,
		TotalSeconds: run.TotalSeconds,
		RunSeconds:   run.RunSeconds,
		QueueSeconds: run.QueueSeconds,
		TaskCount:    run.TaskCount,
		SkippedLines: run.SkippedLines,
		TotalCost:    run.TotalCost,
		Currency:     run.Currency,
		CostError:    run.CostError,
		AnalyzedAt:   run.AnalyzedAt,
		Stages:       make([]model.Stage, 0, len(run.Stages)),
	}
	for _, s := range run.Stages {
		row.Stages = append(row.Stages, model.Stage{
			RunID:          run.ID,
			Seq:            s.Seq,
			Stage:          s.Stage,
			JobID:          s.JobID,
			StartAt:        s.Start,
			FinishAt:       s.Finish,
			TaskCount:      s.TaskCount,
			ElapsedSeconds: s.ElapsedSeconds,
			QueueSeconds:   s.QueueSeconds,
			MeanSeconds:    s.MeanSeconds,
			StdSeconds:     s.StdSeconds,
			CPUs:           s.CPUs,
			GPUs:           s.GPUs,
			Units:          s.Units,
			Cost:           s.Cost,
			MaxRSSTask:     s.MaxRSSTask,
			MaxRSS:         s.MaxRSS,
			ReqMem:         s.ReqMem,
			UsageError:     s.UsageError,
		})
	}
	return row
}
