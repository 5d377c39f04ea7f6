package main

import (
	"fmt"
	"os"

	"stagecost/internal/report"
	"stagecost/internal/service"
	"stagecost/pkg/logger"
)

// RunBatch runs the analyze, maxmem or run command once
func (app *Application) RunBatch() error {
	svc := app.analysisService
	cfg := app.config.Report

	a, err := svc.Analyze(app.ctx, cfg.TimingFile, cfg.ResourceFile)
	if err != nil {
		return err
	}
	ctx := logger.WithRunID(app.ctx, a.RunID)

	if app.opts.Command != "maxmem" {
		if err := svc.WriteReports(a); err != nil {
			return err
		}
		if cfg.SummaryFile != "" {
			logger.InfoCtx(ctx, "summary written to %s", cfg.SummaryFile)
		}
	}

	if app.opts.Command != "analyze" {
		app.dropCachedDumps(a)
		if err := svc.CollectUsage(app.ctx, a); err != nil {
			return err
		}
		path, err := svc.WriteUsageReport(a)
		if err != nil {
			return err
		}
		logger.InfoCtx(ctx, "max memory usage written to %s", path)
	}

	if err := svc.Record(app.ctx, a); err != nil {
		logger.WarnCtx(ctx, "%v", err)
	}
	return app.print(a)
}

func (app *Application) print(a *service.Analysis) error {
	if app.opts.JSON {
		return report.WriteJSON(os.Stdout, a)
	}
	if app.opts.Command != "maxmem" {
		if err := report.WriteHeader(os.Stdout, a.Summary(app.analysisService.Config())); err != nil {
			return err
		}
	}
	if app.opts.Command != "analyze" {
		if app.opts.Command == "run" {
			fmt.Println()
		}
		return report.WriteMaxUsage(os.Stdout, a.Usage)
	}
	return nil
}

// dropCachedDumps makes -refetch re-run sacct for the run's jobs
func (app *Application) dropCachedDumps(a *service.Analysis) {
	if !app.opts.Refetch || app.cache == nil {
		return
	}
	for _, st := range a.Timeline.Stages {
		if err := app.cache.Invalidate(app.ctx, st.JobID); err != nil {
			logger.WarnCtx(app.ctx, "failed to drop cached dump of job %s: %v", st.JobID, err)
		}
	}
}
