package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stagecost/pkg/logger"
)

const usage = `usage: stagecost [flags] [command]

commands:
  analyze   timing and cost report
  maxmem    maximum memory usage per stage
  run       analyze, then maxmem (default)
  serve     HTTP API with periodic re-analysis

flags:
`

func main() {
	var opts Options
	flag.StringVar(&opts.ConfigPath, "config", "", "configuration file (default $CONFIG_PATH or config/config.yaml)")
	flag.StringVar(&opts.TimingFile, "timing", "", "timing log (overrides report.timing_file)")
	flag.StringVar(&opts.ResourceFile, "resources", "", "resource table (overrides report.resource_file)")
	flag.BoolVar(&opts.JSON, "json", false, "print the analysis as JSON instead of the summary header")
	flag.BoolVar(&opts.Refetch, "refetch", false, "drop cached accounting dumps of the run's jobs before fetching")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	opts.Command = "run"
	if flag.NArg() > 0 {
		opts.Command = flag.Arg(0)
	}
	switch opts.Command {
	case "analyze", "maxmem", "run", "serve":
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", opts.Command)
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := NewApplication(ctx, opts)
	if err := app.Initialize(); err != nil {
		app.Close()
		fmt.Fprintf(os.Stderr, "stagecost: %v\n", err)
		os.Exit(1)
	}

	if opts.Command == "serve" {
		serve(ctx, app)
		return
	}

	err := app.RunBatch()
	app.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "stagecost: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, app *Application) {
	if err := app.Start(); err != nil {
		logger.FatalCtx(ctx, "Application startup failed: %v", err)
	}

	<-ctx.Done()
	logger.InfoCtx(context.Background(), "Received exit signal")

	if err := app.Shutdown(30 * time.Second); err != nil {
		logger.ErrorCtx(context.Background(), "Application shutdown failed: %v", err)
		os.Exit(1)
	}
	logger.InfoCtx(context.Background(), "Application safely exited")
}
