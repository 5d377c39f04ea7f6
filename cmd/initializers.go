package main

import (
	"fmt"
	"net/http"
	"time"

	"stagecost/app/handler"
	"stagecost/app/router"
	"stagecost/internal/service"
	"stagecost/pkg/accounting"
	"stagecost/pkg/billing"
	"stagecost/pkg/config"
	"stagecost/pkg/interfaces"
	"stagecost/pkg/logger"
	"stagecost/pkg/store/memory"
	mysqlstore "stagecost/pkg/store/mysql"
	redisstore "stagecost/pkg/store/redis"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// runs kept by the in-memory store when MySQL is disabled
const memoryRunLimit = 100

// initConfig loads the configuration and applies command line overrides
func (app *Application) initConfig() error {
	warnings, err := config.Init(app.opts.ConfigPath)
	if err != nil {
		return err
	}
	app.config = config.GlobalConfig
	for _, w := range warnings {
		logger.Warnf("config: %s", w)
	}

	if app.opts.TimingFile != "" {
		app.config.Report.TimingFile = app.opts.TimingFile
	}
	if app.opts.ResourceFile != "" {
		app.config.Report.ResourceFile = app.opts.ResourceFile
	}
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.Init(app.config.Logger); err != nil {
		return err
	}
	app.registerCleanup(func() {
		_ = logger.Sync()
	})
	return nil
}

// initRedis connects the accounting cache. An unreachable Redis is not
// fatal: accounting is then fetched directly.
func (app *Application) initRedis() error {
	if !app.config.Redis.Enabled {
		return nil
	}
	client, err := redisstore.NewRedisClient(app.ctx, app.config.Redis)
	if err != nil {
		logger.WarnCtx(app.ctx, "accounting cache disabled: %v", err)
		return nil
	}

	app.redisClient = client
	app.registerCleanup(func() {
		client.Close()
		logger.DebugCtx(app.ctx, "Redis connection has been closed")
	})
	return nil
}

// initRunStore picks MySQL when enabled, otherwise process memory
func (app *Application) initRunStore() error {
	if !app.config.MySQL.Enabled {
		app.runStore = memory.NewRunStore(memoryRunLimit)
		return nil
	}

	repo, err := mysqlstore.NewRepository(app.ctx, app.config.MySQL.DSN())
	if err != nil {
		return err
	}
	app.mysqlRepo = repo
	app.runStore = repo.Run
	app.registerCleanup(func() {
		repo.Close()
		logger.DebugCtx(app.ctx, "MySQL connection has been closed")
	})
	return nil
}

// initAccounting builds the accounting source chain:
// sacct or dump directory, then retries, then the Redis cache
func (app *Application) initAccounting() error {
	cfg := app.config.Accounting

	var source interfaces.AccountingSource
	if cfg.DumpDir != "" {
		logger.InfoCtx(app.ctx, "reading accounting dumps from %s", cfg.DumpDir)
		source = accounting.NewFileSource(cfg.DumpDir)
	} else {
		source = accounting.NewSacctSource(cfg.Command)
	}
	source = accounting.NewRetryingSource(source, cfg.Retries, cfg.Timeout, cfg.Backoff)

	if app.redisClient != nil {
		app.cache = redisstore.NewAccountingCache(app.redisClient, source, app.config.Redis.CacheTTL)
		if jobs, err := app.cache.CachedJobs(app.ctx); err == nil {
			logger.DebugCtx(app.ctx, "accounting cache holds %d job(s)", len(jobs))
		}
		source = app.cache
	}
	app.source = source
	return nil
}

// initServices initializes the service layer
func (app *Application) initServices() error {
	cfg := app.config

	mode, err := accounting.ParseStepMode(cfg.Accounting.StepMode)
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(cfg.Report.TimeZone)
	if err != nil {
		return fmt.Errorf("failed to load time zone %s: %w", cfg.Report.TimeZone, err)
	}

	usage := service.NewMaxUsageService(app.source, service.MaxUsageConfig{
		Mode:    mode,
		Workers: cfg.Accounting.Workers,
		MemDir:  cfg.Report.MemDir,
		MemFile: cfg.Report.MemFile,
		SaveRaw: cfg.Accounting.ShouldSaveRaw(),
	})
	app.analysisService = service.NewAnalysisService(service.AnalysisConfig{
		Policy:           billing.NewPolicy(cfg.Billing.Rate, cfg.Billing.GPUWeight),
		Currency:         cfg.Billing.Currency,
		Location:         loc,
		ZoneName:         cfg.Report.TimeZone,
		SubmitOffset:     cfg.Report.SubmitOffset,
		CPUsPerNodeLimit: cfg.Resources.CPUsPerNodeLimit,
		SummaryFile:      cfg.Report.SummaryFile,
		JSONFile:         cfg.Report.JSONFile,
	}, usage, app.runStore)
	app.runService = service.NewRunService(app.runStore)
	return nil
}

// initJobs registers the periodic re-analysis of the configured run
func (app *Application) initJobs() error {
	// Without Redis the lock degrades to single-instance mode
	var redisClient *redis.Client
	if app.redisClient != nil {
		redisClient = app.redisClient.GetClient()
	}
	app.refreshService = service.NewRefreshService(app.analysisService,
		app.config.Report.TimingFile, app.config.Report.ResourceFile, true,
		redisstore.NewLock(redisClient, refreshLockKey))

	app.jobsManager = newJobsManager(app.ctx, app.config.Server.RefreshInterval, app.refreshService)
	return nil
}

// initHandlers initializes the handler layer
func (app *Application) initHandlers() error {
	app.runHandler = handler.NewRunHandler(app.runService, app.refreshService)
	return nil
}

// initHTTPServer initializes the HTTP server
func (app *Application) initHTTPServer() error {
	gin.SetMode(app.config.Server.Mode)
	app.ginEngine = gin.New()
	router.NewRouter(app.runHandler, app.config.Server.APIKey).Setup(app.ginEngine)

	app.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:      app.ginEngine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
	}
	return nil
}
