package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"stagecost/app/handler"
	"stagecost/internal/jobs"
	"stagecost/internal/service"
	"stagecost/pkg/config"
	"stagecost/pkg/interfaces"
	"stagecost/pkg/logger"
	mysqlstore "stagecost/pkg/store/mysql"
	redisstore "stagecost/pkg/store/redis"

	"github.com/gin-gonic/gin"
)

// Options are the command line settings
type Options struct {
	ConfigPath   string
	TimingFile   string
	ResourceFile string
	JSON         bool
	Refetch      bool
	Command      string
}

// Application owns every component of one invocation
type Application struct {
	opts   Options
	config *config.Config

	// Infrastructure
	redisClient *redisstore.RedisClient
	mysqlRepo   *mysqlstore.Repository
	runStore    interfaces.RunStore
	source      interfaces.AccountingSource
	cache       *redisstore.AccountingCache

	// Services
	analysisService *service.AnalysisService
	runService      *service.RunService
	refreshService  *service.RefreshService

	// Serve mode
	runHandler  *handler.RunHandler
	jobsManager *jobs.Manager
	ginEngine   *gin.Engine
	httpServer  *http.Server

	ctx context.Context
	wg  sync.WaitGroup

	cleanupFuncs []func()
}

// NewApplication creates an Application bound to ctx
func NewApplication(ctx context.Context, opts Options) *Application {
	return &Application{ctx: ctx, opts: opts}
}

// Initialize builds the components the command needs, in order
func (app *Application) Initialize() error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"Configuration", app.initConfig},
		{"Logging", app.initLogger},
		{"Redis", app.initRedis},
		{"Run Store", app.initRunStore},
		{"Accounting Source", app.initAccounting},
		{"Service Layer", app.initServices},
	}
	if app.opts.Command == "serve" {
		steps = append(steps, []struct {
			name string
			fn   func() error
		}{
			{"Background Tasks", app.initJobs},
			{"Handler Layer", app.initHandlers},
			{"HTTP Server", app.initHTTPServer},
		}...)
	}

	for _, step := range steps {
		logger.DebugCtx(app.ctx, "Initializing %s...", step.name)
		if err := step.fn(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
	}
	logger.DebugCtx(app.ctx, "Application initialization completed")
	return nil
}

// Start starts the background jobs and the HTTP server
func (app *Application) Start() error {
	if app.jobsManager != nil {
		app.jobsManager.Start()
	}

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		logger.InfoCtx(app.ctx, "HTTP server listening on: %s", app.httpServer.Addr)
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalCtx(app.ctx, "HTTP server error: %v", err)
		}
	}()
	return nil
}

// Shutdown stops the server and jobs, then releases resources
func (app *Application) Shutdown(timeout time.Duration) error {
	logger.InfoCtx(context.Background(), "Starting graceful shutdown (timeout: %v)...", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if app.jobsManager != nil {
		app.jobsManager.Stop()
	}

	var shutdownErr error
	if app.httpServer != nil {
		if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
			shutdownErr = fmt.Errorf("http server shutdown: %w", err)
		}
	}

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.WarnCtx(context.Background(), "Shutdown timeout, some tasks may not have completed")
	}

	app.Close()
	return shutdownErr
}

// Close runs the cleanup functions in reverse registration order
func (app *Application) Close() {
	for i := len(app.cleanupFuncs) - 1; i >= 0; i-- {
		app.cleanupFuncs[i]()
	}
	app.cleanupFuncs = nil
}

func (app *Application) registerCleanup(cleanup func()) {
	app.cleanupFuncs = append(app.cleanupFuncs, cleanup)
}
