// Command gatewayd boots the workflow orchestration gateway: discovery
// cache, endpoint watcher, execution engine, event hub, schedule loop,
// anomaly baseline refresher, and the HTTP surface, each as an explicit
// long-running goroutine under one root cancellation context.
package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/daz23456/workflow-sub005/internal/app"
	"github.com/daz23456/workflow-sub005/internal/config"
	"github.com/daz23456/workflow-sub005/internal/httpserver"
	"github.com/daz23456/workflow-sub005/internal/logging"
	"github.com/daz23456/workflow-sub005/internal/validation"
	"github.com/daz23456/workflow-sub005/pkg/anomaly"
	"github.com/daz23456/workflow-sub005/pkg/datastorage/repository"
	"github.com/daz23456/workflow-sub005/pkg/discovery"
	"github.com/daz23456/workflow-sub005/pkg/endpoints"
	"github.com/daz23456/workflow-sub005/pkg/eventhub"
	"github.com/daz23456/workflow-sub005/pkg/execution"
	"github.com/daz23456/workflow-sub005/pkg/labels"
	"github.com/daz23456/workflow-sub005/pkg/orchestrator"
	"github.com/daz23456/workflow-sub005/pkg/orchestrator/httpexec"
	"github.com/daz23456/workflow-sub005/pkg/registry/fileclient"
	"github.com/daz23456/workflow-sub005/pkg/schedule"
	"github.com/daz23456/workflow-sub005/pkg/versioning"
)

func main() {
	configPath := flag.String("config", "", "path to the gateway's YAML config file; defaults are used when empty")
	registryDir := flag.String("registry-dir", "./registry", "directory of declarative Workflow/WorkflowTask YAML resources")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logrus.WithError(err).Fatal("gatewayd: failed to load config")
		}
		cfg = loaded
	}

	log := logging.New(cfg.LogLevel)
	zapLog, err := zap.NewProduction()
	if err != nil {
		log.WithError(err).Fatal("gatewayd: failed to build zap logger")
	}
	defer zapLog.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Registry client & discovery cache (§4.1).
	client := fileclient.New(*registryDir)
	cache := discovery.New(client, cfg.Discovery.CacheTTL, log)

	// Endpoint registry & watcher (§4.2).
	endpointRegistry := endpoints.New()

	var (
		versionRepo versioning.Repository
		execRepo    execution.Repository
		baselines   *repository.BaselineRepository
		labelRepo   labels.Repository
	)

	sqlDB := openDatabase(cfg.Database.DSN, log)
	if sqlDB != nil {
		defer sqlDB.Close()
		versionRepo = repository.NewWorkflowVersionRepository(sqlDB, zapLog)
		execRepo = repository.NewExecutionRepository(sqlDB, zapLog)
		baselines = repository.NewBaselineRepository(sqlDB, zapLog)
		labelRepo = repository.NewLabelRepository(sqlDB, zapLog)
	}

	if versionRepo == nil {
		versionRepo = noopVersionRepository{}
	}
	versionService := versioning.New(versionRepo)
	watcher := endpoints.NewWatcher(cache, endpointRegistry, versionService, log).WithPollInterval(cfg.Discovery.PollInterval)

	// Event hub & HTTP step executor feeding the orchestrator (§4.4, §1).
	hub := eventhub.New(log)
	dagOrchestrator := orchestrator.NewDAGOrchestrator(httpexec.New(), cfg.Execution.MaxWorkers, log)

	// Anomaly detector & baseline refresher (§4.6).
	var detector *anomaly.Detector
	var refresher *anomaly.Refresher
	if baselines != nil {
		detector = anomaly.NewDetector(baselines, &app.AnomalyNotifier{Hub: hub}, log)
		refresher = anomaly.NewRefresher(baselines, baselines, anomaly.Config{
			Enabled:         cfg.Anomaly.Enabled,
			RefreshInterval: cfg.Anomaly.RefreshInterval,
			Window:          cfg.Anomaly.Window,
			MinSamples:      cfg.Anomaly.MinSamples,
		}, log)
	}

	// Execution engine (§4.3).
	validator := validation.New()
	engineOpts := []execution.Option{execution.WithTimeout(time.Duration(cfg.Execution.TimeoutSeconds) * time.Second)}
	if detector != nil {
		engineOpts = append(engineOpts, execution.WithAnomalyEvaluator(detector))
	}
	engine := execution.NewEngine(execRepo, cache, cache, dagOrchestrator, hub, validator, log, engineOpts...)

	// Label sync (tag/category label aggregates), resynced every watcher tick
	// by piggybacking on the same poll cadence as the endpoint watcher.
	labelService := labels.New(labelRepo, log)

	// Schedule loop (§4.5).
	scheduleLoop := schedule.NewLoop(cache, &app.ScheduleExecutor{Engine: engine, Namespace: cfg.Discovery.Namespace}, log).
		WithPollInterval(cfg.Schedule.PollInterval)

	var wg sync.WaitGroup
	runBackground(&wg, "watcher", func() { watcher.Run(ctx) })
	runBackground(&wg, "schedule-loop", func() { scheduleLoop.Run(ctx) })
	if refresher != nil {
		runBackground(&wg, "baseline-refresher", func() { refresher.Run(ctx) })
	}
	runBackground(&wg, "label-sync", func() { runLabelSyncLoop(ctx, cache, labelService, cfg.Discovery.PollInterval) })

	deps := httpserver.Deps{
		Registry:  endpointRegistry,
		Workflows: &app.WorkflowFacade{Cache: cache, Versions: versionRepo},
		Execs:     &app.ExecutionFacade{Engine: engine, Repo: execRepo},
		Hub:       hub,
		Log:       log,
	}
	mux := http.NewServeMux()
	mux.Handle("/", httpserver.New(deps, cfg.Server.AllowOrigins))
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: cfg.Server.Address, Handler: mux}
	runBackground(&wg, "http-server", func() {
		log.WithField("address", cfg.Server.Address).Info("gatewayd: listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("gatewayd: http server stopped with error")
		}
	})

	<-ctx.Done()
	log.Info("gatewayd: shutdown signal received, draining")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("gatewayd: http server shutdown error")
	}
	wg.Wait()
	log.Info("gatewayd: shutdown complete")
}

// openDatabase opens the repository-layer connection pool. A missing
// DSN is treated as "persistence disabled" rather than a fatal error,
// since the execution engine and the label sync service both tolerate
// nil repositories for local/dev runs.
func openDatabase(dsn string, log *logrus.Logger) *sqlx.DB {
	if dsn == "" {
		log.Warn("gatewayd: no database.dsn configured, running without persistence")
		return nil
	}
	db, err := repository.Open(dsn)
	if err != nil {
		log.WithError(err).Fatal("gatewayd: failed to open database")
	}
	return db
}

// noopVersionRepository stands in for versioning.Repository when no
// database is configured, so the watcher's version-tracking step degrades
// to "never records a version" instead of panicking on a nil repo.
type noopVersionRepository struct{}

func (noopVersionRepository) Latest(context.Context, string) (*versioning.Version, error) {
	return nil, nil
}
func (noopVersionRepository) Append(context.Context, versioning.Version) error { return nil }
func (noopVersionRepository) List(context.Context, string) ([]versioning.Version, error) {
	return nil, nil
}

func runBackground(wg *sync.WaitGroup, name string, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn()
	}()
}

// runLabelSyncLoop recomputes the tag/category label aggregates on
// the same cadence as discovery, since they are derived from the same
// cached workflow/task set rather than their own independent schedule.
func runLabelSyncLoop(ctx context.Context, cache *discovery.Cache, svc *labels.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	resync := func() {
		workflows, err := cache.DiscoverWorkflows(ctx, "")
		if err != nil {
			return
		}
		tasks, err := cache.DiscoverTasks(ctx, "")
		if err != nil {
			return
		}
		svc.Sync(ctx, workflows, tasks)
	}

	resync()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resync()
		}
	}
}
