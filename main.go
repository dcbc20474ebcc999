package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/vantage-fi/advisor/internal/activities"
	"github.com/vantage-fi/advisor/internal/audit"
	"github.com/vantage-fi/advisor/internal/auth"
	"github.com/vantage-fi/advisor/internal/circuitbreaker"
	"github.com/vantage-fi/advisor/internal/config"
	"github.com/vantage-fi/advisor/internal/guard"
	"github.com/vantage-fi/advisor/internal/httpapi"
	_ "github.com/vantage-fi/advisor/internal/metrics" // register collectors
	"github.com/vantage-fi/advisor/internal/session"
	temporaladapter "github.com/vantage-fi/advisor/internal/temporal"
	"github.com/vantage-fi/advisor/internal/tools"
	"github.com/vantage-fi/advisor/internal/workflows"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	sessions, err := session.NewManager(cfg.Session.RedisAddr, cfg.Session.TTL, logger)
	if err != nil {
		logger.Fatal("connect session store", zap.Error(err))
	}
	defer sessions.Close()

	var auditor *audit.Writer
	if cfg.Audit.Enabled {
		auditor, err = audit.NewWriter(cfg.Audit, logger)
		if err != nil {
			// Audit is best-effort everywhere else too; a missing database
			// must not keep the advisor down.
			logger.Warn("audit writer unavailable, continuing without audit", zap.Error(err))
		} else {
			defer auditor.Close()
		}
	}

	guardEngine, err := guard.New(cfg.Guard, logger)
	if err != nil {
		logger.Fatal("init suitability guard", zap.Error(err))
	}

	breakers := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig(), logger)
	toolClient := tools.NewClient(cfg.Tools, breakers, logger)

	temporalAddr := os.Getenv("TEMPORAL_HOST")
	if temporalAddr == "" {
		temporalAddr = "temporal:7233"
	}
	tc, err := client.Dial(client.Options{
		HostPort: temporalAddr,
		Logger:   temporaladapter.NewZapAdapter(logger.Named("temporal")),
	})
	if err != nil {
		logger.Fatal("connect temporal", zap.Error(err))
	}
	defer tc.Close()

	acts := activities.NewActivities(cfg, toolClient, sessions, auditor, guardEngine, logger)
	wfs := workflows.NewWorkflows(cfg)

	wk := worker.New(tc, workflows.TaskQueue, worker.Options{})
	wk.RegisterWorkflow(wfs.AdvisoryWorkflow)
	wk.RegisterActivity(acts)
	if err := wk.Start(); err != nil {
		logger.Fatal("start worker", zap.Error(err))
	}
	defer wk.Stop()

	authMgr := auth.NewManager(cfg.Auth.SigningKey, cfg.Auth.Issuer)
	api := httpapi.NewServer(cfg, tc, sessions, auditor, authMgr, logger)

	apiPort := os.Getenv("API_PORT")
	if apiPort == "" {
		apiPort = "8080"
	}
	apiServer := &http.Server{
		Addr:         ":" + apiPort,
		Handler:      api.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 3 * time.Minute,
	}
	go func() {
		logger.Info("advisory API listening", zap.String("addr", apiServer.Addr))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server", zap.Error(err))
		}
	}()

	var metricsServer *http.Server
	if cfg.Observe.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Observe.Metrics.Port),
			Handler: mux,
		}
		go func() {
			logger.Info("metrics listening", zap.String("addr", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown", zap.Error(err))
		}
	}
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Observe.Logging.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	if lvl, err := zap.ParseAtomicLevel(cfg.Observe.Logging.Level); err == nil {
		zcfg.Level = lvl
	}
	return zcfg.Build()
}
