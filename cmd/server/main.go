package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fleetsentry/fleetsentry/internal/alerts"
	"github.com/fleetsentry/fleetsentry/internal/api"
	"github.com/fleetsentry/fleetsentry/internal/config"
	"github.com/fleetsentry/fleetsentry/internal/explain"
	"github.com/fleetsentry/fleetsentry/internal/health"
	"github.com/fleetsentry/fleetsentry/internal/ingest"
	"github.com/fleetsentry/fleetsentry/internal/predictor"
	"github.com/fleetsentry/fleetsentry/internal/report"
	"github.com/fleetsentry/fleetsentry/internal/scheduler"
	"github.com/fleetsentry/fleetsentry/internal/scrape"
	"github.com/fleetsentry/fleetsentry/internal/store"
	"github.com/fleetsentry/fleetsentry/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config file (empty = built-in defaults)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("fleetsentry starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"machines", len(cfg.Fleet.Machines),
		"cycle_interval", cfg.Scheduler.Interval,
		"window_size", cfg.Scoring.WindowSize,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// In-memory state.
	readings := store.NewReadingLog()
	alertStore := store.NewAlertStore()
	predictions := store.NewPredictionStore()

	// Scoring and alerting.
	aggregator := health.NewAggregator(readings, alertStore, predictions, cfg.Scoring)
	engine := alerts.New(alertStore, cfg.Alerting)

	// Explanation layer: provider chain when an API key is configured,
	// deterministic templates otherwise.
	chain := explain.ChainFromConfig(cfg.Explain)
	narrator := explain.NewService(chain, readings, alertStore)
	narrator.SetSource(aggregator)
	aggregator.SetNarrator(narrator)

	// Evaluation cycle: immediate startup run, then one per interval.
	sched := scheduler.New(readings, predictions, engine, *cfg)
	go sched.Run(ctx)

	// Optional telemetry sources next to HTTP ingest.
	consumer := ingest.NewConsumer(cfg.MQTT, readings)
	if err := consumer.Start(ctx); err != nil {
		slog.Error("mqtt consumer failed to start", "err", err)
		os.Exit(1)
	}
	go scrape.New(cfg.Scrape, readings).Run(ctx)

	// WebSocket hub — broadcasts the fleet summary to clients.
	hub := ws.New(aggregator, cfg.Server.BroadcastInterval)
	go hub.Run(ctx)

	classifier := predictor.NewHTTPClassifier(cfg.Classifier.Endpoint, cfg.Classifier.Timeout)
	reports := report.NewGenerator(aggregator, narrator, readings, alertStore)

	handler := api.New(api.Deps{
		Readings:    readings,
		Alerts:      alertStore,
		Predictions: predictions,
		Aggregator:  aggregator,
		Engine:      engine,
		Scheduler:   sched,
		Classifier:  classifier,
		Narrator:    narrator,
		Reports:     reports,
	}, cfg)

	// Threshold hot-reload: swap scoring, alerting and cycle parameters
	// without a restart.
	if *configPath != "" {
		go func() {
			err := config.Watch(ctx, *configPath, func(next *config.Config) {
				aggregator.SetConfig(next.Scoring)
				engine.SetConfig(next.Alerting)
				sched.SetConfig(*next)
				handler.SetConfig(next)
				slog.Info("config reloaded", "machines", len(next.Fleet.Machines))
			})
			if err != nil {
				slog.Warn("config watch unavailable", "err", err)
			}
		}()
	}

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", handler)
	httpMux.Handle("/healthz", handler)
	httpMux.Handle("/ws/stream", hub)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("fleetsentry shutting down")
	consumer.Close()
	httpSrv.Shutdown(context.Background()) //nolint:errcheck
}
