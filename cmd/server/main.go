package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hls-packager/internal/encoder"
	"hls-packager/internal/manifest"
	"hls-packager/internal/media"
	"hls-packager/internal/orchestrator"
	"hls-packager/internal/platform/config"
	"hls-packager/internal/platform/logger"
	"hls-packager/internal/platform/metrics"
	"hls-packager/internal/platform/telemetry"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	serviceName     = "hls-packager"
	shutdownTimeout = 10 * time.Second
)

func main() {
	_ = config.Load()

	cfg, err := config.Resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	shutdownTracing, err := telemetry.Init(context.Background(), telemetry.Settings{
		ServiceName: serviceName,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRate:  cfg.TraceSampleRate,
	}, log)
	if err != nil {
		log.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}

	repo := orchestrator.NewInMemoryRepository()
	met := metrics.New()
	svc := orchestrator.NewService(repo, orchestrator.Options{
		Inspector:      media.NewInspector(cfg.FFprobePath),
		Spawner:        encoder.NewSupervisor(cfg.FFmpegPath, log),
		Writer:         manifest.NewWriter(cfg.CDNDir),
		TargetDuration: cfg.SegmentSeconds,
		Logger:         log,
		Metrics:        met,
	})
	h := orchestrator.NewHandler(svc, log, cfg.MediaDir)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met, "/metrics"))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetJobsInProgress(svc.InProgressCount()) }).ServeHTTP(w, r)
	})
	h.Routes(r)

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: otelhttp.NewHandler(r, serviceName)}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"cdn_dir", cfg.CDNDir,
		"media_dir", cfg.MediaDir,
		"segment_seconds", cfg.SegmentSeconds,
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Running encoders are not stopped; they finish writing on their own.
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Warn("tracing shutdown error", "error", err)
	}

	log.Info("server stopped")
}
