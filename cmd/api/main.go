package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/surgiscan/docintake/internal/adapters/http"
	"github.com/surgiscan/docintake/internal/bootstrap"
	"github.com/surgiscan/docintake/internal/config"
	"github.com/surgiscan/docintake/internal/observability/logging"
	"github.com/surgiscan/docintake/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("docintake-api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	serverMetrics := metrics.NewHTTPServerMetrics("docintake-api")
	checkers := []httpadapter.HealthChecker{
		{Name: "database", Check: app.DB.Ping},
		{Name: "queue", Check: func() error {
			if !app.Queue.Connected() {
				return fmt.Errorf("nats disconnected")
			}
			return nil
		}},
		{Name: "storage", Check: app.Storage.Probe},
		{Name: "extraction_api", Check: func() error {
			probeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return app.Extraction.Probe(probeCtx)
		}},
	}

	router := httpadapter.NewRouter(
		cfg,
		app.SubmitUC,
		app.Repo,
		app.ValidateUC,
		app.StatsUC,
		serverMetrics,
		checkers,
	).Handler()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("api listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("api shutdown error: %v", err)
	}
}
