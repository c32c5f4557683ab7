package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/surgiscan/docintake/internal/bootstrap"
	"github.com/surgiscan/docintake/internal/config"
	"github.com/surgiscan/docintake/internal/observability/logging"
	"github.com/surgiscan/docintake/internal/observability/metrics"
)

const serviceName = "docintake-worker"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app.Extraction.OnCall(func(operation string, err error) {
		workerMetrics.RecordExtractionCall(serviceName, operation, err)
	})
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Printf("worker metrics listening on :%s", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	group.Go(func() error {
		log.Printf("worker subscribed to %s", cfg.NATSSubject)
		return app.Queue.SubscribeDocumentReceived(groupCtx, func(handlerCtx context.Context, documentID string) error {
			processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
			defer cancel()

			if rec, err := app.Repo.GetByID(processCtx, documentID); err == nil {
				workerMetrics.ObserveQueueLag(serviceName, time.Since(rec.UploadedAt))
			}

			workerMetrics.StartDocument()
			start := time.Now()
			err := app.ProcessUC.ProcessByID(processCtx, documentID)
			workerMetrics.FinishDocument(serviceName, time.Since(start), err)
			if err != nil {
				slog.Error("document processing failed", "document_id", documentID, "error", err)
			}
			return err
		})
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatalf("worker error: %v", err)
	}
}
