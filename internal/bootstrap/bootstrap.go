package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/surgiscan/docintake/internal/config"
	"github.com/surgiscan/docintake/internal/core/ports"
	"github.com/surgiscan/docintake/internal/core/usecase"
	"github.com/surgiscan/docintake/internal/infrastructure/extraction/landingai"
	"github.com/surgiscan/docintake/internal/infrastructure/pdfinfo"
	"github.com/surgiscan/docintake/internal/infrastructure/queue/nats"
	"github.com/surgiscan/docintake/internal/infrastructure/repository/postgres"
	"github.com/surgiscan/docintake/internal/infrastructure/resilience"
	"github.com/surgiscan/docintake/internal/infrastructure/storage/localfs"
)

// App wires the shared infrastructure for both binaries: the api uses the
// submit/read/validate side, the worker the process side.
type App struct {
	Config config.Config

	DB         *sql.DB
	Queue      *nats.Queue
	Repo       ports.DocumentRepository
	Storage    *localfs.Storage
	Extraction *landingai.Client

	SubmitUC   ports.DocumentIntake
	ProcessUC  ports.DocumentProcessor
	ValidateUC ports.DocumentValidator
	StatsUC    ports.StatisticsProvider

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executorCfg := resilience.DefaultConfig()
	executorCfg.RetryMaxAttempts = cfg.RetryMaxAttempts
	executorCfg.RetryInitialBackoff = time.Duration(cfg.RetryBaseDelayMS) * time.Millisecond
	executorCfg.RetryMaxBackoff = time.Duration(cfg.RetryMaxDelayMS) * time.Millisecond
	executor := resilience.NewExecutor(executorCfg)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	extraction := landingai.New(cfg.LandingAIURL, cfg.LandingAIAPIKey,
		time.Duration(cfg.LandingAITimeoutSec)*time.Second, executor)
	inspector := pdfinfo.New()
	locks := usecase.NewLocks()

	submitUC := usecase.NewSubmitDocumentUseCase(repo, storage, queue, inspector, usecase.SubmitConfig{
		MaxFileBytes:      cfg.MaxFileBytes(),
		AllowedExtensions: cfg.AllowedExtensions,
	})
	processUC := usecase.NewProcessDocumentUseCase(repo, storage, extraction, extraction, locks, usecase.ProcessConfig{
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		MaxConcurrent:       int64(cfg.MaxConcurrentDocs),
	})
	validateUC := usecase.NewValidateDocumentUseCase(repo, locks)
	statsUC := usecase.NewStatisticsUseCase(repo)

	return &App{
		Config: cfg,

		DB:         db,
		Queue:      queue,
		Repo:       repo,
		Storage:    storage,
		Extraction: extraction,

		SubmitUC:   submitUC,
		ProcessUC:  processUC,
		ValidateUC: validateUC,
		StatsUC:    statsUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
