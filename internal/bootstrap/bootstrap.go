package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/credential-verifier/internal/config"
	"github.com/kirillkom/credential-verifier/internal/core/ports"
	"github.com/kirillkom/credential-verifier/internal/core/usecase"
	"github.com/kirillkom/credential-verifier/internal/infrastructure/queue/inline"
	"github.com/kirillkom/credential-verifier/internal/infrastructure/queue/nats"
	"github.com/kirillkom/credential-verifier/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/credential-verifier/internal/infrastructure/resilience"
	"github.com/kirillkom/credential-verifier/internal/infrastructure/storage/localfs"
)

const (
	QueueModeNATS   = "nats"
	QueueModeInline = "inline"
)

// Observers carries the per-binary metric sinks. Either may be nil.
type Observers struct {
	Verification ports.VerificationObserver
	Process      ports.ProcessObserver
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue    ports.MessageQueue
	Repo     ports.SubmissionRepository
	Verifier *VerifierBundle

	SubmitUC  ports.SubmissionIntake
	ProcessUC ports.SubmissionProcessor

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, observers Observers) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewSubmissionRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, closeQueue, err := newQueue(cfg, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	bundle, err := NewVerifier(cfg, logger, observers.Verification)
	if err != nil {
		closeQueue()
		_ = db.Close()
		return nil, fmt.Errorf("build verifier: %w", err)
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Queue:    queue,
		Repo:     repo,
		Verifier: bundle,

		SubmitUC:  usecase.NewSubmitVerificationUseCase(repo, storage, queue, bundle.Lexicon),
		ProcessUC: usecase.NewProcessSubmissionUseCase(repo, storage, bundle.Verifier, observers.Process),

		closeFn: closeAll(closeQueue, bundle.Close, db),
	}, nil
}

func newQueue(cfg config.Config, logger *slog.Logger) (ports.MessageQueue, func(), error) {
	switch cfg.QueueMode {
	case "", QueueModeNATS:
		q, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.QueueConfig(logger)),
			Logger:             logger,
			HandlerTimeout:     cfg.ProcessTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return q, q.Close, nil
	case QueueModeInline:
		q := inline.New(inline.Options{
			Workers:        cfg.WorkerConcurrency,
			HandlerTimeout: cfg.ProcessTimeout,
			Logger:         logger,
		})
		return q, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported QUEUE_MODE %q", cfg.QueueMode)
	}
}

func closeAll(closeQueue, closeVerifier func(), db *sql.DB) func() {
	return func() {
		closeQueue()
		closeVerifier()
		_ = db.Close()
	}
}

// RunWorker consumes verification requests until ctx is cancelled.
func (a *App) RunWorker(ctx context.Context) error {
	a.Logger.Info("worker_subscribed", "queue_mode", a.Config.QueueMode, "subject", a.Config.NATSSubject)
	err := a.Queue.SubscribeVerificationRequested(ctx, a.ProcessUC.ProcessByID)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
