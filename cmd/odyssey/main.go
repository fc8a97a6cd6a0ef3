package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/ap"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/ar"
	"github.com/odyssey-erp/odyssey-ledger/internal/audit"
	audithttp "github.com/odyssey-erp/odyssey-ledger/internal/audit/http"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/masterdata"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/migrate"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if cfg.MigrateOnStart {
		if err := migrate.Up(dbpool); err != nil {
			logger.Error("apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	redisOpts := cfg.Redis().AsynqOpt()

	auditPG := audit.NewPostgresSink(dbpool)
	var sink audit.Sink = auditPG
	sinkName := "postgres"
	if cfg.AuditMode == app.AuditModeQueue {
		asynqClient := asynq.NewClient(redisOpts)
		defer func() {
			if err := asynqClient.Close(); err != nil {
				logger.Warn("asynq client close", slog.Any("error", err))
			}
		}()
		sink = audit.NewQueueSink(asynqClient)
		sinkName = "queue"
	}
	recorder := audit.NewRecorder(sink, sinkName, logger,
		audit.WithObserver(metrics),
		audit.WithTimeout(cfg.AuditTimeout),
	)
	defer recorder.Flush()

	var locker journals.SequenceLocker = journals.AdvisoryLocker{}
	if cfg.SequenceLock == app.SequenceLockRedis {
		locker = journals.NewRedisLocker(redisClient, cfg.SequenceLockTTL)
	}

	transactor := db.NewTransactor(dbpool)
	accountsService := accounts.NewService(accounts.NewRepository(dbpool))
	resolver := masterdata.NewResolver(
		masterdata.NewPostgresSource(dbpool),
		cache.NewJSONCache(redisClient, "odyssey:names", cfg.LookupCacheTTL),
	)

	journalService := journals.NewService(transactor, journals.NewRepository(dbpool),
		journals.WithSequenceLocker(locker),
		journals.WithAuditor(recorder),
		journals.WithAccountDirectory(accountsService),
		journals.WithDisplayResolver(resolver),
		journals.WithMetrics(metrics),
		journals.WithLogger(logger),
	)
	hooks := integration.NewHooks(
		journals.NewPoster(journalService),
		periods.NewService(periods.NewRepository(dbpool)),
		mappings.NewRepository(dbpool),
	)

	arService := ar.NewService(transactor, ar.NewRepository(), hooks, logger)
	apService := ap.NewService(transactor, ap.NewRepository(), hooks, logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		JournalsHandler: journals.NewHandler(logger, journalService),
		AccountsHandler: accounts.NewHandler(logger, accountsService),
		ARHandler:       ar.NewHandler(logger, arService),
		APHandler:       ap.NewHandler(logger, apService),
		AuditHandler:    audithttp.NewHandler(logger, audit.NewService(auditPG)),
		JobHandler:      jobs.NewHandler(inspector, logger),
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr),
			slog.String("sequence_lock", cfg.SequenceLock), slog.String("audit_mode", cfg.AuditMode))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
