package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/localcredits/backend/internal/account"
	"github.com/localcredits/backend/internal/auth"
	"github.com/localcredits/backend/internal/catalog"
	"github.com/localcredits/backend/internal/config"
	"github.com/localcredits/backend/internal/dispute"
	"github.com/localcredits/backend/internal/escrow"
	"github.com/localcredits/backend/internal/ledger"
	"github.com/localcredits/backend/internal/lock"
	"github.com/localcredits/backend/internal/logger"
	"github.com/localcredits/backend/internal/metrics"
	"github.com/localcredits/backend/internal/notify"
	"github.com/localcredits/backend/internal/repository/postgres"
	"github.com/localcredits/backend/internal/router"
	"github.com/localcredits/backend/internal/transactions"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to read .env file", "error", err)
	}

	cfg, err := config.Load(os.Getenv("LOCALCREDITS_CONFIG"))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(os.Stdout, cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("create database pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("cannot reach PostgreSQL, ensure it is running (e.g. docker compose up -d): %w", err)
	}
	log.Info("Connected to PostgreSQL database successfully!")

	if cfg.Database.MigrateOnStart {
		if err := postgres.Migrate(ctx, pool, log); err != nil {
			return err
		}
		migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
		if err != nil {
			return fmt.Errorf("create river migrator: %w", err)
		}
		if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
			return fmt.Errorf("river migrate up: %w", err)
		}
		log.Info("Migrations applied")
	}

	rec, err := metrics.New(nil)
	if err != nil {
		return err
	}

	locker, closeLocker, err := newLocker(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLocker()

	store := postgres.New(pool)
	ledgerSvc := ledger.New(log, rec)
	escrowMgr := escrow.NewManager(ledgerSvc, log, rec)

	catalogRepo := catalog.NewRepository(pool)
	catalogSvc := catalog.NewService(catalogRepo, log)

	// Outbox: insert func is set after the River client is created (breaks init cycle)
	var insertMu sync.Mutex
	var insertFn notify.InsertTxFunc
	insertTransition := func(ctx context.Context, tx pgx.Tx, args notify.TransitionArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			return errors.New("river insert not wired")
		}
		return fn(ctx, tx, args)
	}

	engine := transactions.NewEngine(transactions.Deps{
		Store:     store,
		Locker:    locker,
		Catalog:   catalogSvc,
		Escrow:    escrowMgr,
		Disputes:  dispute.NewResolver(escrowMgr, log),
		Publisher: notify.NewRiverPublisher(insertTransition),
		Metrics:   rec,
		Log:       log,
	})

	handlers := []notify.Handler{notify.LogHandler(log), catalog.Counters(catalogRepo, store)}
	if cfg.Notify.WebhookURL != "" {
		handlers = append(handlers, notify.NewWebhook(cfg.Notify.WebhookURL))
	}
	workers := river.NewWorkers()
	river.AddWorker(workers, notify.NewTransitionWorker(log, handlers...))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.Notify.Workers},
		},
		Workers: workers,
		Logger:  log,
	})
	if err != nil {
		return fmt.Errorf("create river client: %w", err)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, tx pgx.Tx, args notify.TransitionArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}
	insertMu.Unlock()

	authSvc := auth.NewService(auth.NewRepository(pool), auth.Options{
		Secret:      []byte(cfg.Auth.JWTSecret),
		TokenTTL:    cfg.Auth.TokenTTL,
		AdminEmails: cfg.Auth.AdminEmails,
	}, log)

	apiRouter := router.New(router.Handlers{
		Auth:         auth.NewHandler(authSvc, log),
		Catalog:      catalog.NewHandler(catalogSvc, log),
		Transactions: transactions.NewHandler(engine, log),
		Account:      account.NewHandler(store, store, log),
	}, authSvc, log)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(apiRouter)

	// Start River client (processes transition events)
	if err := riverClient.Start(ctx); err != nil {
		return fmt.Errorf("start river client: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port),
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", "error", err)
	}
	if err := riverClient.Stop(shutdownCtx); err != nil {
		log.Error("River client stop failed", "error", err)
	}
	return nil
}

// newLocker returns a Redis-backed locker when Redis is configured and an
// in-process one otherwise.
func newLocker(ctx context.Context, cfg *config.Config, log *slog.Logger) (lock.Locker, func(), error) {
	if cfg.Redis.Addr == "" {
		log.Warn("Redis not configured, transition locks are process-local")
		return lock.NewLocal(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("cannot reach Redis at %s: %w", cfg.Redis.Addr, err)
	}
	log.Info("Connected to Redis", "addr", cfg.Redis.Addr)
	locker := lock.NewRedis(client, lock.Options{
		Expiry:     cfg.Lock.Expiry,
		Tries:      cfg.Lock.Tries,
		RetryDelay: cfg.Lock.RetryDelay,
	}, log)
	return locker, func() { _ = client.Close() }, nil
}
