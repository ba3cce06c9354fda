package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/bulk-sms-approvals/internal/api"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/cache"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/client"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/config"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/identity"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/logging"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/repo"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/scheduler"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/service"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/workflow"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.New(logging.Config{Level: level, Format: cfg.Log.Format, Output: os.Stdout})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		slog.Error("approvals service stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	submissions, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	sender := service.NewSender(
		client.NewSMSClient(cfg.Webhook.URL, cfg.Workflow.Timeout),
		cfg.Webhook.ContentMax,
		cfg.Webhook.Concurrency,
	)

	var receipts cache.ReceiptCache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unavailable, dispatch receipts disabled", "addr", cfg.Redis.Address, "err", err)
		} else {
			rc := cache.NewRedisCache(rdb, cfg.Redis.TTL)
			receipts = rc
			sender.WithHooks(receiptHooks(rc, logging.WithComponent(logger, "sender")))
		}
	}

	scanner := scannerAdapter{c: client.NewScannerClient(cfg.Scanner.URL, cfg.Scanner.Token, cfg.Workflow.Timeout)}
	engine := workflow.New(submissions, scanner, sender, cfg.Workflow.Timeout).
		WithLogger(logging.WithComponent(logger, "workflow"))

	drafts := api.NewDraftStore(cfg.Drafts.TTL)
	sweepLog := logging.WithComponent(logger, "draft-sweep")
	sched, err := scheduler.New("draft-sweep", cfg.Drafts.SweepInterval, func(ctx context.Context) error {
		removed, err := drafts.Sweep(ctx)
		if removed > 0 {
			sweepLog.Info("stale drafts removed", "count", removed)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	sched.WithLogger(logging.WithComponent(logger, "scheduler"))
	sched.Start()
	defer sched.Stop()

	h := api.NewHandler(api.Deps{
		Engine:      engine,
		Submissions: submissions,
		Drafts:      drafts,
		Scheduler:   sched,
		Receipts:    receipts,
		Resolver:    identity.HeaderResolver{},
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(h)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("approvals service starting",
			"addr", cfg.Server.Address,
			"store", cfg.Store.Driver,
			"redis", cfg.Redis.Enabled,
			"draft_ttl", cfg.Drafts.TTL.String(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slog.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.StoreConfig) (repo.SubmissionRepository, func(), error) {
	var (
		db      *sql.DB
		dialect repo.Dialect
		err     error
	)
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err = repo.OpenPostgres(ctx, cfg.PostgresURL)
		dialect = repo.Postgres
	case config.DriverSQLite:
		db, err = repo.OpenSQLite(ctx, cfg.SQLitePath)
		dialect = repo.SQLite
	default:
		return repo.NewMemorySubmissionRepo(), func() {}, nil
	}
	if err != nil {
		return nil, nil, err
	}

	r, err := repo.NewSQLSubmissionRepo(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return r, func() { _ = db.Close() }, nil
}

// receiptHooks records bulk outcomes in the receipt cache. Cache failures are
// logged and never fail the dispatch.
func receiptHooks(rc cache.ReceiptCache, logger *slog.Logger) (
	func(ctx context.Context, submissionID string, contactID int, remoteMessageID string) error,
	func(ctx context.Context, submissionID string, contactID int, reason string) error,
) {
	onSent := func(ctx context.Context, submissionID string, contactID int, remoteMessageID string) error {
		if err := rc.StoreSent(ctx, submissionID, contactID, remoteMessageID, time.Now().UTC()); err != nil {
			logger.Warn("store receipt failed", "submission_id", submissionID, "contact_id", contactID, "err", err)
		}
		return nil
	}
	onFailed := func(ctx context.Context, submissionID string, contactID int, reason string) error {
		logger.Warn("message not delivered", "submission_id", submissionID, "contact_id", contactID, "reason", reason)
		return nil
	}
	return onSent, onFailed
}

type scannerAdapter struct {
	c *client.ScannerClient
}

func (s scannerAdapter) Scan(ctx context.Context, fileName string, data []byte) (workflow.ScanVerdict, error) {
	res, err := s.c.Scan(ctx, fileName, data)
	if err != nil {
		return workflow.ScanVerdict{}, err
	}
	return workflow.ScanVerdict{Clean: res.Clean, Detail: res.Detail}, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
