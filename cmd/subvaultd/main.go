// Command subvaultd serves the subvault engine over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/xraph/grove"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/api"
	audithook "github.com/xraph/subvault/audit_hook"
	"github.com/xraph/subvault/lockedfunds"
	"github.com/xraph/subvault/store"
	"github.com/xraph/subvault/store/memory"
	"github.com/xraph/subvault/store/mongo"
	"github.com/xraph/subvault/store/postgres"
	"github.com/xraph/subvault/store/sqlite"
	"github.com/xraph/subvault/treasury"
	treasurymem "github.com/xraph/subvault/treasury/memory"
	treasuryredis "github.com/xraph/subvault/treasury/redis"
	"github.com/xraph/subvault/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	t, err := openTreasury(ctx, cfg.Treasury)
	if err != nil {
		_ = s.Close() //nolint:errcheck // already failing
		return err
	}

	opts := []subvault.Option{
		subvault.WithLogger(logger),
		subvault.WithCalendar(lockedfunds.Calendar{Epoch: cfg.CalendarEpoch, DayLength: cfg.CalendarDayLength}),
		subvault.WithProviderRegisterFee(types.Amount(cfg.RegisterFee)),
	}
	if cfg.AuditLog {
		opts = append(opts, subvault.WithPlugin(audithook.New(auditLogger(logger), audithook.WithLogger(logger))))
	}
	engine := subvault.New(s, t, opts...)
	if err := engine.Start(ctx); err != nil {
		_ = s.Close() //nolint:errcheck // already failing
		return fmt.Errorf("subvaultd: start engine: %w", err)
	}
	defer func() {
		if err := engine.Stop(context.Background()); err != nil {
			logger.Error("engine stop failed", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.New(engine, api.WithLogger(logger)),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("subvaultd listening",
		"addr", cfg.HTTP.Addr,
		"store", cfg.Store.Driver,
		"treasury", cfg.Treasury.Driver,
	)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("subvaultd: serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("subvaultd shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("subvaultd: shutdown: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg storeConfig, logger *slog.Logger) (store.Store, error) {
	dbLogger := grove.WithLogger(logger.WithGroup("store"))
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, errors.New("subvaultd: SUBVAULT_STORE_POSTGRES_DSN is required for the postgres store")
		}
		return postgres.Open(ctx, cfg.PostgresDSN, dbLogger)
	case "sqlite":
		return sqlite.Open(ctx, cfg.SQLitePath, dbLogger)
	case "mongo":
		return mongo.Open(ctx, cfg.MongoURI, cfg.MongoDatabase, dbLogger)
	default:
		return nil, fmt.Errorf("subvaultd: unknown store driver %q", cfg.Driver)
	}
}

func openTreasury(ctx context.Context, cfg treasuryConfig) (treasury.Treasury, error) {
	reserve := types.Amount(cfg.Reserve)
	switch cfg.Driver {
	case "memory":
		return treasurymem.New(treasurymem.WithReserve(reserve)), nil
	case "redis":
		client, err := treasuryredis.Connect(ctx, cfg.RedisURL, cfg.RedisAttempts, cfg.RedisInterval)
		if err != nil {
			return nil, err
		}
		return treasuryredis.New(client,
			treasuryredis.WithPrefix(cfg.RedisPrefix),
			treasuryredis.WithReserve(reserve),
		), nil
	default:
		return nil, fmt.Errorf("subvaultd: unknown treasury driver %q", cfg.Driver)
	}
}

// auditLogger writes audit events to the service log.
func auditLogger(logger *slog.Logger) audithook.Recorder {
	audit := logger.WithGroup("audit")
	return audithook.RecorderFunc(func(ctx context.Context, ev *audithook.AuditEvent) error {
		audit.InfoContext(ctx, ev.Action,
			"resource", ev.Resource,
			"resource_id", ev.ResourceID,
			"category", ev.Category,
			"outcome", ev.Outcome,
			"severity", ev.Severity,
			"reason", ev.Reason,
			"metadata", ev.Metadata,
		)
		return nil
	})
}
