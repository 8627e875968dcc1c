package postgres

import (
	"context"
	"fmt"

	"github.com/xraph/grove/drivers/pgdriver/pgmigrate"
	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the subvault store.
var Migrations = migrate.NewGroup("subvault")

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	orch := migrate.NewOrchestrator(pgmigrate.New(s.pg), Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("subvault/postgres: migration failed: %w", err)
	}
	return nil
}

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_subvault_providers",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subvault_providers (
    id           TEXT PRIMARY KEY,
    payout       TEXT NOT NULL,
    plans        JSONB NOT NULL DEFAULT '[]',
    pass_hash    BYTEA NOT NULL,
    ledger_head  BIGINT NOT NULL DEFAULT 0,
    ledger_back  BIGINT NOT NULL DEFAULT 0,
    ledger_count BIGINT NOT NULL DEFAULT 0,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS subvault_providers`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_subvault_buckets",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subvault_buckets (
    provider_id TEXT NOT NULL REFERENCES subvault_providers (id),
    day         BIGINT NOT NULL,
    amount      BIGINT NOT NULL,
    next        BIGINT NOT NULL,
    PRIMARY KEY (provider_id, day)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS subvault_buckets`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_subvault_users",
			Version: "20260101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subvault_users (
    id         TEXT PRIMARY KEY,
    providers  JSONB NOT NULL DEFAULT '[]',
    pass_hash  BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS subvault_users`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_subvault_groups",
			Version: "20260101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subvault_groups (
    buyer_id    TEXT NOT NULL,
    provider_id TEXT NOT NULL,
    records     JSONB NOT NULL DEFAULT '[]',
    latest      JSONB NOT NULL DEFAULT '{}',
    pass_hash   BYTEA NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (buyer_id, provider_id)
);

CREATE INDEX IF NOT EXISTS idx_subvault_groups_provider ON subvault_groups (provider_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS subvault_groups`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_subvault_usernames",
			Version: "20260101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subvault_usernames (
    username   TEXT PRIMARY KEY,
    account_id TEXT NOT NULL UNIQUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS subvault_usernames`)
				return err
			},
		},
	)
}
