package sqlite

import (
	"context"
	"fmt"

	"github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"
	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the subvault store.
var Migrations = migrate.NewGroup("subvault")

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	orch := migrate.NewOrchestrator(sqlitemigrate.New(s.sdb), Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("subvault/sqlite: migration failed: %w", err)
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
    plans        TEXT NOT NULL DEFAULT '[]',
    pass_hash    BLOB NOT NULL,
    ledger_head  INTEGER NOT NULL DEFAULT 0,
    ledger_back  INTEGER NOT NULL DEFAULT 0,
    ledger_count INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL
)`)
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
    day         INTEGER NOT NULL,
    amount      INTEGER NOT NULL,
    next        INTEGER NOT NULL,
    PRIMARY KEY (provider_id, day)
)`)
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
    providers  TEXT NOT NULL DEFAULT '[]',
    pass_hash  BLOB NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
)`)
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
				if _, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subvault_groups (
    buyer_id    TEXT NOT NULL,
    provider_id TEXT NOT NULL,
    records     TEXT NOT NULL DEFAULT '[]',
    latest      TEXT NOT NULL DEFAULT '{}',
    pass_hash   BLOB NOT NULL,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL,
    PRIMARY KEY (buyer_id, provider_id)
)`); err != nil {
					return err
				}
				_, err := exec.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_subvault_groups_provider ON subvault_groups (provider_id)`)
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
    account_id TEXT NOT NULL UNIQUE
)`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS subvault_usernames`)
				return err
			},
		},
	)
}
