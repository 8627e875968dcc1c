// Package sqlite implements store.Store on SQLite through grove's
// sqlitedriver. The store holds a single connection, so transactions never
// contend with each other.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/account"
	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/lockedfunds"
	"github.com/xraph/subvault/provider"
	"github.com/xraph/subvault/store"
	"github.com/xraph/subvault/store/internal/rows"
	"github.com/xraph/subvault/subscription"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// querier is satisfied by both *sqlitedriver.SqliteDB and driver.Tx.
type querier interface {
	Exec(ctx context.Context, query string, args ...any) (driver.Result, error)
	QueryRow(ctx context.Context, query string, args ...any) driver.Row
}

// Store implements store.Store using SQLite via grove.
type Store struct {
	reader
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a store over an open grove database using sqlitedriver.
func New(db *grove.DB) *Store {
	sdb := sqlitedriver.Unwrap(db)
	return &Store{reader: reader{q: sdb}, db: db, sdb: sdb}
}

// Open opens the database at dsn (":memory:" for a private in-memory one)
// on a single connection with foreign keys enforced.
func Open(ctx context.Context, dsn string, opts ...grove.Option) (*Store, error) {
	sdb := sqlitedriver.New()
	if err := sdb.Open(ctx, dsn, driver.WithPoolSize(1)); err != nil {
		return nil, fmt.Errorf("subvault/sqlite: open: %w", err)
	}
	db, err := grove.Open(sdb, opts...)
	if err != nil {
		_ = sdb.Close()
		return nil, fmt.Errorf("subvault/sqlite: open: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Atomic runs fn in a transaction. The transaction is not bound to ctx, so a
// cancellation after fn returns cannot roll back the commit.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gtx, err := s.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		if errors.Is(err, grove.ErrDriverClosed) {
			return fmt.Errorf("%w: %w", subvault.ErrStoreClosed, err)
		}
		return fmt.Errorf("%w: begin: %w", subvault.ErrTransactionFailed, err)
	}
	dtx, ok := gtx.Raw().(driver.Tx)
	if !ok {
		_ = gtx.Rollback()
		return fmt.Errorf("subvault/sqlite: unexpected transaction type %T", gtx.Raw())
	}
	if err := fn(ctx, &tx{reader: reader{q: dtx}}); err != nil {
		_ = gtx.Rollback() //nolint:errcheck // the fn error is what the caller needs
		return err
	}
	if err := gtx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", subvault.ErrTransactionFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Reads ====================

type reader struct {
	q querier
}

func (r reader) GetProvider(ctx context.Context, providerID id.AccountID) (*provider.Provider, error) {
	var row rows.Provider
	var created, updated int64
	err := r.q.QueryRow(ctx, `
SELECT id, payout, plans, pass_hash, ledger_head, ledger_back, ledger_count, created_at, updated_at
FROM subvault_providers WHERE id = ?`, providerID.String()).
		Scan(&row.ID, &row.Payout, &row.Plans, &row.PassHash, &row.Head, &row.Back, &row.Count, &created, &updated)
	if err != nil {
		if isNoRows(err) {
			return nil, subvault.ErrProviderNotFound
		}
		return nil, err
	}
	row.CreatedAt, row.UpdatedAt = fromUnix(created), fromUnix(updated)
	return row.Model()
}

func (r reader) GetUser(ctx context.Context, userID id.AccountID) (*account.User, error) {
	var row rows.User
	var created, updated int64
	err := r.q.QueryRow(ctx, `
SELECT id, providers, pass_hash, created_at, updated_at
FROM subvault_users WHERE id = ?`, userID.String()).
		Scan(&row.ID, &row.Providers, &row.PassHash, &created, &updated)
	if err != nil {
		if isNoRows(err) {
			return nil, subvault.ErrUserNotFound
		}
		return nil, err
	}
	row.CreatedAt, row.UpdatedAt = fromUnix(created), fromUnix(updated)
	return row.Model()
}

func (r reader) GetGroup(ctx context.Context, buyer, providerID id.AccountID) (*subscription.Group, error) {
	var row rows.Group
	var created, updated int64
	err := r.q.QueryRow(ctx, `
SELECT buyer_id, provider_id, records, latest, pass_hash, created_at, updated_at
FROM subvault_groups WHERE buyer_id = ? AND provider_id = ?`, buyer.String(), providerID.String()).
		Scan(&row.Buyer, &row.Provider, &row.Records, &row.Latest, &row.PassHash, &created, &updated)
	if err != nil {
		if isNoRows(err) {
			return nil, subvault.ErrGroupNotFound
		}
		return nil, err
	}
	row.CreatedAt, row.UpdatedAt = fromUnix(created), fromUnix(updated)
	return row.Model()
}

func (r reader) GetBucket(ctx context.Context, providerID id.AccountID, day lockedfunds.DayID) (*lockedfunds.Bucket, error) {
	d, err := rows.Int64(day)
	if err != nil {
		return nil, err
	}
	var row rows.Bucket
	err = r.q.QueryRow(ctx, `
SELECT day, amount, next FROM subvault_buckets WHERE provider_id = ? AND day = ?`, providerID.String(), d).
		Scan(&row.Day, &row.Amount, &row.Next)
	if err != nil {
		if isNoRows(err) {
			return nil, subvault.ErrBucketNotFound
		}
		return nil, err
	}
	return row.Model()
}

func (r reader) AccountByUsername(ctx context.Context, username string) (id.AccountID, error) {
	var raw string
	err := r.q.QueryRow(ctx, `SELECT account_id FROM subvault_usernames WHERE username = ?`, username).Scan(&raw)
	if err != nil {
		if isNoRows(err) {
			return id.Nil, subvault.ErrUsernameNotFound
		}
		return id.Nil, err
	}
	return id.ParseAccountID(raw)
}

func (r reader) UsernameByAccount(ctx context.Context, accountID id.AccountID) (string, error) {
	var name string
	err := r.q.QueryRow(ctx, `SELECT username FROM subvault_usernames WHERE account_id = ?`, accountID.String()).Scan(&name)
	if err != nil {
		if isNoRows(err) {
			return "", subvault.ErrUsernameNotFound
		}
		return "", err
	}
	return name, nil
}

// ==================== Writes ====================

type tx struct {
	reader
}

func (t *tx) PutProvider(ctx context.Context, p *provider.Provider) error {
	row, err := rows.FromProvider(p)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `
INSERT INTO subvault_providers (id, payout, plans, pass_hash, ledger_head, ledger_back, ledger_count, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    payout = excluded.payout,
    plans = excluded.plans,
    pass_hash = excluded.pass_hash,
    ledger_head = excluded.ledger_head,
    ledger_back = excluded.ledger_back,
    ledger_count = excluded.ledger_count,
    updated_at = excluded.updated_at`,
		row.ID, row.Payout, string(row.Plans), row.PassHash, row.Head, row.Back, row.Count,
		toUnix(row.CreatedAt), toUnix(row.UpdatedAt))
	return err
}

func (t *tx) PutUser(ctx context.Context, u *account.User) error {
	row, err := rows.FromUser(u)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `
INSERT INTO subvault_users (id, providers, pass_hash, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    providers = excluded.providers,
    pass_hash = excluded.pass_hash,
    updated_at = excluded.updated_at`,
		row.ID, string(row.Providers), row.PassHash, toUnix(row.CreatedAt), toUnix(row.UpdatedAt))
	return err
}

func (t *tx) PutGroup(ctx context.Context, g *subscription.Group) error {
	row, err := rows.FromGroup(g)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `
INSERT INTO subvault_groups (buyer_id, provider_id, records, latest, pass_hash, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (buyer_id, provider_id) DO UPDATE SET
    records = excluded.records,
    latest = excluded.latest,
    pass_hash = excluded.pass_hash,
    updated_at = excluded.updated_at`,
		row.Buyer, row.Provider, string(row.Records), string(row.Latest), row.PassHash,
		toUnix(row.CreatedAt), toUnix(row.UpdatedAt))
	return err
}

func (t *tx) PutBucket(ctx context.Context, providerID id.AccountID, b lockedfunds.Bucket) error {
	row, err := rows.FromBucket(b)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `
INSERT INTO subvault_buckets (provider_id, day, amount, next)
VALUES (?, ?, ?, ?)
ON CONFLICT (provider_id, day) DO UPDATE SET
    amount = excluded.amount,
    next = excluded.next`,
		providerID.String(), row.Day, row.Amount, row.Next)
	return err
}

func (t *tx) PutUsername(ctx context.Context, username string, accountID id.AccountID) error {
	res, err := t.q.Exec(ctx, `
INSERT INTO subvault_usernames (username, account_id) VALUES (?, ?)
ON CONFLICT DO NOTHING`, username, accountID.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return subvault.ErrUsernameTaken
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
