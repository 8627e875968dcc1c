// Package postgres implements store.Store on PostgreSQL through grove's
// pgdriver. Every Atomic call runs in a serializable transaction;
// serialization failures surface as subvault.ErrTransactionFailed so callers
// can retry.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/pgdriver"

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

// SQLSTATE codes mapped to retryable failures.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// querier is satisfied by both *pgdriver.PgDB and driver.Tx.
type querier interface {
	Exec(ctx context.Context, query string, args ...any) (driver.Result, error)
	QueryRow(ctx context.Context, query string, args ...any) driver.Row
}

// Store implements store.Store using PostgreSQL via grove.
type Store struct {
	reader
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a store over an open grove database using pgdriver.
func New(db *grove.DB) *Store {
	pg := pgdriver.Unwrap(db)
	return &Store{
		reader: reader{q: pg},
		db:     db,
		pg:     pg,
	}
}

// Open connects pgdriver to dsn and wraps it in a grove database.
func Open(ctx context.Context, dsn string, opts ...grove.Option) (*Store, error) {
	pg := pgdriver.New()
	if err := pg.Open(ctx, dsn); err != nil {
		return nil, fmt.Errorf("subvault/postgres: connect: %w", err)
	}
	db, err := grove.Open(pg, opts...)
	if err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("subvault/postgres: open: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Atomic runs fn in a serializable transaction.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	gtx, err := s.db.BeginTx(ctx, &grove.TxOptions{IsolationLevel: int(driver.LevelSerializable)})
	if err != nil {
		return classify(err)
	}
	dtx, ok := gtx.Raw().(driver.Tx)
	if !ok {
		_ = gtx.Rollback()
		return fmt.Errorf("subvault/postgres: unexpected transaction type %T", gtx.Raw())
	}
	if err := fn(ctx, &tx{reader: reader{q: dtx}}); err != nil {
		_ = gtx.Rollback()
		return classify(err)
	}
	return classify(gtx.Commit())
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
	err := r.q.QueryRow(ctx, `
SELECT id, payout, plans, pass_hash, ledger_head, ledger_back, ledger_count, created_at, updated_at
FROM subvault_providers WHERE id = $1`, providerID.String()).
		Scan(&row.ID, &row.Payout, &row.Plans, &row.PassHash, &row.Head, &row.Back, &row.Count, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, subvault.ErrProviderNotFound
		}
		return nil, err
	}
	return row.Model()
}

func (r reader) GetUser(ctx context.Context, userID id.AccountID) (*account.User, error) {
	var row rows.User
	err := r.q.QueryRow(ctx, `
SELECT id, providers, pass_hash, created_at, updated_at
FROM subvault_users WHERE id = $1`, userID.String()).
		Scan(&row.ID, &row.Providers, &row.PassHash, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, subvault.ErrUserNotFound
		}
		return nil, err
	}
	return row.Model()
}

func (r reader) GetGroup(ctx context.Context, buyer, providerID id.AccountID) (*subscription.Group, error) {
	var row rows.Group
	err := r.q.QueryRow(ctx, `
SELECT buyer_id, provider_id, records, latest, pass_hash, created_at, updated_at
FROM subvault_groups WHERE buyer_id = $1 AND provider_id = $2`, buyer.String(), providerID.String()).
		Scan(&row.Buyer, &row.Provider, &row.Records, &row.Latest, &row.PassHash, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, subvault.ErrGroupNotFound
		}
		return nil, err
	}
	return row.Model()
}

func (r reader) GetBucket(ctx context.Context, providerID id.AccountID, day lockedfunds.DayID) (*lockedfunds.Bucket, error) {
	d, err := rows.Int64(day)
	if err != nil {
		return nil, err
	}
	var row rows.Bucket
	err = r.q.QueryRow(ctx, `
SELECT day, amount, next FROM subvault_buckets WHERE provider_id = $1 AND day = $2`, providerID.String(), d).
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
	err := r.q.QueryRow(ctx, `SELECT account_id FROM subvault_usernames WHERE username = $1`, username).Scan(&raw)
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
	err := r.q.QueryRow(ctx, `SELECT username FROM subvault_usernames WHERE account_id = $1`, accountID.String()).Scan(&name)
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
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    payout = EXCLUDED.payout,
    plans = EXCLUDED.plans,
    pass_hash = EXCLUDED.pass_hash,
    ledger_head = EXCLUDED.ledger_head,
    ledger_back = EXCLUDED.ledger_back,
    ledger_count = EXCLUDED.ledger_count,
    updated_at = EXCLUDED.updated_at`,
		row.ID, row.Payout, row.Plans, row.PassHash, row.Head, row.Back, row.Count, row.CreatedAt, row.UpdatedAt)
	return err
}

func (t *tx) PutUser(ctx context.Context, u *account.User) error {
	row, err := rows.FromUser(u)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `
INSERT INTO subvault_users (id, providers, pass_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    providers = EXCLUDED.providers,
    pass_hash = EXCLUDED.pass_hash,
    updated_at = EXCLUDED.updated_at`,
		row.ID, row.Providers, row.PassHash, row.CreatedAt, row.UpdatedAt)
	return err
}

func (t *tx) PutGroup(ctx context.Context, g *subscription.Group) error {
	row, err := rows.FromGroup(g)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `
INSERT INTO subvault_groups (buyer_id, provider_id, records, latest, pass_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (buyer_id, provider_id) DO UPDATE SET
    records = EXCLUDED.records,
    latest = EXCLUDED.latest,
    pass_hash = EXCLUDED.pass_hash,
    updated_at = EXCLUDED.updated_at`,
		row.Buyer, row.Provider, row.Records, row.Latest, row.PassHash, row.CreatedAt, row.UpdatedAt)
	return err
}

func (t *tx) PutBucket(ctx context.Context, providerID id.AccountID, b lockedfunds.Bucket) error {
	row, err := rows.FromBucket(b)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `
INSERT INTO subvault_buckets (provider_id, day, amount, next)
VALUES ($1, $2, $3, $4)
ON CONFLICT (provider_id, day) DO UPDATE SET
    amount = EXCLUDED.amount,
    next = EXCLUDED.next`,
		providerID.String(), row.Day, row.Amount, row.Next)
	return err
}

func (t *tx) PutUsername(ctx context.Context, username string, accountID id.AccountID) error {
	res, err := t.q.Exec(ctx, `
INSERT INTO subvault_usernames (username, account_id) VALUES ($1, $2)
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
	return errors.Is(err, pgx.ErrNoRows)
}

func classify(err error) error {
	if errors.Is(err, grove.ErrDriverClosed) {
		return fmt.Errorf("%w: %w", subvault.ErrStoreClosed, err)
	}
	if isRetryable(err) {
		return fmt.Errorf("%w: %w", subvault.ErrTransactionFailed, err)
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}
