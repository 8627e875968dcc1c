// Package mongo implements store.Store on MongoDB through grove's
// mongodriver. Atomic relies on multi-document transactions, so the
// deployment must be a replica set or a sharded cluster.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/account"
	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/lockedfunds"
	"github.com/xraph/subvault/provider"
	"github.com/xraph/subvault/store"
	"github.com/xraph/subvault/store/internal/rows"
	"github.com/xraph/subvault/subscription"
)

// Collection name constants.
const (
	colProviders = "subvault_providers"
	colBuckets   = "subvault_buckets"
	colUsers     = "subvault_users"
	colGroups    = "subvault_groups"
	colUsernames = "subvault_usernames"
)

const labelTransient = "TransientTransactionError"

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via grove.
type Store struct {
	reader
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a store over an open grove database using mongodriver.
func New(db *grove.DB) *Store {
	mdb := mongodriver.Unwrap(db)
	return &Store{reader: reader{db: mdb.Database()}, db: db, mdb: mdb}
}

// Open connects to uri and uses database, or the one named in uri when
// database is empty.
func Open(ctx context.Context, uri, database string, opts ...grove.Option) (*Store, error) {
	mdb := mongodriver.New()
	var mopts []mongodriver.MongoOption
	if database != "" {
		mopts = append(mopts, mongodriver.WithDatabase(database))
	}
	if err := mdb.Open(ctx, uri, mopts...); err != nil {
		return nil, fmt.Errorf("subvault/mongo: connect: %w", err)
	}
	db, err := grove.Open(mdb, opts...)
	if err != nil {
		_ = mdb.Close()
		return nil, fmt.Errorf("subvault/mongo: open: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.db.Close()
}

// Atomic runs fn inside a session transaction. fn runs exactly once; a
// transient transaction error is reported as subvault.ErrTransactionFailed
// instead of being retried, because fn may have settled funds.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if errors.Is(err, grove.ErrDriverClosed) {
			return fmt.Errorf("%w: %w", subvault.ErrStoreClosed, err)
		}
		return classify(err)
	}
	mtx, ok := gtx.Raw().(*mongodriver.MongoTx)
	if !ok {
		_ = gtx.Rollback()
		return fmt.Errorf("subvault/mongo: unexpected transaction type %T", gtx.Raw())
	}
	if err := fn(mtx.SessionContext(ctx), &tx{reader: s.reader}); err != nil {
		_ = gtx.Rollback() //nolint:errcheck // the fn error is what the caller needs
		return classify(err)
	}
	return classify(gtx.Commit())
}

// ==================== Reads ====================

type reader struct {
	db *mongo.Database
}

func (r reader) GetProvider(ctx context.Context, providerID id.AccountID) (*provider.Provider, error) {
	var m providerModel
	err := r.db.Collection(colProviders).FindOne(ctx, bson.M{"_id": providerID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, subvault.ErrProviderNotFound
		}
		return nil, fmt.Errorf("subvault/mongo: get provider: %w", err)
	}
	return fromProviderModel(&m)
}

func (r reader) GetUser(ctx context.Context, userID id.AccountID) (*account.User, error) {
	var m userModel
	err := r.db.Collection(colUsers).FindOne(ctx, bson.M{"_id": userID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, subvault.ErrUserNotFound
		}
		return nil, fmt.Errorf("subvault/mongo: get user: %w", err)
	}
	return fromUserModel(&m)
}

func (r reader) GetGroup(ctx context.Context, buyer, providerID id.AccountID) (*subscription.Group, error) {
	var m groupModel
	err := r.db.Collection(colGroups).FindOne(ctx, bson.M{"_id": groupID(buyer, providerID)}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, subvault.ErrGroupNotFound
		}
		return nil, fmt.Errorf("subvault/mongo: get group: %w", err)
	}
	return fromGroupModel(&m)
}

func (r reader) GetBucket(ctx context.Context, providerID id.AccountID, day lockedfunds.DayID) (*lockedfunds.Bucket, error) {
	d, err := rows.Int64(day)
	if err != nil {
		return nil, err
	}
	var m bucketModel
	err = r.db.Collection(colBuckets).FindOne(ctx, bson.M{"_id": bucketID(providerID, d)}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, subvault.ErrBucketNotFound
		}
		return nil, fmt.Errorf("subvault/mongo: get bucket: %w", err)
	}
	return rows.Bucket{Day: m.Day, Amount: m.Amount, Next: m.Next}.Model()
}

func (r reader) AccountByUsername(ctx context.Context, username string) (id.AccountID, error) {
	var m usernameModel
	err := r.db.Collection(colUsernames).FindOne(ctx, bson.M{"_id": username}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return id.Nil, subvault.ErrUsernameNotFound
		}
		return id.Nil, fmt.Errorf("subvault/mongo: get username: %w", err)
	}
	return id.ParseAccountID(m.Account)
}

func (r reader) UsernameByAccount(ctx context.Context, accountID id.AccountID) (string, error) {
	var m usernameModel
	err := r.db.Collection(colUsernames).FindOne(ctx, bson.M{"account_id": accountID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return "", subvault.ErrUsernameNotFound
		}
		return "", fmt.Errorf("subvault/mongo: get username: %w", err)
	}
	return m.Username, nil
}

// ==================== Writes ====================

type tx struct {
	reader
}

func (t *tx) replace(ctx context.Context, col, docID string, doc any) error {
	_, err := t.db.Collection(col).ReplaceOne(ctx, bson.M{"_id": docID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("subvault/mongo: put %s: %w", col, err)
	}
	return nil
}

func (t *tx) PutProvider(ctx context.Context, p *provider.Provider) error {
	m, err := toProviderModel(p)
	if err != nil {
		return err
	}
	return t.replace(ctx, colProviders, m.ID, m)
}

func (t *tx) PutUser(ctx context.Context, u *account.User) error {
	m := toUserModel(u)
	return t.replace(ctx, colUsers, m.ID, m)
}

func (t *tx) PutGroup(ctx context.Context, g *subscription.Group) error {
	m, err := toGroupModel(g)
	if err != nil {
		return err
	}
	return t.replace(ctx, colGroups, m.ID, m)
}

func (t *tx) PutBucket(ctx context.Context, providerID id.AccountID, b lockedfunds.Bucket) error {
	row, err := rows.FromBucket(b)
	if err != nil {
		return err
	}
	m := &bucketModel{
		ID:       bucketID(providerID, row.Day),
		Provider: providerID.String(),
		Day:      row.Day,
		Amount:   row.Amount,
		Next:     row.Next,
	}
	return t.replace(ctx, colBuckets, m.ID, m)
}

func (t *tx) PutUsername(ctx context.Context, username string, accountID id.AccountID) error {
	_, err := t.db.Collection(colUsernames).InsertOne(ctx, &usernameModel{Username: username, Account: accountID.String()})
	if mongo.IsDuplicateKeyError(err) {
		return subvault.ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("subvault/mongo: put username: %w", err)
	}
	return nil
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func classify(err error) error {
	if isTransient(err) {
		return fmt.Errorf("%w: %w", subvault.ErrTransactionFailed, err)
	}
	return err
}

func isTransient(err error) bool {
	var se mongo.ServerError
	return errors.As(err, &se) && se.HasErrorLabel(labelTransient)
}
