// Package memory provides an in-process Store. Transactions stage writes in
// an overlay that is merged on commit and dropped on error. Atomic calls are
// serialized.
package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/account"
	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/lockedfunds"
	"github.com/xraph/subvault/provider"
	"github.com/xraph/subvault/store"
	"github.com/xraph/subvault/subscription"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

type state struct {
	providers map[string]*provider.Provider
	users     map[string]*account.User
	groups    map[string]*subscription.Group
	buckets   map[string]lockedfunds.Bucket
	byName    map[string]id.AccountID
	byAccount map[string]string
}

func newState() state {
	return state{
		providers: make(map[string]*provider.Provider),
		users:     make(map[string]*account.User),
		groups:    make(map[string]*subscription.Group),
		buckets:   make(map[string]lockedfunds.Bucket),
		byName:    make(map[string]id.AccountID),
		byAccount: make(map[string]string),
	}
}

type Store struct {
	mu     sync.RWMutex
	txMu   sync.Mutex
	data   state
	closed bool
}

func New() *Store {
	return &Store{data: newState()}
}

func groupKey(buyer, providerID id.AccountID) string {
	return buyer.String() + "|" + providerID.String()
}

func bucketKey(providerID id.AccountID, day lockedfunds.DayID) string {
	return providerID.String() + "|" + strconv.FormatUint(uint64(day), 10)
}

// Reads outside a transaction.

func (s *Store) GetProvider(ctx context.Context, providerID id.AccountID) (*provider.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getProvider(providerID)
}

func (s *Store) GetUser(_ context.Context, userID id.AccountID) (*account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getUser(userID)
}

func (s *Store) GetGroup(_ context.Context, buyer, providerID id.AccountID) (*subscription.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getGroup(buyer, providerID)
}

func (s *Store) GetBucket(_ context.Context, providerID id.AccountID, day lockedfunds.DayID) (*lockedfunds.Bucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getBucket(providerID, day)
}

func (s *Store) AccountByUsername(_ context.Context, username string) (id.AccountID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.accountByUsername(username)
}

func (s *Store) UsernameByAccount(_ context.Context, accountID id.AccountID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.usernameByAccount(accountID)
}

func (d *state) getProvider(providerID id.AccountID) (*provider.Provider, error) {
	if p, ok := d.providers[providerID.String()]; ok {
		return p.Clone(), nil
	}
	return nil, subvault.ErrProviderNotFound
}

func (d *state) getUser(userID id.AccountID) (*account.User, error) {
	if u, ok := d.users[userID.String()]; ok {
		return u.Clone(), nil
	}
	return nil, subvault.ErrUserNotFound
}

func (d *state) getGroup(buyer, providerID id.AccountID) (*subscription.Group, error) {
	if g, ok := d.groups[groupKey(buyer, providerID)]; ok {
		return g.Clone(), nil
	}
	return nil, subvault.ErrGroupNotFound
}

func (d *state) getBucket(providerID id.AccountID, day lockedfunds.DayID) (*lockedfunds.Bucket, error) {
	if b, ok := d.buckets[bucketKey(providerID, day)]; ok {
		return &b, nil
	}
	return nil, subvault.ErrBucketNotFound
}

func (d *state) accountByUsername(username string) (id.AccountID, error) {
	if a, ok := d.byName[username]; ok {
		return a, nil
	}
	return id.Nil, subvault.ErrUsernameNotFound
}

func (d *state) usernameByAccount(accountID id.AccountID) (string, error) {
	if n, ok := d.byAccount[accountID.String()]; ok {
		return n, nil
	}
	return "", subvault.ErrUsernameNotFound
}

// Atomic runs fn against an overlay and merges it when fn succeeds. Once fn
// has returned nil the merge always happens.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return subvault.ErrStoreClosed
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	t := &tx{base: s, staged: newState()}
	if err := fn(ctx, t); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range t.staged.providers {
		s.data.providers[k] = v
	}
	for k, v := range t.staged.users {
		s.data.users[k] = v
	}
	for k, v := range t.staged.groups {
		s.data.groups[k] = v
	}
	for k, v := range t.staged.buckets {
		s.data.buckets[k] = v
	}
	for k, v := range t.staged.byName {
		s.data.byName[k] = v
	}
	for k, v := range t.staged.byAccount {
		s.data.byAccount[k] = v
	}
	return nil
}

// Core methods

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return subvault.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
