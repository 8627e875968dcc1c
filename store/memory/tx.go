package memory

import (
	"context"
	"errors"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/account"
	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/lockedfunds"
	"github.com/xraph/subvault/provider"
	"github.com/xraph/subvault/subscription"
)

// tx reads its own staged writes first and falls through to the committed
// state. Only Atomic creates one, while holding the transaction lock.
type tx struct {
	base   *Store
	staged state
}

func (t *tx) GetProvider(ctx context.Context, providerID id.AccountID) (*provider.Provider, error) {
	p, err := t.staged.getProvider(providerID)
	if !errors.Is(err, subvault.ErrProviderNotFound) {
		return p, err
	}
	return t.base.GetProvider(ctx, providerID)
}

func (t *tx) GetUser(ctx context.Context, userID id.AccountID) (*account.User, error) {
	u, err := t.staged.getUser(userID)
	if !errors.Is(err, subvault.ErrUserNotFound) {
		return u, err
	}
	return t.base.GetUser(ctx, userID)
}

func (t *tx) GetGroup(ctx context.Context, buyer, providerID id.AccountID) (*subscription.Group, error) {
	g, err := t.staged.getGroup(buyer, providerID)
	if !errors.Is(err, subvault.ErrGroupNotFound) {
		return g, err
	}
	return t.base.GetGroup(ctx, buyer, providerID)
}

func (t *tx) GetBucket(ctx context.Context, providerID id.AccountID, day lockedfunds.DayID) (*lockedfunds.Bucket, error) {
	b, err := t.staged.getBucket(providerID, day)
	if !errors.Is(err, subvault.ErrBucketNotFound) {
		return b, err
	}
	return t.base.GetBucket(ctx, providerID, day)
}

func (t *tx) AccountByUsername(ctx context.Context, username string) (id.AccountID, error) {
	a, err := t.staged.accountByUsername(username)
	if !errors.Is(err, subvault.ErrUsernameNotFound) {
		return a, err
	}
	return t.base.AccountByUsername(ctx, username)
}

func (t *tx) UsernameByAccount(ctx context.Context, accountID id.AccountID) (string, error) {
	n, err := t.staged.usernameByAccount(accountID)
	if !errors.Is(err, subvault.ErrUsernameNotFound) {
		return n, err
	}
	return t.base.UsernameByAccount(ctx, accountID)
}

func (t *tx) PutProvider(_ context.Context, p *provider.Provider) error {
	t.staged.providers[p.ID.String()] = p.Clone()
	return nil
}

func (t *tx) PutUser(_ context.Context, u *account.User) error {
	t.staged.users[u.ID.String()] = u.Clone()
	return nil
}

func (t *tx) PutGroup(_ context.Context, g *subscription.Group) error {
	t.staged.groups[groupKey(g.Buyer, g.Provider)] = g.Clone()
	return nil
}

func (t *tx) PutBucket(_ context.Context, providerID id.AccountID, b lockedfunds.Bucket) error {
	t.staged.buckets[bucketKey(providerID, b.Day)] = b
	return nil
}

func (t *tx) PutUsername(ctx context.Context, username string, accountID id.AccountID) error {
	if owner, err := t.AccountByUsername(ctx, username); err == nil && !owner.Equal(accountID) {
		return subvault.ErrUsernameTaken
	}
	t.staged.byName[username] = accountID
	t.staged.byAccount[accountID.String()] = username
	return nil
}
