package subvault

import (
	"context"
	"errors"

	"github.com/xraph/subvault/account"
	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/store"
	"github.com/xraph/subvault/types"
)

// SetUserPassHash replaces the buyer's dashboard pass hash.
func (e *Engine) SetUserPassHash(ctx context.Context, caller id.AccountID, hash types.Hash) error {
	return e.execute(ctx, "set_user_pass_hash", nil, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.GetUser(ctx, caller)
		if err != nil {
			return err
		}
		u.PassHash = hash
		u.Touch(e.clock())
		return tx.PutUser(ctx, u)
	})
}

// SetProviderPassHash replaces the provider's dashboard pass hash.
func (e *Engine) SetProviderPassHash(ctx context.Context, caller id.AccountID, hash types.Hash) error {
	return e.execute(ctx, "set_provider_pass_hash", nil, func(ctx context.Context, tx store.Tx) error {
		p, err := callerProvider(ctx, tx, caller)
		if err != nil {
			return err
		}
		p.PassHash = hash
		p.Touch(e.clock())
		return tx.PutProvider(ctx, p)
	})
}

// SetRecordPassHash replaces the pass hash guarding the caller's history
// with one provider.
func (e *Engine) SetRecordPassHash(ctx context.Context, caller, providerID id.AccountID, hash types.Hash) error {
	return e.execute(ctx, "set_record_pass_hash", nil, func(ctx context.Context, tx store.Tx) error {
		g, err := tx.GetGroup(ctx, caller, providerID)
		if err != nil {
			return err
		}
		g.PassHash = hash
		g.Touch(e.clock())
		return tx.PutGroup(ctx, g)
	})
}

// CheckAuth checks a passphrase against the (buyer, provider) pass hash.
func (e *Engine) CheckAuth(ctx context.Context, buyer, providerID id.AccountID, passphrase string) (bool, error) {
	g, err := e.store.GetGroup(ctx, buyer, providerID)
	if errors.Is(err, ErrGroupNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return g.PassHash.Matches(passphrase), nil
}

// CheckAuthByUsername resolves username and calls CheckAuth.
func (e *Engine) CheckAuthByUsername(ctx context.Context, username string, providerID id.AccountID, passphrase string) (bool, error) {
	buyer, err := e.store.AccountByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	return e.CheckAuth(ctx, buyer, providerID, passphrase)
}

// UserCheckAuth checks a passphrase against the buyer's pass hash.
func (e *Engine) UserCheckAuth(ctx context.Context, buyer id.AccountID, passphrase string) (bool, error) {
	u, err := e.store.GetUser(ctx, buyer)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.PassHash.Matches(passphrase), nil
}

// UserCheckAuthByUsername resolves username and calls UserCheckAuth.
func (e *Engine) UserCheckAuthByUsername(ctx context.Context, username, passphrase string) (bool, error) {
	buyer, err := e.store.AccountByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	return e.UserCheckAuth(ctx, buyer, passphrase)
}

// ProviderCheckAuth checks a passphrase against the provider's pass hash.
func (e *Engine) ProviderCheckAuth(ctx context.Context, providerID id.AccountID, passphrase string) (bool, error) {
	p, err := e.store.GetProvider(ctx, providerID)
	if errors.Is(err, ErrProviderNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.PassHash.Matches(passphrase), nil
}

// ProviderCheckAuthByUsername resolves username and calls ProviderCheckAuth.
func (e *Engine) ProviderCheckAuthByUsername(ctx context.Context, username, passphrase string) (bool, error) {
	providerID, err := e.store.AccountByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	return e.ProviderCheckAuth(ctx, providerID, passphrase)
}

// UsernameAvailable reports whether name is valid and unclaimed.
func (e *Engine) UsernameAvailable(ctx context.Context, name string) (bool, error) {
	if !account.ValidUsername(name) {
		return false, ErrInvalidUsername
	}
	_, err := e.store.AccountByUsername(ctx, name)
	if errors.Is(err, ErrUsernameNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// UsernameOf returns the username registered to an account.
func (e *Engine) UsernameOf(ctx context.Context, acct id.AccountID) (string, error) {
	return e.store.UsernameByAccount(ctx, acct)
}
