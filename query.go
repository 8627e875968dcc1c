package subvault

import (
	"context"
	"errors"

	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/lockedfunds"
	"github.com/xraph/subvault/store"
	"github.com/xraph/subvault/subscription"
)

// CheckSubscription reports whether the latest record of the plan is
// neither refunded nor matured.
func (e *Engine) CheckSubscription(ctx context.Context, buyer, providerID id.AccountID, planIndex int) (bool, error) {
	g, err := e.store.GetGroup(ctx, buyer, providerID)
	if errors.Is(err, ErrGroupNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	rec, _, ok := g.LatestFor(planIndex)
	if !ok {
		return false, nil
	}
	return rec.Active(e.clock()), nil
}

// CheckSubscriptionByUsername resolves username and calls CheckSubscription.
func (e *Engine) CheckSubscriptionByUsername(ctx context.Context, username string, providerID id.AccountID, planIndex int) (bool, error) {
	buyer, err := e.store.AccountByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	return e.CheckSubscription(ctx, buyer, providerID, planIndex)
}

// Records returns the buyer's whole history, grouped by provider in the
// order the buyer first subscribed to each. An unknown buyer has no records.
func (e *Engine) Records(ctx context.Context, buyer id.AccountID) ([]subscription.Record, error) {
	u, err := e.store.GetUser(ctx, buyer)
	if errors.Is(err, ErrUserNotFound) {
		return []subscription.Record{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := []subscription.Record{}
	for _, providerID := range u.Providers {
		g, err := e.store.GetGroup(ctx, buyer, providerID)
		if errors.Is(err, ErrGroupNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, g.Records...)
	}
	return out, nil
}

// RecordsWith returns the history between buyer and one provider in append
// order.
func (e *Engine) RecordsWith(ctx context.Context, buyer, providerID id.AccountID) ([]subscription.Record, error) {
	g, err := e.store.GetGroup(ctx, buyer, providerID)
	if errors.Is(err, ErrGroupNotFound) {
		return []subscription.Record{}, nil
	}
	if err != nil {
		return nil, err
	}
	return g.Records, nil
}

// RecordsByUsername returns Records for the owner of username after checking
// the passphrase against the user's pass hash.
func (e *Engine) RecordsByUsername(ctx context.Context, username, passphrase string) ([]subscription.Record, error) {
	buyer, err := e.store.AccountByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	u, err := e.store.GetUser(ctx, buyer)
	if err != nil {
		return nil, err
	}
	if !u.PassHash.Matches(passphrase) {
		return nil, ErrWrongPassphrase
	}
	return e.Records(ctx, buyer)
}

// RecordsWithByUsername returns RecordsWith for the owner of username after
// checking the passphrase against the pair's pass hash.
func (e *Engine) RecordsWithByUsername(ctx context.Context, username string, providerID id.AccountID, passphrase string) ([]subscription.Record, error) {
	buyer, err := e.store.AccountByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	g, err := e.store.GetGroup(ctx, buyer, providerID)
	if err != nil {
		return nil, err
	}
	if !g.PassHash.Matches(passphrase) {
		return nil, ErrWrongPassphrase
	}
	return g.Records, nil
}

// LockedSchedule lists the provider's live buckets from head to back. The
// header and the chain are read in one store transaction that writes nothing,
// so a concurrent lock or withdrawal is never seen half applied.
func (e *Engine) LockedSchedule(ctx context.Context, providerID id.AccountID) ([]lockedfunds.Bucket, error) {
	var out []lockedfunds.Bucket
	err := e.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.GetProvider(ctx, providerID)
		if err != nil {
			return err
		}
		chain := lockedfunds.Open(p.Ledger, bucketTable{r: tx, provider: providerID})
		out = make([]lockedfunds.Bucket, 0, p.Ledger.Count)
		return ledgerErr(chain.Walk(ctx, func(b lockedfunds.Bucket) error {
			out = append(out, b)
			return nil
		}))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
