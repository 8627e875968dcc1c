package subvault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/subvault/account"
	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/provider"
	"github.com/xraph/subvault/refund"
	"github.com/xraph/subvault/store"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/treasury"
	"github.com/xraph/subvault/types"
)

// SubscribeRequest buys one term of a plan.
type SubscribeRequest struct {
	Buyer     id.AccountID
	Provider  id.AccountID
	PlanIndex int
	Payment   types.Amount

	// PassHash protects the buyer's dashboard and the record group. It is
	// only applied when the user or group is created by this call.
	PassHash types.Hash

	// Username is claimed for the buyer when it has none yet.
	Username string

	// Metadata holds one value per plan characteristic, in order.
	Metadata []string
}

// RenewRequest extends the latest record of a plan by one term.
type RenewRequest struct {
	Buyer     id.AccountID
	Provider  id.AccountID
	PlanIndex int
	Payment   types.Amount

	// Metadata holds values for the characteristics added since the
	// renewed record was bought.
	Metadata []string
}

// Subscribe records a purchase, pays the non-refundable share to the
// provider and locks the refundable share until the term matures.
func (e *Engine) Subscribe(ctx context.Context, req SubscribeRequest) (subscription.Record, error) {
	if req.Buyer.IsNil() || req.Provider.IsNil() {
		return subscription.Record{}, ErrMissingIdentity
	}

	var rec subscription.Record
	var day uint64
	s := newSettlement(req.Buyer, req.Payment)

	err := e.execute(ctx, "subscribe", s, func(ctx context.Context, tx store.Tx) error {
		now := e.clock()

		p, err := tx.GetProvider(ctx, req.Provider)
		if err != nil {
			return err
		}
		pl, ok := p.Plan(req.PlanIndex)
		switch {
		case !ok:
			return fmt.Errorf("%w: index %d", ErrPlanNotFound, req.PlanIndex)
		case pl.Disabled:
			return ErrPlanDisabled
		case req.Payment != pl.Price:
			return fmt.Errorf("%w: paid %d, price %d", ErrWrongPayment, req.Payment, pl.Price)
		case len(req.Metadata) != len(pl.Characteristics):
			return fmt.Errorf("%w: got %d values, plan declares %d", ErrMetadataMismatch, len(req.Metadata), len(pl.Characteristics))
		}

		if err := claimUsername(ctx, tx, req.Buyer, req.Username); err != nil {
			return err
		}

		user, err := loadOrCreateUser(ctx, tx, req.Buyer, req.PassHash, now)
		if err != nil {
			return err
		}
		group, err := loadOrCreateGroup(ctx, tx, req.Buyer, req.Provider, req.PassHash, now)
		if err != nil {
			return err
		}
		if prev, _, ok := group.LatestFor(req.PlanIndex); ok && prev.Active(now) {
			return ErrAlreadyActive
		}

		rec = subscription.Record{
			Provider:  req.Provider,
			PlanIndex: req.PlanIndex,
			Terms:     pl.Snapshot(),
			StartedAt: now,
			Metadata:  append([]string(nil), req.Metadata...),
		}

		locked := refund.Locked(rec.Terms)
		if err := e.lock(ctx, tx, p, rec.MaturesAt(), locked); err != nil {
			return err
		}
		day = uint64(e.calendar.MaturityDay(rec.MaturesAt()))

		group.Append(rec)
		group.Touch(now)
		if !user.HasProvider(req.Provider) {
			user.Providers = append(user.Providers, req.Provider)
			user.Touch(now)
		}

		s.Add(p.PayoutAddress, refund.Immediate(rec.Terms), treasury.KindImmediatePayout)

		if err := tx.PutUser(ctx, user); err != nil {
			return err
		}
		return tx.PutGroup(ctx, group)
	})
	if err != nil {
		return subscription.Record{}, err
	}

	e.logger.Info("subscribed",
		"buyer", req.Buyer.String(),
		"provider", req.Provider.String(),
		"plan_index", req.PlanIndex,
		"amount", req.Payment,
		"day", day,
		"settlement", s.ID.String(),
	)
	e.plugins.EmitSubscribed(ctx, req.Buyer, rec)
	return rec, nil
}

// Renew appends a back-to-back term to a record that is still active. The
// superseded record's lock is released to the provider and the new term's
// lock is placed at its own maturity day, in the same transaction.
func (e *Engine) Renew(ctx context.Context, req RenewRequest) (subscription.Record, error) {
	if req.Buyer.IsNil() || req.Provider.IsNil() {
		return subscription.Record{}, ErrMissingIdentity
	}

	var prev, next subscription.Record
	s := newSettlement(req.Buyer, req.Payment)

	err := e.execute(ctx, "renew", s, func(ctx context.Context, tx store.Tx) error {
		now := e.clock()

		p, err := tx.GetProvider(ctx, req.Provider)
		if err != nil {
			return err
		}
		pl, ok := p.Plan(req.PlanIndex)
		switch {
		case !ok:
			return fmt.Errorf("%w: index %d", ErrPlanNotFound, req.PlanIndex)
		case pl.Disabled:
			return ErrPlanDisabled
		case req.Payment != pl.Price:
			return fmt.Errorf("%w: paid %d, price %d", ErrWrongPayment, req.Payment, pl.Price)
		}

		group, err := tx.GetGroup(ctx, req.Buyer, req.Provider)
		if errors.Is(err, ErrGroupNotFound) {
			return ErrRecordNotFound
		}
		if err != nil {
			return err
		}
		var found bool
		prev, _, found = group.LatestFor(req.PlanIndex)
		if !found {
			return ErrRecordNotFound
		}
		if !prev.Active(now) {
			return ErrNotRenewable
		}
		if len(prev.Metadata)+len(req.Metadata) != len(pl.Characteristics) {
			return fmt.Errorf("%w: %d inherited and %d new values, plan declares %d",
				ErrMetadataMismatch, len(prev.Metadata), len(req.Metadata), len(pl.Characteristics))
		}

		metadata := make([]string, 0, len(prev.Metadata)+len(req.Metadata))
		metadata = append(metadata, prev.Metadata...)
		metadata = append(metadata, req.Metadata...)
		next = subscription.Record{
			Provider:  req.Provider,
			PlanIndex: req.PlanIndex,
			Terms:     pl.Snapshot(),
			StartedAt: prev.MaturesAt(),
			Metadata:  metadata,
		}

		released := refund.Locked(prev.Terms)
		if err := e.unlock(ctx, tx, p, prev.MaturesAt(), released); err != nil {
			return err
		}
		if err := e.lock(ctx, tx, p, next.MaturesAt(), refund.Locked(next.Terms)); err != nil {
			return err
		}

		group.Append(next)
		group.Touch(now)

		s.Add(p.PayoutAddress, refund.Immediate(next.Terms), treasury.KindImmediatePayout)
		s.Add(p.PayoutAddress, released, treasury.KindMaturedPayout)

		return tx.PutGroup(ctx, group)
	})
	if err != nil {
		return subscription.Record{}, err
	}

	e.logger.Info("renewed",
		"buyer", req.Buyer.String(),
		"provider", req.Provider.String(),
		"plan_index", req.PlanIndex,
		"amount", req.Payment,
		"starts_at", next.StartedAt,
		"matures_at", next.MaturesAt(),
		"settlement", s.ID.String(),
	)
	e.plugins.EmitRenewed(ctx, req.Buyer, prev, next)
	return next, nil
}

// Refund ends an active record early. The buyer gets the unused share of the
// price, capped at the locked amount, and the provider keeps the rest of the
// lock.
func (e *Engine) Refund(ctx context.Context, buyer, providerID id.AccountID, planIndex int) (refund.Split, error) {
	if buyer.IsNil() || providerID.IsNil() {
		return refund.Split{}, ErrMissingIdentity
	}

	var rec subscription.Record
	var split refund.Split
	s := newSettlement(buyer, 0)

	err := e.execute(ctx, "refund", s, func(ctx context.Context, tx store.Tx) error {
		now := e.clock()

		p, err := tx.GetProvider(ctx, providerID)
		if err != nil {
			return err
		}
		group, err := tx.GetGroup(ctx, buyer, providerID)
		if errors.Is(err, ErrGroupNotFound) {
			return ErrRecordNotFound
		}
		if err != nil {
			return err
		}
		var pos int
		var found bool
		rec, pos, found = group.LatestFor(planIndex)
		if !found {
			return ErrRecordNotFound
		}
		if !rec.Active(now) {
			return ErrNotRefundable
		}

		split, err = refund.Compute(rec.Terms, now.Sub(rec.StartedAt))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidTerms, err)
		}
		if err := e.unlock(ctx, tx, p, rec.MaturesAt(), split.Released); err != nil {
			return err
		}

		group.MarkRefunded(pos)
		group.Touch(now)
		rec = group.Records[pos]

		s.Add(buyer, split.Buyer, treasury.KindRefund)
		s.Add(p.PayoutAddress, split.Provider, treasury.KindRefundRemainder)

		return tx.PutGroup(ctx, group)
	})
	if err != nil {
		return refund.Split{}, err
	}

	e.logger.Info("refunded",
		"buyer", buyer.String(),
		"provider", providerID.String(),
		"plan_index", planIndex,
		"amount", split.Buyer,
		"provider_share", split.Provider,
		"dust", split.Dust(),
		"settlement", s.ID.String(),
	)
	e.plugins.EmitRefunded(ctx, buyer, rec, split)
	return split, nil
}

// Withdraw pays the provider every locked amount whose maturity day has
// passed. It returns zero when nothing has matured.
func (e *Engine) Withdraw(ctx context.Context, caller id.AccountID) (types.Amount, error) {
	var total types.Amount
	var cutoff uint64
	s := newSettlement(caller, 0)

	err := e.execute(ctx, "withdraw", s, func(ctx context.Context, tx store.Tx) error {
		p, err := callerProvider(ctx, tx, caller)
		if err != nil {
			return err
		}
		today := e.calendar.Today(e.clock())
		cutoff = uint64(today)

		chain := openChain(tx, p.ID, p.Ledger)
		res, err := chain.Drain(ctx, today)
		if err != nil {
			return ledgerErr(err)
		}
		if res.Consumed == 0 {
			return nil
		}
		if err := chain.Commit(res); err != nil {
			return ledgerErr(err)
		}
		total = res.Total

		p.Ledger = chain.Header()
		p.Touch(e.clock())
		s.Add(p.PayoutAddress, total, treasury.KindWithdrawal)

		return tx.PutProvider(ctx, p)
	})
	if err != nil {
		return 0, err
	}

	e.logger.Info("withdrawn",
		"provider", caller.String(),
		"amount", total,
		"day", cutoff,
		"settlement", s.ID.String(),
	)
	if total > 0 {
		e.plugins.EmitWithdrawn(ctx, caller, total, s.ID)
	}
	return total, nil
}

// lock adds amount to the bucket of the maturity instant and stages the
// provider's new header.
func (e *Engine) lock(ctx context.Context, tx store.Tx, p *provider.Provider, maturesAt time.Time, amount types.Amount) error {
	if amount == 0 {
		return nil
	}
	chain := openChain(tx, p.ID, p.Ledger)
	if err := chain.Insert(ctx, e.calendar.MaturityDay(maturesAt), amount); err != nil {
		return ledgerErr(err)
	}
	p.Ledger = chain.Header()
	return tx.PutProvider(ctx, p)
}

// unlock removes amount from the bucket of the maturity instant.
func (e *Engine) unlock(ctx context.Context, tx store.Tx, p *provider.Provider, maturesAt time.Time, amount types.Amount) error {
	if amount == 0 {
		return nil
	}
	chain := openChain(tx, p.ID, p.Ledger)
	if err := chain.Release(ctx, e.calendar.MaturityDay(maturesAt), amount); err != nil {
		return ledgerErr(err)
	}
	p.Ledger = chain.Header()
	return tx.PutProvider(ctx, p)
}

func loadOrCreateUser(ctx context.Context, tx store.Tx, buyer id.AccountID, pass types.Hash, now time.Time) (*account.User, error) {
	u, err := tx.GetUser(ctx, buyer)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	return &account.User{Entity: types.NewEntity(now), ID: buyer, PassHash: pass}, nil
}

func loadOrCreateGroup(ctx context.Context, tx store.Tx, buyer, providerID id.AccountID, pass types.Hash, now time.Time) (*subscription.Group, error) {
	g, err := tx.GetGroup(ctx, buyer, providerID)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, ErrGroupNotFound) {
		return nil, err
	}
	g = subscription.NewGroup(buyer, providerID, now)
	g.PassHash = pass
	return g, nil
}
