package subvault

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/subvault/account"
	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/provider"
	"github.com/xraph/subvault/refund"
	"github.com/xraph/subvault/store"
	"github.com/xraph/subvault/types"
)

// RegisterProviderRequest registers the caller as a provider.
type RegisterProviderRequest struct {
	Caller        id.AccountID
	Payment       types.Amount
	PayoutAddress id.AccountID // defaults to Caller
	Username      string       // optional
	PassHash      types.Hash
	Plans         []plan.Plan
}

// RegisterProvider creates a provider with an initial catalog. The payment
// must cover the registration fee and stays in the treasury.
func (e *Engine) RegisterProvider(ctx context.Context, req RegisterProviderRequest) (*provider.Provider, error) {
	if req.Caller.IsNil() {
		return nil, ErrMissingIdentity
	}
	if req.Payment < e.registerFee {
		return nil, fmt.Errorf("%w: paid %d, fee %d", ErrInsufficientFee, req.Payment, e.registerFee)
	}
	if err := validatePlans(req.Plans); err != nil {
		return nil, err
	}

	payout := req.PayoutAddress
	if payout.IsNil() {
		payout = req.Caller
	}

	now := e.clock()
	p := &provider.Provider{
		Entity:        types.NewEntity(now),
		ID:            req.Caller,
		PayoutAddress: payout,
		Plans:         clonePlans(req.Plans),
		PassHash:      req.PassHash,
	}

	err := e.execute(ctx, "register_provider", newSettlement(req.Caller, req.Payment), func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetProvider(ctx, req.Caller); err == nil {
			return ErrProviderExists
		} else if !errors.Is(err, ErrProviderNotFound) {
			return err
		}
		if err := claimUsername(ctx, tx, req.Caller, req.Username); err != nil {
			return err
		}
		return tx.PutProvider(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("provider registered",
		"provider", p.ID.String(),
		"payout_address", payout.String(),
		"plans", len(p.Plans),
	)
	e.plugins.EmitProviderRegistered(ctx, p)
	return p.Clone(), nil
}

// AddPlans appends plans to the caller's catalog and returns the index of
// the first one.
func (e *Engine) AddPlans(ctx context.Context, caller id.AccountID, plans []plan.Plan) (int, error) {
	if len(plans) == 0 {
		return 0, ValidationError{Field: "plans", Message: "at least one plan is required"}
	}
	if err := validatePlans(plans); err != nil {
		return 0, err
	}

	var first int
	err := e.execute(ctx, "add_plans", nil, func(ctx context.Context, tx store.Tx) error {
		p, err := callerProvider(ctx, tx, caller)
		if err != nil {
			return err
		}
		first = len(p.Plans)
		p.Plans = append(p.Plans, clonePlans(plans)...)
		p.Touch(e.clock())
		return tx.PutProvider(ctx, p)
	})
	if err != nil {
		return 0, err
	}

	e.logger.Info("plans added",
		"provider", caller.String(),
		"first_index", first,
		"count", len(plans),
	)
	e.plugins.EmitPlansAdded(ctx, caller, first, clonePlans(plans))
	return first, nil
}

// EditPlan replaces the terms of a plan. The disabled flag and the
// characteristics are kept. Existing subscriptions keep the terms they
// bought.
func (e *Engine) EditPlan(ctx context.Context, caller id.AccountID, index int, terms plan.Terms) error {
	if err := validateTerms("terms", terms); err != nil {
		return err
	}
	return e.updatePlan(ctx, caller, index, func(p *plan.Plan) error {
		terms.Disabled = p.Disabled
		p.Terms = terms
		return nil
	})
}

// TogglePlanDisabled flips the disabled flag and returns the new value.
// A disabled plan cannot be subscribed to or renewed.
func (e *Engine) TogglePlanDisabled(ctx context.Context, caller id.AccountID, index int) (bool, error) {
	var disabled bool
	err := e.updatePlan(ctx, caller, index, func(p *plan.Plan) error {
		p.Disabled = !p.Disabled
		disabled = p.Disabled
		return nil
	})
	return disabled, err
}

// AddCharacteristics appends metadata fields to a plan. New subscriptions
// must supply a value for each; renewals supply values for the fields added
// since the renewed record.
func (e *Engine) AddCharacteristics(ctx context.Context, caller id.AccountID, index int, names []string) error {
	if len(names) == 0 {
		return ValidationError{Field: "characteristics", Message: "at least one name is required"}
	}
	for i, n := range names {
		if n == "" {
			return ValidationError{Field: fmt.Sprintf("characteristics[%d]", i), Message: "must not be empty"}
		}
	}
	return e.updatePlan(ctx, caller, index, func(p *plan.Plan) error {
		p.Characteristics = append(p.Characteristics, names...)
		return nil
	})
}

// Plan returns a catalog entry.
func (e *Engine) Plan(ctx context.Context, providerID id.AccountID, index int) (plan.Plan, error) {
	p, err := e.store.GetProvider(ctx, providerID)
	if err != nil {
		return plan.Plan{}, err
	}
	pl, ok := p.Plan(index)
	if !ok {
		return plan.Plan{}, fmt.Errorf("%w: index %d", ErrPlanNotFound, index)
	}
	return pl.Clone(), nil
}

// Provider returns a provider profile.
func (e *Engine) Provider(ctx context.Context, providerID id.AccountID) (*provider.Provider, error) {
	return e.store.GetProvider(ctx, providerID)
}

func (e *Engine) updatePlan(ctx context.Context, caller id.AccountID, index int, mutate func(*plan.Plan) error) error {
	var before, after plan.Plan
	err := e.execute(ctx, "update_plan", nil, func(ctx context.Context, tx store.Tx) error {
		p, err := callerProvider(ctx, tx, caller)
		if err != nil {
			return err
		}
		pl, ok := p.Plan(index)
		if !ok {
			return fmt.Errorf("%w: index %d", ErrPlanNotFound, index)
		}
		before = pl.Clone()
		if err := mutate(&pl); err != nil {
			return err
		}
		after = pl.Clone()
		p.Plans[index] = pl
		p.Touch(e.clock())
		return tx.PutProvider(ctx, p)
	})
	if err != nil {
		return err
	}

	e.logger.Info("plan updated",
		"provider", caller.String(),
		"plan_index", index,
		"price", after.Price,
		"disabled", after.Disabled,
	)
	e.plugins.EmitPlanUpdated(ctx, caller, index, before, after)
	return nil
}

func callerProvider(ctx context.Context, r store.Reader, caller id.AccountID) (*provider.Provider, error) {
	if caller.IsNil() {
		return nil, ErrMissingIdentity
	}
	p, err := r.GetProvider(ctx, caller)
	if errors.Is(err, ErrProviderNotFound) {
		return nil, ErrNotProvider
	}
	return p, err
}

// claimUsername registers name for acct when acct has none. An account that
// already has a username keeps it; naming someone else's username fails.
func claimUsername(ctx context.Context, tx store.Tx, acct id.AccountID, name string) error {
	if name == "" {
		return nil
	}

	owner, err := tx.AccountByUsername(ctx, name)
	switch {
	case err == nil && owner.Equal(acct):
		return nil
	case err == nil:
		return ErrUsernameNotOwned
	case !errors.Is(err, ErrUsernameNotFound):
		return err
	}

	if _, err := tx.UsernameByAccount(ctx, acct); err == nil {
		return nil
	} else if !errors.Is(err, ErrUsernameNotFound) {
		return err
	}

	if !account.ValidUsername(name) {
		return fmt.Errorf("%w: %q", ErrInvalidUsername, name)
	}
	return tx.PutUsername(ctx, name, acct)
}

func validatePlans(plans []plan.Plan) error {
	var errs MultiError
	for i, p := range plans {
		errs.Add(validateTerms(fmt.Sprintf("plans[%d]", i), p.Terms))
		for j, c := range p.Characteristics {
			if c == "" {
				errs.Add(ValidationError{Field: fmt.Sprintf("plans[%d].characteristics[%d]", i, j), Message: "must not be empty"})
			}
		}
	}
	return errs.Err()
}

func validateTerms(field string, t plan.Terms) error {
	if err := refund.Check(t); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidTerms, field, err)
	}
	return nil
}

func clonePlans(plans []plan.Plan) []plan.Plan {
	out := make([]plan.Plan, len(plans))
	for i := range plans {
		out[i] = plans[i].Clone()
	}
	return out
}
