// Package refund computes the fixed-point amounts of a purchase: what is
// locked against refunds, what the provider is paid up front, and how an
// early refund splits the locked amount.
//
// All arithmetic is integer with floor division. Dust left over by a split
// is not redistributed.
package refund

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/types"
)

// MaxPrice is the largest price the calculator accepts. It keeps price×1000
// inside a signed 64-bit integer.
const MaxPrice = types.Amount(math.MaxInt64 / plan.PermilleScale)

// ErrTerms reports terms the calculator cannot work with.
var ErrTerms = errors.New("refund: invalid terms")

// Split is the outcome of refunding a subscription early.
type Split struct {
	Buyer    types.Amount `json:"buyer"`
	Provider types.Amount `json:"provider"`
	Released types.Amount `json:"released"`
}

// Dust is the part of Released paid to nobody.
func (s Split) Dust() types.Amount {
	return s.Released - s.Buyer - s.Provider
}

// Check validates the terms the formulas rely on.
func Check(t plan.Terms) error {
	switch {
	case t.Duration <= 0:
		return fmt.Errorf("%w: duration must be positive", ErrTerms)
	case t.MaxRefundPermille > plan.PermilleScale:
		return fmt.Errorf("%w: permille %d above %d", ErrTerms, t.MaxRefundPermille, plan.PermilleScale)
	case t.Price > MaxPrice:
		return fmt.Errorf("%w: price %d above %d", ErrTerms, t.Price, MaxPrice)
	}
	return nil
}

// Locked is price×permille/1000, the reserve set aside at purchase.
func Locked(t plan.Terms) types.Amount {
	return types.Amount(uint64(t.Price) * uint64(t.MaxRefundPermille) / plan.PermilleScale)
}

// Immediate is price×(1000−permille)/1000, paid to the provider at purchase.
func Immediate(t plan.Terms) types.Amount {
	return types.Amount(uint64(t.Price) * uint64(plan.PermilleScale-t.MaxRefundPermille) / plan.PermilleScale)
}

// Compute splits the locked amount of a subscription refunded after elapsed.
// The buyer gets the unused fraction of the price capped at the promised
// reserve; the provider keeps the rest of the reserve. Elapsed is clamped to
// [0, Duration].
func Compute(t plan.Terms, elapsed time.Duration) (Split, error) {
	if err := Check(t); err != nil {
		return Split{}, err
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > t.Duration {
		elapsed = t.Duration
	}

	full := uint64(t.Price) * plan.PermilleScale
	used, err := types.MulDiv(full, uint64(elapsed), uint64(t.Duration))
	if err != nil {
		return Split{}, fmt.Errorf("refund: used share: %w", err)
	}
	remaining := full - uint64(used)
	promised := uint64(t.Price) * uint64(t.MaxRefundPermille)

	customer := min(remaining, promised)
	split := Split{
		Buyer:    types.Amount(customer / plan.PermilleScale),
		Released: Locked(t),
	}
	if customer < promised {
		split.Provider = types.Amount((promised - customer) / plan.PermilleScale)
	}
	return split, nil
}
