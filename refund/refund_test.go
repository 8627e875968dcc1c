package refund_test

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/refund"
	"github.com/xraph/subvault/types"
)

const day = 24 * time.Hour

func terms(price types.Amount, permille uint32, duration time.Duration) plan.Terms {
	return plan.Terms{Price: price, MaxRefundPermille: permille, Duration: duration}
}

func TestLockedAndImmediate(t *testing.T) {
	tests := []struct {
		name      string
		terms     plan.Terms
		locked    types.Amount
		immediate types.Amount
	}{
		{"Half", terms(100, 500, day), 50, 50},
		{"None", terms(100, 0, day), 0, 100},
		{"Full", terms(100, 1000, day), 100, 0},
		{"Floors", terms(999, 333, day), 332, 666},
		{"Zero", terms(0, 500, day), 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := refund.Locked(tt.terms); got != tt.locked {
				t.Errorf("Locked: got %d, want %d", got, tt.locked)
			}
			if got := refund.Immediate(tt.terms); got != tt.immediate {
				t.Errorf("Immediate: got %d, want %d", got, tt.immediate)
			}
			if refund.Locked(tt.terms)+refund.Immediate(tt.terms) > tt.terms.Price {
				t.Error("locked plus immediate exceeds price")
			}
		})
	}
}

func TestCompute(t *testing.T) {
	thirty := terms(100, 500, 30*day)

	tests := []struct {
		name     string
		terms    plan.Terms
		elapsed  time.Duration
		buyer    types.Amount
		provider types.Amount
	}{
		{"AtPurchase", thirty, 0, 50, 0},
		{"HalfwayCapped", thirty, 15 * day, 50, 0},
		{"TwoThirds", thirty, 20 * day, 33, 16},
		{"AlmostMatured", thirty, 30*day - time.Second, 0, 49},
		{"AtMaturity", thirty, 30 * day, 0, 50},
		{"NegativeElapsed", thirty, -day, 50, 0},
		{"PastMaturity", thirty, 40 * day, 0, 50},
		{"FullRefundable", terms(1000, 1000, 10*day), 4 * day, 600, 400},
		{"NothingRefundable", terms(1000, 0, 10*day), day, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := refund.Compute(tt.terms, tt.elapsed)
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			if got.Buyer != tt.buyer || got.Provider != tt.provider {
				t.Errorf("got buyer %d provider %d, want %d/%d", got.Buyer, got.Provider, tt.buyer, tt.provider)
			}
			if got.Released != refund.Locked(tt.terms) {
				t.Errorf("released: got %d, want %d", got.Released, refund.Locked(tt.terms))
			}
			if got.Buyer+got.Provider > got.Released {
				t.Errorf("payouts %d+%d exceed released %d", got.Buyer, got.Provider, got.Released)
			}
		})
	}
}

func TestComputeMonotonic(t *testing.T) {
	tm := terms(12345, 777, 17*day)
	prev := types.MaxAmount
	for elapsed := time.Duration(0); elapsed <= tm.Duration; elapsed += 5 * time.Hour {
		split, err := refund.Compute(tm, elapsed)
		if err != nil {
			t.Fatal(err)
		}
		if split.Buyer > prev {
			t.Fatalf("buyer share rose at %v: %d > %d", elapsed, split.Buyer, prev)
		}
		if split.Dust() > 1 {
			t.Fatalf("dust %d at %v", split.Dust(), elapsed)
		}
		prev = split.Buyer
	}
}

func TestComputeRejectsBadTerms(t *testing.T) {
	tests := []struct {
		name  string
		terms plan.Terms
	}{
		{"ZeroDuration", terms(100, 500, 0)},
		{"PermilleTooHigh", terms(100, 1001, day)},
		{"PriceTooHigh", terms(refund.MaxPrice+1, 500, day)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := refund.Compute(tt.terms, 0); !errors.Is(err, refund.ErrTerms) {
				t.Errorf("got %v, want ErrTerms", err)
			}
		})
	}
}

func TestComputeLargePrice(t *testing.T) {
	tm := terms(refund.MaxPrice, 1000, 365*day)
	split, err := refund.Compute(tm, 364*day)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if split.Buyer == 0 || split.Buyer+split.Provider > split.Released {
		t.Errorf("unexpected split %+v", split)
	}
}
