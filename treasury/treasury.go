// Package treasury defines the value-transfer primitive subvault settles
// through. The treasury holds every payment the engine has received and
// pays out of that balance.
package treasury

import (
	"context"
	"errors"

	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/types"
)

var (
	// ErrInsufficientReserve means the payout would take the balance below
	// the configured reserve.
	ErrInsufficientReserve = errors.New("treasury: insufficient reserve")

	// ErrTransferFailed means the rail rejected the settlement.
	ErrTransferFailed = errors.New("treasury: transfer failed")
)

// Kind labels why a transfer is made.
type Kind string

const (
	KindImmediatePayout Kind = "immediate_payout"
	KindMaturedPayout   Kind = "matured_payout"
	KindRefund          Kind = "refund"
	KindRefundRemainder Kind = "refund_remainder"
	KindWithdrawal      Kind = "withdrawal"
)

// Transfer moves Amount to Destination.
type Transfer struct {
	ID          id.TransferID `json:"id"`
	Destination id.AccountID  `json:"destination"`
	Amount      types.Amount  `json:"amount"`
	Kind        Kind          `json:"kind"`
}

// Settlement is everything one engine call moves: the payment attached to
// the call and the transfers it triggers.
type Settlement struct {
	ID        id.SettlementID `json:"id"`
	Payer     id.AccountID    `json:"payer"`
	Inbound   types.Amount    `json:"inbound"`
	Transfers []Transfer      `json:"transfers"`
}

// Add appends a transfer, skipping zero amounts.
func (s *Settlement) Add(dest id.AccountID, amount types.Amount, kind Kind) {
	if amount == 0 {
		return
	}
	s.Transfers = append(s.Transfers, Transfer{
		ID:          id.NewTransferID(),
		Destination: dest,
		Amount:      amount,
		Kind:        kind,
	})
}

// Outbound sums the transfers.
func (s Settlement) Outbound() (types.Amount, error) {
	var total types.Amount
	for _, t := range s.Transfers {
		var err error
		if total, err = total.Add(t.Amount); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// IsEmpty reports whether the settlement moves nothing.
func (s Settlement) IsEmpty() bool {
	return s.Inbound == 0 && len(s.Transfers) == 0
}

// Treasury applies settlements. Settle must be all-or-nothing: on error no
// part of the settlement has taken effect. It must not retry.
type Treasury interface {
	Settle(ctx context.Context, s Settlement) error
}
