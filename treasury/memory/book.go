// Package memory provides an in-process Treasury backed by a balance book.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/treasury"
	"github.com/xraph/subvault/types"
)

// Compile-time interface check.
var _ treasury.Treasury = (*Book)(nil)

// Book tracks the treasury balance and what each destination has received.
type Book struct {
	mu       sync.Mutex
	balance  types.Amount
	reserve  types.Amount
	received map[string]types.Amount
	settled  []treasury.Settlement
}

// Option configures a Book.
type Option func(*Book)

// WithReserve keeps at least r in the book after every settlement.
func WithReserve(r types.Amount) Option {
	return func(b *Book) { b.reserve = r }
}

// WithBalance seeds the opening balance.
func WithBalance(v types.Amount) Option {
	return func(b *Book) { b.balance = v }
}

// New creates an empty book.
func New(opts ...Option) *Book {
	b := &Book{received: make(map[string]types.Amount)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Settle credits the inbound payment and pays every transfer, or does
// nothing when the result would breach the reserve.
func (b *Book) Settle(_ context.Context, s treasury.Settlement) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	bal, err := b.balance.Add(s.Inbound)
	if err != nil {
		return fmt.Errorf("%w: %w", treasury.ErrTransferFailed, err)
	}
	out, err := s.Outbound()
	if err != nil {
		return fmt.Errorf("%w: %w", treasury.ErrTransferFailed, err)
	}
	if out > bal || bal-out < b.reserve {
		return fmt.Errorf("%w: balance %d, payout %d, reserve %d", treasury.ErrInsufficientReserve, bal, out, b.reserve)
	}

	b.balance = bal - out
	for _, t := range s.Transfers {
		b.received[t.Destination.String()] += t.Amount
	}
	b.settled = append(b.settled, s)
	return nil
}

// Balance returns the funds held.
func (b *Book) Balance() types.Amount {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance
}

// Received returns the total paid to dest.
func (b *Book) Received(dest id.AccountID) types.Amount {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.received[dest.String()]
}

// Settlements returns the applied settlements in order.
func (b *Book) Settlements() []treasury.Settlement {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]treasury.Settlement(nil), b.settled...)
}
