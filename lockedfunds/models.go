// Package lockedfunds keeps a provider's refundable liability as a sorted,
// sparse chain of day buckets.
//
// Each bucket holds the amount that becomes withdrawable once its day has
// passed and points at the next occupied day. The provider's Header tracks
// the first and last live bucket and how many are live. Buckets are addressed
// by (provider, day) in a Table, so the chain is a keyed table rather than a
// pointer graph. Drained buckets stay in the table, unreachable from the head.
package lockedfunds

import (
	"context"
	"errors"

	"github.com/xraph/subvault/types"
)

// DayID counts whole calendar windows since the ledger epoch.
type DayID uint64

// Bucket is the locked amount maturing on Day. Next is the following
// occupied day; on the back bucket it equals Day.
type Bucket struct {
	Day    DayID        `json:"day"`
	Amount types.Amount `json:"amount"`
	Next   DayID        `json:"next"`
}

// Header locates the live part of a chain. Head and Back are meaningless
// while Count is zero.
type Header struct {
	Head  DayID  `json:"head"`
	Back  DayID  `json:"back"`
	Count uint64 `json:"count"`
}

// IsEmpty reports whether no bucket is live.
func (h Header) IsEmpty() bool { return h.Count == 0 }

// Table reads and writes one provider's buckets.
type Table interface {
	Bucket(ctx context.Context, day DayID) (Bucket, bool, error)
	PutBucket(ctx context.Context, b Bucket) error
}

var (
	// ErrCorrupt reports a chain whose header and buckets disagree.
	ErrCorrupt = errors.New("lockedfunds: chain corrupt")

	// ErrInsufficientLocked reports a release larger than the bucket holds.
	ErrInsufficientLocked = errors.New("lockedfunds: insufficient locked amount")
)
