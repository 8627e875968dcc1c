package subscription

import (
	"context"

	"github.com/xraph/subvault/id"
)

// Store persists record groups keyed by (buyer, provider).
type Store interface {
	GetGroup(ctx context.Context, buyer, provider id.AccountID) (*Group, error)
}

// Writer upserts a group inside a transaction.
type Writer interface {
	PutGroup(ctx context.Context, g *Group) error
}
