// Package store declares the persistence contract of subvault.
//
// Reads may happen anywhere. Writes only happen inside Atomic: the callback
// receives a Tx, and either every write it made is committed or, when it
// returns an error, none is.
package store

import (
	"context"

	"github.com/xraph/subvault/account"
	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/lockedfunds"
	"github.com/xraph/subvault/provider"
	"github.com/xraph/subvault/subscription"
)

// Reader is every lookup the engine performs. Missing entities are reported
// with the engine's not-found sentinels.
type Reader interface {
	provider.Store
	account.Store
	subscription.Store

	GetBucket(ctx context.Context, providerID id.AccountID, day lockedfunds.DayID) (*lockedfunds.Bucket, error)
}

// Tx is a unit of work. Reads through a Tx observe its own writes.
type Tx interface {
	Reader
	provider.Writer
	account.Writer
	subscription.Writer

	PutBucket(ctx context.Context, providerID id.AccountID, b lockedfunds.Bucket) error
}

// Store is the unified storage interface for all subvault entities.
type Store interface {
	Reader

	// Atomic runs fn in a transaction, committing iff fn returns nil.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
