package provider

import (
	"context"

	"github.com/xraph/subvault/id"
)

// Store persists providers.
type Store interface {
	GetProvider(ctx context.Context, providerID id.AccountID) (*Provider, error)
}

// Writer upserts providers inside a transaction.
type Writer interface {
	PutProvider(ctx context.Context, p *Provider) error
}
