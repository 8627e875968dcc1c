// Package plugin provides an extensible plugin system for subvault.
// Plugins hook into lifecycle events after the triggering call has
// committed; a failing plugin is logged and never undoes the call.
package plugin

import (
	"context"

	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/provider"
	"github.com/xraph/subvault/refund"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/treasury"
	"github.com/xraph/subvault/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Catalog hooks
// ──────────────────────────────────────────────────

// OnProviderRegistered is called after a provider registers.
type OnProviderRegistered interface {
	Plugin
	OnProviderRegistered(ctx context.Context, p *provider.Provider) error
}

// OnPlansAdded is called after plans are appended to a catalog. first is the
// index of plans[0].
type OnPlansAdded interface {
	Plugin
	OnPlansAdded(ctx context.Context, providerID id.AccountID, first int, plans []plan.Plan) error
}

// OnPlanUpdated is called after a plan's terms, disabled flag or
// characteristics change.
type OnPlanUpdated interface {
	Plugin
	OnPlanUpdated(ctx context.Context, providerID id.AccountID, index int, oldPlan, newPlan plan.Plan) error
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscribed is called after a new subscription.
type OnSubscribed interface {
	Plugin
	OnSubscribed(ctx context.Context, buyer id.AccountID, rec subscription.Record) error
}

// OnRenewed is called after a renewal supersedes prev with next.
type OnRenewed interface {
	Plugin
	OnRenewed(ctx context.Context, buyer id.AccountID, prev, next subscription.Record) error
}

// OnRefunded is called after a refund.
type OnRefunded interface {
	Plugin
	OnRefunded(ctx context.Context, buyer id.AccountID, rec subscription.Record, split refund.Split) error
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnWithdrawn is called after a provider withdraws matured funds. It fires
// only when a positive amount was paid out.
type OnWithdrawn interface {
	Plugin
	OnWithdrawn(ctx context.Context, providerID id.AccountID, amount types.Amount, settlement id.SettlementID) error
}

// OnSettlementFailed is called when the treasury rejects a settlement and
// the call is rolled back.
type OnSettlementFailed interface {
	Plugin
	OnSettlementFailed(ctx context.Context, op string, s treasury.Settlement, err error) error
}
