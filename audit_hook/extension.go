// Package audithook bridges subvault lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit system. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/plugin"
	"github.com/xraph/subvault/provider"
	"github.com/xraph/subvault/refund"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/treasury"
	"github.com/xraph/subvault/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Extension)(nil)
	_ plugin.OnProviderRegistered = (*Extension)(nil)
	_ plugin.OnPlansAdded         = (*Extension)(nil)
	_ plugin.OnPlanUpdated        = (*Extension)(nil)
	_ plugin.OnSubscribed         = (*Extension)(nil)
	_ plugin.OnRenewed            = (*Extension)(nil)
	_ plugin.OnRefunded           = (*Extension)(nil)
	_ plugin.OnWithdrawn          = (*Extension)(nil)
	_ plugin.OnSettlementFailed   = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges subvault lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Catalog hooks
// ──────────────────────────────────────────────────

// OnProviderRegistered implements plugin.OnProviderRegistered.
func (e *Extension) OnProviderRegistered(ctx context.Context, p *provider.Provider) error {
	return e.record(ctx, ActionProviderRegistered, SeverityInfo, OutcomeSuccess,
		ResourceProvider, p.ID.String(), CategoryCatalog, nil,
		"payout_address", p.PayoutAddress.String(),
		"plans", len(p.Plans),
	)
}

// OnPlansAdded implements plugin.OnPlansAdded.
func (e *Extension) OnPlansAdded(ctx context.Context, providerID id.AccountID, first int, plans []plan.Plan) error {
	return e.record(ctx, ActionPlansAdded, SeverityInfo, OutcomeSuccess,
		ResourcePlan, providerID.String(), CategoryCatalog, nil,
		"first_index", first,
		"count", len(plans),
	)
}

// OnPlanUpdated implements plugin.OnPlanUpdated.
func (e *Extension) OnPlanUpdated(ctx context.Context, providerID id.AccountID, index int, oldPlan, newPlan plan.Plan) error {
	return e.record(ctx, ActionPlanUpdated, SeverityInfo, OutcomeSuccess,
		ResourcePlan, providerID.String(), CategoryCatalog, nil,
		"plan_index", index,
		"old_price", oldPlan.Price,
		"new_price", newPlan.Price,
		"disabled", newPlan.Disabled,
	)
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscribed implements plugin.OnSubscribed.
func (e *Extension) OnSubscribed(ctx context.Context, buyer id.AccountID, rec subscription.Record) error {
	return e.record(ctx, ActionSubscribed, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, buyer.String(), CategorySubscription, nil,
		"provider", rec.Provider.String(),
		"plan_index", rec.PlanIndex,
		"price", rec.Terms.Price,
		"matures_at", rec.MaturesAt(),
	)
}

// OnRenewed implements plugin.OnRenewed.
func (e *Extension) OnRenewed(ctx context.Context, buyer id.AccountID, prev, next subscription.Record) error {
	return e.record(ctx, ActionRenewed, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, buyer.String(), CategorySubscription, nil,
		"provider", next.Provider.String(),
		"plan_index", next.PlanIndex,
		"previous_maturity", prev.MaturesAt(),
		"matures_at", next.MaturesAt(),
	)
}

// OnRefunded implements plugin.OnRefunded.
func (e *Extension) OnRefunded(ctx context.Context, buyer id.AccountID, rec subscription.Record, split refund.Split) error {
	return e.record(ctx, ActionRefunded, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, buyer.String(), CategorySubscription, nil,
		"provider", rec.Provider.String(),
		"plan_index", rec.PlanIndex,
		"buyer_amount", split.Buyer,
		"provider_amount", split.Provider,
		"released", split.Released,
	)
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnWithdrawn implements plugin.OnWithdrawn.
func (e *Extension) OnWithdrawn(ctx context.Context, providerID id.AccountID, amount types.Amount, settlement id.SettlementID) error {
	return e.record(ctx, ActionWithdrawn, SeverityInfo, OutcomeSuccess,
		ResourceSettlement, settlement.String(), CategoryPayment, nil,
		"provider", providerID.String(),
		"amount", amount,
	)
}

// OnSettlementFailed implements plugin.OnSettlementFailed.
func (e *Extension) OnSettlementFailed(ctx context.Context, op string, s treasury.Settlement, err error) error {
	return e.record(ctx, ActionSettlementFailed, SeverityCritical, OutcomeFailure,
		ResourceSettlement, s.ID.String(), CategoryPayment, err,
		"operation", op,
		"inbound", s.Inbound,
		"transfers", len(s.Transfers),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
