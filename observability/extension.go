// Package observability provides a metrics extension for subvault that
// records lifecycle event counts via a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/plugin"
	"github.com/xraph/subvault/provider"
	"github.com/xraph/subvault/refund"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/treasury"
	"github.com/xraph/subvault/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnInit               = (*MetricsExtension)(nil)
	_ plugin.OnProviderRegistered = (*MetricsExtension)(nil)
	_ plugin.OnPlansAdded         = (*MetricsExtension)(nil)
	_ plugin.OnPlanUpdated        = (*MetricsExtension)(nil)
	_ plugin.OnSubscribed         = (*MetricsExtension)(nil)
	_ plugin.OnRenewed            = (*MetricsExtension)(nil)
	_ plugin.OnRefunded           = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawn          = (*MetricsExtension)(nil)
	_ plugin.OnSettlementFailed   = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a subvault plugin to track subscription and payout metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Catalog metrics
	ProviderRegistered Counter
	PlansAdded         Counter
	PlanUpdated        Counter

	// Subscription metrics
	Subscribed      Counter
	Renewed         Counter
	Refunded        Counter
	SubscribedValue Histogram
	RefundedToBuyer Histogram

	// Settlement metrics
	Withdrawals       Counter
	WithdrawnValue    Histogram
	SettlementFailure Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		ProviderRegistered: factory.Counter("subvault.provider.registered"),
		PlansAdded:         factory.Counter("subvault.plan.added"),
		PlanUpdated:        factory.Counter("subvault.plan.updated"),

		Subscribed:      factory.Counter("subvault.subscription.created"),
		Renewed:         factory.Counter("subvault.subscription.renewed"),
		Refunded:        factory.Counter("subvault.subscription.refunded"),
		SubscribedValue: factory.Histogram("subvault.subscription.price"),
		RefundedToBuyer: factory.Histogram("subvault.refund.buyer_amount"),

		Withdrawals:       factory.Counter("subvault.withdrawal.count"),
		WithdrawnValue:    factory.Histogram("subvault.withdrawal.amount"),
		SettlementFailure: factory.Counter("subvault.settlement.failed"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// OnProviderRegistered implements plugin.OnProviderRegistered.
func (m *MetricsExtension) OnProviderRegistered(_ context.Context, _ *provider.Provider) error {
	m.ProviderRegistered.Inc()
	return nil
}

// OnPlansAdded implements plugin.OnPlansAdded.
func (m *MetricsExtension) OnPlansAdded(_ context.Context, _ id.AccountID, _ int, plans []plan.Plan) error {
	m.PlansAdded.Add(float64(len(plans)))
	return nil
}

// OnPlanUpdated implements plugin.OnPlanUpdated.
func (m *MetricsExtension) OnPlanUpdated(_ context.Context, _ id.AccountID, _ int, _, _ plan.Plan) error {
	m.PlanUpdated.Inc()
	return nil
}

// OnSubscribed implements plugin.OnSubscribed.
func (m *MetricsExtension) OnSubscribed(_ context.Context, _ id.AccountID, rec subscription.Record) error {
	m.Subscribed.Inc()
	m.SubscribedValue.Observe(float64(rec.Terms.Price))
	return nil
}

// OnRenewed implements plugin.OnRenewed.
func (m *MetricsExtension) OnRenewed(_ context.Context, _ id.AccountID, _, next subscription.Record) error {
	m.Renewed.Inc()
	m.SubscribedValue.Observe(float64(next.Terms.Price))
	return nil
}

// OnRefunded implements plugin.OnRefunded.
func (m *MetricsExtension) OnRefunded(_ context.Context, _ id.AccountID, _ subscription.Record, split refund.Split) error {
	m.Refunded.Inc()
	m.RefundedToBuyer.Observe(float64(split.Buyer))
	return nil
}

// OnWithdrawn implements plugin.OnWithdrawn.
func (m *MetricsExtension) OnWithdrawn(_ context.Context, _ id.AccountID, amount types.Amount, _ id.SettlementID) error {
	m.Withdrawals.Inc()
	m.WithdrawnValue.Observe(float64(amount))
	return nil
}

// OnSettlementFailed implements plugin.OnSettlementFailed.
func (m *MetricsExtension) OnSettlementFailed(_ context.Context, _ string, _ treasury.Settlement, _ error) error {
	m.SettlementFailure.Inc()
	return nil
}
