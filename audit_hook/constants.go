package audithook

// Action constants for audit events.
const (
	// Catalog actions
	ActionProviderRegistered = "provider.registered"
	ActionPlansAdded         = "plan.added"
	ActionPlanUpdated        = "plan.updated"

	// Subscription actions
	ActionSubscribed = "subscription.created"
	ActionRenewed    = "subscription.renewed"
	ActionRefunded   = "subscription.refunded"

	// Settlement actions
	ActionWithdrawn        = "funds.withdrawn"
	ActionSettlementFailed = "settlement.failed"
)

// Resource constants for audit events.
const (
	ResourceProvider     = "provider"
	ResourcePlan         = "plan"
	ResourceSubscription = "subscription"
	ResourceSettlement   = "settlement"
)

// Category constants for audit events.
const (
	CategoryCatalog      = "catalog"
	CategorySubscription = "subscription"
	CategoryPayment      = "payment"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
