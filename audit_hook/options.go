package audithook

import "log/slog"

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger used to report recorder failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) {
		e.logger = logger
	}
}

// WithEnabledActions limits auditing to the named actions.
// Without it every action is recorded.
func WithEnabledActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = actionSet(actions)
	}
}

// WithDisabledActions stops the named actions from being recorded.
func WithDisabledActions(actions ...string) Option {
	return func(e *Extension) {
		if e.enabled == nil {
			e.enabled = actionSet(allActions())
		}
		for _, action := range actions {
			delete(e.enabled, action)
		}
	}
}

func actionSet(actions []string) map[string]bool {
	set := make(map[string]bool, len(actions))
	for _, a := range actions {
		set[a] = true
	}
	return set
}

func allActions() []string {
	return []string{
		ActionProviderRegistered,
		ActionPlansAdded,
		ActionPlanUpdated,
		ActionSubscribed,
		ActionRenewed,
		ActionRefunded,
		ActionWithdrawn,
		ActionSettlementFailed,
	}
}
