package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/provider"
	"github.com/xraph/subvault/refund"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/treasury"
	"github.com/xraph/subvault/types"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so emitting an event never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit               []OnInit
	onShutdown           []OnShutdown
	onProviderRegistered []OnProviderRegistered
	onPlansAdded         []OnPlansAdded
	onPlanUpdated        []OnPlanUpdated
	onSubscribed         []OnSubscribed
	onRenewed            []OnRenewed
	onRefunded           []OnRefunded
	onWithdrawn          []OnWithdrawn
	onSettlementFailed   []OnSettlementFailed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	var hooks []string
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
		hooks = append(hooks, "OnInit")
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
		hooks = append(hooks, "OnShutdown")
	}
	if v, ok := p.(OnProviderRegistered); ok {
		r.onProviderRegistered = append(r.onProviderRegistered, v)
		hooks = append(hooks, "OnProviderRegistered")
	}
	if v, ok := p.(OnPlansAdded); ok {
		r.onPlansAdded = append(r.onPlansAdded, v)
		hooks = append(hooks, "OnPlansAdded")
	}
	if v, ok := p.(OnPlanUpdated); ok {
		r.onPlanUpdated = append(r.onPlanUpdated, v)
		hooks = append(hooks, "OnPlanUpdated")
	}
	if v, ok := p.(OnSubscribed); ok {
		r.onSubscribed = append(r.onSubscribed, v)
		hooks = append(hooks, "OnSubscribed")
	}
	if v, ok := p.(OnRenewed); ok {
		r.onRenewed = append(r.onRenewed, v)
		hooks = append(hooks, "OnRenewed")
	}
	if v, ok := p.(OnRefunded); ok {
		r.onRefunded = append(r.onRefunded, v)
		hooks = append(hooks, "OnRefunded")
	}
	if v, ok := p.(OnWithdrawn); ok {
		r.onWithdrawn = append(r.onWithdrawn, v)
		hooks = append(hooks, "OnWithdrawn")
	}
	if v, ok := p.(OnSettlementFailed); ok {
		r.onSettlementFailed = append(r.onSettlementFailed, v)
		hooks = append(hooks, "OnSettlementFailed")
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", hooks,
	)

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	emit(ctx, r, "OnInit", plugins, func(p OnInit) error { return p.OnInit(ctx, engine) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	emit(ctx, r, "OnShutdown", plugins, func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitProviderRegistered emits a provider registered event.
func (r *Registry) EmitProviderRegistered(ctx context.Context, prov *provider.Provider) {
	r.mu.RLock()
	plugins := r.onProviderRegistered
	r.mu.RUnlock()

	emit(ctx, r, "OnProviderRegistered", plugins, func(p OnProviderRegistered) error {
		return p.OnProviderRegistered(ctx, prov)
	})
}

// EmitPlansAdded emits a plans added event.
func (r *Registry) EmitPlansAdded(ctx context.Context, providerID id.AccountID, first int, plans []plan.Plan) {
	r.mu.RLock()
	plugins := r.onPlansAdded
	r.mu.RUnlock()

	emit(ctx, r, "OnPlansAdded", plugins, func(p OnPlansAdded) error {
		return p.OnPlansAdded(ctx, providerID, first, plans)
	})
}

// EmitPlanUpdated emits a plan updated event.
func (r *Registry) EmitPlanUpdated(ctx context.Context, providerID id.AccountID, index int, oldPlan, newPlan plan.Plan) {
	r.mu.RLock()
	plugins := r.onPlanUpdated
	r.mu.RUnlock()

	emit(ctx, r, "OnPlanUpdated", plugins, func(p OnPlanUpdated) error {
		return p.OnPlanUpdated(ctx, providerID, index, oldPlan, newPlan)
	})
}

// EmitSubscribed emits a subscribed event.
func (r *Registry) EmitSubscribed(ctx context.Context, buyer id.AccountID, rec subscription.Record) {
	r.mu.RLock()
	plugins := r.onSubscribed
	r.mu.RUnlock()

	emit(ctx, r, "OnSubscribed", plugins, func(p OnSubscribed) error {
		return p.OnSubscribed(ctx, buyer, rec)
	})
}

// EmitRenewed emits a renewed event.
func (r *Registry) EmitRenewed(ctx context.Context, buyer id.AccountID, prev, next subscription.Record) {
	r.mu.RLock()
	plugins := r.onRenewed
	r.mu.RUnlock()

	emit(ctx, r, "OnRenewed", plugins, func(p OnRenewed) error {
		return p.OnRenewed(ctx, buyer, prev, next)
	})
}

// EmitRefunded emits a refunded event.
func (r *Registry) EmitRefunded(ctx context.Context, buyer id.AccountID, rec subscription.Record, split refund.Split) {
	r.mu.RLock()
	plugins := r.onRefunded
	r.mu.RUnlock()

	emit(ctx, r, "OnRefunded", plugins, func(p OnRefunded) error {
		return p.OnRefunded(ctx, buyer, rec, split)
	})
}

// EmitWithdrawn emits a withdrawn event.
func (r *Registry) EmitWithdrawn(ctx context.Context, providerID id.AccountID, amount types.Amount, settlement id.SettlementID) {
	r.mu.RLock()
	plugins := r.onWithdrawn
	r.mu.RUnlock()

	emit(ctx, r, "OnWithdrawn", plugins, func(p OnWithdrawn) error {
		return p.OnWithdrawn(ctx, providerID, amount, settlement)
	})
}

// EmitSettlementFailed emits a settlement failed event.
func (r *Registry) EmitSettlementFailed(ctx context.Context, op string, s treasury.Settlement, cause error) {
	r.mu.RLock()
	plugins := r.onSettlementFailed
	r.mu.RUnlock()

	emit(ctx, r, "OnSettlementFailed", plugins, func(p OnSettlementFailed) error {
		return p.OnSettlementFailed(ctx, op, s, cause)
	})
}

func emit[T Plugin](ctx context.Context, r *Registry, hook string, plugins []T, call func(T) error) {
	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return call(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the settlement pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
