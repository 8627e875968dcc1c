package extension

import (
	"time"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/observability"
	"github.com/xraph/subvault/plugin"
	"github.com/xraph/subvault/store"
	"github.com/xraph/subvault/treasury"
)

// Option configures the subvault Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithTreasury sets the treasury that settles payouts and refunds.
func WithTreasury(t treasury.Treasury) Option {
	return func(e *Extension) {
		e.treasury = t
	}
}

// WithEngineOption passes a subvault.Option through to the underlying engine.
func WithEngineOption(opt subvault.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers an engine plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, subvault.WithPlugin(p))
	}
}

// WithMetrics counts engine events through factory.
func WithMetrics(factory observability.MetricFactory) Option {
	return WithPlugin(observability.NewMetricsExtension(factory))
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes skips building the HTTP handler.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix of the HTTP handler.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithProviderRegisterFee sets the minimum RegisterProvider payment.
func WithProviderRegisterFee(fee uint64) Option {
	return func(e *Extension) { e.config.ProviderRegisterFee = fee }
}

// WithCalendar sets the ledger epoch and day length.
func WithCalendar(epoch time.Time, dayLength time.Duration) Option {
	return func(e *Extension) {
		e.config.CalendarEpoch = epoch
		e.config.CalendarDayLength = dayLength
	}
}

// WithTreasuryReserve sets the balance floor of the default in-process treasury.
func WithTreasuryReserve(reserve uint64) Option {
	return func(e *Extension) { e.config.TreasuryReserve = reserve }
}
