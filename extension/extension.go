// Package extension provides the Forge extension adapter for subvault.
//
// It implements the forge.Extension interface to integrate the subvault
// engine into a Forge application with DI registration and lifecycle
// management. The engine (and, unless disabled, the HTTP handler) are
// provided to the container.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.subvault" or "subvault" keys.
package extension

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/api"
	"github.com/xraph/subvault/lockedfunds"
	"github.com/xraph/subvault/store"
	"github.com/xraph/subvault/store/memory"
	"github.com/xraph/subvault/treasury"
	treasurymem "github.com/xraph/subvault/treasury/memory"
	"github.com/xraph/subvault/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "subvault"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Refundable subscription escrow engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the subvault engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *subvault.Engine
	handler    *api.Handler
	store      store.Store
	treasury   treasury.Treasury
	engineOpts []subvault.Option
}

// New creates a new subvault Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *subvault.Engine { return e.engine }

// Handler returns the HTTP API mounted under the configured base path, or
// nil when routes are disabled or Register has not run.
func (e *Extension) Handler() http.Handler {
	if e.handler == nil {
		return nil
	}
	prefix := strings.TrimSuffix(e.config.BasePath, "/")
	if prefix == "" {
		return e.handler
	}
	return http.StripPrefix(prefix, e.handler)
}

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	e.build()

	if err := vessel.Provide(fapp.Container(), func() (*subvault.Engine, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}
	if e.handler == nil {
		return nil
	}
	return vessel.Provide(fapp.Container(), func() (*api.Handler, error) {
		return e.handler, nil
	})
}

// build fills in the default store and treasury and constructs the engine.
func (e *Extension) build() {
	if e.store == nil {
		e.store = memory.New()
	}
	if e.treasury == nil {
		e.treasury = treasurymem.New(treasurymem.WithReserve(types.Amount(e.config.TreasuryReserve)))
	}

	e.engine = subvault.New(e.store, e.treasury, e.buildEngineOpts()...)
	if !e.config.DisableRoutes {
		e.handler = api.New(e.engine)
	}
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("subvault: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(ctx); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("subvault: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs subvault.Option values from the resolved config.
// Pass-through options come last so they win.
func (e *Extension) buildEngineOpts() []subvault.Option {
	opts := make([]subvault.Option, 0, len(e.engineOpts)+2)

	if e.config.CalendarDayLength > 0 {
		opts = append(opts, subvault.WithCalendar(lockedfunds.Calendar{
			Epoch:     e.config.CalendarEpoch,
			DayLength: e.config.CalendarDayLength,
		}))
	}
	if e.config.ProviderRegisterFee > 0 {
		opts = append(opts, subvault.WithProviderRegisterFee(types.Amount(e.config.ProviderRegisterFee)))
	}

	return append(opts, e.engineOpts...)
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("subvault: configuration is required but not found in config files; " +
				"ensure 'extensions.subvault' or 'subvault' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("subvault: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("provider_register_fee", e.config.ProviderRegisterFee),
		forge.F("calendar_epoch", e.config.CalendarEpoch),
		forge.F("calendar_day_length", e.config.CalendarDayLength),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.subvault", "subvault"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("subvault: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("subvault: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.CalendarEpoch.IsZero() {
		cfg.CalendarEpoch = defaults.CalendarEpoch
	}
	if cfg.CalendarDayLength == 0 {
		cfg.CalendarDayLength = defaults.CalendarDayLength
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps and bool
// flags override when true.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.BasePath == "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.ProviderRegisterFee == 0 {
		yamlConfig.ProviderRegisterFee = programmaticConfig.ProviderRegisterFee
	}
	if yamlConfig.TreasuryReserve == 0 {
		yamlConfig.TreasuryReserve = programmaticConfig.TreasuryReserve
	}
	if yamlConfig.CalendarEpoch.IsZero() {
		yamlConfig.CalendarEpoch = programmaticConfig.CalendarEpoch
	}
	if yamlConfig.CalendarDayLength == 0 {
		yamlConfig.CalendarDayLength = programmaticConfig.CalendarDayLength
	}

	return mergeWithDefaults(yamlConfig)
}
