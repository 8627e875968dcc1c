package extension

import "time"

// Config holds the subvault extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.subvault" or "subvault" keys).
type Config struct {
	// DisableRoutes skips building the HTTP handler.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix the HTTP handler is served under (default: "/subvault").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// ProviderRegisterFee is the minimum RegisterProvider payment.
	// Zero keeps the engine default.
	ProviderRegisterFee uint64 `json:"provider_register_fee" mapstructure:"provider_register_fee" yaml:"provider_register_fee"`

	// CalendarEpoch is day zero of the locked-funds ledger (default: Unix epoch).
	CalendarEpoch time.Time `json:"calendar_epoch" mapstructure:"calendar_epoch" yaml:"calendar_epoch"`

	// CalendarDayLength is the width of one ledger bucket (default: 24h).
	CalendarDayLength time.Duration `json:"calendar_day_length" mapstructure:"calendar_day_length" yaml:"calendar_day_length"`

	// TreasuryReserve is the balance floor of the in-process treasury used
	// when no treasury is supplied.
	TreasuryReserve uint64 `json:"treasury_reserve" mapstructure:"treasury_reserve" yaml:"treasury_reserve"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:          "/subvault",
		CalendarEpoch:     time.Unix(0, 0).UTC(),
		CalendarDayLength: 24 * time.Hour,
	}
}
