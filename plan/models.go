// Package plan defines a provider's purchasable offerings.
package plan

import (
	"time"

	"github.com/xraph/subvault/types"
)

// PermilleScale is the denominator of MaxRefundPermille.
const PermilleScale = 1000

// Terms are the commercial conditions of a plan. A subscription record keeps
// its own copy, so later catalog edits never change what a buyer bought.
type Terms struct {
	Duration          time.Duration `json:"duration"`
	SessionLimit      uint64        `json:"session_limit"`
	Price             types.Amount  `json:"price"`
	MaxRefundPermille uint32        `json:"max_refund_permille"`
	Disabled          bool          `json:"disabled"`
}

// Plan is a catalog entry: terms plus the names of the per-subscription
// metadata values a buyer must supply.
type Plan struct {
	Terms
	Characteristics []string `json:"characteristics,omitempty"`
}

// Clone returns a deep copy.
func (p Plan) Clone() Plan {
	p.Characteristics = append([]string(nil), p.Characteristics...)
	return p
}

// Snapshot returns the terms with Disabled cleared. Only the catalog
// carries the disabled flag; records keep the economic terms.
func (p Plan) Snapshot() Terms {
	t := p.Terms
	t.Disabled = false
	return t
}
