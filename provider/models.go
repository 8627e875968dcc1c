// Package provider defines the seller side of subvault: payout destination,
// plan catalog and the locked-funds header.
package provider

import (
	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/lockedfunds"
	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/types"
)

// Provider is a registered seller.
type Provider struct {
	types.Entity
	ID            id.AccountID       `json:"id"`
	PayoutAddress id.AccountID       `json:"payout_address"`
	Plans         []plan.Plan        `json:"plans"`
	PassHash      types.Hash         `json:"pass_hash"`
	Ledger        lockedfunds.Header `json:"ledger"`
}

// Plan returns the plan at index, or false when the index is out of range.
func (p *Provider) Plan(index int) (plan.Plan, bool) {
	if index < 0 || index >= len(p.Plans) {
		return plan.Plan{}, false
	}
	return p.Plans[index], true
}

// Clone returns a deep copy.
func (p *Provider) Clone() *Provider {
	cp := *p
	cp.Plans = make([]plan.Plan, len(p.Plans))
	for i := range p.Plans {
		cp.Plans[i] = p.Plans[i].Clone()
	}
	return &cp
}
