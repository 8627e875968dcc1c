// Package subscription holds the per-(buyer, provider) purchase history.
//
// A Group is append-only: renewals add records and refunds flip a flag, but
// nothing is ever removed. Latest maps a plan index to the newest record for
// that plan within the group.
package subscription

import (
	"time"

	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/types"
)

// Status is derived from a record, its position in the group and the clock.
type Status string

const (
	StatusActive     Status = "active"
	StatusRefunded   Status = "refunded"
	StatusMatured    Status = "matured"
	StatusSuperseded Status = "superseded"
)

// Record is one purchased term.
type Record struct {
	Provider  id.AccountID `json:"provider"`
	PlanIndex int          `json:"plan_index"`
	Terms     plan.Terms   `json:"terms"`
	StartedAt time.Time    `json:"started_at"`
	Metadata  []string     `json:"metadata,omitempty"`
	Refunded  bool         `json:"refunded"`
}

// MaturesAt is the end of the term.
func (r Record) MaturesAt() time.Time {
	return r.StartedAt.Add(r.Terms.Duration)
}

// Matured reports whether the term has run out at now. A record exactly at
// its maturity instant is matured.
func (r Record) Matured(now time.Time) bool {
	return !now.Before(r.MaturesAt())
}

// Active reports whether the record can still be refunded or renewed.
func (r Record) Active(now time.Time) bool {
	return !r.Refunded && !r.Matured(now)
}

// Group is the history between one buyer and one provider.
type Group struct {
	types.Entity
	Buyer    id.AccountID `json:"buyer"`
	Provider id.AccountID `json:"provider"`
	Records  []Record     `json:"records"`
	Latest   map[int]int  `json:"latest"`
	PassHash types.Hash   `json:"pass_hash"`
}

// NewGroup starts an empty group.
func NewGroup(buyer, provider id.AccountID, now time.Time) *Group {
	return &Group{
		Entity:   types.NewEntity(now),
		Buyer:    buyer,
		Provider: provider,
		Latest:   make(map[int]int),
	}
}

// LatestFor returns the newest record for planIndex and its position.
func (g *Group) LatestFor(planIndex int) (Record, int, bool) {
	i, ok := g.Latest[planIndex]
	if !ok || i < 0 || i >= len(g.Records) {
		return Record{}, -1, false
	}
	return g.Records[i], i, true
}

// Append adds a record and makes it the latest for its plan.
func (g *Group) Append(r Record) int {
	if g.Latest == nil {
		g.Latest = make(map[int]int)
	}
	g.Records = append(g.Records, r)
	i := len(g.Records) - 1
	g.Latest[r.PlanIndex] = i
	return i
}

// MarkRefunded flags the record at position i.
func (g *Group) MarkRefunded(i int) {
	g.Records[i].Refunded = true
}

// Status derives the state of the record at position i.
func (g *Group) Status(i int, now time.Time) Status {
	r := g.Records[i]
	switch {
	case r.Refunded:
		return StatusRefunded
	case g.Latest[r.PlanIndex] != i:
		return StatusSuperseded
	case r.Matured(now):
		return StatusMatured
	default:
		return StatusActive
	}
}

// Clone returns a deep copy.
func (g *Group) Clone() *Group {
	cp := *g
	cp.Records = make([]Record, len(g.Records))
	for i, r := range g.Records {
		r.Metadata = append([]string(nil), r.Metadata...)
		cp.Records[i] = r
	}
	cp.Latest = make(map[int]int, len(g.Latest))
	for k, v := range g.Latest {
		cp.Latest[k] = v
	}
	return &cp
}
