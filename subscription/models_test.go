package subscription_test

import (
	"testing"
	"time"

	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/subscription"
)

func TestGroupStatus(t *testing.T) {
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	terms := plan.Terms{Duration: 10 * 24 * time.Hour, Price: 100, MaxRefundPermille: 500}
	g := subscription.NewGroup(id.NewAccountID(), id.NewAccountID(), start)

	first := g.Append(subscription.Record{PlanIndex: 0, Terms: terms, StartedAt: start})
	other := g.Append(subscription.Record{PlanIndex: 1, Terms: terms, StartedAt: start})
	renewed := g.Append(subscription.Record{PlanIndex: 0, Terms: terms, StartedAt: start.Add(terms.Duration)})

	tests := []struct {
		name string
		pos  int
		now  time.Time
		want subscription.Status
	}{
		{"Superseded", first, start.Add(time.Hour), subscription.StatusSuperseded},
		{"Active", other, start.Add(time.Hour), subscription.StatusActive},
		{"MaturedAtBoundary", other, start.Add(terms.Duration), subscription.StatusMatured},
		{"RenewedActive", renewed, start.Add(15 * 24 * time.Hour), subscription.StatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.Status(tt.pos, tt.now); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}

	g.MarkRefunded(other)
	if got := g.Status(other, start); got != subscription.StatusRefunded {
		t.Errorf("after refund: got %s", got)
	}

	rec, pos, ok := g.LatestFor(0)
	if !ok || pos != renewed || !rec.StartedAt.Equal(start.Add(terms.Duration)) {
		t.Errorf("LatestFor(0): got %+v at %d (%v)", rec, pos, ok)
	}
	if _, _, ok := g.LatestFor(7); ok {
		t.Error("LatestFor(7): expected no record")
	}
}

func TestGroupClone(t *testing.T) {
	g := subscription.NewGroup(id.NewAccountID(), id.NewAccountID(), time.Now())
	g.Append(subscription.Record{PlanIndex: 2, Metadata: []string{"a"}})

	cp := g.Clone()
	cp.Records[0].Metadata[0] = "b"
	cp.Append(subscription.Record{PlanIndex: 2})

	if g.Records[0].Metadata[0] != "a" {
		t.Error("clone shares metadata with original")
	}
	if len(g.Records) != 1 || g.Latest[2] != 0 {
		t.Error("clone shares records or latest index with original")
	}
}
