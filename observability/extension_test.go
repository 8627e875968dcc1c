package observability_test

import (
	"context"
	"testing"

	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/observability"
	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/subscription"
)

type counter struct{ n float64 }

func (c *counter) Inc()          { c.n++ }
func (c *counter) Add(v float64) { c.n += v }

type histogram struct{ samples []float64 }

func (h *histogram) Observe(v float64) { h.samples = append(h.samples, v) }

type factory struct {
	counters   map[string]*counter
	histograms map[string]*histogram
}

func newFactory() *factory {
	return &factory{counters: map[string]*counter{}, histograms: map[string]*histogram{}}
}

func (f *factory) Counter(name string) observability.Counter {
	c := &counter{}
	f.counters[name] = c
	return c
}

func (f *factory) Histogram(name string) observability.Histogram {
	h := &histogram{}
	f.histograms[name] = h
	return h
}

func TestMetricsExtension(t *testing.T) {
	ctx := context.Background()
	f := newFactory()
	m := observability.NewMetricsExtension(f)

	rec := subscription.Record{Terms: plan.Terms{Price: 250}}
	if err := m.OnSubscribed(ctx, id.NewAccountID(), rec); err != nil {
		t.Fatal(err)
	}
	if err := m.OnPlansAdded(ctx, id.NewAccountID(), 0, make([]plan.Plan, 3)); err != nil {
		t.Fatal(err)
	}
	if err := m.OnWithdrawn(ctx, id.NewAccountID(), 40, id.NewSettlementID()); err != nil {
		t.Fatal(err)
	}

	if got := f.counters["subvault.subscription.created"].n; got != 1 {
		t.Errorf("subscriptions: got %v, want 1", got)
	}
	if got := f.counters["subvault.plan.added"].n; got != 3 {
		t.Errorf("plans added: got %v, want 3", got)
	}
	if got := f.histograms["subvault.subscription.price"].samples; len(got) != 1 || got[0] != 250 {
		t.Errorf("price samples: %v", got)
	}
	if got := f.histograms["subvault.withdrawal.amount"].samples; len(got) != 1 || got[0] != 40 {
		t.Errorf("withdrawal samples: %v", got)
	}
}
