package plugin_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/plugin"
	"github.com/xraph/subvault/refund"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

type recorder struct {
	name string
	mu   sync.Mutex
	seen []string
	err  error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) add(hook string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, hook)
	return r.err
}

func (r *recorder) OnSubscribed(context.Context, id.AccountID, subscription.Record) error {
	return r.add("subscribed")
}

func (r *recorder) OnRefunded(context.Context, id.AccountID, subscription.Record, refund.Split) error {
	return r.add("refunded")
}

func (r *recorder) OnWithdrawn(context.Context, id.AccountID, types.Amount, id.SettlementID) error {
	return r.add("withdrawn")
}

// subscribeOnly implements a single hook.
type subscribeOnly struct {
	seen []string
}

func (s *subscribeOnly) Name() string { return "partial" }

func (s *subscribeOnly) OnSubscribed(context.Context, id.AccountID, subscription.Record) error {
	s.seen = append(s.seen, "subscribed")
	return nil
}

type slowPlugin struct{}

func (slowPlugin) Name() string { return "slow" }

func (slowPlugin) OnSubscribed(ctx context.Context, _ id.AccountID, _ subscription.Record) error {
	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
	}
	return nil
}

func quietRegistry() *plugin.Registry {
	return plugin.NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegister(t *testing.T) {
	r := quietRegistry()
	if err := r.Register(&recorder{name: "a"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&recorder{name: "a"}); err == nil {
		t.Error("duplicate name accepted")
	}
	if err := r.Register(&recorder{name: "b"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if got := r.Count(); got != 2 {
		t.Errorf("Count: got %d, want 2", got)
	}
	if r.Get("b") == nil || r.Get("missing") != nil {
		t.Error("Get returned the wrong plugin")
	}
	if got := len(r.List()); got != 2 {
		t.Errorf("List: got %d", got)
	}
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	r := quietRegistry()
	full := &recorder{name: "full"}
	partial := &subscribeOnly{}
	for _, p := range []plugin.Plugin{full, partial} {
		if err := r.Register(p); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	buyer := id.NewAccountID()
	r.EmitSubscribed(ctx, buyer, subscription.Record{})
	r.EmitRefunded(ctx, buyer, subscription.Record{}, refund.Split{})
	r.EmitWithdrawn(ctx, buyer, 5, id.NewSettlementID())
	r.EmitRenewed(ctx, buyer, subscription.Record{}, subscription.Record{})

	tests := []struct {
		name string
		got  []string
		want []string
	}{
		{"full", full.seen, []string{"subscribed", "refunded", "withdrawn"}},
		{"partial", partial.seen, []string{"subscribed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if len(tt.got) != len(tt.want) {
				t.Fatalf("hooks: got %v, want %v", tt.got, tt.want)
			}
			for i := range tt.want {
				if tt.got[i] != tt.want[i] {
					t.Errorf("hook %d: got %s, want %s", i, tt.got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFailingPluginDoesNotStopOthers(t *testing.T) {
	r := quietRegistry()
	bad := &recorder{name: "bad", err: errors.New("boom")}
	good := &recorder{name: "good"}
	_ = r.Register(bad)
	_ = r.Register(good)

	r.EmitSubscribed(context.Background(), id.NewAccountID(), subscription.Record{})

	if len(good.seen) != 1 {
		t.Errorf("good plugin saw %v", good.seen)
	}
}

func TestTimeout(t *testing.T) {
	r := quietRegistry().WithTimeout(10 * time.Millisecond)
	after := &recorder{name: "after"}
	_ = r.Register(slowPlugin{})
	_ = r.Register(after)

	start := time.Now()
	r.EmitSubscribed(context.Background(), id.NewAccountID(), subscription.Record{})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("emit blocked for %v", elapsed)
	}
	after.mu.Lock()
	defer after.mu.Unlock()
	if len(after.seen) != 1 {
		t.Errorf("plugin after slow one saw %v", after.seen)
	}
}
