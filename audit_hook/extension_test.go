package audithook_test

import (
	"context"
	"errors"
	"testing"
	"time"

	audithook "github.com/xraph/subvault/audit_hook"
	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/refund"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/treasury"
	"github.com/xraph/subvault/types"
)

type capture struct {
	events []*audithook.AuditEvent
}

func (c *capture) Record(_ context.Context, evt *audithook.AuditEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func TestRecordsEvents(t *testing.T) {
	ctx := context.Background()
	rec := &capture{}
	ext := audithook.New(rec)
	buyer := id.NewAccountID()
	sub := subscription.Record{
		Provider:  id.NewAccountID(),
		PlanIndex: 1,
		Terms:     plan.Terms{Duration: time.Hour, Price: 10},
		StartedAt: time.Now(),
	}

	if err := ext.OnSubscribed(ctx, buyer, sub); err != nil {
		t.Fatal(err)
	}
	if err := ext.OnRefunded(ctx, buyer, sub, refund.Split{Buyer: 3, Provider: 1, Released: 5}); err != nil {
		t.Fatal(err)
	}
	failed := treasury.Settlement{ID: id.NewSettlementID()}
	if err := ext.OnSettlementFailed(ctx, "withdraw", failed, errors.New("rail down")); err != nil {
		t.Fatal(err)
	}

	if len(rec.events) != 3 {
		t.Fatalf("got %d events, want 3", len(rec.events))
	}
	if rec.events[0].Action != audithook.ActionSubscribed || rec.events[0].ResourceID != buyer.String() {
		t.Errorf("subscribed event: %+v", rec.events[0])
	}
	if got := rec.events[1].Metadata["buyer_amount"]; got != types.Amount(3) {
		t.Errorf("refund buyer_amount: got %v", got)
	}
	last := rec.events[2]
	if last.Outcome != audithook.OutcomeFailure || last.Reason != "rail down" || last.ResourceID != failed.ID.String() {
		t.Errorf("settlement failed event: %+v", last)
	}
}

func TestDisabledActions(t *testing.T) {
	ctx := context.Background()
	rec := &capture{}
	ext := audithook.New(rec, audithook.WithDisabledActions(audithook.ActionWithdrawn))

	if err := ext.OnWithdrawn(ctx, id.NewAccountID(), 10, id.NewSettlementID()); err != nil {
		t.Fatal(err)
	}
	if err := ext.OnPlansAdded(ctx, id.NewAccountID(), 0, []plan.Plan{{}}); err != nil {
		t.Fatal(err)
	}
	if len(rec.events) != 1 || rec.events[0].Action != audithook.ActionPlansAdded {
		t.Errorf("got %+v, want only plan.added", rec.events)
	}
}

func TestEnabledActions(t *testing.T) {
	ctx := context.Background()
	rec := &capture{}
	ext := audithook.New(rec, audithook.WithEnabledActions(audithook.ActionWithdrawn))

	if err := ext.OnPlansAdded(ctx, id.NewAccountID(), 0, nil); err != nil {
		t.Fatal(err)
	}
	if err := ext.OnWithdrawn(ctx, id.NewAccountID(), 10, id.NewSettlementID()); err != nil {
		t.Fatal(err)
	}
	if len(rec.events) != 1 || rec.events[0].Action != audithook.ActionWithdrawn {
		t.Errorf("got %+v, want only funds.withdrawn", rec.events)
	}
}
