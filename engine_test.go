package subvault_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/lockedfunds"
	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/store/memory"
	"github.com/xraph/subvault/treasury"
	treasurymem "github.com/xraph/subvault/treasury/memory"
	"github.com/xraph/subvault/types"
)

const day = 24 * time.Hour

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// switchTreasury fails every settlement while fail is set.
type switchTreasury struct {
	*treasurymem.Book
	fail bool
}

func (s *switchTreasury) Settle(ctx context.Context, st treasury.Settlement) error {
	if s.fail {
		return treasury.ErrTransferFailed
	}
	return s.Book.Settle(ctx, st)
}

type harness struct {
	engine *subvault.Engine
	book   *switchTreasury
	clock  *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		book:  &switchTreasury{Book: treasurymem.New()},
		clock: &fakeClock{now: t0},
	}
	h.engine = subvault.New(memory.New(), h.book, subvault.WithClock(h.clock.Now))
	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return h
}

func monthly() plan.Plan {
	return plan.Plan{Terms: plan.Terms{
		Duration:          30 * day,
		Price:             100,
		MaxRefundPermille: 500,
	}}
}

func (h *harness) provider(t *testing.T, plans ...plan.Plan) id.AccountID {
	t.Helper()
	pid := id.NewAccountID()
	_, err := h.engine.RegisterProvider(context.Background(), subvault.RegisterProviderRequest{
		Caller:  pid,
		Payment: subvault.DefaultProviderRegisterFee,
		Plans:   plans,
	})
	if err != nil {
		t.Fatalf("RegisterProvider: %v", err)
	}
	return pid
}

func (h *harness) subscribe(t *testing.T, buyer, pid id.AccountID, index int) {
	t.Helper()
	_, err := h.engine.Subscribe(context.Background(), subvault.SubscribeRequest{
		Buyer:     buyer,
		Provider:  pid,
		PlanIndex: index,
		Payment:   100,
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
}

func lockedTotal(t *testing.T, e *subvault.Engine, pid id.AccountID) types.Amount {
	t.Helper()
	sched, err := e.LockedSchedule(context.Background(), pid)
	if err != nil {
		t.Fatalf("LockedSchedule: %v", err)
	}
	var total types.Amount
	for _, b := range sched {
		total += b.Amount
	}
	return total
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pid := h.provider(t, monthly())
	buyer := id.NewAccountID()

	rec, err := h.engine.Subscribe(ctx, subvault.SubscribeRequest{
		Buyer:     buyer,
		Provider:  pid,
		PlanIndex: 0,
		Payment:   100,
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if !rec.StartedAt.Equal(t0) || rec.MaturesAt() != t0.Add(30*day) {
		t.Errorf("record window: %v to %v", rec.StartedAt, rec.MaturesAt())
	}

	if got := h.book.Received(pid); got != 50 {
		t.Errorf("immediate payout: got %d, want 50", got)
	}
	sched, err := h.engine.LockedSchedule(ctx, pid)
	if err != nil {
		t.Fatalf("LockedSchedule: %v", err)
	}
	want := h.engine.Calendar().MaturityDay(t0.Add(30 * day))
	if len(sched) != 1 || sched[0].Day != want || sched[0].Amount != 50 {
		t.Errorf("schedule: got %+v, want one bucket of 50 at day %d", sched, want)
	}

	active, err := h.engine.CheckSubscription(ctx, buyer, pid, 0)
	if err != nil || !active {
		t.Errorf("CheckSubscription: %v, %v", active, err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	withSchema := monthly()
	withSchema.Characteristics = []string{"email"}
	pid := h.provider(t, monthly(), withSchema)
	if _, err := h.engine.TogglePlanDisabled(ctx, pid, 0); err != nil {
		t.Fatalf("TogglePlanDisabled: %v", err)
	}
	if _, err := h.engine.AddPlans(ctx, pid, []plan.Plan{monthly()}); err != nil {
		t.Fatalf("AddPlans: %v", err)
	}

	tests := []struct {
		name string
		req  subvault.SubscribeRequest
		want error
	}{
		{"unknown provider", subvault.SubscribeRequest{Provider: id.NewAccountID(), Payment: 100}, subvault.ErrProviderNotFound},
		{"unknown plan", subvault.SubscribeRequest{Provider: pid, PlanIndex: 7, Payment: 100}, subvault.ErrPlanNotFound},
		{"disabled plan", subvault.SubscribeRequest{Provider: pid, PlanIndex: 0, Payment: 100}, subvault.ErrPlanDisabled},
		{"underpaid", subvault.SubscribeRequest{Provider: pid, PlanIndex: 2, Payment: 99}, subvault.ErrWrongPayment},
		{"overpaid", subvault.SubscribeRequest{Provider: pid, PlanIndex: 2, Payment: 101}, subvault.ErrWrongPayment},
		{"missing metadata", subvault.SubscribeRequest{Provider: pid, PlanIndex: 1, Payment: 100}, subvault.ErrMetadataMismatch},
		{"extra metadata", subvault.SubscribeRequest{Provider: pid, PlanIndex: 2, Payment: 100, Metadata: []string{"x"}}, subvault.ErrMetadataMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Buyer = id.NewAccountID()
			_, err := h.engine.Subscribe(ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	if got := len(h.book.Settlements()); got != 1 {
		t.Errorf("rejected calls settled: %d settlements, want only the registration", got)
	}
}

func TestNoDoubleActive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pid := h.provider(t, monthly())
	buyer := id.NewAccountID()
	h.subscribe(t, buyer, pid, 0)

	_, err := h.engine.Subscribe(ctx, subvault.SubscribeRequest{Buyer: buyer, Provider: pid, Payment: 100})
	if !errors.Is(err, subvault.ErrAlreadyActive) || !subvault.IsConflict(err) {
		t.Fatalf("second subscribe: got %v, want ErrAlreadyActive", err)
	}
	if got := lockedTotal(t, h.engine, pid); got != 50 {
		t.Errorf("locked after rejected subscribe: got %d, want 50", got)
	}

	t.Run("after refund", func(t *testing.T) {
		if _, err := h.engine.Refund(ctx, buyer, pid, 0); err != nil {
			t.Fatalf("Refund: %v", err)
		}
		h.subscribe(t, buyer, pid, 0)
	})

	t.Run("after maturity", func(t *testing.T) {
		h.clock.Advance(30 * day)
		h.subscribe(t, buyer, pid, 0)
	})

	recs, err := h.engine.RecordsWith(ctx, buyer, pid)
	if err != nil {
		t.Fatalf("RecordsWith: %v", err)
	}
	if len(recs) != 3 {
		t.Errorf("records: got %d, want 3", len(recs))
	}
}

func TestRefundScenario(t *testing.T) {
	tests := []struct {
		elapsed      time.Duration
		wantBuyer    types.Amount
		wantProvider types.Amount
	}{
		{0, 50, 0},
		{15 * day, 50, 0},
		{20 * day, 33, 16},
		{30*day - time.Second, 0, 49},
	}
	for _, tt := range tests {
		t.Run(tt.elapsed.String(), func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			pid := h.provider(t, monthly())
			buyer := id.NewAccountID()
			h.subscribe(t, buyer, pid, 0)
			h.clock.Advance(tt.elapsed)

			split, err := h.engine.Refund(ctx, buyer, pid, 0)
			if err != nil {
				t.Fatalf("Refund: %v", err)
			}
			if split.Buyer != tt.wantBuyer || split.Provider != tt.wantProvider {
				t.Errorf("split: got %+v, want buyer %d provider %d", split, tt.wantBuyer, tt.wantProvider)
			}
			if got := h.book.Received(buyer); got != tt.wantBuyer {
				t.Errorf("buyer received %d, want %d", got, tt.wantBuyer)
			}
			if got := h.book.Received(pid); got != 50+tt.wantProvider {
				t.Errorf("provider received %d, want %d", got, 50+tt.wantProvider)
			}
			if got := lockedTotal(t, h.engine, pid); got != 0 {
				t.Errorf("locked after refund: got %d, want 0", got)
			}
			active, _ := h.engine.CheckSubscription(ctx, buyer, pid, 0)
			if active {
				t.Error("refunded record still active")
			}
			if _, err := h.engine.Refund(ctx, buyer, pid, 0); !errors.Is(err, subvault.ErrNotRefundable) {
				t.Errorf("second refund: got %v, want ErrNotRefundable", err)
			}
		})
	}
}

func TestRefundAtMaturity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pid := h.provider(t, monthly())
	buyer := id.NewAccountID()
	h.subscribe(t, buyer, pid, 0)

	h.clock.Advance(30 * day)
	if _, err := h.engine.Refund(ctx, buyer, pid, 0); !errors.Is(err, subvault.ErrNotRefundable) {
		t.Errorf("refund at maturity: got %v, want ErrNotRefundable", err)
	}
	if _, err := h.engine.Refund(ctx, id.NewAccountID(), pid, 0); !errors.Is(err, subvault.ErrRecordNotFound) {
		t.Errorf("refund without records: got %v, want ErrRecordNotFound", err)
	}
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pid := h.provider(t, monthly())
	h.subscribe(t, id.NewAccountID(), pid, 0)
	h.clock.Advance(10 * day)
	h.subscribe(t, id.NewAccountID(), pid, 0)

	h.clock.Advance(20*day - time.Second)
	got, err := h.engine.Withdraw(ctx, pid)
	if err != nil || got != 0 {
		t.Fatalf("withdraw before maturity: got %d, %v", got, err)
	}

	h.clock.Advance(time.Second)
	got, err = h.engine.Withdraw(ctx, pid)
	if err != nil || got != 50 {
		t.Fatalf("first withdraw: got %d, %v, want 50", got, err)
	}
	got, err = h.engine.Withdraw(ctx, pid)
	if err != nil || got != 0 {
		t.Fatalf("second withdraw: got %d, %v, want 0", got, err)
	}
	if got := lockedTotal(t, h.engine, pid); got != 50 {
		t.Errorf("locked after withdraw: got %d, want 50", got)
	}

	h.clock.Advance(10 * day)
	got, err = h.engine.Withdraw(ctx, pid)
	if err != nil || got != 50 {
		t.Fatalf("third withdraw: got %d, %v, want 50", got, err)
	}
	p, err := h.engine.Provider(ctx, pid)
	if err != nil {
		t.Fatalf("Provider: %v", err)
	}
	if !p.Ledger.IsEmpty() {
		t.Errorf("ledger after full drain: %+v", p.Ledger)
	}
	if got := h.book.Received(pid); got != 200 {
		t.Errorf("provider received %d, want 200", got)
	}

	if _, err := h.engine.Withdraw(ctx, id.NewAccountID()); !errors.Is(err, subvault.ErrNotProvider) {
		t.Errorf("withdraw by stranger: got %v, want ErrNotProvider", err)
	}
}

type withdrawals struct {
	mu      sync.Mutex
	amounts []types.Amount
}

func (w *withdrawals) Name() string { return "withdrawals" }

func (w *withdrawals) OnWithdrawn(_ context.Context, _ id.AccountID, amount types.Amount, _ id.SettlementID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.amounts = append(w.amounts, amount)
	return nil
}

func (w *withdrawals) seen() []types.Amount {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]types.Amount(nil), w.amounts...)
}

func TestWithdrawnHook(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	hook := &withdrawals{}
	if err := h.engine.Plugins().Register(hook); err != nil {
		t.Fatalf("Register: %v", err)
	}
	pid := h.provider(t, monthly())
	h.subscribe(t, id.NewAccountID(), pid, 0)

	if got, err := h.engine.Withdraw(ctx, pid); err != nil || got != 0 {
		t.Fatalf("early withdraw: got %d, %v", got, err)
	}
	if got := hook.seen(); len(got) != 0 {
		t.Errorf("hook fired for a zero withdrawal: %v", got)
	}

	h.clock.Advance(30 * day)
	if got, err := h.engine.Withdraw(ctx, pid); err != nil || got != 50 {
		t.Fatalf("withdraw: got %d, %v, want 50", got, err)
	}
	if got := hook.seen(); len(got) != 1 || got[0] != 50 {
		t.Errorf("hook amounts: got %v, want [50]", got)
	}
}

func TestWithdrawFailedSettlement(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pid := h.provider(t, monthly())
	h.subscribe(t, id.NewAccountID(), pid, 0)
	h.clock.Advance(30 * day)

	h.book.fail = true
	if _, err := h.engine.Withdraw(ctx, pid); !subvault.IsFunds(err) {
		t.Fatalf("withdraw: got %v, want funds error", err)
	}
	h.book.fail = false

	got, err := h.engine.Withdraw(ctx, pid)
	if err != nil || got != 50 {
		t.Errorf("withdraw after failure: got %d, %v, want 50", got, err)
	}
}

func TestCancelledContext(t *testing.T) {
	h := newHarness(t)
	pid := h.provider(t, monthly())
	buyer := id.NewAccountID()
	balance := h.book.Balance()
	settlements := len(h.book.Settlements())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.engine.Subscribe(ctx, subvault.SubscribeRequest{
		Buyer:     buyer,
		Provider:  pid,
		PlanIndex: 0,
		Payment:   100,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Subscribe: got %v, want context.Canceled", err)
	}
	if got := h.book.Balance(); got != balance {
		t.Errorf("balance: got %d, want %d", got, balance)
	}
	if got := len(h.book.Settlements()); got != settlements {
		t.Errorf("settlements: got %d, want %d", got, settlements)
	}
	if got := h.book.Received(pid); got != 0 {
		t.Errorf("provider received %d, want 0", got)
	}
	if got := lockedTotal(t, h.engine, pid); got != 0 {
		t.Errorf("locked: got %d, want 0", got)
	}
	active, err := h.engine.CheckSubscription(context.Background(), buyer, pid, 0)
	if err != nil || active {
		t.Errorf("CheckSubscription: %v, %v", active, err)
	}
}

func TestCancelledWithdrawPaysOnce(t *testing.T) {
	h := newHarness(t)
	pid := h.provider(t, monthly())
	h.subscribe(t, id.NewAccountID(), pid, 0)
	h.clock.Advance(30 * day)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.engine.Withdraw(ctx, pid); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled withdraw: got %v, want context.Canceled", err)
	}
	if got := h.book.Received(pid); got != 50 {
		t.Fatalf("received after cancelled withdraw: got %d, want 50", got)
	}

	got, err := h.engine.Withdraw(context.Background(), pid)
	if err != nil || got != 50 {
		t.Fatalf("withdraw: got %d, %v, want 50", got, err)
	}
	if got := h.book.Received(pid); got != 100 {
		t.Errorf("provider received %d, want 100", got)
	}
	if got := lockedTotal(t, h.engine, pid); got != 0 {
		t.Errorf("locked after withdraw: got %d, want 0", got)
	}
}

func TestRenew(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pid := h.provider(t, monthly())
	buyer := id.NewAccountID()
	h.subscribe(t, buyer, pid, 0)
	h.clock.Advance(10 * day)

	next, err := h.engine.Renew(ctx, subvault.RenewRequest{Buyer: buyer, Provider: pid, Payment: 100})
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if !next.StartedAt.Equal(t0.Add(30 * day)) {
		t.Errorf("renewal starts at %v, want old maturity", next.StartedAt)
	}

	cal := h.engine.Calendar()
	sched, err := h.engine.LockedSchedule(ctx, pid)
	if err != nil {
		t.Fatalf("LockedSchedule: %v", err)
	}
	want := []lockedfunds.Bucket{
		{Day: cal.MaturityDay(t0.Add(30 * day)), Amount: 0},
		{Day: cal.MaturityDay(t0.Add(60 * day)), Amount: 50},
	}
	if len(sched) != len(want) {
		t.Fatalf("schedule: got %+v", sched)
	}
	for i := range want {
		if sched[i].Day != want[i].Day || sched[i].Amount != want[i].Amount {
			t.Errorf("bucket %d: got %+v, want %+v", i, sched[i], want[i])
		}
	}
	if got := h.book.Received(pid); got != 150 {
		t.Errorf("provider received %d, want 150", got)
	}

	recs, _ := h.engine.RecordsWith(ctx, buyer, pid)
	if len(recs) != 2 {
		t.Fatalf("records: got %d, want 2", len(recs))
	}

	h.clock.Advance(50 * day)
	if _, err := h.engine.Renew(ctx, subvault.RenewRequest{Buyer: buyer, Provider: pid, Payment: 100}); !errors.Is(err, subvault.ErrNotRenewable) {
		t.Errorf("renew after maturity: got %v, want ErrNotRenewable", err)
	}
}

func TestRenewMetadata(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pl := monthly()
	pl.Characteristics = []string{"email"}
	pid := h.provider(t, pl)
	buyer := id.NewAccountID()

	_, err := h.engine.Subscribe(ctx, subvault.SubscribeRequest{
		Buyer: buyer, Provider: pid, Payment: 100, Metadata: []string{"a@example.com"},
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := h.engine.AddCharacteristics(ctx, pid, 0, []string{"region"}); err != nil {
		t.Fatalf("AddCharacteristics: %v", err)
	}

	_, err = h.engine.Renew(ctx, subvault.RenewRequest{Buyer: buyer, Provider: pid, Payment: 100})
	if !errors.Is(err, subvault.ErrMetadataMismatch) {
		t.Fatalf("renew without new value: got %v, want ErrMetadataMismatch", err)
	}

	next, err := h.engine.Renew(ctx, subvault.RenewRequest{
		Buyer: buyer, Provider: pid, Payment: 100, Metadata: []string{"eu"},
	})
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if len(next.Metadata) != 2 || next.Metadata[0] != "a@example.com" || next.Metadata[1] != "eu" {
		t.Errorf("metadata: got %v", next.Metadata)
	}
}

func TestRenewAtomicity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pid := h.provider(t, monthly())
	buyer := id.NewAccountID()
	h.subscribe(t, buyer, pid, 0)

	before, err := h.engine.LockedSchedule(ctx, pid)
	if err != nil {
		t.Fatalf("LockedSchedule: %v", err)
	}

	h.book.fail = true
	_, err = h.engine.Renew(ctx, subvault.RenewRequest{Buyer: buyer, Provider: pid, Payment: 100})
	if !errors.Is(err, subvault.ErrSettlementFailed) || !errors.Is(err, treasury.ErrTransferFailed) {
		t.Fatalf("renew: got %v, want settlement failure", err)
	}
	h.book.fail = false

	after, err := h.engine.LockedSchedule(ctx, pid)
	if err != nil {
		t.Fatalf("LockedSchedule: %v", err)
	}
	if len(after) != len(before) || after[0] != before[0] {
		t.Errorf("schedule changed: before %+v, after %+v", before, after)
	}
	recs, _ := h.engine.RecordsWith(ctx, buyer, pid)
	if len(recs) != 1 {
		t.Errorf("records after failed renew: got %d, want 1", len(recs))
	}
	p, _ := h.engine.Provider(ctx, pid)
	if p.Ledger.Count != 1 {
		t.Errorf("header after failed renew: %+v", p.Ledger)
	}
}

func TestRegisterProvider(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	caller := id.NewAccountID()
	payout := id.NewAccountID()

	_, err := h.engine.RegisterProvider(ctx, subvault.RegisterProviderRequest{Caller: caller, Payment: 99})
	if !errors.Is(err, subvault.ErrInsufficientFee) {
		t.Errorf("low fee: got %v", err)
	}

	bad := monthly()
	bad.MaxRefundPermille = 1001
	_, err = h.engine.RegisterProvider(ctx, subvault.RegisterProviderRequest{Caller: caller, Payment: 100, Plans: []plan.Plan{bad}})
	if !errors.Is(err, subvault.ErrInvalidTerms) || !subvault.IsValidation(err) {
		t.Errorf("bad terms: got %v", err)
	}

	p, err := h.engine.RegisterProvider(ctx, subvault.RegisterProviderRequest{
		Caller: caller, Payment: 100, PayoutAddress: payout, Username: "acme",
	})
	if err != nil {
		t.Fatalf("RegisterProvider: %v", err)
	}
	if !p.PayoutAddress.Equal(payout) {
		t.Errorf("payout address: got %s", p.PayoutAddress)
	}
	if name, _ := h.engine.UsernameOf(ctx, caller); name != "acme" {
		t.Errorf("username: got %q", name)
	}

	_, err = h.engine.RegisterProvider(ctx, subvault.RegisterProviderRequest{Caller: caller, Payment: 100})
	if !errors.Is(err, subvault.ErrProviderExists) {
		t.Errorf("second registration: got %v", err)
	}
	if got := h.book.Balance(); got != 100 {
		t.Errorf("treasury balance: got %d, want 100", got)
	}
}

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pid := h.provider(t, monthly())
	buyer := id.NewAccountID()
	h.subscribe(t, buyer, pid, 0)

	first, err := h.engine.AddPlans(ctx, pid, []plan.Plan{monthly(), monthly()})
	if err != nil || first != 1 {
		t.Fatalf("AddPlans: got %d, %v", first, err)
	}
	if _, err := h.engine.AddPlans(ctx, id.NewAccountID(), []plan.Plan{monthly()}); !errors.Is(err, subvault.ErrNotProvider) {
		t.Errorf("AddPlans by stranger: got %v", err)
	}

	disabled, err := h.engine.TogglePlanDisabled(ctx, pid, 0)
	if err != nil || !disabled {
		t.Fatalf("TogglePlanDisabled: got %v, %v", disabled, err)
	}

	terms := plan.Terms{Duration: 7 * day, Price: 40, MaxRefundPermille: 250}
	if err := h.engine.EditPlan(ctx, pid, 0, terms); err != nil {
		t.Fatalf("EditPlan: %v", err)
	}
	pl, err := h.engine.Plan(ctx, pid, 0)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if pl.Price != 40 || !pl.Disabled {
		t.Errorf("edited plan: %+v", pl)
	}
	if err := h.engine.EditPlan(ctx, pid, 9, terms); !errors.Is(err, subvault.ErrPlanNotFound) {
		t.Errorf("EditPlan out of range: got %v", err)
	}
	if err := h.engine.AddCharacteristics(ctx, pid, 0, []string{""}); !subvault.IsValidation(err) {
		t.Errorf("empty characteristic: got %v", err)
	}

	recs, _ := h.engine.RecordsWith(ctx, buyer, pid)
	if recs[0].Terms.Price != 100 || recs[0].Terms.Duration != 30*day {
		t.Errorf("existing record changed by edit: %+v", recs[0].Terms)
	}

	disabled, err = h.engine.TogglePlanDisabled(ctx, pid, 0)
	if err != nil || disabled {
		t.Errorf("second toggle: got %v, %v", disabled, err)
	}
}

func TestAuthAndUsernames(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pid := h.provider(t, monthly())
	buyer := id.NewAccountID()

	_, err := h.engine.Subscribe(ctx, subvault.SubscribeRequest{
		Buyer: buyer, Provider: pid, Payment: 100,
		Username: "alice", PassHash: types.HashPassphrase("hunter2"),
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	checks := []struct {
		name string
		fn   func() (bool, error)
		want bool
	}{
		{"pair", func() (bool, error) { return h.engine.CheckAuth(ctx, buyer, pid, "hunter2") }, true},
		{"pair wrong", func() (bool, error) { return h.engine.CheckAuth(ctx, buyer, pid, "nope") }, false},
		{"pair unknown", func() (bool, error) { return h.engine.CheckAuth(ctx, id.NewAccountID(), pid, "hunter2") }, false},
		{"pair by username", func() (bool, error) { return h.engine.CheckAuthByUsername(ctx, "alice", pid, "hunter2") }, true},
		{"user", func() (bool, error) { return h.engine.UserCheckAuth(ctx, buyer, "hunter2") }, true},
		{"user by username", func() (bool, error) { return h.engine.UserCheckAuthByUsername(ctx, "alice", "hunter2") }, true},
		{"provider without hash", func() (bool, error) { return h.engine.ProviderCheckAuth(ctx, pid, "") }, false},
		{"active by username", func() (bool, error) { return h.engine.CheckSubscriptionByUsername(ctx, "alice", pid, 0) }, true},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			got, err := c.fn()
			if err != nil || got != c.want {
				t.Errorf("got %v, %v, want %v", got, err, c.want)
			}
		})
	}

	if _, err := h.engine.UserCheckAuthByUsername(ctx, "mallory", "x"); !errors.Is(err, subvault.ErrUsernameNotFound) {
		t.Errorf("unknown username: got %v", err)
	}

	recs, err := h.engine.RecordsByUsername(ctx, "alice", "hunter2")
	if err != nil || len(recs) != 1 {
		t.Errorf("RecordsByUsername: got %d records, %v", len(recs), err)
	}
	if _, err := h.engine.RecordsByUsername(ctx, "alice", "nope"); !errors.Is(err, subvault.ErrWrongPassphrase) {
		t.Errorf("RecordsByUsername wrong passphrase: got %v", err)
	}
	if _, err := h.engine.RecordsWithByUsername(ctx, "alice", pid, "nope"); !subvault.IsUnauthorized(err) {
		t.Errorf("RecordsWithByUsername wrong passphrase: got %v", err)
	}

	if err := h.engine.SetRecordPassHash(ctx, buyer, pid, types.HashPassphrase("s3cret")); err != nil {
		t.Fatalf("SetRecordPassHash: %v", err)
	}
	if ok, _ := h.engine.CheckAuth(ctx, buyer, pid, "s3cret"); !ok {
		t.Error("new record pass hash not applied")
	}
	if err := h.engine.SetProviderPassHash(ctx, pid, types.HashPassphrase("ops")); err != nil {
		t.Fatalf("SetProviderPassHash: %v", err)
	}
	if ok, _ := h.engine.ProviderCheckAuth(ctx, pid, "ops"); !ok {
		t.Error("provider pass hash not applied")
	}
	if err := h.engine.SetUserPassHash(ctx, id.NewAccountID(), types.Hash{}); !errors.Is(err, subvault.ErrUserNotFound) {
		t.Errorf("SetUserPassHash unknown: got %v", err)
	}

	available, err := h.engine.UsernameAvailable(ctx, "alice")
	if err != nil || available {
		t.Errorf("alice available: %v, %v", available, err)
	}
	available, err = h.engine.UsernameAvailable(ctx, "bob")
	if err != nil || !available {
		t.Errorf("bob available: %v, %v", available, err)
	}
	if _, err := h.engine.UsernameAvailable(ctx, "has space"); !errors.Is(err, subvault.ErrInvalidUsername) {
		t.Errorf("invalid name: got %v", err)
	}

	_, err = h.engine.Subscribe(ctx, subvault.SubscribeRequest{
		Buyer: id.NewAccountID(), Provider: pid, Payment: 100, Username: "alice",
	})
	if !errors.Is(err, subvault.ErrUsernameNotOwned) {
		t.Errorf("claiming another account's username: got %v", err)
	}
}

func TestLockedScheduleDuringWrites(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pid := h.provider(t, monthly())

	done := make(chan struct{})
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		for {
			select {
			case <-done:
				return
			default:
			}
			sched, err := h.engine.LockedSchedule(ctx, pid)
			if err != nil {
				errs <- err
				return
			}
			for _, b := range sched {
				if b.Amount%50 != 0 {
					errs <- fmt.Errorf("bucket %d holds %d", b.Day, b.Amount)
					return
				}
			}
		}
	}()

	for i := 0; i < 50; i++ {
		h.subscribe(t, id.NewAccountID(), pid, 0)
		h.clock.Advance(day)
		if _, err := h.engine.Withdraw(ctx, pid); err != nil {
			t.Fatalf("Withdraw: %v", err)
		}
	}
	close(done)
	if err := <-errs; err != nil {
		t.Errorf("LockedSchedule during writes: %v", err)
	}
}

func TestRecordsOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p1 := h.provider(t, monthly())
	p2 := h.provider(t, monthly(), monthly())
	buyer := id.NewAccountID()

	h.subscribe(t, buyer, p2, 1)
	h.subscribe(t, buyer, p1, 0)
	h.subscribe(t, buyer, p2, 0)

	recs, err := h.engine.Records(ctx, buyer)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	want := []struct {
		provider id.AccountID
		index    int
	}{{p2, 1}, {p2, 0}, {p1, 0}}
	if len(recs) != len(want) {
		t.Fatalf("records: got %d, want %d", len(recs), len(want))
	}
	for i, w := range want {
		if !recs[i].Provider.Equal(w.provider) || recs[i].PlanIndex != w.index {
			t.Errorf("record %d: got (%s, %d)", i, recs[i].Provider, recs[i].PlanIndex)
		}
	}

	empty, err := h.engine.Records(ctx, id.NewAccountID())
	if err != nil || len(empty) != 0 {
		t.Errorf("unknown buyer: got %v, %v", empty, err)
	}
}

func TestStopClosesStore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	if err := h.engine.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	_, err := h.engine.RegisterProvider(ctx, subvault.RegisterProviderRequest{Caller: id.NewAccountID(), Payment: 100})
	if !errors.Is(err, subvault.ErrStoreClosed) {
		t.Errorf("after Stop: got %v", err)
	}
}
