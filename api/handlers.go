package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/provider"
	"github.com/xraph/subvault/types"
)

var (
	errBadRequest = errors.New("api: bad request")
	errNoCaller   = errors.New("api: missing " + CallerHeader + " header")
	errNotOwner   = fmt.Errorf("%w: history belongs to another account", subvault.ErrUnauthorized)
)

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// termsBody is plan.Terms with a Go duration string ("720h").
type termsBody struct {
	Duration          string       `json:"duration"`
	SessionLimit      uint64       `json:"session_limit"`
	Price             types.Amount `json:"price"`
	MaxRefundPermille uint32       `json:"max_refund_permille"`
}

func (b termsBody) terms() (plan.Terms, error) {
	d, err := time.ParseDuration(b.Duration)
	if err != nil {
		return plan.Terms{}, badRequest("duration %q: %v", b.Duration, err)
	}
	return plan.Terms{
		Duration:          d,
		SessionLimit:      b.SessionLimit,
		Price:             b.Price,
		MaxRefundPermille: b.MaxRefundPermille,
	}, nil
}

type planBody struct {
	termsBody
	Characteristics []string `json:"characteristics"`
}

// planView is the response shape of a catalog entry.
type planView struct {
	termsBody
	Disabled        bool     `json:"disabled"`
	Characteristics []string `json:"characteristics"`
}

func viewPlan(p plan.Plan) planView {
	return planView{
		termsBody: termsBody{
			Duration:          p.Duration.String(),
			SessionLimit:      p.SessionLimit,
			Price:             p.Price,
			MaxRefundPermille: p.MaxRefundPermille,
		},
		Disabled:        p.Disabled,
		Characteristics: p.Characteristics,
	}
}

// providerView omits the pass hash and the ledger header.
type providerView struct {
	ID            id.AccountID `json:"id"`
	PayoutAddress id.AccountID `json:"payout_address"`
	Plans         []planView   `json:"plans"`
}

func viewProvider(p *provider.Provider) providerView {
	v := providerView{ID: p.ID, PayoutAddress: p.PayoutAddress, Plans: make([]planView, len(p.Plans))}
	for i, pl := range p.Plans {
		v.Plans[i] = viewPlan(pl)
	}
	return v
}

func plansFrom(bodies []planBody) ([]plan.Plan, error) {
	plans := make([]plan.Plan, len(bodies))
	for i, b := range bodies {
		t, err := b.terms()
		if err != nil {
			return nil, err
		}
		plans[i] = plan.Plan{Terms: t, Characteristics: b.Characteristics}
	}
	return plans, nil
}

type registerProviderBody struct {
	Payment       types.Amount `json:"payment"`
	PayoutAddress id.AccountID `json:"payout_address"`
	Username      string       `json:"username"`
	PassHash      types.Hash   `json:"pass_hash"`
	Plans         []planBody   `json:"plans"`
}

type subscribeBody struct {
	Provider  id.AccountID `json:"provider"`
	PlanIndex int          `json:"plan_index"`
	Payment   types.Amount `json:"payment"`
	PassHash  types.Hash   `json:"pass_hash"`
	Username  string       `json:"username"`
	Metadata  []string     `json:"metadata"`
}

type renewBody struct {
	Provider  id.AccountID `json:"provider"`
	PlanIndex int          `json:"plan_index"`
	Payment   types.Amount `json:"payment"`
	Metadata  []string     `json:"metadata"`
}

type refundBody struct {
	Provider  id.AccountID `json:"provider"`
	PlanIndex int          `json:"plan_index"`
}

type passHashBody struct {
	PassHash types.Hash `json:"pass_hash"`
}

type passphraseBody struct {
	Passphrase string `json:"passphrase"`
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("decode body: %v", err)
	}
	return nil
}

func pathIndex(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "index")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, badRequest("plan index %q", raw)
	}
	return n, nil
}

func pathAccount(r *http.Request, key string) (id.AccountID, error) {
	raw := chi.URLParam(r, key)
	acct, err := id.ParseAccountID(raw)
	if err != nil {
		return id.Nil, badRequest("%s: %v", key, err)
	}
	return acct, nil
}

// ==================== Provider routes ====================

func (h *Handler) registerProvider(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body registerProviderBody
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	plans, err := plansFrom(body.Plans)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.engine.RegisterProvider(r.Context(), subvault.RegisterProviderRequest{
		Caller:        who,
		Payment:       body.Payment,
		PayoutAddress: body.PayoutAddress,
		Username:      body.Username,
		PassHash:      body.PassHash,
		Plans:         plans,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewProvider(p))
}

func (h *Handler) addPlans(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body struct {
		Plans []planBody `json:"plans"`
	}
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	plans, err := plansFrom(body.Plans)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	first, err := h.engine.AddPlans(r.Context(), who, plans)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"first_index": first})
}

func (h *Handler) editPlan(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	index, err := pathIndex(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body termsBody
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	terms, err := body.terms()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.engine.EditPlan(r.Context(), who, index, terms); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) togglePlan(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	index, err := pathIndex(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	disabled, err := h.engine.TogglePlanDisabled(r.Context(), who, index)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"disabled": disabled})
}

func (h *Handler) addCharacteristics(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	index, err := pathIndex(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body struct {
		Names []string `json:"names"`
	}
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.engine.AddCharacteristics(r.Context(), who, index, body.Names); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := h.engine.Withdraw(r.Context(), who)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]types.Amount{"amount": amount})
}

func (h *Handler) getPlan(w http.ResponseWriter, r *http.Request) {
	pid, err := pathAccount(r, "provider")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	index, err := pathIndex(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pl, err := h.engine.Plan(r.Context(), pid, index)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewPlan(pl))
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	pid, err := pathAccount(r, "provider")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	buckets, err := h.engine.LockedSchedule(r.Context(), pid)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}

// ==================== Subscription routes ====================

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body subscribeBody
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := h.engine.Subscribe(r.Context(), subvault.SubscribeRequest{
		Buyer:     who,
		Provider:  body.Provider,
		PlanIndex: body.PlanIndex,
		Payment:   body.Payment,
		PassHash:  body.PassHash,
		Username:  body.Username,
		Metadata:  body.Metadata,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) renew(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body renewBody
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := h.engine.Renew(r.Context(), subvault.RenewRequest{
		Buyer:     who,
		Provider:  body.Provider,
		PlanIndex: body.PlanIndex,
		Payment:   body.Payment,
		Metadata:  body.Metadata,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body refundBody
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	split, err := h.engine.Refund(r.Context(), who, body.Provider, body.PlanIndex)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, split)
}

func (h *Handler) checkActive(w http.ResponseWriter, r *http.Request) {
	buyer, err := pathAccount(r, "buyer")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pid, err := pathAccount(r, "provider")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	index, err := pathIndex(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	active, err := h.engine.CheckSubscription(r.Context(), buyer, pid, index)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

// ==================== History routes ====================

// owner returns the path account named key after checking that the caller
// is that account.
func owner(r *http.Request, key string) (id.AccountID, error) {
	who, err := caller(r)
	if err != nil {
		return id.Nil, err
	}
	acct, err := pathAccount(r, key)
	if err != nil {
		return id.Nil, err
	}
	if !who.Equal(acct) {
		return id.Nil, errNotOwner
	}
	return acct, nil
}

func (h *Handler) records(w http.ResponseWriter, r *http.Request) {
	buyer, err := owner(r, "buyer")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	recs, err := h.engine.Records(r.Context(), buyer)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) recordsWith(w http.ResponseWriter, r *http.Request) {
	buyer, err := owner(r, "buyer")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pid, err := pathAccount(r, "provider")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	recs, err := h.engine.RecordsWith(r.Context(), buyer, pid)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) recordsByUsername(w http.ResponseWriter, r *http.Request) {
	var body passphraseBody
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	recs, err := h.engine.RecordsByUsername(r.Context(), chi.URLParam(r, "name"), body.Passphrase)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) recordsWithByUsername(w http.ResponseWriter, r *http.Request) {
	pid, err := pathAccount(r, "provider")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body passphraseBody
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	recs, err := h.engine.RecordsWithByUsername(r.Context(), chi.URLParam(r, "name"), pid, body.Passphrase)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) usernameAvailable(w http.ResponseWriter, r *http.Request) {
	available, err := h.engine.UsernameAvailable(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}

func (h *Handler) usernameOf(w http.ResponseWriter, r *http.Request) {
	acct, err := pathAccount(r, "account")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	name, err := h.engine.UsernameOf(r.Context(), acct)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"username": name})
}

func (h *Handler) checkActiveByUsername(w http.ResponseWriter, r *http.Request) {
	pid, err := pathAccount(r, "provider")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	index, err := pathIndex(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	active, err := h.engine.CheckSubscriptionByUsername(r.Context(), chi.URLParam(r, "name"), pid, index)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

// ==================== Pass hash routes ====================

func (h *Handler) setUserPassHash(w http.ResponseWriter, r *http.Request) {
	h.setPassHash(w, r, func(r *http.Request, who id.AccountID, hash types.Hash) error {
		return h.engine.SetUserPassHash(r.Context(), who, hash)
	})
}

func (h *Handler) setProviderPassHash(w http.ResponseWriter, r *http.Request) {
	h.setPassHash(w, r, func(r *http.Request, who id.AccountID, hash types.Hash) error {
		return h.engine.SetProviderPassHash(r.Context(), who, hash)
	})
}

func (h *Handler) setRecordPassHash(w http.ResponseWriter, r *http.Request) {
	h.setPassHash(w, r, func(r *http.Request, who id.AccountID, hash types.Hash) error {
		pid, err := pathAccount(r, "provider")
		if err != nil {
			return err
		}
		return h.engine.SetRecordPassHash(r.Context(), who, pid, hash)
	})
}

func (h *Handler) setPassHash(w http.ResponseWriter, r *http.Request, set func(*http.Request, id.AccountID, types.Hash) error) {
	who, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body passHashBody
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := set(r, who, body.PassHash); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ==================== Passphrase check routes ====================

// checkPassphrase decodes a passphrase body and answers {"ok": bool}.
func (h *Handler) checkPassphrase(check func(r *http.Request, passphrase string) (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body passphraseBody
		if err := decode(r, &body); err != nil {
			h.fail(w, r, err)
			return
		}
		ok, err := check(r, body.Passphrase)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": ok})
	}
}

func (h *Handler) checkAuth(r *http.Request, passphrase string) (bool, error) {
	buyer, err := pathAccount(r, "buyer")
	if err != nil {
		return false, err
	}
	pid, err := pathAccount(r, "provider")
	if err != nil {
		return false, err
	}
	return h.engine.CheckAuth(r.Context(), buyer, pid, passphrase)
}

func (h *Handler) checkAuthByUsername(r *http.Request, passphrase string) (bool, error) {
	pid, err := pathAccount(r, "provider")
	if err != nil {
		return false, err
	}
	return h.engine.CheckAuthByUsername(r.Context(), chi.URLParam(r, "name"), pid, passphrase)
}

func (h *Handler) userCheckAuth(r *http.Request, passphrase string) (bool, error) {
	buyer, err := pathAccount(r, "buyer")
	if err != nil {
		return false, err
	}
	return h.engine.UserCheckAuth(r.Context(), buyer, passphrase)
}

func (h *Handler) userCheckAuthByUsername(r *http.Request, passphrase string) (bool, error) {
	return h.engine.UserCheckAuthByUsername(r.Context(), chi.URLParam(r, "name"), passphrase)
}

func (h *Handler) providerCheckAuth(r *http.Request, passphrase string) (bool, error) {
	pid, err := pathAccount(r, "provider")
	if err != nil {
		return false, err
	}
	return h.engine.ProviderCheckAuth(r.Context(), pid, passphrase)
}

func (h *Handler) providerCheckAuthByUsername(r *http.Request, passphrase string) (bool, error) {
	return h.engine.ProviderCheckAuthByUsername(r.Context(), chi.URLParam(r, "name"), passphrase)
}
