package mongo

import (
	"strconv"
	"time"

	"github.com/xraph/subvault/account"
	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/lockedfunds"
	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/provider"
	"github.com/xraph/subvault/store/internal/rows"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// ==================== Provider models ====================

type providerModel struct {
	ID          string      `bson:"_id"`
	Payout      string      `bson:"payout"`
	Plans       []planModel `bson:"plans"`
	PassHash    []byte      `bson:"pass_hash"`
	LedgerHead  int64       `bson:"ledger_head"`
	LedgerBack  int64       `bson:"ledger_back"`
	LedgerCount int64       `bson:"ledger_count"`
	CreatedAt   time.Time   `bson:"created_at"`
	UpdatedAt   time.Time   `bson:"updated_at"`
}

type planModel struct {
	Duration          int64    `bson:"duration_ns"`
	SessionLimit      int64    `bson:"session_limit"`
	Price             int64    `bson:"price"`
	MaxRefundPermille int32    `bson:"max_refund_permille"`
	Disabled          bool     `bson:"disabled"`
	Characteristics   []string `bson:"characteristics"`
}

func toProviderModel(p *provider.Provider) (*providerModel, error) {
	row, err := rows.FromProvider(p)
	if err != nil {
		return nil, err
	}
	m := &providerModel{
		ID:          row.ID,
		Payout:      row.Payout,
		Plans:       make([]planModel, len(p.Plans)),
		PassHash:    row.PassHash,
		LedgerHead:  row.Head,
		LedgerBack:  row.Back,
		LedgerCount: row.Count,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	for i, pl := range p.Plans {
		pm, err := toPlanModel(pl)
		if err != nil {
			return nil, err
		}
		m.Plans[i] = pm
	}
	return m, nil
}

func fromProviderModel(m *providerModel) (*provider.Provider, error) {
	pid, err := id.ParseAccountID(m.ID)
	if err != nil {
		return nil, err
	}
	payout, err := id.ParseAccountID(m.Payout)
	if err != nil {
		return nil, err
	}
	p := &provider.Provider{
		Entity:        types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:            pid,
		PayoutAddress: payout,
		Plans:         make([]plan.Plan, len(m.Plans)),
	}
	for i, pm := range m.Plans {
		if p.Plans[i], err = fromPlanModel(pm); err != nil {
			return nil, err
		}
	}
	if err := p.PassHash.SetBytes(m.PassHash); err != nil {
		return nil, err
	}
	if p.Ledger.Head, err = rows.Uint64[lockedfunds.DayID](m.LedgerHead); err != nil {
		return nil, err
	}
	if p.Ledger.Back, err = rows.Uint64[lockedfunds.DayID](m.LedgerBack); err != nil {
		return nil, err
	}
	if p.Ledger.Count, err = rows.Uint64[uint64](m.LedgerCount); err != nil {
		return nil, err
	}
	return p, nil
}

func toTerms(t plan.Terms) (planModel, error) {
	price, err := rows.Int64(t.Price)
	if err != nil {
		return planModel{}, err
	}
	limit, err := rows.Int64(t.SessionLimit)
	if err != nil {
		return planModel{}, err
	}
	return planModel{
		Duration:          int64(t.Duration),
		SessionLimit:      limit,
		Price:             price,
		MaxRefundPermille: int32(t.MaxRefundPermille), //nolint:gosec // bounded by PermilleScale
		Disabled:          t.Disabled,
	}, nil
}

func fromTerms(m planModel) (plan.Terms, error) {
	price, err := rows.Uint64[types.Amount](m.Price)
	if err != nil {
		return plan.Terms{}, err
	}
	limit, err := rows.Uint64[uint64](m.SessionLimit)
	if err != nil {
		return plan.Terms{}, err
	}
	return plan.Terms{
		Duration:          time.Duration(m.Duration),
		SessionLimit:      limit,
		Price:             price,
		MaxRefundPermille: uint32(m.MaxRefundPermille), //nolint:gosec // bounded by PermilleScale
		Disabled:          m.Disabled,
	}, nil
}

func toPlanModel(p plan.Plan) (planModel, error) {
	m, err := toTerms(p.Terms)
	if err != nil {
		return planModel{}, err
	}
	m.Characteristics = append([]string{}, p.Characteristics...)
	return m, nil
}

func fromPlanModel(m planModel) (plan.Plan, error) {
	t, err := fromTerms(m)
	if err != nil {
		return plan.Plan{}, err
	}
	return plan.Plan{Terms: t, Characteristics: append([]string(nil), m.Characteristics...)}, nil
}

// ==================== User models ====================

type userModel struct {
	ID        string    `bson:"_id"`
	Providers []string  `bson:"providers"`
	PassHash  []byte    `bson:"pass_hash"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toUserModel(u *account.User) *userModel {
	m := &userModel{
		ID:        u.ID.String(),
		Providers: make([]string, len(u.Providers)),
		PassHash:  u.PassHash[:],
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	for i, p := range u.Providers {
		m.Providers[i] = p.String()
	}
	return m
}

func fromUserModel(m *userModel) (*account.User, error) {
	uid, err := id.ParseAccountID(m.ID)
	if err != nil {
		return nil, err
	}
	u := &account.User{
		Entity:    types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:        uid,
		Providers: make([]id.AccountID, len(m.Providers)),
	}
	for i, raw := range m.Providers {
		if u.Providers[i], err = id.ParseAccountID(raw); err != nil {
			return nil, err
		}
	}
	if err := u.PassHash.SetBytes(m.PassHash); err != nil {
		return nil, err
	}
	return u, nil
}

// ==================== Group models ====================

type groupModel struct {
	ID        string         `bson:"_id"`
	Buyer     string         `bson:"buyer_id"`
	Provider  string         `bson:"provider_id"`
	Records   []recordModel  `bson:"records"`
	Latest    map[string]int `bson:"latest"`
	PassHash  []byte         `bson:"pass_hash"`
	CreatedAt time.Time      `bson:"created_at"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

type recordModel struct {
	PlanIndex int       `bson:"plan_index"`
	Terms     planModel `bson:"terms"`
	StartedAt time.Time `bson:"started_at"`
	Metadata  []string  `bson:"metadata"`
	Refunded  bool      `bson:"refunded"`
}

func groupID(buyer, providerID id.AccountID) string {
	return buyer.String() + "/" + providerID.String()
}

func toGroupModel(g *subscription.Group) (*groupModel, error) {
	m := &groupModel{
		ID:        groupID(g.Buyer, g.Provider),
		Buyer:     g.Buyer.String(),
		Provider:  g.Provider.String(),
		Records:   make([]recordModel, len(g.Records)),
		Latest:    make(map[string]int, len(g.Latest)),
		PassHash:  g.PassHash[:],
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
	for i, r := range g.Records {
		terms, err := toTerms(r.Terms)
		if err != nil {
			return nil, err
		}
		m.Records[i] = recordModel{
			PlanIndex: r.PlanIndex,
			Terms:     terms,
			StartedAt: r.StartedAt,
			Metadata:  append([]string{}, r.Metadata...),
			Refunded:  r.Refunded,
		}
	}
	for k, v := range g.Latest {
		m.Latest[strconv.Itoa(k)] = v
	}
	return m, nil
}

func fromGroupModel(m *groupModel) (*subscription.Group, error) {
	buyer, err := id.ParseAccountID(m.Buyer)
	if err != nil {
		return nil, err
	}
	pid, err := id.ParseAccountID(m.Provider)
	if err != nil {
		return nil, err
	}
	g := subscription.NewGroup(buyer, pid, m.CreatedAt)
	g.UpdatedAt = m.UpdatedAt
	g.Records = make([]subscription.Record, len(m.Records))
	for i, rm := range m.Records {
		terms, err := fromTerms(rm.Terms)
		if err != nil {
			return nil, err
		}
		g.Records[i] = subscription.Record{
			Provider:  pid,
			PlanIndex: rm.PlanIndex,
			Terms:     terms,
			StartedAt: rm.StartedAt.UTC(),
			Metadata:  rm.Metadata,
			Refunded:  rm.Refunded,
		}
	}
	for k, v := range m.Latest {
		idx, err := strconv.Atoi(k)
		if err != nil {
			return nil, err
		}
		g.Latest[idx] = v
	}
	if err := g.PassHash.SetBytes(m.PassHash); err != nil {
		return nil, err
	}
	return g, nil
}

// ==================== Bucket and username models ====================

type bucketModel struct {
	ID       string `bson:"_id"`
	Provider string `bson:"provider_id"`
	Day      int64  `bson:"day"`
	Amount   int64  `bson:"amount"`
	Next     int64  `bson:"next"`
}

func bucketID(providerID id.AccountID, day int64) string {
	return providerID.String() + "/" + strconv.FormatInt(day, 10)
}

type usernameModel struct {
	Username string `bson:"_id"`
	Account  string `bson:"account_id"`
}
