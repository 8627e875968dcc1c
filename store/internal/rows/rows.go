// Package rows converts domain models to and from the column layout shared
// by the SQL stores. Collections are stored as JSON, hashes as raw bytes and
// amounts as signed 64-bit integers.
package rows

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/xraph/subvault/account"
	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/lockedfunds"
	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/provider"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// ErrOutOfRange reports a value that does not fit a BIGINT column.
var ErrOutOfRange = errors.New("rows: value out of BIGINT range")

// Int64 narrows an unsigned value for storage.
func Int64[T ~uint64](v T) (int64, error) {
	if uint64(v) > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %d", ErrOutOfRange, uint64(v))
	}
	return int64(v), nil
}

// Uint64 widens a stored value back.
func Uint64[T ~uint64](v int64) (T, error) {
	if v < 0 {
		return 0, fmt.Errorf("%w: %d", ErrOutOfRange, v)
	}
	return T(v), nil
}

// Provider is one row of subvault_providers.
type Provider struct {
	ID        string
	Payout    string
	Plans     []byte
	PassHash  []byte
	Head      int64
	Back      int64
	Count     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FromProvider encodes p.
func FromProvider(p *provider.Provider) (Provider, error) {
	plans, err := json.Marshal(nonNil(p.Plans))
	if err != nil {
		return Provider{}, fmt.Errorf("rows: encode plans: %w", err)
	}
	r := Provider{
		ID:        p.ID.String(),
		Payout:    p.PayoutAddress.String(),
		Plans:     plans,
		PassHash:  p.PassHash[:],
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if r.Head, err = Int64(p.Ledger.Head); err != nil {
		return Provider{}, err
	}
	if r.Back, err = Int64(p.Ledger.Back); err != nil {
		return Provider{}, err
	}
	if r.Count, err = Int64(p.Ledger.Count); err != nil {
		return Provider{}, err
	}
	return r, nil
}

// Model decodes the row.
func (r Provider) Model() (*provider.Provider, error) {
	pid, err := id.ParseAccountID(r.ID)
	if err != nil {
		return nil, err
	}
	payout, err := id.ParseAccountID(r.Payout)
	if err != nil {
		return nil, err
	}
	p := &provider.Provider{
		Entity:        types.Entity{CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		ID:            pid,
		PayoutAddress: payout,
	}
	if err := json.Unmarshal(r.Plans, &p.Plans); err != nil {
		return nil, fmt.Errorf("rows: decode plans: %w", err)
	}
	if p.Plans == nil {
		p.Plans = []plan.Plan{}
	}
	if err := p.PassHash.SetBytes(r.PassHash); err != nil {
		return nil, err
	}
	if p.Ledger.Head, err = Uint64[lockedfunds.DayID](r.Head); err != nil {
		return nil, err
	}
	if p.Ledger.Back, err = Uint64[lockedfunds.DayID](r.Back); err != nil {
		return nil, err
	}
	if p.Ledger.Count, err = Uint64[uint64](r.Count); err != nil {
		return nil, err
	}
	return p, nil
}

// User is one row of subvault_users.
type User struct {
	ID        string
	Providers []byte
	PassHash  []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FromUser encodes u.
func FromUser(u *account.User) (User, error) {
	providers, err := json.Marshal(nonNil(u.Providers))
	if err != nil {
		return User{}, fmt.Errorf("rows: encode providers: %w", err)
	}
	return User{
		ID:        u.ID.String(),
		Providers: providers,
		PassHash:  u.PassHash[:],
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}, nil
}

// Model decodes the row.
func (r User) Model() (*account.User, error) {
	uid, err := id.ParseAccountID(r.ID)
	if err != nil {
		return nil, err
	}
	u := &account.User{
		Entity: types.Entity{CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		ID:     uid,
	}
	if err := json.Unmarshal(r.Providers, &u.Providers); err != nil {
		return nil, fmt.Errorf("rows: decode providers: %w", err)
	}
	if err := u.PassHash.SetBytes(r.PassHash); err != nil {
		return nil, err
	}
	return u, nil
}

// Group is one row of subvault_groups.
type Group struct {
	Buyer     string
	Provider  string
	Records   []byte
	Latest    []byte
	PassHash  []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FromGroup encodes g.
func FromGroup(g *subscription.Group) (Group, error) {
	records, err := json.Marshal(nonNil(g.Records))
	if err != nil {
		return Group{}, fmt.Errorf("rows: encode records: %w", err)
	}
	latest := g.Latest
	if latest == nil {
		latest = map[int]int{}
	}
	latestJSON, err := json.Marshal(latest)
	if err != nil {
		return Group{}, fmt.Errorf("rows: encode latest: %w", err)
	}
	return Group{
		Buyer:     g.Buyer.String(),
		Provider:  g.Provider.String(),
		Records:   records,
		Latest:    latestJSON,
		PassHash:  g.PassHash[:],
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}, nil
}

// Model decodes the row.
func (r Group) Model() (*subscription.Group, error) {
	buyer, err := id.ParseAccountID(r.Buyer)
	if err != nil {
		return nil, err
	}
	pid, err := id.ParseAccountID(r.Provider)
	if err != nil {
		return nil, err
	}
	g := &subscription.Group{
		Entity:   types.Entity{CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		Buyer:    buyer,
		Provider: pid,
	}
	if err := json.Unmarshal(r.Records, &g.Records); err != nil {
		return nil, fmt.Errorf("rows: decode records: %w", err)
	}
	if err := json.Unmarshal(r.Latest, &g.Latest); err != nil {
		return nil, fmt.Errorf("rows: decode latest: %w", err)
	}
	if g.Latest == nil {
		g.Latest = make(map[int]int)
	}
	if err := g.PassHash.SetBytes(r.PassHash); err != nil {
		return nil, err
	}
	return g, nil
}

// Bucket is one row of subvault_buckets.
type Bucket struct {
	Day    int64
	Amount int64
	Next   int64
}

// FromBucket encodes b.
func FromBucket(b lockedfunds.Bucket) (Bucket, error) {
	var r Bucket
	var err error
	if r.Day, err = Int64(b.Day); err != nil {
		return Bucket{}, err
	}
	if r.Amount, err = Int64(b.Amount); err != nil {
		return Bucket{}, err
	}
	if r.Next, err = Int64(b.Next); err != nil {
		return Bucket{}, err
	}
	return r, nil
}

// Model decodes the row.
func (r Bucket) Model() (*lockedfunds.Bucket, error) {
	var b lockedfunds.Bucket
	var err error
	if b.Day, err = Uint64[lockedfunds.DayID](r.Day); err != nil {
		return nil, err
	}
	if b.Amount, err = Uint64[types.Amount](r.Amount); err != nil {
		return nil, err
	}
	if b.Next, err = Uint64[lockedfunds.DayID](r.Next); err != nil {
		return nil, err
	}
	return &b, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
