// Package redis provides a Treasury whose balance book lives in Redis.
//
// A settlement is applied by one Lua script, so the reserve check, the
// balance update, the per-destination totals and the payout stream entries
// commit together or not at all. Settlement IDs are remembered, and
// submitting the same settlement twice applies it once.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/treasury"
	"github.com/xraph/subvault/types"
)

// Compile-time interface check.
var _ treasury.Treasury = (*Treasury)(nil)

// Amounts pass through Lua numbers, which are exact up to 2^53.
const maxScriptAmount = types.Amount(1 << 53)

var settleScript = redis.NewScript(`
local balance = tonumber(redis.call('GET', KEYS[1]) or '0')
if redis.call('SISMEMBER', KEYS[4], ARGV[3]) == 1 then
  return 1
end
local inbound = tonumber(ARGV[1])
local reserve = tonumber(ARGV[2])
local out = 0
for i = 4, #ARGV, 3 do
  out = out + tonumber(ARGV[i + 1])
end
local after = balance + inbound - out
if after < reserve then
  return -1
end
redis.call('SET', KEYS[1], string.format('%d', after))
for i = 4, #ARGV, 3 do
  redis.call('HINCRBY', KEYS[2], ARGV[i], ARGV[i + 1])
  redis.call('XADD', KEYS[3], '*', 'settlement', ARGV[3], 'destination', ARGV[i], 'amount', ARGV[i + 1], 'kind', ARGV[i + 2])
end
redis.call('SADD', KEYS[4], ARGV[3])
return 0
`)

// Treasury settles against a Redis-held balance.
type Treasury struct {
	client  redis.UniversalClient
	prefix  string
	reserve types.Amount
}

// Option configures a Treasury.
type Option func(*Treasury)

// WithPrefix namespaces every key. Default "subvault:treasury".
func WithPrefix(p string) Option {
	return func(t *Treasury) { t.prefix = p }
}

// WithReserve keeps at least r in the balance after every settlement.
func WithReserve(r types.Amount) Option {
	return func(t *Treasury) { t.reserve = r }
}

// New wraps a connected client.
func New(client redis.UniversalClient, opts ...Option) *Treasury {
	t := &Treasury{client: client, prefix: "subvault:treasury"}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Connect parses url, pings the server and returns a client, retrying until
// ctx is done or attempts run out.
func Connect(ctx context.Context, url string, attempts int, interval time.Duration) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("treasury/redis: parse url: %w", err)
	}

	var lastErr error
	for range max(attempts, 1) {
		client := redis.NewClient(opt)
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(lastErr, ctx.Err())
		case <-time.After(interval):
		}
	}
	return nil, fmt.Errorf("treasury/redis: not ready: %w", lastErr)
}

// Settle applies s atomically.
func (t *Treasury) Settle(ctx context.Context, s treasury.Settlement) error {
	if s.ID.IsNil() {
		return fmt.Errorf("%w: settlement has no id", treasury.ErrTransferFailed)
	}

	args := []any{uint64(s.Inbound), uint64(t.reserve), s.ID.String()}
	if s.Inbound > maxScriptAmount {
		return fmt.Errorf("%w: inbound %d too large", treasury.ErrTransferFailed, s.Inbound)
	}
	for _, tr := range s.Transfers {
		if tr.Amount > maxScriptAmount {
			return fmt.Errorf("%w: transfer %d too large", treasury.ErrTransferFailed, tr.Amount)
		}
		args = append(args, tr.Destination.String(), uint64(tr.Amount), string(tr.Kind))
	}

	res, err := settleScript.Run(ctx, t.client, t.keys(), args...).Int()
	if err != nil {
		return fmt.Errorf("%w: %w", treasury.ErrTransferFailed, err)
	}
	if res < 0 {
		return fmt.Errorf("%w: settlement %s", treasury.ErrInsufficientReserve, s.ID)
	}
	return nil
}

// Balance returns the funds held.
func (t *Treasury) Balance(ctx context.Context) (types.Amount, error) {
	v, err := t.client.Get(ctx, t.key("balance")).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("treasury/redis: balance: %w", err)
	}
	return types.Amount(v), nil
}

// Received returns the total paid to dest.
func (t *Treasury) Received(ctx context.Context, dest id.AccountID) (types.Amount, error) {
	v, err := t.client.HGet(ctx, t.key("received"), dest.String()).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("treasury/redis: received: %w", err)
	}
	return types.Amount(v), nil
}

func (t *Treasury) keys() []string {
	return []string{t.key("balance"), t.key("received"), t.key("payouts"), t.key("settled")}
}

func (t *Treasury) key(name string) string {
	return t.prefix + ":" + name
}
