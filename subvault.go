package subvault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/lockedfunds"
	"github.com/xraph/subvault/plugin"
	"github.com/xraph/subvault/store"
	"github.com/xraph/subvault/treasury"
	"github.com/xraph/subvault/types"
)

// DefaultProviderRegisterFee is charged by RegisterProvider unless overridden.
const DefaultProviderRegisterFee = types.Amount(100)

// Engine coordinates subscriptions, refunds and provider payouts.
type Engine struct {
	store    store.Store
	treasury treasury.Treasury
	plugins  *plugin.Registry
	logger   *slog.Logger

	// Mutating calls run one at a time, in call order.
	mu sync.Mutex

	// Configuration
	now         func() time.Time
	calendar    lockedfunds.Calendar
	registerFee types.Amount
}

// New creates a new Engine over a store and a treasury.
func New(s store.Store, t treasury.Treasury, opts ...Option) *Engine {
	e := &Engine{
		store:       s,
		treasury:    t,
		plugins:     plugin.NewRegistry(),
		logger:      slog.Default(),
		now:         time.Now,
		calendar:    lockedfunds.DefaultCalendar(),
		registerFee: DefaultProviderRegisterFee,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock replaces the wall clock. Every call reads the time once.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithCalendar sets the epoch and day length of the locked-funds ledger.
// It must not change once funds are locked.
func WithCalendar(c lockedfunds.Calendar) Option {
	return func(e *Engine) {
		e.calendar = c
	}
}

// WithProviderRegisterFee sets the minimum payment RegisterProvider accepts.
func WithProviderRegisterFee(fee types.Amount) Option {
	return func(e *Engine) {
		e.registerFee = fee
	}
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("subvault started",
		"epoch", e.calendar.Epoch,
		"day_length", e.calendar.DayLength,
		"register_fee", e.registerFee,
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry {
	return e.plugins
}

// Calendar returns the ledger calendar.
func (e *Engine) Calendar() lockedfunds.Calendar {
	return e.calendar
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store {
	return e.store
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// execute runs fn in one store transaction. fn stages writes and fills the
// settlement; the settlement goes to the treasury last, and a rejected
// settlement aborts the transaction.
func (e *Engine) execute(ctx context.Context, op string, s *treasury.Settlement, fn func(ctx context.Context, tx store.Tx) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var settleErr error
	settled := false

	err := e.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if s == nil || s.IsEmpty() {
			return nil
		}
		// Nothing may abort the transaction after funds have moved.
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.treasury.Settle(ctx, *s); err != nil {
			settleErr = err
			return fmt.Errorf("%w: %w", ErrSettlementFailed, err)
		}
		settled = true
		return nil
	})

	switch {
	case err == nil:
		return nil
	case settleErr != nil:
		e.logger.Warn("settlement rejected, call rolled back",
			"op", op,
			"settlement", s.ID.String(),
			"error", settleErr,
		)
		e.plugins.EmitSettlementFailed(ctx, op, *s, settleErr)
	case settled:
		e.logger.Error("settlement applied but store commit failed",
			"op", op,
			"settlement", s.ID.String(),
			"error", err,
		)
	}
	return err
}

func newSettlement(payer id.AccountID, inbound types.Amount) *treasury.Settlement {
	return &treasury.Settlement{
		ID:      id.NewSettlementID(),
		Payer:   payer,
		Inbound: inbound,
	}
}

// bucketTable adapts a store to one provider's lockedfunds.Table.
type bucketTable struct {
	r        store.Reader
	tx       store.Tx
	provider id.AccountID
}

func (t bucketTable) Bucket(ctx context.Context, day lockedfunds.DayID) (lockedfunds.Bucket, bool, error) {
	b, err := t.r.GetBucket(ctx, t.provider, day)
	if errors.Is(err, ErrBucketNotFound) {
		return lockedfunds.Bucket{}, false, nil
	}
	if err != nil {
		return lockedfunds.Bucket{}, false, err
	}
	return *b, true, nil
}

func (t bucketTable) PutBucket(ctx context.Context, b lockedfunds.Bucket) error {
	if t.tx == nil {
		return fmt.Errorf("subvault: bucket write outside transaction")
	}
	return t.tx.PutBucket(ctx, t.provider, b)
}

func openChain(tx store.Tx, providerID id.AccountID, h lockedfunds.Header) *lockedfunds.Chain {
	return lockedfunds.Open(h, bucketTable{r: tx, tx: tx, provider: providerID})
}

// ledgerErr tags chain inconsistencies so callers can tell them apart from
// request errors.
func ledgerErr(err error) error {
	if errors.Is(err, lockedfunds.ErrCorrupt) || errors.Is(err, lockedfunds.ErrInsufficientLocked) {
		return fmt.Errorf("%w: %w", ErrLedgerCorrupt, err)
	}
	return err
}
