package engine

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rl1809/stock-guard/internal/core/domain"
	"github.com/rl1809/stock-guard/internal/port"
)

const unsafePauseMax = 5 * time.Millisecond

// UnsafeEngine reads, pauses, then blindly writes. Concurrent decreases
// overwrite each other; it exists to show the lost update the other engines
// prevent.
type UnsafeEngine struct {
	store port.StockStore
	opts  options
}

// NewUnsafe returns the baseline engine. Unless a hold hook is given it pauses
// up to 5ms between read and write.
func NewUnsafe(store port.StockStore, opts ...Option) *UnsafeEngine {
	o := defaultOptions()
	o.hold = func(context.Context, string) {
		time.Sleep(rand.N(unsafePauseMax))
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &UnsafeEngine{store: store, opts: o}
}

func (e *UnsafeEngine) Strategy() Strategy { return StrategyUnsafe }

func (e *UnsafeEngine) Initialize(ctx context.Context, key string, quantity int64) error {
	if err := domain.ValidateQuantity(quantity); err != nil {
		return err
	}
	return e.store.Initialize(ctx, key, quantity)
}

func (e *UnsafeEngine) Decrease(ctx context.Context, key string, amount int64) (err error) {
	defer func() { e.opts.observe(StrategyUnsafe, key, amount, err) }()

	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	rec, err := e.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if rec == nil {
		return notFound(key)
	}
	if !rec.Sufficient(amount) {
		return insufficient(key, rec.Quantity, amount)
	}
	e.opts.holdFor(ctx, key)

	rec.Quantity -= amount
	return e.store.Put(ctx, *rec)
}

func (e *UnsafeEngine) CurrentQuantity(ctx context.Context, key string) (int64, error) {
	return storeQuantity(ctx, e.store, key)
}
