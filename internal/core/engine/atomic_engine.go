package engine

import (
	"context"

	"github.com/rl1809/stock-guard/internal/core/domain"
	"github.com/rl1809/stock-guard/internal/port"
)

// AtomicStoreEngine pushes the check-and-decrement into the store as a single
// conditional statement (a Lua script on Redis, a guarded UPDATE on MySQL).
type AtomicStoreEngine struct {
	store port.AtomicStore
	opts  options
}

func NewAtomicStore(store port.AtomicStore, opts ...Option) *AtomicStoreEngine {
	return &AtomicStoreEngine{store: store, opts: buildOptions(opts)}
}

func (e *AtomicStoreEngine) Strategy() Strategy { return StrategyAtomic }

func (e *AtomicStoreEngine) Initialize(ctx context.Context, key string, quantity int64) error {
	if err := domain.ValidateQuantity(quantity); err != nil {
		return err
	}
	return e.store.Initialize(ctx, key, quantity)
}

func (e *AtomicStoreEngine) Decrease(ctx context.Context, key string, amount int64) (err error) {
	defer func() { e.opts.observe(StrategyAtomic, key, amount, err) }()

	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	ok, err := e.store.DecrementIfEnough(ctx, key, amount)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	// The store only says no; tell a missing key apart from a shortage.
	rec, err := e.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if rec == nil {
		return notFound(key)
	}
	return insufficient(key, rec.Quantity, amount)
}

func (e *AtomicStoreEngine) CurrentQuantity(ctx context.Context, key string) (int64, error) {
	return storeQuantity(ctx, e.store, key)
}
