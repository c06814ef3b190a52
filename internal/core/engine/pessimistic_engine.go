package engine

import (
	"context"

	"github.com/rl1809/stock-guard/internal/core/domain"
	"github.com/rl1809/stock-guard/internal/port"
)

// PessimisticEngine serializes decrements on a key through the store's
// exclusive record lock. Status reads skip the lock.
type PessimisticEngine struct {
	store port.LockingStore
	opts  options
}

func NewPessimistic(store port.LockingStore, opts ...Option) *PessimisticEngine {
	return &PessimisticEngine{store: store, opts: buildOptions(opts)}
}

func (e *PessimisticEngine) Strategy() Strategy { return StrategyPessimistic }

func (e *PessimisticEngine) Initialize(ctx context.Context, key string, quantity int64) error {
	if err := domain.ValidateQuantity(quantity); err != nil {
		return err
	}
	return e.store.Initialize(ctx, key, quantity)
}

func (e *PessimisticEngine) Decrease(ctx context.Context, key string, amount int64) (err error) {
	defer func() { e.opts.observe(StrategyPessimistic, key, amount, err) }()

	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	return e.store.WithExclusiveLock(ctx, key, func(ctx context.Context, locked port.LockedRecord) error {
		rec := locked.Record()
		e.opts.holdFor(ctx, key)
		if !rec.Sufficient(amount) {
			return insufficient(key, rec.Quantity, amount)
		}
		return locked.SetQuantity(ctx, rec.Quantity-amount)
	})
}

func (e *PessimisticEngine) CurrentQuantity(ctx context.Context, key string) (int64, error) {
	return storeQuantity(ctx, e.store, key)
}
