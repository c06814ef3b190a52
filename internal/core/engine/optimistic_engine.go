package engine

import (
	"context"

	"github.com/rl1809/stock-guard/internal/core/domain"
	"github.com/rl1809/stock-guard/internal/core/retry"
	"github.com/rl1809/stock-guard/internal/metrics"
	"github.com/rl1809/stock-guard/internal/port"
)

// OptimisticEngine reads without locking and commits with a version check.
// Conflicts go back to the coordinator, which re-runs the whole cycle.
type OptimisticEngine struct {
	store port.VersionedStore
	coord *retry.Coordinator
	opts  options
}

func NewOptimistic(store port.VersionedStore, coord *retry.Coordinator, opts ...Option) *OptimisticEngine {
	return &OptimisticEngine{store: store, coord: coord, opts: buildOptions(opts)}
}

func (e *OptimisticEngine) Strategy() Strategy { return StrategyOptimistic }

func (e *OptimisticEngine) Initialize(ctx context.Context, key string, quantity int64) error {
	if err := domain.ValidateQuantity(quantity); err != nil {
		return err
	}
	return e.store.Initialize(ctx, key, quantity)
}

func (e *OptimisticEngine) Decrease(ctx context.Context, key string, amount int64) (err error) {
	var exhausted error
	defer func() {
		if exhausted != nil && err == nil {
			e.opts.observeRecovered(StrategyOptimistic, key, amount, exhausted)
			return
		}
		e.opts.observe(StrategyOptimistic, key, amount, err)
	}()

	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	op := func(ctx context.Context) error {
		return e.attempt(ctx, key, amount)
	}
	if e.opts.recover == nil {
		return e.coord.Do(ctx, op)
	}
	return e.coord.DoWithRecover(ctx, op, func(ctx context.Context, err error) error {
		exhausted = err
		return e.opts.recover(ctx, key, amount, err)
	})
}

func (e *OptimisticEngine) attempt(ctx context.Context, key string, amount int64) error {
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
	err = e.store.UpdateVersioned(ctx, *rec)
	if domain.IsTransient(err) {
		metrics.ConflictCounter.WithLabelValues(string(StrategyOptimistic)).Inc()
	}
	return err
}

func (e *OptimisticEngine) CurrentQuantity(ctx context.Context, key string) (int64, error) {
	return storeQuantity(ctx, e.store, key)
}

func storeQuantity(ctx context.Context, store port.StockStore, key string) (int64, error) {
	rec, err := store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return 0, nil
	}
	return rec.Quantity, nil
}
