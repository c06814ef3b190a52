package engine

import (
	"errors"
	"fmt"

	"github.com/rl1809/stock-guard/internal/core/retry"
	"github.com/rl1809/stock-guard/internal/port"
)

var ErrUnsupportedStore = errors.New("store does not support strategy")

// Config selects and parameterizes an engine.
type Config struct {
	Strategy Strategy
	Retry    retry.Config
	// RetryOptions are passed to the coordinator of the optimistic strategy.
	RetryOptions []retry.Option
}

// New builds the engine for cfg.Strategy. In-process strategies ignore store;
// the others require it to implement the matching port.
func New(cfg Config, store port.StockStore, opts ...Option) (Engine, error) {
	if _, err := ParseStrategy(string(cfg.Strategy)); err != nil {
		return nil, err
	}
	switch cfg.Strategy {
	case StrategyCAS:
		return NewCAS(opts...), nil
	case StrategyMutexGlobal:
		return NewMutex(GranularityGlobal, opts...), nil
	case StrategyMutexKey:
		return NewMutex(GranularityPerKey, opts...), nil
	}

	if store == nil {
		return nil, fmt.Errorf("%w: %s needs a store", ErrUnsupportedStore, cfg.Strategy)
	}
	switch cfg.Strategy {
	case StrategyOptimistic:
		vs, ok := store.(port.VersionedStore)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs versioned updates", ErrUnsupportedStore, cfg.Strategy)
		}
		o := buildOptions(opts)
		retryOpts := append([]retry.Option{
			retry.WithLogger(o.log),
			retry.WithName(string(StrategyOptimistic)),
		}, cfg.RetryOptions...)
		coord, err := retry.New(cfg.Retry, retryOpts...)
		if err != nil {
			return nil, err
		}
		return NewOptimistic(vs, coord, opts...), nil
	case StrategyPessimistic:
		ls, ok := store.(port.LockingStore)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs exclusive locks", ErrUnsupportedStore, cfg.Strategy)
		}
		return NewPessimistic(ls, opts...), nil
	case StrategyAtomic:
		as, ok := store.(port.AtomicStore)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs conditional decrements", ErrUnsupportedStore, cfg.Strategy)
		}
		return NewAtomicStore(as, opts...), nil
	case StrategyUnsafe:
		return NewUnsafe(store, opts...), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, cfg.Strategy)
}
