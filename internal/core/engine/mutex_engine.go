package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/stock-guard/internal/core/domain"
	"github.com/rl1809/stock-guard/internal/core/keylock"
)

type Granularity int

const (
	// GranularityGlobal serializes every key behind one mutex.
	GranularityGlobal Granularity = iota
	// GranularityPerKey gives each key its own lock, created on first use.
	GranularityPerKey
)

// MutexEngine runs the sufficiency check and the decrement as one critical
// section over an in-process record map.
type MutexEngine struct {
	granularity Granularity
	global      sync.Mutex
	locks       *keylock.Map

	// mu guards the map itself. Record fields are guarded by the key's lock.
	mu      sync.RWMutex
	records map[string]*domain.StockRecord
	opts    options
}

func NewMutex(g Granularity, opts ...Option) *MutexEngine {
	return &MutexEngine{
		granularity: g,
		locks:       keylock.NewMap(),
		records:     make(map[string]*domain.StockRecord),
		opts:        buildOptions(opts),
	}
}

func (e *MutexEngine) Strategy() Strategy {
	if e.granularity == GranularityPerKey {
		return StrategyMutexKey
	}
	return StrategyMutexGlobal
}

func (e *MutexEngine) lock(ctx context.Context, key string) (func(), error) {
	if e.granularity == GranularityPerKey {
		return e.locks.Acquire(ctx, key)
	}
	e.global.Lock()
	return e.global.Unlock, nil
}

func (e *MutexEngine) record(key string) *domain.StockRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.records[key]
}

func (e *MutexEngine) Initialize(ctx context.Context, key string, quantity int64) error {
	if err := domain.ValidateQuantity(quantity); err != nil {
		return err
	}
	unlock, err := e.lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	now := time.Now()
	e.mu.Lock()
	e.records[key] = &domain.StockRecord{Key: key, Quantity: quantity, CreatedAt: now, UpdatedAt: now}
	e.mu.Unlock()
	return nil
}

func (e *MutexEngine) Decrease(ctx context.Context, key string, amount int64) (err error) {
	defer func() { e.opts.observe(e.Strategy(), key, amount, err) }()

	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	unlock, err := e.lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	rec := e.record(key)
	if rec == nil {
		return notFound(key)
	}
	e.opts.holdFor(ctx, key)
	if !rec.Sufficient(amount) {
		return insufficient(key, rec.Quantity, amount)
	}
	rec.Quantity -= amount
	rec.Version++
	rec.UpdatedAt = time.Now()
	return nil
}

func (e *MutexEngine) CurrentQuantity(ctx context.Context, key string) (int64, error) {
	unlock, err := e.lock(ctx, key)
	if err != nil {
		return 0, err
	}
	defer unlock()

	rec := e.record(key)
	if rec == nil {
		return 0, nil
	}
	return rec.Quantity, nil
}
