package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rl1809/stock-guard/internal/core/domain"
	"github.com/rl1809/stock-guard/internal/metrics"
)

// CASEngine keeps one atomic cell per key and decrements it with a
// compare-and-swap loop. It never blocks.
type CASEngine struct {
	mu    sync.RWMutex
	cells map[string]*atomic.Int64
	opts  options

	conflicts atomic.Int64
}

func NewCAS(opts ...Option) *CASEngine {
	return &CASEngine{
		cells: make(map[string]*atomic.Int64),
		opts:  buildOptions(opts),
	}
}

func (e *CASEngine) Strategy() Strategy { return StrategyCAS }

func (e *CASEngine) Initialize(ctx context.Context, key string, quantity int64) error {
	if err := domain.ValidateQuantity(quantity); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.cells[key]; ok {
		c.Store(quantity)
		return nil
	}
	c := new(atomic.Int64)
	c.Store(quantity)
	e.cells[key] = c
	return nil
}

func (e *CASEngine) cell(key string) *atomic.Int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cells[key]
}

// Decrease re-reads and re-checks after every failed swap. A failed swap means
// another decrement committed, so the loop always makes progress.
func (e *CASEngine) Decrease(ctx context.Context, key string, amount int64) (err error) {
	defer func() { e.opts.observe(StrategyCAS, key, amount, err) }()

	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	c := e.cell(key)
	if c == nil {
		return notFound(key)
	}
	for {
		cur := c.Load()
		if cur < amount {
			return insufficient(key, cur, amount)
		}
		e.opts.holdFor(ctx, key)
		if c.CompareAndSwap(cur, cur-amount) {
			return nil
		}
		e.conflicts.Add(1)
		metrics.ConflictCounter.WithLabelValues(string(StrategyCAS)).Inc()
	}
}

func (e *CASEngine) CurrentQuantity(ctx context.Context, key string) (int64, error) {
	c := e.cell(key)
	if c == nil {
		return 0, nil
	}
	return c.Load(), nil
}

// Conflicts returns how many swaps lost a race so far.
func (e *CASEngine) Conflicts() int64 {
	return e.conflicts.Load()
}
