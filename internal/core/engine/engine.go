// Package engine implements decrement strategies over keyed stock quantities.
// Every engine honours the same contract: a decrease either commits exactly
// once or returns an error, and quantity never drops below zero.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/rl1809/stock-guard/internal/core/domain"
	"github.com/rl1809/stock-guard/internal/metrics"
)

type Strategy string

const (
	StrategyCAS         Strategy = "cas"
	StrategyMutexGlobal Strategy = "mutex-global"
	StrategyMutexKey    Strategy = "mutex-key"
	StrategyOptimistic  Strategy = "optimistic"
	StrategyPessimistic Strategy = "pessimistic"
	StrategyUnsafe      Strategy = "unsafe"
	StrategyAtomic      Strategy = "atomic"
)

var ErrUnknownStrategy = errors.New("unknown strategy")

// Strategies lists every strategy New understands.
func Strategies() []Strategy {
	return []Strategy{
		StrategyCAS, StrategyMutexGlobal, StrategyMutexKey,
		StrategyOptimistic, StrategyPessimistic, StrategyUnsafe, StrategyAtomic,
	}
}

func ParseStrategy(s string) (Strategy, error) {
	for _, st := range Strategies() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// InProcess reports whether the strategy keeps its own state rather than
// going through a store.
func (s Strategy) InProcess() bool {
	switch s {
	case StrategyCAS, StrategyMutexGlobal, StrategyMutexKey:
		return true
	}
	return false
}

type Engine interface {
	// Initialize creates or overwrites the record for key. Not safe to run
	// concurrently with decreases on the same key.
	Initialize(ctx context.Context, key string, quantity int64) error

	// Decrease takes amount from key's quantity.
	Decrease(ctx context.Context, key string, amount int64) error

	// CurrentQuantity returns key's quantity, or 0 for an unknown key.
	CurrentQuantity(ctx context.Context, key string) (int64, error)

	Strategy() Strategy
}

// HoldFunc runs inside a decrement between the read and the write.
type HoldFunc func(ctx context.Context, key string)

// RecoverFunc runs when an optimistic decrease runs out of attempts. Its
// result replaces the exhaustion error; nil swallows it.
type RecoverFunc func(ctx context.Context, key string, amount int64, err error) error

type options struct {
	log     logr.Logger
	hold    HoldFunc
	recover RecoverFunc
}

func defaultOptions() options {
	return options{log: logr.Discard()}
}

type Option func(*options)

func WithLogger(log logr.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithHoldHook installs fn inside the read-modify-write window. Tests use it
// to widen races or to observe that a lock is held.
func WithHoldHook(fn HoldFunc) Option {
	return func(o *options) {
		o.hold = fn
	}
}

// WithRecovery sets the exhaustion hook for the optimistic strategy.
func WithRecovery(fn RecoverFunc) Option {
	return func(o *options) {
		o.recover = fn
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) holdFor(ctx context.Context, key string) {
	if o.hold != nil {
		o.hold(ctx, key)
	}
}

func (o options) observe(s Strategy, key string, amount int64, err error) {
	metrics.ObserveDecrease(string(s), err)
	switch {
	case err == nil:
		o.log.V(2).Info("stock decreased", "strategy", s, "key", key, "amount", amount)
	case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidAmount):
		o.log.V(1).Info("decrease rejected", "strategy", s, "key", key, "amount", amount, "reason", err.Error())
	default:
		o.log.Error(err, "decrease failed", "strategy", s, "key", key, "amount", amount)
	}
}

// observeRecovered reports a decrease whose exhaustion the recovery hook
// swallowed. The caller sees success but the quantity is unchanged.
func (o options) observeRecovered(s Strategy, key string, amount int64, exhausted error) {
	metrics.ObserveRecovered(string(s))
	o.log.Info("decrease not committed, exhaustion recovered", "strategy", s, "key", key, "amount", amount, "reason", exhausted.Error())
}

func insufficient(key string, have, want int64) error {
	return fmt.Errorf("%w: %s has %d, requested %d", domain.ErrInsufficientStock, key, have, want)
}

func notFound(key string) error {
	return fmt.Errorf("%w: %s", domain.ErrNotFound, key)
}
