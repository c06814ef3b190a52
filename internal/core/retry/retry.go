// Package retry re-runs an operation that fails with a transient conflict,
// waiting with exponential backoff between attempts.
//
// An operation moves through ATTEMPTING into one of SUCCESS, NON_RETRYABLE
// (returned as is), TRANSIENT (wait, then ATTEMPTING again) or EXHAUSTED
// (returned as *domain.RetryExhaustedError wrapping the last conflict).
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/stock-guard/internal/core/domain"
	"github.com/rl1809/stock-guard/internal/metrics"
)

const instrumentationName = "github.com/rl1809/stock-guard/internal/core/retry"

// Operation is one read-modify-write attempt.
type Operation func(ctx context.Context) error

// RecoverFunc runs once the attempts are exhausted. Its result replaces the
// exhaustion error; returning nil swallows the failure.
type RecoverFunc func(ctx context.Context, err error) error

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

type Coordinator struct {
	cfg       Config
	retryable func(error) bool
	sleep     Sleeper
	random    func() float64
	tracer    trace.Tracer
	log       logr.Logger
	name      string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRetryable overrides which errors are worth another attempt.
func WithRetryable(fn func(error) bool) Option {
	return func(c *Coordinator) {
		c.retryable = fn
	}
}

// WithSleeper replaces the timer based wait.
func WithSleeper(s Sleeper) Option {
	return func(c *Coordinator) {
		c.sleep = s
	}
}

// WithRandom sets the source of jitter samples in [0, 1).
func WithRandom(fn func() float64) Option {
	return func(c *Coordinator) {
		c.random = fn
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Coordinator) {
		c.tracer = tp.Tracer(instrumentationName)
	}
}

func WithLogger(log logr.Logger) Option {
	return func(c *Coordinator) {
		c.log = log
	}
}

// WithName labels spans and log lines, typically with the strategy name.
func WithName(name string) Option {
	return func(c *Coordinator) {
		c.name = name
	}
}

func New(cfg Config, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Coordinator{
		cfg:       cfg,
		retryable: domain.IsTransient,
		sleep:     sleepContext,
		random:    rand.Float64,
		tracer:    otel.GetTracerProvider().Tracer(instrumentationName),
		log:       logr.Discard(),
		name:      "retry",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Coordinator) Config() Config {
	return c.cfg
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempts run out.
func (c *Coordinator) Do(ctx context.Context, op Operation) error {
	return c.DoWithRecover(ctx, op, nil)
}

// DoWithRecover is Do with a hook that only runs on exhaustion.
func (c *Coordinator) DoWithRecover(ctx context.Context, op Operation, onExhausted RecoverFunc) error {
	ctx, span := c.tracer.Start(ctx, c.name+".Do",
		trace.WithAttributes(attribute.Int("retry.max_attempts", c.cfg.MaxAttempts)))
	defer span.End()

	var last error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			return err
		}

		err := c.attempt(ctx, attempt, op)
		if err == nil {
			span.SetAttributes(attribute.Int("retry.attempts", attempt))
			return nil
		}
		if !c.retryable(err) {
			span.SetAttributes(attribute.Int("retry.attempts", attempt))
			return err
		}
		last = err
		if attempt == c.cfg.MaxAttempts {
			break
		}

		d := c.cfg.jittered(c.cfg.Delay(attempt), c.random())
		c.log.V(1).Info("transient conflict, backing off", "op", c.name, "attempt", attempt, "delay", d, "err", err.Error())
		metrics.RetryDelayHistogram.Observe(d.Seconds())
		if err := c.sleep(ctx, d); err != nil {
			span.RecordError(err)
			return err
		}
	}

	exhausted := &domain.RetryExhaustedError{Attempts: c.cfg.MaxAttempts, Err: last}
	span.SetAttributes(attribute.Int("retry.attempts", c.cfg.MaxAttempts))
	span.SetStatus(codes.Error, exhausted.Error())
	c.log.Error(last, "retry attempts exhausted", "op", c.name, "attempts", c.cfg.MaxAttempts)
	if onExhausted != nil {
		return onExhausted(ctx, exhausted)
	}
	return exhausted
}

func (c *Coordinator) attempt(ctx context.Context, n int, op Operation) error {
	ctx, span := c.tracer.Start(ctx, c.name+".attempt", trace.WithAttributes(attribute.Int("retry.attempt", n)))
	defer span.End()

	metrics.RetryAttemptCounter.Inc()
	err := op(ctx)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
