package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/rl1809/stock-guard/internal/core/domain"
	"github.com/rl1809/stock-guard/internal/core/engine"
	"github.com/rl1809/stock-guard/internal/port"
)

const idempotencyKeyPrefix = "decrease:"

type StockService struct {
	engine engine.Engine
	guard  port.IdempotencyGuard
	log    logr.Logger
}

type Option func(*StockService)

// WithIdempotencyGuard de-duplicates decreases that carry a request id.
func WithIdempotencyGuard(guard port.IdempotencyGuard) Option {
	return func(s *StockService) {
		s.guard = guard
	}
}

func WithLogger(log logr.Logger) Option {
	return func(s *StockService) {
		s.log = log
	}
}

func NewStockService(e engine.Engine, opts ...Option) *StockService {
	s := &StockService{
		engine: e,
		log:    logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StockService) Strategy() engine.Strategy {
	return s.engine.Strategy()
}

func (s *StockService) Initialize(ctx context.Context, key string, quantity int64) error {
	if err := s.engine.Initialize(ctx, key, quantity); err != nil {
		return err
	}
	s.log.Info("stock initialized", "key", key, "quantity", quantity, "strategy", s.engine.Strategy())
	return nil
}

func (s *StockService) CurrentQuantity(ctx context.Context, key string) (int64, error) {
	return s.engine.CurrentQuantity(ctx, key)
}

// Decrease takes amount from key. A non-empty requestID is claimed in the
// idempotency guard first; a replay returns domain.ErrDuplicateRequest.
func (s *StockService) Decrease(ctx context.Context, requestID, key string, amount int64) error {
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}

	idempotencyKey := ""
	if requestID != "" && s.guard != nil {
		idempotencyKey = idempotencyKeyPrefix + requestID
		ok, err := s.guard.SetIdempotency(ctx, idempotencyKey)
		if err != nil {
			return fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			s.log.V(1).Info("duplicate request", "request_id", requestID, "key", key)
			return domain.ErrDuplicateRequest
		}
	}

	err := s.engine.Decrease(ctx, key, amount)
	if err != nil && idempotencyKey != "" && !isRejection(err) {
		// The decrease did not land, let the client retry with the same id.
		if relErr := s.guard.ReleaseIdempotency(context.WithoutCancel(ctx), idempotencyKey); relErr != nil {
			s.log.Error(relErr, "release idempotency key", "request_id", requestID)
		}
	}
	return err
}

// isRejection reports whether err is a final business answer that a replay
// would only repeat.
func isRejection(err error) bool {
	return errors.Is(err, domain.ErrInsufficientStock) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInvalidAmount)
}
