package metrics

import (
	"errors"

	"github.com/rl1809/stock-guard/internal/core/domain"
)

// Outcome maps a decrease result onto its outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, domain.ErrInsufficientStock):
		return OutcomeInsufficient
	case errors.Is(err, domain.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, domain.ErrRetryExhausted):
		return OutcomeExhausted
	default:
		return OutcomeError
	}
}

// ObserveDecrease records one decrease result for strategy.
func ObserveDecrease(strategy string, err error) {
	DecreaseCounter.WithLabelValues(strategy, Outcome(err)).Inc()
}

// ObserveRecovered records a decrease that ran out of attempts and whose
// failure a recovery hook swallowed. Nothing was committed.
func ObserveRecovered(strategy string) {
	DecreaseCounter.WithLabelValues(strategy, OutcomeRecovered).Inc()
}
