package metrics

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stock-guard/internal/core/domain"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	ObserveDecrease("test", nil)
	ObserveRecovered("test")
	ConflictCounter.WithLabelValues("test").Inc()
	RetryAttemptCounter.Inc()
	RetryDelayHistogram.Observe(0.01)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, mfs, 4)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	assert.Panics(t, func() { Register(reg) })
}

func TestOutcome(t *testing.T) {
	cases := map[string]error{
		OutcomeSuccess:      nil,
		OutcomeInsufficient: fmt.Errorf("wrap: %w", domain.ErrInsufficientStock),
		OutcomeNotFound:     domain.ErrNotFound,
		OutcomeExhausted:    &domain.RetryExhaustedError{Attempts: 2, Err: domain.ErrVersionConflict},
		OutcomeError:        fmt.Errorf("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, Outcome(err), "err=%v", err)
	}
}

func TestObserveDecrease(t *testing.T) {
	before := testutil.ToFloat64(DecreaseCounter.WithLabelValues("observe-test", OutcomeInsufficient))
	ObserveDecrease("observe-test", domain.ErrInsufficientStock)
	after := testutil.ToFloat64(DecreaseCounter.WithLabelValues("observe-test", OutcomeInsufficient))
	assert.Equal(t, before+1, after)
}
