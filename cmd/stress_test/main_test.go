package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stock-guard/internal/adapter/storage"
	"github.com/rl1809/stock-guard/internal/core/engine"
)

var errConnReset = errors.New("connection reset")

// brokenStore loses its connection on every conditional decrement.
type brokenStore struct {
	*storage.MemoryStore
}

func (brokenStore) DecrementIfEnough(ctx context.Context, key string, amount int64) (bool, error) {
	return false, errConnReset
}

func TestRunCleanStrategy(t *testing.T) {
	res, err := run(context.Background(), engine.StrategyAtomic, storage.NewMemoryStore(), 0)
	require.NoError(t, err)

	assert.NoError(t, res.firstErr)
	assert.Equal(t, int32(totalRequests), res.success)
	assert.Equal(t, int64(0), res.final)
	assert.True(t, report(res))
}

func TestRunReportsInfrastructureFailures(t *testing.T) {
	res, err := run(context.Background(), engine.StrategyAtomic, brokenStore{storage.NewMemoryStore()}, 0)
	require.NoError(t, err)

	assert.ErrorIs(t, res.firstErr, errConnReset)
	assert.Equal(t, int32(totalRequests), res.failed)
	assert.Equal(t, int32(0), res.success)
	assert.False(t, report(res), "failed decreases fail the run even though stock is conserved")
}
