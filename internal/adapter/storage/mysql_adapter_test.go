package storage

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stock-guard/internal/core/domain"
	"github.com/rl1809/stock-guard/internal/port"
)

func getMySQLAdapter(t *testing.T) *MySQLAdapter {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/stockguard?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("MySQL not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	adapter := NewMySQLAdapter(db)
	require.NoError(t, adapter.EnsureSchema(context.Background()))
	return adapter
}

func TestMySQL_GetStock(t *testing.T) {
	adapter := getMySQLAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.Initialize(ctx, "get-test-item", 50))

	rec, err := adapter.Get(ctx, "get-test-item")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "get-test-item", rec.Key)
	assert.Equal(t, int64(50), rec.Quantity)
	assert.Equal(t, int64(0), rec.Version)
}

func TestMySQL_GetStock_NotFound(t *testing.T) {
	adapter := getMySQLAdapter(t)

	rec, err := adapter.Get(context.Background(), "nonexistent-item")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMySQL_UpdateVersioned(t *testing.T) {
	adapter := getMySQLAdapter(t)
	ctx := context.Background()
	require.NoError(t, adapter.Initialize(ctx, "lock-test-item", 100))

	rec := domain.StockRecord{Key: "lock-test-item", Quantity: 90, Version: 0}
	require.NoError(t, adapter.UpdateVersioned(ctx, rec))

	got, err := adapter.Get(ctx, "lock-test-item")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)

	// stale version
	assert.ErrorIs(t, adapter.UpdateVersioned(ctx, rec), domain.ErrVersionConflict)
	assert.ErrorIs(t, adapter.UpdateVersioned(ctx, domain.StockRecord{Key: "nonexistent-item"}), domain.ErrNotFound)
}

func TestMySQL_DecrementIfEnough(t *testing.T) {
	adapter := getMySQLAdapter(t)
	ctx := context.Background()
	require.NoError(t, adapter.Initialize(ctx, "empty-item", 0))

	ok, err := adapter.DecrementIfEnough(ctx, "empty-item", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMySQL_WithExclusiveLockConcurrent(t *testing.T) {
	adapter := getMySQLAdapter(t)
	ctx := context.Background()
	require.NoError(t, adapter.Initialize(ctx, "for-update-item", 50))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := adapter.WithExclusiveLock(ctx, "for-update-item", func(ctx context.Context, rec port.LockedRecord) error {
				return rec.SetQuantity(ctx, rec.Record().Quantity-1)
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	rec, err := adapter.Get(ctx, "for-update-item")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.Quantity)
}
