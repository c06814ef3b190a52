package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/stock-guard/internal/core/domain"
	"github.com/rl1809/stock-guard/internal/port"
)

const stockSchema = `
CREATE TABLE IF NOT EXISTS stock (
	stock_key  VARCHAR(191) NOT NULL PRIMARY KEY,
	quantity   BIGINT       NOT NULL,
	version    BIGINT       NOT NULL DEFAULT 0,
	created_at DATETIME(6)  NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	updated_at DATETIME(6)  NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	CHECK (quantity >= 0)
)`

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, stockSchema); err != nil {
		return fmt.Errorf("create stock table: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) Initialize(ctx context.Context, key string, quantity int64) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO stock (stock_key, quantity, version, created_at, updated_at)
		VALUES (?, ?, 0, NOW(6), NOW(6))
		ON DUPLICATE KEY UPDATE quantity = VALUES(quantity), version = 0, updated_at = NOW(6)`,
		key, quantity,
	)
	if err != nil {
		return fmt.Errorf("initialize stock: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) Get(ctx context.Context, key string) (*domain.StockRecord, error) {
	rec, err := scanStock(m.db.QueryRowContext(ctx, `
		SELECT stock_key, quantity, version, created_at, updated_at
		FROM stock WHERE stock_key = ?`, key,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query stock: %w", err)
	}
	return rec, nil
}

func (m *MySQLAdapter) Put(ctx context.Context, rec domain.StockRecord) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE stock
		SET quantity = ?, version = version + 1, updated_at = NOW(6)
		WHERE stock_key = ?`,
		rec.Quantity, rec.Key,
	)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	return m.checkAffected(ctx, result, rec.Key, domain.ErrNotFound)
}

func (m *MySQLAdapter) UpdateVersioned(ctx context.Context, rec domain.StockRecord) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE stock
		SET quantity = ?, version = version + 1, updated_at = NOW(6)
		WHERE stock_key = ? AND version = ?`,
		rec.Quantity, rec.Key, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	return m.checkAffected(ctx, result, rec.Key, domain.ErrVersionConflict)
}

func (m *MySQLAdapter) DecrementIfEnough(ctx context.Context, key string, amount int64) (bool, error) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE stock
		SET quantity = quantity - ?, version = version + 1, updated_at = NOW(6)
		WHERE stock_key = ? AND quantity >= ?`,
		amount, key, amount,
	)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return rows == 1, nil
}

// WithExclusiveLock reads the row with SELECT ... FOR UPDATE inside a
// transaction. The row lock is held until fn returns and the transaction ends.
func (m *MySQLAdapter) WithExclusiveLock(ctx context.Context, key string, fn func(ctx context.Context, rec port.LockedRecord) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rec, err := scanStock(tx.QueryRowContext(ctx, `
		SELECT stock_key, quantity, version, created_at, updated_at
		FROM stock WHERE stock_key = ? FOR UPDATE`, key,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("select for update: %w", err)
	}

	if err := fn(ctx, &mysqlLockedRecord{tx: tx, rec: *rec}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type mysqlLockedRecord struct {
	tx  *sql.Tx
	rec domain.StockRecord
}

func (r *mysqlLockedRecord) Record() domain.StockRecord {
	return r.rec
}

func (r *mysqlLockedRecord) SetQuantity(ctx context.Context, quantity int64) error {
	_, err := r.tx.ExecContext(ctx, `
		UPDATE stock
		SET quantity = ?, version = version + 1, updated_at = NOW(6)
		WHERE stock_key = ?`,
		quantity, r.rec.Key,
	)
	if err != nil {
		return fmt.Errorf("update locked stock: %w", err)
	}
	r.rec.Quantity = quantity
	r.rec.Version++
	return nil
}

// checkAffected turns a zero-row update into errNoMatch, or ErrNotFound when
// the key is gone. MySQL reports zero rows for a matched row whose values did
// not change, but version always changes here.
func (m *MySQLAdapter) checkAffected(ctx context.Context, result sql.Result, key string, errNoMatch error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}
	if errNoMatch == domain.ErrNotFound {
		return domain.ErrNotFound
	}
	rec, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if rec == nil {
		return domain.ErrNotFound
	}
	return errNoMatch
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStock(row rowScanner) (*domain.StockRecord, error) {
	var rec domain.StockRecord
	if err := row.Scan(&rec.Key, &rec.Quantity, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

var (
	_ port.VersionedStore = (*MySQLAdapter)(nil)
	_ port.LockingStore   = (*MySQLAdapter)(nil)
	_ port.AtomicStore    = (*MySQLAdapter)(nil)
)
