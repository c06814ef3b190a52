package port

import (
	"context"

	"github.com/rl1809/stock-guard/internal/core/domain"
)

type StockStore interface {
	// Initialize creates or overwrites the record for key
	Initialize(ctx context.Context, key string, quantity int64) error

	// Get retrieves the record without locking, returns nil if the key is unknown
	Get(ctx context.Context, key string) (*domain.StockRecord, error)

	// Put overwrites quantity with no conflict detection
	Put(ctx context.Context, record domain.StockRecord) error
}

type VersionedStore interface {
	StockStore

	// UpdateVersioned writes record.Quantity only if the stored version still equals
	// record.Version, bumping the version on success. Returns domain.ErrVersionConflict otherwise.
	UpdateVersioned(ctx context.Context, record domain.StockRecord) error
}

// LockedRecord is a record read under an exclusive lock. It is only valid
// inside the function passed to WithExclusiveLock.
type LockedRecord interface {
	Record() domain.StockRecord
	SetQuantity(ctx context.Context, quantity int64) error
}

type LockingStore interface {
	StockStore

	// WithExclusiveLock blocks until key is locked, then runs fn with the current
	// record. The lock is released when fn returns. Returns domain.ErrNotFound if
	// the key is unknown.
	WithExclusiveLock(ctx context.Context, key string, fn func(ctx context.Context, rec LockedRecord) error) error
}

type AtomicStore interface {
	StockStore

	// DecrementIfEnough atomically decreases stock, returns false if insufficient or missing
	DecrementIfEnough(ctx context.Context, key string, amount int64) (bool, error)
}
