package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/stock-guard/internal/core/domain"
	"github.com/rl1809/stock-guard/internal/core/keylock"
	"github.com/rl1809/stock-guard/internal/port"
)

// MemoryStore keeps stock records in process memory. It implements every store
// port, so any strategy can run against it without external services.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.StockRecord
	idem    map[string]struct{}
	locks   *keylock.Map
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]domain.StockRecord),
		idem:    make(map[string]struct{}),
		locks:   keylock.NewMap(),
		now:     time.Now,
	}
}

func (m *MemoryStore) Initialize(ctx context.Context, key string, quantity int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	rec, ok := m.records[key]
	if !ok {
		rec = domain.StockRecord{Key: key, CreatedAt: now}
	}
	rec.Quantity = quantity
	rec.Version = 0
	rec.UpdatedAt = now
	m.records[key] = rec
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*domain.StockRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) Put(ctx context.Context, rec domain.StockRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.records[rec.Key]
	if !ok {
		return domain.ErrNotFound
	}
	cur.Quantity = rec.Quantity
	cur.Version++
	cur.UpdatedAt = m.now()
	m.records[rec.Key] = cur
	return nil
}

func (m *MemoryStore) UpdateVersioned(ctx context.Context, rec domain.StockRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.records[rec.Key]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != rec.Version {
		return domain.ErrVersionConflict
	}
	cur.Quantity = rec.Quantity
	cur.Version++
	cur.UpdatedAt = m.now()
	m.records[rec.Key] = cur
	return nil
}

func (m *MemoryStore) DecrementIfEnough(ctx context.Context, key string, amount int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.records[key]
	if !ok || cur.Quantity < amount {
		return false, nil
	}
	cur.Quantity -= amount
	cur.Version++
	cur.UpdatedAt = m.now()
	m.records[key] = cur
	return true, nil
}

type memoryLockedRecord struct {
	store *MemoryStore
	rec   domain.StockRecord
}

func (r *memoryLockedRecord) Record() domain.StockRecord {
	return r.rec
}

func (r *memoryLockedRecord) SetQuantity(ctx context.Context, quantity int64) error {
	r.rec.Quantity = quantity
	return r.store.Put(ctx, r.rec)
}

func (m *MemoryStore) WithExclusiveLock(ctx context.Context, key string, fn func(ctx context.Context, rec port.LockedRecord) error) error {
	release, err := m.locks.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()

	rec, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if rec == nil {
		return domain.ErrNotFound
	}
	return fn(ctx, &memoryLockedRecord{store: m, rec: *rec})
}

func (m *MemoryStore) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.idem[key]; ok {
		return false, nil
	}
	m.idem[key] = struct{}{}
	return true, nil
}

func (m *MemoryStore) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idem, key)
	return nil
}

var (
	_ port.VersionedStore   = (*MemoryStore)(nil)
	_ port.LockingStore     = (*MemoryStore)(nil)
	_ port.AtomicStore      = (*MemoryStore)(nil)
	_ port.IdempotencyGuard = (*MemoryStore)(nil)
)
