package storage

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rl1809/parts-stock/internal/core/domain"
	"github.com/rl1809/parts-stock/internal/keylock"
)

type memoryEntry struct {
	quantity  atomic.Int64
	version   atomic.Int64
	updatedAt atomic.Int64
}

// MemoryStockStore keeps the ledger in process. Writers lock their keys;
// readers load atomics without locking.
type MemoryStockStore struct {
	mu      sync.RWMutex
	entries map[domain.StockKey]*memoryEntry
	locks   *keylock.Map

	// FailWrite, when set, runs before each leg is written. A non-nil
	// error aborts the batch after undoing the legs already written.
	FailWrite func(key domain.StockKey) error
}

func NewMemoryStockStore() *MemoryStockStore {
	return &MemoryStockStore{
		entries: make(map[domain.StockKey]*memoryEntry),
		locks:   keylock.New(),
	}
}

func (m *MemoryStockStore) GetQuantity(ctx context.Context, key domain.StockKey) (int, error) {
	if e := m.lookup(key); e != nil {
		return int(e.quantity.Load()), nil
	}
	return 0, nil
}

func (m *MemoryStockStore) ListByPart(ctx context.Context, partID domain.PartID) ([]domain.StockEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.StockEntry
	for key, e := range m.entries {
		if key.PartID == partID {
			out = append(out, snapshotEntry(key, e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocationID < out[j].LocationID })
	return out, nil
}

func (m *MemoryStockStore) ApplyDeltas(ctx context.Context, deltas []domain.StockDelta) ([]domain.StockEntry, error) {
	merged := domain.MergeDeltas(deltas)
	if len(merged) == 0 {
		return nil, nil
	}

	names := make([]string, len(merged))
	for i, d := range merged {
		names[i] = d.Key.String()
	}
	unlock := m.locks.LockAll(names)
	defer unlock()

	for _, d := range merged {
		current := 0
		if e := m.lookup(d.Key); e != nil {
			current = int(e.quantity.Load())
		}
		if err := checkDelta(d, current); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC().UnixNano()
	for i, d := range merged {
		if m.FailWrite != nil {
			if err := m.FailWrite(d.Key); err != nil {
				m.undo(merged[:i])
				return nil, err
			}
		}
		e := m.entry(d.Key)
		e.quantity.Add(int64(d.Delta))
		e.version.Add(1)
		e.updatedAt.Store(now)
	}

	out := make([]domain.StockEntry, len(merged))
	for i, d := range merged {
		out[i] = snapshotEntry(d.Key, m.lookup(d.Key))
	}
	return out, nil
}

// Set seeds a quantity, bypassing batch checks.
func (m *MemoryStockStore) Set(key domain.StockKey, quantity int) {
	unlock := m.locks.Lock(key.String())
	defer unlock()
	e := m.entry(key)
	e.quantity.Store(int64(quantity))
	e.version.Add(1)
	e.updatedAt.Store(time.Now().UTC().UnixNano())
}

func (m *MemoryStockStore) undo(applied []domain.StockDelta) {
	for _, d := range applied {
		e := m.lookup(d.Key)
		e.quantity.Add(int64(-d.Delta))
		e.version.Add(1)
	}
}

func (m *MemoryStockStore) lookup(key domain.StockKey) *memoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[key]
}

func (m *MemoryStockStore) entry(key domain.StockKey) *memoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &memoryEntry{}
		m.entries[key] = e
	}
	return e
}

func snapshotEntry(key domain.StockKey, e *memoryEntry) domain.StockEntry {
	return domain.StockEntry{
		PartID:     key.PartID,
		LocationID: key.LocationID,
		Quantity:   int(e.quantity.Load()),
		Version:    int(e.version.Load()),
		UpdatedAt:  time.Unix(0, e.updatedAt.Load()).UTC(),
	}
}

// checkDelta is shared by adapters that validate before writing.
func checkDelta(d domain.StockDelta, current int) error {
	if d.Expected != domain.NoExpectation && current != d.Expected {
		return &domain.StockError{Key: d.Key, Available: current, Requested: d.Expected, Err: domain.ErrVersionConflict}
	}
	if current+d.Delta < 0 {
		return &domain.StockError{Key: d.Key, Available: current, Requested: -d.Delta, Err: domain.ErrInsufficientStock}
	}
	return nil
}

// MemoryIdempotency is the in-process SETNX.
type MemoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]time.Time
	ttl  time.Duration
}

func NewMemoryIdempotency(ttl time.Duration) *MemoryIdempotency {
	return &MemoryIdempotency{keys: make(map[string]time.Time), ttl: ttl}
}

func (m *MemoryIdempotency) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if exp, ok := m.keys[key]; ok && (m.ttl <= 0 || now.Before(exp)) {
		return false, nil
	}
	m.keys[key] = now.Add(m.ttl)
	return true, nil
}
