package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

func TestMemoryStockStore_UnknownKeyReadsZero(t *testing.T) {
	store := NewMemoryStockStore()
	qty, err := store.GetQuantity(context.Background(), domain.StockKey{PartID: "p", LocationID: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, qty)
}

func TestMemoryStockStore_RejectsNegative(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStockStore()
	key := domain.StockKey{PartID: "p", LocationID: 1}
	store.Set(key, 2)

	_, err := store.ApplyDeltas(ctx, []domain.StockDelta{domain.Debit(key, 3)})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	var stockErr *domain.StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 3, stockErr.Requested)

	qty, _ := store.GetQuantity(ctx, key)
	assert.Equal(t, 2, qty)
}

func TestMemoryStockStore_FailedWriteUndoesBatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStockStore()
	from := domain.StockKey{PartID: "p", LocationID: 1}
	to := domain.StockKey{PartID: "p", LocationID: 2}
	store.Set(from, 5)

	boom := errors.New("disk on fire")
	store.FailWrite = func(key domain.StockKey) error {
		if key == to {
			return boom
		}
		return nil
	}

	_, err := store.ApplyDeltas(ctx, []domain.StockDelta{domain.Debit(from, 3), domain.Credit(to, 3)})
	require.ErrorIs(t, err, boom)

	qFrom, _ := store.GetQuantity(ctx, from)
	qTo, _ := store.GetQuantity(ctx, to)
	assert.Equal(t, 5, qFrom)
	assert.Equal(t, 0, qTo)
}

func TestMemoryStockStore_ExpectedMismatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStockStore()
	key := domain.StockKey{PartID: "p", LocationID: 1}
	store.Set(key, 4)

	_, err := store.ApplyDeltas(ctx, []domain.StockDelta{{Key: key, Delta: 1, Expected: 3}})
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	entries, err := store.ApplyDeltas(ctx, []domain.StockDelta{{Key: key, Delta: 1, Expected: 4}})
	require.NoError(t, err)
	assert.Equal(t, 5, entries[0].Quantity)
}

func TestMemoryStockStore_ConcurrentDebits(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStockStore()
	key := domain.StockKey{PartID: "p", LocationID: 1}
	store.Set(key, 20)

	var success atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ApplyDeltas(ctx, []domain.StockDelta{domain.Debit(key, 1)}); err == nil {
				success.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(20), success.Load())
	qty, _ := store.GetQuantity(ctx, key)
	assert.Equal(t, 0, qty)
}

func TestMemoryStockStore_OpposingMovesDoNotDeadlock(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStockStore()
	a := domain.StockKey{PartID: "p", LocationID: 1}
	b := domain.StockKey{PartID: "p", LocationID: 2}
	store.Set(a, 100)
	store.Set(b, 100)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.ApplyDeltas(ctx, []domain.StockDelta{domain.Debit(a, 1), domain.Credit(b, 1)})
		}()
		go func() {
			defer wg.Done()
			store.ApplyDeltas(ctx, []domain.StockDelta{domain.Debit(b, 1), domain.Credit(a, 1)})
		}()
	}
	wg.Wait()

	qa, _ := store.GetQuantity(ctx, a)
	qb, _ := store.GetQuantity(ctx, b)
	assert.Equal(t, 200, qa+qb)
}

func TestMemoryIdempotency(t *testing.T) {
	ctx := context.Background()
	guard := NewMemoryIdempotency(time.Hour)

	ok, err := guard.SetIdempotency(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = guard.SetIdempotency(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryTransferRepository_VersionCheck(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTransferRepository()
	tr := domain.Transfer{ID: "t1", Status: domain.TransferStatusPending, Version: 1}
	require.NoError(t, repo.Create(ctx, tr))

	tr.Apply(domain.TransferStatusRejected, "x", time.Now())
	require.NoError(t, repo.Update(ctx, tr, 1))
	assert.ErrorIs(t, repo.Update(ctx, tr, 1), domain.ErrVersionConflict)

	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryAdjustmentLog_NewestFirstInRange(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryAdjustmentLog()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, log.Append(ctx, domain.AdjustmentLogEntry{
			ID:         string(rune('a' + i)),
			LocationID: 1,
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}))
	}
	log.Append(ctx, domain.AdjustmentLogEntry{ID: "other", LocationID: 2, CreatedAt: base})

	entries, err := log.List(ctx, 1, domain.DateRange{From: base.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].ID)
	assert.Equal(t, "b", entries[1].ID)
}
