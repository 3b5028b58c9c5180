package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

func openTestAuditLog(t *testing.T) *SQLAdjustmentLog {
	t.Helper()
	log, err := OpenSQLiteAdjustmentLog(context.Background(), filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Skipf("SQLite not available: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return log
}

func TestSQLAdjustmentLog_AppendAndList(t *testing.T) {
	ctx := context.Background()
	log := openTestAuditLog(t)
	base := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	entries := []domain.AdjustmentLogEntry{
		{ID: "e1", PartID: "filtro", LocationID: 1, ActorName: "ana", PreviousQuantity: 10, NewQuantity: 8, Reason: "quebra", CreatedAt: base},
		{ID: "e2", PartID: "vela", LocationID: 1, ActorName: "ana", PreviousQuantity: 3, NewQuantity: 4, Reason: "contagem", CreatedAt: base.Add(24 * time.Hour)},
		{ID: "e3", PartID: "vela", LocationID: 2, ActorName: "bia", PreviousQuantity: 1, NewQuantity: 0, Reason: "perda", CreatedAt: base},
	}
	for _, e := range entries {
		require.NoError(t, log.Append(ctx, e))
	}

	got, err := log.List(ctx, 1, domain.DateRange{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e2", got[0].ID)
	assert.Equal(t, "e1", got[1].ID)
	assert.Equal(t, domain.PartID("filtro"), got[1].PartID)
	assert.Equal(t, -2, got[1].Difference())
	assert.True(t, got[1].CreatedAt.Equal(base))

	got, err = log.List(ctx, 1, domain.DateRange{From: base.Add(time.Hour), To: base.Add(48 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e2", got[0].ID)
}

func TestSQLAdjustmentLog_RejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	log := openTestAuditLog(t)
	e := domain.AdjustmentLogEntry{ID: "dup", PartID: "p", LocationID: 1, ActorName: "a", Reason: "r", CreatedAt: time.Now().UTC()}

	require.NoError(t, log.Append(ctx, e))
	assert.Error(t, log.Append(ctx, e))
}
