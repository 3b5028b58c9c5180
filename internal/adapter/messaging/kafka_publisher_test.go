package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

func TestEncodeMessage_KeysByPart(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	msg, err := encodeMessage(domain.Event{
		ID:         "ev-1",
		Type:       domain.EventStockMoved,
		Key:        "filtro@1",
		PartID:     "filtro",
		LocationID: 1,
		OccurredAt: at,
	})
	require.NoError(t, err)

	assert.Equal(t, "filtro", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "stock.moved", string(msg.Headers[0].Value))

	var decoded domain.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "ev-1", decoded.ID)
	assert.Equal(t, domain.LocationID(1), decoded.LocationID)
}

func TestEncodeMessage_FallsBackToEventKey(t *testing.T) {
	msg, err := encodeMessage(domain.Event{ID: "ev-2", Type: domain.EventSaleCreated, Key: "sale-9"})
	require.NoError(t, err)
	assert.Equal(t, "sale-9", string(msg.Key))
}

func TestLogPublisher(t *testing.T) {
	p := NewLogPublisher(zap.NewNop())
	assert.NoError(t, p.Publish(context.Background(), domain.Event{Type: domain.EventSaleCreated}))
	assert.NoError(t, p.Close())
}
