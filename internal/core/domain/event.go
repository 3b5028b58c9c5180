package domain

import "time"

type EventType string

const (
	EventStockAdjusted     EventType = "stock.adjusted"
	EventStockCorrected    EventType = "stock.corrected"
	EventStockMoved        EventType = "stock.moved"
	EventTransferRequested EventType = "transfer.requested"
	EventTransferUpdated   EventType = "transfer.updated"
	EventSaleCreated       EventType = "sale.created"
	EventSaleFinalized     EventType = "sale.finalized"
)

// Event is published after a state change has been committed.
type Event struct {
	ID         string     `json:"id"`
	Type       EventType  `json:"type"`
	Key        string     `json:"key"`
	PartID     PartID     `json:"part_id,omitempty"`
	LocationID LocationID `json:"location_id,omitempty"`
	Actor      string     `json:"actor,omitempty"`
	Payload    any        `json:"payload,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}
