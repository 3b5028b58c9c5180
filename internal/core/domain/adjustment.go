package domain

import (
	"fmt"
	"time"
)

// AdjustmentLogEntry is an append-only record of a manual correction.
type AdjustmentLogEntry struct {
	ID               string     `json:"id" db:"id"`
	PartID           PartID     `json:"part_id" db:"part_id"`
	LocationID       LocationID `json:"location_id" db:"location_id"`
	ActorName        string     `json:"actor_name" db:"actor_name"`
	PreviousQuantity int        `json:"previous_quantity" db:"previous_quantity"`
	NewQuantity      int        `json:"new_quantity" db:"new_quantity"`
	Reason           string     `json:"reason" db:"reason"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
}

func (e AdjustmentLogEntry) Difference() int {
	return e.NewQuantity - e.PreviousQuantity
}

// CountStatus describes a physical count against the system quantity.
func (e AdjustmentLogEntry) CountStatus() string {
	switch diff := e.Difference(); {
	case diff == 0:
		return "MATCH"
	case diff > 0:
		return fmt.Sprintf("SURPLUS(+%d)", diff)
	default:
		return fmt.Sprintf("SHORTAGE(%d)", diff)
	}
}

// DateRange is inclusive of From and exclusive of To. Zero bounds are open.
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

func (r DateRange) Validate() error {
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return NewValidationError("to", "is before from")
	}
	return nil
}
