package domain

import "time"

type StockEntry struct {
	PartID     PartID
	LocationID LocationID
	Quantity   int
	Version    int // optimistic locking
	UpdatedAt  time.Time
}

func (e StockEntry) Key() StockKey {
	return StockKey{PartID: e.PartID, LocationID: e.LocationID}
}

// NoExpectation disables the compare-and-set check on a StockDelta.
const NoExpectation = -1

// StockDelta is one leg of an all-or-nothing ledger batch.
type StockDelta struct {
	Key   StockKey
	Delta int
	// Expected, when not NoExpectation, must equal the current quantity
	// or the batch fails with ErrVersionConflict.
	Expected int
}

func Debit(key StockKey, amount int) StockDelta {
	return StockDelta{Key: key, Delta: -amount, Expected: NoExpectation}
}

func Credit(key StockKey, amount int) StockDelta {
	return StockDelta{Key: key, Delta: amount, Expected: NoExpectation}
}

// MergeDeltas folds legs on the same key together, keeping first-seen order.
func MergeDeltas(deltas []StockDelta) []StockDelta {
	index := make(map[StockKey]int, len(deltas))
	out := make([]StockDelta, 0, len(deltas))
	for _, d := range deltas {
		if i, ok := index[d.Key]; ok {
			out[i].Delta += d.Delta
			if out[i].Expected == NoExpectation {
				out[i].Expected = d.Expected
			}
			continue
		}
		index[d.Key] = len(out)
		out = append(out, d)
	}
	return out
}

type LocationStock struct {
	LocationID LocationID `json:"location_id"`
	Name       string     `json:"name"`
	Quantity   int        `json:"qty"`
}

// NetworkStock accounts for every unit of a part: on the shelf somewhere or
// withdrawn by a transfer and not yet credited at its destination.
type NetworkStock struct {
	PartID    PartID          `json:"part_id"`
	Locations []LocationStock `json:"locations"`
	OnHand    int             `json:"on_hand"`
	InTransit int             `json:"in_transit"`
	Total     int             `json:"total"`
}
