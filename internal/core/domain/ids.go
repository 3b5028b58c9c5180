package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PartID references a catalog item. The ledger never interprets it.
type PartID string

// LocationID identifies a store or distribution center.
type LocationID int64

var embeddedNumber = regexp.MustCompile(`\d+`)

// ParseLocationID normalizes the identifier forms clients send: plain
// numbers, numeric strings and labels with an embedded number ("Loja 3").
func ParseLocationID(raw string) (LocationID, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, NewValidationError("location_id", "is required")
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return 0, NewValidationError("location_id", "must be positive")
		}
		return LocationID(n), nil
	}

	match := embeddedNumber.FindString(s)
	if match == "" {
		return 0, NewValidationError("location_id", fmt.Sprintf("%q has no numeric id", raw))
	}
	n, err := strconv.ParseInt(match, 10, 64)
	if err != nil || n <= 0 {
		return 0, NewValidationError("location_id", fmt.Sprintf("%q is not a valid id", raw))
	}
	return LocationID(n), nil
}

func (l LocationID) String() string {
	return strconv.FormatInt(int64(l), 10)
}

func (l LocationID) Valid() bool {
	return l > 0
}

// UnmarshalJSON accepts both 3 and "3" (or "Loja 3").
func (l *LocationID) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		if n <= 0 {
			return NewValidationError("location_id", "must be positive")
		}
		*l = LocationID(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return NewValidationError("location_id", "must be a number or string")
	}
	id, err := ParseLocationID(s)
	if err != nil {
		return err
	}
	*l = id
	return nil
}

func (p PartID) Valid() bool {
	return strings.TrimSpace(string(p)) != ""
}

// StockKey is the unit of exclusivity in the ledger.
type StockKey struct {
	PartID     PartID
	LocationID LocationID
}

func (k StockKey) String() string {
	return string(k.PartID) + "@" + k.LocationID.String()
}

// Less orders keys so multi-key operations lock in a stable order.
func (k StockKey) Less(o StockKey) bool {
	if k.PartID != o.PartID {
		return k.PartID < o.PartID
	}
	return k.LocationID < o.LocationID
}

func (k StockKey) Validate() error {
	if !k.PartID.Valid() {
		return NewValidationError("part_id", "is required")
	}
	if !k.LocationID.Valid() {
		return NewValidationError("location_id", "must be positive")
	}
	return nil
}
