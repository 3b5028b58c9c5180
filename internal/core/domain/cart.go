package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLine bounds RequestedQty by the stock seen when the part was added.
// The ceiling is advisory; checkout re-validates against the ledger.
type CartLine struct {
	PartID       PartID          `json:"part_id"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	RequestedQty int             `json:"requested_qty"`
	Ceiling      int             `json:"ceiling"`
}

// Cart is a seller's in-progress sale, keyed by session.
type Cart struct {
	SessionID       string          `json:"session_id"`
	LocationID      LocationID      `json:"location_id"`
	Seller          string          `json:"seller"`
	ClientName      string          `json:"client_name,omitempty"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Lines           []CartLine      `json:"lines"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (c *Cart) Empty() bool {
	return len(c.Lines) == 0
}

func (c *Cart) Line(id PartID) (int, bool) {
	for i := range c.Lines {
		if c.Lines[i].PartID == id {
			return i, true
		}
	}
	return -1, false
}

func (c *Cart) Remove(id PartID) bool {
	i, ok := c.Line(id)
	if !ok {
		return false
	}
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	return true
}

func (c *Cart) SaleLines() []SaleLine {
	lines := make([]SaleLine, 0, len(c.Lines))
	for _, l := range c.Lines {
		lines = append(lines, SaleLine{
			PartID:    l.PartID,
			Name:      l.Name,
			Quantity:  l.RequestedQty,
			UnitPrice: l.UnitPrice,
		})
	}
	return lines
}
