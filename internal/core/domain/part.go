package domain

import "github.com/shopspring/decimal"

// Part is a catalog item as the ledger's collaborators see it.
type Part struct {
	ID             PartID          `json:"id"`
	Name           string          `json:"name"`
	Code           string          `json:"code"`
	Brand          string          `json:"brand"`
	Price          decimal.Decimal `json:"price"`
	Image          string          `json:"image,omitempty"`
	StockLocations []LocationStock `json:"stock_locations"`
	TotalStock     int             `json:"total_stock"`
}

type Location struct {
	ID   LocationID `json:"id"`
	Name string     `json:"name"`
}
