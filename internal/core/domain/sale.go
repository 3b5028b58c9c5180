package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type SaleStatus string

const (
	SaleStatusAwaitingPayment SaleStatus = "AWAITING_PAYMENT"
	SaleStatusFinalized       SaleStatus = "FINALIZED"
)

type PaymentMethod string

const (
	PaymentCredit PaymentMethod = "CREDITO"
	PaymentDebit  PaymentMethod = "DEBITO"
	PaymentPix    PaymentMethod = "PIX"
	PaymentCash   PaymentMethod = "DINHEIRO"
)

var paymentAliases = map[string]PaymentMethod{
	"CREDITO":  PaymentCredit,
	"CREDIT":   PaymentCredit,
	"DEBITO":   PaymentDebit,
	"DEBIT":    PaymentDebit,
	"PIX":      PaymentPix,
	"DINHEIRO": PaymentCash,
	"CASH":     PaymentCash,
}

func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	if m, ok := paymentAliases[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return m, nil
	}
	return "", NewValidationError("payment_method", "unknown payment method "+raw)
}

var hundred = decimal.NewFromInt(100)

// SaleLine is frozen when the sale is created.
type SaleLine struct {
	PartID    PartID          `json:"part_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (l SaleLine) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type PendingSale struct {
	ID              string          `json:"id"`
	LocationID      LocationID      `json:"location_id"`
	Seller          string          `json:"seller_name"`
	ClientName      string          `json:"client_name"`
	Items           []SaleLine      `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Discount        decimal.Decimal `json:"discount"`
	Total           decimal.Decimal `json:"total"`
	Status          SaleStatus      `json:"status"`
	PaymentMethod   PaymentMethod   `json:"payment_method,omitempty"`
	Cashier         string          `json:"cashier,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	FinalizedAt     *time.Time      `json:"finalized_at,omitempty"`
	Version         int             `json:"version"`
}

func (s PendingSale) Revision() (string, int) {
	return s.ID, s.Version
}

// Deltas are the ledger debits finalizing this sale requires.
func (s PendingSale) Deltas() []StockDelta {
	deltas := make([]StockDelta, 0, len(s.Items))
	for _, item := range s.Items {
		deltas = append(deltas, Debit(StockKey{PartID: item.PartID, LocationID: s.LocationID}, item.Quantity))
	}
	return MergeDeltas(deltas)
}

// Totals computes subtotal, discount and total rounded to cents.
func Totals(items []SaleLine, discountPercent decimal.Decimal) (subtotal, discount, total decimal.Decimal) {
	subtotal = decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Amount())
	}
	subtotal = subtotal.Round(2)
	discount = subtotal.Mul(discountPercent).Div(hundred).Round(2)
	total = subtotal.Sub(discount)
	return subtotal, discount, total
}

func ValidateDiscount(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return NewValidationError("discount_percent", "must be between 0 and 100")
	}
	return nil
}

func ValidateSaleLines(items []SaleLine) error {
	if len(items) == 0 {
		return ErrEmptyCart
	}
	for _, item := range items {
		if !item.PartID.Valid() {
			return NewValidationError("items.part_id", "is required")
		}
		if item.Quantity <= 0 {
			return NewValidationError("items.quantity", "must be positive")
		}
		if item.UnitPrice.IsNegative() {
			return NewValidationError("items.unit_price", "must not be negative")
		}
	}
	return nil
}
