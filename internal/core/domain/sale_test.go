package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotals(t *testing.T) {
	items := []SaleLine{
		{PartID: "a", Quantity: 3, UnitPrice: decimal.RequireFromString("19.99")},
		{PartID: "b", Quantity: 1, UnitPrice: decimal.RequireFromString("0.03")},
	}
	subtotal, discount, total := Totals(items, decimal.RequireFromString("7.5"))

	assert.Equal(t, "60.00", subtotal.StringFixed(2))
	assert.Equal(t, "4.50", discount.StringFixed(2))
	assert.Equal(t, "55.50", total.StringFixed(2))
}

func TestValidateDiscount(t *testing.T) {
	assert.NoError(t, ValidateDiscount(decimal.Zero))
	assert.NoError(t, ValidateDiscount(decimal.NewFromInt(100)))
	assert.ErrorIs(t, ValidateDiscount(decimal.NewFromInt(-1)), ErrValidation)
	assert.ErrorIs(t, ValidateDiscount(decimal.RequireFromString("100.01")), ErrValidation)
}

func TestParsePaymentMethod(t *testing.T) {
	for raw, want := range map[string]PaymentMethod{
		"credito": PaymentCredit,
		"DEBIT":   PaymentDebit,
		" pix ":   PaymentPix,
		"cash":    PaymentCash,
	} {
		got, err := ParsePaymentMethod(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}
	_, err := ParsePaymentMethod("boleto")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPendingSale_DeltasMergeRepeatedParts(t *testing.T) {
	sale := PendingSale{
		LocationID: 4,
		Items: []SaleLine{
			{PartID: "a", Quantity: 1},
			{PartID: "b", Quantity: 2},
			{PartID: "a", Quantity: 2},
		},
	}
	deltas := sale.Deltas()
	require.Len(t, deltas, 2)
	assert.Equal(t, StockKey{PartID: "a", LocationID: 4}, deltas[0].Key)
	assert.Equal(t, -3, deltas[0].Delta)
}

func TestAdjustmentCountStatus(t *testing.T) {
	assert.Equal(t, "MATCH", AdjustmentLogEntry{PreviousQuantity: 4, NewQuantity: 4}.CountStatus())
	assert.Equal(t, "SURPLUS(+2)", AdjustmentLogEntry{PreviousQuantity: 4, NewQuantity: 6}.CountStatus())
	assert.Equal(t, "SHORTAGE(-4)", AdjustmentLogEntry{PreviousQuantity: 4, NewQuantity: 0}.CountStatus())
}

func TestDateRange(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	r := DateRange{From: from, To: to}

	assert.True(t, r.Contains(from))
	assert.False(t, r.Contains(to))
	assert.True(t, DateRange{}.Contains(to))
	assert.ErrorIs(t, DateRange{From: to, To: from}.Validate(), ErrValidation)
}
