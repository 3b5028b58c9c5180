package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

func TestCart_AddItemBoundedByLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPart("filtro", "Filtro de óleo", "25.90")
	f.seed("filtro", 1, 2)

	cart, err := f.carts.AddItem(ctx, storeA, "filtro")
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, 1, cart.Lines[0].RequestedQty)
	assert.Equal(t, 2, cart.Lines[0].Ceiling)
	assert.Equal(t, "Filtro de óleo", cart.Lines[0].Name)

	cart, err = f.carts.AddItem(ctx, storeA, "filtro")
	require.NoError(t, err)
	assert.Equal(t, 2, cart.Lines[0].RequestedQty)

	_, err = f.carts.AddItem(ctx, storeA, "filtro")
	assert.ErrorIs(t, err, domain.ErrLimitReached)

	cart, err = f.carts.Get(ctx, storeA)
	require.NoError(t, err)
	assert.Equal(t, 2, cart.Lines[0].RequestedQty, "rejected add leaves the cart unchanged")
}

func TestCart_OutOfStockAndUnknownPart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPart("vela", "Vela", "12")

	_, err := f.carts.AddItem(ctx, storeA, "vela")
	assert.ErrorIs(t, err, domain.ErrOutOfStock)

	_, err = f.carts.AddItem(ctx, storeA, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCart_SetQuantityUsesRecordedCeiling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPart("filtro", "Filtro", "10")
	key := f.seed("filtro", 1, 3)

	_, err := f.carts.AddItem(ctx, storeA, "filtro")
	require.NoError(t, err)

	// The ceiling is a snapshot: shrinking stock is only caught at checkout.
	_, err = f.ledger.Adjust(ctx, storeA, key, -2, "")
	require.NoError(t, err)

	cart, err := f.carts.SetQuantity(ctx, storeA, "filtro", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, cart.Lines[0].RequestedQty)

	_, err = f.carts.SetQuantity(ctx, storeA, "filtro", 4)
	assert.ErrorIs(t, err, domain.ErrLimitReached)

	_, err = f.carts.SetQuantity(ctx, storeA, "filtro", 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCart_RemoveAndClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPart("filtro", "Filtro", "10")
	f.addPart("vela", "Vela", "5")
	f.seed("filtro", 1, 3)
	f.seed("vela", 1, 3)

	f.carts.AddItem(ctx, storeA, "filtro")
	f.carts.AddItem(ctx, storeA, "vela")

	cart, err := f.carts.RemoveItem(ctx, storeA, "filtro")
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, domain.PartID("vela"), cart.Lines[0].PartID)

	_, err = f.carts.RemoveItem(ctx, storeA, "filtro")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, f.carts.Clear(ctx, storeA))
	cart, _ = f.carts.Get(ctx, storeA)
	assert.True(t, cart.Empty())
}

func TestCart_SurvivesReloadPerSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPart("filtro", "Filtro", "10")
	f.seed("filtro", 1, 3)

	_, err := f.carts.AddItem(ctx, storeA, "filtro")
	require.NoError(t, err)

	other := domain.Session{ID: "sess-other", Actor: "ana", LocationID: 1}
	cart, err := f.carts.Get(ctx, other)
	require.NoError(t, err)
	assert.True(t, cart.Empty())

	cart, err = f.carts.Get(ctx, storeA)
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 1)
}

func TestCart_SendToCashier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPart("filtro", "Filtro", "10.00")
	key := f.seed("filtro", 1, 3)

	_, err := f.carts.SendToCashier(ctx, storeA, "Cliente", decimal.Zero)
	require.ErrorIs(t, err, domain.ErrEmptyCart)

	f.carts.AddItem(ctx, storeA, "filtro")
	f.carts.AddItem(ctx, storeA, "filtro")

	sale, err := f.carts.SendToCashier(ctx, storeA, "Cliente", decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.Equal(t, "20.00", sale.Subtotal.StringFixed(2))
	assert.Equal(t, "19.00", sale.Total.StringFixed(2))
	assert.Equal(t, 3, f.qty(t, key), "no stock is deducted until payment")

	cart, _ := f.carts.Get(ctx, storeA)
	assert.True(t, cart.Empty(), "cart is cleared after handing off")

	pending, err := f.checkout.ListPendingSales(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, sale.ID, pending[0].ID)
}

// A reservation built on 2 units loses them before payment.
func TestCheckout_StockConflictAfterReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPart("pastilha", "Pastilha de freio", "80")
	key := f.seed("pastilha", 1, 2)

	f.carts.AddItem(ctx, storeA, "pastilha")
	cart, err := f.carts.AddItem(ctx, storeA, "pastilha")
	require.NoError(t, err)
	assert.Equal(t, 2, cart.Lines[0].Ceiling)

	_, err = f.ledger.ManualAdjust(ctx, storeA, key, -2, "furto")
	require.NoError(t, err)

	sale, err := f.carts.SendToCashier(ctx, storeA, "", decimal.Zero)
	require.NoError(t, err)

	_, err = f.checkout.Finalize(ctx, storeA, sale.ID, domain.PaymentCash)
	require.ErrorIs(t, err, domain.ErrStockConflict)
	assert.Equal(t, 0, f.qty(t, key))
}

func TestCart_RequiresSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.carts.Get(context.Background(), domain.Session{Actor: "ana", LocationID: 1})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
