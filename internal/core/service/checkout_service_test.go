package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

func line(part domain.PartID, qty int, price string) domain.SaleLine {
	return domain.SaleLine{PartID: part, Name: string(part), Quantity: qty, UnitPrice: decimal.RequireFromString(price)}
}

func TestCreatePendingSale_ComputesTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sale, err := f.checkout.CreatePendingSale(ctx, storeA, SaleRequest{
		ClientName:      " Oficina do Zé ",
		DiscountPercent: decimal.NewFromInt(10),
		Items:           []domain.SaleLine{line("filtro", 2, "10.50"), line("vela", 1, "5")},
	})
	require.NoError(t, err)

	assert.Equal(t, "26.00", sale.Subtotal.StringFixed(2))
	assert.Equal(t, "2.60", sale.Discount.StringFixed(2))
	assert.Equal(t, "23.40", sale.Total.StringFixed(2))
	assert.Equal(t, "Oficina do Zé", sale.ClientName)
	assert.Equal(t, domain.SaleStatusAwaitingPayment, sale.Status)
	assert.Equal(t, "ana", sale.Seller)
}

func TestCreatePendingSale_DoesNotTouchStock(t *testing.T) {
	f := newFixture(t)
	key := f.seed("filtro", 1, 2)

	_, err := f.checkout.CreatePendingSale(context.Background(), storeA, SaleRequest{Items: []domain.SaleLine{line("filtro", 2, "10")}})
	require.NoError(t, err)
	assert.Equal(t, 2, f.qty(t, key))
}

func TestCreatePendingSale_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wrong := decimal.RequireFromString("99.99")

	_, err := f.checkout.CreatePendingSale(ctx, storeA, SaleRequest{})
	assert.ErrorIs(t, err, domain.ErrEmptyCart)

	_, err = f.checkout.CreatePendingSale(ctx, storeA, SaleRequest{Items: []domain.SaleLine{line("filtro", 1, "10")}, DiscountPercent: decimal.NewFromInt(101)})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.checkout.CreatePendingSale(ctx, storeA, SaleRequest{Items: []domain.SaleLine{line("filtro", 1, "10")}, Total: &wrong})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.checkout.CreatePendingSale(ctx, storeA, SaleRequest{Items: []domain.SaleLine{line("filtro", 0, "10")}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestFinalize_DeductsEveryLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed("filtro", 1, 5)
	b := f.seed("vela", 1, 4)

	sale, err := f.checkout.CreatePendingSale(ctx, storeA, SaleRequest{Items: []domain.SaleLine{line("filtro", 2, "10"), line("vela", 4, "3")}})
	require.NoError(t, err)

	cashier := domain.Session{ID: "caixa", Actor: "carla", LocationID: 1}
	done, err := f.checkout.Finalize(ctx, cashier, sale.ID, domain.PaymentPix)
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusFinalized, done.Status)
	assert.Equal(t, domain.PaymentPix, done.PaymentMethod)
	assert.Equal(t, "carla", done.Cashier)
	assert.NotNil(t, done.FinalizedAt)

	assert.Equal(t, 3, f.qty(t, a))
	assert.Equal(t, 0, f.qty(t, b))

	pending, err := f.checkout.ListPendingSales(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = f.checkout.Finalize(ctx, cashier, sale.ID, domain.PaymentPix)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "a sale is finalized once")
	assert.Equal(t, 3, f.qty(t, a))
}

func TestFinalize_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed("filtro", 1, 5)
	b := f.seed("vela", 1, 1)
	c := f.seed("oleo", 1, 5)

	sale, err := f.checkout.CreatePendingSale(ctx, storeA, SaleRequest{Items: []domain.SaleLine{
		line("filtro", 2, "10"),
		line("vela", 2, "3"),
		line("oleo", 1, "40"),
	}})
	require.NoError(t, err)

	_, err = f.checkout.Finalize(ctx, storeA, sale.ID, domain.PaymentCash)
	require.ErrorIs(t, err, domain.ErrStockConflict)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	assert.Equal(t, 5, f.qty(t, a))
	assert.Equal(t, 1, f.qty(t, b))
	assert.Equal(t, 5, f.qty(t, c))

	got, _ := f.checkout.Get(ctx, sale.ID)
	assert.Equal(t, domain.SaleStatusAwaitingPayment, got.Status)
}

func TestFinalize_WriteFailureRollsBackEarlierLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed("filtro", 1, 5)
	b := f.seed("vela", 1, 5)
	c := f.seed("oleo", 1, 5)

	sale, err := f.checkout.CreatePendingSale(ctx, storeA, SaleRequest{Items: []domain.SaleLine{
		line("filtro", 1, "10"), line("vela", 1, "3"), line("oleo", 1, "40"),
	}})
	require.NoError(t, err)

	f.stock.FailWrite = func(key domain.StockKey) error {
		if key == c {
			return errors.New("write failed")
		}
		return nil
	}
	_, err = f.checkout.Finalize(ctx, storeA, sale.ID, domain.PaymentDebit)
	require.Error(t, err)

	assert.Equal(t, 5, f.qty(t, a))
	assert.Equal(t, 5, f.qty(t, b))
	assert.Equal(t, 5, f.qty(t, c))
}

func TestFinalize_OtherLocationRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed("filtro", 1, 5)

	sale, err := f.checkout.CreatePendingSale(ctx, storeA, SaleRequest{Items: []domain.SaleLine{line("filtro", 1, "10")}})
	require.NoError(t, err)

	_, err = f.checkout.Finalize(ctx, storeB, sale.ID, domain.PaymentCredit)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.checkout.Finalize(ctx, storeA, sale.ID, "CHEQUE")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestFinalize_ConcurrentCashiersShareLastUnits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.seed("filtro", 1, 3)

	var ids []string
	for i := 0; i < 6; i++ {
		sale, err := f.checkout.CreatePendingSale(ctx, storeA, SaleRequest{Items: []domain.SaleLine{line("filtro", 1, "10")}})
		require.NoError(t, err)
		ids = append(ids, sale.ID)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		finalized int
		conflicts int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.checkout.Finalize(ctx, storeA, id, domain.PaymentCash)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				finalized++
			case errors.Is(err, domain.ErrStockConflict):
				conflicts++
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 3, finalized)
	assert.Equal(t, 3, conflicts)
	assert.Equal(t, 0, f.qty(t, key))
}

func TestPollPendingSales(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, _, err := f.checkout.PollPendingSales(ctx, 1, "")
	require.NoError(t, err)

	_, err = f.checkout.CreatePendingSale(ctx, storeA, SaleRequest{Items: []domain.SaleLine{line("filtro", 1, "10")}})
	require.NoError(t, err)

	snap, changed, err := f.checkout.PollPendingSales(ctx, 1, empty.Version)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, domain.Diff(empty, snap).Added, 1)

	_, changed, _ = f.checkout.PollPendingSales(ctx, 1, snap.Version)
	assert.False(t, changed)

	other, _, _ := f.checkout.PollPendingSales(ctx, 2, "")
	assert.Empty(t, other.Items)
}
