package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/parts-stock/internal/core/domain"
	"github.com/rl1809/parts-stock/internal/keylock"
	"github.com/rl1809/parts-stock/internal/port"
)

type SaleRequest struct {
	ClientName      string
	DiscountPercent decimal.Decimal
	Items           []domain.SaleLine
	// Subtotal and Total, when set, must match what the server computes.
	Subtotal       *decimal.Decimal
	Total          *decimal.Decimal
	IdempotencyKey string
}

// CheckoutService owns the cashier queue. Finalize is the only place a
// sale touches the ledger.
type CheckoutService struct {
	sales  port.SaleRepository
	ledger *LedgerService
	guard  port.IdempotencyGuard
	events *EventBus
	locks  *keylock.Map
	logger *zap.Logger
	now    func() time.Time
}

func NewCheckoutService(sales port.SaleRepository, ledger *LedgerService, guard port.IdempotencyGuard, events *EventBus, logger *zap.Logger) *CheckoutService {
	return &CheckoutService{
		sales:  sales,
		ledger: ledger,
		guard:  guard,
		events: events,
		locks:  keylock.New(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreatePendingSale freezes line items and totals. No stock is deducted.
func (s *CheckoutService) CreatePendingSale(ctx context.Context, sess domain.Session, req SaleRequest) (*domain.PendingSale, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	if err := domain.ValidateSaleLines(req.Items); err != nil {
		return nil, err
	}
	if err := domain.ValidateDiscount(req.DiscountPercent); err != nil {
		return nil, err
	}

	subtotal, discount, total := domain.Totals(req.Items, req.DiscountPercent)
	if req.Subtotal != nil && !req.Subtotal.Round(2).Equal(subtotal) {
		return nil, domain.NewValidationError("subtotal", fmt.Sprintf("expected %s", subtotal.StringFixed(2)))
	}
	if req.Total != nil && !req.Total.Round(2).Equal(total) {
		return nil, domain.NewValidationError("total", fmt.Sprintf("expected %s", total.StringFixed(2)))
	}

	if req.IdempotencyKey != "" && s.guard != nil {
		ok, err := s.guard.SetIdempotency(ctx, "sale:"+req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return nil, domain.ErrDuplicateRequest
		}
	}

	items := make([]domain.SaleLine, len(req.Items))
	copy(items, req.Items)

	sale := domain.PendingSale{
		ID:              uuid.NewString(),
		LocationID:      sess.LocationID,
		Seller:          sess.Actor,
		ClientName:      strings.TrimSpace(req.ClientName),
		Items:           items,
		Subtotal:        subtotal,
		DiscountPercent: req.DiscountPercent,
		Discount:        discount,
		Total:           total,
		Status:          domain.SaleStatusAwaitingPayment,
		CreatedAt:       s.now(),
		Version:         1,
	}

	if err := s.sales.Create(ctx, sale); err != nil {
		return nil, fmt.Errorf("create sale: %w", err)
	}

	s.logger.Info("pending sale created",
		zap.String("sale_id", sale.ID),
		zap.Stringer("location_id", sale.LocationID),
		zap.String("actor", sess.Actor),
		zap.Int("lines", len(sale.Items)),
		zap.String("total", sale.Total.StringFixed(2)))
	s.emit(domain.EventSaleCreated, sale, sess.Actor)
	return &sale, nil
}

// Finalize deducts every line in one ledger batch. If any line lacks
// stock nothing is deducted and the error matches domain.ErrStockConflict.
func (s *CheckoutService) Finalize(ctx context.Context, sess domain.Session, saleID string, method domain.PaymentMethod) (*domain.PendingSale, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	if saleID == "" {
		return nil, domain.NewValidationError("sale_id", "is required")
	}
	if _, err := domain.ParsePaymentMethod(string(method)); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(saleID)
	defer unlock()

	sale, err := s.sales.Get(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.Status != domain.SaleStatusAwaitingPayment {
		return nil, fmt.Errorf("%w: sale %s is %s", domain.ErrInvalidTransition, sale.ID, sale.Status)
	}
	if sale.LocationID != sess.LocationID {
		return nil, fmt.Errorf("%w: sale %s belongs to location %s", domain.ErrInvalidTransition, sale.ID, sale.LocationID)
	}

	deltas := sale.Deltas()
	if _, err := s.ledger.ApplyBatch(ctx, sess, deltas); err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			s.logger.Info("checkout stock conflict",
				zap.String("sale_id", sale.ID),
				zap.Error(err))
			return nil, fmt.Errorf("%w: %w", domain.ErrStockConflict, err)
		}
		return nil, err
	}

	expected := sale.Version
	finalizedAt := s.now()
	sale.Status = domain.SaleStatusFinalized
	sale.PaymentMethod = method
	sale.Cashier = sess.Actor
	sale.FinalizedAt = &finalizedAt
	sale.Version++

	if err := s.sales.Update(ctx, *sale, expected); err != nil {
		s.ledger.compensate(ctx, sess, deltas)
		if errors.Is(err, domain.ErrVersionConflict) {
			return nil, fmt.Errorf("%w: sale %s changed concurrently", domain.ErrInvalidTransition, sale.ID)
		}
		return nil, fmt.Errorf("update sale: %w", err)
	}

	s.logger.Info("sale finalized",
		zap.String("sale_id", sale.ID),
		zap.String("payment_method", string(method)),
		zap.String("actor", sess.Actor),
		zap.String("total", sale.Total.StringFixed(2)))
	s.emit(domain.EventSaleFinalized, *sale, sess.Actor)
	return sale, nil
}

func (s *CheckoutService) Get(ctx context.Context, saleID string) (*domain.PendingSale, error) {
	if saleID == "" {
		return nil, domain.NewValidationError("sale_id", "is required")
	}
	return s.sales.Get(ctx, saleID)
}

func (s *CheckoutService) ListPendingSales(ctx context.Context, locationID domain.LocationID) ([]domain.PendingSale, error) {
	if !locationID.Valid() {
		return nil, domain.NewValidationError("location_id", "must be positive")
	}
	sales, err := s.sales.ListPending(ctx, locationID)
	if err != nil {
		return nil, fmt.Errorf("list pending sales: %w", err)
	}
	return sales, nil
}

func (s *CheckoutService) PollPendingSales(ctx context.Context, locationID domain.LocationID, lastVersion string) (domain.Snapshot[domain.PendingSale], bool, error) {
	sales, err := s.ListPendingSales(ctx, locationID)
	if err != nil {
		return domain.Snapshot[domain.PendingSale]{}, false, err
	}
	snap := domain.NewSnapshot(sales)
	return snap, snap.Version != lastVersion, nil
}

func (s *CheckoutService) emit(eventType domain.EventType, sale domain.PendingSale, actor string) {
	s.events.Emit(domain.Event{
		Type:       eventType,
		Key:        sale.ID,
		LocationID: sale.LocationID,
		Actor:      actor,
		Payload:    sale,
	})
}
