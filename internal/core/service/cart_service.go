package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/parts-stock/internal/core/domain"
	"github.com/rl1809/parts-stock/internal/keylock"
	"github.com/rl1809/parts-stock/internal/port"
)

// CartService keeps a seller's reservation between reloads. Ceilings are
// snapshots of the ledger; nothing here holds or deducts stock.
type CartService struct {
	carts    port.CartStore
	catalog  port.Catalog
	ledger   *LedgerService
	checkout *CheckoutService
	locks    *keylock.Map
	logger   *zap.Logger
	now      func() time.Time
}

func NewCartService(carts port.CartStore, catalog port.Catalog, ledger *LedgerService, checkout *CheckoutService, logger *zap.Logger) *CartService {
	return &CartService{
		carts:    carts,
		catalog:  catalog,
		ledger:   ledger,
		checkout: checkout,
		locks:    keylock.New(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *CartService) Get(ctx context.Context, sess domain.Session) (*domain.Cart, error) {
	if err := validateCartSession(sess); err != nil {
		return nil, err
	}
	return s.load(ctx, sess)
}

// AddItem adds one unit, bounded by the quantity the ledger reports now.
func (s *CartService) AddItem(ctx context.Context, sess domain.Session, partID domain.PartID) (*domain.Cart, error) {
	if err := validateCartSession(sess); err != nil {
		return nil, err
	}
	if !partID.Valid() {
		return nil, domain.NewValidationError("part_id", "is required")
	}

	unlock := s.locks.Lock(sess.ID)
	defer unlock()

	part, err := s.catalog.GetPart(ctx, partID)
	if err != nil {
		return nil, err
	}
	ceiling, err := s.ledger.GetQuantity(ctx, domain.StockKey{PartID: partID, LocationID: sess.LocationID})
	if err != nil {
		return nil, err
	}
	if ceiling == 0 {
		return nil, fmt.Errorf("%w: %s at location %s", domain.ErrOutOfStock, partID, sess.LocationID)
	}

	cart, err := s.load(ctx, sess)
	if err != nil {
		return nil, err
	}

	if i, ok := cart.Line(partID); ok {
		line := &cart.Lines[i]
		line.Ceiling = ceiling
		if line.RequestedQty+1 > ceiling {
			return nil, fmt.Errorf("%w: %s limited to %d", domain.ErrLimitReached, partID, ceiling)
		}
		line.RequestedQty++
	} else {
		cart.Lines = append(cart.Lines, domain.CartLine{
			PartID:       part.ID,
			Name:         part.Name,
			UnitPrice:    part.Price,
			RequestedQty: 1,
			Ceiling:      ceiling,
		})
	}

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *CartService) RemoveItem(ctx context.Context, sess domain.Session, partID domain.PartID) (*domain.Cart, error) {
	if err := validateCartSession(sess); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(sess.ID)
	defer unlock()

	cart, err := s.load(ctx, sess)
	if err != nil {
		return nil, err
	}
	if !cart.Remove(partID) {
		return nil, fmt.Errorf("%w: %s is not in the cart", domain.ErrNotFound, partID)
	}
	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// SetQuantity is checked against the recorded ceiling only.
func (s *CartService) SetQuantity(ctx context.Context, sess domain.Session, partID domain.PartID, qty int) (*domain.Cart, error) {
	if err := validateCartSession(sess); err != nil {
		return nil, err
	}
	if qty <= 0 {
		return nil, domain.NewValidationError("quantity", "must be positive")
	}

	unlock := s.locks.Lock(sess.ID)
	defer unlock()

	cart, err := s.load(ctx, sess)
	if err != nil {
		return nil, err
	}
	i, ok := cart.Line(partID)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not in the cart", domain.ErrNotFound, partID)
	}
	if qty > cart.Lines[i].Ceiling {
		return nil, fmt.Errorf("%w: %s limited to %d", domain.ErrLimitReached, partID, cart.Lines[i].Ceiling)
	}
	cart.Lines[i].RequestedQty = qty

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *CartService) Clear(ctx context.Context, sess domain.Session) error {
	if err := validateCartSession(sess); err != nil {
		return err
	}
	unlock := s.locks.Lock(sess.ID)
	defer unlock()

	if err := s.carts.Delete(ctx, sess.ID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

// SendToCashier turns the cart into a pending sale and destroys the cart.
func (s *CartService) SendToCashier(ctx context.Context, sess domain.Session, clientName string, discountPercent decimal.Decimal) (*domain.PendingSale, error) {
	if err := validateCartSession(sess); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(sess.ID)
	defer unlock()

	cart, err := s.load(ctx, sess)
	if err != nil {
		return nil, err
	}
	if cart.Empty() {
		return nil, domain.ErrEmptyCart
	}

	sale, err := s.checkout.CreatePendingSale(ctx, sess, SaleRequest{
		ClientName:      clientName,
		DiscountPercent: discountPercent,
		Items:           cart.SaleLines(),
	})
	if err != nil {
		return nil, err
	}

	if err := s.carts.Delete(ctx, sess.ID); err != nil {
		s.logger.Error("failed to clear cart after send to cashier",
			zap.String("session_id", sess.ID),
			zap.String("sale_id", sale.ID),
			zap.Error(err))
	}
	return sale, nil
}

func (s *CartService) load(ctx context.Context, sess domain.Session) (*domain.Cart, error) {
	cart, err := s.carts.Load(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart == nil || cart.LocationID != sess.LocationID {
		cart = &domain.Cart{
			SessionID:       sess.ID,
			LocationID:      sess.LocationID,
			Seller:          sess.Actor,
			DiscountPercent: decimal.Zero,
			Lines:           []domain.CartLine{},
		}
	}
	return cart, nil
}

func (s *CartService) save(ctx context.Context, cart *domain.Cart) error {
	cart.UpdatedAt = s.now()
	if err := s.carts.Save(ctx, *cart); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func validateCartSession(sess domain.Session) error {
	if sess.ID == "" {
		return domain.NewValidationError("session_id", "is required")
	}
	return sess.Validate()
}
