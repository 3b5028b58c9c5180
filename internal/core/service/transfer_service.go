package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/parts-stock/internal/core/domain"
	"github.com/rl1809/parts-stock/internal/keylock"
	"github.com/rl1809/parts-stock/internal/port"
)

type TransferRequest struct {
	PartID         domain.PartID
	Origin         domain.LocationID
	Destination    domain.LocationID
	Quantity       int
	Mode           domain.TransferMode
	IdempotencyKey string
}

func (r TransferRequest) Validate() error {
	if !r.PartID.Valid() {
		return domain.NewValidationError("part_id", "is required")
	}
	if !r.Origin.Valid() {
		return domain.NewValidationError("origin_location", "must be positive")
	}
	if !r.Destination.Valid() {
		return domain.NewValidationError("destination_location", "must be positive")
	}
	if r.Origin == r.Destination {
		return domain.NewValidationError("destination_location", "must differ from origin")
	}
	if r.Quantity <= 0 {
		return domain.NewValidationError("quantity", "must be positive")
	}
	if r.Mode != domain.TransferModeDelivery && r.Mode != domain.TransferModePickup {
		return domain.NewValidationError("mode", "must be DELIVERY or PICKUP")
	}
	return nil
}

type role int

const (
	roleOrigin role = iota
	roleDestination
	roleSystem
)

// TransferService runs the inter-store transfer workflow. Origin stock is
// not held while a request is PENDING; approval re-validates it.
type TransferService struct {
	repo   port.TransferRepository
	ledger *LedgerService
	guard  port.IdempotencyGuard
	events *EventBus
	locks  *keylock.Map
	logger *zap.Logger
	now    func() time.Time
}

func NewTransferService(repo port.TransferRepository, ledger *LedgerService, guard port.IdempotencyGuard, events *EventBus, logger *zap.Logger) *TransferService {
	return &TransferService{
		repo:   repo,
		ledger: ledger,
		guard:  guard,
		events: events,
		locks:  keylock.New(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *TransferService) RequestTransfer(ctx context.Context, sess domain.Session, req TransferRequest) (*domain.Transfer, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" && s.guard != nil {
		ok, err := s.guard.SetIdempotency(ctx, "transfer:"+req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return nil, domain.ErrDuplicateRequest
		}
	}

	origin := domain.StockKey{PartID: req.PartID, LocationID: req.Origin}
	available, err := s.ledger.GetQuantity(ctx, origin)
	if err != nil {
		return nil, err
	}
	if available < req.Quantity {
		return nil, &domain.StockError{Key: origin, Available: available, Requested: req.Quantity, Err: domain.ErrInsufficientStock}
	}

	now := s.now()
	transfer := domain.Transfer{
		ID:                  uuid.NewString(),
		PartID:              req.PartID,
		OriginLocation:      req.Origin,
		DestinationLocation: req.Destination,
		Quantity:            req.Quantity,
		Mode:                req.Mode,
		Status:              domain.TransferStatusPending,
		RequestedBy:         sess.Actor,
		RequestedAt:         now,
		History: []domain.TransferEvent{{
			To:    domain.TransferStatusPending,
			Actor: sess.Actor,
			At:    now,
		}},
		Version: 1,
	}

	if err := s.repo.Create(ctx, transfer); err != nil {
		return nil, fmt.Errorf("create transfer: %w", err)
	}

	s.logger.Info("transfer requested",
		zap.String("transfer_id", transfer.ID),
		zap.String("part_id", string(transfer.PartID)),
		zap.Stringer("origin", transfer.OriginLocation),
		zap.Stringer("destination", transfer.DestinationLocation),
		zap.Int("quantity", transfer.Quantity),
		zap.String("mode", string(transfer.Mode)),
		zap.String("actor", sess.Actor))
	s.emit(domain.EventTransferRequested, transfer, sess.Actor)
	return &transfer, nil
}

// Approve is origin-only. Delivery moves to SEPARATING without touching
// stock; pickup withdraws the units from the origin immediately.
func (s *TransferService) Approve(ctx context.Context, sess domain.Session, id string) (*domain.Transfer, error) {
	return s.transition(ctx, sess, id, domain.ActionApprove, roleOrigin, func(ctx context.Context, t *domain.Transfer) ([]domain.StockDelta, error) {
		if t.Mode == domain.TransferModePickup {
			return []domain.StockDelta{domain.Debit(t.OriginKey(), t.Quantity)}, nil
		}
		available, err := s.ledger.GetQuantity(ctx, t.OriginKey())
		if err != nil {
			return nil, err
		}
		if available < t.Quantity {
			return nil, &domain.StockError{Key: t.OriginKey(), Available: available, Requested: t.Quantity, Err: domain.ErrInsufficientStock}
		}
		return nil, nil
	})
}

func (s *TransferService) Reject(ctx context.Context, sess domain.Session, id string) (*domain.Transfer, error) {
	return s.transition(ctx, sess, id, domain.ActionReject, roleOrigin, nil)
}

// Ship withdraws the units from the origin ledger.
func (s *TransferService) Ship(ctx context.Context, sess domain.Session, id string) (*domain.Transfer, error) {
	return s.transition(ctx, sess, id, domain.ActionShip, roleOrigin, func(_ context.Context, t *domain.Transfer) ([]domain.StockDelta, error) {
		return []domain.StockDelta{domain.Debit(t.OriginKey(), t.Quantity)}, nil
	})
}

// ConfirmReceipt is destination-only and credits the destination ledger;
// in-transit units are never sellable at the destination before this.
func (s *TransferService) ConfirmReceipt(ctx context.Context, sess domain.Session, id string) (*domain.Transfer, error) {
	return s.transition(ctx, sess, id, domain.ActionConfirmReceipt, roleDestination, func(_ context.Context, t *domain.Transfer) ([]domain.StockDelta, error) {
		return []domain.StockDelta{domain.Credit(t.DestinationKey(), t.Quantity)}, nil
	})
}

// Expire closes a stale PENDING transfer. No ledger effect.
func (s *TransferService) Expire(ctx context.Context, id string) (*domain.Transfer, error) {
	return s.transition(ctx, domain.SystemSession("transfer-expirer"), id, domain.ActionExpire, roleSystem, nil)
}

// UpdateStatus maps a requested target status onto its workflow action.
func (s *TransferService) UpdateStatus(ctx context.Context, sess domain.Session, id string, status domain.TransferStatus) (*domain.Transfer, error) {
	action, err := domain.ActionForStatus(status)
	if err != nil {
		return nil, err
	}
	switch action {
	case domain.ActionApprove:
		return s.Approve(ctx, sess, id)
	case domain.ActionReject:
		return s.Reject(ctx, sess, id)
	case domain.ActionShip:
		return s.Ship(ctx, sess, id)
	default:
		return s.ConfirmReceipt(ctx, sess, id)
	}
}

func (s *TransferService) Get(ctx context.Context, id string) (*domain.Transfer, error) {
	if id == "" {
		return nil, domain.NewValidationError("transfer_id", "is required")
	}
	return s.repo.Get(ctx, id)
}

// ListTransfers returns the location's transfers, newest first.
func (s *TransferService) ListTransfers(ctx context.Context, locationID domain.LocationID) ([]domain.Transfer, error) {
	if !locationID.Valid() {
		return nil, domain.NewValidationError("location_id", "must be positive")
	}
	transfers, err := s.repo.ListByLocation(ctx, locationID)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	sort.SliceStable(transfers, func(i, j int) bool {
		return transfers[i].RequestedAt.After(transfers[j].RequestedAt)
	})
	return transfers, nil
}

// PollTransfers reports changed=false when lastVersion is still current.
func (s *TransferService) PollTransfers(ctx context.Context, locationID domain.LocationID, lastVersion string) (domain.Snapshot[domain.Transfer], bool, error) {
	transfers, err := s.ListTransfers(ctx, locationID)
	if err != nil {
		return domain.Snapshot[domain.Transfer]{}, false, err
	}
	snap := domain.NewSnapshot(transfers)
	return snap, snap.Version != lastVersion, nil
}

type ledgerEffect func(ctx context.Context, t *domain.Transfer) ([]domain.StockDelta, error)

// transition serializes actions per transfer in-process and guards the
// store write with the transfer version, so of two racing actions only
// one commits. The ledger batch of a losing action is compensated.
func (s *TransferService) transition(ctx context.Context, sess domain.Session, id string, action domain.TransferAction, who role, effect ledgerEffect) (*domain.Transfer, error) {
	if who != roleSystem {
		if err := sess.Validate(); err != nil {
			return nil, err
		}
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	to, err := t.NextStatus(action)
	if err != nil {
		return nil, err
	}
	if err := authorize(t, sess, action, who); err != nil {
		return nil, err
	}

	var deltas []domain.StockDelta
	if effect != nil {
		if deltas, err = effect(ctx, t); err != nil {
			s.logger.Debug("transfer action rejected",
				zap.String("transfer_id", t.ID),
				zap.String("action", string(action)),
				zap.Error(err))
			return nil, err
		}
	}
	if len(deltas) > 0 {
		if _, err := s.ledger.ApplyBatch(ctx, sess, deltas); err != nil {
			return nil, err
		}
	}

	expected := t.Version
	from := t.Status
	t.Apply(to, sess.Actor, s.now())

	if err := s.repo.Update(ctx, *t, expected); err != nil {
		if len(deltas) > 0 {
			s.ledger.compensate(ctx, sess, deltas)
		}
		if errors.Is(err, domain.ErrVersionConflict) {
			return nil, &domain.TransitionError{TransferID: id, Action: string(action), From: from, Reason: "concurrent update"}
		}
		return nil, fmt.Errorf("update transfer: %w", err)
	}

	s.logger.Info("transfer updated",
		zap.String("transfer_id", t.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", sess.Actor))
	s.emit(domain.EventTransferUpdated, *t, sess.Actor)
	return t, nil
}

func authorize(t *domain.Transfer, sess domain.Session, action domain.TransferAction, who role) error {
	switch who {
	case roleOrigin:
		if sess.LocationID != t.OriginLocation {
			return &domain.TransitionError{TransferID: t.ID, Action: string(action), From: t.Status, Reason: "only the origin location may " + string(action)}
		}
	case roleDestination:
		if sess.LocationID != t.DestinationLocation {
			return &domain.TransitionError{TransferID: t.ID, Action: string(action), From: t.Status, Reason: "only the destination location may " + string(action)}
		}
	}
	return nil
}

func (s *TransferService) emit(eventType domain.EventType, t domain.Transfer, actor string) {
	s.events.Emit(domain.Event{
		Type:       eventType,
		Key:        t.ID,
		PartID:     t.PartID,
		LocationID: t.OriginLocation,
		Actor:      actor,
		Payload:    t,
	})
}
