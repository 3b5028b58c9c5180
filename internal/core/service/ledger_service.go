package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/parts-stock/internal/core/domain"
	"github.com/rl1809/parts-stock/internal/port"
)

const maxCorrectionAttempts = 5

// LedgerService is the only writer of stock quantities.
type LedgerService struct {
	stock     port.StockStore
	transfers port.TransferRepository
	audit     *AuditService
	events    *EventBus
	logger    *zap.Logger
	now       func() time.Time
}

func NewLedgerService(stock port.StockStore, transfers port.TransferRepository, audit *AuditService, events *EventBus, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		stock:     stock,
		transfers: transfers,
		audit:     audit,
		events:    events,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GetQuantity is a point-in-time read. Unknown keys read as 0.
func (s *LedgerService) GetQuantity(ctx context.Context, key domain.StockKey) (int, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}
	qty, err := s.stock.GetQuantity(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("get quantity %s: %w", key, err)
	}
	return qty, nil
}

// Adjust applies delta to one key. A non-empty reason marks the manual
// path and appends an audit entry; sale and transfer callers pass "".
// When the audit write fails the new quantity is still returned together
// with an error matching domain.ErrAuditLogWriteFailed.
func (s *LedgerService) Adjust(ctx context.Context, sess domain.Session, key domain.StockKey, delta int, reason string) (int, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}
	if delta == 0 {
		return 0, domain.NewValidationError("delta", "must not be zero")
	}

	entries, err := s.stock.ApplyDeltas(ctx, []domain.StockDelta{{Key: key, Delta: delta, Expected: domain.NoExpectation}})
	if err != nil {
		s.logger.Debug("adjust rejected",
			zap.String("part_id", string(key.PartID)),
			zap.Stringer("location_id", key.LocationID),
			zap.Int("delta", delta),
			zap.Error(err))
		return 0, err
	}

	newQty := entries[0].Quantity
	s.logger.Info("stock adjusted",
		zap.String("part_id", string(key.PartID)),
		zap.Stringer("location_id", key.LocationID),
		zap.String("actor", sess.Actor),
		zap.Int("delta", delta),
		zap.Int("quantity", newQty))

	s.events.Emit(domain.Event{
		Type:       domain.EventStockAdjusted,
		Key:        key.String(),
		PartID:     key.PartID,
		LocationID: key.LocationID,
		Actor:      sess.Actor,
		Payload:    map[string]any{"delta": delta, "quantity": newQty, "reason": reason},
	})

	if strings.TrimSpace(reason) == "" {
		return newQty, nil
	}
	if _, err := s.audit.RecordAdjustment(ctx, key, newQty-delta, newQty, reason, sess.Actor); err != nil {
		return newQty, s.auditFailure(key, err)
	}
	return newQty, nil
}

// ManualAdjust is the audited entry point: reason is mandatory.
func (s *LedgerService) ManualAdjust(ctx context.Context, sess domain.Session, key domain.StockKey, delta int, reason string) (int, error) {
	if err := sess.Validate(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(reason) == "" {
		return 0, domain.NewValidationError("reason", "is required for manual adjustments")
	}
	return s.Adjust(ctx, sess, key, delta, reason)
}

type Correction struct {
	Key domain.StockKey
	// Expected is the quantity the operator saw. Nil re-reads the ledger.
	Expected *int
	Counted  int
	Reason   string
}

// Correct sets a key to a physically counted quantity with a
// compare-and-set. With Expected given a moved quantity fails with
// domain.ErrVersionConflict; without it the read is retried.
func (s *LedgerService) Correct(ctx context.Context, sess domain.Session, c Correction) (domain.AdjustmentLogEntry, error) {
	var entry domain.AdjustmentLogEntry
	if err := sess.Validate(); err != nil {
		return entry, err
	}
	if err := c.Key.Validate(); err != nil {
		return entry, err
	}
	if strings.TrimSpace(c.Reason) == "" {
		return entry, domain.NewValidationError("reason", "is required for manual adjustments")
	}
	if c.Counted < 0 {
		return entry, domain.NewValidationError("new_quantity", "must not be negative")
	}
	if c.Expected != nil && *c.Expected < 0 {
		return entry, domain.NewValidationError("old_quantity", "must not be negative")
	}

	var previous int
	for attempt := 1; ; attempt++ {
		if c.Expected != nil {
			previous = *c.Expected
		} else {
			qty, err := s.GetQuantity(ctx, c.Key)
			if err != nil {
				return entry, err
			}
			previous = qty
		}

		_, err := s.stock.ApplyDeltas(ctx, []domain.StockDelta{{
			Key:      c.Key,
			Delta:    c.Counted - previous,
			Expected: previous,
		}})
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrVersionConflict) || c.Expected != nil || attempt >= maxCorrectionAttempts {
			return entry, err
		}
	}

	s.logger.Info("stock corrected",
		zap.String("part_id", string(c.Key.PartID)),
		zap.Stringer("location_id", c.Key.LocationID),
		zap.String("actor", sess.Actor),
		zap.Int("previous_quantity", previous),
		zap.Int("quantity", c.Counted))

	s.events.Emit(domain.Event{
		Type:       domain.EventStockCorrected,
		Key:        c.Key.String(),
		PartID:     c.Key.PartID,
		LocationID: c.Key.LocationID,
		Actor:      sess.Actor,
		Payload:    map[string]any{"previous": previous, "quantity": c.Counted, "reason": c.Reason},
	})

	entry, err := s.audit.RecordAdjustment(ctx, c.Key, previous, c.Counted, c.Reason, sess.Actor)
	if err != nil {
		return entry, s.auditFailure(c.Key, err)
	}
	return entry, nil
}

// MoveQuantity debits from and credits to in one all-or-nothing batch.
func (s *LedgerService) MoveQuantity(ctx context.Context, sess domain.Session, partID domain.PartID, from, to domain.LocationID, amount int) error {
	if amount <= 0 {
		return domain.NewValidationError("amount", "must be positive")
	}
	if from == to {
		return domain.NewValidationError("to", "must differ from origin")
	}
	fromKey := domain.StockKey{PartID: partID, LocationID: from}
	toKey := domain.StockKey{PartID: partID, LocationID: to}

	_, err := s.ApplyBatch(ctx, sess, []domain.StockDelta{
		domain.Debit(fromKey, amount),
		domain.Credit(toKey, amount),
	})
	if err != nil {
		return err
	}

	s.events.Emit(domain.Event{
		Type:       domain.EventStockMoved,
		Key:        fromKey.String(),
		PartID:     partID,
		LocationID: from,
		Actor:      sess.Actor,
		Payload:    map[string]any{"to": to, "amount": amount},
	})
	return nil
}

// ApplyBatch commits sale and transfer legs without auditing them.
func (s *LedgerService) ApplyBatch(ctx context.Context, sess domain.Session, deltas []domain.StockDelta) ([]domain.StockEntry, error) {
	if len(deltas) == 0 {
		return nil, nil
	}
	for _, d := range deltas {
		if err := d.Key.Validate(); err != nil {
			return nil, err
		}
	}

	entries, err := s.stock.ApplyDeltas(ctx, deltas)
	if err != nil {
		s.logger.Debug("ledger batch rejected",
			zap.String("actor", sess.Actor),
			zap.Int("legs", len(deltas)),
			zap.Error(err))
		return nil, err
	}

	for i, e := range entries {
		s.logger.Info("stock applied",
			zap.String("part_id", string(e.PartID)),
			zap.Stringer("location_id", e.LocationID),
			zap.String("actor", sess.Actor),
			zap.Int("delta", deltaFor(deltas, i, e.Key())),
			zap.Int("quantity", e.Quantity))
	}
	return entries, nil
}

// compensate reverses a committed batch after a later step failed.
func (s *LedgerService) compensate(ctx context.Context, sess domain.Session, deltas []domain.StockDelta) {
	reverse := make([]domain.StockDelta, 0, len(deltas))
	for _, d := range deltas {
		reverse = append(reverse, domain.StockDelta{Key: d.Key, Delta: -d.Delta, Expected: domain.NoExpectation})
	}
	if _, err := s.stock.ApplyDeltas(ctx, reverse); err != nil {
		s.logger.Error("CRITICAL ledger compensation failed",
			zap.String("actor", sess.Actor),
			zap.Int("legs", len(deltas)),
			zap.Error(err))
		return
	}
	s.logger.Warn("ledger batch compensated",
		zap.String("actor", sess.Actor),
		zap.Int("legs", len(deltas)))
}

// NetworkStock sums a part over every location plus units in transit.
func (s *LedgerService) NetworkStock(ctx context.Context, partID domain.PartID) (domain.NetworkStock, error) {
	report := domain.NetworkStock{PartID: partID, Locations: []domain.LocationStock{}}
	if !partID.Valid() {
		return report, domain.NewValidationError("part_id", "is required")
	}

	entries, err := s.stock.ListByPart(ctx, partID)
	if err != nil {
		return report, fmt.Errorf("list stock for %s: %w", partID, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].LocationID < entries[j].LocationID })
	for _, e := range entries {
		report.Locations = append(report.Locations, domain.LocationStock{LocationID: e.LocationID, Quantity: e.Quantity})
		report.OnHand += e.Quantity
	}

	if s.transfers != nil {
		transfers, err := s.transfers.ListByPart(ctx, partID)
		if err != nil {
			return report, fmt.Errorf("list transfers for %s: %w", partID, err)
		}
		for _, t := range transfers {
			if t.InTransit() {
				report.InTransit += t.Quantity
			}
		}
	}

	report.Total = report.OnHand + report.InTransit
	return report, nil
}

func (s *LedgerService) auditFailure(key domain.StockKey, err error) error {
	s.logger.Error("audit log write failed after stock mutation",
		zap.String("part_id", string(key.PartID)),
		zap.Stringer("location_id", key.LocationID),
		zap.Error(err))
	return fmt.Errorf("%w: %v", domain.ErrAuditLogWriteFailed, err)
}

func deltaFor(deltas []domain.StockDelta, i int, key domain.StockKey) int {
	if i < len(deltas) && deltas[i].Key == key {
		return deltas[i].Delta
	}
	total := 0
	for _, d := range deltas {
		if d.Key == key {
			total += d.Delta
		}
	}
	return total
}
