package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/parts-stock/internal/core/domain"
	"github.com/rl1809/parts-stock/internal/port"
)

type AuditService struct {
	log    port.AdjustmentLog
	logger *zap.Logger
	now    func() time.Time
}

func NewAuditService(log port.AdjustmentLog, logger *zap.Logger) *AuditService {
	return &AuditService{
		log:    log,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RecordAdjustment appends one manual correction to the log.
func (s *AuditService) RecordAdjustment(ctx context.Context, key domain.StockKey, oldQty, newQty int, reason, actor string) (domain.AdjustmentLogEntry, error) {
	entry := domain.AdjustmentLogEntry{
		ID:               uuid.NewString(),
		PartID:           key.PartID,
		LocationID:       key.LocationID,
		ActorName:        actor,
		PreviousQuantity: oldQty,
		NewQuantity:      newQty,
		Reason:           strings.TrimSpace(reason),
		CreatedAt:        s.now(),
	}
	if entry.Reason == "" {
		return entry, domain.NewValidationError("reason", "is required")
	}

	if err := s.log.Append(ctx, entry); err != nil {
		return entry, fmt.Errorf("append adjustment: %w", err)
	}

	s.logger.Info("adjustment recorded",
		zap.String("part_id", string(key.PartID)),
		zap.Stringer("location_id", key.LocationID),
		zap.String("actor", actor),
		zap.Int("previous_quantity", oldQty),
		zap.Int("new_quantity", newQty),
		zap.String("reason", entry.Reason))
	return entry, nil
}

func (s *AuditService) ListAdjustments(ctx context.Context, locationID domain.LocationID, window domain.DateRange) ([]domain.AdjustmentLogEntry, error) {
	if !locationID.Valid() {
		return nil, domain.NewValidationError("location_id", "must be positive")
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}

	entries, err := s.log.List(ctx, locationID, window)
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	return entries, nil
}
