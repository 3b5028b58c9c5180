package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

// TransferExpirer closes PENDING transfers older than ttl. A zero ttl
// keeps pending transfers open indefinitely.
type TransferExpirer struct {
	transfers *TransferService
	ttl       time.Duration
	interval  time.Duration
	logger    *zap.Logger
}

func NewTransferExpirer(transfers *TransferService, ttl, interval time.Duration, logger *zap.Logger) *TransferExpirer {
	if interval <= 0 {
		interval = time.Minute
	}
	return &TransferExpirer{
		transfers: transfers,
		ttl:       ttl,
		interval:  interval,
		logger:    logger,
	}
}

func (e *TransferExpirer) Enabled() bool {
	return e.ttl > 0
}

// Run sweeps every interval until ctx is done.
func (e *TransferExpirer) Run(ctx context.Context) {
	if !e.Enabled() {
		e.logger.Info("pending transfer expiry disabled")
		return
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.ExpireStale(ctx); err != nil {
				e.logger.Error("expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// ExpireStale expires every transfer pending since before now-ttl and
// returns how many it closed. Transfers approved meanwhile are skipped.
func (e *TransferExpirer) ExpireStale(ctx context.Context) (int, error) {
	if !e.Enabled() {
		return 0, nil
	}

	cutoff := e.transfers.now().Add(-e.ttl)
	stale, err := e.transfers.repo.ListPendingBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, t := range stale {
		if _, err := e.transfers.Expire(ctx, t.ID); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				continue
			}
			return expired, err
		}
		expired++
	}

	if expired > 0 {
		e.logger.Info("expired pending transfers", zap.Int("count", expired))
	}
	return expired, nil
}
