package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

const transferColumns = `id, part_id, origin_location, destination_location, quantity, mode, status,
	requested_by, requested_at, approved_at, shipped_at, completed_at, rejected_at, expired_at,
	history, version`

type MySQLTransferRepository struct {
	db *sql.DB
}

func NewMySQLTransferRepository(db *sql.DB) *MySQLTransferRepository {
	return &MySQLTransferRepository{db: db}
}

func (r *MySQLTransferRepository) Create(ctx context.Context, t domain.Transfer) error {
	history, err := json.Marshal(t.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO transfers (`+transferColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.PartID, int64(t.OriginLocation), int64(t.DestinationLocation), t.Quantity,
		t.Mode, t.Status, t.RequestedBy, t.RequestedAt,
		nullTime(t.ApprovedAt), nullTime(t.ShippedAt), nullTime(t.CompletedAt),
		nullTime(t.RejectedAt), nullTime(t.ExpiredAt), history, t.Version,
	)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

func (r *MySQLTransferRepository) Get(ctx context.Context, id string) (*domain.Transfer, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = ?`, id)
	t, err := scanTransfer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transfer %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *MySQLTransferRepository) Update(ctx context.Context, t domain.Transfer, expectedVersion int) error {
	history, err := json.Marshal(t.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE transfers
		SET status = ?, approved_at = ?, shipped_at = ?, completed_at = ?, rejected_at = ?,
			expired_at = ?, history = ?, version = ?
		WHERE id = ? AND version = ?`,
		t.Status, nullTime(t.ApprovedAt), nullTime(t.ShippedAt), nullTime(t.CompletedAt),
		nullTime(t.RejectedAt), nullTime(t.ExpiredAt), history, t.Version,
		t.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update transfer: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func (r *MySQLTransferRepository) ListByLocation(ctx context.Context, locationID domain.LocationID) ([]domain.Transfer, error) {
	return r.query(ctx, `
		SELECT `+transferColumns+` FROM transfers
		WHERE origin_location = ? OR destination_location = ?
		ORDER BY requested_at`, int64(locationID), int64(locationID))
}

func (r *MySQLTransferRepository) ListByPart(ctx context.Context, partID domain.PartID) ([]domain.Transfer, error) {
	return r.query(ctx, `
		SELECT `+transferColumns+` FROM transfers WHERE part_id = ? ORDER BY requested_at`, partID)
}

func (r *MySQLTransferRepository) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]domain.Transfer, error) {
	return r.query(ctx, `
		SELECT `+transferColumns+` FROM transfers
		WHERE status = ? AND requested_at < ?
		ORDER BY requested_at`, domain.TransferStatusPending, cutoff)
}

func (r *MySQLTransferRepository) query(ctx context.Context, q string, args ...interface{}) ([]domain.Transfer, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()

	out := []domain.Transfer{}
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransfer(row rowScanner) (domain.Transfer, error) {
	var (
		t                                               domain.Transfer
		approved, shipped, completed, rejected, expired sql.NullTime
		history                                         []byte
	)
	err := row.Scan(&t.ID, &t.PartID, &t.OriginLocation, &t.DestinationLocation, &t.Quantity,
		&t.Mode, &t.Status, &t.RequestedBy, &t.RequestedAt,
		&approved, &shipped, &completed, &rejected, &expired,
		&history, &t.Version)
	if err != nil {
		return t, err
	}

	t.RequestedAt = t.RequestedAt.UTC()
	t.ApprovedAt = timePtr(approved)
	t.ShippedAt = timePtr(shipped)
	t.CompletedAt = timePtr(completed)
	t.RejectedAt = timePtr(rejected)
	t.ExpiredAt = timePtr(expired)
	if err := json.Unmarshal(history, &t.History); err != nil {
		return t, fmt.Errorf("decode history: %w", err)
	}
	return t, nil
}
