package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

const saleColumns = `id, location_id, seller, client_name, items, subtotal, discount_percent,
	discount, total, status, payment_method, cashier, created_at, finalized_at, version`

type MySQLSaleRepository struct {
	db *sql.DB
}

func NewMySQLSaleRepository(db *sql.DB) *MySQLSaleRepository {
	return &MySQLSaleRepository{db: db}
}

func (r *MySQLSaleRepository) Create(ctx context.Context, s domain.PendingSale) error {
	items, err := json.Marshal(s.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, int64(s.LocationID), s.Seller, s.ClientName, items,
		s.Subtotal, s.DiscountPercent, s.Discount, s.Total,
		s.Status, s.PaymentMethod, s.Cashier, s.CreatedAt, nullTime(s.FinalizedAt), s.Version,
	)
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

func (r *MySQLSaleRepository) Get(ctx context.Context, id string) (*domain.PendingSale, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, id)
	s, err := scanSale(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: sale %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *MySQLSaleRepository) Update(ctx context.Context, s domain.PendingSale, expectedVersion int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sales
		SET status = ?, payment_method = ?, cashier = ?, finalized_at = ?, version = ?
		WHERE id = ? AND version = ?`,
		s.Status, s.PaymentMethod, s.Cashier, nullTime(s.FinalizedAt), s.Version,
		s.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update sale: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func (r *MySQLSaleRepository) ListPending(ctx context.Context, locationID domain.LocationID) ([]domain.PendingSale, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+saleColumns+` FROM sales
		WHERE location_id = ? AND status = ?
		ORDER BY created_at`, int64(locationID), domain.SaleStatusAwaitingPayment)
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	defer rows.Close()

	out := []domain.PendingSale{}
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSale(row rowScanner) (domain.PendingSale, error) {
	var (
		s         domain.PendingSale
		items     []byte
		finalized sql.NullTime
	)
	err := row.Scan(&s.ID, &s.LocationID, &s.Seller, &s.ClientName, &items,
		&s.Subtotal, &s.DiscountPercent, &s.Discount, &s.Total,
		&s.Status, &s.PaymentMethod, &s.Cashier, &s.CreatedAt, &finalized, &s.Version)
	if err != nil {
		return s, err
	}

	s.CreatedAt = s.CreatedAt.UTC()
	s.FinalizedAt = timePtr(finalized)
	if err := json.Unmarshal(items, &s.Items); err != nil {
		return s, fmt.Errorf("decode items: %w", err)
	}
	return s, nil
}
