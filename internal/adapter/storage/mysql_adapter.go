package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// MySQLAdapter is the durable ledger. Rows of a batch are locked with
// SELECT ... FOR UPDATE in key order inside one transaction.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// MigrateMySQL applies the schema statement by statement, so the DSN
// does not need multiStatements.
func MigrateMySQL(ctx context.Context, db *sql.DB) error {
	return applySchema(ctx, db, "schema/mysql.sql")
}

func applySchema(ctx context.Context, db *sql.DB, name string) error {
	raw, err := schemaFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	for _, stmt := range strings.Split(string(raw), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema %s: %w", name, err)
		}
	}
	return nil
}

func (m *MySQLAdapter) GetQuantity(ctx context.Context, key domain.StockKey) (int, error) {
	var qty int
	err := m.db.QueryRowContext(ctx, `
		SELECT quantity FROM stock WHERE part_id = ? AND location_id = ?`,
		key.PartID, int64(key.LocationID),
	).Scan(&qty)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query stock: %w", err)
	}
	return qty, nil
}

func (m *MySQLAdapter) ListByPart(ctx context.Context, partID domain.PartID) ([]domain.StockEntry, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT part_id, location_id, quantity, version, updated_at
		FROM stock WHERE part_id = ? ORDER BY location_id`, partID)
	if err != nil {
		return nil, fmt.Errorf("query stock: %w", err)
	}
	defer rows.Close()

	var out []domain.StockEntry
	for rows.Next() {
		var e domain.StockEntry
		if err := rows.Scan(&e.PartID, &e.LocationID, &e.Quantity, &e.Version, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) ApplyDeltas(ctx context.Context, deltas []domain.StockDelta) ([]domain.StockEntry, error) {
	merged := domain.MergeDeltas(deltas)
	if len(merged) == 0 {
		return nil, nil
	}

	order := make([]int, len(merged))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return merged[order[a]].Key.Less(merged[order[b]].Key) })

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, i := range order {
		d := merged[i]
		if _, err := tx.ExecContext(ctx, `
			INSERT IGNORE INTO stock (part_id, location_id, quantity, version)
			VALUES (?, ?, 0, 0)`,
			d.Key.PartID, int64(d.Key.LocationID),
		); err != nil {
			return nil, fmt.Errorf("ensure stock row: %w", err)
		}

		var current int
		if err := tx.QueryRowContext(ctx, `
			SELECT quantity FROM stock
			WHERE part_id = ? AND location_id = ? FOR UPDATE`,
			d.Key.PartID, int64(d.Key.LocationID),
		).Scan(&current); err != nil {
			return nil, fmt.Errorf("lock stock row: %w", err)
		}

		if err := checkDelta(d, current); err != nil {
			return nil, err
		}
	}

	for _, i := range order {
		d := merged[i]
		if _, err := tx.ExecContext(ctx, `
			UPDATE stock
			SET quantity = quantity + ?, version = version + 1, updated_at = NOW(6)
			WHERE part_id = ? AND location_id = ?`,
			d.Delta, d.Key.PartID, int64(d.Key.LocationID),
		); err != nil {
			return nil, fmt.Errorf("update stock: %w", err)
		}
	}

	out := make([]domain.StockEntry, len(merged))
	for i, d := range merged {
		e := domain.StockEntry{PartID: d.Key.PartID, LocationID: d.Key.LocationID}
		if err := tx.QueryRowContext(ctx, `
			SELECT quantity, version, updated_at FROM stock
			WHERE part_id = ? AND location_id = ?`,
			d.Key.PartID, int64(d.Key.LocationID),
		).Scan(&e.Quantity, &e.Version, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("read stock: %w", err)
		}
		out[i] = e
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

// SetStock seeds a quantity outside the ledger rules (migration, tests).
func (m *MySQLAdapter) SetStock(ctx context.Context, key domain.StockKey, quantity int) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO stock (part_id, location_id, quantity, version) VALUES (?, ?, ?, 1)
		ON DUPLICATE KEY UPDATE quantity = VALUES(quantity), version = version + 1, updated_at = NOW(6)`,
		key.PartID, int64(key.LocationID), quantity,
	)
	return err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}
