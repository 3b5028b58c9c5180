package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

// SQLAdjustmentLog is the append-only audit table on MySQL or SQLite.
type SQLAdjustmentLog struct {
	db *sqlx.DB
}

func NewSQLAdjustmentLog(db *sqlx.DB) *SQLAdjustmentLog {
	return &SQLAdjustmentLog{db: db}
}

// OpenSQLiteAdjustmentLog opens (creating if needed) a single-node audit
// database at path.
func OpenSQLiteAdjustmentLog(ctx context.Context, path string) (*SQLAdjustmentLog, error) {
	db, err := sqlx.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := applySchema(ctx, db.DB, "schema/sqlite.sql"); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLAdjustmentLog{db: db}, nil
}

func (l *SQLAdjustmentLog) Append(ctx context.Context, e domain.AdjustmentLogEntry) error {
	_, err := l.db.NamedExecContext(ctx, `
		INSERT INTO stock_adjustments
			(id, part_id, location_id, actor_name, previous_quantity, new_quantity, reason, created_at)
		VALUES
			(:id, :part_id, :location_id, :actor_name, :previous_quantity, :new_quantity, :reason, :created_at)`,
		e)
	if err != nil {
		return fmt.Errorf("insert adjustment: %w", err)
	}
	return nil
}

func (l *SQLAdjustmentLog) List(ctx context.Context, locationID domain.LocationID, window domain.DateRange) ([]domain.AdjustmentLogEntry, error) {
	var (
		where = []string{"location_id = ?"}
		args  = []interface{}{int64(locationID)}
	)
	if !window.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, window.From.UTC())
	}
	if !window.To.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, window.To.UTC())
	}

	query := l.db.Rebind(`
		SELECT id, part_id, location_id, actor_name, previous_quantity, new_quantity, reason, created_at
		FROM stock_adjustments
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at DESC, id DESC`)

	entries := []domain.AdjustmentLogEntry{}
	if err := l.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("query adjustments: %w", err)
	}
	for i := range entries {
		entries[i].CreatedAt = entries[i].CreatedAt.UTC()
	}
	return entries, nil
}

func (l *SQLAdjustmentLog) Close() error {
	return l.db.Close()
}
