package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

type MySQLCatalog struct {
	db *sql.DB
}

func NewMySQLCatalog(db *sql.DB) *MySQLCatalog {
	return &MySQLCatalog{db: db}
}

func (c *MySQLCatalog) Search(ctx context.Context, query string, limit int) ([]domain.Part, error) {
	like := "%" + query + "%"
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, code, brand, price, image FROM parts
		WHERE name LIKE ? OR code LIKE ? OR brand LIKE ?
		ORDER BY name LIMIT ?`, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("search parts: %w", err)
	}
	defer rows.Close()

	out := []domain.Part{}
	for rows.Next() {
		var p domain.Part
		if err := rows.Scan(&p.ID, &p.Name, &p.Code, &p.Brand, &p.Price, &p.Image); err != nil {
			return nil, fmt.Errorf("scan part: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c *MySQLCatalog) GetPart(ctx context.Context, id domain.PartID) (*domain.Part, error) {
	var p domain.Part
	err := c.db.QueryRowContext(ctx, `
		SELECT id, name, code, brand, price, image FROM parts WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Code, &p.Brand, &p.Price, &p.Image)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: part %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query part: %w", err)
	}
	return &p, nil
}

func (c *MySQLCatalog) Locations(ctx context.Context) ([]domain.Location, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, name FROM locations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()

	var out []domain.Location
	for rows.Next() {
		var l domain.Location
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (c *MySQLCatalog) SavePart(ctx context.Context, p domain.Part) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO parts (id, name, code, brand, price, image)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name), code = VALUES(code), brand = VALUES(brand),
			price = VALUES(price), image = VALUES(image)`,
		p.ID, p.Name, p.Code, p.Brand, p.Price, p.Image)
	if err != nil {
		return fmt.Errorf("save part: %w", err)
	}
	return nil
}

func (c *MySQLCatalog) SaveLocation(ctx context.Context, l domain.Location) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO locations (id, name) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name)`, l.ID, l.Name)
	if err != nil {
		return fmt.Errorf("save location: %w", err)
	}
	return nil
}
