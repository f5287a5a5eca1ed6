package db

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"duck-export/internal/sqlbuild"
)

// seedEpoch is the created_at of product 1; each following product is one
// hour later.
var seedEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Product is one demo row.
type Product struct {
	ID            int64
	Name          string
	SKU           string
	Price         float64
	StockQuantity int64
	CreatedAt     time.Time
}

// DemoProduct returns the deterministic demo row with the given id.
func DemoProduct(id int64) Product {
	return Product{
		ID:            id,
		Name:          fmt.Sprintf("Product %d", id),
		SKU:           fmt.Sprintf("SKU-%05d", id),
		Price:         math.Round((float64(id%100)+0.99)*100) / 100,
		StockQuantity: (id * 7) % 500,
		CreatedAt:     seedEpoch.Add(time.Duration(id-1) * time.Hour),
	}
}

// Seed ensures the products schema exists and replaces its contents with
// rows deterministic demo products, in one transaction.
func Seed(ctx context.Context, db *sql.DB, dialect sqlbuild.Dialect, rows int) (int64, error) {
	if rows < 0 {
		return 0, fmt.Errorf("seed: rows must not be negative, got %d", rows)
	}
	if err := EnsureSchema(ctx, db, dialect); err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("seed: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM products"); err != nil {
		return 0, fmt.Errorf("seed: clear products: %w", err)
	}

	insert := fmt.Sprintf(
		"INSERT INTO products (id, name, sku, price, stock_quantity, created_at) VALUES (%s, %s, %s, %s, %s, %s)",
		dialect.Placeholder(1), dialect.Placeholder(2), dialect.Placeholder(3),
		dialect.Placeholder(4), dialect.Placeholder(5), dialect.Placeholder(6))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return 0, fmt.Errorf("seed: prepare: %w", err)
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for id := int64(1); id <= int64(rows); id++ {
		p := DemoProduct(id)
		if _, err := stmt.ExecContext(ctx, p.ID, p.Name, p.SKU, p.Price, p.StockQuantity, p.CreatedAt); err != nil {
			return n, fmt.Errorf("seed: insert product %d: %w", id, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("seed: commit: %w", err)
	}
	return n, nil
}
