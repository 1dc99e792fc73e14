package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/pickup-orders/internal/product"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username VARCHAR(100) NOT NULL UNIQUE,
		email VARCHAR(255),
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS products (
		id UUID PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price NUMERIC(10,2) NOT NULL CHECK (price >= 0),
		stock_quantity INTEGER NOT NULL DEFAULT 0 CHECK (stock_quantity >= 0),
		category VARCHAR(100) NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category)`,
	`CREATE INDEX IF NOT EXISTS idx_products_created_at ON products(created_at)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		status VARCHAR(32) NOT NULL DEFAULT 'PENDING'
			CHECK (status IN ('PENDING','READY_FOR_PICKUP','COMPLETED','CANCELLED')),
		total_amount NUMERIC(12,2) NOT NULL CHECK (total_amount >= 0),
		pickup_date DATE NOT NULL,
		pickup_time VARCHAR(16) NOT NULL,
		payment_method VARCHAR(32) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at)`,

	// product_id is a weak reference; catalog deletes leave history intact.
	`CREATE TABLE IF NOT EXISTS order_items (
		id UUID PRIMARY KEY,
		order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id UUID NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		price_at_purchase NUMERIC(10,2) NOT NULL,
		position INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id)`,

	`CREATE TABLE IF NOT EXISTS feedback (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		product_id UUID NOT NULL,
		order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
		comment TEXT,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_feedback_order_product ON feedback(order_id, product_id)`,
}

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

// Catalog is the starter assortment loaded into an empty products table.
func Catalog() []product.Product {
	p := func(name, desc, price string, stock int, category string) product.Product {
		return product.Product{
			ID:          uuid.NewString(),
			Name:        name,
			Description: desc,
			Price:       decimal.RequireFromString(price),
			Stock:       stock,
			Category:    category,
		}
	}
	return []product.Product{
		p("Sourdough Loaf", "48h fermented country loaf", "8.50", 20, "bread"),
		p("Baguette", "Classic French stick", "3.20", 40, "bread"),
		p("Butter Croissant", "Laminated, all-butter", "2.80", 60, "pastry"),
		p("Pain au Chocolat", "Croissant dough with dark chocolate", "3.10", 45, "pastry"),
		p("Cinnamon Roll", "Brown sugar swirl, cream cheese glaze", "3.60", 30, "pastry"),
		p("Carrot Cake", "Whole cake, serves 8", "32.00", 5, "cake"),
		p("Lemon Tart", "Shortcrust with lemon curd", "4.50", 24, "cake"),
	}
}

// Seed inserts Catalog when products is empty. It reports whether it did.
func Seed(ctx context.Context, repo product.Repository, pool *pgxpool.Pool) (bool, error) {
	var n int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&n); err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	for _, p := range Catalog() {
		p := p
		if err := repo.Create(ctx, &p); err != nil {
			return false, fmt.Errorf("seed %s: %w", p.Name, err)
		}
	}
	return true, nil
}
