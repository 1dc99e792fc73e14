package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// Querier is satisfied by pgx.Tx, *pgx.Conn and *pgxpool.Pool. Ledger
// operations run on whatever handle the caller passes, normally the open
// transaction of an order placement or cancellation.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger mutates stock counters. Every mutation is a single conditional
// statement so concurrent callers are serialized by the row lock, never by a
// read-then-write in Go.
type Ledger interface {
	// PriceOf reads the live price, used for the order's price snapshot.
	PriceOf(ctx context.Context, productID string) (decimal.Decimal, error)
	// Deduct fails with *InsufficientStockError when stock < quantity.
	Deduct(ctx context.Context, productID string, quantity int) error
	// Restore adds quantity back; ErrNotFound if the product is gone.
	Restore(ctx context.Context, productID string, quantity int) error
	// Adjust applies a signed delta and returns the new stock level.
	Adjust(ctx context.Context, productID string, delta int) (int, error)
}

type PGLedger struct{ db Querier }

func NewPGLedger(db Querier) *PGLedger { return &PGLedger{db: db} }

func (l *PGLedger) PriceOf(ctx context.Context, productID string) (decimal.Decimal, error) {
	if !validID(productID) {
		return decimal.Zero, ErrNotFound
	}
	var price string
	err := l.db.QueryRow(ctx, `SELECT price::text FROM products WHERE id = $1`, productID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(price)
}

func (l *PGLedger) Deduct(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("deduct %s: quantity must be positive, got %d", productID, quantity)
	}
	tag, err := l.db.Exec(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - $2, updated_at = NOW()
		WHERE id = $1 AND stock_quantity >= $2
	`, productID, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &InsufficientStockError{ProductID: productID, Requested: quantity}
	}
	return nil
}

func (l *PGLedger) Restore(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("restore %s: quantity must be positive, got %d", productID, quantity)
	}
	tag, err := l.db.Exec(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $2, updated_at = NOW()
		WHERE id = $1
	`, productID, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (l *PGLedger) Adjust(ctx context.Context, productID string, delta int) (int, error) {
	if !validID(productID) {
		return 0, ErrNotFound
	}
	var stock int
	err := l.db.QueryRow(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $2, updated_at = NOW()
		WHERE id = $1 AND stock_quantity + $2 >= 0
		RETURNING stock_quantity
	`, productID, delta).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	// zero rows: either the product is missing or the delta would go negative
	var exists bool
	if err := l.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrNotFound
	}
	return 0, &InsufficientStockError{ProductID: productID, Requested: -delta}
}
