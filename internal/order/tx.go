package order

import (
	"context"

	"github.com/MikeMC777/pickup-orders/internal/product"
)

// Tx exposes the repositories bound to one open transaction. Everything done
// through it commits or rolls back together.
type Tx interface {
	Products() product.Ledger
	Orders() TxRepository
}

// TxManager runs fn inside a single transaction. A nil return commits; any
// error rolls back and is returned. op names the operation in errors and logs.
type TxManager interface {
	WithinTx(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) error
}

// TxRepository is the write side of the order aggregate.
type TxRepository interface {
	InsertOrder(ctx context.Context, o *Order) error
	InsertItems(ctx context.Context, orderID string, items []Item) error
	// LockStatus reads the status and holds the row lock until the tx ends.
	// Returns *NotFoundError for an unknown id.
	LockStatus(ctx context.Context, orderID string) (Status, error)
	ItemsOf(ctx context.Context, orderID string) ([]Item, error)
	UpdateStatus(ctx context.Context, orderID string, s Status) error
}

// Reader is the read side. Results are newest first with items in placement
// order.
type Reader interface {
	Get(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	ListAll(ctx context.Context) ([]Order, error)
}
