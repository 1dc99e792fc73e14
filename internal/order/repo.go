package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/pickup-orders/internal/product"
)

// aggregateSelect returns one row per (order, item). Orders without items
// still produce a single row with NULL item columns.
const aggregateSelect = `
	SELECT o.id::text, o.user_id::text, COALESCE(u.username, ''), o.status,
	       o.total_amount::text, to_char(o.pickup_date, 'YYYY-MM-DD'), o.pickup_time,
	       o.payment_method, o.created_at, o.updated_at,
	       oi.id::text, oi.product_id::text, oi.quantity, oi.price_at_purchase::text,
	       COALESCE(p.name, ''), COALESCE(p.image_url, ''),
	       f.rating, f.comment, f.created_at
	FROM orders o
	LEFT JOIN users u ON u.id = o.user_id
	LEFT JOIN order_items oi ON oi.order_id = o.id
	LEFT JOIN products p ON p.id = oi.product_id
	LEFT JOIN LATERAL (
		SELECT rating, comment, created_at
		FROM feedback
		WHERE order_id = o.id AND product_id = oi.product_id
		ORDER BY created_at DESC
		LIMIT 1
	) f ON TRUE
`

const aggregateOrder = ` ORDER BY o.created_at DESC, o.id, oi.position`

type aggregateRow struct {
	order Order
	total string

	itemID    *string
	productID *string
	quantity  *int
	price     *string
	name      string
	image     string

	rating     *int
	comment    *string
	reviewedAt *time.Time
}

// fold groups joined rows into orders, keeping the first-seen order of ids
// and the row order of items within each order.
func fold(rows []aggregateRow) ([]Order, error) {
	out := []Order{}
	index := map[string]int{}
	for _, r := range rows {
		i, seen := index[r.order.ID]
		if !seen {
			o := r.order
			total, err := decimal.NewFromString(r.total)
			if err != nil {
				return nil, fmt.Errorf("order %s: bad total %q: %w", o.ID, r.total, err)
			}
			o.Total = total
			o.Items = []Item{}
			out = append(out, o)
			i = len(out) - 1
			index[o.ID] = i
		}
		if r.itemID == nil {
			continue
		}
		it := Item{
			ID:          *r.itemID,
			OrderID:     r.order.ID,
			ProductID:   deref(r.productID),
			ProductName: r.name,
			ImageURL:    r.image,
		}
		if r.quantity != nil {
			it.Quantity = *r.quantity
		}
		if r.price != nil {
			p, err := decimal.NewFromString(*r.price)
			if err != nil {
				return nil, fmt.Errorf("item %s: bad price %q: %w", it.ID, *r.price, err)
			}
			it.Price = p
		}
		if r.rating != nil {
			it.Feedback = &Feedback{Rating: *r.rating, Comment: deref(r.comment)}
			if r.reviewedAt != nil {
				it.Feedback.CreatedAt = *r.reviewedAt
			}
		}
		out[i].Items = append(out[i].Items, it)
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// PGRepo implements Reader over the pool.
type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) query(ctx context.Context, where string, args ...any) ([]Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, aggregateSelect+where+aggregateOrder, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batch []aggregateRow
	for rows.Next() {
		var a aggregateRow
		var status string
		if err := rows.Scan(
			&a.order.ID, &a.order.UserID, &a.order.Username, &status,
			&a.total, &a.order.PickupDate, &a.order.PickupTime,
			&a.order.PaymentMethod, &a.order.CreatedAt, &a.order.UpdatedAt,
			&a.itemID, &a.productID, &a.quantity, &a.price,
			&a.name, &a.image,
			&a.rating, &a.comment, &a.reviewedAt,
		); err != nil {
			return nil, err
		}
		a.order.Status = Status(status)
		batch = append(batch, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return fold(batch)
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (r *PGRepo) Get(ctx context.Context, id string) (*Order, error) {
	if !validID(id) {
		return nil, &NotFoundError{OrderID: id}
	}
	out, err := r.query(ctx, ` WHERE o.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, &NotFoundError{OrderID: id}
	}
	return &out[0], nil
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	if !validID(userID) {
		return []Order{}, nil
	}
	return r.query(ctx, ` WHERE o.user_id = $1`, userID)
}

func (r *PGRepo) ListAll(ctx context.Context) ([]Order, error) {
	return r.query(ctx, ``)
}

// PGTxRepo implements TxRepository on an open transaction.
type PGTxRepo struct{ db product.Querier }

func NewPGTxRepo(db product.Querier) *PGTxRepo { return &PGTxRepo{db: db} }

func (r *PGTxRepo) InsertOrder(ctx context.Context, o *Order) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO orders (id, user_id, status, total_amount, pickup_date, pickup_time, payment_method, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW())
		RETURNING created_at, updated_at
	`, o.ID, o.UserID, string(o.Status), o.Total.String(), o.PickupDate, o.PickupTime, o.PaymentMethod).
		Scan(&o.CreatedAt, &o.UpdatedAt)
}

func (r *PGTxRepo) InsertItems(ctx context.Context, orderID string, items []Item) error {
	for i, it := range items {
		if _, err := r.db.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, price_at_purchase, position)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, it.ID, orderID, it.ProductID, it.Quantity, it.Price.String(), i); err != nil {
			return err
		}
	}
	return nil
}

func (r *PGTxRepo) LockStatus(ctx context.Context, orderID string) (Status, error) {
	if !validID(orderID) {
		return "", &NotFoundError{OrderID: orderID}
	}
	var s string
	err := r.db.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", &NotFoundError{OrderID: orderID}
	}
	if err != nil {
		return "", err
	}
	return Status(s), nil
}

func (r *PGTxRepo) ItemsOf(ctx context.Context, orderID string) ([]Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id::text, product_id::text, quantity, price_at_purchase::text
		FROM order_items WHERE order_id = $1
		ORDER BY position
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			it    Item
			price string
		)
		if err := rows.Scan(&it.ID, &it.ProductID, &it.Quantity, &price); err != nil {
			return nil, err
		}
		if it.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		it.OrderID = orderID
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *PGTxRepo) UpdateStatus(ctx context.Context, orderID string, s Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, orderID, string(s))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{OrderID: orderID}
	}
	return nil
}
