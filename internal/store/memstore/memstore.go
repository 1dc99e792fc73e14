// Package memstore is an in-process store with the same transactional
// behaviour as the PostgreSQL one: a transaction sees and changes state
// exclusively and either all of its writes land or none do. Used by tests
// and by STORE_DRIVER=memory for local development.
//
// Every transaction clones the whole state behind a single mutex, so cost
// grows with the number of stored orders and transactions never overlap.
// Production deployments run the postgres driver.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MikeMC777/pickup-orders/internal/order"
	"github.com/MikeMC777/pickup-orders/internal/product"
)

type orderRec struct {
	order order.Order
	items []order.Item
	seq   int64
}

type feedbackKey struct{ orderID, productID string }

type state struct {
	products map[string]product.Product
	orders   map[string]*orderRec
	users    map[string]string
	feedback map[feedbackKey]order.Feedback
	seq      int64
}

func (s *state) clone() *state {
	c := &state{
		products: make(map[string]product.Product, len(s.products)),
		orders:   make(map[string]*orderRec, len(s.orders)),
		users:    make(map[string]string, len(s.users)),
		feedback: make(map[feedbackKey]order.Feedback, len(s.feedback)),
		seq:      s.seq,
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.orders {
		rec := *v
		rec.items = append([]order.Item(nil), v.items...)
		c.orders[k] = &rec
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.feedback {
		c.feedback[k] = v
	}
	return c
}

// Store serializes every transaction behind one mutex, the in-memory
// equivalent of row locks on every row a transaction touches.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

func New() *Store {
	return &Store{
		st: &state{
			products: map[string]product.Product{},
			orders:   map[string]*orderRec{},
			users:    map[string]string{},
			feedback: map[feedbackKey]order.Feedback{},
		},
		now: time.Now,
	}
}

func (s *Store) Ping(context.Context) error { return nil }

// ---------- transactions ----------

type memTx struct {
	st  *state
	now func() time.Time
}

func (t *memTx) Products() product.Ledger   { return ledger{t} }
func (t *memTx) Orders() order.TxRepository { return txRepo{t} }

// WithinTx ignores cancellation of ctx once called, like the postgres store.
func (s *Store) WithinTx(ctx context.Context, _ string, fn func(ctx context.Context, tx order.Tx) error) error {
	ctx = context.WithoutCancel(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(ctx, &memTx{st: s.st, now: s.now}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// ---------- ledger ----------

type ledger struct{ t *memTx }

func (l ledger) PriceOf(_ context.Context, id string) (decimal.Decimal, error) {
	p, ok := l.t.st.products[id]
	if !ok {
		return decimal.Zero, product.ErrNotFound
	}
	return p.Price, nil
}

func (l ledger) Deduct(_ context.Context, id string, qty int) error {
	p, ok := l.t.st.products[id]
	if !ok || p.Stock < qty {
		return &product.InsufficientStockError{ProductID: id, Requested: qty}
	}
	p.Stock -= qty
	p.UpdatedAt = l.t.now().UTC()
	l.t.st.products[id] = p
	return nil
}

func (l ledger) Restore(_ context.Context, id string, qty int) error {
	p, ok := l.t.st.products[id]
	if !ok {
		return product.ErrNotFound
	}
	p.Stock += qty
	p.UpdatedAt = l.t.now().UTC()
	l.t.st.products[id] = p
	return nil
}

func (l ledger) Adjust(_ context.Context, id string, delta int) (int, error) {
	p, ok := l.t.st.products[id]
	if !ok {
		return 0, product.ErrNotFound
	}
	if p.Stock+delta < 0 {
		return 0, &product.InsufficientStockError{ProductID: id, Requested: -delta}
	}
	p.Stock += delta
	p.UpdatedAt = l.t.now().UTC()
	l.t.st.products[id] = p
	return p.Stock, nil
}

// lockedLedger runs each ledger call as its own transaction.
type lockedLedger struct{ s *Store }

func (s *Store) Ledger() product.Ledger { return lockedLedger{s} }

func (l lockedLedger) tx() ledger {
	return ledger{&memTx{st: l.s.st, now: l.s.now}}
}

func (l lockedLedger) PriceOf(ctx context.Context, id string) (decimal.Decimal, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.tx().PriceOf(ctx, id)
}

func (l lockedLedger) Deduct(ctx context.Context, id string, qty int) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.tx().Deduct(ctx, id, qty)
}

func (l lockedLedger) Restore(ctx context.Context, id string, qty int) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.tx().Restore(ctx, id, qty)
}

func (l lockedLedger) Adjust(ctx context.Context, id string, delta int) (int, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.tx().Adjust(ctx, id, delta)
}

// ---------- order writes ----------

type txRepo struct{ t *memTx }

func (r txRepo) InsertOrder(_ context.Context, o *order.Order) error {
	now := r.t.now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	r.t.st.seq++
	rec := &orderRec{order: *o, seq: r.t.st.seq}
	rec.order.Items = nil
	r.t.st.orders[o.ID] = rec
	return nil
}

func (r txRepo) InsertItems(_ context.Context, orderID string, items []order.Item) error {
	rec, ok := r.t.st.orders[orderID]
	if !ok {
		return &order.NotFoundError{OrderID: orderID}
	}
	for _, it := range items {
		it.OrderID = orderID
		it.ProductName, it.ImageURL, it.Feedback = "", "", nil
		rec.items = append(rec.items, it)
	}
	return nil
}

func (r txRepo) LockStatus(_ context.Context, orderID string) (order.Status, error) {
	rec, ok := r.t.st.orders[orderID]
	if !ok {
		return "", &order.NotFoundError{OrderID: orderID}
	}
	return rec.order.Status, nil
}

func (r txRepo) ItemsOf(_ context.Context, orderID string) ([]order.Item, error) {
	rec, ok := r.t.st.orders[orderID]
	if !ok {
		return nil, &order.NotFoundError{OrderID: orderID}
	}
	return append([]order.Item(nil), rec.items...), nil
}

func (r txRepo) UpdateStatus(_ context.Context, orderID string, st order.Status) error {
	rec, ok := r.t.st.orders[orderID]
	if !ok {
		return &order.NotFoundError{OrderID: orderID}
	}
	rec.order.Status = st
	rec.order.UpdatedAt = r.t.now().UTC()
	return nil
}

// ---------- order reads ----------

// view builds the aggregate the way the SQL join does: product name and
// image from the live catalog, the username, and the latest feedback.
func (s *Store) view(rec *orderRec) order.Order {
	o := rec.order
	o.Username = s.st.users[o.UserID]
	o.Items = make([]order.Item, 0, len(rec.items))
	for _, it := range rec.items {
		if p, ok := s.st.products[it.ProductID]; ok {
			it.ProductName, it.ImageURL = p.Name, p.ImageURL
		}
		if fb, ok := s.st.feedback[feedbackKey{rec.order.ID, it.ProductID}]; ok {
			it.Feedback = &fb
		}
		o.Items = append(o.Items, it)
	}
	return o
}

func (s *Store) list(match func(*orderRec) bool) []order.Order {
	recs := make([]*orderRec, 0, len(s.st.orders))
	for _, rec := range s.st.orders {
		if match(rec) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.order.CreatedAt.Equal(b.order.CreatedAt) {
			return a.order.CreatedAt.After(b.order.CreatedAt)
		}
		return a.seq > b.seq
	})
	out := make([]order.Order, 0, len(recs))
	for _, rec := range recs {
		out = append(out, s.view(rec))
	}
	return out
}

func (s *Store) Get(_ context.Context, id string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.st.orders[id]
	if !ok {
		return nil, &order.NotFoundError{OrderID: id}
	}
	o := s.view(rec)
	return &o, nil
}

func (s *Store) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(func(r *orderRec) bool { return r.order.UserID == userID }), nil
}

func (s *Store) ListAll(context.Context) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(func(*orderRec) bool { return true }), nil
}

// ---------- catalog ----------

func (s *Store) Create(_ context.Context, p *product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.products[p.ID]; ok {
		return fmt.Errorf("product %s already exists", p.ID)
	}
	now := s.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	s.st.products[p.ID] = *p
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (*product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (s *Store) List(_ context.Context, q product.Query) ([]product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	search := strings.ToLower(strings.TrimSpace(q.Q))
	category := strings.TrimSpace(q.Category)
	out := []product.Product{}
	for _, p := range s.st.products {
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return []product.Product{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (s *Store) Update(_ context.Context, p *product.Product, updatePrice bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.st.products[p.ID]
	if !ok {
		return product.ErrNotFound
	}
	if p.Name != "" {
		cur.Name = p.Name
	}
	if p.Description != "" {
		cur.Description = p.Description
	}
	if updatePrice {
		cur.Price = p.Price
	}
	if p.Category != "" {
		cur.Category = p.Category
	}
	if p.ImageURL != "" {
		cur.ImageURL = p.ImageURL
	}
	cur.UpdatedAt = s.now().UTC()
	s.st.products[p.ID] = cur
	return nil
}

func (s *Store) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.products[id]; !ok {
		return false, nil
	}
	delete(s.st.products, id)
	return true, nil
}

// ---------- fixtures ----------

// AddUser registers a username for the admin listing.
func (s *Store) AddUser(id, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.users[id] = username
}

// AddFeedback records a review for an ordered product.
func (s *Store) AddFeedback(orderID, productID string, rating int, comment string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.feedback[feedbackKey{orderID, productID}] = order.Feedback{
		Rating:    rating,
		Comment:   comment,
		CreatedAt: s.now().UTC(),
	}
}
