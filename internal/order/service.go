package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/pickup-orders/internal/events"
	"github.com/MikeMC777/pickup-orders/internal/product"
)

type Service struct {
	tx     TxManager
	reader Reader
	pub    events.Publisher
	policy TransitionPolicy
	newID  func() string
	now    func() time.Time
}

type Option func(*Service)

func WithPolicy(p TransitionPolicy) Option {
	return func(s *Service) { s.policy = p }
}

func WithIDGenerator(f func() string) Option {
	return func(s *Service) { s.newID = f }
}

func NewService(tx TxManager, reader Reader, pub events.Publisher, opts ...Option) *Service {
	s := &Service{
		tx:     tx,
		reader: reader,
		pub:    pub,
		policy: Permissive,
		newID:  uuid.NewString,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.pub == nil {
		s.pub = events.LogPublisher{}
	}
	return s
}

func validate(req *CreateOrderRequest) error {
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return &ValidationError{Field: "user_id", Reason: "required"}
	}
	if _, err := uuid.Parse(req.UserID); err != nil {
		return &ValidationError{Field: "user_id", Reason: "must be a UUID"}
	}
	if len(req.Items) == 0 {
		return &ValidationError{Field: "items", Reason: "at least one item is required"}
	}
	for i, it := range req.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return &ValidationError{Field: fmt.Sprintf("items[%d].product_id", i), Reason: "required"}
		}
		if it.Quantity <= 0 {
			return &ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Reason: "must be greater than zero"}
		}
		if it.Quantity > math.MaxInt32 {
			return &ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Reason: "too large"}
		}
	}
	req.PickupDate = strings.TrimSpace(req.PickupDate)
	if _, err := time.Parse("2006-01-02", req.PickupDate); err != nil {
		return &ValidationError{Field: "pickup_date", Reason: "expected YYYY-MM-DD"}
	}
	pickup, ok := normalizePickupTime(req.PickupTime)
	if !ok {
		return &ValidationError{Field: "pickup_time", Reason: `expected "03:04 PM" or "15:04"`}
	}
	req.PickupTime = pickup
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if req.PaymentMethod != PaymentCash && req.PaymentMethod != PaymentOnlineBanking {
		return &ValidationError{Field: "payment_method", Reason: "must be cash or online_banking"}
	}
	return nil
}

// pickupLayout is the one form pickup times are stored in.
const pickupLayout = "03:04 PM"

func normalizePickupTime(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{pickupLayout, "3:04 PM", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(pickupLayout), true
		}
	}
	return "", false
}

// maxTotal is the first value that no longer fits orders.total_amount NUMERIC(12,2).
var maxTotal = decimal.New(1, 10)

// aggregate sums quantities per product and returns them sorted by product
// id. Every transaction touching stock locks rows in this order, so two
// orders over the same products can never wait on each other in a cycle.
func aggregate(items []Item) []Item {
	sum := map[string]int{}
	for _, it := range items {
		sum[it.ProductID] += it.Quantity
	}
	out := make([]Item, 0, len(sum))
	for id, q := range sum {
		out = append(out, Item{ProductID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// PlaceOrder validates the request, then in one transaction snapshots prices,
// inserts the order and its items and deducts stock. Either all of it
// commits or none of it does.
func (s *Service) PlaceOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if err := validate(&req); err != nil {
		return nil, err
	}

	o := &Order{
		ID:            s.newID(),
		UserID:        req.UserID,
		Status:        StatusPending,
		PickupDate:    req.PickupDate,
		PickupTime:    req.PickupTime,
		PaymentMethod: req.PaymentMethod,
	}

	err := s.tx.WithinTx(ctx, "place order", func(ctx context.Context, tx Tx) error {
		ledger := tx.Products()
		total := decimal.Zero
		items := make([]Item, 0, len(req.Items))
		for i, line := range req.Items {
			price, err := ledger.PriceOf(ctx, line.ProductID)
			if errors.Is(err, product.ErrNotFound) {
				return &ValidationError{
					Field:  fmt.Sprintf("items[%d].product_id", i),
					Reason: fmt.Sprintf("product %s does not exist", line.ProductID),
				}
			}
			if err != nil {
				return err
			}
			total = total.Add(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
			items = append(items, Item{
				ID:        s.newID(),
				OrderID:   o.ID,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Price:     price,
			})
		}
		if total.GreaterThanOrEqual(maxTotal) {
			return &ValidationError{Field: "items", Reason: "order total too large"}
		}
		o.Total = total

		if err := tx.Orders().InsertOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.Orders().InsertItems(ctx, o.ID, items); err != nil {
			return err
		}
		for _, line := range aggregate(items) {
			if line.Quantity > math.MaxInt32 {
				return &ValidationError{Field: "items", Reason: fmt.Sprintf("quantity for product %s too large", line.ProductID)}
			}
			if err := ledger.Deduct(ctx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}
		o.Items = items
		return nil
	})
	if err != nil {
		log.Printf("[order] place rejected user=%s err=%v", req.UserID, err)
		return nil, classify("place order", err)
	}

	log.Printf("[order] placed id=%s user=%s items=%d total=%s", o.ID, o.UserID, len(o.Items), o.Total.StringFixed(2))
	s.publish(ctx, events.Event{
		Type:    events.OrderPlaced,
		OrderID: o.ID,
		UserID:  o.UserID,
		Status:  string(o.Status),
		Total:   o.Total.StringFixed(2),
	})
	return o, nil
}

// SetStatus moves an order to status under the order's row lock. Moving to
// CANCELLED returns every item's quantity to stock in the same transaction.
func (s *Service) SetStatus(ctx context.Context, orderID, status string) (*Transition, error) {
	to, ok := ParseStatus(status)
	if !ok {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}

	var tr *Transition
	err := s.tx.WithinTx(ctx, "set status", func(ctx context.Context, tx Tx) error {
		from, err := tx.Orders().LockStatus(ctx, orderID)
		if err != nil {
			return err
		}
		tr = &Transition{OrderID: orderID, From: from, To: to}
		if from == to {
			return nil
		}
		if from == StatusCancelled || !s.policy.Allows(from, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}

		if to == StatusCancelled {
			items, err := tx.Orders().ItemsOf(ctx, orderID)
			if err != nil {
				return err
			}
			ledger := tx.Products()
			for _, line := range aggregate(items) {
				err := ledger.Restore(ctx, line.ProductID, line.Quantity)
				if errors.Is(err, product.ErrNotFound) {
					log.Printf("[order] cancel id=%s product=%s gone, %d units not restocked", orderID, line.ProductID, line.Quantity)
					continue
				}
				if err != nil {
					return err
				}
			}
		}

		if err := tx.Orders().UpdateStatus(ctx, orderID, to); err != nil {
			return err
		}
		tr.Changed = true
		return nil
	})
	if err != nil {
		return nil, classify("set status", err)
	}

	if tr.Changed {
		log.Printf("[order] status id=%s %s -> %s", orderID, tr.From, tr.To)
		s.publish(ctx, events.Event{
			Type:     events.OrderStatusChanged,
			OrderID:  orderID,
			Status:   string(tr.To),
			Previous: string(tr.From),
		})
	}
	return tr, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.reader.Get(ctx, id)
	if err != nil {
		return nil, classify("get order", err)
	}
	return o, nil
}

func (s *Service) Items(ctx context.Context, id string) ([]Item, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return o.Items, nil
}

// ListByUser and ListAll degrade to an empty list when the store fails.
func (s *Service) ListByUser(ctx context.Context, userID string) []Order {
	out, err := s.reader.ListByUser(ctx, userID)
	if err != nil {
		log.Printf("[order] list user=%s err=%v", userID, err)
		return []Order{}
	}
	return out
}

func (s *Service) ListAll(ctx context.Context) []Order {
	out, err := s.reader.ListAll(ctx)
	if err != nil {
		log.Printf("[order] list all err=%v", err)
		return []Order{}
	}
	return out
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	e.At = s.now().UTC()
	if err := s.pub.Publish(ctx, e); err != nil {
		log.Printf("[order] publish %s id=%s err=%v", e.Type, e.OrderID, err)
	}
}

// classify passes domain errors through and wraps everything else as a
// TransactionFailure.
func classify(op string, err error) error {
	var (
		ve *ValidationError
		se *product.InsufficientStockError
		tf *TransactionFailure
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &se), errors.As(err, &tf):
		return err
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidTransition):
		return err
	}
	return &TransactionFailure{Op: op, Err: err}
}
