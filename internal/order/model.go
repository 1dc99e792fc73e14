package order

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending        Status = "PENDING"
	StatusReadyForPickup Status = "READY_FOR_PICKUP"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
)

var statuses = []Status{StatusPending, StatusReadyForPickup, StatusCompleted, StatusCancelled}

// ParseStatus accepts any casing and the single-L "CANCELED" spelling.
func ParseStatus(s string) (Status, bool) {
	v := Status(strings.ToUpper(strings.TrimSpace(s)))
	if v == "CANCELED" {
		return StatusCancelled, true
	}
	for _, st := range statuses {
		if v == st {
			return st, true
		}
	}
	return "", false
}

const (
	PaymentCash          = "cash"
	PaymentOnlineBanking = "online_banking"
)

type Order struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	// only filled on the admin listing
	Username      string          `json:"username,omitempty"`
	Status        Status          `json:"status"`
	Total         decimal.Decimal `json:"total_amount"`
	PickupDate    string          `json:"pickup_date"`
	PickupTime    string          `json:"pickup_time"`
	PaymentMethod string          `json:"payment_method"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []Item          `json:"items"`
}

type Item struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	// snapshot taken at placement, never recomputed
	Price       decimal.Decimal `json:"price_at_purchase"`
	ProductName string          `json:"product_name,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
	Feedback    *Feedback       `json:"feedback,omitempty"`
}

type Feedback struct {
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Transition is the confirmation returned by a status change.
type Transition struct {
	OrderID string `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
	// false when the order was already in the target status
	Changed bool `json:"changed"`
}
