// Package events publishes order lifecycle notifications after commit.
// Publishing is best effort: a failed publish never undoes a committed order.
package events

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

const (
	OrderPlaced        = "order.placed"
	OrderStatusChanged = "order.status_changed"
)

type Event struct {
	Type     string    `json:"type"`
	OrderID  string    `json:"order_id"`
	UserID   string    `json:"user_id,omitempty"`
	Status   string    `json:"status"`
	Previous string    `json:"previous_status,omitempty"`
	Total    string    `json:"total_amount,omitempty"`
	At       time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// LogPublisher writes events to the process log. Used when no broker is
// configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	log.Printf("[events] %s", body)
	return nil
}
