package idempotency

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/singleflight"
)

// Guard runs a placement at most once per key. Duplicates racing inside this
// process share the leader's result through singleflight; duplicates on other
// replicas see ErrInFlight until the leader completes.
type Guard struct {
	store Store
	ttl   time.Duration
	group singleflight.Group
}

func NewGuard(store Store, ttl time.Duration) *Guard {
	return &Guard{store: store, ttl: ttl}
}

type result struct {
	orderID string
	replay  bool
	leader  *int
}

// Do returns the order id for key. replayed is false only for the caller
// whose fn actually ran.
func (g *Guard) Do(ctx context.Context, key string, fn func(ctx context.Context) (string, error)) (orderID string, replayed bool, err error) {
	token := new(int)
	v, err, _ := g.group.Do(key, func() (any, error) {
		existing, err := g.store.Claim(ctx, key, g.ttl)
		switch {
		case errors.Is(err, ErrInFlight):
			return nil, err
		case err != nil:
			// store down: place without protection rather than refuse orders
			log.Printf("[idempotency] claim key=%s err=%v, continuing unguarded", key, err)
			id, err := fn(ctx)
			return result{orderID: id, leader: token}, err
		case existing != "":
			return result{orderID: existing, replay: true}, nil
		}

		id, err := fn(ctx)
		if err != nil {
			if rerr := g.store.Release(context.WithoutCancel(ctx), key); rerr != nil {
				log.Printf("[idempotency] release key=%s err=%v", key, rerr)
			}
			return nil, err
		}
		if cerr := g.store.Complete(context.WithoutCancel(ctx), key, id, g.ttl); cerr != nil {
			log.Printf("[idempotency] complete key=%s err=%v", key, cerr)
		}
		return result{orderID: id, leader: token}, nil
	})
	if err != nil {
		return "", false, err
	}
	r := v.(result)
	return r.orderID, r.replay || r.leader != token, nil
}
