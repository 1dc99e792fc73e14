package store

import (
	"context"
	"fmt"
	"log"

	"github.com/MikeMC777/pickup-orders/internal/config"
	"github.com/MikeMC777/pickup-orders/internal/order"
	"github.com/MikeMC777/pickup-orders/internal/product"
	"github.com/MikeMC777/pickup-orders/internal/store/memstore"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Backend bundles the handles a service needs from one store.
type Backend struct {
	Tx      order.TxManager
	Orders  order.Reader
	Catalog product.Repository
	// Ledger outside any order transaction, for stock adjustments.
	Ledger product.Ledger
	Pinger Pinger

	close func()
}

func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// Open builds the backend selected by cfg.StoreDriver. The postgres driver
// migrates the schema before returning.
func Open(ctx context.Context, cfg config.Config) (*Backend, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		ms := memstore.New()
		log.Printf("[store] memory driver: state is lost on exit, use postgres outside local development")
		if cfg.SeedCatalog {
			for _, p := range Catalog() {
				p := p
				if err := ms.Create(ctx, &p); err != nil {
					return nil, fmt.Errorf("seed memory catalog: %w", err)
				}
			}
			log.Printf("[store] memory catalog seeded")
		}
		return &Backend{Tx: ms, Orders: ms, Catalog: ms, Ledger: ms.Ledger(), Pinger: ms}, nil

	case config.DriverPostgres:
		pool, err := OpenPool(ctx, cfg.PostgresDSN, cfg.DBMaxConns)
		if err != nil {
			return nil, err
		}
		if err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		catalog := product.NewPGRepo(pool)
		if cfg.SeedCatalog {
			seeded, err := Seed(ctx, catalog, pool)
			if err != nil {
				pool.Close()
				return nil, err
			}
			log.Printf("[store] catalog seeded=%t", seeded)
		}
		pg := NewPostgres(pool, cfg.TxTimeout, cfg.LockTimeout)
		return &Backend{
			Tx:      pg,
			Orders:  order.NewPGRepo(pool),
			Catalog: catalog,
			Ledger:  product.NewPGLedger(pool),
			Pinger:  pg,
			close:   pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}
