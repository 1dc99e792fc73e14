// Package store opens the backing store and runs order transactions on it.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeMC777/pickup-orders/internal/order"
	"github.com/MikeMC777/pickup-orders/internal/product"
)

func OpenPool(ctx context.Context, dsn string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Postgres runs order transactions on a pool.
type Postgres struct {
	pool        *pgxpool.Pool
	txTimeout   time.Duration
	lockTimeout time.Duration
}

func NewPostgres(pool *pgxpool.Pool, txTimeout, lockTimeout time.Duration) *Postgres {
	return &Postgres{pool: pool, txTimeout: txTimeout, lockTimeout: lockTimeout}
}

type pgTx struct{ tx pgx.Tx }

func (t pgTx) Products() product.Ledger   { return product.NewPGLedger(t.tx) }
func (t pgTx) Orders() order.TxRepository { return order.NewPGTxRepo(t.tx) }

// WithinTx detaches from the caller's cancellation: a client hanging up must
// not abort a transaction halfway. The transaction is bounded by txTimeout
// instead, and each lock wait by lockTimeout.
func (p *Postgres) WithinTx(ctx context.Context, op string, fn func(ctx context.Context, tx order.Tx) error) error {
	ctx = context.WithoutCancel(ctx)
	if p.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.txTimeout)
		defer cancel()
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return translate(op, err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if p.lockTimeout > 0 {
		// SET does not take bind parameters
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", p.lockTimeout.Milliseconds())); err != nil {
			return translate(op, err)
		}
	}

	if err := fn(ctx, pgTx{tx: tx}); err != nil {
		return translate(op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return translate(op, err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.pool.Ping(ctx)
}

const (
	codeLockNotAvailable     = "55P03"
	codeDeadlockDetected     = "40P01"
	codeSerializationFailure = "40001"
	codeQueryCanceled        = "57014"
)

// translate turns lock waits, deadlocks, serialization conflicts and
// timeouts into *order.TransactionFailure. Other errors pass through.
func translate(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable, codeDeadlockDetected, codeSerializationFailure, codeQueryCanceled:
			log.Printf("[store] %s aborted sqlstate=%s msg=%s", op, pgErr.Code, pgErr.Message)
			return &order.TransactionFailure{Op: op, Err: err}
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Printf("[store] %s aborted err=%v", op, err)
		return &order.TransactionFailure{Op: op, Err: err}
	}
	return err
}
