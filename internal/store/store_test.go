package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/pickup-orders/internal/config"
	"github.com/MikeMC777/pickup-orders/internal/order"
	"github.com/MikeMC777/pickup-orders/internal/product"
)

func TestTranslate(t *testing.T) {
	for _, code := range []string{codeLockNotAvailable, codeDeadlockDetected, codeSerializationFailure, codeQueryCanceled} {
		err := translate("place order", fmt.Errorf("deduct: %w", &pgconn.PgError{Code: code}))
		var tf *order.TransactionFailure
		require.ErrorAs(t, err, &tf, code)
		assert.Equal(t, "place order", tf.Op)
	}

	unique := &pgconn.PgError{Code: "23505"}
	assert.Same(t, unique, translate("x", unique))

	var tf *order.TransactionFailure
	require.ErrorAs(t, translate("x", context.DeadlineExceeded), &tf)

	stock := &product.InsufficientStockError{ProductID: "p", Requested: 1}
	assert.Same(t, stock, translate("x", stock))

	plain := errors.New("plain")
	assert.Same(t, plain, translate("x", plain))
}

func TestOpen_MemoryDriver(t *testing.T) {
	ctx := context.Background()
	be, err := Open(ctx, config.Config{StoreDriver: config.DriverMemory, SeedCatalog: true})
	require.NoError(t, err)
	defer be.Close()

	list, err := be.Catalog.List(ctx, product.Query{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, list, len(Catalog()))
	require.NoError(t, be.Pinger.Ping(ctx))

	stock, err := be.Ledger.Adjust(ctx, list[0].ID, 1)
	require.NoError(t, err)
	assert.Equal(t, list[0].Stock+1, stock)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.Config{StoreDriver: "sqlite"})
	assert.Error(t, err)
}
