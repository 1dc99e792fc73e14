package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/MikeMC777/pickup-orders/internal/config"
	"github.com/MikeMC777/pickup-orders/internal/events"
	"github.com/MikeMC777/pickup-orders/internal/grpcx"
	"github.com/MikeMC777/pickup-orders/internal/idempotency"
	ord "github.com/MikeMC777/pickup-orders/internal/order"
	"github.com/MikeMC777/pickup-orders/internal/store"
)

// @title        Pickup Orders - Order Service
// @version      1.0
// @description  Order placement with atomic stock reservation and status transitions.
// @BasePath     /
func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer be.Close()

	pub := newPublisher(cfg)
	if c, ok := pub.(interface{ Close() error }); ok {
		defer c.Close()
	}

	var opts []ord.Option
	if cfg.StrictTransitions {
		opts = append(opts, ord.WithPolicy(ord.Strict))
	}
	svc := ord.NewService(be.Tx, be.Orders, pub, opts...)
	guard := idempotency.NewGuard(newIdempotencyStore(ctx, cfg), cfg.IdempotencyTTL)

	httpSrv := &http.Server{
		Addr:              cfg.OrderSvcAddr,
		Handler:           newRouter(svc, guard, be.Pinger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	grpcSrv, hs := grpcx.NewServer()
	reporter := grpcx.NewHealthReporter(hs, be.Pinger, 5*time.Second)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("order-service listening on %s", cfg.OrderSvcAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.OrderGRPCAddr)
		if err != nil {
			return err
		}
		log.Printf("order-service grpc health on %s", cfg.OrderGRPCAddr)
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error { return reporter.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Printf("order-service shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcSrv.GracefulStop()
		return httpSrv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("order-service: %v", err)
	}
}

func newPublisher(cfg config.Config) events.Publisher {
	if cfg.AMQPURL == "" {
		return events.LogPublisher{}
	}
	conn, ch, err := events.DialAMQP(cfg.AMQPURL, 5)
	if err != nil {
		log.Printf("[events] %v, falling back to log publisher", err)
		return events.LogPublisher{}
	}
	return events.NewAMQPPublisher(conn, ch)
}

func newIdempotencyStore(ctx context.Context, cfg config.Config) idempotency.Store {
	if cfg.RedisURL == "" {
		return idempotency.NewMemoryStore()
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("[idempotency] bad REDIS_URL: %v, using memory store", err)
		return idempotency.NewMemoryStore()
	}
	rdb := redis.NewClient(opt)
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		log.Printf("[idempotency] redis ping: %v, using memory store", err)
		_ = rdb.Close()
		return idempotency.NewMemoryStore()
	}
	return idempotency.NewRedisStore(rdb)
}
