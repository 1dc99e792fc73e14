// Package grpcx serves the standard gRPC health protocol for the order
// service so orchestrators can check it without speaking HTTP.
package grpcx

import (
	"context"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name health checks ask for; "" reports overall health.
const ServiceName = "pickup.orders.v1.OrderService"

type Pinger interface {
	Ping(ctx context.Context) error
}

func NewServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return srv, hs
}

// HealthReporter mirrors store reachability into the health server.
type HealthReporter struct {
	hs       *health.Server
	store    Pinger
	interval time.Duration
	last     healthpb.HealthCheckResponse_ServingStatus
}

func NewHealthReporter(hs *health.Server, store Pinger, interval time.Duration) *HealthReporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &HealthReporter{hs: hs, store: store, interval: interval}
}

// Check pings once and publishes the result.
func (r *HealthReporter) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if err := r.store.Ping(ctx); err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		if r.last != st {
			log.Printf("[grpc] health NOT_SERVING err=%v", err)
		}
	}
	if r.last != st && st == healthpb.HealthCheckResponse_SERVING {
		log.Printf("[grpc] health SERVING")
	}
	r.last = st
	r.hs.SetServingStatus("", st)
	r.hs.SetServingStatus(ServiceName, st)
	return st
}

// Run checks every interval until ctx is done, then marks the server as
// shutting down.
func (r *HealthReporter) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	r.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			r.hs.Shutdown()
			return nil
		case <-t.C:
			r.Check(ctx)
		}
	}
}
