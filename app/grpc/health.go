package grpc

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

// HealthReporter mirrors database reachability into the standard gRPC health
// service, both for the server as a whole ("") and for the named service.
type HealthReporter struct {
	server   *health.Server
	db       pinger
	service  string
	interval time.Duration
	timeout  time.Duration
	logger   logrus.FieldLogger
}

func NewHealthReporter(server *health.Server, db pinger, service string, interval time.Duration) *HealthReporter {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &HealthReporter{
		server:   server,
		db:       db,
		service:  service,
		interval: interval,
		timeout:  2 * time.Second,
		logger:   logger.WithField("component", "health"),
	}
}

// Check pings the database once and publishes the result.
func (h *HealthReporter) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := h.db.PingContext(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		h.logger.WithError(err).Warn("health_db_ping_failed")
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(h.service, status)
	return status
}

// Run re-checks on every interval until ctx is done, then marks the server
// as shutting down.
func (h *HealthReporter) Run(ctx context.Context) {
	h.Check(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}
