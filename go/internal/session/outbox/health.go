package outbox

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthStatus struct {
	Healthy           bool     `json:"healthy"`
	WorkerRunning     bool     `json:"worker_running"`
	Stats             Stats    `json:"events"`
	NATSConnected     *bool    `json:"nats_connected,omitempty"`
	DatabaseConnected *bool    `json:"database_connected,omitempty"`
	Errors            []string `json:"errors,omitempty"`
}

// HealthChecker reports on the event pipeline and the stores behind it.
// The NATS connection and database are optional.
type HealthChecker struct {
	worker     *Worker
	natsConn   *nats.Conn
	db         Pinger
	maxPending int // queue depth above which the worker counts as stuck
}

func NewHealthChecker(worker *Worker, natsConn *nats.Conn, db Pinger) *HealthChecker {
	return &HealthChecker{
		worker:     worker,
		natsConn:   natsConn,
		db:         db,
		maxPending: worker.config.QueueSize * 3 / 4,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:       true,
		WorkerRunning: h.worker.Running(),
		Stats:         h.worker.Stats(),
	}

	if !status.WorkerRunning {
		status.Healthy = false
		status.Errors = append(status.Errors, "outbox worker not running")
	}
	if h.maxPending > 0 && status.Stats.Pending > h.maxPending {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("%d events pending", status.Stats.Pending))
	}

	if h.natsConn != nil {
		connected := h.natsConn.IsConnected()
		status.NATSConnected = &connected
		if !connected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	if h.db != nil {
		err := h.db.Ping(ctx)
		connected := err == nil
		status.DatabaseConnected = &connected
		if err != nil {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
		}
	}

	return status
}
