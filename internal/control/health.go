package control

import (
	"context"
	"time"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

type ComponentHealth struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status     Status            `json:"status"`
	Components []ComponentHealth `json:"components"`
	Timestamp  time.Time         `json:"timestamp"`
}

type HealthChecker interface {
	Name() string
	Check(ctx context.Context) (Status, string)
}

// StreamHealthChecker reports a closed hub stream as degraded; the bridge
// keeps running and reconnects on its own.
type StreamHealthChecker struct {
	healthFunc func(ctx context.Context) error
}

func NewStreamHealthChecker(healthFunc func(ctx context.Context) error) *StreamHealthChecker {
	return &StreamHealthChecker{healthFunc: healthFunc}
}

func (c *StreamHealthChecker) Name() string {
	return "stream"
}

func (c *StreamHealthChecker) Check(ctx context.Context) (Status, string) {
	if err := c.healthFunc(ctx); err != nil {
		return StatusDegraded, err.Error()
	}
	return StatusHealthy, ""
}

type AuditHealthChecker struct {
	healthFunc func(ctx context.Context) error
}

func NewAuditHealthChecker(healthFunc func(ctx context.Context) error) *AuditHealthChecker {
	return &AuditHealthChecker{healthFunc: healthFunc}
}

func (c *AuditHealthChecker) Name() string {
	return "audit"
}

func (c *AuditHealthChecker) Check(ctx context.Context) (Status, string) {
	if err := c.healthFunc(ctx); err != nil {
		return StatusUnhealthy, err.Error()
	}
	return StatusHealthy, ""
}
