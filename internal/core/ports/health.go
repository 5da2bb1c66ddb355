package ports

import (
	"context"
	"time"
)

// HealthChecker checks one backing dependency of the ledger.
type HealthChecker interface {
	// Name is the key the dependency is reported under.
	Name() string
	// Ping returns nil when the dependency can serve money movement.
	Ping(ctx context.Context) error
}

const (
	HealthStatusUp   = "healthy"
	HealthStatusDown = "unhealthy"
)

// DependencyHealth is the outcome of a single check.
type DependencyHealth struct {
	Status  string        `json:"status"`
	Latency time.Duration `json:"-"`
	Error   string        `json:"error,omitempty"`
}
