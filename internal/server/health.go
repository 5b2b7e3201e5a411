// Package server provides HTTP server utilities including health checks
// and graceful shutdown.
package server

import (
	"context"
	"sync"
	"time"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck represents a single health check result.
type HealthCheck struct {
	Name    string            `json:"name"`
	Status  HealthStatus      `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// HealthReport is the aggregate result of running all checks.
type HealthReport struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Version   string        `json:"version,omitempty"`
	Checks    []HealthCheck `json:"checks,omitempty"`
}

// HealthChecker is a function that performs a health check.
type HealthChecker func(ctx context.Context) HealthCheck

// HealthRegistry aggregates named health checks for the /health endpoint.
type HealthRegistry struct {
	mu      sync.RWMutex
	names   []string // registration order, for stable output
	checks  map[string]HealthChecker
	version string
}

// NewHealthRegistry creates an empty registry.
func NewHealthRegistry(version string) *HealthRegistry {
	return &HealthRegistry{
		checks:  make(map[string]HealthChecker),
		version: version,
	}
}

// Register adds a health check.
func (r *HealthRegistry) Register(name string, checker HealthChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.checks[name]; !ok {
		r.names = append(r.names, name)
	}
	r.checks[name] = checker
}

// Run executes all checks and aggregates their status: any unhealthy
// check makes the report unhealthy, otherwise any degraded check makes
// it degraded.
func (r *HealthRegistry) Run(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	r.mu.RLock()
	names := make([]string, len(r.names))
	copy(names, r.names)
	checks := make(map[string]HealthChecker, len(r.checks))
	for k, v := range r.checks {
		checks[k] = v
	}
	version := r.version
	r.mu.RUnlock()

	report := HealthReport{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   version,
		Checks:    make([]HealthCheck, 0, len(names)),
	}

	for _, name := range names {
		check := checks[name](ctx)
		check.Name = name
		report.Checks = append(report.Checks, check)

		if check.Status == HealthStatusUnhealthy {
			report.Status = HealthStatusUnhealthy
		} else if check.Status == HealthStatusDegraded && report.Status == HealthStatusHealthy {
			report.Status = HealthStatusDegraded
		}
	}

	return report
}

// Common health checkers

// StoreHealthChecker creates a health check for profile store connectivity.
func StoreHealthChecker(checkFn func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		err := checkFn(ctx)
		if err != nil {
			return HealthCheck{
				Status:  HealthStatusUnhealthy,
				Message: "profile store unavailable: " + err.Error(),
			}
		}
		return HealthCheck{
			Status:  HealthStatusHealthy,
			Message: "profile store OK",
		}
	}
}

// EmbedderHealthChecker creates a health check reporting the active
// embedding model. A failing probe degrades the service rather than
// taking it down: stored profiles remain readable without the model.
func EmbedderHealthChecker(modelName string, checkFn func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		if checkFn == nil {
			return HealthCheck{
				Status:  HealthStatusHealthy,
				Message: "embedding model configured: " + modelName,
				Details: map[string]string{"model": modelName},
			}
		}

		err := checkFn(ctx)
		if err != nil {
			return HealthCheck{
				Status:  HealthStatusDegraded,
				Message: "embedding provider degraded: " + err.Error(),
				Details: map[string]string{"model": modelName},
			}
		}
		return HealthCheck{
			Status:  HealthStatusHealthy,
			Message: "embedding provider OK",
			Details: map[string]string{"model": modelName},
		}
	}
}
