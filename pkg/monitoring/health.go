// Package monitoring provides the HTTP health and Prometheus metrics
// surfaces shared by carl/edgar/cleo's administrative endpoints. Adapted
// from the teacher's pkg/monitoring.
package monitoring

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthStatus struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Timestamp int64                  `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type HealthCheck func() CheckResult

type HealthChecker struct {
	service string
	version string
	checks  map[string]HealthCheck
}

func NewHealthChecker(service, version string) *HealthChecker {
	return &HealthChecker{service: service, version: version, checks: make(map[string]HealthCheck)}
}

func (hc *HealthChecker) AddCheck(name string, check HealthCheck) {
	hc.checks[name] = check
}

func (hc *HealthChecker) CheckHealth() HealthStatus {
	status := HealthStatus{Service: hc.service, Version: hc.version, Timestamp: time.Now().Unix(), Checks: make(map[string]CheckResult)}

	anyUnhealthy, anyDegraded := false, false
	for name, check := range hc.checks {
		result := check()
		status.Checks[name] = result
		switch result.Status {
		case StatusDegraded:
			anyDegraded = true
		case StatusHealthy:
		default:
			anyUnhealthy = true
		}
	}

	switch {
	case anyUnhealthy:
		status.Status = StatusUnhealthy
	case anyDegraded:
		status.Status = StatusDegraded
	default:
		status.Status = StatusHealthy
	}
	return status
}

func (hc *HealthChecker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		health := hc.CheckHealth()
		code := http.StatusOK
		if health.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, health)
	}
}

// DatabaseHealthCheck pings db (the lib/pq-backed postgres store's
// connection pool) with a bounded timeout.
func DatabaseHealthCheck(db *sql.DB) HealthCheck {
	return func() CheckResult {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return CheckResult{Status: StatusUnhealthy, Message: fmt.Sprintf("database ping failed: %v", err), Latency: time.Since(start).String()}
		}
		return CheckResult{Status: StatusHealthy, Message: "database connection successful", Latency: time.Since(start).String()}
	}
}

// VpnHealthCheck reports whether the configured VPN backend is reachable.
func VpnHealthCheck(ping func(ctx context.Context) error) HealthCheck {
	return func() CheckResult {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ping(ctx); err != nil {
			return CheckResult{Status: StatusDegraded, Message: fmt.Sprintf("vpn backend unreachable: %v", err), Latency: time.Since(start).String()}
		}
		return CheckResult{Status: StatusHealthy, Message: "vpn backend reachable", Latency: time.Since(start).String()}
	}
}

// ConfigurationHealthCheck fails if any of the named required values is
// empty.
func ConfigurationHealthCheck(configs map[string]string) HealthCheck {
	return func() CheckResult {
		start := time.Now()
		var missing []string
		for key, value := range configs {
			if value == "" {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			return CheckResult{Status: StatusUnhealthy, Message: fmt.Sprintf("missing required configuration: %v", missing), Latency: time.Since(start).String()}
		}
		return CheckResult{Status: StatusHealthy, Message: "all required configuration present", Latency: time.Since(start).String()}
	}
}
