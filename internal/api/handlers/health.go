package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/optionscope/internal/services"
	"github.com/irfndi/optionscope/pkg/interfaces"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	statusHealthy   = "healthy"
	statusDisabled  = "disabled"
	statusUnhealthy = "unhealthy"

	healthCheckTimeout = 5 * time.Second
)

var startTime = time.Now()

// HealthChecker is implemented by the optional backing stores.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type HealthHandler struct {
	pricing interfaces.PricingHealthChecker
	breaker *services.CircuitBreaker
	db      HealthChecker
	redis   HealthChecker
	version string
}

type SystemStats struct {
	Goroutines        int     `json:"goroutines"`
	MemoryUsedPercent float64 `json:"memory_used_percent,omitempty"`
	CPUPercent        float64 `json:"cpu_percent,omitempty"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	System    SystemStats       `json:"system"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
}

// NewHealthHandler creates a health handler. db and redis may be nil when
// the deployment runs without them.
func NewHealthHandler(pricing interfaces.PricingHealthChecker, breaker *services.CircuitBreaker, db, redis HealthChecker, version string) *HealthHandler {
	return &HealthHandler{
		pricing: pricing,
		breaker: breaker,
		db:      db,
		redis:   redis,
		version: version,
	}
}

func (h *HealthHandler) checkServices(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	deps := make(map[string]string)
	healthy := true

	check := func(name string, checker func(context.Context) error) {
		if err := checker(ctx); err != nil {
			deps[name] = statusUnhealthy + ": " + err.Error()
			healthy = false
			return
		}
		deps[name] = statusHealthy
	}

	if h.pricing != nil {
		check("pricing", h.pricing.Ping)
	} else {
		deps["pricing"] = statusUnhealthy + ": not configured"
		healthy = false
	}

	if h.breaker != nil {
		state := h.breaker.GetState().String()
		deps["circuit_breaker"] = state
		if h.breaker.IsOpen() {
			healthy = false
		}
	}

	if h.db != nil {
		check("database", h.db.HealthCheck)
	} else {
		deps["database"] = statusDisabled
	}

	if h.redis != nil {
		check("redis", h.redis.HealthCheck)
	} else {
		deps["redis"] = statusDisabled
	}

	return deps, healthy
}

// HealthCheck reports every dependency and answers 503 when one is down.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	deps, healthy := h.checkServices(c.Request.Context())

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Services:  deps,
		System:    systemStats(c.Request.Context()),
		Version:   h.version,
		Uptime:    time.Since(startTime).String(),
	})
}

// ReadinessCheck answers 200 only when every configured dependency is up.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	deps, healthy := h.checkServices(c.Request.Context())
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"ready":    healthy,
		"services": deps,
	})
}

// LivenessCheck only proves the process serves requests.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// systemStats samples host load. Failures leave the fields empty.
func systemStats(ctx context.Context) SystemStats {
	stats := SystemStats{Goroutines: runtime.NumGoroutine()}
	if memInfo, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemoryUsedPercent = memInfo.UsedPercent
	}
	// Zero interval compares against the previous call instead of blocking.
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		stats.CPUPercent = percents[0]
	}
	return stats
}
