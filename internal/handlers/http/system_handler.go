package http

import (
	"context"
	"net/http"
	"time"

	"probewatch/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readinessTimeout = 2 * time.Second

type SystemHandler struct {
	startTime time.Time
	health    *monitoring.HealthChecker
	gatherer  prometheus.Gatherer
	alerts    http.HandlerFunc
}

// NewSystemHandler serves probes, metrics and the alert feed. gatherer and
// alerts may be nil to leave their routes unregistered.
func NewSystemHandler(health *monitoring.HealthChecker, gatherer prometheus.Gatherer, alerts http.HandlerFunc) *SystemHandler {
	return &SystemHandler{
		startTime: time.Now(),
		health:    health,
		gatherer:  gatherer,
		alerts:    alerts,
	}
}

// SetupRoutes registers the system routes. wsMiddleware runs in front of the
// alert feed upgrade.
func (h *SystemHandler) SetupRoutes(router gin.IRouter, metricsPath string, wsMiddleware ...gin.HandlerFunc) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)

	if h.gatherer != nil {
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		router.GET(metricsPath, gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}

	if h.alerts != nil {
		handlers := append(append([]gin.HandlerFunc{}, wsMiddleware...), gin.WrapF(h.alerts))
		router.GET("/ws/alerts", handlers...)
	}
}

func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"uptime":    time.Since(h.startTime).String(),
	})
}

func (h *SystemHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	status := h.health.GetReadinessStatus(ctx)
	if status.Status != monitoring.StatusHealthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":       "not_ready",
			"timestamp":    status.Timestamp,
			"dependencies": status.Checks,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ready",
		"timestamp":    status.Timestamp,
		"dependencies": status.Checks,
	})
}
