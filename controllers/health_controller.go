package controllers

import (
	"context"
	"net/http"
	"time"

	"haven/utils"

	"github.com/gin-gonic/gin"
)

const Version = "1.0.0"

// Pinger is anything whose reachability belongs in the health report.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthController struct {
	startedAt time.Time
	checks    map[string]Pinger
	sessions  func() int
}

func NewHealthController(checks map[string]Pinger, sessions func() int) *HealthController {
	return &HealthController{
		startedAt: time.Now(),
		checks:    checks,
		sessions:  sessions,
	}
}

// Health pings every dependency; any failure reports 503.
func (hc *HealthController) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	services := make(map[string]string, len(hc.checks))
	for name, check := range hc.checks {
		if err := check.Ping(ctx); err != nil {
			services[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		services[name] = "healthy"
	}

	c.JSON(status, gin.H{
		"health":         utils.HealthCheckResponse(services, Version, time.Since(hc.startedAt).Round(time.Second).String()),
		"activeSessions": hc.sessions(),
	})
}
