package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/apishield/internal/domain/service"
	"github.com/turtacn/apishield/pkg/logger"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	checks map[string]service.Pinger
	log    logger.Logger
}

// NewHealthHandler creates a HealthHandler. Dependencies that do not
// implement service.Pinger are skipped.
func NewHealthHandler(deps map[string]interface{}, log logger.Logger) *HealthHandler {
	checks := make(map[string]service.Pinger, len(deps))
	for name, dep := range deps {
		if p, ok := dep.(service.Pinger); ok {
			checks[name] = p
		}
	}
	return &HealthHandler{checks: checks, log: log.WithComponent("health_handler")}
}

// HealthCheck godoc
// @Summary      Health Check
// @Description  Pings the shield storage and other dependencies.
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	checks := h.performChecks(c.Request.Context())

	status, httpStatus := "healthy", http.StatusOK
	for _, checkStatus := range checks {
		if checkStatus != "ok" {
			status, httpStatus = "unhealthy", http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

// LivenessCheck reports that the process is serving.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (h *HealthHandler) performChecks(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	var mu sync.Mutex
	results := make(map[string]string, len(h.checks))

	var g errgroup.Group
	for name, p := range h.checks {
		name, p := name, p
		g.Go(func() error {
			status := "ok"
			if err := p.Ping(ctx); err != nil {
				status = "error: " + err.Error()
				h.log.Warn(ctx, "Health check failed", logger.String("dependency", name), logger.String("error", err.Error()))
			}
			mu.Lock()
			results[name] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
