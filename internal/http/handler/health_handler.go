package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports liveness of the service and its stores.
type HealthHandler struct {
	Pool  *pgxpool.Pool
	Redis redis.UniversalClient
}

// NewHealthHandler creates the health endpoint handler.
func NewHealthHandler(pool *pgxpool.Pool, client redis.UniversalClient) *HealthHandler {
	return &HealthHandler{Pool: pool, Redis: client}
}

// Healthz pings both stores. An unreachable database fails the check; an
// unreachable redis only degrades it, since the state store falls back to
// process-local storage.
func (h *HealthHandler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{"status": "ok"}

	if h.Pool != nil {
		if err := h.Pool.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unavailable"
			body["database"] = "unreachable"
		}
	}
	if h.Redis != nil {
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			if status == http.StatusOK {
				body["status"] = "degraded"
			}
			body["redis"] = "unreachable"
		}
	}

	c.JSON(status, body)
}
