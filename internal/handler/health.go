package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// HealthHandler probes the two backing stores.  Load balancers and
// monitoring systems call this to verify the service can actually take
// draws, not just that the process is up.
type HealthHandler struct {
	DB  *sql.DB
	RDB *redis.Client
}

func NewHealthHandler(db *sql.DB, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{DB: db, RDB: rdb}
}

// Health reports per-dependency status.  Any failing dependency turns
// the overall response into a 503.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	mysql := "ok"
	if err := h.DB.PingContext(ctx); err != nil {
		mysql = "down"
		status = http.StatusServiceUnavailable
	}
	cache := "ok"
	if h.RDB == nil {
		cache = "down"
		status = http.StatusServiceUnavailable
	} else if err := h.RDB.Ping(ctx).Err(); err != nil {
		cache = "down"
		status = http.StatusServiceUnavailable
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	return c.JSON(status, echo.Map{
		"status": overall,
		"mysql":  mysql,
		"redis":  cache,
	})
}
