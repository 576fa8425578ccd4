package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // the Echo web framework handles routing
	"github.com/redis/go-redis/v9"

	"github.com/leolab/lottery-engine/internal/config"
	"github.com/leolab/lottery-engine/internal/handler"
	"github.com/leolab/lottery-engine/internal/middleware"
)

// Register wires every route of the service onto the provided Echo
// instance.  Public draw endpoints sit behind the shared rate limiter;
// administrative cache invalidation requires an admin JWT.
func Register(
	e *echo.Echo,
	cfg config.Config,
	rlCfg config.RateLimitConfig,
	rdb *redis.Client,
	lh *handler.LotteryHandler,
	ah *handler.AdminHandler,
	auth *handler.AuthHandler,
	health *handler.HealthHandler,
) {
	e.GET("/healthz", health.Health)

	e.POST("/v1/auth/login", auth.Login)

	v1 := e.Group("/v1")
	v1.Use(middleware.RateLimit(rlCfg, rdb))
	v1.POST("/draw", lh.Draw)
	v1.POST("/nonce", lh.Nonce)
	v1.GET("/draws/:id/verify", lh.Verify)
	v1.GET("/stats/requesters/:id", lh.Stats)

	admin := e.Group("/v1/admin")
	admin.Use(middleware.AdminAuth(cfg.JWTSecret))
	admin.GET("/rules/:id/stock", ah.RuleStock)
	admin.DELETE("/cache", ah.ClearCache)
	admin.DELETE("/cache/rules", ah.ClearRules)
	admin.DELETE("/cache/prizes", ah.ClearPrizes)
}
