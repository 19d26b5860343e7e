package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/slateai/access-control/internal/config"
    "github.com/slateai/access-control/internal/handler"
    "github.com/slateai/access-control/internal/middleware"
    "github.com/slateai/access-control/internal/model"
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance. Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
    e.GET("/healthz", handler.Health)
}

// RegisterAuth wires the activation and login endpoints. All four are
// unauthenticated by nature (they exist to establish identity) and sit
// behind the distributed per-IP rate limiter when Redis is available.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, rlCfg config.RateLimitConfig, rdb *redis.Client) {
    limited := middleware.NewTokenBucket(rlCfg, rdb)

    e.POST("/otp/issue", a.IssueOTP, limited)
    e.POST("/otp/resend", a.ResendOTP, limited)
    e.POST("/otp/verify", a.VerifyOTP, limited)
    e.POST("/login", a.Login, limited)
}

// RegisterAudit exposes the audit-chain verification endpoint to
// administrators. It requires a valid session token carrying one of the
// admin roles.
func RegisterAudit(e *echo.Echo, h *handler.AuditHandler, jwtSecret string) {
    g := e.Group("/v1/audit")
    g.Use(middleware.JWTAuth(jwtSecret))
    g.Use(middleware.RequireRole(model.RoleSystemAdmin, model.RoleAdmin))
    g.GET("/verify", h.VerifyChain)
}
