package main // Entry point package

import (
    "log"

    "github.com/joho/godotenv"
    "github.com/labstack/echo/v4"

    "github.com/slateai/access-control/internal/audit"
    "github.com/slateai/access-control/internal/config"
    "github.com/slateai/access-control/internal/database"
    "github.com/slateai/access-control/internal/handler"
    "github.com/slateai/access-control/internal/mailer"
    "github.com/slateai/access-control/internal/queue"
    "github.com/slateai/access-control/internal/repository"
    "github.com/slateai/access-control/internal/router"
    "github.com/slateai/access-control/internal/service"
)

func main() {
    // Load .env if present; real deployments set the environment directly.
    _ = godotenv.Load()

    cfg := config.Load()

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        log.Fatalf("database: %v", err)
    }

    users := repository.NewUserRepo(db)
    otps := repository.NewOTPRepo(db)
    auditWriter := audit.NewWriter(db)
    mail := mailer.NewSMTP2GOMailer(cfg.SMTPKey, cfg.SMTPFrom)
    auth := service.NewAuth(users, otps, mail, auditWriter)

    rdb := config.NewRedisClient()
    if rdb == nil {
        log.Printf("redis unavailable, rate limiting disabled")
    }

    e := echo.New()
    router.RegisterRoutes(e)
    router.RegisterAuth(e, handler.NewAuthHandler(cfg, auth), config.LoadRateLimitConfig(), rdb)
    router.RegisterAudit(e, handler.NewAuditHandler(auditWriter), cfg.JWTSecret)

    // Background consumer for user.verified events; reconnects on its own.
    go func() {
        if err := queue.StartUserVerifiedConsumer(); err != nil {
            log.Printf("signup-consumer: %v", err)
        }
    }()

    addr := ":" + cfg.Port
    log.Printf("listening on %s (env=%s)", addr, cfg.Env)

    if err := e.Start(addr); err != nil {
        log.Fatal(err)
    }
}
