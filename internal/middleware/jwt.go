package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/slateai/access-control/internal/utils"
)

// JWTAuth returns an Echo middleware that validates a Bearer session
// token and injects the token's identity claims into the request
// context. The provided secret must match the one used when issuing
// tokens. Handlers behind this middleware can read the authenticated
// identity via c.Get("user_id"), c.Get("email") and c.Get("role").
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "UNAUTHORIZED", "message": "missing bearer token"})
            }
            raw := strings.TrimPrefix(auth, "Bearer ")

            claims, err := utils.ParseSessionToken(secret, raw)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "UNAUTHORIZED", "message": "invalid token"})
            }

            c.Set("user_id", claims.UserID)
            c.Set("email", claims.Email)
            c.Set("role", claims.Role)
            return next(c)
        }
    }
}
