package handler

import (
    "context"
    "errors"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/slateai/access-control/internal/config"
    "github.com/slateai/access-control/internal/model"
    "github.com/slateai/access-control/internal/queue"
    "github.com/slateai/access-control/internal/service"
    "github.com/slateai/access-control/internal/utils"
)

// AuthHandler bundles dependencies for the activation and login endpoints.
type AuthHandler struct {
    Cfg  config.Config
    Auth *service.Auth
}

func NewAuthHandler(cfg config.Config, auth *service.Auth) *AuthHandler {
    return &AuthHandler{Cfg: cfg, Auth: auth}
}

// ----- DTOs -----

type issueReq struct {
    Name     string `json:"name"`
    Email    string `json:"email"`
    Password string `json:"password"`
}
type resendReq struct {
    Email string `json:"email"`
}
type verifyReq struct {
    Email string `json:"email"`
    OTP   string `json:"otp"`
}
type loginReq struct {
    Email    string `json:"email"`
    Password string `json:"password"`
}

type userPart struct {
    ID    string `json:"id"`
    Name  string `json:"name"`
    Email string `json:"email"`
    Role  string `json:"role"`
}
type sessionResp struct {
    Success    bool     `json:"success"`
    Token      string   `json:"token"`
    User       userPart `json:"user"`
    RedirectTo string   `json:"redirectTo"`
}

// IssueOTP: validate signup input, create the pending request, send the code.
func (h *AuthHandler) IssueOTP(c echo.Context) error {
    var req issueReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "VALIDATION_ERROR", "message": "invalid body"})
    }

    ctx, cancel := requestCtx(c)
    defer cancel()

    cooldown, err := h.Auth.Issue(ctx, meta(c), req.Name, req.Email, req.Password)
    if err != nil {
        return h.writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "success":              true,
        "message":              "OTP sent successfully",
        "resend_after_seconds": cooldown,
    })
}

// ResendOTP: reissue the code for a pending request, honoring the cooldown.
func (h *AuthHandler) ResendOTP(c echo.Context) error {
    var req resendReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "VALIDATION_ERROR", "message": "invalid body"})
    }

    ctx, cancel := requestCtx(c)
    defer cancel()

    cooldown, err := h.Auth.Resend(ctx, meta(c), req.Email)
    if err != nil {
        return h.writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "success":              true,
        "message":              "New OTP sent successfully",
        "resend_after_seconds": cooldown,
    })
}

// VerifyOTP: check the code, create the account and mint a session token.
func (h *AuthHandler) VerifyOTP(c echo.Context) error {
    var req verifyReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "VALIDATION_ERROR", "message": "invalid body"})
    }

    ctx, cancel := requestCtx(c)
    defer cancel()

    user, err := h.Auth.Verify(ctx, meta(c), req.Email, req.OTP)
    if err != nil {
        return h.writeError(c, err)
    }

    // Best-effort fanout off the request path: amqp.Dial opens a fresh
    // broker connection and does not honor the request context, so a
    // slow or down broker must never delay the signup response.
    ev := queue.UserVerifiedEvent{
        UserID:     user.ID,
        Email:      user.Email,
        Name:       user.Name,
        Role:       user.Role,
        VerifiedAt: time.Now().UTC().Format(time.RFC3339),
    }
    go func() {
        pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        _ = queue.PublishUserVerified(pubCtx, ev)
    }()

    return h.session(c, user)
}

// Login: verify credentials and mint a session token.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "VALIDATION_ERROR", "message": "invalid body"})
    }

    ctx, cancel := requestCtx(c)
    defer cancel()

    user, err := h.Auth.Login(ctx, meta(c), req.Email, req.Password)
    if err != nil {
        return h.writeError(c, err)
    }
    return h.session(c, user)
}

// session mints the 7-day token and writes the shared success shape.
func (h *AuthHandler) session(c echo.Context, user *model.User) error {
    token, err := utils.NewSessionToken(h.Cfg.JWTSecret, user.ID, user.Email, user.Role)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "INTERNAL_ERROR", "message": "issue token failed"})
    }
    return c.JSON(http.StatusOK, sessionResp{
        Success:    true,
        Token:      token,
        User:       userPart{ID: user.ID, Name: user.Name, Email: user.Email, Role: user.Role},
        RedirectTo: "/dashboard",
    })
}

// writeError maps lifecycle errors onto the wire contract. Storage and
// dispatch failures surface as a retryable 500 with no internals leaked.
func (h *AuthHandler) writeError(c echo.Context, err error) error {
    var invalid *service.InvalidOTPError
    if errors.As(err, &invalid) {
        return c.JSON(http.StatusBadRequest, echo.Map{
            "error":         "INVALID_OTP",
            "message":       "Invalid OTP code",
            "attempts_left": invalid.AttemptsLeft,
        })
    }
    var limited *service.RateLimitedError
    if errors.As(err, &limited) {
        return c.JSON(http.StatusTooManyRequests, echo.Map{
            "error":       "RATE_LIMITED",
            "retry_after": limited.RetryAfter,
            "message":     "Please wait before requesting a new code",
        })
    }

    switch {
    case errors.Is(err, service.ErrMissingFields),
        errors.Is(err, service.ErrPasswordTooShort):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "VALIDATION_ERROR", "message": err.Error()})
    case errors.Is(err, service.ErrAlreadyRegistered):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "ALREADY_REGISTERED", "message": "Email already registered. Please login instead."})
    case errors.Is(err, service.ErrNoRequest):
        // The client cannot act differently on "missing" vs "lapsed",
        // both mean restarting the signup flow.
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "OTP_EXPIRED", "message": "OTP not found or expired"})
    case errors.Is(err, service.ErrExpired):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "OTP_EXPIRED", "message": "OTP has expired"})
    case errors.Is(err, service.ErrLocked):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "OTP_LOCKED", "message": "Too many failed attempts"})
    case errors.Is(err, service.ErrInvalidCreds):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "INVALID_CREDENTIALS", "message": "Invalid email or password"})
    case errors.Is(err, service.ErrAccountInactive):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "ACCOUNT_INACTIVE", "message": "Account is inactive. Please contact support."})
    case errors.Is(err, service.ErrSSOOnly):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "SSO_ONLY", "message": "Please use SSO to login"})
    default:
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "INTERNAL_ERROR", "message": "Internal server error"})
    }
}

// requestCtx bounds every storage and dispatch call made on behalf of a
// request so a slow backend cannot hang a worker.
func requestCtx(c echo.Context) (context.Context, context.CancelFunc) {
    return context.WithTimeout(c.Request().Context(), 15*time.Second)
}

// meta captures request attribution for the audit trail.
func meta(c echo.Context) service.Meta {
    return service.Meta{IP: c.RealIP(), UserAgent: c.Request().UserAgent()}
}
