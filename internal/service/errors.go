package service

import (
    "errors"
    "fmt"
)

// Lifecycle errors returned by the OTP and login operations. Handlers
// map these onto the HTTP wire contract; nothing below ever carries an
// internal identifier or a secret.
var (
    ErrMissingFields     = errors.New("name, email, and password are required")
    ErrPasswordTooShort  = errors.New("password must be at least 8 characters")
    ErrAlreadyRegistered = errors.New("email already registered")
    ErrNoRequest         = errors.New("no pending OTP request")
    ErrExpired           = errors.New("OTP has expired")
    ErrLocked            = errors.New("too many failed attempts")
    ErrInvalidCreds      = errors.New("invalid email or password")
    ErrAccountInactive   = errors.New("account is inactive")
    ErrSSOOnly           = errors.New("account has no password, use SSO")
)

// InvalidOTPError reports a wrong code together with the attempt budget
// left after the failed guess. The budget can reach zero here; the
// request only reads as locked on the next access.
type InvalidOTPError struct {
    AttemptsLeft int
}

func (e *InvalidOTPError) Error() string {
    return fmt.Sprintf("invalid OTP code, %d attempts left", e.AttemptsLeft)
}

// RateLimitedError reports a resend inside the cooldown window and how
// many seconds remain before the next one is allowed.
type RateLimitedError struct {
    RetryAfter int
}

func (e *RateLimitedError) Error() string {
    return fmt.Sprintf("rate limited, retry after %d seconds", e.RetryAfter)
}
