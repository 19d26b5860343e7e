// Package service implements the account-activation core: the OTP
// issuance/verification state machine and the password login path.
// Per email the lifecycle is
//
//	NoRequest -> Issued -> Verified | Expired | Locked
//
// where Issued loops back to itself on resend. Operations return typed
// errors rather than leaking row presence, so callers reason about
// states instead of storage.
package service

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "math"
    "strings"
    "time"

    "github.com/slateai/access-control/internal/audit"
    "github.com/slateai/access-control/internal/mailer"
    "github.com/slateai/access-control/internal/model"
    "github.com/slateai/access-control/internal/repository"
    "github.com/slateai/access-control/internal/utils"
)

// UserStore is the slice of the user repository the service needs.
type UserStore interface {
    Create(ctx context.Context, u *model.User) error
    GetActiveByEmail(ctx context.Context, email string) (model.User, error)
    UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// OTPStore is the slice of the OTP request repository the service
// needs. Implementations must make FailAttempt and ResetForResend
// atomic read-modify-writes; see the MySQL implementation.
type OTPStore interface {
    Get(ctx context.Context, email string) (model.OTPRequest, error)
    Replace(ctx context.Context, req *model.OTPRequest) error
    Delete(ctx context.Context, email string) error
    FailAttempt(ctx context.Context, email, otpHash string, now time.Time) (int, error)
    ResetForResend(ctx context.Context, email, otpHash string, resendAfter time.Time) error
}

// Meta carries request attribution for the audit trail.
type Meta struct {
    IP        string
    UserAgent string
}

// Auth orchestrates OTP issuance, verification and login against the
// stores, the credential hasher, the mailer and the audit chain.
type Auth struct {
    Users  UserStore
    OTPs   OTPStore
    Mailer mailer.Mailer
    Audit  audit.Recorder

    now func() time.Time // overridable in tests
}

// NewAuth wires an Auth service with the real clock.
func NewAuth(users UserStore, otps OTPStore, m mailer.Mailer, rec audit.Recorder) *Auth {
    return &Auth{Users: users, OTPs: otps, Mailer: m, Audit: rec, now: func() time.Time { return time.Now().UTC() }}
}

// Issue starts a signup: validates input, rejects active duplicates,
// replaces any pending request for the email with a fresh one and
// dispatches the code. Insertion and dispatch act as a unit from the
// caller's view: a failed dispatch deletes the pending row so no
// undeliverable request stays live. Returns the resend cooldown in
// seconds.
func (s *Auth) Issue(ctx context.Context, meta Meta, name, email, password string) (int, error) {
    name = strings.TrimSpace(name)
    email = normalizeEmail(email)
    if name == "" || email == "" || password == "" {
        return 0, ErrMissingFields
    }
    if len(password) < 8 {
        return 0, ErrPasswordTooShort
    }

    existing, err := s.Users.GetActiveByEmail(ctx, email)
    if err == nil && existing.Status == model.StatusActive {
        s.record(ctx, meta, "signup_initiated", nil, email, false,
            map[string]any{"reason": "already_registered"})
        return 0, ErrAlreadyRegistered
    }
    if err != nil && !errors.Is(err, sql.ErrNoRows) {
        return 0, err
    }

    otp, err := utils.NewOTP()
    if err != nil {
        return 0, err
    }
    otpHash, err := utils.HashSecret(otp)
    if err != nil {
        return 0, err
    }
    passwordHash, err := utils.HashSecret(password)
    if err != nil {
        return 0, err
    }

    now := s.now()
    req := &model.OTPRequest{
        Email:        email,
        Name:         name,
        PasswordHash: passwordHash,
        OTPHash:      otpHash,
        AttemptsLeft: model.OTPMaxAttempts,
        ExpiresAt:    now.Add(model.OTPExpiry),
        ResendAfter:  now.Add(model.OTPResendCooldown),
        CreatedAt:    now,
    }
    if err := s.OTPs.Replace(ctx, req); err != nil {
        return 0, err
    }
    if err := s.Mailer.SendOTP(ctx, email, name, otp); err != nil {
        // Leave no live request the user cannot complete.
        _ = s.OTPs.Delete(ctx, email)
        s.record(ctx, meta, "signup_initiated", nil, email, false,
            map[string]any{"reason": "email_dispatch_failed"})
        return 0, err
    }

    cooldown := int(model.OTPResendCooldown.Seconds())
    s.record(ctx, meta, "signup_initiated", nil, email, true,
        map[string]any{"resend_after_seconds": cooldown})
    return cooldown, nil
}

// Resend reissues the code for a pending request. Expiry is checked
// before the cooldown; a lapsed request is deleted and reported as
// expired. A successful resend always restores the full attempt budget,
// deliberately forgiving earlier failures. Returns the new cooldown in
// seconds.
func (s *Auth) Resend(ctx context.Context, meta Meta, email string) (int, error) {
    email = normalizeEmail(email)
    if email == "" {
        return 0, ErrMissingFields
    }

    req, err := s.OTPs.Get(ctx, email)
    if errors.Is(err, sql.ErrNoRows) {
        return 0, ErrNoRequest
    }
    if err != nil {
        return 0, err
    }

    now := s.now()
    if now.After(req.ExpiresAt) {
        _ = s.OTPs.Delete(ctx, email)
        s.record(ctx, meta, "otp_resent", nil, email, false,
            map[string]any{"reason": "expired"})
        return 0, ErrExpired
    }
    if now.Before(req.ResendAfter) {
        retry := int(math.Ceil(req.ResendAfter.Sub(now).Seconds()))
        return 0, &RateLimitedError{RetryAfter: retry}
    }

    otp, err := utils.NewOTP()
    if err != nil {
        return 0, err
    }
    otpHash, err := utils.HashSecret(otp)
    if err != nil {
        return 0, err
    }
    if err := s.OTPs.ResetForResend(ctx, email, otpHash, now.Add(model.OTPResendCooldown)); err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return 0, ErrNoRequest
        }
        return 0, err
    }
    if err := s.Mailer.SendOTP(ctx, email, req.Name, otp); err != nil {
        s.record(ctx, meta, "otp_resent", nil, email, false,
            map[string]any{"reason": "email_dispatch_failed"})
        return 0, err
    }

    cooldown := int(model.OTPResendCooldown.Seconds())
    s.record(ctx, meta, "otp_resent", nil, email, true,
        map[string]any{"resend_after_seconds": cooldown})
    return cooldown, nil
}

// Verify checks a candidate code against the pending request. The
// expiry check always precedes the attempt check, so a request that is
// both expired and out of attempts reads as expired. A wrong code burns
// one attempt through FailAttempt, which re-evaluates expiry, hash
// identity and the lock under the same row lock as the decrement; the
// row stays even at zero, and the next access returns Locked. On a match
// the account is created with the base role, the request is consumed
// and the new user returned for token issuance.
func (s *Auth) Verify(ctx context.Context, meta Meta, email, otp string) (*model.User, error) {
    email = normalizeEmail(email)
    if email == "" || otp == "" {
        return nil, ErrMissingFields
    }

    req, err := s.OTPs.Get(ctx, email)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNoRequest
    }
    if err != nil {
        return nil, err
    }

    now := s.now()
    if now.After(req.ExpiresAt) {
        _ = s.OTPs.Delete(ctx, email)
        s.record(ctx, meta, "otp_verify_failed", nil, email, false,
            map[string]any{"reason": "expired"})
        return nil, ErrExpired
    }
    if req.AttemptsLeft <= 0 {
        s.record(ctx, meta, "otp_verify_failed", nil, email, false,
            map[string]any{"reason": "locked"})
        return nil, ErrLocked
    }

    if !utils.VerifySecret(otp, req.OTPHash) {
        left, err := s.OTPs.FailAttempt(ctx, email, req.OTPHash, now)
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrNoRequest
        }
        if errors.Is(err, repository.ErrRequestExpired) {
            // The request lapsed between the read above and the locked
            // decrement.
            _ = s.OTPs.Delete(ctx, email)
            s.record(ctx, meta, "otp_verify_failed", nil, email, false,
                map[string]any{"reason": "expired"})
            return nil, ErrExpired
        }
        if errors.Is(err, repository.ErrStaleRequest) {
            // A concurrent resend or re-signup replaced the code; the
            // guess was checked against the old hash and must not debit
            // the fresh budget.
            s.record(ctx, meta, "otp_verify_failed", nil, email, false,
                map[string]any{"reason": "invalid_otp", "attempts_left": left})
            return nil, &InvalidOTPError{AttemptsLeft: left}
        }
        if errors.Is(err, repository.ErrNoAttempts) {
            // A concurrent guess spent the final attempt first.
            return nil, ErrLocked
        }
        if err != nil {
            return nil, err
        }
        s.record(ctx, meta, "otp_verify_failed", nil, email, false,
            map[string]any{"reason": "invalid_otp", "attempts_left": left})
        return nil, &InvalidOTPError{AttemptsLeft: left}
    }

    user := &model.User{
        Email:        req.Email,
        Name:         req.Name,
        PasswordHash: req.PasswordHash,
        Role:         model.RoleUser,
        Status:       model.StatusActive,
        LastLoginAt:  &now,
    }
    if err := s.Users.Create(ctx, user); err != nil {
        if errors.Is(err, repository.ErrEmailExists) {
            // A racing verify already consumed this request.
            _ = s.OTPs.Delete(ctx, email)
            return nil, ErrAlreadyRegistered
        }
        return nil, err
    }
    _ = s.OTPs.Delete(ctx, email)

    s.record(ctx, meta, "user_verified", user, email, true, nil)
    return user, nil
}

// Login authenticates an existing account and stamps last_login_at.
// Unknown emails, wrong passwords, inactive accounts and SSO-only
// accounts are distinguished internally but all audit as login_failed.
func (s *Auth) Login(ctx context.Context, meta Meta, email, password string) (*model.User, error) {
    email = normalizeEmail(email)
    if email == "" || password == "" {
        return nil, ErrMissingFields
    }

    user, err := s.Users.GetActiveByEmail(ctx, email)
    if errors.Is(err, sql.ErrNoRows) {
        s.record(ctx, meta, "login_failed", nil, email, false,
            map[string]any{"reason": "unknown_email"})
        return nil, ErrInvalidCreds
    }
    if err != nil {
        return nil, err
    }
    if user.Status != model.StatusActive {
        s.record(ctx, meta, "login_failed", nil, email, false,
            map[string]any{"reason": "inactive"})
        return nil, ErrAccountInactive
    }
    if user.PasswordHash == "" {
        s.record(ctx, meta, "login_failed", nil, email, false,
            map[string]any{"reason": "sso_only"})
        return nil, ErrSSOOnly
    }
    if !utils.VerifySecret(password, user.PasswordHash) {
        s.record(ctx, meta, "login_failed", nil, email, false,
            map[string]any{"reason": "wrong_password"})
        return nil, ErrInvalidCreds
    }

    now := s.now()
    if err := s.Users.UpdateLastLogin(ctx, user.ID, now); err != nil {
        return nil, err
    }
    user.LastLoginAt = &now

    s.record(ctx, meta, "login_success", &user, email, true, nil)
    return &user, nil
}

// record writes one audit entry for a security event. Failures inside
// the recorder are logged there and never surface here.
func (s *Auth) record(ctx context.Context, meta Meta, action string, actor *model.User, email string, success bool, details map[string]any) {
    e := audit.Entry{
        Module:  "auth",
        Action:  action,
        Success: success,
    }
    if actor != nil {
        e.ActorID = &actor.ID
        e.ActorEmail = &actor.Email
        e.ActorRole = &actor.Role
    }
    targetType := "email"
    e.TargetType = &targetType
    e.TargetID = &email
    if details != nil {
        if raw, err := json.Marshal(details); err == nil {
            e.Details = raw
        }
    }
    if meta.IP != "" {
        ip := meta.IP
        e.IPAddress = &ip
    }
    if meta.UserAgent != "" {
        ua := meta.UserAgent
        e.UserAgent = &ua
    }
    s.Audit.Record(ctx, e)
}

func normalizeEmail(email string) string {
    return strings.ToLower(strings.TrimSpace(email))
}
