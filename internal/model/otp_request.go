package model

import "time"

// Default knobs for the OTP lifecycle. These mirror the values promised
// in the signup email: five attempts, a ten minute expiry window and a
// sixty second cooldown between resends.
const (
    OTPMaxAttempts    = 5
    OTPExpiry         = 10 * time.Minute
    OTPResendCooldown = 60 * time.Second
)

// OTPRequest models one pending signup verification in the
// `otp_requests` table. At most one row exists per email (unique key);
// signing up again replaces the previous row. Only derived hashes are
// stored; neither the password nor the code itself ever reach the
// database.
//
// Fields:
//  ID           – UUID primary key (CHAR(36)).
//  Email        – unique email address the code was sent to.
//  Name         – display name carried over to the account on success.
//  PasswordHash – PBKDF2 hash of the signup password.
//  OTPHash      – PBKDF2 hash of the 6-digit code.
//  AttemptsLeft – remaining verify attempts, counts down from 5.
//  ExpiresAt    – absolute expiry, created_at + 10 minutes.
//  ResendAfter  – earliest time a resend is allowed.
//  CreatedAt    – timestamp of creation.
type OTPRequest struct {
    ID           string    // otp_requests.id
    Email        string    // otp_requests.email
    Name         string    // otp_requests.name
    PasswordHash string    // otp_requests.password_hash
    OTPHash      string    // otp_requests.otp_hash
    AttemptsLeft int       // otp_requests.attempts_left
    ExpiresAt    time.Time // otp_requests.expires_at
    ResendAfter  time.Time // otp_requests.resend_after
    CreatedAt    time.Time // otp_requests.created_at
}
