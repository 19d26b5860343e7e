// Package queue defines message payloads exchanged over the message broker
// and the background consumer that records them.
package queue

// UserVerifiedEvent is published when a signup completes OTP
// verification and the account is created. It contains enough
// information for downstream consumers to log, notify, or trigger
// analytics without querying the primary database.
type UserVerifiedEvent struct {
    UserID     string `json:"user_id"`
    Email      string `json:"email"`
    Name       string `json:"name"`
    Role       string `json:"role"`
    VerifiedAt string `json:"verified_at"`
}
