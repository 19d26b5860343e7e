// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services to distinguish between different failure scenarios without
// parsing driver error strings.
package repository

import "errors"

// ErrEmailExists is returned when an insert collides with the unique
// email index on the users table.
var ErrEmailExists = errors.New("email already exists")

// ErrNoAttempts is returned by FailAttempt when the pending request has
// no attempts left, meaning a concurrent failure already consumed the
// final one. Callers should report the request as locked.
var ErrNoAttempts = errors.New("no attempts left")

// ErrRequestExpired is returned by FailAttempt when the row lapsed
// before the decrement could be applied.
var ErrRequestExpired = errors.New("otp request expired")

// ErrStaleRequest is returned by FailAttempt when the stored code hash
// no longer matches the one the guess was evaluated against, meaning a
// concurrent resend or re-signup replaced the request mid-flight. The
// obsolete guess must not debit the new budget.
var ErrStaleRequest = errors.New("otp request replaced")
