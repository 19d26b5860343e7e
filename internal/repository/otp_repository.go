package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/google/uuid"

    "github.com/slateai/access-control/internal/model"
)

// OTPRepo provides data access to the `otp_requests` table. The table
// holds at most one pending request per email (unique key on email).
// Counter mutations run inside transactions with row locks so that two
// workers racing on the same email cannot observe and write stale
// state. All timestamps are UTC.
type OTPRepo struct{ db *sql.DB }

// NewOTPRepo returns an OTPRepo bound to the given database.
func NewOTPRepo(db *sql.DB) *OTPRepo { return &OTPRepo{db: db} }

// Get fetches the pending request for an email, sql.ErrNoRows when none.
func (r *OTPRepo) Get(ctx context.Context, email string) (model.OTPRequest, error) {
    var req model.OTPRequest
    err := r.db.QueryRowContext(ctx,
        `SELECT id, email, name, password_hash, otp_hash, attempts_left, expires_at, resend_after, created_at
         FROM otp_requests WHERE email = ? LIMIT 1`,
        email).Scan(&req.ID, &req.Email, &req.Name, &req.PasswordHash, &req.OTPHash,
        &req.AttemptsLeft, &req.ExpiresAt, &req.ResendAfter, &req.CreatedAt)
    return req, err
}

// Replace deletes any prior request for the email and inserts the new
// one inside a single transaction, preserving the one-row-per-email
// invariant even when two signups race.
func (r *OTPRepo) Replace(ctx context.Context, req *model.OTPRequest) error {
    if req.ID == "" {
        req.ID = uuid.NewString()
    }
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    defer func() { _ = tx.Rollback() }()

    if _, err = tx.ExecContext(ctx,
        `DELETE FROM otp_requests WHERE email = ?`, req.Email); err != nil {
        return err
    }
    if _, err = tx.ExecContext(ctx,
        `INSERT INTO otp_requests
         (id, email, name, password_hash, otp_hash, attempts_left, expires_at, resend_after, created_at)
         VALUES (?,?,?,?,?,?,?,?,?)`,
        req.ID, req.Email, req.Name, req.PasswordHash, req.OTPHash,
        req.AttemptsLeft, req.ExpiresAt, req.ResendAfter, req.CreatedAt); err != nil {
        return err
    }
    return tx.Commit()
}

// Delete removes the pending request for an email, if any.
func (r *OTPRepo) Delete(ctx context.Context, email string) error {
    _, err := r.db.ExecContext(ctx,
        `DELETE FROM otp_requests WHERE email = ?`, email)
    return err
}

// FailAttempt burns one verify attempt as a single atomic unit: the row
// is locked, then expiry, hash identity and the remaining count are all
// checked against the locked row before the decrement commits. A guess
// can therefore neither debit a lapsed request nor a budget belonging
// to a code issued after the guess was read. otpHash is the hash the
// guess was evaluated against; now is the caller's clock reading.
// Returns the count after the decrement. sql.ErrNoRows when the request
// vanished, ErrRequestExpired past expiry, ErrStaleRequest (with the
// untouched count) on a hash mismatch, ErrNoAttempts when a concurrent
// failure already spent the last attempt.
func (r *OTPRepo) FailAttempt(ctx context.Context, email, otpHash string, now time.Time) (int, error) {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return 0, err
    }
    defer func() { _ = tx.Rollback() }()

    var (
        left       int
        expiresAt  time.Time
        storedHash string
    )
    if err = tx.QueryRowContext(ctx,
        `SELECT attempts_left, expires_at, otp_hash FROM otp_requests WHERE email = ? FOR UPDATE`,
        email).Scan(&left, &expiresAt, &storedHash); err != nil {
        return 0, err
    }
    if now.After(expiresAt) {
        return 0, ErrRequestExpired
    }
    if storedHash != otpHash {
        return left, ErrStaleRequest
    }
    if left <= 0 {
        return 0, ErrNoAttempts
    }
    left--
    if _, err = tx.ExecContext(ctx,
        `UPDATE otp_requests SET attempts_left = ? WHERE email = ?`,
        left, email); err != nil {
        return 0, err
    }
    if err = tx.Commit(); err != nil {
        return 0, err
    }
    return left, nil
}

// ResetForResend swaps in the new code hash, restores the full attempt
// budget and starts a fresh cooldown, leaving identity fields and the
// expiry untouched. Returns sql.ErrNoRows when no request exists.
func (r *OTPRepo) ResetForResend(ctx context.Context, email, otpHash string, resendAfter time.Time) error {
    res, err := r.db.ExecContext(ctx,
        `UPDATE otp_requests SET otp_hash = ?, attempts_left = ?, resend_after = ? WHERE email = ?`,
        otpHash, model.OTPMaxAttempts, resendAfter, email)
    if err != nil {
        return err
    }
    if n, _ := res.RowsAffected(); n == 0 {
        return sql.ErrNoRows
    }
    return nil
}
