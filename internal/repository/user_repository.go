package repository

import (
    "context"
    "database/sql"
    "strings"
    "time"

    "github.com/google/uuid"

    "github.com/slateai/access-control/internal/model"
)

// UserRepo provides data access to the `users` table. Accounts are
// soft-deleted only; every query filters on is_deleted = 0.
type UserRepo struct{ db *sql.DB }

// NewUserRepo returns a UserRepo bound to the given database.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new account and fills in its generated UUID. The
// unique email index is the authority on duplicates; a collision maps
// to ErrEmailExists.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
    if u.ID == "" {
        u.ID = uuid.NewString()
    }
    u.Email = strings.ToLower(strings.TrimSpace(u.Email))
    _, err := r.db.ExecContext(ctx,
        `INSERT INTO users (id, email, name, password_hash, role, status, last_login_at)
         VALUES (?,?,?,?,?,?,?)`,
        u.ID, u.Email, u.Name, u.PasswordHash, u.Role, u.Status, u.LastLoginAt)
    if err != nil {
        // MySQL error 1062: duplicate entry for a unique key.
        if strings.Contains(strings.ToLower(err.Error()), "1062") {
            return ErrEmailExists
        }
        return err
    }
    return nil
}

// GetActiveByEmail fetches a non-deleted account by normalized email.
// Inactive accounts are returned so callers can distinguish "inactive"
// from "unknown"; deleted rows behave as if they never existed.
func (r *UserRepo) GetActiveByEmail(ctx context.Context, email string) (model.User, error) {
    email = strings.ToLower(strings.TrimSpace(email))
    var (
        u         model.User
        lastLogin sql.NullTime
    )
    err := r.db.QueryRowContext(ctx,
        `SELECT id, email, name, password_hash, role, status, last_login_at, is_deleted, created_at, updated_at
         FROM users WHERE email = ? AND is_deleted = 0 LIMIT 1`,
        email).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.Status,
        &lastLogin, &u.IsDeleted, &u.CreatedAt, &u.UpdatedAt)
    if err != nil {
        return model.User{}, err
    }
    if lastLogin.Valid {
        t := lastLogin.Time
        u.LastLoginAt = &t
    }
    return u, nil
}

// UpdateLastLogin stamps a successful login.
func (r *UserRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
    _, err := r.db.ExecContext(ctx,
        `UPDATE users SET last_login_at = ? WHERE id = ?`, at, id)
    return err
}
