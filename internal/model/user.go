package model

import "time"

// Role names form a fixed enumeration stored in the users.role column.
// New signups always start as RoleUser; the higher tiers are assigned
// by administrators out of band.
const (
    RoleSystemAdmin = "System Admin"
    RoleAdmin       = "Admin"
    RoleManager     = "Manager"
    RoleUser        = "User"
)

// Account status values stored in the users.status column.
const (
    StatusActive   = "active"
    StatusInactive = "inactive"
)

// User represents an application user record as stored in the
// `users` table. Each field corresponds to a column in the
// database. The json tags are omitted here because these structs
// are primarily used internally by the repository layer; handlers
// define separate response types with appropriate JSON tags.
//
// PasswordHash is empty for accounts provisioned through an external
// identity provider; such accounts cannot log in with a password and
// the login path rejects them with an SSO-only error.
//
// Fields:
//  ID           – UUID primary key of the user (CHAR(36)).
//  Email        – unique email address, stored lower-cased.
//  Name         – display name captured at signup.
//  PasswordHash – PBKDF2-derived hash in salt:key hex form; may be empty.
//  Role         – one of the Role* constants above.
//  Status       – "active" or "inactive".
//  LastLoginAt  – time of the most recent successful login (nullable).
//  IsDeleted    – soft-delete flag; rows are never hard-deleted.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
    ID           string     // users.id
    Email        string     // users.email
    Name         string     // users.name
    PasswordHash string     // users.password_hash (empty for SSO accounts)
    Role         string     // users.role
    Status       string     // users.status
    LastLoginAt  *time.Time // users.last_login_at (nullable)
    IsDeleted    bool       // users.is_deleted
    CreatedAt    time.Time  // users.created_at
    UpdatedAt    time.Time  // users.updated_at
}
