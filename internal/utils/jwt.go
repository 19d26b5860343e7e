package utils // package utils provides helper functions for token creation and hashing

import (
    "errors"
    "time"

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// SessionTokenTTL is how long an issued session token stays valid.
// There is no revocation list; rotating the signing secret invalidates
// every outstanding token at once.
const SessionTokenTTL = 7 * 24 * time.Hour

// ErrInvalidToken is returned when a session token fails signature,
// structure or expiry checks.
var ErrInvalidToken = errors.New("invalid session token")

// SessionClaims is the payload carried by a session token: the account
// identity plus the standard expiry claim.
type SessionClaims struct {
    UserID string `json:"userId"`
    Email  string `json:"email"`
    Role   string `json:"role"`
    jwt.RegisteredClaims
}

// NewSessionToken builds and signs an HS256 JWT bound to the given
// account identity. The payload carries userId, email, role and exp
// (Unix seconds, now + 7 days).
func NewSessionToken(secret, userID, email, role string) (string, error) {
    now := time.Now().UTC()
    claims := SessionClaims{
        UserID: userID,
        Email:  email,
        Role:   role,
        RegisteredClaims: jwt.RegisteredClaims{
            ExpiresAt: jwt.NewNumericDate(now.Add(SessionTokenTTL)),
            IssuedAt:  jwt.NewNumericDate(now),
        },
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    return t.SignedString([]byte(secret))
}

// ParseSessionToken validates signature and expiry and returns the
// claims. Tokens signed with any method other than HMAC are rejected.
func ParseSessionToken(secret, raw string) (*SessionClaims, error) {
    claims := &SessionClaims{}
    tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, ErrInvalidToken
        }
        return []byte(secret), nil
    })
    if err != nil || !tok.Valid {
        return nil, ErrInvalidToken
    }
    return claims, nil
}
