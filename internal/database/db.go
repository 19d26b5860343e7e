package database

import (
    "context"
    "database/sql"
    "fmt"
    "time"

    _ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection. The store holds
// the users, otp_requests, audit_logs and chain_head tables; row-level
// locking and transactions there are what make the OTP attempt counter
// and the audit chain append safe under concurrency.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
    auth := user
    if pass != "" {
        auth = fmt.Sprintf("%s:%s", user, pass)
    }
    // parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
    dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
        auth, host, port, name)

    db, err := sql.Open("mysql", dsn)
    if err != nil {
        return nil, err
    }

    // Pool settings
    db.SetMaxOpenConns(25)
    db.SetMaxIdleConns(25)
    db.SetConnMaxLifetime(30 * time.Minute)

    // Ping with timeout
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := db.PingContext(ctx); err != nil {
        return nil, err
    }
    return db, nil
}
