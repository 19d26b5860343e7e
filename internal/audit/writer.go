package audit

import (
    "context"
    "database/sql"
    "log"
    "time"

    "github.com/google/uuid"
)

// Recorder is the write side of the audit log as seen by services.
// Record is best-effort: implementations must never propagate storage
// failures into the business operation that triggered the event.
type Recorder interface {
    Record(ctx context.Context, e Entry)
}

// Writer appends entries to the audit chain in MySQL. Appends are
// serialized through the chain_head row: the head is read FOR UPDATE,
// the entry inserted and the head advanced inside one transaction, so
// two entries can never extend the same prev_hash.
type Writer struct {
    db *sql.DB
}

// NewWriter returns a Writer bound to the given database.
func NewWriter(db *sql.DB) *Writer { return &Writer{db: db} }

// Append writes one entry and advances the chain head atomically.
// It fills in ID, CreatedAt, PrevHash and ChainHash on the provided
// entry. Callers that must not fail on audit errors should use Record.
func (w *Writer) Append(ctx context.Context, e *Entry) error {
    if e.ID == "" {
        e.ID = uuid.NewString()
    }

    tx, err := w.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    defer func() { _ = tx.Rollback() }()

    var prev string
    err = tx.QueryRowContext(ctx,
        `SELECT latest_hash FROM chain_head WHERE id = 1 FOR UPDATE`).Scan(&prev)
    if err == sql.ErrNoRows {
        // First append ever: seed the singleton head row.
        prev = GenesisHash
        if _, err = tx.ExecContext(ctx,
            `INSERT INTO chain_head (id, latest_hash) VALUES (1, ?)`, prev); err != nil {
            return err
        }
    } else if err != nil {
        return err
    }

    // Stamp created_at only after the head lock is held, so timestamps
    // cannot run backwards relative to append order. MySQL DATETIME(6)
    // keeps microseconds; truncate so the canonical form recomputes
    // identically after a round trip.
    if e.CreatedAt.IsZero() {
        e.CreatedAt = time.Now().UTC()
    }
    e.CreatedAt = e.CreatedAt.UTC().Truncate(time.Microsecond)

    e.PrevHash = prev
    e.ChainHash = ComputeChainHash(e, prev)

    _, err = tx.ExecContext(ctx,
        `INSERT INTO audit_logs
         (id, created_at, module, action, actor_id, actor_email, actor_role,
          target_type, target_id, target_summary, success, details, metadata,
          ip_address, user_agent, prev_hash, chain_hash)
         VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
        e.ID, e.CreatedAt, e.Module, e.Action, e.ActorID, e.ActorEmail, e.ActorRole,
        e.TargetType, e.TargetID, e.TargetSummary, e.Success, nullableJSON(e.Details),
        nullableJSON(e.Metadata), e.IPAddress, e.UserAgent, e.PrevHash, e.ChainHash)
    if err != nil {
        return err
    }
    if _, err = tx.ExecContext(ctx,
        `UPDATE chain_head SET latest_hash = ? WHERE id = 1`, e.ChainHash); err != nil {
        return err
    }
    return tx.Commit()
}

// Record appends the entry, logging failures instead of returning them.
// The append runs on its own timeout detached from request cancellation,
// so an aborted caller does not leave the event unwritten.
func (w *Writer) Record(ctx context.Context, e Entry) {
    ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
    defer cancel()
    if err := w.Append(ctx, &e); err != nil {
        log.Printf("audit: append %s/%s failed: %v", e.Module, e.Action, err)
    }
}

// ListAll returns every entry in append order for chain verification.
// The AUTO_INCREMENT seq column is the ordering key: it is assigned
// under the same head lock that decides chain order, whereas timestamps
// can tie at microsecond precision or skew across writer processes.
func (w *Writer) ListAll(ctx context.Context) ([]Entry, error) {
    rows, err := w.db.QueryContext(ctx,
        `SELECT seq, id, created_at, module, action, actor_id, actor_email, actor_role,
                target_type, target_id, target_summary, success, details, metadata,
                ip_address, user_agent, prev_hash, chain_hash
         FROM audit_logs ORDER BY seq`)
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    var entries []Entry
    for rows.Next() {
        var (
            e                 Entry
            details, metadata sql.NullString
        )
        if err := rows.Scan(&e.Seq, &e.ID, &e.CreatedAt, &e.Module, &e.Action,
            &e.ActorID, &e.ActorEmail, &e.ActorRole,
            &e.TargetType, &e.TargetID, &e.TargetSummary,
            &e.Success, &details, &metadata,
            &e.IPAddress, &e.UserAgent, &e.PrevHash, &e.ChainHash); err != nil {
            return nil, err
        }
        if details.Valid {
            e.Details = []byte(details.String)
        }
        if metadata.Valid {
            e.Metadata = []byte(metadata.String)
        }
        entries = append(entries, e)
    }
    return entries, rows.Err()
}

// Head returns the current chain head hash, or GenesisHash when the
// chain is still empty.
func (w *Writer) Head(ctx context.Context) (string, error) {
    var h string
    err := w.db.QueryRowContext(ctx,
        `SELECT latest_hash FROM chain_head WHERE id = 1`).Scan(&h)
    if err == sql.ErrNoRows {
        return GenesisHash, nil
    }
    return h, err
}

// nullableJSON maps a nil payload to SQL NULL instead of the empty string.
func nullableJSON(raw []byte) any {
    if raw == nil {
        return nil
    }
    return string(raw)
}
