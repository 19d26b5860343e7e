// Package audit implements the tamper-evident security log. Every entry
// carries the hash of its predecessor, so any retroactive edit breaks
// recomputation for that entry and everything after it. A singleton
// chain_head row points at the newest hash and serializes appends.
package audit

import (
    "crypto/sha256"
    "encoding/hex"
    "encoding/json"
    "fmt"
    "time"
)

// GenesisHash anchors the first entry of the chain. It is the prev_hash
// of entry #1 and the initial value of chain_head.latest_hash.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Entry is one immutable audit record as stored in the `audit_logs`
// table. Pointer fields are nullable columns: a nil pointer means SQL
// NULL, which the canonical encoding distinguishes from an empty string.
// System-initiated events have no actor fields.
type Entry struct {
    Seq           int64           // audit_logs.seq, append position assigned by AUTO_INCREMENT
    ID            string          // audit_logs.id (UUID)
    CreatedAt     time.Time       // audit_logs.created_at
    Module        string          // functional area, e.g. "auth"
    Action        string          // event name, e.g. "otp_verify_failed"
    ActorID       *string         // audit_logs.actor_id (nullable)
    ActorEmail    *string         // audit_logs.actor_email (nullable)
    ActorRole     *string         // audit_logs.actor_role (nullable)
    TargetType    *string         // audit_logs.target_type (nullable)
    TargetID      *string         // audit_logs.target_id (nullable)
    TargetSummary *string         // audit_logs.target_summary (nullable)
    Success       bool            // audit_logs.success
    Details       json.RawMessage // audit_logs.details (nullable JSON)
    Metadata      json.RawMessage // audit_logs.metadata (nullable JSON)
    IPAddress     *string         // audit_logs.ip_address (nullable)
    UserAgent     *string         // audit_logs.user_agent (nullable)
    PrevHash      string          // chain_hash of the previous entry, or GenesisHash
    ChainHash     string          // SHA-256 over canonical bytes || PrevHash
}

// canonicalTimeLayout pins created_at to UTC with microsecond precision,
// matching the DATETIME(6) column so the canonical form survives a
// database round trip bit for bit.
const canonicalTimeLayout = "2006-01-02T15:04:05.000000Z"

// CanonicalBytes serializes the entry's content fields into the byte
// sequence that is hashed. The layout is one `key=value` line per field,
// in the fixed order below. Nullable fields render a single NUL byte
// (0x00) as their value when NULL; an empty string renders nothing
// between '=' and '\n'. JSON payloads are included verbatim as stored.
// Seq, PrevHash and ChainHash are storage metadata, not canonical
// content.
func CanonicalBytes(e *Entry) []byte {
    buf := make([]byte, 0, 256)
    put := func(key, val string) {
        buf = append(buf, key...)
        buf = append(buf, '=')
        buf = append(buf, val...)
        buf = append(buf, '\n')
    }
    putNullable := func(key string, val *string) {
        if val == nil {
            put(key, "\x00")
            return
        }
        put(key, *val)
    }
    putJSON := func(key string, val json.RawMessage) {
        if val == nil {
            put(key, "\x00")
            return
        }
        put(key, string(val))
    }

    put("id", e.ID)
    put("created_at", e.CreatedAt.UTC().Format(canonicalTimeLayout))
    put("module", e.Module)
    put("action", e.Action)
    putNullable("actor_id", e.ActorID)
    putNullable("actor_email", e.ActorEmail)
    putNullable("actor_role", e.ActorRole)
    putNullable("target_type", e.TargetType)
    putNullable("target_id", e.TargetID)
    putNullable("target_summary", e.TargetSummary)
    if e.Success {
        put("success", "true")
    } else {
        put("success", "false")
    }
    putJSON("details", e.Details)
    putJSON("metadata", e.Metadata)
    putNullable("ip_address", e.IPAddress)
    putNullable("user_agent", e.UserAgent)
    return buf
}

// ComputeChainHash returns the hex SHA-256 of the entry's canonical
// bytes concatenated with the ASCII prev hash.
func ComputeChainHash(e *Entry, prevHash string) string {
    h := sha256.New()
    h.Write(CanonicalBytes(e))
    h.Write([]byte(prevHash))
    return hex.EncodeToString(h.Sum(nil))
}

// VerifyChain replays entries in creation order and checks both links:
// every prev_hash must equal the predecessor's chain_hash (GenesisHash
// for the first entry) and every chain_hash must recompute from the
// stored fields. On failure it reports the index of the first corrupt
// entry; all later entries are untrustworthy by construction.
func VerifyChain(entries []Entry) error {
    prev := GenesisHash
    for i := range entries {
        e := &entries[i]
        if e.PrevHash != prev {
            return fmt.Errorf("audit: entry %d (%s): prev_hash %q does not match predecessor chain_hash %q", i, e.ID, e.PrevHash, prev)
        }
        if got := ComputeChainHash(e, prev); got != e.ChainHash {
            return fmt.Errorf("audit: entry %d (%s): chain_hash mismatch, stored %q recomputed %q", i, e.ID, e.ChainHash, got)
        }
        prev = e.ChainHash
    }
    return nil
}
