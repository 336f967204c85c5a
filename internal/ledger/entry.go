// Package ledger implements the append-only, hash-chained record of
// security events. The ledger is the system of record: session and
// incident state elsewhere is a projection derived from it.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// GenesisHash is the prevHash sentinel for the first entry. It is
// distinct from any hex-encoded SHA-256 output.
const GenesisHash = "GENESIS"

// Type identifies the kind of security event an entry records.
type Type string

const (
	TypeLoginOK     Type = "LOGIN_OK"
	TypeLoginDuress Type = "LOGIN_DURESS"
	TypeVerify      Type = "VERIFY"
	TypeEndSession  Type = "END_SESSION"
)

// Entry is one immutable record in the chain.
//
// hash = sha256hex(prevHash || canonical JSON of {id, ts, type,
// sessionId, accountId, data}). The JSON field order is fixed by the
// struct declaration, so two processes hashing the same logical entry
// produce byte-identical input.
type Entry struct {
	ID        string          `json:"id"`
	TS        int64           `json:"ts"` // unix millis
	Type      Type            `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	AccountID string          `json:"accountId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	PrevHash  string          `json:"prevHash"`
	Hash      string          `json:"hash"`
}

// hashBody is the canonical serialization subject: Entry minus the two
// hash fields, in fixed field order.
type hashBody struct {
	ID        string          `json:"id"`
	TS        int64           `json:"ts"`
	Type      Type            `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	AccountID string          `json:"accountId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ComputeHash returns the chain hash for e given the previous entry's hash.
func ComputeHash(prevHash string, e Entry) (string, error) {
	body, err := json.Marshal(hashBody{
		ID:        e.ID,
		TS:        e.TS,
		Type:      e.Type,
		SessionID: e.SessionID,
		AccountID: e.AccountID,
		Data:      e.Data,
	})
	if err != nil {
		return "", fmt.Errorf("canonicalize entry: %w", err)
	}
	sum := sha256.Sum256(append([]byte(prevHash), body...))
	return hex.EncodeToString(sum[:]), nil
}

// newEntryID returns a fresh unique ledger entry id.
func newEntryID() string {
	return "led_" + uuid.NewString()
}
