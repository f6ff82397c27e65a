// Package audit keeps a signed, hash-chained trail of the gateway's decisions.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	EventCredentialsIssued = "credentials.issued"
	EventImageForwarded    = "image.forwarded"
	EventForwardFailed     = "image.forward_failed"
)

// Event is the canonical audit record.
type Event struct {
	ID        string      `json:"id"`
	EventType string      `json:"eventType"`
	Payload   interface{} `json:"payload"`
	PrevHash  string      `json:"prevHash,omitempty"`
	Hash      string      `json:"hash"`
	Signature string      `json:"signature"` // base64
	SignerID  string      `json:"signerId"`
	Ts        time.Time   `json:"ts"`
	Metadata  interface{} `json:"metadata,omitempty"`
}

// ErrNotFound is returned when a requested event cannot be located.
var ErrNotFound = errors.New("audit event not found")

// NewUUID returns a freshly-generated UUID string.
func NewUUID() string {
	return uuid.New().String()
}

// HashBytes computes the SHA-256 digest of b.
func HashBytes(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

// HashHex returns the hex-encoded SHA-256 of b.
func HashHex(b []byte) string {
	return hex.EncodeToString(HashBytes(b))
}
