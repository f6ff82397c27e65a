package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ILLUVRSE/gateway/validator-gateway/internal/signing"
)

// SQLStore persists the trail through database/sql. The queries use $N
// placeholders and portable column types, so the same store runs on Postgres
// (lib/pq) and SQLite (go-sqlite3).
type SQLStore struct {
	db *sql.DB
	// mu serialises appends so two requests cannot chain onto the same prevHash.
	mu sync.Mutex
}

// NewSQLStore constructs a database-backed store.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// OpenDSN maps a DATABASE_URL to a database/sql driver name and DSN.
// postgres:// and postgresql:// go to lib/pq; sqlite:// and sqlite3:// go to
// go-sqlite3 with the remainder used as the file path.
func OpenDSN(url string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return "postgres", url, nil
	case strings.HasPrefix(url, "sqlite3://"):
		return "sqlite3", strings.TrimPrefix(url, "sqlite3://"), nil
	case strings.HasPrefix(url, "sqlite://"):
		return "sqlite3", strings.TrimPrefix(url, "sqlite://"), nil
	default:
		return "", "", fmt.Errorf("unsupported database url scheme: %q", url)
	}
}

// EnsureSchema creates the audit_events table if it does not exist.
func (p *SQLStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  payload TEXT NOT NULL,
  prev_hash TEXT NOT NULL,
  hash TEXT NOT NULL,
  signature TEXT NOT NULL,
  signer_id TEXT NOT NULL,
  ts TIMESTAMP NOT NULL,
  metadata TEXT
)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_ts ON audit_events (ts DESC)`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure audit schema: %w", err)
		}
	}
	return nil
}

// Ping verifies connectivity.
func (p *SQLStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// lastHash returns the latest hash from audit_events or empty string if none.
func (p *SQLStore) lastHash(ctx context.Context) (string, error) {
	var h sql.NullString
	q := `SELECT hash FROM audit_events ORDER BY ts DESC LIMIT 1`
	if err := p.db.QueryRowContext(ctx, q).Scan(&h); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	if !h.Valid {
		return "", nil
	}
	return h.String, nil
}

// AppendEvent chains, signs and inserts ev.
func (p *SQLStore) AppendEvent(ctx context.Context, ev *Event, s signing.Signer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev, err := p.lastHash(ctx)
	if err != nil {
		return fmt.Errorf("fetch last hash: %w", err)
	}
	payloadJSON, err := seal(ctx, ev, prev, s)
	if err != nil {
		return err
	}

	var metadataJSON sql.NullString
	if ev.Metadata != nil {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metadataJSON = sql.NullString{String: string(b), Valid: true}
	}

	q := `
		INSERT INTO audit_events
		  (id, event_type, payload, prev_hash, hash, signature, signer_id, ts, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`
	_, err = p.db.ExecContext(ctx, q,
		ev.ID,
		ev.EventType,
		string(payloadJSON),
		ev.PrevHash,
		ev.Hash,
		ev.Signature,
		ev.SignerID,
		ev.Ts,
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("insert audit_event: %w", err)
	}
	return nil
}

// GetEvent fetches an event by id and unmarshals its JSON columns.
func (p *SQLStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	q := `SELECT id, event_type, payload, prev_hash, hash, signature, signer_id, ts, metadata FROM audit_events WHERE id=$1`
	row := p.db.QueryRowContext(ctx, q, id)

	var (
		idv, eventType, payloadStr, prevHash, hashStr, signature, signerID string
		metaStr                                                            sql.NullString
		ts                                                                 time.Time
	)
	if err := row.Scan(&idv, &eventType, &payloadStr, &prevHash, &hashStr, &signature, &signerID, &ts, &metaStr); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query audit_event: %w", err)
	}

	var payload interface{}
	if err := json.Unmarshal([]byte(payloadStr), &payload); err != nil {
		return nil, fmt.Errorf("decode payload for event %s: %w", idv, err)
	}
	var metadata interface{}
	if metaStr.Valid && metaStr.String != "" && metaStr.String != "null" {
		if err := json.Unmarshal([]byte(metaStr.String), &metadata); err != nil {
			metadata = metaStr.String
		}
	}

	return &Event{
		ID:        idv,
		EventType: eventType,
		Payload:   payload,
		PrevHash:  prevHash,
		Hash:      hashStr,
		Signature: signature,
		SignerID:  signerID,
		Ts:        ts.UTC(),
		Metadata:  metadata,
	}, nil
}
