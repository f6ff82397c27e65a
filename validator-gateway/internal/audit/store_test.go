package audit

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/ILLUVRSE/gateway/validator-gateway/internal/keys"
	"github.com/ILLUVRSE/gateway/validator-gateway/internal/signing"
)

func testSigner(t *testing.T) *signing.Ed25519Signer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	kp, err := keys.New(priv, pub)
	if err != nil {
		t.Fatalf("key pair: %v", err)
	}
	return signing.NewEd25519Signer(kp, "audit-test-signer")
}

func TestMemoryStoreChainVerifies(t *testing.T) {
	store := NewMemoryStore()
	s := testSigner(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ev := &Event{
			EventType: EventImageForwarded,
			Payload: map[string]interface{}{
				"predictions": []float64{0.9, 0.1},
				"attempt":     i,
			},
		}
		if err := store.AppendEvent(ctx, ev, s); err != nil {
			t.Fatalf("AppendEvent error: %v", err)
		}
		if ev.ID == "" || ev.Hash == "" || ev.Signature == "" {
			t.Fatalf("event not sealed: %+v", ev)
		}
		if ev.SignerID != "audit-test-signer" {
			t.Fatalf("unexpected signer id %q", ev.SignerID)
		}
	}

	events := store.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].PrevHash != "" || events[1].PrevHash != events[0].Hash {
		t.Fatalf("events are not chained")
	}
	if err := VerifyChain(events, s.PublicKey()); err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}

	got, err := store.GetEvent(ctx, events[1].ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got.Hash != events[1].Hash {
		t.Fatalf("GetEvent returned a different event")
	}
	if _, err := store.GetEvent(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	store := NewMemoryStore()
	s := testSigner(t)
	ev := &Event{EventType: EventCredentialsIssued, Payload: map[string]interface{}{"uid": 7}}
	if err := store.AppendEvent(context.Background(), ev, s); err != nil {
		t.Fatalf("AppendEvent error: %v", err)
	}

	tampered := *ev
	tampered.Payload = map[string]interface{}{"uid": 8}
	if err := Verify(&tampered, s.PublicKey()); err == nil {
		t.Fatalf("expected hash mismatch for tampered payload")
	}

	other := testSigner(t)
	if err := Verify(ev, other.PublicKey()); err == nil {
		t.Fatalf("expected signature failure with foreign key")
	}
}

func TestSQLStoreAppendFirstEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	store := NewSQLStore(db)
	s := testSigner(t)

	mock.ExpectQuery("SELECT hash FROM audit_events").
		WillReturnRows(sqlmock.NewRows([]string{"hash"}))
	mock.ExpectExec("INSERT INTO audit_events").
		WithArgs(
			sqlmock.AnyArg(), EventImageForwarded, `{"prediction":1}`, "",
			sqlmock.AnyArg(), sqlmock.AnyArg(), "audit-test-signer", sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	ev := &Event{EventType: EventImageForwarded, Payload: map[string]interface{}{"prediction": 1}}
	if err := store.AppendEvent(context.Background(), ev, s); err != nil {
		t.Fatalf("AppendEvent error: %v", err)
	}
	if err := Verify(ev, s.PublicKey()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLStoreAppendChainsOnLastHash(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	store := NewSQLStore(db)
	s := testSigner(t)
	prev := HashHex([]byte("previous"))

	mock.ExpectQuery("SELECT hash FROM audit_events").
		WillReturnRows(sqlmock.NewRows([]string{"hash"}).AddRow(prev))
	mock.ExpectExec("INSERT INTO audit_events").
		WithArgs(
			sqlmock.AnyArg(), EventCredentialsIssued, sqlmock.AnyArg(), prev,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	ev := &Event{EventType: EventCredentialsIssued, Payload: map[string]interface{}{"uid": 1}}
	if err := store.AppendEvent(context.Background(), ev, s); err != nil {
		t.Fatalf("AppendEvent error: %v", err)
	}
	if ev.PrevHash != prev {
		t.Fatalf("expected prevHash %s, got %s", prev, ev.PrevHash)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLStoreGetEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()
	store := NewSQLStore(db)

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cols := []string{"id", "event_type", "payload", "prev_hash", "hash", "signature", "signer_id", "ts", "metadata"}
	mock.ExpectQuery("SELECT id, event_type, payload").
		WithArgs("evt-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"evt-1", EventImageForwarded, `{"prediction":0}`, "", "abcd", "c2ln", "signer-1", ts, `{"imageKey":"images/x"}`,
		))
	mock.ExpectQuery("SELECT id, event_type, payload").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	ev, err := store.GetEvent(context.Background(), "evt-1")
	if err != nil {
		t.Fatalf("GetEvent error: %v", err)
	}
	if ev.EventType != EventImageForwarded || !ev.Ts.Equal(ts) {
		t.Fatalf("unexpected event: %+v", ev)
	}
	payload, ok := ev.Payload.(map[string]interface{})
	if !ok || payload["prediction"] != float64(0) {
		t.Fatalf("unexpected payload: %#v", ev.Payload)
	}
	meta, ok := ev.Metadata.(map[string]interface{})
	if !ok || meta["imageKey"] != "images/x" {
		t.Fatalf("unexpected metadata: %#v", ev.Metadata)
	}

	if _, err := store.GetEvent(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLStoreEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_events").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_audit_events_ts").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := NewSQLStore(db).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOpenDSN(t *testing.T) {
	cases := []struct {
		url, driver, dsn string
		wantErr          bool
	}{
		{"postgres://u:p@db:5432/gw?sslmode=disable", "postgres", "postgres://u:p@db:5432/gw?sslmode=disable", false},
		{"postgresql://db/gw", "postgres", "postgresql://db/gw", false},
		{"sqlite:///var/lib/gw/audit.db", "sqlite3", "/var/lib/gw/audit.db", false},
		{"sqlite3://audit.db", "sqlite3", "audit.db", false},
		{"mysql://db", "", "", true},
	}
	for _, tc := range cases {
		driver, dsn, err := OpenDSN(tc.url)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tc.url)
			}
			continue
		}
		if err != nil || driver != tc.driver || dsn != tc.dsn {
			t.Fatalf("%s: got (%q,%q,%v)", tc.url, driver, dsn, err)
		}
	}
}
