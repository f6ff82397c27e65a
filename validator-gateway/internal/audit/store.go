package audit

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ILLUVRSE/gateway/validator-gateway/internal/signing"
)

// Store is the persistence abstraction for the audit trail.
type Store interface {
	// AppendEvent chains ev onto the latest stored hash, signs it with s and
	// persists it. ID, PrevHash, Hash, Signature, SignerID and Ts are filled in.
	AppendEvent(ctx context.Context, ev *Event, s signing.Signer) error

	GetEvent(ctx context.Context, id string) (*Event, error)

	Ping(ctx context.Context) error
}

// seal computes hash = sha256(canonical(payload) || prevHashBytes) and signs it.
// It returns the canonical payload so stores do not encode it twice.
func seal(ctx context.Context, ev *Event, prev string, s signing.Signer) ([]byte, error) {
	payloadJSON, err := canonicalJSON(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	concat := append([]byte(nil), payloadJSON...)
	if prev != "" {
		prevBytes, err := hex.DecodeString(prev)
		if err != nil {
			return nil, fmt.Errorf("decode prev hash: %w", err)
		}
		concat = append(concat, prevBytes...)
	}
	hash := HashBytes(concat)

	sig, err := s.Sign(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("sign hash: %w", err)
	}

	if ev.ID == "" {
		ev.ID = NewUUID()
	}
	if ev.Ts.IsZero() {
		ev.Ts = time.Now().UTC()
	}
	ev.PrevHash = prev
	ev.Hash = hex.EncodeToString(hash)
	ev.Signature = base64.StdEncoding.EncodeToString(sig)
	ev.SignerID = s.SignerID()
	return payloadJSON, nil
}
