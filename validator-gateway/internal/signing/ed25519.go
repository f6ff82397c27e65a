package signing

import (
	"context"
	"crypto/ed25519"
	"errors"

	"github.com/ILLUVRSE/gateway/validator-gateway/internal/keys"
)

// Signer defines the minimal contract for creating signatures.
type Signer interface {
	Sign(ctx context.Context, payload []byte) ([]byte, error)
	SignerID() string
	PublicKey() ed25519.PublicKey
}

var ErrSignerNotInitialized = errors.New("signer: key pair not initialized")

type Ed25519Signer struct {
	keyPair  *keys.KeyPair
	signerID string
}

func NewEd25519Signer(kp *keys.KeyPair, signerID string) *Ed25519Signer {
	return &Ed25519Signer{
		keyPair:  kp,
		signerID: signerID,
	}
}

func (s *Ed25519Signer) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	// Context currently unused but reserved for remote signers.
	_ = ctx
	if s.keyPair == nil {
		return nil, ErrSignerNotInitialized
	}
	return s.keyPair.Sign(payload), nil
}

func (s *Ed25519Signer) SignerID() string {
	return s.signerID
}

func (s *Ed25519Signer) PublicKey() ed25519.PublicKey {
	if s.keyPair == nil {
		return nil
	}
	return s.keyPair.PublicKey()
}
