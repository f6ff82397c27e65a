// Package keys loads the gateway's Ed25519 key pair from PEM files.
package keys

import (
	"bytes"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// Algorithm is the only key algorithm the gateway accepts.
const Algorithm = "Ed25519"

var (
	ErrNoPEMBlock      = errors.New("no PEM block found")
	ErrNotEd25519      = errors.New("key is not ed25519")
	ErrKeyPairMismatch = errors.New("public key does not match private key")
)

// KeyPair is loaded once at startup and never mutated afterwards, so it can be
// shared across requests without locking.
type KeyPair struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

// LoadFiles reads a PKCS#8 private key and a PKIX public key from disk.
func LoadFiles(privatePath, publicPath string) (*KeyPair, error) {
	privPEM, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	pubPEM, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	return ParsePEM(privPEM, pubPEM)
}

// ParsePEM builds a KeyPair from PEM encoded key material.
func ParsePEM(privPEM, pubPEM []byte) (*KeyPair, error) {
	privBlock, _ := pem.Decode(privPEM)
	if privBlock == nil {
		return nil, fmt.Errorf("private key: %w", ErrNoPEMBlock)
	}
	parsedPriv, err := x509.ParsePKCS8PrivateKey(privBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	priv, ok := parsedPriv.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key: %w", ErrNotEd25519)
	}

	pubBlock, _ := pem.Decode(pubPEM)
	if pubBlock == nil {
		return nil, fmt.Errorf("public key: %w", ErrNoPEMBlock)
	}
	parsedPub, err := x509.ParsePKIXPublicKey(pubBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := parsedPub.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key: %w", ErrNotEd25519)
	}
	return New(priv, pub)
}

// New wraps an existing key pair, checking that both halves belong together.
func New(priv ed25519.PrivateKey, pub ed25519.PublicKey) (*KeyPair, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid ed25519 private key length: got %d want %d", len(priv), ed25519.PrivateKeySize)
	}
	derived, _ := priv.Public().(ed25519.PublicKey)
	if !bytes.Equal(derived, pub) {
		return nil, ErrKeyPairMismatch
	}
	return &KeyPair{private: priv, public: pub}, nil
}

// Sign signs msg with the private key.
func (k *KeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.private, msg)
}

// PrivateKey returns the private half. Used by the JWT issuer.
func (k *KeyPair) PrivateKey() ed25519.PrivateKey {
	return k.private
}

// PublicKey returns the public half.
func (k *KeyPair) PublicKey() ed25519.PublicKey {
	return k.public
}

// PublicKeyRawB64 is the standard base64 of the raw 32 byte public key. This is
// the value forwarded to the validator as "authorization".
func (k *KeyPair) PublicKeyRawB64() string {
	return base64.StdEncoding.EncodeToString(k.public)
}

// MarshalPEM encodes the pair as PKCS#8 / PKIX PEM blocks.
func (k *KeyPair) MarshalPEM() (privPEM, pubPEM []byte, err error) {
	privDER, err := x509.MarshalPKCS8PrivateKey(k.private)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(k.public)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal public key: %w", err)
	}
	privPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privPEM, pubPEM, nil
}
