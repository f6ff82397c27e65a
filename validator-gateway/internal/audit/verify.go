package audit

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	ErrHashMismatch = errors.New("audit hash mismatch")
	ErrBadSignature = errors.New("audit signature invalid")
	ErrBrokenChain  = errors.New("audit chain broken")
)

// Verify recomputes ev.Hash from its payload and checks the signature.
func Verify(ev *Event, pub ed25519.PublicKey) error {
	payloadJSON, err := canonicalJSON(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload for event %s: %w", ev.ID, err)
	}
	concat := append([]byte(nil), payloadJSON...)
	if ev.PrevHash != "" {
		prev, err := hex.DecodeString(ev.PrevHash)
		if err != nil {
			return fmt.Errorf("decode prevHash for event %s: %w", ev.ID, err)
		}
		concat = append(concat, prev...)
	}
	want := HashBytes(concat)
	got, err := hex.DecodeString(ev.Hash)
	if err != nil || !bytes.Equal(want, got) {
		return fmt.Errorf("%w: event %s", ErrHashMismatch, ev.ID)
	}
	sig, err := base64.StdEncoding.DecodeString(ev.Signature)
	if err != nil {
		return fmt.Errorf("%w: event %s: %v", ErrBadSignature, ev.ID, err)
	}
	if !ed25519.Verify(pub, want, sig) {
		return fmt.Errorf("%w: event %s", ErrBadSignature, ev.ID)
	}
	return nil
}

// VerifyChain verifies events in order and checks each PrevHash links to the
// previous event's Hash.
func VerifyChain(events []*Event, pub ed25519.PublicKey) error {
	prev := ""
	for i, ev := range events {
		if ev.PrevHash != prev {
			return fmt.Errorf("%w at index %d (event %s)", ErrBrokenChain, i, ev.ID)
		}
		if err := Verify(ev, pub); err != nil {
			return err
		}
		prev = ev.Hash
	}
	return nil
}
