package crypto

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/d21d3q/golora/internal/frame"
)

const (
	// PublicKeySize is the length of the trusted Ed25519 public key.
	PublicKeySize = ed25519.PublicKeySize
	// SeedSize is the length of an Ed25519 private key seed.
	SeedSize = ed25519.SeedSize
)

var (
	ErrAuthentication = errors.New("packet signature rejected")
	ErrInvalidKey     = errors.New("invalid Ed25519 key")
)

// DefaultTrustedKey is the public key the deployed sensor nodes sign with.
var DefaultTrustedKey = []byte{
	185, 185, 210, 10, 252, 37, 248, 37, 157, 194, 141, 137, 58, 217, 3, 31,
	6, 147, 230, 156, 152, 252, 192, 225, 180, 231, 227, 180, 105, 225, 249, 127,
}

// VerifiedPayload is a payload proven to be signed by the trusted key. The
// zero value is empty; only Verifier.Open produces a populated one.
type VerifiedPayload struct {
	b []byte
}

// Bytes returns the signed payload.
func (p VerifiedPayload) Bytes() []byte { return p.b }

// Len returns the payload length.
func (p VerifiedPayload) Len() int { return len(p.b) }

// Verifier checks detached signatures against a single trusted key.
type Verifier struct {
	key ed25519.PublicKey
}

// NewVerifier returns a verifier trusting pub.
func NewVerifier(pub []byte) (*Verifier, error) {
	if len(pub) != PublicKeySize {
		return nil, fmt.Errorf("%w: public key must be %d bytes, got %d", ErrInvalidKey, PublicKeySize, len(pub))
	}
	key := make(ed25519.PublicKey, PublicKeySize)
	copy(key, pub)
	return &Verifier{key: key}, nil
}

// PublicKey returns a copy of the trusted key.
func (v *Verifier) PublicKey() []byte {
	out := make([]byte, len(v.key))
	copy(out, v.key)
	return out
}

// Verify reports whether the trailing 64 bytes of packet are a valid signature
// over the rest. It never panics.
func (v *Verifier) Verify(packet []byte) bool {
	_, err := v.Open(packet)
	return err == nil
}

// Open verifies packet and returns its signed payload.
func (v *Verifier) Open(packet []byte) (VerifiedPayload, error) {
	if v == nil || len(v.key) != PublicKeySize {
		return VerifiedPayload{}, fmt.Errorf("%w: verifier has no trusted key", ErrAuthentication)
	}
	p, err := frame.Split(packet)
	if err != nil {
		return VerifiedPayload{}, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if !ed25519.Verify(v.key, p.Payload, p.Signature) {
		return VerifiedPayload{}, ErrAuthentication
	}
	return VerifiedPayload{b: p.Payload}, nil
}

// Sign appends a detached signature over payload using the key derived from
// seed. Used by tooling that crafts packets; nodes sign on-device.
func Sign(seed, payload []byte) ([]byte, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", ErrInvalidKey, SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	sig := ed25519.Sign(priv, payload)
	out := make([]byte, 0, len(payload)+len(sig))
	out = append(out, payload...)
	return append(out, sig...), nil
}

// PublicKeyFromSeed derives the public key matching seed.
func PublicKeyFromSeed(seed []byte) ([]byte, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", ErrInvalidKey, SeedSize, len(seed))
	}
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	return []byte(pub), nil
}
