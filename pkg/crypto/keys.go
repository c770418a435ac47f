// Package crypto wraps the Ed25519 signing and X25519 key-agreement
// primitives used throughout the node: consensus messages, service
// transactions, and the Noise handshake are all built on this package.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// PublicKeySize and PrivateKeySize mirror ed25519's sizes so callers never
// need to import crypto/ed25519 directly.
const (
	PublicKeySize  = ed25519.PublicKeySize
	PrivateKeySize = ed25519.PrivateKeySize
	SignatureSize  = ed25519.SignatureSize
)

// PublicKey is an Ed25519 verifying key.
type PublicKey [PublicKeySize]byte

// PrivateKey is an Ed25519 signing key (seed + public key, as ed25519.PrivateKey).
type PrivateKey ed25519.PrivateKey

// KeyPair is a consensus or service Ed25519 key pair. A validator holds two
// distinct pairs: one for consensus messages, one for broadcast transactions.
type KeyPair struct {
	Public  PublicKey
	Private PrivateKey
}

// GenerateKeyPair creates a fresh Ed25519 key pair.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("crypto: generate key pair: %w", err)
	}
	var kp KeyPair
	copy(kp.Public[:], pub)
	kp.Private = PrivateKey(priv)
	return kp, nil
}

// Sign signs msg with the private key.
func (kp KeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(ed25519.PrivateKey(kp.Private), msg)
}

// Verify checks a signature made by pub over msg.
func Verify(pub PublicKey, msg, sig []byte) bool {
	if len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig)
}

// String renders the public key as lowercase hex, the form used in logs and
// the validator-set table.
func (p PublicKey) String() string {
	return hex.EncodeToString(p[:])
}

// ParsePublicKeyHex parses the hex form PublicKey.String produces, the
// encoding genesis config files use for validator keys.
func ParsePublicKeyHex(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("crypto: parse public key hex: %w", err)
	}
	if len(b) != PublicKeySize {
		return PublicKey{}, fmt.Errorf("crypto: public key hex has %d bytes, want %d", len(b), PublicKeySize)
	}
	var pub PublicKey
	copy(pub[:], b)
	return pub, nil
}

// ParseX25519PublicKeyHex parses the hex form a peer's Noise static key is
// recorded in (network config's address book).
func ParseX25519PublicKeyHex(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("crypto: parse x25519 public key hex: %w", err)
	}
	if len(b) != 32 {
		return out, fmt.Errorf("crypto: x25519 public key hex has %d bytes, want 32", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// X25519KeyPair derives a Diffie-Hellman key pair for the Noise handshake
// from 32 bytes of randomness. Consensus and X25519 keys are intentionally
// distinct: a validator's Noise static key is generated once per node
// identity, not reused from its Ed25519 consensus key.
type X25519KeyPair struct {
	Private [32]byte
	Public  [32]byte
}

// GenerateX25519KeyPair creates a fresh static Diffie-Hellman key pair for
// transport handshakes.
func GenerateX25519KeyPair() (X25519KeyPair, error) {
	var kp X25519KeyPair
	if _, err := rand.Read(kp.Private[:]); err != nil {
		return X25519KeyPair{}, fmt.Errorf("crypto: generate x25519 key pair: %w", err)
	}
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return X25519KeyPair{}, fmt.Errorf("crypto: derive x25519 public key: %w", err)
	}
	copy(kp.Public[:], pub)
	return kp, nil
}
