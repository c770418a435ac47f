package crypto

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

func hexEncode(b []byte) string         { return hex.EncodeToString(b) }
func hexDecode(s string) ([]byte, error) { return hex.DecodeString(s) }

// keyFile is the on-disk JSON shape for a KeyPair, hex-encoded the same
// way PublicKey.String renders keys everywhere else in logs and tables.
type keyFile struct {
	Public  string `json:"public"`
	Private string `json:"private"`
}

// SaveKeyPair writes kp to path as JSON, creating parent-less files with
// owner-only permissions (private key material).
func SaveKeyPair(path string, kp KeyPair) error {
	data, err := json.MarshalIndent(keyFile{
		Public:  hexEncode(kp.Public[:]),
		Private: hexEncode(kp.Private),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("crypto: marshal key pair: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("crypto: write key pair %s: %w", path, err)
	}
	return nil
}

// LoadKeyPair reads a KeyPair previously written by SaveKeyPair.
func LoadKeyPair(path string) (KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KeyPair{}, fmt.Errorf("crypto: read key pair %s: %w", path, err)
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return KeyPair{}, fmt.Errorf("crypto: unmarshal key pair %s: %w", path, err)
	}
	pub, err := hexDecode(kf.Public)
	if err != nil || len(pub) != PublicKeySize {
		return KeyPair{}, fmt.Errorf("crypto: key pair %s has malformed public key", path)
	}
	priv, err := hexDecode(kf.Private)
	if err != nil || len(priv) != PrivateKeySize {
		return KeyPair{}, fmt.Errorf("crypto: key pair %s has malformed private key", path)
	}
	var kp KeyPair
	copy(kp.Public[:], pub)
	kp.Private = PrivateKey(priv)
	return kp, nil
}

// x25519KeyFile is the on-disk JSON shape for an X25519KeyPair.
type x25519KeyFile struct {
	Public  string `json:"public"`
	Private string `json:"private"`
}

// SaveX25519KeyPair writes kp to path as JSON.
func SaveX25519KeyPair(path string, kp X25519KeyPair) error {
	data, err := json.MarshalIndent(x25519KeyFile{
		Public:  hexEncode(kp.Public[:]),
		Private: hexEncode(kp.Private[:]),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("crypto: marshal x25519 key pair: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("crypto: write x25519 key pair %s: %w", path, err)
	}
	return nil
}

// LoadX25519KeyPair reads an X25519KeyPair previously written by
// SaveX25519KeyPair.
func LoadX25519KeyPair(path string) (X25519KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return X25519KeyPair{}, fmt.Errorf("crypto: read x25519 key pair %s: %w", path, err)
	}
	var kf x25519KeyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return X25519KeyPair{}, fmt.Errorf("crypto: unmarshal x25519 key pair %s: %w", path, err)
	}
	pub, err := hexDecode(kf.Public)
	if err != nil || len(pub) != 32 {
		return X25519KeyPair{}, fmt.Errorf("crypto: x25519 key pair %s has malformed public key", path)
	}
	priv, err := hexDecode(kf.Private)
	if err != nil || len(priv) != 32 {
		return X25519KeyPair{}, fmt.Errorf("crypto: x25519 key pair %s has malformed private key", path)
	}
	var kp X25519KeyPair
	copy(kp.Public[:], pub)
	copy(kp.Private[:], priv)
	return kp, nil
}
