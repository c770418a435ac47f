package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashSize is the width of every digest used by the store and the wire
// protocol.
const HashSize = sha256.Size

// Hash is a SHA-256 digest.
type Hash [HashSize]byte

// ZeroHash is the all-zeros digest: the root of an empty ProofList and the
// previous-block hash of the genesis block.
var ZeroHash Hash

// SumHash returns SHA-256(data).
func SumHash(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// SumHash2 returns SHA-256(a || b), the pairing function the Merkle list
// uses to combine sibling hashes (the Merkle map uses its own prefixed
// branch hash instead).
func SumHash2(a, b Hash) Hash {
	h := sha256.New()
	h.Write(a[:])
	h.Write(b[:])
	var out Hash
	h.Sum(out[:0])
	return out
}

// IsZero reports whether h is the all-zeros hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	out := make([]byte, HashSize)
	copy(out, h[:])
	return out
}

// HashFromBytes copies b (which must be HashSize long) into a Hash.
func HashFromBytes(b []byte) (Hash, bool) {
	var h Hash
	if len(b) != HashSize {
		return h, false
	}
	copy(h[:], b)
	return h, true
}

// ParseHashHex parses the hex form Hash.String produces, used to recover a
// Hash from a composite request/timer key.
func ParseHashHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, err
	}
	h, ok := HashFromBytes(b)
	if !ok {
		return Hash{}, fmt.Errorf("crypto: hash hex has %d bytes, want %d", len(b), HashSize)
	}
	return h, nil
}
