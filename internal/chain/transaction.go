package chain

import (
	"encoding/binary"
	"fmt"

	"github.com/rechain/quorumchain/pkg/crypto"
)

// Envelope is a transaction as submitted by a client: an opaque payload
// addressed to a runtime instance/method, signed by the author's service
// key. Consensus never interprets Payload; only the out-of-scope runtime
// (internal/executor's Runtime boundary) does.
type Envelope struct {
	InstanceID string
	MethodID   string
	Payload    []byte
	Author     crypto.PublicKey
	Signature  []byte
}

// Sign sets Author to kp's public key and signs the envelope's content
// (instance-id, method-id, payload, author) with kp's private key.
func (e *Envelope) Sign(kp crypto.KeyPair) {
	e.Author = kp.Public
	e.Signature = kp.Sign(e.signingBytes())
}

// Verify reports whether Signature is a valid Ed25519 signature by Author
// over this envelope's content.
func (e *Envelope) Verify() bool {
	if len(e.Signature) != crypto.SignatureSize {
		return false
	}
	return crypto.Verify(e.Author, e.signingBytes(), e.Signature)
}

func (e *Envelope) signingBytes() []byte {
	buf := make([]byte, 0, len(e.InstanceID)+len(e.MethodID)+len(e.Payload)+crypto.PublicKeySize+16)
	buf = appendLenPrefixed(buf, []byte(e.InstanceID))
	buf = appendLenPrefixed(buf, []byte(e.MethodID))
	buf = appendLenPrefixed(buf, e.Payload)
	buf = append(buf, e.Author[:]...)
	return buf
}

// Encode is the canonical byte encoding whose SHA-256 is the envelope's
// hash, and which is what goes out over the wire and into the tx table.
func (e *Envelope) Encode() []byte {
	buf := e.signingBytes()
	buf = appendLenPrefixed(buf, e.Signature)
	return buf
}

// Hash is SHA-256 of the envelope's canonical encoding.
func (e *Envelope) Hash() crypto.Hash {
	return crypto.SumHash(e.Encode())
}

// DecodeEnvelope parses the bytes produced by Encode.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	r := &byteReader{data: data}
	e := &Envelope{}

	var err error
	if e.InstanceID, err = r.lenPrefixedString(); err != nil {
		return nil, fmt.Errorf("chain: decode envelope instance-id: %w", err)
	}
	if e.MethodID, err = r.lenPrefixedString(); err != nil {
		return nil, fmt.Errorf("chain: decode envelope method-id: %w", err)
	}
	if e.Payload, err = r.lenPrefixedBytes(); err != nil {
		return nil, fmt.Errorf("chain: decode envelope payload: %w", err)
	}
	if err := r.need(crypto.PublicKeySize); err != nil {
		return nil, fmt.Errorf("chain: decode envelope author: %w", err)
	}
	copy(e.Author[:], r.data[r.pos:r.pos+crypto.PublicKeySize])
	r.pos += crypto.PublicKeySize
	if e.Signature, err = r.lenPrefixedBytes(); err != nil {
		return nil, fmt.Errorf("chain: decode envelope signature: %w", err)
	}
	return e, nil
}

func appendLenPrefixed(buf, v []byte) []byte {
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], uint32(len(v)))
	buf = append(buf, u32[:]...)
	return append(buf, v...)
}

// TxResult is the outcome recorded for an executed transaction.
type TxResult struct {
	Failed      bool
	Kind        string // populated only when Failed
	Description string // populated only when Failed
}

// Encode is the canonical byte encoding stored under tx-result.
func (r TxResult) Encode() []byte {
	var buf []byte
	if r.Failed {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendLenPrefixed(buf, []byte(r.Kind))
	buf = appendLenPrefixed(buf, []byte(r.Description))
	return buf
}

// DecodeTxResult parses the bytes produced by Encode.
func DecodeTxResult(data []byte) (TxResult, error) {
	if len(data) < 1 {
		return TxResult{}, fmt.Errorf("chain: decode tx-result: empty input")
	}
	r := &byteReader{data: data[1:]}
	kind, err := r.lenPrefixedString()
	if err != nil {
		return TxResult{}, fmt.Errorf("chain: decode tx-result kind: %w", err)
	}
	desc, err := r.lenPrefixedString()
	if err != nil {
		return TxResult{}, fmt.Errorf("chain: decode tx-result description: %w", err)
	}
	return TxResult{Failed: data[0] == 1, Kind: kind, Description: desc}, nil
}

// TxLocation records where a committed transaction landed: its block
// height and its index within that block's ordered tx list.
type TxLocation struct {
	Height uint64
	Index  uint32
}

// Encode is the canonical byte encoding stored under tx-location.
func (l TxLocation) Encode() []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint64(buf[:8], l.Height)
	binary.LittleEndian.PutUint32(buf[8:], l.Index)
	return buf
}

// DecodeTxLocation parses the bytes produced by Encode.
func DecodeTxLocation(data []byte) (TxLocation, error) {
	if len(data) != 12 {
		return TxLocation{}, fmt.Errorf("chain: decode tx-location: want 12 bytes, got %d", len(data))
	}
	return TxLocation{
		Height: binary.LittleEndian.Uint64(data[:8]),
		Index:  binary.LittleEndian.Uint32(data[8:]),
	}, nil
}
