package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/rechain/quorumchain/pkg/crypto"
)

// Tag identifies which concrete message type a wire Envelope carries.
// Dispatch on the whole message union is a single switch on Tag, per
// the "tagged variant, not a polymorphic base class" design note.
type Tag byte

const (
	TagConnect Tag = iota + 1
	TagStatus
	TagPeersRequest
	TagPeersResponse
	TagPropose
	TagPrevote
	TagPrecommit
	TagBlockRequest
	TagBlockResponse
	TagTransactionsRequest
	TagTransactionsResponse
	TagProposeRequest
	TagPrevotesRequest
)

func (t Tag) String() string {
	switch t {
	case TagConnect:
		return "Connect"
	case TagStatus:
		return "Status"
	case TagPeersRequest:
		return "PeersRequest"
	case TagPeersResponse:
		return "PeersResponse"
	case TagPropose:
		return "Propose"
	case TagPrevote:
		return "Prevote"
	case TagPrecommit:
		return "Precommit"
	case TagBlockRequest:
		return "BlockRequest"
	case TagBlockResponse:
		return "BlockResponse"
	case TagTransactionsRequest:
		return "TransactionsRequest"
	case TagTransactionsResponse:
		return "TransactionsResponse"
	case TagProposeRequest:
		return "ProposeRequest"
	case TagPrevotesRequest:
		return "PrevotesRequest"
	default:
		return "Unknown"
	}
}

// Envelope is the signed wrapper every wire message travels in. Sign uses
// whichever key pair its caller passes: the peer manager signs Connect
// with the author's service key, and the consensus engine signs every
// other tag, Status included, with the author's consensus key.
type Envelope struct {
	Tag       Tag
	Author    crypto.PublicKey
	Body      []byte
	Signature []byte
}

func (e *Envelope) signingBytes() []byte {
	buf := make([]byte, 0, 1+crypto.PublicKeySize+4+len(e.Body))
	buf = append(buf, byte(e.Tag))
	buf = append(buf, e.Author[:]...)
	buf = appendLenPrefixed(buf, e.Body)
	return buf
}

// Sign signs the envelope with kp, setting Author and Signature.
func (e *Envelope) Sign(kp crypto.KeyPair) {
	e.Author = kp.Public
	e.Signature = kp.Sign(e.signingBytes())
}

// Verify checks Signature against Author over the envelope's content.
func (e *Envelope) Verify() bool {
	if len(e.Signature) != crypto.SignatureSize {
		return false
	}
	return crypto.Verify(e.Author, e.signingBytes(), e.Signature)
}

// Encode is the canonical byte encoding sent as one frame's plaintext.
func (e *Envelope) Encode() []byte {
	buf := e.signingBytes()
	buf = appendLenPrefixed(buf, e.Signature)
	return buf
}

// DecodeEnvelope parses the bytes produced by Encode. It does not verify
// the signature; callers must call Verify before acting on the payload.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	r := &reader{data: data}
	tagByte, err := r.byte()
	if err != nil {
		return nil, fmt.Errorf("wire: decode envelope tag: %w", err)
	}
	e := &Envelope{Tag: Tag(tagByte)}
	if err := r.need(crypto.PublicKeySize); err != nil {
		return nil, fmt.Errorf("wire: decode envelope author: %w", err)
	}
	copy(e.Author[:], r.data[r.pos:r.pos+crypto.PublicKeySize])
	r.pos += crypto.PublicKeySize
	if e.Body, err = r.bytes(); err != nil {
		return nil, fmt.Errorf("wire: decode envelope body: %w", err)
	}
	if e.Signature, err = r.bytes(); err != nil {
		return nil, fmt.Errorf("wire: decode envelope signature: %w", err)
	}
	return e, nil
}

// reader is a small cursor over a flat byte slice, mirroring
// internal/chain's byteReader (kept separate since the two packages have
// no reason to share an internal type across a package boundary).
type reader struct {
	data []byte
	pos  int
}

func (r *reader) need(n int) error {
	if r.pos+n > len(r.data) {
		return fmt.Errorf("unexpected end of input")
	}
	return nil
}

func (r *reader) byte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) i64() (int64, error) {
	v, err := r.u64()
	return int64(v), err
}

func (r *reader) hash() (crypto.Hash, error) {
	if err := r.need(crypto.HashSize); err != nil {
		return crypto.ZeroHash, err
	}
	h, _ := crypto.HashFromBytes(r.data[r.pos : r.pos+crypto.HashSize])
	r.pos += crypto.HashSize
	return h, nil
}

func (r *reader) bytes() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	out := append([]byte{}, r.data[r.pos:r.pos+int(n)]...)
	r.pos += int(n)
	return out, nil
}

func (r *reader) string() (string, error) {
	b, err := r.bytes()
	return string(b), err
}

func appendLenPrefixed(buf, v []byte) []byte {
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], uint32(len(v)))
	buf = append(buf, u32[:]...)
	return append(buf, v...)
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendI64(buf []byte, v int64) []byte {
	return appendU64(buf, uint64(v))
}

func appendHash(buf []byte, h crypto.Hash) []byte {
	return append(buf, h.Bytes()...)
}
