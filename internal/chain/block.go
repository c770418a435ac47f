package chain

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/rechain/quorumchain/pkg/crypto"
)

// Block is the canonical block header (§3). Blocks never carry their
// transaction bodies inline; the ordered tx-hash list used to build
// tx-root is the only link to internal/chain's tx table.
type Block struct {
	Height           uint64
	PrevHash         crypto.Hash
	ProposerID       uint32
	TxCount          uint32
	TxRoot           crypto.Hash
	StateRoot        crypto.Hash
	ErrorRoot        crypto.Hash
	AdditionalHeaders map[string][]byte
}

// Hash is SHA-256 of the block's canonical byte encoding.
func (b *Block) Hash() crypto.Hash {
	return crypto.SumHash(b.Encode())
}

// Encode produces the canonical, length-prefixed, little-endian encoding
// required by §6: two semantically equal blocks always encode to
// identical bytes. Additional headers are sorted by key so iteration
// order of the map never affects the encoding.
func (b *Block) Encode() []byte {
	keys := make([]string, 0, len(b.AdditionalHeaders))
	for k := range b.AdditionalHeaders {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := make([]byte, 0, 64+len(keys)*16)
	var u64 [8]byte
	var u32 [4]byte

	binary.LittleEndian.PutUint64(u64[:], b.Height)
	buf = append(buf, u64[:]...)
	buf = append(buf, b.PrevHash.Bytes()...)
	binary.LittleEndian.PutUint32(u32[:], b.ProposerID)
	buf = append(buf, u32[:]...)
	binary.LittleEndian.PutUint32(u32[:], b.TxCount)
	buf = append(buf, u32[:]...)
	buf = append(buf, b.TxRoot.Bytes()...)
	buf = append(buf, b.StateRoot.Bytes()...)
	buf = append(buf, b.ErrorRoot.Bytes()...)

	binary.LittleEndian.PutUint32(u32[:], uint32(len(keys)))
	buf = append(buf, u32[:]...)
	for _, k := range keys {
		v := b.AdditionalHeaders[k]
		binary.LittleEndian.PutUint32(u32[:], uint32(len(k)))
		buf = append(buf, u32[:]...)
		buf = append(buf, k...)
		binary.LittleEndian.PutUint32(u32[:], uint32(len(v)))
		buf = append(buf, u32[:]...)
		buf = append(buf, v...)
	}
	return buf
}

// DecodeBlock parses the bytes produced by Encode.
func DecodeBlock(data []byte) (*Block, error) {
	r := &byteReader{data: data}
	b := &Block{}

	height, err := r.uint64()
	if err != nil {
		return nil, fmt.Errorf("chain: decode block height: %w", err)
	}
	b.Height = height

	prevHash, err := r.hash()
	if err != nil {
		return nil, fmt.Errorf("chain: decode block prev-hash: %w", err)
	}
	b.PrevHash = prevHash

	proposerID, err := r.uint32()
	if err != nil {
		return nil, fmt.Errorf("chain: decode block proposer-id: %w", err)
	}
	b.ProposerID = proposerID

	txCount, err := r.uint32()
	if err != nil {
		return nil, fmt.Errorf("chain: decode block tx-count: %w", err)
	}
	b.TxCount = txCount

	if b.TxRoot, err = r.hash(); err != nil {
		return nil, fmt.Errorf("chain: decode block tx-root: %w", err)
	}
	if b.StateRoot, err = r.hash(); err != nil {
		return nil, fmt.Errorf("chain: decode block state-root: %w", err)
	}
	if b.ErrorRoot, err = r.hash(); err != nil {
		return nil, fmt.Errorf("chain: decode block error-root: %w", err)
	}

	n, err := r.uint32()
	if err != nil {
		return nil, fmt.Errorf("chain: decode block header count: %w", err)
	}
	if n > 0 {
		b.AdditionalHeaders = make(map[string][]byte, n)
	}
	for i := uint32(0); i < n; i++ {
		k, err := r.lenPrefixedString()
		if err != nil {
			return nil, fmt.Errorf("chain: decode block header key: %w", err)
		}
		v, err := r.lenPrefixedBytes()
		if err != nil {
			return nil, fmt.Errorf("chain: decode block header value: %w", err)
		}
		b.AdditionalHeaders[k] = v
	}
	return b, nil
}

// byteReader is a small cursor over a flat byte slice used by every
// canonical decoder in this package.
type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) need(n int) error {
	if r.pos+n > len(r.data) {
		return fmt.Errorf("unexpected end of input")
	}
	return nil
}

func (r *byteReader) uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *byteReader) uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *byteReader) hash() (crypto.Hash, error) {
	if err := r.need(crypto.HashSize); err != nil {
		return crypto.ZeroHash, err
	}
	h, _ := crypto.HashFromBytes(r.data[r.pos : r.pos+crypto.HashSize])
	r.pos += crypto.HashSize
	return h, nil
}

func (r *byteReader) lenPrefixedBytes() ([]byte, error) {
	n, err := r.uint32()
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

func (r *byteReader) lenPrefixedString() (string, error) {
	b, err := r.lenPrefixedBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
