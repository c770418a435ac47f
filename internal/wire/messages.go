package wire

import (
	"fmt"

	"github.com/rechain/quorumchain/pkg/crypto"
)

// NoLockedRound is the LockedRound sentinel meaning "not locked".
const NoLockedRound int64 = -1

// Connect advertises this node's address and liveness. Signed with the
// service key; the only message type accepted before a peer is
// "eligible" (§4.3).
type Connect struct {
	Address   string
	UserAgent string
	Timestamp int64
}

func (m Connect) Encode() []byte {
	var buf []byte
	buf = appendLenPrefixed(buf, []byte(m.Address))
	buf = appendLenPrefixed(buf, []byte(m.UserAgent))
	buf = appendI64(buf, m.Timestamp)
	return buf
}

func DecodeConnect(data []byte) (Connect, error) {
	r := &reader{data: data}
	var m Connect
	var err error
	if m.Address, err = r.string(); err != nil {
		return m, err
	}
	if m.UserAgent, err = r.string(); err != nil {
		return m, err
	}
	if m.Timestamp, err = r.i64(); err != nil {
		return m, err
	}
	return m, nil
}

// Status announces the sender's current height, driving catch-up
// (WaitingForBlock).
type Status struct {
	Height uint64
}

func (m Status) Encode() []byte { return appendU64(nil, m.Height) }

func DecodeStatus(data []byte) (Status, error) {
	r := &reader{data: data}
	h, err := r.u64()
	return Status{Height: h}, err
}

// PeersRequest asks for the set of Connects the recipient currently knows.
type PeersRequest struct{}

func (m PeersRequest) Encode() []byte { return nil }

func DecodePeersRequest([]byte) (PeersRequest, error) { return PeersRequest{}, nil }

// PeersResponse answers a PeersRequest.
type PeersResponse struct {
	Peers []Connect
}

func (m PeersResponse) Encode() []byte {
	buf := appendU32(nil, uint32(len(m.Peers)))
	for _, p := range m.Peers {
		buf = appendLenPrefixed(buf, p.Encode())
	}
	return buf
}

func DecodePeersResponse(data []byte) (PeersResponse, error) {
	r := &reader{data: data}
	n, err := r.u32()
	if err != nil {
		return PeersResponse{}, err
	}
	out := PeersResponse{Peers: make([]Connect, 0, n)}
	for i := uint32(0); i < n; i++ {
		raw, err := r.bytes()
		if err != nil {
			return PeersResponse{}, err
		}
		c, err := DecodeConnect(raw)
		if err != nil {
			return PeersResponse{}, err
		}
		out.Peers = append(out.Peers, c)
	}
	return out, nil
}

// Propose is the proposer's block proposal for (Height, Round): the
// ordered list of transaction hashes the block will contain.
type Propose struct {
	Height     uint64
	Round      uint32
	ProposerV  uint32
	PrevHash   crypto.Hash
	TxHashes   []crypto.Hash
}

// Hash identifies this Propose for prevote/precommit bookkeeping and
// ProposeRequest lookups: SHA-256 of its canonical encoding.
func (m Propose) Hash() crypto.Hash { return crypto.SumHash(m.Encode()) }

func (m Propose) Encode() []byte {
	buf := appendU64(nil, m.Height)
	buf = appendU32(buf, m.Round)
	buf = appendU32(buf, m.ProposerV)
	buf = appendHash(buf, m.PrevHash)
	buf = appendU32(buf, uint32(len(m.TxHashes)))
	for _, h := range m.TxHashes {
		buf = appendHash(buf, h)
	}
	return buf
}

func DecodePropose(data []byte) (Propose, error) {
	r := &reader{data: data}
	var m Propose
	var err error
	if m.Height, err = r.u64(); err != nil {
		return m, err
	}
	if m.Round, err = r.u32(); err != nil {
		return m, err
	}
	if m.ProposerV, err = r.u32(); err != nil {
		return m, err
	}
	if m.PrevHash, err = r.hash(); err != nil {
		return m, err
	}
	n, err := r.u32()
	if err != nil {
		return m, err
	}
	m.TxHashes = make([]crypto.Hash, n)
	for i := uint32(0); i < n; i++ {
		if m.TxHashes[i], err = r.hash(); err != nil {
			return m, err
		}
	}
	return m, nil
}

// Prevote is a validator's prevote for (Height, Round, ProposeHash).
// LockedRound is NoLockedRound when the sender is not locked.
type Prevote struct {
	Height      uint64
	Round       uint32
	ValidatorV  uint32
	ProposeHash crypto.Hash
	LockedRound int64
}

func (m Prevote) Encode() []byte {
	buf := appendU64(nil, m.Height)
	buf = appendU32(buf, m.Round)
	buf = appendU32(buf, m.ValidatorV)
	buf = appendHash(buf, m.ProposeHash)
	buf = appendI64(buf, m.LockedRound)
	return buf
}

func DecodePrevote(data []byte) (Prevote, error) {
	r := &reader{data: data}
	var m Prevote
	var err error
	if m.Height, err = r.u64(); err != nil {
		return m, err
	}
	if m.Round, err = r.u32(); err != nil {
		return m, err
	}
	if m.ValidatorV, err = r.u32(); err != nil {
		return m, err
	}
	if m.ProposeHash, err = r.hash(); err != nil {
		return m, err
	}
	if m.LockedRound, err = r.i64(); err != nil {
		return m, err
	}
	return m, nil
}

// Precommit is a validator's precommit for (Height, Round, ProposeHash,
// BlockHash).
type Precommit struct {
	Height      uint64
	Round       uint32
	ValidatorV  uint32
	ProposeHash crypto.Hash
	BlockHash   crypto.Hash
	Timestamp   int64
}

func (m Precommit) Encode() []byte {
	buf := appendU64(nil, m.Height)
	buf = appendU32(buf, m.Round)
	buf = appendU32(buf, m.ValidatorV)
	buf = appendHash(buf, m.ProposeHash)
	buf = appendHash(buf, m.BlockHash)
	buf = appendI64(buf, m.Timestamp)
	return buf
}

func DecodePrecommit(data []byte) (Precommit, error) {
	r := &reader{data: data}
	var m Precommit
	var err error
	if m.Height, err = r.u64(); err != nil {
		return m, err
	}
	if m.Round, err = r.u32(); err != nil {
		return m, err
	}
	if m.ValidatorV, err = r.u32(); err != nil {
		return m, err
	}
	if m.ProposeHash, err = r.hash(); err != nil {
		return m, err
	}
	if m.BlockHash, err = r.hash(); err != nil {
		return m, err
	}
	if m.Timestamp, err = r.i64(); err != nil {
		return m, err
	}
	return m, nil
}

// BlockRequest asks for the committed block at Height, used during
// WaitingForBlock catch-up.
type BlockRequest struct {
	Height uint64
}

func (m BlockRequest) Encode() []byte { return appendU64(nil, m.Height) }

func DecodeBlockRequest(data []byte) (BlockRequest, error) {
	r := &reader{data: data}
	h, err := r.u64()
	return BlockRequest{Height: h}, err
}

// BlockResponse answers a BlockRequest: the encoded block header, the
// ordered encoded transaction envelopes, and the raw signed Envelopes
// (TagPrecommit) of the 2f+1 Precommits that committed it — carried whole,
// not unwrapped, so the requester can verify each signature itself rather
// than trust the responder's relay — so it can verify and commit directly
// without re-running consensus for that height.
type BlockResponse struct {
	Height           uint64
	BlockBytes       []byte
	TxBytes          [][]byte
	PrecommitEnvelopes [][]byte
}

func (m BlockResponse) Encode() []byte {
	buf := appendU64(nil, m.Height)
	buf = appendLenPrefixed(buf, m.BlockBytes)
	buf = appendU32(buf, uint32(len(m.TxBytes)))
	for _, tx := range m.TxBytes {
		buf = appendLenPrefixed(buf, tx)
	}
	buf = appendU32(buf, uint32(len(m.PrecommitEnvelopes)))
	for _, raw := range m.PrecommitEnvelopes {
		buf = appendLenPrefixed(buf, raw)
	}
	return buf
}

func DecodeBlockResponse(data []byte) (BlockResponse, error) {
	r := &reader{data: data}
	var m BlockResponse
	var err error
	if m.Height, err = r.u64(); err != nil {
		return m, err
	}
	if m.BlockBytes, err = r.bytes(); err != nil {
		return m, err
	}
	nTx, err := r.u32()
	if err != nil {
		return m, err
	}
	m.TxBytes = make([][]byte, nTx)
	for i := uint32(0); i < nTx; i++ {
		if m.TxBytes[i], err = r.bytes(); err != nil {
			return m, err
		}
	}
	nPc, err := r.u32()
	if err != nil {
		return m, err
	}
	m.PrecommitEnvelopes = make([][]byte, nPc)
	for i := uint32(0); i < nPc; i++ {
		if m.PrecommitEnvelopes[i], err = r.bytes(); err != nil {
			return m, err
		}
	}
	return m, nil
}

// TransactionsRequest asks for the envelopes of the listed hashes.
type TransactionsRequest struct {
	TxHashes []crypto.Hash
}

func (m TransactionsRequest) Encode() []byte {
	buf := appendU32(nil, uint32(len(m.TxHashes)))
	for _, h := range m.TxHashes {
		buf = appendHash(buf, h)
	}
	return buf
}

func DecodeTransactionsRequest(data []byte) (TransactionsRequest, error) {
	r := &reader{data: data}
	n, err := r.u32()
	if err != nil {
		return TransactionsRequest{}, err
	}
	m := TransactionsRequest{TxHashes: make([]crypto.Hash, n)}
	for i := uint32(0); i < n; i++ {
		if m.TxHashes[i], err = r.hash(); err != nil {
			return m, err
		}
	}
	return m, nil
}

// TransactionsResponse batches accepted transaction envelopes. A
// responder may split one logical answer across several
// TransactionsResponse messages to respect max_message_len; doing so
// must not reorder entries that came from an order-significant request
// (§4.5's responders note).
type TransactionsResponse struct {
	TxBytes [][]byte
}

func (m TransactionsResponse) Encode() []byte {
	buf := appendU32(nil, uint32(len(m.TxBytes)))
	for _, tx := range m.TxBytes {
		buf = appendLenPrefixed(buf, tx)
	}
	return buf
}

func DecodeTransactionsResponse(data []byte) (TransactionsResponse, error) {
	r := &reader{data: data}
	n, err := r.u32()
	if err != nil {
		return TransactionsResponse{}, err
	}
	m := TransactionsResponse{TxBytes: make([][]byte, n)}
	for i := uint32(0); i < n; i++ {
		if m.TxBytes[i], err = r.bytes(); err != nil {
			return m, err
		}
	}
	return m, nil
}

// ProposeRequest asks the sender's peer for the Propose identified by
// ProposeHash, at Height — issued when a Prevote arrives for an unknown
// Propose.
type ProposeRequest struct {
	Height      uint64
	ProposeHash crypto.Hash
}

func (m ProposeRequest) Encode() []byte {
	buf := appendU64(nil, m.Height)
	buf = appendHash(buf, m.ProposeHash)
	return buf
}

func DecodeProposeRequest(data []byte) (ProposeRequest, error) {
	r := &reader{data: data}
	var m ProposeRequest
	var err error
	if m.Height, err = r.u64(); err != nil {
		return m, err
	}
	if m.ProposeHash, err = r.hash(); err != nil {
		return m, err
	}
	return m, nil
}

// PrevotesRequest asks for Prevotes at (Height, Round, ProposeHash),
// excluding the validators the requester already has (per AlreadyHave, a
// bitset indexed by ValidatorId), issued when progress toward 2f+1
// stalls.
type PrevotesRequest struct {
	Height      uint64
	Round       uint32
	ProposeHash crypto.Hash
	AlreadyHave []byte
}

func (m PrevotesRequest) Encode() []byte {
	buf := appendU64(nil, m.Height)
	buf = appendU32(buf, m.Round)
	buf = appendHash(buf, m.ProposeHash)
	buf = appendLenPrefixed(buf, m.AlreadyHave)
	return buf
}

func DecodePrevotesRequest(data []byte) (PrevotesRequest, error) {
	r := &reader{data: data}
	var m PrevotesRequest
	var err error
	if m.Height, err = r.u64(); err != nil {
		return m, err
	}
	if m.Round, err = r.u32(); err != nil {
		return m, err
	}
	if m.ProposeHash, err = r.hash(); err != nil {
		return m, err
	}
	if m.AlreadyHave, err = r.bytes(); err != nil {
		return m, err
	}
	return m, nil
}

// Decoded is the result of decoding one Envelope's Body: exactly one
// field is non-nil, selected by Tag.
type Decoded struct {
	Tag Tag

	Connect               *Connect
	Status                *Status
	PeersRequest          *PeersRequest
	PeersResponse         *PeersResponse
	Propose               *Propose
	Prevote               *Prevote
	Precommit             *Precommit
	BlockRequest          *BlockRequest
	BlockResponse         *BlockResponse
	TransactionsRequest   *TransactionsRequest
	TransactionsResponse  *TransactionsResponse
	ProposeRequest        *ProposeRequest
	PrevotesRequest       *PrevotesRequest
}

// DecodeBody decodes env.Body according to env.Tag. An unrecognized tag
// returns an error; §6 requires the caller to drop the connection
// without response in that case.
func DecodeBody(env *Envelope) (Decoded, error) {
	d := Decoded{Tag: env.Tag}
	var err error
	switch env.Tag {
	case TagConnect:
		var m Connect
		if m, err = DecodeConnect(env.Body); err == nil {
			d.Connect = &m
		}
	case TagStatus:
		var m Status
		if m, err = DecodeStatus(env.Body); err == nil {
			d.Status = &m
		}
	case TagPeersRequest:
		var m PeersRequest
		if m, err = DecodePeersRequest(env.Body); err == nil {
			d.PeersRequest = &m
		}
	case TagPeersResponse:
		var m PeersResponse
		if m, err = DecodePeersResponse(env.Body); err == nil {
			d.PeersResponse = &m
		}
	case TagPropose:
		var m Propose
		if m, err = DecodePropose(env.Body); err == nil {
			d.Propose = &m
		}
	case TagPrevote:
		var m Prevote
		if m, err = DecodePrevote(env.Body); err == nil {
			d.Prevote = &m
		}
	case TagPrecommit:
		var m Precommit
		if m, err = DecodePrecommit(env.Body); err == nil {
			d.Precommit = &m
		}
	case TagBlockRequest:
		var m BlockRequest
		if m, err = DecodeBlockRequest(env.Body); err == nil {
			d.BlockRequest = &m
		}
	case TagBlockResponse:
		var m BlockResponse
		if m, err = DecodeBlockResponse(env.Body); err == nil {
			d.BlockResponse = &m
		}
	case TagTransactionsRequest:
		var m TransactionsRequest
		if m, err = DecodeTransactionsRequest(env.Body); err == nil {
			d.TransactionsRequest = &m
		}
	case TagTransactionsResponse:
		var m TransactionsResponse
		if m, err = DecodeTransactionsResponse(env.Body); err == nil {
			d.TransactionsResponse = &m
		}
	case TagProposeRequest:
		var m ProposeRequest
		if m, err = DecodeProposeRequest(env.Body); err == nil {
			d.ProposeRequest = &m
		}
	case TagPrevotesRequest:
		var m PrevotesRequest
		if m, err = DecodePrevotesRequest(env.Body); err == nil {
			d.PrevotesRequest = &m
		}
	default:
		return Decoded{}, fmt.Errorf("wire: unrecognized message tag %d", env.Tag)
	}
	if err != nil {
		return Decoded{}, fmt.Errorf("wire: decode %s body: %w", env.Tag, err)
	}
	return d, nil
}
