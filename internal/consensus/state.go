package consensus

import (
	"github.com/rechain/quorumchain/internal/chain"
	"github.com/rechain/quorumchain/internal/wire"
	"github.com/rechain/quorumchain/pkg/crypto"
)

// Step is the per-height state named in §4.6.4.
type Step int

const (
	StepPropose Step = iota
	StepPrevote
	StepPrecommit
	StepCommit
	StepWaitingForData
	StepWaitingForBlock
)

func (s Step) String() string {
	switch s {
	case StepPropose:
		return "Propose"
	case StepPrevote:
		return "Prevote"
	case StepPrecommit:
		return "Precommit"
	case StepCommit:
		return "Commit"
	case StepWaitingForData:
		return "WaitingForData"
	case StepWaitingForBlock:
		return "WaitingForBlock"
	default:
		return "Unknown"
	}
}

// LockInfo records the (round, propose-hash) an honest node is locked on,
// per the locking/unlock rule in §4.6.4.
type LockInfo struct {
	Round       uint32
	ProposeHash crypto.Hash
}

// roundVotes tallies one round's Prevotes or Precommits by the
// proposal hash they name, each keyed by the voting ValidatorId so a
// byzantine double-vote within a round never counts twice.
type roundVotes struct {
	prevotesByHash   map[crypto.Hash]map[uint32]wire.Prevote
	precommitsByPair map[crypto.Hash]map[uint32]wire.Precommit // keyed by ProposeHash; BlockHash is carried inside
}

func newRoundVotes() *roundVotes {
	return &roundVotes{
		prevotesByHash:   make(map[crypto.Hash]map[uint32]wire.Prevote),
		precommitsByPair: make(map[crypto.Hash]map[uint32]wire.Precommit),
	}
}

func (rv *roundVotes) addPrevote(v wire.Prevote) {
	set, ok := rv.prevotesByHash[v.ProposeHash]
	if !ok {
		set = make(map[uint32]wire.Prevote)
		rv.prevotesByHash[v.ProposeHash] = set
	}
	set[v.ValidatorV] = v
}

func (rv *roundVotes) addPrecommit(v wire.Precommit) {
	set, ok := rv.precommitsByPair[v.ProposeHash]
	if !ok {
		set = make(map[uint32]wire.Precommit)
		rv.precommitsByPair[v.ProposeHash] = set
	}
	set[v.ValidatorV] = v
}

func (rv *roundVotes) prevoteCount(hash crypto.Hash) int {
	return len(rv.prevotesByHash[hash])
}

func (rv *roundVotes) precommitCount(hash crypto.Hash) int {
	return len(rv.precommitsByPair[hash])
}

// prevoteBitset marks every ValidatorId this node already holds a Prevote
// for hash from, in the AlreadyHave form a PrevotesRequest carries.
func (rv *roundVotes) prevoteBitset(hash crypto.Hash) []byte {
	set := rv.prevotesByHash[hash]
	bitset := make([]byte, (len(set)+7)/8)
	for v := range set {
		byteIdx := int(v / 8)
		for byteIdx >= len(bitset) {
			bitset = append(bitset, 0)
		}
		bitset[byteIdx] |= 1 << (v % 8)
	}
	return bitset
}

// HeightState is the complete mutable consensus state for one height,
// owned exclusively by the single-threaded engine loop (§4.6.3: "no
// concurrent mutation of consensus state").
type HeightState struct {
	Height     uint64
	Round      uint32
	Step       Step
	Validators chain.ValidatorSet
	Config     chain.ConsensusConfig
	PrevHash   crypto.Hash

	Locked *LockInfo

	// proposes indexes every Propose seen this height by its hash,
	// regardless of round, so a late Prevote can look one up without a
	// ProposeRequest round-trip.
	proposes map[crypto.Hash]wire.Propose
	// proposerOfRound records which ValidatorV has already proposed at a
	// round, rejecting a second Propose from the same proposer (§4.6.4).
	proposerOfRound map[uint32]uint32

	votes map[uint32]*roundVotes // round -> tallies

	// precommitEnv retains the raw signed envelope behind each tallied
	// Precommit, so a BlockResponse answering a later catch-up request can
	// forward proof of the 2f+1 signatures that committed the block —
	// roundVotes itself only needs the unwrapped wire.Precommit to tally.
	precommitEnv map[uint32]map[uint32][]byte

	// pol records, per round, the hash that round reached a 2f+1 Prevote
	// tally for (§4.6.4's "Tally Prevotes"); a round with no entry has no
	// POL yet.
	pol map[uint32]crypto.Hash

	// waitingTxs is the set of tx-hashes this height's WaitingForData step
	// is still missing for the Propose named by WaitingPropose.
	waitingTxs     map[crypto.Hash]struct{}
	WaitingPropose crypto.Hash
}

// NewHeightState begins tracking height, starting at round 1 per §4.6.1.
func NewHeightState(height uint64, prevHash crypto.Hash, validators chain.ValidatorSet, cfg chain.ConsensusConfig) *HeightState {
	return &HeightState{
		Height:          height,
		Round:           1,
		Step:            StepPropose,
		Validators:      validators,
		Config:          cfg,
		PrevHash:        prevHash,
		proposes:        make(map[crypto.Hash]wire.Propose),
		proposerOfRound: make(map[uint32]uint32),
		votes:           make(map[uint32]*roundVotes),
		pol:             make(map[uint32]crypto.Hash),
		precommitEnv:    make(map[uint32]map[uint32][]byte),
	}
}

func (hs *HeightState) votesFor(round uint32) *roundVotes {
	rv, ok := hs.votes[round]
	if !ok {
		rv = newRoundVotes()
		hs.votes[round] = rv
	}
	return rv
}

// Proposer returns the ValidatorId expected to propose at round.
func (hs *HeightState) Proposer(round uint32) uint32 {
	return hs.Validators.Proposer(hs.Height, round)
}

// Quorum is 2f+1 for N = 3f+1 validators (the largest f with 3f+1 <= N).
func (hs *HeightState) Quorum() int {
	n := hs.Validators.N()
	f := (n - 1) / 3
	return 2*f + 1
}

// RecordPropose stores p, rejecting a duplicate Propose from the same
// proposer at the same round (§4.6.4).
func (hs *HeightState) RecordPropose(p wire.Propose) (accepted bool) {
	if existing, ok := hs.proposerOfRound[p.Round]; ok && existing == p.ProposerV {
		return false
	}
	hs.proposerOfRound[p.Round] = p.ProposerV
	hs.proposes[p.Hash()] = p
	return true
}

// GetPropose looks up a previously recorded Propose by hash.
func (hs *HeightState) GetPropose(hash crypto.Hash) (wire.Propose, bool) {
	p, ok := hs.proposes[hash]
	return p, ok
}

// AddPrevote tallies v and reports whether this brought (round, hash) to
// quorum for the first time.
func (hs *HeightState) AddPrevote(v wire.Prevote) (reachedQuorum bool) {
	rv := hs.votesFor(v.Round)
	before := rv.prevoteCount(v.ProposeHash)
	rv.addPrevote(v)
	after := rv.prevoteCount(v.ProposeHash)
	quorum := hs.Quorum()
	if before < quorum && after >= quorum {
		if _, already := hs.pol[v.Round]; !already {
			hs.pol[v.Round] = v.ProposeHash
		}
		return true
	}
	return false
}

// AddPrecommit tallies v and reports whether this brought its ProposeHash
// to quorum for the first time at this round. Precommits are counted by
// ProposeHash alone; their BlockHash values are not compared.
func (hs *HeightState) AddPrecommit(v wire.Precommit) (reachedQuorum bool) {
	rv := hs.votesFor(v.Round)
	before := rv.precommitCount(v.ProposeHash)
	rv.addPrecommit(v)
	after := rv.precommitCount(v.ProposeHash)
	quorum := hs.Quorum()
	return before < quorum && after >= quorum
}

// PrecommitsFor returns the quorum (or more) of Precommits recorded for
// hash at round, used to build a block's authentication when committing.
func (hs *HeightState) PrecommitsFor(round uint32, hash crypto.Hash) []wire.Precommit {
	rv := hs.votesFor(round)
	set := rv.precommitsByPair[hash]
	out := make([]wire.Precommit, 0, len(set))
	for _, pc := range set {
		out = append(out, pc)
	}
	return out
}

// RecordPrecommitEnvelope retains the raw signed envelope a Precommit
// arrived in, indexed by the round and validator it came from.
func (hs *HeightState) RecordPrecommitEnvelope(round, validatorV uint32, raw []byte) {
	m, ok := hs.precommitEnv[round]
	if !ok {
		m = make(map[uint32][]byte)
		hs.precommitEnv[round] = m
	}
	m[validatorV] = raw
}

// PrecommitEnvelopesFor returns the raw signed envelopes behind every
// tallied Precommit for (round, hash), proof a catching-up node can
// verify without re-running consensus.
func (hs *HeightState) PrecommitEnvelopesFor(round uint32, hash crypto.Hash) [][]byte {
	rv := hs.votesFor(round)
	set := rv.precommitsByPair[hash]
	m := hs.precommitEnv[round]
	out := make([][]byte, 0, len(set))
	for v := range set {
		if raw, ok := m[v]; ok {
			out = append(out, raw)
		}
	}
	return out
}

// POLAt returns the hash round r reached a Prevote quorum for, if any.
func (hs *HeightState) POLAt(round uint32) (crypto.Hash, bool) {
	h, ok := hs.pol[round]
	return h, ok
}

// HighestPOLAbove returns the highest round strictly greater than above
// (if any) that has a POL, and the hash it POL'd for — used by the
// unlock rule (§4.6.4).
func (hs *HeightState) HighestPOLAbove(above uint32) (uint32, crypto.Hash, bool) {
	var best uint32
	var bestHash crypto.Hash
	found := false
	for r, h := range hs.pol {
		if r > above && (!found || r > best) {
			best, bestHash, found = r, h, true
		}
	}
	return best, bestHash, found
}

// SetWaitingForTxs marks the height as blocked on the given tx hashes
// before propose can be hash-verified for proposeHash.
func (hs *HeightState) SetWaitingForTxs(proposeHash crypto.Hash, hashes []crypto.Hash) {
	hs.Step = StepWaitingForData
	hs.WaitingPropose = proposeHash
	hs.waitingTxs = make(map[crypto.Hash]struct{}, len(hashes))
	for _, h := range hashes {
		hs.waitingTxs[h] = struct{}{}
	}
}

// ResolveWaitingTx removes hash from the waiting set, reporting whether
// every missing tx is now present.
func (hs *HeightState) ResolveWaitingTx(hash crypto.Hash) (complete bool) {
	delete(hs.waitingTxs, hash)
	return len(hs.waitingTxs) == 0
}
