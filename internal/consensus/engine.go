// Package consensus implements the central subsystem (component G): a
// single-threaded cooperative event loop running the three-phase-voting
// protocol of §4.6 over one MPSC channel of network messages, timer
// fires, and external commands. Grounded in the teacher's
// internal/consensus.Consensus (consensus.go: a mutex-guarded struct with
// AddVote/AddTransaction/ExecuteBlock methods called directly by the P2P
// read loop) — generalized from that ad hoc locking scheme into a single
// owner goroutine that never shares state with the I/O goroutines except
// through channels, per §5's concurrency model.
package consensus

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rechain/quorumchain/internal/chain"
	"github.com/rechain/quorumchain/internal/executor"
	"github.com/rechain/quorumchain/internal/mempool"
	"github.com/rechain/quorumchain/internal/network"
	"github.com/rechain/quorumchain/internal/store"
	"github.com/rechain/quorumchain/internal/wire"
	"github.com/rechain/quorumchain/pkg/crypto"
)

// commitRecord is what a BlockRequest responder needs to answer a
// catch-up request: the ordered tx list and the Precommits that
// authenticated the block (§4.6.5's BlockResponse contents).
type commitRecord struct {
	txHashes           []crypto.Hash
	precommitEnvelopes [][]byte
}

type queuedMessage struct {
	peerAddr string
	env      *wire.Envelope
}

// event is the single union type drained from the engine's MPSC channel
// (§4.6.3): exactly one of the three fields is non-nil.
type event struct {
	network  *network.InboundMessage
	timer    *timerFired
	shutdown bool
}

// Engine is the consensus core. One Engine drives exactly one node's
// participation in the protocol; Start launches its single event-loop
// goroutine, which owns all consensus state exclusively while running.
type Engine struct {
	db   *store.Database
	net  *network.Manager
	pool *mempool.Pool
	ex   *executor.Executor
	clock Clock
	wal  *WAL

	consensusKP  crypto.KeyPair
	selfAddress  string

	events chan event
	quit   chan struct{}
	done   chan struct{}

	currentHeight uint64
	height        *HeightState // state for currentHeight; nil only until enterHeight or Resume first builds it

	futureQueue map[uint64][]queuedMessage

	pending  map[string]*pendingRequest
	timerSeq map[string]uint64
	timerMu  sync.Mutex

	commitRecords map[uint64]commitRecord

	// resumed is set by Resume (internal/recovery's entry point) once it
	// has rebuilt e.height from the WAL, so Start knows to keep that
	// state rather than build a fresh one (§4.6.7).
	resumed bool
}

// EngineConfig bundles everything Engine needs beyond the store/network/
// mempool/executor it's handed directly.
type EngineConfig struct {
	WALPath     string
	ConsensusKP crypto.KeyPair
	SelfAddress string
	Clock       Clock
}

// NewEngine constructs an Engine. Bootstrap must be called once before
// Start if genesis state (height-0 validator set and config) has not
// already been recorded.
func NewEngine(db *store.Database, net *network.Manager, pool *mempool.Pool, ex *executor.Executor, cfg EngineConfig) (*Engine, error) {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock
	}
	wal, err := OpenWAL(cfg.WALPath, 0)
	if err != nil {
		return nil, err
	}
	return &Engine{
		db:            db,
		net:           net,
		pool:          pool,
		ex:            ex,
		clock:         clock,
		wal:           wal,
		consensusKP:   cfg.ConsensusKP,
		selfAddress:   cfg.SelfAddress,
		events:        make(chan event, 1024),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
		futureQueue:   make(map[uint64][]queuedMessage),
		pending:       make(map[string]*pendingRequest),
		timerSeq:      make(map[string]uint64),
		commitRecords: make(map[uint64]commitRecord),
	}, nil
}

// Bootstrap records the genesis validator set and consensus config at
// height 0 if none is recorded yet. Safe to call on every startup.
func Bootstrap(db *store.Database, vs chain.ValidatorSet, cfg chain.ConsensusConfig) error {
	snap := db.Snapshot()
	tbl, err := chain.OpenTables(snap)
	if err != nil {
		return fmt.Errorf("consensus: bootstrap open tables: %w", err)
	}
	if _, ok := tbl.GetValidatorSetAt(0); ok {
		return nil
	}
	fork := db.Fork()
	forkTbl, err := chain.OpenTables(fork)
	if err != nil {
		return fmt.Errorf("consensus: bootstrap open fork tables: %w", err)
	}
	forkTbl.PutValidatorSetAt(0, vs)
	forkTbl.PutConsensusConfigAt(0, cfg)
	return db.Merge(fork.Patch())
}

// Start begins the engine's event loop and the goroutine pumping network
// messages into it. Recovery (replaying the WAL) must have already run
// via internal/recovery before Start is called.
func (e *Engine) Start(startHeight uint64) error {
	go e.pumpNetwork()
	go e.run(startHeight)
	return nil
}

// Resume reconstructs this engine's in-memory HeightState for height
// from its WAL, without broadcasting or re-appending any of the replayed
// records, so a later Start(height) resumes exactly where the node left
// off (§4.6.7, P4). Must be called, if at all, before Start.
func (e *Engine) Resume(height uint64) error {
	e.height = e.buildHeightState(height)
	e.resumed = true
	return e.wal.Replay(func(env *wire.Envelope) error {
		e.applyRecoveredEnvelope(env)
		return nil
	})
}

// applyRecoveredEnvelope folds one self-authored WAL record back into
// e.height: Proposes and Precommits/Prevotes are tallied exactly as they
// would be on first receipt, except a self-authored Precommit also
// restores the lock it had set (§4.6.4's lock, not just its vote tally —
// AddPrecommit alone can't distinguish "this node precommitted" from
// "this node merely observed a quorum").
func (e *Engine) applyRecoveredEnvelope(env *wire.Envelope) {
	decoded, err := wire.DecodeBody(env)
	if err != nil {
		return
	}
	hs := e.height
	switch decoded.Tag {
	case wire.TagPropose:
		hs.RecordPropose(*decoded.Propose)
		if decoded.Propose.Round >= hs.Round {
			hs.Round = decoded.Propose.Round
		}
	case wire.TagPrevote:
		v := *decoded.Prevote
		hs.AddPrevote(v)
		if v.Round >= hs.Round {
			hs.Round = v.Round
		}
	case wire.TagPrecommit:
		v := *decoded.Precommit
		hs.RecordPrecommitEnvelope(v.Round, v.ValidatorV, env.Encode())
		hs.AddPrecommit(v)
		if env.Author == e.consensusKP.Public && !v.ProposeHash.IsZero() {
			if hs.Locked == nil || hs.Locked.Round < v.Round {
				hs.Locked = &LockInfo{Round: v.Round, ProposeHash: v.ProposeHash}
			}
			hs.Step = StepPrecommit
		}
		if v.Round >= hs.Round {
			hs.Round = v.Round
		}
	}
}

// Stop requests a cooperative shutdown and waits for the event loop to
// exit, closing the WAL cleanly (§5's cancellation model).
func (e *Engine) Stop() {
	select {
	case e.events <- event{shutdown: true}:
	default:
	}
	close(e.quit)
	<-e.done
	e.wal.Close()
}

func (e *Engine) pumpNetwork() {
	for {
		select {
		case msg, ok := <-e.net.Inbound:
			if !ok {
				return
			}
			select {
			case e.events <- event{network: &msg}:
			case <-e.quit:
				return
			}
		case <-e.quit:
			return
		}
	}
}

func (e *Engine) run(startHeight uint64) {
	defer close(e.done)
	if e.resumed && e.height != nil && e.height.Height == startHeight {
		e.resumeRound()
	} else {
		e.enterHeight(startHeight)
	}
	for {
		select {
		case ev := <-e.events:
			if ev.shutdown {
				return
			}
			e.handleEvent(ev)
		case <-e.quit:
			return
		}
	}
}

func (e *Engine) handleEvent(ev event) {
	switch {
	case ev.network != nil:
		e.handleNetworkMessage(ev.network.PeerAddress, ev.network.Env)
	case ev.timer != nil:
		e.handleTimer(ev.timer)
	}
}

// activeValidators and activeConfig read the validator set / consensus
// config authoritative at the engine's current height (§4.6.6).
func (e *Engine) activeValidators() chain.ValidatorSet {
	snap := e.db.Snapshot()
	tbl, err := chain.OpenTables(snap)
	if err != nil {
		return chain.ValidatorSet{}
	}
	vs, _ := chain.ActiveValidatorSet(tbl, e.currentHeight)
	return vs
}

func (e *Engine) activeConfig() chain.ConsensusConfig {
	snap := e.db.Snapshot()
	tbl, err := chain.OpenTables(snap)
	if err != nil {
		return chain.DefaultConsensusConfig()
	}
	cfg, ok := chain.ActiveConsensusConfig(tbl, e.currentHeight)
	if !ok {
		return chain.DefaultConsensusConfig()
	}
	return cfg
}

func (e *Engine) selfValidatorV(vs chain.ValidatorSet) (uint32, bool) {
	for i, v := range vs.Validators {
		if v.ConsensusKey == e.consensusKP.Public {
			return uint32(i), true
		}
	}
	return 0, false
}

// buildHeightState looks up the committed block at height-1 for its hash
// (or ZeroHash at the virtual genesis height 0) and the validator
// set/config active at height, and returns a fresh HeightState for it.
// Sets e.currentHeight as a side effect, since activeValidators/
// activeConfig read it.
func (e *Engine) buildHeightState(height uint64) *HeightState {
	e.currentHeight = height
	prevHash := crypto.ZeroHash
	if height > 0 {
		snap := e.db.Snapshot()
		tbl, err := chain.OpenTables(snap)
		if err == nil {
			if b, ok := tbl.GetBlockByHeight(height - 1); ok {
				prevHash = b.Hash()
			}
		}
	}

	vs := e.activeValidators()
	cfg := e.activeConfig()
	return NewHeightState(height, prevHash, vs, cfg)
}

// enterHeight starts tracking a fresh height, then enters round 1.
func (e *Engine) enterHeight(height uint64) {
	e.height = e.buildHeightState(height)

	// The WAL only ever needs to cover the height currently being voted
	// on: once height-1 committed, nothing in it can be replayed against
	// peers anymore, so it's safe to start this height's WAL empty.
	if err := e.wal.Truncate(); err != nil {
		log.Printf("consensus: wal truncate entering height %d: %v", height, err)
	}

	e.replayFutureQueue(height)
	e.broadcastStatus()
	e.enterRound(1)
}

// broadcastStatus announces this node's current height to every eligible
// peer (§4.6.5): the only way a peer that has fallen behind learns it
// needs to catch up, since nothing else in the protocol carries height
// information outside of a vote for that exact height.
func (e *Engine) broadcastStatus() {
	st := wire.Status{Height: e.currentHeight}
	env := &wire.Envelope{Tag: wire.TagStatus, Body: st.Encode()}
	env.Sign(e.consensusKP)
	e.net.Broadcast(env)
}

// resumeRound restarts timers for the height/round Resume reconstructed
// from the WAL, without resetting any of the vote/lock state it rebuilt
// (unlike enterRound, which always starts a height at round 1).
func (e *Engine) resumeRound() {
	hs := e.height
	vs := hs.Validators
	selfV, isValidator := e.selfValidatorV(vs)

	if isValidator && vs.N() > 0 && hs.Proposer(hs.Round) == selfV {
		e.scheduleTimer(timerPropose, roundKey(hs.Height, hs.Round), hs.Config.ProposeTimeout)
	}
	e.scheduleTimer(timerRound, roundKey(hs.Height, hs.Round), roundTimeoutFor(hs.Config, hs.Round))

	if hs.Locked != nil {
		e.rebroadcastLockedPrevote()
	}
	e.replayFutureQueue(hs.Height)
	e.broadcastStatus()
}

func (e *Engine) replayFutureQueue(height uint64) {
	queued := e.futureQueue[height]
	delete(e.futureQueue, height)
	for _, qm := range queued {
		e.handleNetworkMessage(qm.peerAddr, qm.env)
	}
}

// enterRound starts propose/round timers for round r (§4.6.4's "Enter
// (H, R=1)" transition, generalized to any r since round-timer-fire
// re-enters with r+1 the same way).
func (e *Engine) enterRound(round uint32) {
	hs := e.height
	hs.Round = round
	hs.Step = StepPropose

	vs := hs.Validators
	selfV, isValidator := e.selfValidatorV(vs)

	if isValidator && vs.N() > 0 && hs.Proposer(round) == selfV {
		e.scheduleTimer(timerPropose, roundKey(hs.Height, round), hs.Config.ProposeTimeout)
	}
	e.scheduleTimer(timerRound, roundKey(hs.Height, round), roundTimeoutFor(hs.Config, round))

	if hs.Locked != nil {
		e.rebroadcastLockedPrevote()
	}
}

func roundTimeoutFor(cfg chain.ConsensusConfig, round uint32) time.Duration {
	base := cfg.RoundTimeout
	if round > 1 {
		base += cfg.RoundTimeoutIncrease * time.Duration(round-1)
	}
	return base
}

func roundKey(height uint64, round uint32) string {
	return fmt.Sprintf("%d:%d", height, round)
}

func (e *Engine) handleTimer(t *timerFired) {
	if !e.isCurrentTimer(t) {
		return
	}
	switch t.kind {
	case timerPropose:
		e.onProposeTimerFired()
	case timerRound:
		e.onRoundTimerFired()
	case timerRequest:
		e.onRequestTimerFired(t.key)
	}
}

func (e *Engine) onRoundTimerFired() {
	// Re-announcing Status here, not just on height advance, means a peer
	// that connects mid-height (or was behind before this node entered
	// it) still learns this node's height at least once per round,
	// without a dedicated ambient timer.
	e.broadcastStatus()
	e.enterRound(e.height.Round + 1)
}

func (e *Engine) ctx() context.Context { return context.Background() }
