// Package network implements the peer manager (component E): a directed
// connection graph to the validators and auditors named in the active
// config, Noise_XK_25519-authenticated, with exponential-backoff
// reconnect and handshake-gated eligibility. Grounded in the teacher's
// internal/gcl.Node/P2PServer (peer map + lock, Start/Stop lifecycle,
// per-peer read loop dispatching by message tag), generalized from
// go-ethereum's p2p.Server/enode discovery — dropped per DESIGN.md,
// since this spec wants direct authenticated validator-to-validator TCP
// connections, not devp2p discovery — to a custom dialer/listener pair
// over internal/wire.
package network

import (
	"net"
	"sync"
	"time"

	"github.com/rechain/quorumchain/internal/wire"
	"github.com/rechain/quorumchain/pkg/crypto"
)

// Peer is one handshake-authenticated connection, readable/writable by
// exactly one reader goroutine and one writer goroutine.
type Peer struct {
	Address      string
	StaticKey    [32]byte // the peer's Noise static public key
	ConsensusKey crypto.PublicKey
	ServiceKey   crypto.PublicKey
	ValidatorV   uint32
	HasValidatorV bool

	conn    net.Conn
	session *wire.Session
	outbox  chan *wire.Envelope

	mu       sync.RWMutex
	eligible bool
	lastSeen time.Time
	knownHeight uint64

	closeOnce sync.Once
	closed    chan struct{}
}

func newPeer(address string, conn net.Conn, session *wire.Session) *Peer {
	return &Peer{
		Address: address,
		conn:    conn,
		session: session,
		outbox:  make(chan *wire.Envelope, 256),
		closed:  make(chan struct{}),
	}
}

// Eligible reports whether this peer has completed a handshake and sent a
// validly signed Connect (§4.3); the Connect's timestamp is not checked.
// Only eligible peers are candidates for broadcast or request rotation.
func (p *Peer) Eligible() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.eligible
}

func (p *Peer) markEligible(serviceKey crypto.PublicKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eligible = true
	p.ServiceKey = serviceKey
	p.lastSeen = time.Now()
}

// SetConsensusKey records the peer's consensus key. Nothing in the module
// calls it, so ConsensusKey stays zero unless a caller sets it.
func (p *Peer) SetConsensusKey(key crypto.PublicKey) {
	p.mu.Lock()
	p.ConsensusKey = key
	p.mu.Unlock()
}

func (p *Peer) touch() {
	p.mu.Lock()
	p.lastSeen = time.Now()
	p.mu.Unlock()
}

func (p *Peer) setKnownHeight(h uint64) {
	p.mu.Lock()
	if h > p.knownHeight {
		p.knownHeight = h
	}
	p.mu.Unlock()
}

// KnownHeight returns the highest height this peer has claimed via Status.
func (p *Peer) KnownHeight() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.knownHeight
}

// Send enqueues env for the peer's write loop. Never blocks the caller
// indefinitely: a full outbox drops the oldest pending send, since
// consensus messages are superseded by later rounds anyway.
func (p *Peer) Send(env *wire.Envelope) {
	select {
	case p.outbox <- env:
	default:
		select {
		case <-p.outbox:
		default:
		}
		select {
		case p.outbox <- env:
		default:
		}
	}
}

// Close tears down the connection; safe to call more than once.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.conn.Close()
	})
}

func (p *Peer) writeLoop() {
	for {
		select {
		case <-p.closed:
			return
		case env := <-p.outbox:
			if err := p.session.WriteMessage(p.conn, env.Encode()); err != nil {
				p.Close()
				return
			}
		}
	}
}
