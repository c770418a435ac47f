package network

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/rechain/quorumchain/internal/wire"
	"github.com/rechain/quorumchain/pkg/crypto"
)

// PeerConfig names one validator or auditor this node should maintain a
// connection to: its dial address and its Noise static public key
// (learned out-of-band, the way XK requires the initiator to already
// know the responder it's dialing).
type PeerConfig struct {
	Address   string
	StaticKey [32]byte
}

// Config configures a Manager.
type Config struct {
	ListenAddress      string
	Peers              []PeerConfig
	IdleReadTimeout    time.Duration
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	UserAgent          string
}

// DefaultConfig mirrors the teacher's gcl.Config defaults (fixed port,
// empty seed list) adapted to this package's address-list model.
func DefaultConfig() Config {
	return Config{
		ListenAddress:      "0.0.0.0:26656",
		IdleReadTimeout:    30 * time.Second,
		ReconnectBaseDelay: 500 * time.Millisecond,
		ReconnectMaxDelay:  30 * time.Second,
		UserAgent:          "quorumnode/1.0",
	}
}

// InboundMessage is one verified, decoded message delivered to the
// consensus event loop's channel.
type InboundMessage struct {
	PeerAddress string
	Env         *wire.Envelope
}

// Manager maintains the directed connection graph to every configured
// peer, gated by Noise handshake + Connect eligibility (§4.3).
type Manager struct {
	cfg         Config
	static      crypto.X25519KeyPair
	consensusKP crypto.KeyPair
	serviceKP   crypto.KeyPair

	mu    sync.RWMutex
	peers map[string]*Peer // keyed by Address

	Inbound chan InboundMessage

	listener net.Listener
	quit     chan struct{}
	wg       sync.WaitGroup
}

// NewManager constructs a Manager. static is this node's Noise identity;
// serviceKP signs the Connect sent at the start of every connection.
// consensusKP is kept on the Manager, but nothing in it signs with it.
func NewManager(cfg Config, static crypto.X25519KeyPair, consensusKP, serviceKP crypto.KeyPair) *Manager {
	return &Manager{
		cfg:         cfg,
		static:      static,
		consensusKP: consensusKP,
		serviceKP:   serviceKP,
		peers:       make(map[string]*Peer),
		Inbound:     make(chan InboundMessage, 1024),
		quit:        make(chan struct{}),
	}
}

// Start opens the listener and begins a dial loop for every configured
// peer.
func (m *Manager) Start() error {
	ln, err := net.Listen("tcp", m.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("network: listen on %s: %w", m.cfg.ListenAddress, err)
	}
	m.listener = ln

	m.wg.Add(1)
	go m.acceptLoop()

	for _, pc := range m.cfg.Peers {
		pc := pc
		m.wg.Add(1)
		go m.dialLoop(pc)
	}
	return nil
}

// Stop closes the listener and every live connection, and waits for all
// goroutines to exit.
func (m *Manager) Stop() error {
	close(m.quit)
	if m.listener != nil {
		m.listener.Close()
	}
	m.mu.Lock()
	for _, p := range m.peers {
		p.Close()
	}
	m.mu.Unlock()
	m.wg.Wait()
	return nil
}

func (m *Manager) acceptLoop() {
	defer m.wg.Done()
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			select {
			case <-m.quit:
				return
			default:
				log.Printf("network: accept error: %v", err)
				return
			}
		}
		m.wg.Add(1)
		go m.acceptConn(conn)
	}
}

func (m *Manager) acceptConn(conn net.Conn) {
	defer m.wg.Done()
	session, remoteStatic, err := wire.AcceptHandshake(conn, m.static)
	if err != nil {
		log.Printf("network: handshake with %s failed: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}

	pc, ok := m.findPeerConfig(remoteStatic)
	if !ok {
		log.Printf("network: rejecting connection from unrecognized static key (%s)", conn.RemoteAddr())
		conn.Close()
		return
	}

	peer := newPeer(pc.Address, conn, session)
	peer.StaticKey = remoteStatic
	m.registerPeer(peer)
	m.servePeer(peer)
}

func (m *Manager) findPeerConfig(staticKey [32]byte) (PeerConfig, bool) {
	for _, pc := range m.cfg.Peers {
		if pc.StaticKey == staticKey {
			return pc, true
		}
	}
	return PeerConfig{}, false
}

func (m *Manager) registerPeer(p *Peer) {
	m.mu.Lock()
	if old, ok := m.peers[p.Address]; ok {
		old.Close()
	}
	m.peers[p.Address] = p
	m.mu.Unlock()
}

func (m *Manager) unregisterPeer(p *Peer) {
	m.mu.Lock()
	if cur, ok := m.peers[p.Address]; ok && cur == p {
		delete(m.peers, p.Address)
	}
	m.mu.Unlock()
}

// servePeer sends this node's Connect, then runs the write loop and read
// loop until the connection drops.
func (m *Manager) servePeer(p *Peer) {
	defer p.Close()
	defer m.unregisterPeer(p)

	go p.writeLoop()

	connect := wire.Connect{Address: m.cfg.ListenAddress, UserAgent: m.cfg.UserAgent, Timestamp: time.Now().Unix()}
	env := &wire.Envelope{Tag: wire.TagConnect, Body: connect.Encode()}
	env.Sign(m.serviceKP)
	p.Send(env)

	for {
		if m.cfg.IdleReadTimeout > 0 {
			p.conn.SetReadDeadline(time.Now().Add(m.cfg.IdleReadTimeout))
		}
		raw, err := p.session.ReadMessage(p.conn)
		if err != nil {
			return
		}
		envIn, err := wire.DecodeEnvelope(raw)
		if err != nil {
			log.Printf("network: malformed envelope from %s: %v", p.Address, err)
			return
		}
		if !envIn.Verify() {
			log.Printf("network: bad signature from %s, dropping message", p.Address)
			continue
		}

		if envIn.Tag == wire.TagConnect {
			decoded, err := wire.DecodeBody(envIn)
			if err != nil {
				continue
			}
			p.markEligible(envIn.Author)
			_ = decoded.Connect
			p.touch()
			continue
		}
		if envIn.Tag == wire.TagStatus {
			decoded, err := wire.DecodeBody(envIn)
			if err == nil && decoded.Status != nil {
				p.setKnownHeight(decoded.Status.Height)
			}
		}
		if !p.Eligible() {
			continue
		}

		select {
		case m.Inbound <- InboundMessage{PeerAddress: p.Address, Env: envIn}:
		case <-m.quit:
			return
		}
	}
}

// Broadcast sends env to every eligible peer.
func (m *Manager) Broadcast(env *wire.Envelope) {
	for _, p := range m.EligiblePeers() {
		p.Send(env)
	}
}

// SendTo sends env to the named peer if it is eligible, reporting whether
// it was delivered to the peer's outbox.
func (m *Manager) SendTo(address string, env *wire.Envelope) bool {
	m.mu.RLock()
	p, ok := m.peers[address]
	m.mu.RUnlock()
	if !ok || !p.Eligible() {
		return false
	}
	p.Send(env)
	return true
}

// EligiblePeers returns every currently handshake-and-Connect-eligible
// peer.
func (m *Manager) EligiblePeers() []*Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Peer, 0, len(m.peers))
	for _, p := range m.peers {
		if p.Eligible() {
			out = append(out, p)
		}
	}
	return out
}

// Peers answers a PeersRequest with one Connect per currently eligible
// peer, built from that peer's address and this node's own user agent
// (Timestamp left zero). The Connect each peer actually sent is not kept.
func (m *Manager) Peers() []wire.Connect {
	eligible := m.EligiblePeers()
	out := make([]wire.Connect, 0, len(eligible))
	for _, p := range eligible {
		out = append(out, wire.Connect{Address: p.Address, UserAgent: m.cfg.UserAgent})
	}
	return out
}
