package network

import (
	"crypto/rand"
	"encoding/binary"
	"log"
	"net"
	"time"

	"github.com/rechain/quorumchain/internal/wire"
)

// dialLoop keeps reconnecting to pc with exponential backoff and jitter
// until Stop is called (§4.3). A connection that completes its handshake
// is served until it drops, at which point the loop resets to the base
// delay and starts backing off again.
func (m *Manager) dialLoop(pc PeerConfig) {
	defer m.wg.Done()

	delay := m.cfg.ReconnectBaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	for {
		select {
		case <-m.quit:
			return
		default:
		}

		conn, err := net.DialTimeout("tcp", pc.Address, 5*time.Second)
		if err != nil {
			if !m.sleepWithJitter(delay) {
				return
			}
			delay = nextBackoff(delay, m.cfg.ReconnectMaxDelay)
			continue
		}

		session, err := wire.DialHandshake(conn, m.static, pc.StaticKey)
		if err != nil {
			log.Printf("network: handshake with %s failed: %v", pc.Address, err)
			conn.Close()
			if !m.sleepWithJitter(delay) {
				return
			}
			delay = nextBackoff(delay, m.cfg.ReconnectMaxDelay)
			continue
		}

		peer := newPeer(pc.Address, conn, session)
		peer.StaticKey = pc.StaticKey
		m.registerPeer(peer)
		delay = m.cfg.ReconnectBaseDelay
		if delay <= 0 {
			delay = 500 * time.Millisecond
		}
		m.servePeer(peer) // blocks until the connection drops
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if max > 0 && next > max {
		next = max
	}
	return next
}

// sleepWithJitter sleeps up to d plus up to 20% jitter, returning false if
// the Manager was stopped while waiting.
func (m *Manager) sleepWithJitter(d time.Duration) bool {
	jitter := time.Duration(randInt63n(int64(d/5) + 1))
	timer := time.NewTimer(d + jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-m.quit:
		return false
	}
}

func randInt63n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	v := int64(binary.BigEndian.Uint64(b[:]) & (1<<63 - 1))
	return v % n
}
