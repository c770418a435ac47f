package network

import (
	"testing"
	"time"

	"github.com/rechain/quorumchain/internal/wire"
	"github.com/rechain/quorumchain/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagersHandshakeAndBecomeEligible(t *testing.T) {
	aStatic, err := crypto.GenerateX25519KeyPair()
	require.NoError(t, err)
	bStatic, err := crypto.GenerateX25519KeyPair()
	require.NoError(t, err)
	aConsensus, _ := crypto.GenerateKeyPair()
	aService, _ := crypto.GenerateKeyPair()
	bConsensus, _ := crypto.GenerateKeyPair()
	bService, _ := crypto.GenerateKeyPair()

	cfgA := DefaultConfig()
	cfgA.ListenAddress = "127.0.0.1:27501"
	cfgB := DefaultConfig()
	cfgB.ListenAddress = "127.0.0.1:27502"
	cfgA.Peers = []PeerConfig{{Address: cfgB.ListenAddress, StaticKey: bStatic.Public}}
	cfgB.Peers = []PeerConfig{{Address: cfgA.ListenAddress, StaticKey: aStatic.Public}}

	mgrA := NewManager(cfgA, aStatic, aConsensus, aService)
	mgrB := NewManager(cfgB, bStatic, bConsensus, bService)

	require.NoError(t, mgrA.Start())
	require.NoError(t, mgrB.Start())
	defer mgrA.Stop()
	defer mgrB.Stop()

	require.Eventually(t, func() bool {
		return len(mgrA.EligiblePeers()) == 1 && len(mgrB.EligiblePeers()) == 1
	}, 3*time.Second, 20*time.Millisecond)

	prop := wire.Propose{Height: 1, Round: 1, ProposerV: 0, PrevHash: crypto.ZeroHash}
	env := &wire.Envelope{Tag: wire.TagPropose, Body: prop.Encode()}
	env.Sign(aConsensus)
	mgrA.Broadcast(env)

	select {
	case msg := <-mgrB.Inbound:
		assert.Equal(t, wire.TagPropose, msg.Env.Tag)
		assert.True(t, msg.Env.Verify())
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for broadcast message")
	}
}
