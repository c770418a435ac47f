// Package testutil provides shared scaffolding for multi-node consensus
// tests: an in-memory store, a generated validator set, and the wiring
// needed to stand up a full internal/consensus.Engine bound to a real
// TCP internal/network.Manager on loopback. Grounded in the teacher's
// testutil.TestEnvironment (temp dir + store + config), generalized to
// the validator-set/engine shape this module's tests exercise.
package testutil

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rechain/quorumchain/internal/chain"
	"github.com/rechain/quorumchain/internal/consensus"
	"github.com/rechain/quorumchain/internal/executor"
	"github.com/rechain/quorumchain/internal/mempool"
	"github.com/rechain/quorumchain/internal/network"
	"github.com/rechain/quorumchain/internal/store"
	"github.com/rechain/quorumchain/pkg/crypto"
)

// NodeIdentity is one validator's full key material: consensus and
// service Ed25519 keys plus a Noise static X25519 key.
type NodeIdentity struct {
	Consensus crypto.KeyPair
	Service   crypto.KeyPair
	Static    crypto.X25519KeyPair
	Address   string
}

// GenerateIdentities creates n validator identities with loopback
// addresses starting at basePort.
func GenerateIdentities(t *testing.T, n int, basePort int) []NodeIdentity {
	t.Helper()
	out := make([]NodeIdentity, n)
	for i := 0; i < n; i++ {
		consensusKP, err := crypto.GenerateKeyPair()
		require.NoError(t, err)
		serviceKP, err := crypto.GenerateKeyPair()
		require.NoError(t, err)
		staticKP, err := crypto.GenerateX25519KeyPair()
		require.NoError(t, err)
		out[i] = NodeIdentity{
			Consensus: consensusKP,
			Service:   serviceKP,
			Static:    staticKP,
			Address:   fmt.Sprintf("127.0.0.1:%d", basePort+i),
		}
	}
	return out
}

// ValidatorSet builds the chain.ValidatorSet for a slice of identities,
// in index order (the order proposer election depends on).
func ValidatorSet(identities []NodeIdentity) chain.ValidatorSet {
	vs := chain.ValidatorSet{Validators: make([]chain.ValidatorInfo, 0, len(identities))}
	for _, id := range identities {
		vs.Validators = append(vs.Validators, chain.ValidatorInfo{
			ConsensusKey: id.Consensus.Public,
			ServiceKey:   id.Service.Public,
			Address:      id.Address,
		})
	}
	return vs
}

// TestNode bundles one running node's components for assertions and
// shutdown.
type TestNode struct {
	DB   *store.Database
	Net  *network.Manager
	Pool *mempool.Pool
	Ex   *executor.Executor
	Eng  *consensus.Engine
}

// NewCluster constructs len(identities) nodes, each dialing every other
// identity's address, sharing the given validator set and consensus
// config, started and ready to vote from height 1. Callers must call
// Stop on every returned node's Eng/Net/DB when done.
func NewCluster(t *testing.T, identities []NodeIdentity, vs chain.ValidatorSet, cfg chain.ConsensusConfig) []*TestNode {
	t.Helper()
	nodes := make([]*TestNode, len(identities))
	for i, id := range identities {
		db := store.NewMemoryDatabase()
		require.NoError(t, consensus.Bootstrap(db, vs, cfg))

		var peers []network.PeerConfig
		for j, other := range identities {
			if j == i {
				continue
			}
			peers = append(peers, network.PeerConfig{Address: other.Address, StaticKey: other.Static.Public})
		}
		netCfg := network.DefaultConfig()
		netCfg.ListenAddress = id.Address
		netCfg.Peers = peers
		net := network.NewManager(netCfg, id.Static, id.Consensus, id.Service)

		rt := executor.NewNopRuntime(1)
		pool := mempool.NewPool(db, executor.CheckTxFunc(rt))
		ex := executor.New(db, rt)

		eng, err := consensus.NewEngine(db, net, pool, ex, consensus.EngineConfig{
			WALPath:     fmt.Sprintf("%s/consensus-%d.wal", t.TempDir(), i),
			ConsensusKP: id.Consensus,
			SelfAddress: id.Address,
		})
		require.NoError(t, err)

		require.NoError(t, net.Start())
		require.NoError(t, eng.Start(1))

		nodes[i] = &TestNode{DB: db, Net: net, Pool: pool, Ex: ex, Eng: eng}
	}
	return nodes
}

// Stop tears down every component of n, tolerating components that were
// never started.
func (n *TestNode) Stop() {
	if n.Eng != nil {
		n.Eng.Stop()
	}
	if n.Net != nil {
		n.Net.Stop()
	}
	if n.DB != nil {
		n.DB.Close()
	}
}
