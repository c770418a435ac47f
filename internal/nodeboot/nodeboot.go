// Package nodeboot wires together a single node process from a loaded
// pkg/config.Config: opens the store, loads key material, assembles the
// peer manager/mempool/executor/consensus engine, and runs recovery
// before handing control to the event loop. Shared by cmd/quorumnode's
// flag-based daemon and cmd/quorumctl's "run" subcommand so the two
// entry points never drift apart, the way the teacher kept node
// construction in one place and had both cmd/rechain and cmd/rechainctl
// call into it.
package nodeboot

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rechain/quorumchain/internal/chain"
	"github.com/rechain/quorumchain/internal/consensus"
	"github.com/rechain/quorumchain/internal/executor"
	"github.com/rechain/quorumchain/internal/mempool"
	"github.com/rechain/quorumchain/internal/network"
	"github.com/rechain/quorumchain/internal/recovery"
	"github.com/rechain/quorumchain/internal/store"
	"github.com/rechain/quorumchain/pkg/config"
	"github.com/rechain/quorumchain/pkg/crypto"
)

// Run loads cfg's key material, opens its store, bootstraps the genesis
// validator set/config if not already recorded, starts the peer manager
// and consensus engine, runs crash recovery, and blocks until a SIGINT
// or SIGTERM asks for a clean shutdown.
func Run(cfg *config.Config) error {
	consensusKP, err := crypto.LoadKeyPair(cfg.Security.ConsensusKeyPath)
	if err != nil {
		return fmt.Errorf("nodeboot: load consensus key: %w", err)
	}
	serviceKP, err := crypto.LoadKeyPair(cfg.Security.ServiceKeyPath)
	if err != nil {
		return fmt.Errorf("nodeboot: load service key: %w", err)
	}
	staticKP, err := crypto.LoadX25519KeyPair(cfg.Security.NoiseStaticKeyPath)
	if err != nil {
		return fmt.Errorf("nodeboot: load noise static key: %w", err)
	}

	vs, err := buildValidatorSet(cfg.Genesis)
	if err != nil {
		return fmt.Errorf("nodeboot: build genesis validator set: %w", err)
	}
	peers, err := buildPeerConfigs(cfg.Network)
	if err != nil {
		return fmt.Errorf("nodeboot: build peer list: %w", err)
	}

	var db *store.Database
	if cfg.Storage.Engine == "memory" {
		db = store.NewMemoryDatabase()
	} else {
		db, err = store.NewBadgerDatabase(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("nodeboot: open store: %w", err)
		}
	}

	consensusCfg := chain.ConsensusConfig{
		ProposeTimeout:       cfg.Consensus.ProposeTimeout,
		RoundTimeout:         cfg.Consensus.RoundTimeout,
		RoundTimeoutIncrease: cfg.Consensus.RoundTimeoutIncrease,
		RequestTimeout:       cfg.Consensus.RequestTimeout,
		MaxBlockSize:         cfg.Consensus.MaxBlockSize,
		MaxMessageLen:        cfg.Consensus.MaxMessageLen,
		FutureMessagesMax:    cfg.Consensus.FutureMessagesMax,
	}
	if err := consensus.Bootstrap(db, vs, consensusCfg); err != nil {
		return fmt.Errorf("nodeboot: bootstrap genesis: %w", err)
	}

	netCfg := network.Config{
		ListenAddress:      cfg.Network.ListenAddress,
		Peers:              peers,
		IdleReadTimeout:    cfg.Network.IdleReadTimeout,
		ReconnectBaseDelay: cfg.Network.ReconnectBaseDelay,
		ReconnectMaxDelay:  cfg.Network.ReconnectMaxDelay,
		UserAgent:          cfg.Network.UserAgent,
	}
	net := network.NewManager(netCfg, staticKP, consensusKP, serviceKP)

	rt := executor.NewNopRuntime(1)
	pool := mempool.NewPool(db, executor.CheckTxFunc(rt))
	ex := executor.New(db, rt)

	eng, err := consensus.NewEngine(db, net, pool, ex, consensus.EngineConfig{
		WALPath:     cfg.Consensus.WALPath,
		ConsensusKP: consensusKP,
		SelfAddress: cfg.Network.ListenAddress,
	})
	if err != nil {
		return fmt.Errorf("nodeboot: construct engine: %w", err)
	}

	if err := net.Start(); err != nil {
		return fmt.Errorf("nodeboot: start network manager: %w", err)
	}

	log.Printf("nodeboot: node %s starting, chain %s, %d validators", cfg.Node.ID, cfg.Genesis.ChainID, vs.N())
	if err := recovery.Boot(db, eng); err != nil {
		return fmt.Errorf("nodeboot: recover consensus state: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Printf("nodeboot: shutting down")
	eng.Stop()
	return net.Stop()
}

// buildValidatorSet decodes the hex consensus/service keys from a
// GenesisConfig into a chain.ValidatorSet, in the validator-set's
// index order (the order ValidatorId/proposer-election depends on).
func buildValidatorSet(g config.GenesisConfig) (chain.ValidatorSet, error) {
	vs := chain.ValidatorSet{Validators: make([]chain.ValidatorInfo, 0, len(g.Validators))}
	for i, gv := range g.Validators {
		consensusKey, err := crypto.ParsePublicKeyHex(gv.ConsensusKey)
		if err != nil {
			return chain.ValidatorSet{}, fmt.Errorf("validator %d consensus key: %w", i, err)
		}
		serviceKey, err := crypto.ParsePublicKeyHex(gv.ServiceKey)
		if err != nil {
			return chain.ValidatorSet{}, fmt.Errorf("validator %d service key: %w", i, err)
		}
		vs.Validators = append(vs.Validators, chain.ValidatorInfo{
			ConsensusKey: consensusKey,
			ServiceKey:   serviceKey,
			Address:      gv.Address,
		})
	}
	return vs, nil
}

// buildPeerConfigs decodes the hex Noise static keys named in
// NetworkConfig.Peers into the [32]byte form internal/network expects.
func buildPeerConfigs(n config.NetworkConfig) ([]network.PeerConfig, error) {
	out := make([]network.PeerConfig, 0, len(n.Peers))
	for i, p := range n.Peers {
		key, err := crypto.ParseX25519PublicKeyHex(p.NoiseStaticKey)
		if err != nil {
			return nil, fmt.Errorf("peer %d noise static key: %w", i, err)
		}
		out = append(out, network.PeerConfig{Address: p.Address, StaticKey: key})
	}
	return out, nil
}
