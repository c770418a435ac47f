// Package config loads a quorumchain node's on-disk configuration,
// matching the teacher's pkg/config.Config/LoadConfig shape: a
// mapstructure-tagged struct tree populated by viper from a YAML file,
// with environment-variable overrides and a DefaultConfig fallback.
package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config holds everything a node process needs at startup: its own
// identity and role (§1: validator or auditor), the store, the peer
// manager, the active consensus timers/bounds (mirrored into
// internal/chain.ConsensusConfig for genesis bootstrap), and the ambient
// logging/metrics settings.
type Config struct {
	Node      NodeConfig      `mapstructure:"node"`
	Network   NetworkConfig   `mapstructure:"network"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Consensus ConsensusConfig `mapstructure:"consensus"`
	Genesis   GenesisConfig   `mapstructure:"genesis"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// GenesisValidator is one entry of the height-0 validator set (§3):
// distinct consensus and service Ed25519 public keys plus the address
// other nodes dial to reach it. Produced by `quorumctl finalize` from
// every participant's `generate-config` output.
type GenesisValidator struct {
	ConsensusKey string `mapstructure:"consensus_key"`
	ServiceKey   string `mapstructure:"service_key"`
	Address      string `mapstructure:"address"`
}

// GenesisConfig is the height-0 validator set and chain identifier every
// node in the network must agree on bit-for-bit before first boot.
type GenesisConfig struct {
	ChainID    string             `mapstructure:"chain_id"`
	Validators []GenesisValidator `mapstructure:"validators"`
}

// NodeConfig holds node identity.
type NodeConfig struct {
	ID       string `mapstructure:"id"`
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`
	// Role is "validator" (participates in voting) or "auditor" (follows
	// the chain via catch-up/gossip but never votes), per spec §1.
	Role string `mapstructure:"role"`
}

// PeerEntry names one validator or auditor this node dials, and the
// Noise static public key (hex-encoded) it expects that peer to present
// during the XK handshake (§4.2) — learned out-of-band, same as the
// teacher's static validator address book.
type PeerEntry struct {
	Address        string `mapstructure:"address"`
	NoiseStaticKey string `mapstructure:"noise_static_key"`
}

// NetworkConfig configures the peer manager (component E).
type NetworkConfig struct {
	ListenAddress      string        `mapstructure:"listen_address"`
	Peers              []PeerEntry   `mapstructure:"peers"`
	MaxPeers           int           `mapstructure:"max_peers"`
	IdleReadTimeout    time.Duration `mapstructure:"idle_read_timeout"`
	ReconnectBaseDelay time.Duration `mapstructure:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `mapstructure:"reconnect_max_delay"`
	UserAgent          string        `mapstructure:"user_agent"`
}

// StorageConfig configures the merkelized store's backing engine
// (component B): "badger" for a real node, "memory" for tests and
// single-process demos.
type StorageConfig struct {
	Engine    string `mapstructure:"engine"`
	Path      string `mapstructure:"path"`
	CacheSize int64  `mapstructure:"cache_size"`
	Sync      bool   `mapstructure:"sync"`
}

// ConsensusConfig holds the genesis consensus timers/bounds (§4.6.2,
// §4.6.6): recorded under consensus-config-at(0) at bootstrap, from which
// point it lives in the store and is only changed by a
// configuration-change transaction.
type ConsensusConfig struct {
	ProposeTimeout       time.Duration `mapstructure:"propose_timeout"`
	RoundTimeout         time.Duration `mapstructure:"round_timeout"`
	RoundTimeoutIncrease time.Duration `mapstructure:"round_timeout_increase"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
	MaxBlockSize         int           `mapstructure:"max_block_size"`
	MaxMessageLen        int           `mapstructure:"max_message_len"`
	FutureMessagesMax    int           `mapstructure:"future_messages_max"`
	WALPath              string        `mapstructure:"wal_path"`
}

// SecurityConfig names the on-disk key material a validator needs: its
// consensus key (signs Propose/Prevote/Precommit), its service key
// (signs Connect/transactions), and its Noise static key (the handshake
// identity dialers must already know per XK). TLS certificate tooling is
// explicitly out of scope (spec §1); there is no TLS section here.
type SecurityConfig struct {
	ConsensusKeyPath   string `mapstructure:"consensus_key_path"`
	ServiceKeyPath     string `mapstructure:"service_key_path"`
	NoiseStaticKeyPath string `mapstructure:"noise_static_key_path"`
}

// LoggingConfig matches the teacher's plain-stdlib logging style: no
// structured logging library is pulled in (documented in DESIGN.md), so
// this only carries enough to prefix and route log.Logger output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig is carried for operational completeness; no metrics
// server is implemented (out of scope per §1's explorer-API exclusion —
// see DESIGN.md), so Enabled/Address are currently inert.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// DefaultConfig returns the configuration a single-node demo or test
// harness uses when no file is supplied.
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			DataDir:  "./data",
			LogLevel: "info",
			Role:     "validator",
		},
		Network: NetworkConfig{
			ListenAddress:      "0.0.0.0:26656",
			Peers:              []PeerEntry{},
			MaxPeers:           50,
			IdleReadTimeout:    30 * time.Second,
			ReconnectBaseDelay: 500 * time.Millisecond,
			ReconnectMaxDelay:  30 * time.Second,
			UserAgent:          "quorumchain/0.1",
		},
		Storage: StorageConfig{
			Engine:    "badger",
			Path:      "./data/chain",
			CacheSize: 100 * 1024 * 1024,
			Sync:      true,
		},
		Consensus: ConsensusConfig{
			ProposeTimeout:       3 * time.Second,
			RoundTimeout:         3 * time.Second,
			RoundTimeoutIncrease: 500 * time.Millisecond,
			RequestTimeout:       500 * time.Millisecond,
			MaxBlockSize:         10_000,
			MaxMessageLen:        65_535,
			FutureMessagesMax:    64,
			WALPath:              "./data/consensus.wal",
		},
		Genesis: GenesisConfig{
			ChainID:    "quorumchain-dev",
			Validators: []GenesisValidator{},
		},
		Security: SecurityConfig{
			ConsensusKeyPath:   "./config/consensus_key.json",
			ServiceKeyPath:     "./config/service_key.json",
			NoiseStaticKeyPath: "./config/noise_key.json",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "0.0.0.0:9091",
		},
	}
}

// LoadConfig loads configuration from configPath (if non-empty) layered
// over DefaultConfig, with QUORUM_-prefixed environment variables taking
// final precedence — the same precedence order as the teacher's
// LoadConfig.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("node.data_dir", cfg.Node.DataDir)
	v.SetDefault("node.log_level", cfg.Node.LogLevel)
	v.SetDefault("node.role", cfg.Node.Role)
	v.SetDefault("network.listen_address", cfg.Network.ListenAddress)
	v.SetDefault("network.max_peers", cfg.Network.MaxPeers)
	v.SetDefault("network.idle_read_timeout", cfg.Network.IdleReadTimeout)
	v.SetDefault("network.reconnect_base_delay", cfg.Network.ReconnectBaseDelay)
	v.SetDefault("network.reconnect_max_delay", cfg.Network.ReconnectMaxDelay)
	v.SetDefault("network.user_agent", cfg.Network.UserAgent)
	v.SetDefault("storage.engine", cfg.Storage.Engine)
	v.SetDefault("storage.path", cfg.Storage.Path)
	v.SetDefault("storage.cache_size", cfg.Storage.CacheSize)
	v.SetDefault("storage.sync", cfg.Storage.Sync)
	v.SetDefault("consensus.propose_timeout", cfg.Consensus.ProposeTimeout)
	v.SetDefault("consensus.round_timeout", cfg.Consensus.RoundTimeout)
	v.SetDefault("consensus.round_timeout_increase", cfg.Consensus.RoundTimeoutIncrease)
	v.SetDefault("consensus.request_timeout", cfg.Consensus.RequestTimeout)
	v.SetDefault("consensus.max_block_size", cfg.Consensus.MaxBlockSize)
	v.SetDefault("consensus.max_message_len", cfg.Consensus.MaxMessageLen)
	v.SetDefault("consensus.future_messages_max", cfg.Consensus.FutureMessagesMax)
	v.SetDefault("consensus.wal_path", cfg.Consensus.WALPath)
	v.SetDefault("genesis.chain_id", cfg.Genesis.ChainID)
	v.SetDefault("security.consensus_key_path", cfg.Security.ConsensusKeyPath)
	v.SetDefault("security.service_key_path", cfg.Security.ServiceKeyPath)
	v.SetDefault("security.noise_static_key_path", cfg.Security.NoiseStaticKeyPath)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)
	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.address", cfg.Metrics.Address)

	v.SetEnvPrefix("QUORUM")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.Node.ID == "" {
		cfg.Node.ID = uuid.NewString()
	}
	return cfg, nil
}
