// Command quorumctl is the operator-facing CLI: generating a
// participant's key material, assembling a genesis validator set from
// multiple participants' public keys, and running a node. Peripheral to
// the consensus core (§6) — no exit code or output format here is
// load-bearing for correctness, only for operator convenience. Styled
// after cobra-based operator CLIs in the examples pack rather than the
// teacher's own cmd/rechainctl, which dialed a gRPC explorer API this
// spec doesn't build.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rechain/quorumchain/internal/nodeboot"
	"github.com/rechain/quorumchain/pkg/config"
	"github.com/rechain/quorumchain/pkg/crypto"
)

// participantInfo is what generate-config writes alongside a node's
// private key material, for the operator to hand to whoever runs
// finalize.
type participantInfo struct {
	ConsensusKey string `json:"consensus_key"`
	ServiceKey   string `json:"service_key"`
	Address      string `json:"address"`
}

func main() {
	root := &cobra.Command{
		Use:   "quorumctl",
		Short: "Operator tooling for a quorumchain node",
	}
	root.AddCommand(generateConfigCmd(), finalizeCmd(), runCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "quorumctl: %v\n", err)
		os.Exit(1)
	}
}

func generateConfigCmd() *cobra.Command {
	var outDir, address string
	cmd := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a node's key material and a participant info file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create out dir: %w", err)
			}

			consensusKP, err := crypto.GenerateKeyPair()
			if err != nil {
				return fmt.Errorf("generate consensus key: %w", err)
			}
			serviceKP, err := crypto.GenerateKeyPair()
			if err != nil {
				return fmt.Errorf("generate service key: %w", err)
			}
			staticKP, err := crypto.GenerateX25519KeyPair()
			if err != nil {
				return fmt.Errorf("generate noise static key: %w", err)
			}

			if err := crypto.SaveKeyPair(filepath.Join(outDir, "consensus_key.json"), consensusKP); err != nil {
				return err
			}
			if err := crypto.SaveKeyPair(filepath.Join(outDir, "service_key.json"), serviceKP); err != nil {
				return err
			}
			if err := crypto.SaveX25519KeyPair(filepath.Join(outDir, "noise_key.json"), staticKP); err != nil {
				return err
			}

			info := participantInfo{
				ConsensusKey: consensusKP.Public.String(),
				ServiceKey:   serviceKP.Public.String(),
				Address:      address,
			}
			data, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			infoPath := filepath.Join(outDir, "participant.json")
			if err := os.WriteFile(infoPath, data, 0o644); err != nil {
				return fmt.Errorf("write participant info: %w", err)
			}

			fmt.Printf("wrote key material to %s\n", outDir)
			fmt.Printf("send %s to whoever runs finalize\n", infoPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out-dir", "./config", "directory to write key material into")
	cmd.Flags().StringVar(&address, "address", "", "this node's dial address, as it will appear in the genesis validator set")
	return cmd
}

func finalizeCmd() *cobra.Command {
	var participantFiles []string
	var chainID, out string
	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Merge participant info files into a genesis validator set",
		RunE: func(cmd *cobra.Command, args []string) error {
			var validators []config.GenesisValidator
			for _, p := range participantFiles {
				data, err := os.ReadFile(p)
				if err != nil {
					return fmt.Errorf("read %s: %w", p, err)
				}
				var info participantInfo
				if err := json.Unmarshal(data, &info); err != nil {
					return fmt.Errorf("parse %s: %w", p, err)
				}
				if _, err := crypto.ParsePublicKeyHex(info.ConsensusKey); err != nil {
					return fmt.Errorf("%s: %w", p, err)
				}
				if _, err := crypto.ParsePublicKeyHex(info.ServiceKey); err != nil {
					return fmt.Errorf("%s: %w", p, err)
				}
				validators = append(validators, config.GenesisValidator{
					ConsensusKey: info.ConsensusKey,
					ServiceKey:   info.ServiceKey,
					Address:      info.Address,
				})
			}

			genesis := config.GenesisConfig{ChainID: chainID, Validators: validators}
			data, err := json.MarshalIndent(genesis, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Printf("wrote genesis validator set (%d validators) to %s\n", len(validators), out)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&participantFiles, "participant", nil, "path to a participant.json file (repeatable)")
	cmd.Flags().StringVar(&chainID, "chain-id", "quorumchain", "chain identifier recorded in genesis")
	cmd.Flags().StringVar(&out, "out", "./config/genesis.json", "where to write the merged genesis file")
	return cmd
}

func runCmd() *cobra.Command {
	var nodeConfigPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a node using the config at --node-config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(nodeConfigPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return nodeboot.Run(cfg)
		},
	}
	cmd.Flags().StringVar(&nodeConfigPath, "node-config", "", "path to node config YAML")
	return cmd
}
