// Command quorumnode runs a single consensus node: it loads a config
// file, opens the local store, and joins the network described in its
// genesis and peer list. Structurally mirrors the teacher's
// cmd/rechain/main.go (flag-parsed config path, component construction
// in dependency order, then block on a shutdown signal).
package main

import (
	"flag"
	"log"

	"github.com/rechain/quorumchain/internal/nodeboot"
	"github.com/rechain/quorumchain/pkg/config"
)

func main() {
	configPath := flag.String("config", "", "path to node config YAML (defaults built in if omitted)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("quorumnode: load config: %v", err)
	}

	if err := nodeboot.Run(cfg); err != nil {
		log.Fatalf("quorumnode: %v", err)
	}
}
