package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chainsafe/htlc-resolver/pkg/app/resolver"
	"github.com/chainsafe/htlc-resolver/pkg/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadResolver(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := resolver.NewServer(cfg).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Resolver exited: %v\n", err)
		os.Exit(1)
	}
}
