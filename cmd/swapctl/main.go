// Command swapctl is the operator CLI for the HTLC swap services.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "swapctl",
		Short:         "Operator tooling for cross-chain HTLC swaps",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newDeriveCmd(),
		newSecretCmd(),
		newKeysCmd(),
	)
	return root
}
