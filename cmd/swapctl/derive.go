package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chainsafe/htlc-resolver/pkg/action"
	"github.com/chainsafe/htlc-resolver/pkg/config"
	"github.com/chainsafe/htlc-resolver/pkg/registry"
)

func newDeriveCmd() *cobra.Command {
	var (
		registryURL string
		orderHex    string
		chainIDs    []string
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Print the next on-chain actions for an order",
		Long: `Fetch the current order snapshot from the relayer and print the step a
resolver serving each given chain would take next.

Example:
  $ swapctl derive --registry http://localhost:8080 --order 0xabc... --chain 1 --chain 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hash, ok := registry.ParseOrderHash(orderHex)
			if !ok {
				return fmt.Errorf("invalid order hash %q", orderHex)
			}

			client := registry.NewClient(config.RegistryClientConfig{
				URL:         registryURL,
				Timeout:     timeout,
				ServiceName: "swapctl",
			}, nil, "")

			o, err := client.Get(cmd.Context(), hash)
			if err != nil {
				return fmt.Errorf("failed to fetch order: %w", err)
			}

			if len(chainIDs) == 0 {
				chainIDs = []string{o.Intent.SrcChainID, o.Intent.DstChainID}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "order:  %s\n", o.OrderHash.Hex())
			fmt.Fprintf(out, "status: %s\n", o.Status)
			for _, id := range chainIDs {
				p := action.Derive(o, id)
				fmt.Fprintf(out, "chain %s: source=%s destination=%s\n", id, p.Source, p.Destination)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&registryURL, "registry", "http://localhost:8080", "Relayer base URL")
	cmd.Flags().StringVar(&orderHex, "order", "", "Order hash (0x-prefixed)")
	cmd.Flags().StringSliceVar(&chainIDs, "chain", nil, "Chain ID to derive for (repeatable, defaults to both legs)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	_ = cmd.MarkFlagRequired("order")
	return cmd
}
