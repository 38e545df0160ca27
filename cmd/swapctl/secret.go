package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chainsafe/htlc-resolver/pkg/keys"
	"github.com/chainsafe/htlc-resolver/pkg/order"
)

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Generate and derive swap secrets",
	}
	cmd.AddCommand(newSecretNewCmd(), newSecretDeriveCmd(), newSecretHashCmd())
	return cmd
}

func newSecretNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Generate a random secret and its hashlock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, hash, err := keys.NewSecret()
			if err != nil {
				return err
			}
			printSecret(cmd, secret, hash.Hex())
			return nil
		},
	}
}

func newSecretDeriveCmd() *cobra.Command {
	var (
		seedHex string
		salt    string
		index   int
	)
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive the secret for an order salt and fill index from a seed",
		Long: `Regenerate a secret from the maker seed it was derived from.

Secrets print as bare hex, the form the relayer accepts.

Example:
  $ swapctl secret derive --seed 0x... --salt 42 --index 0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			seed, err := order.DecodeSecret(strings.TrimPrefix(seedHex, "0x"))
			if err != nil {
				return fmt.Errorf("invalid seed: %w", err)
			}
			secret, hash, err := keys.DeriveSecret(seed, salt, index)
			if err != nil {
				return err
			}
			printSecret(cmd, secret, hash.Hex())
			return nil
		},
	}
	cmd.Flags().StringVar(&seedHex, "seed", "", "Hex seed, at least 32 bytes")
	cmd.Flags().StringVar(&salt, "salt", "", "Order salt")
	cmd.Flags().IntVar(&index, "index", 0, "Fill index")
	_ = cmd.MarkFlagRequired("seed")
	_ = cmd.MarkFlagRequired("salt")
	return cmd
}

func newSecretHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash [secret]",
		Short: "Print the hashlock of a hex secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := order.DecodeSecret(strings.TrimPrefix(args[0], "0x"))
			if err != nil {
				return fmt.Errorf("invalid secret: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), order.SecretHash(secret).Hex())
			return nil
		},
	}
}

func printSecret(cmd *cobra.Command, secret []byte, hash string) {
	fmt.Fprintf(cmd.OutOrStdout(), "secret:      %s\nsecret_hash: %s\n", hex.EncodeToString(secret), hash)
}
