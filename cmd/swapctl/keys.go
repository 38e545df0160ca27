package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chainsafe/htlc-resolver/pkg/keys"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the resolver signing key",
	}
	cmd.AddCommand(newKeysMasterCmd(), newKeysEncryptCmd(), newKeysDecryptCmd())
	return cmd
}

func newKeysMasterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "master",
		Short: "Generate a base64 master key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := keys.GenerateMasterKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), keys.MasterKeyToBase64(key))
			return nil
		},
	}
}

func newKeysEncryptCmd() *cobra.Command {
	var privateHex, masterB64 string
	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a signing key under a master key",
		Long: `Encrypt a hex secp256k1 key for executor.encrypted_key. A new key is
generated when --key is omitted.

Example:
  $ swapctl keys encrypt --master $MASTER_KEY --key 0x...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			master, err := keys.MasterKeyFromBase64(masterB64)
			if err != nil {
				return err
			}

			var key *keys.SigningKey
			if privateHex == "" {
				key, err = keys.GenerateSigningKey()
			} else {
				key, err = keys.SigningKeyFromHex(privateHex)
			}
			if err != nil {
				return err
			}

			encrypted, err := keys.EncryptPrivateKey(key.Bytes(), master)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "address:       %s\n", key.Address.Hex())
			fmt.Fprintf(out, "encrypted_key: %s\n", encrypted)
			return nil
		},
	}
	cmd.Flags().StringVar(&privateHex, "key", "", "Hex private key")
	cmd.Flags().StringVar(&masterB64, "master", "", "Base64 master key")
	_ = cmd.MarkFlagRequired("master")
	return cmd
}

func newKeysDecryptCmd() *cobra.Command {
	var encrypted, masterB64 string
	var reveal bool
	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt an encrypted signing key and print its address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := keys.LoadSigningKey("", encrypted, masterB64)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "address: %s\n", key.Address.Hex())
			if reveal {
				fmt.Fprintf(out, "key:     0x%s\n", hex.EncodeToString(key.Bytes()))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&encrypted, "encrypted", "", "Base64 encrypted key")
	cmd.Flags().StringVar(&masterB64, "master", "", "Base64 master key")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Also print the plaintext key")
	_ = cmd.MarkFlagRequired("encrypted")
	_ = cmd.MarkFlagRequired("master")
	return cmd
}
