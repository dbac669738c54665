package main

import (
	"bufio"
	"fmt"
	"strings"

	solana "github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/x402-foundation/paypanel/internal/ui"
	"github.com/x402-foundation/paypanel/wallet"
)

func newWalletCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage stored wallet keys",
	}

	var keyFlag string
	importCmd := &cobra.Command{
		Use:   "import <name>",
		Short: "Store a base58 private key (read from stdin unless --private-key is set)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := keyFlag
			if key == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading private key: %w", err)
				}
				key = strings.TrimSpace(line)
			}

			store, err := a.keystore()
			if err != nil {
				return err
			}
			if err := store.Store(args[0], key); err != nil {
				return err
			}
			pk := solana.MustPrivateKeyFromBase58(key)
			fmt.Fprintln(cmd.OutOrStdout(), ui.StyleSuccess.Render(fmt.Sprintf("Wallet %q stored: %s", args[0], pk.PublicKey())))
			return nil
		},
	}
	importCmd.Flags().StringVar(&keyFlag, "private-key", "", "base58 private key")

	showCmd := &cobra.Command{
		Use:   "show [name]",
		Short: "Print the address of a stored wallet (all wallets when no name is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.keystore()
			if err != nil {
				return err
			}

			names := args
			if len(names) == 0 {
				if names, err = store.List(); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(out, ui.StyleMeta.Render("No wallets stored yet. Add one with: paypanel wallet import <name>"))
				return nil
			}
			for _, name := range names {
				address, err := storedAddress(store, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-16s %s\n", name, ui.StyleAddress.Render(address))
			}
			return nil
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete a stored wallet key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.keystore()
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.StyleSuccess.Render(fmt.Sprintf("Wallet %q removed.", args[0])))
			return nil
		},
	}

	cmd.AddCommand(importCmd, showCmd, removeCmd)
	return cmd
}

func storedAddress(store wallet.KeyStore, name string) (string, error) {
	key, err := store.Retrieve(name)
	if err != nil {
		return "", err
	}
	pk, err := solana.PrivateKeyFromBase58(key)
	if err != nil {
		return "", fmt.Errorf("stored key %s is invalid: %w", name, err)
	}
	return pk.PublicKey().String(), nil
}
