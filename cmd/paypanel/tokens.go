package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/x402-foundation/paypanel/internal/ui"
	svm "github.com/x402-foundation/paypanel/mechanisms/svm"
)

func newTokensCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tokens [network]",
		Short: "List the tokens paypanel can pay with",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			network := a.cfg.Network
			if len(args) == 1 {
				network = args[0]
			}

			tokens, err := svm.KnownTokens(network)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(tokens) == 0 {
				fmt.Fprintln(out, ui.StyleMeta.Render("No known tokens on "+network))
				return nil
			}
			for _, t := range tokens {
				fmt.Fprintf(out, "%-6s %s  %s\n",
					t.Symbol,
					ui.StyleAddress.Render(t.Address),
					ui.StyleMeta.Render(fmt.Sprintf("%d decimals", t.Decimals)),
				)
			}
			return nil
		},
	}
}
