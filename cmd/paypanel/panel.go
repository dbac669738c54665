package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/x402-foundation/paypanel/internal/ui"
	"github.com/x402-foundation/paypanel/metrics"
	"github.com/x402-foundation/paypanel/panel"
)

func newPanelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "panel",
		Short: "Interactive payment panel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.sync()

			var pnl *panel.Panel
			model := ui.NewModel(cmd.Context(), ui.Info{
				Network:  a.cfg.Network,
				Token:    a.cfg.Token,
				Endpoint: a.cfg.Endpoint,
			}, func(ctx context.Context) (panel.Result, error) {
				return pnl.Trigger(ctx)
			})

			program := tea.NewProgram(model, tea.WithContext(cmd.Context()))
			pnl = a.newPanel(ui.NewProgramRenderer(program.Send), metrics.NoopRecorder{})

			_, err := program.Run()
			return err
		},
	}
}
