package main

import (
	"errors"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/cobra"

	"github.com/x402-foundation/paypanel/metrics"
	"github.com/x402-foundation/paypanel/panel"
)

// errAttemptFailed is returned after a failed attempt's error was printed
var errAttemptFailed = errors.New("payment attempt failed")

func (a *app) newPanel(renderer panel.Renderer, recorder metrics.Recorder) *panel.Panel {
	cfg := a.cfg
	return panel.New(a.provider(), panel.Config{
		Network:        cfg.Network,
		Token:          cfg.Token,
		Endpoint:       cfg.Endpoint,
		RPC:            rpc.New(cfg.RPCURL),
		AttemptTimeout: cfg.AttemptTimeout,
	}, panel.WithRenderer(renderer), panel.WithLogger(a.log), panel.WithMetrics(recorder))
}

func newPayCmd(a *app) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Run one payment attempt and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.sync()

			renderer := panel.NewWriterRenderer(cmd.OutOrStdout())
			renderer.Verbose = verbose

			result, err := a.newPanel(renderer, metrics.NoopRecorder{}).Trigger(cmd.Context())
			if err != nil {
				return err
			}
			if result.Err != nil {
				return errAttemptFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print each phase of the attempt")
	return cmd
}
