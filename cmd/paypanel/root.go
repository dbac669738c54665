package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
	"github.com/spf13/cobra"

	"github.com/x402-foundation/paypanel/internal/config"
	"github.com/x402-foundation/paypanel/logger"
	"github.com/x402-foundation/paypanel/wallet"
)

// Version is overridable via -ldflags "-X main.Version=..."
var Version = "dev"

// app carries what every command needs after flag parsing
type app struct {
	cfg     *config.Config
	log     logger.Logger
	logFile string
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	a := &app{cfg: cfg, log: logger.NoopLogger{}}

	root := &cobra.Command{
		Use:   "paypanel",
		Short: "Pay for x402 endpoints with Solana",
		Long: `paypanel connects a Solana wallet, resolves the payment token and fetches a
payment-gated endpoint, paying the HTTP 402 challenge on the way.

Settings come from PAYPANEL_* environment variables, an optional .env file
and the flags below, in increasing order of precedence.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			a.log = a.newLogger(cmd)
			if warning := cfg.ClusterMismatch(); warning != "" {
				a.log.Warn("network and rpc disagree", map[string]any{"warning": warning})
			}
			return nil
		},
	}
	cfg.BindFlags(root)
	root.PersistentFlags().StringVar(&a.logFile, "log-file", "", "write logs to this file instead of stderr")

	root.AddCommand(
		newPayCmd(a),
		newPanelCmd(a),
		newServeCmd(a),
		newTokensCmd(a),
		newWalletCmd(a),
	)

	root.SetErr(os.Stderr)
	return root
}

func (a *app) newLogger(cmd *cobra.Command) logger.Logger {
	switch {
	case a.logFile != "":
		return logger.NewFileLogger(a.cfg.LogLevel, a.logFile)
	case cmd.Name() == "panel":
		// The TUI owns the terminal
		return logger.NoopLogger{}
	default:
		return logger.NewDevelopmentLogger(a.cfg.LogLevel)
	}
}

func (a *app) keystore() (*wallet.Keystore, error) {
	dir := a.cfg.KeystoreDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not determine home dir: %w", err)
		}
		dir = filepath.Join(home, ".paypanel", "keys")
	}
	return wallet.DefaultKeystore(dir, passphrase)
}

func passphrase(prompt string) (string, error) {
	if v, ok := os.LookupEnv(config.EnvPrefix + "KEYSTORE_PASSPHRASE"); ok {
		return v, nil
	}
	return keyring.TerminalPrompt(prompt)
}

// provider returns the configured wallet, or nil when none is available.
// A nil provider makes the panel report that no wallet is installed.
func (a *app) provider() wallet.Provider {
	if a.cfg.PrivateKey != "" {
		p, err := wallet.NewKeypairProviderFromBase58(a.cfg.PrivateKey)
		if err != nil {
			a.log.Warn("ignoring invalid private key", map[string]any{"error": err})
			return nil
		}
		return p
	}

	store, err := a.keystore()
	if err != nil {
		a.log.Warn("keystore unavailable", map[string]any{"error": err})
		return nil
	}
	p, err := wallet.LoadProvider(store, a.cfg.KeyName)
	if err != nil {
		a.log.Debug("no stored wallet", map[string]any{"name": a.cfg.KeyName, "error": err})
		return nil
	}
	return p
}

func (a *app) sync() {
	if z, ok := a.log.(*logger.ZapLogger); ok {
		_ = z.Sync()
	}
}
