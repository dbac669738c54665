// Package config loads paypanel settings from the environment, an optional
// .env file and command line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	svm "github.com/x402-foundation/paypanel/mechanisms/svm"
)

const (
	EnvPrefix = "PAYPANEL_"

	DefaultNetwork        = svm.ClusterMainnet
	DefaultRPCURL         = rpc.DevNet_RPC
	DefaultToken          = "USDC"
	DefaultEndpoint       = "http://localhost:3000/api/helius"
	DefaultAttemptTimeout = 2 * time.Minute
	DefaultLogLevel       = "info"
	DefaultKeyName        = "default"

	DefaultListenAddr    = ":3000"
	DefaultPrice         = "$0.01"
	DefaultServerNetwork = svm.ClusterDevnet
)

// Config is the panel and demo server configuration
type Config struct {
	// Network the panel pays on. It is not checked against RPCURL; see ClusterMismatch.
	Network        string        `validate:"required"`
	RPCURL         string        `validate:"required,url"`
	Token          string        `validate:"required"`
	Endpoint       string        `validate:"required,url"`
	AttemptTimeout time.Duration `validate:"gte=0"`
	LogLevel       string        `validate:"oneof=debug info warn error"`

	// KeyName selects the stored wallet key; PrivateKey (base58) wins when set
	KeyName     string
	PrivateKey  string
	KeystoreDir string

	Server ServerConfig
}

// ServerConfig configures the payment-gated demo endpoint
type ServerConfig struct {
	ListenAddr string `validate:"required"`
	Network    string `validate:"required,solana_network"`
	Price      string `validate:"required"`
	// PayTo receives payments; defaults to the fee payer's address
	PayTo string `validate:"omitempty,solana_address"`
	// FeePayerKey is the base58 key co-signing payments; a random key is used when empty
	FeePayerKey string
	// UpstreamRPCURL is proxied by the demo handler and receives settlements
	UpstreamRPCURL string `validate:"omitempty,url"`
	// Submit sends settled transactions upstream instead of only recording them
	Submit bool
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Network:        DefaultNetwork,
		RPCURL:         DefaultRPCURL,
		Token:          DefaultToken,
		Endpoint:       DefaultEndpoint,
		AttemptTimeout: DefaultAttemptTimeout,
		LogLevel:       DefaultLogLevel,
		KeyName:        DefaultKeyName,
		Server: ServerConfig{
			ListenAddr: DefaultListenAddr,
			Network:    DefaultServerNetwork,
			Price:      DefaultPrice,
		},
	}
}

// Load returns the defaults overridden by PAYPANEL_* variables. envFiles are
// loaded first without overriding variables already set; missing files are
// skipped. With no envFiles, ./.env is tried.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", file, err)
		}
	}

	cfg := Default()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"NETWORK":          &c.Network,
		"RPC_URL":          &c.RPCURL,
		"TOKEN":            &c.Token,
		"ENDPOINT":         &c.Endpoint,
		"LOG_LEVEL":        &c.LogLevel,
		"KEY_NAME":         &c.KeyName,
		"PRIVATE_KEY":      &c.PrivateKey,
		"KEYSTORE_DIR":     &c.KeystoreDir,
		"LISTEN_ADDR":      &c.Server.ListenAddr,
		"SERVER_NETWORK":   &c.Server.Network,
		"PRICE":            &c.Server.Price,
		"PAY_TO":           &c.Server.PayTo,
		"FEE_PAYER_KEY":    &c.Server.FeePayerKey,
		"UPSTREAM_RPC_URL": &c.Server.UpstreamRPCURL,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := lookup(EnvPrefix + "ATTEMPT_TIMEOUT"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sATTEMPT_TIMEOUT: %w", EnvPrefix, err)
		}
		c.AttemptTimeout = d
	}

	if v, ok := lookup(EnvPrefix + "SUBMIT"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sSUBMIT: %w", EnvPrefix, err)
		}
		c.Server.Submit = b
	}

	return nil
}

// BindFlags registers flags on cmd overriding the panel settings. The
// current values become the flag defaults, so call it after Load.
func (c *Config) BindFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&c.Network, "network", c.Network, "Solana network to pay on (mainnet-beta, devnet, testnet or CAIP-2 id)")
	flags.StringVar(&c.RPCURL, "rpc", c.RPCURL, "Solana RPC endpoint")
	flags.StringVar(&c.Token, "token", c.Token, "token symbol to pay with")
	flags.StringVar(&c.Endpoint, "endpoint", c.Endpoint, "payment-gated URL to fetch")
	flags.DurationVar(&c.AttemptTimeout, "timeout", c.AttemptTimeout, "bound on one payment attempt (0 disables)")
	flags.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&c.KeyName, "key", c.KeyName, "name of the stored wallet key")
	flags.StringVar(&c.KeystoreDir, "keystore-dir", c.KeystoreDir, "directory of the file keystore backend")
}

// BindServerFlags registers flags on cmd overriding the demo server settings
func (c *Config) BindServerFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&c.Server.ListenAddr, "listen", c.Server.ListenAddr, "address to listen on")
	flags.StringVar(&c.Server.Network, "server-network", c.Server.Network, "network payments are accepted on")
	flags.StringVar(&c.Server.Price, "price", c.Server.Price, "price of one request, e.g. $0.01 or \"0.5 USDT\"")
	flags.StringVar(&c.Server.PayTo, "pay-to", c.Server.PayTo, "recipient wallet address")
	flags.StringVar(&c.Server.UpstreamRPCURL, "upstream-rpc", c.Server.UpstreamRPCURL, "RPC proxied by the demo route (defaults to the server network's public RPC)")
	flags.BoolVar(&c.Server.Submit, "submit", c.Server.Submit, "submit settled transactions upstream")
}

var validate = newValidator()

var solanaTags = map[string]validator.Func{
	"solana_network": func(fl validator.FieldLevel) bool {
		return svm.IsValidNetwork(fl.Field().String())
	},
	"solana_address": func(fl validator.FieldLevel) bool {
		return svm.ValidateSolanaAddress(fl.Field().String()) == nil
	},
}

func newValidator() *validator.Validate {
	v := validator.New()
	if err := registerTags(v, solanaTags); err != nil {
		panic(err)
	}
	return v
}

func registerTags(v *validator.Validate, tags map[string]validator.Func) error {
	for tag, fn := range tags {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %q validation: %w", tag, err)
		}
	}
	return nil
}

// Validate checks field formats. An unknown panel network or token is not an
// error here; the panel reports it when an attempt runs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ClusterMismatch describes a disagreement between Network and the cluster
// RPCURL appears to serve, or returns "" when they agree or either is unknown.
// The built-in defaults disagree: mainnet-beta tokens over a devnet RPC.
func (c *Config) ClusterMismatch() string {
	rpcCluster := svm.ClusterForRPCURL(c.RPCURL)
	if rpcCluster == "" {
		return ""
	}
	network, err := svm.GetNetworkConfig(c.Network)
	if err != nil || network.Cluster == rpcCluster {
		return ""
	}
	return fmt.Sprintf("network %s does not match RPC %s (%s); payments will likely fail", c.Network, c.RPCURL, rpcCluster)
}

// UpstreamRPC returns the RPC the demo server talks to
func (c *Config) UpstreamRPC() string {
	if c.Server.UpstreamRPCURL != "" {
		return c.Server.UpstreamRPCURL
	}
	network, err := svm.GetNetworkConfig(c.Server.Network)
	if err != nil {
		return rpc.DevNet_RPC
	}
	return network.RPCURL
}
