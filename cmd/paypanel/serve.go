package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/x402-foundation/paypanel/mechanisms/svm/exact/server"
	"github.com/x402-foundation/paypanel/metrics"
	ginmw "github.com/x402-foundation/paypanel/pkg/gin"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the payment-gated demo endpoint",
		Long: `serve runs GET /api/helius behind an x402 paywall. Paid requests get the
upstream RPC's current slot and health. Prometheus metrics are served on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.sync()
			return a.serve(cmd.Context())
		},
	}
	a.cfg.BindServerFlags(cmd)
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg.Server
	log := a.log

	feePayer, err := a.feePayer()
	if err != nil {
		return err
	}
	payTo := cfg.PayTo
	if payTo == "" {
		payTo = feePayer.PublicKey().String()
	}

	upstream := rpc.New(a.cfg.UpstreamRPC())

	var submitter server.Submitter
	if cfg.Submit {
		submitter = upstream
	}
	exact := server.NewExactSvmServer(feePayer, submitter)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewPrometheusRecorder(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	payment := ginmw.PaymentMiddleware(cfg.Price, payTo, exact,
		ginmw.WithNetwork(cfg.Network),
		ginmw.WithDescription("Current Solana slot and node health"),
		ginmw.WithMimeType("application/json"),
		ginmw.WithResourceRootURL("http://"+listenHost(cfg.ListenAddr)),
		ginmw.WithLogger(log),
		ginmw.WithMetrics(recorder),
	)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           ginmw.NewRouter(payment, upstream, reg, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("serving payment-gated endpoint", map[string]any{
		"addr":     cfg.ListenAddr,
		"path":     ginmw.HeliusPath,
		"network":  cfg.Network,
		"price":    cfg.Price,
		"payTo":    payTo,
		"feePayer": feePayer.PublicKey().String(),
		"submit":   cfg.Submit,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *app) feePayer() (solana.PrivateKey, error) {
	if key := a.cfg.Server.FeePayerKey; key != "" {
		pk, err := solana.PrivateKeyFromBase58(key)
		if err != nil {
			return nil, fmt.Errorf("invalid fee payer key: %w", err)
		}
		return pk, nil
	}

	pk, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, err
	}
	a.log.Warn("no fee payer key configured, using an ephemeral key", map[string]any{
		"feePayer": pk.PublicKey().String(),
	})
	return pk, nil
}

func listenHost(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
