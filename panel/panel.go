// Package panel runs the payment panel: connect a wallet, resolve the token,
// pay for the endpoint and render exactly one result per trigger.
package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	x402 "github.com/x402-foundation/paypanel"
	x402http "github.com/x402-foundation/paypanel/http"
	"github.com/x402-foundation/paypanel/logger"
	svm "github.com/x402-foundation/paypanel/mechanisms/svm"
	exactclient "github.com/x402-foundation/paypanel/mechanisms/svm/exact/client"
	svmv1 "github.com/x402-foundation/paypanel/mechanisms/svm/v1"
	"github.com/x402-foundation/paypanel/metrics"
	signers "github.com/x402-foundation/paypanel/signers/svm"
	"github.com/x402-foundation/paypanel/wallet"
)

// ErrAttemptInFlight is returned by Trigger while an attempt is running
var ErrAttemptInFlight = errors.New("a payment attempt is already in progress")

// Config describes what the panel pays for
type Config struct {
	// Network the token is resolved and paid on
	Network string
	// Token symbol, e.g. USDC
	Token string
	// Endpoint is the payment-gated URL fetched with GET
	Endpoint string
	// RPC is the Solana connection used to build the payment
	RPC svm.RPC
	// AttemptTimeout bounds one attempt; 0 disables the bound
	AttemptTimeout time.Duration
	// HTTPClient is the base client wrapped with payment handling (optional)
	HTTPClient *http.Client
	// Policies restrict which payment options are accepted (optional)
	Policies []x402.PaymentPolicy
}

// Option configures a Panel
type Option func(*Panel)

// WithRenderer sets the renderer
func WithRenderer(r Renderer) Option {
	return func(p *Panel) {
		p.renderer = r
	}
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(p *Panel) {
		p.log = l
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m metrics.Recorder) Option {
	return func(p *Panel) {
		p.metrics = m
	}
}

// Panel is the payment panel. It is safe for concurrent use; at most one
// attempt runs at a time.
type Panel struct {
	provider wallet.Provider
	config   Config
	renderer Renderer
	log      logger.Logger
	metrics  metrics.Recorder

	busy atomic.Bool

	mu      sync.RWMutex
	state   State
	session wallet.Session
	result  *Result
}

// New creates a panel paying through provider. A nil provider is allowed
// and makes every attempt fail with x402.ErrWalletNotFound.
func New(provider wallet.Provider, config Config, opts ...Option) *Panel {
	p := &Panel{
		provider: provider,
		config:   config,
		renderer: noopRenderer{},
		log:      logger.NoopLogger{},
		metrics:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Busy reports whether an attempt is running; the trigger is disabled while true
func (p *Panel) Busy() bool {
	return p.busy.Load()
}

// State returns the current phase
func (p *Panel) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Session returns the wallet session of the last connect
func (p *Panel) Session() wallet.Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session
}

// LastResult returns the displayed result, or nil when none is shown
func (p *Panel) LastResult() *Result {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.result == nil {
		return nil
	}
	r := *p.result
	return &r
}

// Trigger runs one payment attempt and returns its result. Every failure is
// reported in the result; the only error is ErrAttemptInFlight, returned
// without side effects when another attempt is running.
func (p *Panel) Trigger(ctx context.Context) (Result, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return Result{}, ErrAttemptInFlight
	}
	defer p.busy.Store(false)

	if p.config.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.AttemptTimeout)
		defer cancel()
	}

	id := uuid.NewString()
	log := logger.With(p.log, map[string]any{"attempt_id": id})
	start := time.Now()

	p.setResult(nil)
	log.Info("payment attempt started", map[string]any{
		"network":  p.config.Network,
		"token":    p.config.Token,
		"endpoint": p.config.Endpoint,
	})

	result := p.attempt(ctx, log)
	result.AttemptID = id

	outcome := "success"
	if result.Err != nil {
		outcome = "error"
		log.Warn("payment attempt failed", map[string]any{
			"error": result.Err.Error(),
			"code":  x402.ErrorCode(result.Err),
		})
	} else {
		fields := map[string]any{"status": result.StatusCode}
		if result.Payment != nil {
			fields["transaction"] = result.Payment.Transaction
		}
		log.Info("payment attempt finished", fields)
	}

	labels := map[string]string{"network": p.config.Network, "outcome": outcome}
	p.metrics.IncCounter(metrics.EventAttempt, labels)
	p.metrics.ObserveLatency(metrics.EventAttempt, time.Since(start), labels)

	p.setState(StateIdle)
	p.setResult(&result)

	return result, nil
}

func (p *Panel) attempt(ctx context.Context, log logger.Logger) Result {
	p.setState(StateConnecting)
	session, err := wallet.Connect(ctx, p.provider)
	if err != nil {
		p.setSession(wallet.Session{})
		return Result{Err: err}
	}
	p.setSession(session)
	log.Debug("wallet connected", map[string]any{"address": session.Address})

	p.setState(StateResolving)
	token, err := svm.LookupKnownSPLToken(p.config.Network, p.config.Token)
	if err != nil {
		return Result{Err: err}
	}
	log.Debug("token resolved", map[string]any{"symbol": token.Symbol, "mint": token.Address})

	p.setState(StatePaying)
	client, err := p.paymentClient(session, *token, log)
	if err != nil {
		return Result{Err: x402.WrapPaymentError(x402.ErrCodePaymentHandler, x402.ErrPaymentHandler.Message, err)}
	}

	return fetch(ctx, client, p.config.Endpoint)
}

// paymentClient builds the payment-aware HTTP client for this attempt
func (p *Panel) paymentClient(session wallet.Session, token svm.TokenInfo, log logger.Logger) (*http.Client, error) {
	signer, err := signers.NewClientSignerFromSession(session, p.provider)
	if err != nil {
		return nil, err
	}

	core, err := svm.NewSvmClient(svm.SvmClientConfig{
		Network:  p.config.Network,
		Token:    token,
		Scheme:   exactclient.NewExactSvmScheme(signer, token, p.config.RPC),
		SchemeV1: svmv1.NewExactSvmClientV1(signer, token, p.config.RPC),
		Policies: p.config.Policies,
	})
	if err != nil {
		return nil, err
	}

	base := p.config.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	return x402http.WrapHTTPClientWithPayment(base, x402http.Newx402HTTPClient(core,
		x402http.WithLogger(log),
		x402http.WithMetrics(p.metrics),
	)), nil
}

func fetch(ctx context.Context, client *http.Client, endpoint string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{Err: x402.WrapPaymentError(x402.ErrCodeNetwork, "invalid endpoint", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if x402.ErrorCode(err) == "" {
			err = x402.WrapPaymentError(x402.ErrCodeNetwork, x402.ErrNetwork.Message, err)
		}
		return Result{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{StatusCode: resp.StatusCode, Err: x402.WrapPaymentError(x402.ErrCodeNetwork, "failed to read response", err)}
	}

	if resp.StatusCode == http.StatusPaymentRequired {
		return Result{StatusCode: resp.StatusCode, Err: rejectedPayment(resp.Header, body)}
	}

	if !json.Valid(body) {
		return Result{
			StatusCode: resp.StatusCode,
			Err:        x402.WrapPaymentError(x402.ErrCodeNetwork, fmt.Sprintf("unexpected non-JSON response (HTTP %d)", resp.StatusCode), nil),
		}
	}

	result := Result{Body: json.RawMessage(body), StatusCode: resp.StatusCode}
	if settle, ok, err := x402http.GetPaymentSettleResponse(resp.Header); ok && err == nil {
		result.Payment = settle
	}
	return result
}

// rejectedPayment describes a 402 returned after the paid retry
func rejectedPayment(headers http.Header, body []byte) error {
	reason := "payment was not accepted"
	var challenge struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &challenge); err == nil && challenge.Error != "" {
		reason += ": " + challenge.Error
	} else if settle, ok, err := x402http.GetPaymentSettleResponse(headers); ok && err == nil && settle.ErrorReason != "" {
		reason += ": " + settle.ErrorReason
	}
	return x402.NewPaymentError(x402.ErrCodePaymentHandler, reason, nil)
}

func (p *Panel) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	p.renderer.RenderState(s)
}

func (p *Panel) setSession(s wallet.Session) {
	p.mu.Lock()
	p.session = s
	p.mu.Unlock()
	p.renderer.RenderWallet(s.Address)
}

func (p *Panel) setResult(r *Result) {
	p.mu.Lock()
	p.result = r
	p.mu.Unlock()
	p.renderer.RenderResult(r)
}
