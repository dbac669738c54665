package panel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402-foundation/paypanel"
	x402http "github.com/x402-foundation/paypanel/http"
	"github.com/x402-foundation/paypanel/internal/svmtest"
	svm "github.com/x402-foundation/paypanel/mechanisms/svm"
	"github.com/x402-foundation/paypanel/mechanisms/svm/exact/server"
	"github.com/x402-foundation/paypanel/wallet"
)

type recordingRenderer struct {
	mu      sync.Mutex
	states  []State
	wallets []string
	results []*Result
}

func (r *recordingRenderer) RenderState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recordingRenderer) RenderWallet(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets = append(r.wallets, address)
}

func (r *recordingRenderer) RenderResult(result *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

// shown returns the non-nil results rendered so far
func (r *recordingRenderer) shown() []*Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Result
	for _, res := range r.results {
		if res != nil {
			out = append(out, res)
		}
	}
	return out
}

// paywall is a resource server charging 0.01 devnet USDC per request
type paywall struct {
	*httptest.Server
	rpc     *svmtest.FakeRPC
	owner   solana.PrivateKey
	payTo   solana.PublicKey
	usdc    svm.TokenInfo
	hits    atomic.Int32
	asset   string
	reject  bool
	rawBody string
	headers chan http.Header
}

func newPaywall(t *testing.T) *paywall {
	t.Helper()
	usdc, err := svm.LookupKnownSPLToken("devnet", "USDC")
	require.NoError(t, err)
	mint, err := usdc.Mint()
	require.NoError(t, err)

	p := &paywall{
		rpc:     svmtest.NewFakeRPC(),
		owner:   solana.NewWallet().PrivateKey,
		payTo:   solana.NewWallet().PublicKey(),
		usdc:    *usdc,
		asset:   usdc.Address,
		headers: make(chan http.Header, 4),
	}
	p.rpc.Fund(mint, p.owner.PublicKey(), p.payTo)
	facilitator := server.NewExactSvmServer(solana.NewWallet().PrivateKey, p.rpc)

	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.hits.Add(1)
		p.headers <- r.Header.Clone()

		required := facilitator.EnhancePaymentRequirements(x402.PaymentRequirements{
			Scheme:            svm.SchemeExact,
			Network:           svm.SolanaDevnetCAIP2,
			Asset:             p.asset,
			Amount:            "10000",
			PayTo:             p.payTo.String(),
			MaxTimeoutSeconds: 60,
		})

		payload, ok, err := x402http.PaymentFromRequest(r)
		if !assert.NoError(t, err) {
			return
		}
		if !ok || p.reject {
			challenge := x402.PaymentRequired{
				X402Version: x402.ProtocolVersion,
				Error:       "payment required",
				Resource:    &x402.ResourceInfo{URL: r.URL.String()},
				Accepts:     []x402.PaymentRequirements{required},
			}
			value, err := x402http.EncodePaymentRequiredHeader(challenge)
			assert.NoError(t, err)
			w.Header().Set(x402http.HeaderPaymentRequired, value)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			_ = json.NewEncoder(w).Encode(challenge)
			return
		}

		settle, err := facilitator.Settle(r.Context(), payload, required)
		if !assert.NoError(t, err) || !assert.True(t, settle.Success, settle.ErrorReason) {
			w.WriteHeader(http.StatusPaymentRequired)
			return
		}
		value, err := x402http.EncodePaymentResponseHeader(*settle)
		assert.NoError(t, err)
		w.Header().Set(x402http.HeaderPaymentResponse, value)

		if p.rawBody != "" {
			_, _ = w.Write([]byte(p.rawBody))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"slot":4242,"health":"ok"}`))
	}))
	t.Cleanup(p.Close)
	return p
}

func (p *paywall) provider(t *testing.T) *wallet.KeypairProvider {
	t.Helper()
	provider, err := wallet.NewKeypairProvider(p.owner)
	require.NoError(t, err)
	return provider
}

func (p *paywall) config() Config {
	return Config{
		Network:        "devnet",
		Token:          "USDC",
		Endpoint:       p.URL + "/api/helius",
		RPC:            p.rpc,
		AttemptTimeout: 10 * time.Second,
	}
}

type failingProvider struct {
	wallet.Provider
	err error
}

func (f failingProvider) Connect(context.Context) error { return f.err }

// keylessProvider connects without ever exposing a public key
type keylessProvider struct {
	wallet.Provider
}

func (keylessProvider) Connect(context.Context) error { return nil }

func (keylessProvider) PublicKey() solana.PublicKey { return solana.PublicKey{} }

// blockingProvider holds Connect until released
type blockingProvider struct {
	wallet.Provider
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingProvider) Connect(ctx context.Context) error {
	b.calls.Add(1)
	close(b.entered)
	select {
	case <-b.release:
		return errors.New("user rejected the request")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestTriggerPaysAndRendersResponse(t *testing.T) {
	wall := newPaywall(t)
	renderer := &recordingRenderer{}
	p := New(wall.provider(t), wall.config(), WithRenderer(renderer))

	result, err := p.Trigger(context.Background())
	require.NoError(t, err)
	require.NoError(t, result.Err)

	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "{\n  \"slot\": 4242,\n  \"health\": \"ok\"\n}", result.Text())
	assert.NotEmpty(t, result.AttemptID)

	require.NotNil(t, result.Payment)
	assert.True(t, result.Payment.Success)
	assert.Equal(t, wall.owner.PublicKey().String(), result.Payment.Payer)
	assert.Len(t, wall.rpc.Submitted, 1)
	assert.Equal(t, int32(2), wall.hits.Load(), "challenge plus one paid retry")

	first := <-wall.headers
	assert.Equal(t, "application/json", first.Get("Content-Type"))

	assert.Equal(t, wall.owner.PublicKey().String(), p.Session().Address)
	assert.Equal(t, []string{wall.owner.PublicKey().String()}, renderer.wallets)
	assert.Equal(t, []State{StateConnecting, StateResolving, StatePaying, StateIdle}, renderer.states)
	assert.Len(t, renderer.shown(), 1)
	assert.Nil(t, renderer.results[0], "previous result cleared first")
	assert.Equal(t, StateIdle, p.State())
	assert.False(t, p.Busy())
}

func TestTriggerWithoutWallet(t *testing.T) {
	wall := newPaywall(t)
	renderer := &recordingRenderer{}
	p := New(nil, wall.config(), WithRenderer(renderer))

	result, err := p.Trigger(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, result.Err, x402.ErrWalletNotFound)
	assert.Equal(t, "Error: Phantom wallet not installed. Please install it from phantom.app", result.Text())
	assert.Equal(t, int32(0), wall.hits.Load(), "no request without a wallet")
	assert.Empty(t, p.Session().Address)
	assert.Len(t, renderer.shown(), 1)
}

func TestTriggerConnectFailure(t *testing.T) {
	wall := newPaywall(t)
	renderer := &recordingRenderer{}
	p := New(failingProvider{err: errors.New("user rejected the request")}, wall.config(), WithRenderer(renderer))

	result, err := p.Trigger(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, result.Err, x402.ErrWalletConnectionFailed)
	assert.Equal(t, "Error: Failed to connect to Phantom wallet: user rejected the request", result.Text())
	assert.Equal(t, int32(0), wall.hits.Load())
	assert.Equal(t, []string{""}, renderer.wallets, "wallet address cleared")
	assert.Len(t, renderer.shown(), 1)
}

func TestTriggerNullPublicKey(t *testing.T) {
	wall := newPaywall(t)
	renderer := &recordingRenderer{}
	p := New(keylessProvider{}, wall.config(), WithRenderer(renderer))

	result, err := p.Trigger(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, result.Err, x402.ErrWalletConnectionFailed)
	assert.Equal(t, "Error: Failed to connect to Phantom wallet", result.Text())
	assert.Equal(t, int32(0), wall.hits.Load(), "no request without a public key")
	assert.Empty(t, p.Session().Address)
	assert.Len(t, renderer.shown(), 1)
	assert.False(t, p.Busy())
}

func TestTriggerUnknownToken(t *testing.T) {
	wall := newPaywall(t)
	config := wall.config()
	config.Network = "testnet"
	p := New(wall.provider(t), config)

	result, err := p.Trigger(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, result.Err, x402.ErrUnknownToken)
	assert.Equal(t, "Error: Couldn't look up USDC on testnet", result.Text())
	assert.Equal(t, int32(0), wall.hits.Load(), "no request for an unknown token")
	assert.Equal(t, wall.owner.PublicKey().String(), p.Session().Address, "session kept after connect")
}

func TestTriggerPaymentHandlerError(t *testing.T) {
	wall := newPaywall(t)
	wall.asset = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
	p := New(wall.provider(t), wall.config())

	result, err := p.Trigger(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, result.Err, x402.ErrPaymentHandler)
	assert.True(t, strings.HasPrefix(result.Text(), "Error: payment handler failed"))
	assert.Equal(t, int32(1), wall.hits.Load(), "no paid retry")
	assert.Empty(t, wall.rpc.Submitted)
}

func TestTriggerPaymentRejected(t *testing.T) {
	wall := newPaywall(t)
	wall.reject = true
	p := New(wall.provider(t), wall.config())

	result, err := p.Trigger(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, result.Err, x402.ErrPaymentHandler)
	assert.Equal(t, "Error: payment was not accepted: payment required", result.Text())
	assert.Equal(t, http.StatusPaymentRequired, result.StatusCode)
	assert.Equal(t, int32(2), wall.hits.Load(), "exactly one paid retry")
}

func TestTriggerNetworkError(t *testing.T) {
	wall := newPaywall(t)
	config := wall.config()
	wall.Close()
	p := New(wall.provider(t), config)

	result, err := p.Trigger(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, result.Err, x402.ErrNetwork)
	assert.True(t, strings.HasPrefix(result.Text(), "Error: network request failed"))
}

func TestTriggerNonJSONResponse(t *testing.T) {
	wall := newPaywall(t)
	wall.rawBody = "<html>ok</html>"
	p := New(wall.provider(t), wall.config())

	result, err := p.Trigger(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, result.Err, x402.ErrNetwork)
	assert.Equal(t, "Error: unexpected non-JSON response (HTTP 200)", result.Text())
}

func TestTriggerRejectedWhileInFlight(t *testing.T) {
	wall := newPaywall(t)
	provider := &blockingProvider{entered: make(chan struct{}), release: make(chan struct{})}
	renderer := &recordingRenderer{}
	p := New(provider, wall.config(), WithRenderer(renderer))

	done := make(chan Result, 1)
	go func() {
		result, err := p.Trigger(context.Background())
		assert.NoError(t, err)
		done <- result
	}()

	<-provider.entered
	assert.True(t, p.Busy())
	assert.Equal(t, StateConnecting, p.State())

	_, err := p.Trigger(context.Background())
	assert.ErrorIs(t, err, ErrAttemptInFlight)

	close(provider.release)
	result := <-done

	assert.ErrorIs(t, result.Err, x402.ErrWalletConnectionFailed)
	assert.Equal(t, int32(1), provider.calls.Load(), "second trigger ran nothing")
	assert.Len(t, renderer.shown(), 1)
	assert.False(t, p.Busy())
}

func TestTriggerAttemptTimeout(t *testing.T) {
	wall := newPaywall(t)
	provider := &blockingProvider{entered: make(chan struct{}), release: make(chan struct{})}
	config := wall.config()
	config.AttemptTimeout = 20 * time.Millisecond
	p := New(provider, config)

	result, err := p.Trigger(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, result.Err, x402.ErrWalletConnectionFailed)
	assert.ErrorIs(t, result.Err, context.DeadlineExceeded)
	assert.False(t, p.Busy())
}

func TestLastResultReplacedPerTrigger(t *testing.T) {
	wall := newPaywall(t)
	p := New(nil, wall.config())
	assert.Nil(t, p.LastResult())

	first, err := p.Trigger(context.Background())
	require.NoError(t, err)
	second, err := p.Trigger(context.Background())
	require.NoError(t, err)

	last := p.LastResult()
	require.NotNil(t, last)
	assert.Equal(t, second.AttemptID, last.AttemptID)
	assert.NotEqual(t, first.AttemptID, second.AttemptID)
}

func TestResultText(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   string
	}{
		{
			name:   "object",
			result: Result{Body: json.RawMessage(`{"a":1,"b":[true]}`)},
			want:   "{\n  \"a\": 1,\n  \"b\": [\n    true\n  ]\n}",
		},
		{
			name:   "scalar",
			result: Result{Body: json.RawMessage(`"ok"`)},
			want:   `"ok"`,
		},
		{
			name:   "error",
			result: Result{Err: x402.WrapPaymentError(x402.ErrCodeNetwork, "network request failed", errors.New("connection refused"))},
			want:   "Error: network request failed: connection refused",
		},
		{
			name:   "plain error",
			result: Result{Err: errors.New("boom")},
			want:   "Error: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.Text())
		})
	}
}

func TestWriterRenderer(t *testing.T) {
	var out strings.Builder
	r := NewWriterRenderer(&out)

	r.RenderState(StatePaying)
	r.RenderWallet("")
	r.RenderWallet("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	r.RenderResult(nil)
	r.RenderResult(&Result{Body: json.RawMessage(`{"ok":true}`)})

	assert.Equal(t, "Wallet: 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin\n{\n  \"ok\": true\n}\n", out.String())

	out.Reset()
	r.Verbose = true
	r.RenderState(StateResolving)
	assert.Equal(t, "[resolving]\n", out.String())
}
