// Package http provides the HTTP side of x402 payments: a payment-aware
// client transport and the header codec shared with resource servers.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	x402 "github.com/x402-foundation/paypanel"
	"github.com/x402-foundation/paypanel/logger"
	"github.com/x402-foundation/paypanel/metrics"
)

// x402HTTPClient wraps X402Client with HTTP-specific payment handling
type x402HTTPClient struct {
	client  *x402.X402Client
	log     logger.Logger
	metrics metrics.Recorder
}

// HTTPClientOption configures the HTTP client
type HTTPClientOption func(*x402HTTPClient)

// WithLogger sets the logger used for payment round trips
func WithLogger(log logger.Logger) HTTPClientOption {
	return func(c *x402HTTPClient) {
		c.log = log
	}
}

// WithMetrics records every paid retry on recorder
func WithMetrics(recorder metrics.Recorder) HTTPClientOption {
	return func(c *x402HTTPClient) {
		c.metrics = recorder
	}
}

// Newx402HTTPClient creates a new HTTP-aware x402 client
func Newx402HTTPClient(client *x402.X402Client, opts ...HTTPClientOption) *x402HTTPClient {
	c := &x402HTTPClient{
		client:  client,
		log:     logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetPaymentRequiredResponse extracts payment requirements from a 402 response.
// The v2 PAYMENT-REQUIRED header wins; otherwise the body must hold a v1
// challenge. Either form is validated against the challenge schema.
func (c *x402HTTPClient) GetPaymentRequiredResponse(headers http.Header, body []byte) (x402.PaymentRequired, error) {
	var document []byte

	if header := headers.Get(HeaderPaymentRequired); header != "" {
		decoded, err := decodePaymentRequiredHeader(header)
		if err != nil {
			return x402.PaymentRequired{}, err
		}
		document = decoded
	} else if len(strings.TrimSpace(string(body))) > 0 {
		document = body
	} else {
		return x402.PaymentRequired{}, fmt.Errorf("no payment required information found in response")
	}

	if err := validatePaymentRequired(document); err != nil {
		return x402.PaymentRequired{}, err
	}

	var required x402.PaymentRequired
	if err := json.Unmarshal(document, &required); err != nil {
		return x402.PaymentRequired{}, fmt.Errorf("invalid payment required JSON: %w", err)
	}
	return required, nil
}

// WrapHTTPClientWithPayment wraps a standard HTTP client with x402 payment handling
// This allows transparent payment handling for HTTP requests
func WrapHTTPClientWithPayment(client *http.Client, x402Client *x402HTTPClient) *http.Client {
	if client == nil {
		client = &http.Client{}
	}

	originalTransport := client.Transport
	if originalTransport == nil {
		originalTransport = http.DefaultTransport
	}

	wrapped := *client
	wrapped.Transport = &PaymentRoundTripper{
		Transport:  originalTransport,
		x402Client: x402Client,
	}
	return &wrapped
}

// PaymentRoundTripper implements http.RoundTripper with x402 payment handling.
// A 402 is answered with at most one paid retry; whatever the retry returns,
// including another 402, is the final response.
type PaymentRoundTripper struct {
	Transport  http.RoundTripper
	x402Client *x402HTTPClient
}

// RoundTrip implements http.RoundTripper
func (t *PaymentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	log := t.x402Client.log

	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		return nil, x402.WrapPaymentError(x402.ErrCodeNetwork, x402.ErrNetwork.Message, err)
	}

	// Requests that already carry a payment are not paid again
	if resp.StatusCode != http.StatusPaymentRequired || hasPayment(req) {
		return resp, nil
	}

	var body []byte
	if resp.Body != nil {
		body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, x402.WrapPaymentError(x402.ErrCodeNetwork, "failed to read 402 response body", err)
		}
	}

	paymentRequired, err := t.x402Client.GetPaymentRequiredResponse(resp.Header, body)
	if err != nil {
		return nil, x402.WrapPaymentError(x402.ErrCodePaymentRequired, "failed to parse payment requirements", err)
	}

	log.Debug("payment required", map[string]any{
		"url":     req.URL.String(),
		"version": paymentRequired.X402Version,
		"options": len(paymentRequired.Accepts),
	})

	ctx := req.Context()

	payload, err := t.x402Client.client.CreatePaymentForRequired(ctx, paymentRequired)
	if err != nil {
		return nil, x402.WrapPaymentError(x402.ErrCodePaymentHandler, x402.ErrPaymentHandler.Message, err)
	}

	name, value, err := EncodePaymentHeader(payload)
	if err != nil {
		return nil, x402.WrapPaymentError(x402.ErrCodePaymentHandler, x402.ErrPaymentHandler.Message, err)
	}

	paymentReq := req.Clone(ctx)
	if req.Body != nil && req.GetBody != nil {
		paymentReq.Body, err = req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
	}
	paymentReq.Header.Set(name, value)

	scheme, network := payload.SchemeAndNetwork()
	log.Info("payment attached", map[string]any{
		"url":     req.URL.String(),
		"scheme":  scheme,
		"network": string(network),
		"amount":  payload.Accepted.RequiredAmount(),
		"payTo":   payload.Accepted.PayTo,
	})

	paidResp, err := t.Transport.RoundTrip(paymentReq)
	labels := map[string]string{"network": string(network), "outcome": "accepted"}
	switch {
	case err != nil:
		labels["outcome"] = "error"
	case paidResp.StatusCode == http.StatusPaymentRequired:
		labels["outcome"] = "rejected"
	}
	t.x402Client.metrics.IncCounter(metrics.EventPaymentSent, labels)
	if err != nil {
		return nil, x402.WrapPaymentError(x402.ErrCodeNetwork, x402.ErrNetwork.Message, err)
	}
	return paidResp, nil
}

func hasPayment(req *http.Request) bool {
	return req.Header.Get(HeaderPaymentSignature) != "" || req.Header.Get(HeaderPaymentV1) != ""
}

// DoWithPayment performs an HTTP request with automatic payment handling
func (c *x402HTTPClient) DoWithPayment(ctx context.Context, req *http.Request) (*http.Response, error) {
	client := WrapHTTPClientWithPayment(nil, c)
	return client.Do(req.WithContext(ctx))
}

// PostWithPayment performs a POST request with automatic payment handling
func (c *x402HTTPClient) PostWithPayment(ctx context.Context, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	return c.DoWithPayment(ctx, req)
}
