package gin

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	x402 "github.com/x402-foundation/paypanel"
	x402http "github.com/x402-foundation/paypanel/http"
	"github.com/x402-foundation/paypanel/logger"
	svm "github.com/x402-foundation/paypanel/mechanisms/svm"
	"github.com/x402-foundation/paypanel/metrics"
)

// DefaultSettlementTTL is how long a settled payment is replayed for duplicates
const DefaultSettlementTTL = 10 * time.Minute

// PaymentMiddlewareOptions is the options for the PaymentMiddleware.
type PaymentMiddlewareOptions struct {
	Description       string
	MimeType          string
	MaxTimeoutSeconds int
	CustomPaywallHTML string
	Resource          string
	ResourceRootURL   string
	Network           string
	Logger            logger.Logger
	Metrics           metrics.Recorder
	SettlementCache   *x402.SettlementCache
}

// Options is the type for the options for the PaymentMiddleware.
type Options func(*PaymentMiddlewareOptions)

// WithDescription is an option for the PaymentMiddleware to set the description.
func WithDescription(description string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Description = description
	}
}

// WithMimeType is an option for the PaymentMiddleware to set the mime type.
func WithMimeType(mimeType string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.MimeType = mimeType
	}
}

// WithMaxTimeoutSeconds is an option for the PaymentMiddleware to set the max timeout seconds.
func WithMaxTimeoutSeconds(maxTimeoutSeconds int) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.MaxTimeoutSeconds = maxTimeoutSeconds
	}
}

// WithCustomPaywallHTML is an option for the PaymentMiddleware to set the custom paywall HTML.
func WithCustomPaywallHTML(customPaywallHTML string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.CustomPaywallHTML = customPaywallHTML
	}
}

// WithResource is an option for the PaymentMiddleware to set the resource.
func WithResource(resource string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Resource = resource
	}
}

func WithResourceRootURL(resourceRootURL string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.ResourceRootURL = resourceRootURL
	}
}

// WithNetwork is an option for the PaymentMiddleware to set the network explicitly.
func WithNetwork(network string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Network = network
	}
}

func WithLogger(log logger.Logger) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Logger = log
	}
}

func WithMetrics(recorder metrics.Recorder) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Metrics = recorder
	}
}

// WithSettlementCache shares a settlement cache between middlewares
func WithSettlementCache(cache *x402.SettlementCache) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.SettlementCache = cache
	}
}

// offer is the pair of requirements advertised for one route
type offer struct {
	v2 x402.PaymentRequirements
	v1 x402.PaymentRequirements
}

func (o offer) forVersion(version int) x402.PaymentRequirements {
	if version == x402.ProtocolVersionV1 {
		return o.v1
	}
	return o.v2
}

// PaymentMiddleware is the Gin middleware for the resource server using the x402 payment protocol.
// price is anything ExactSvmServer.ParsePrice accepts, e.g. "$0.01".
// Payments are verified and settled by exact, usually an ExactSvmServer;
// payTo is the recipient wallet.
func PaymentMiddleware(price x402.Price, payTo string, exact x402.SchemeNetworkServer, opts ...Options) gin.HandlerFunc {
	options := &PaymentMiddlewareOptions{
		MaxTimeoutSeconds: 60,
		Network:           svm.ClusterDevnet,
		Logger:            logger.NoopLogger{},
		Metrics:           metrics.NoopRecorder{},
	}

	for _, opt := range opts {
		opt(options)
	}

	if options.SettlementCache == nil {
		options.SettlementCache = x402.NewSettlementCache(DefaultSettlementTTL)
	}

	log := options.Logger
	base, setupErr := buildOffer(price, payTo, exact, options)
	if setupErr != nil {
		log.Error("payment middleware misconfigured", map[string]any{"error": setupErr.Error()})
	}

	return func(c *gin.Context) {
		if setupErr != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":       setupErr.Error(),
				"x402Version": x402.ProtocolVersion,
			})
			return
		}

		resource := options.Resource
		if resource == "" {
			resource = options.ResourceRootURL + c.Request.URL.Path
		}
		routeOffer := base
		routeOffer.v1.Resource = resource
		network := string(routeOffer.v2.Network)

		log.Debug("payment middleware checking request", map[string]any{"path": c.Request.URL.Path})

		paymentPayload, ok, err := x402http.PaymentFromRequest(c.Request)
		if err != nil || !ok {
			if !ok && err == nil && isWebBrowser(c) {
				html := options.CustomPaywallHTML
				if html == "" {
					html = getPaywallHtml(options)
				}
				c.Abort()
				c.Data(http.StatusPaymentRequired, "text/html", []byte(html))
				return
			}

			reason := "payment header is required"
			if err != nil {
				reason = err.Error()
			}
			challenge(c, routeOffer, resource, reason)
			return
		}

		requirements := routeOffer.forVersion(paymentPayload.X402Version)
		labels := map[string]string{"network": network}

		start := time.Now()
		response, err := exact.Verify(c.Request.Context(), paymentPayload, requirements)
		options.Metrics.ObserveLatency(metrics.EventVerified, time.Since(start), map[string]string{"network": network})
		if err != nil {
			log.Error("failed to verify payment", map[string]any{"error": err.Error()})
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":       err.Error(),
				"x402Version": paymentPayload.X402Version,
			})
			return
		}

		if !response.IsValid {
			log.Warn("invalid payment", map[string]any{"reason": response.InvalidReason})
			options.Metrics.IncCounter(metrics.EventRejected, labels)
			challenge(c, routeOffer, resource, response.InvalidReason)
			return
		}
		options.Metrics.IncCounter(metrics.EventVerified, labels)
		log.Debug("payment verified, proceeding", map[string]any{"payer": response.Payer})

		key, err := x402.SettlementKey(paymentPayload)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":       err.Error(),
				"x402Version": paymentPayload.X402Version,
			})
			return
		}

		cache := options.SettlementCache
		status, settled, done := cache.Begin(key)
		switch status {
		case x402.SettlementPending:
			settled, err = cache.Wait(c.Request.Context(), key, done)
			if err != nil || settled == nil {
				challenge(c, routeOffer, resource, "settlement of this payment failed")
				return
			}
			fallthrough
		case x402.SettlementDone:
			log.Info("serving replayed payment", map[string]any{"transaction": settled.Transaction})
			options.Metrics.IncCounter(metrics.EventReplayed, labels)
			setSettleHeader(c, paymentPayload.X402Version, *settled)
			c.Next()
			return
		}

		// Create a custom response writer to intercept the response
		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &strings.Builder{},
			statusCode:     http.StatusOK,
		}
		c.Writer = writer

		// A panicking handler must not leave the payment pending
		finished := false
		defer func() {
			if !finished {
				c.Writer = writer.ResponseWriter
				cache.Finish(key, nil)
			}
		}()

		// Execute the handler
		c.Next()

		// Reset the response writer to the original
		c.Writer = writer.ResponseWriter

		if c.IsAborted() || writer.statusCode >= http.StatusBadRequest {
			finished = true
			cache.Finish(key, nil)
			c.Writer.WriteHeader(writer.statusCode)
			_, _ = c.Writer.Write([]byte(writer.body.String()))
			return
		}

		settleResponse, err := settle(c.Request.Context(), exact, paymentPayload, requirements)
		finished = true
		cache.Finish(key, settleResponse)
		if err != nil {
			log.Warn("settlement failed", map[string]any{"error": err.Error()})
			options.Metrics.IncCounter(metrics.EventSettleFailed, labels)
			challenge(c, routeOffer, resource, err.Error())
			return
		}

		log.Info("payment settled", map[string]any{
			"transaction": settleResponse.Transaction,
			"payer":       settleResponse.Payer,
			"network":     network,
		})
		options.Metrics.IncCounter(metrics.EventSettled, labels)

		// Write the original response with the settlement header
		setSettleHeader(c, paymentPayload.X402Version, *settleResponse)
		c.Writer.WriteHeader(writer.statusCode)
		_, _ = c.Writer.Write([]byte(writer.body.String()))
	}
}

func buildOffer(price x402.Price, payTo string, exact x402.SchemeNetworkServer, options *PaymentMiddlewareOptions) (offer, error) {
	if exact == nil {
		return offer{}, fmt.Errorf("a payment server is required")
	}
	if err := svm.ValidateSolanaAddress(payTo); err != nil {
		return offer{}, fmt.Errorf("invalid payTo address: %w", err)
	}

	network, err := svm.GetNetworkConfig(options.Network)
	if err != nil {
		return offer{}, err
	}

	amount, err := exact.ParsePrice(price, x402.Network(network.CAIP2))
	if err != nil {
		return offer{}, err
	}

	v2 := x402.PaymentRequirements{
		Scheme:            exact.Scheme(),
		Network:           x402.Network(network.CAIP2),
		Asset:             amount.Asset,
		Amount:            amount.Amount,
		PayTo:             payTo,
		MaxTimeoutSeconds: options.MaxTimeoutSeconds,
		Extra:             amount.Extra,
	}
	if enhancer, ok := exact.(x402.RequirementsEnhancer); ok {
		v2 = enhancer.EnhancePaymentRequirements(v2)
	}

	v1 := v2
	v1.Network = x402.Network(network.V1Name)
	v1.Amount = ""
	v1.MaxAmountRequired = amount.Amount
	v1.Description = options.Description
	v1.MimeType = options.MimeType

	return offer{v2: v2, v1: v1}, nil
}

func settle(ctx context.Context, exact x402.SchemeNetworkServer, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettleResponse, error) {
	response, err := exact.Settle(ctx, payload, requirements)
	if err != nil {
		return nil, err
	}
	if !response.Success {
		return response, fmt.Errorf("settlement failed: %s", response.ErrorReason)
	}
	return response, nil
}

// challenge aborts with a 402 carrying the v2 requirements in the
// PAYMENT-REQUIRED header and the v1 requirements in the body
func challenge(c *gin.Context, o offer, resource, reason string) {
	required := x402.PaymentRequired{
		X402Version: x402.ProtocolVersion,
		Error:       reason,
		Resource:    &x402.ResourceInfo{URL: resource, Description: o.v1.Description, MimeType: o.v1.MimeType},
		Accepts:     []x402.PaymentRequirements{o.v2},
	}
	if header, err := x402http.EncodePaymentRequiredHeader(required); err == nil {
		c.Header(x402http.HeaderPaymentRequired, header)
	}

	c.AbortWithStatusJSON(http.StatusPaymentRequired, x402.PaymentRequired{
		X402Version: x402.ProtocolVersionV1,
		Error:       reason,
		Accepts:     []x402.PaymentRequirements{o.v1},
	})
}

func setSettleHeader(c *gin.Context, version int, response x402.SettleResponse) {
	header, err := x402http.EncodePaymentResponseHeader(response)
	if err != nil {
		return
	}
	if version == x402.ProtocolVersionV1 {
		c.Header(x402http.HeaderPaymentResponseV1, header)
		return
	}
	c.Header(x402http.HeaderPaymentResponse, header)
}

func isWebBrowser(c *gin.Context) bool {
	userAgent := c.GetHeader("User-Agent")
	acceptHeader := c.GetHeader("Accept")
	return strings.Contains(acceptHeader, "text/html") && strings.Contains(userAgent, "Mozilla")
}

// responseWriter is a custom response writer that captures the response
type responseWriter struct {
	gin.ResponseWriter
	body       *strings.Builder
	statusCode int
	written    bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	w.body.Write(b)
	return len(b), nil
}

func (w *responseWriter) WriteString(s string) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.WriteString(s)
}

// getPaywallHtml is the default paywall HTML for the PaymentMiddleware.
func getPaywallHtml(options *PaymentMiddlewareOptions) string {
	description := options.Description
	if description == "" {
		description = "This resource requires a Solana payment."
	}
	return "<html><body><h1>Payment Required</h1><p>" + description + "</p></body></html>"
}
