package gin

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/x402-foundation/paypanel/logger"
)

// HeliusPath is the payment-gated demo route
const HeliusPath = "/api/helius"

// NewRouter builds the demo resource server: HeliusPath behind payment, and
// /metrics when gatherer is non-nil
func NewRouter(payment gin.HandlerFunc, upstream ChainStatus, gatherer prometheus.Gatherer, log logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET(HeliusPath, payment, HeliusHandler(upstream, log))

	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return router
}
