package gin

import (
	"context"
	"net/http"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gin-gonic/gin"

	"github.com/x402-foundation/paypanel/logger"
)

// ChainStatus is the part of the Solana rpc the demo resource reads
type ChainStatus interface {
	GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	GetHealth(ctx context.Context) (string, error)
}

// HeliusResponse is the paid payload served by HeliusHandler
type HeliusResponse struct {
	Slot   uint64 `json:"slot"`
	Health string `json:"health"`
}

// HeliusHandler serves the current slot and node health from upstream
func HeliusHandler(upstream ChainStatus, log logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.NoopLogger{}
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()

		slot, err := upstream.GetSlot(ctx, rpc.CommitmentFinalized)
		if err != nil {
			log.Warn("upstream getSlot failed", map[string]any{"error": err.Error()})
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch slot"})
			return
		}

		health, err := upstream.GetHealth(ctx)
		if err != nil {
			log.Warn("upstream getHealth failed", map[string]any{"error": err.Error()})
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch health"})
			return
		}

		c.JSON(http.StatusOK, HeliusResponse{Slot: slot, Health: health})
	}
}
