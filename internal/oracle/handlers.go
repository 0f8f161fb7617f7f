package oracle

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ksred/escrow-api/internal/types"
	"github.com/ksred/escrow-api/pkg/response"
)

// GinHandlers contains HTTP handlers for price-discovery endpoints. All
// reads are public; publishing observations is an admin operation wired in
// by the server.
type GinHandlers struct {
	source       Source
	feed         *Feed
	requireAdmin func(caller string) error
}

// NewGinHandlers creates handlers over a price source. feed may be nil when
// the source is external and cannot accept published observations.
// requireAdmin guards the publish endpoint against non-admin callers.
func NewGinHandlers(source Source, feed *Feed, requireAdmin func(caller string) error) *GinHandlers {
	return &GinHandlers{source: source, feed: feed, requireAdmin: requireAdmin}
}

// GetAssetsHandler handles GET requests listing assets with a price feed
func (h *GinHandlers) GetAssetsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		assets, err := h.source.Assets()
		response.Handle(c, gin.H{
			"assets":   assets,
			"decimals": h.source.Decimals(),
		}, err)
	}
}

// GetPriceHandler handles GET requests for the latest price of an asset
func (h *GinHandlers) GetPriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		asset := c.Param("asset")

		price, err := h.source.LastPrice(asset)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		if price == nil {
			response.NotFound(c, "no price feed for asset")
			return
		}
		response.Success(c, price)
	}
}

// GetTWAPHandler handles GET requests for the time-weighted average price
func (h *GinHandlers) GetTWAPHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		asset := c.Param("asset")
		records := ParseRecords(c.Query("records"))

		twap, err := h.source.TWAP(asset, records)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		if twap == nil {
			response.NotFound(c, "no price feed for asset")
			return
		}
		response.Success(c, gin.H{
			"asset":   asset,
			"records": records,
			"twap":    twap,
		})
	}
}

// GetCrossRateHandler handles GET requests for the cross rate of a pair
func (h *GinHandlers) GetCrossRateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		base := c.Query("base")
		quote := c.Query("quote")
		if base == "" || quote == "" {
			response.BadRequest(c, "base and quote are required")
			return
		}

		rate, err := h.source.CrossRate(base, quote)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		if rate == nil {
			response.NotFound(c, "no price feed for pair")
			return
		}
		response.Success(c, rate)
	}
}

// PublishPriceHandler handles POST requests publishing a price observation
// onto the in-memory feed. Admin only, used by operators and simulations;
// a production deployment replaces the feed with an external oracle.
func (h *GinHandlers) PublishPriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.requireAdmin != nil {
			if err := h.requireAdmin(c.GetString("clientID")); err != nil {
				response.Handle(c, nil, err)
				return
			}
		}
		if h.feed == nil {
			response.Conflict(c, "price feed is external, cannot publish")
			return
		}

		var request struct {
			Asset     string       `json:"asset" binding:"required"`
			Price     types.Amount `json:"price"`
			Timestamp int64        `json:"timestamp"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if request.Price.Sign() <= 0 {
			response.Handle(c, nil, types.ErrInvalidPrice)
			return
		}
		if request.Timestamp == 0 {
			request.Timestamp = time.Now().Unix()
		}

		h.feed.Publish(request.Asset, request.Price, request.Timestamp)
		response.Success(c, gin.H{
			"asset":     request.Asset,
			"price":     request.Price,
			"timestamp": request.Timestamp,
		})
	}
}
