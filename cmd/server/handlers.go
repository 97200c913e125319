package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"marketfeed/internal/gateway"
	"marketfeed/internal/market"
	"marketfeed/internal/metrics"
	"marketfeed/internal/news"
)

// MarketService is the market side of the API. *gateway.Gateway implements it.
type MarketService interface {
	FetchMarketSnapshot(ctx context.Context, currency string) (*market.Snapshot, error)
	FetchAssetListing(ctx context.Context, currency string, pageSize int) ([]market.AssetQuote, error)
	FetchPricePair(ctx context.Context, assetA, assetB string) (*market.PricePair, error)
	Status() gateway.Status
	ForceSwitch() bool
}

// NewsService is the news side of the API. *news.Cache implements it.
type NewsService interface {
	Get(ctx context.Context, force bool) []news.Item
	Status() news.CacheStatus
	Invalidate()
}

type handlers struct {
	market  MarketService
	news    NewsService
	timeout time.Duration
}

func newRouter(h *handlers, log logrus.FieldLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(log), withGzip())

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", requestIDHeader}
	config.ExposeHeaders = []string{requestIDHeader}
	r.Use(cors.New(config))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/v1")
	{
		api.GET("/market/snapshot", h.snapshot)
		api.GET("/market/assets", h.assets)
		api.GET("/market/price", h.price)
		api.GET("/news", h.newsItems)
		api.GET("/news/status", h.newsStatus)
		api.DELETE("/news/cache", h.newsClear)
		api.GET("/gateway/status", h.gatewayStatus)
		api.POST("/gateway/switch", h.gatewaySwitch)
	}
	return r
}

func (h *handlers) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

func (h *handlers) snapshot(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	s, err := h.market.FetchMarketSnapshot(ctx, c.Query("currency"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handlers) assets(c *gin.Context) {
	limit := market.DefaultPageSize
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > market.MaxPageSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and " + strconv.Itoa(market.MaxPageSize)})
			return
		}
		limit = n
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	assets, err := h.market.FetchAssetListing(ctx, c.Query("currency"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assets": assets, "count": len(assets)})
}

func (h *handlers) price(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	pair, err := h.market.FetchPricePair(ctx, c.Query("a"), c.Query("b"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h *handlers) newsItems(c *gin.Context) {
	force, _ := strconv.ParseBool(c.Query("refresh"))

	ctx, cancel := h.ctx(c)
	defer cancel()

	items := h.news.Get(ctx, force)
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *handlers) newsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.news.Status())
}

func (h *handlers) newsClear(c *gin.Context) {
	h.news.Invalidate()
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

func (h *handlers) gatewayStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.market.Status())
}

func (h *handlers) gatewaySwitch(c *gin.Context) {
	switched := h.market.ForceSwitch()
	st := h.market.Status()
	c.JSON(http.StatusOK, gin.H{"switched": switched, "current": st.Current, "current_name": st.CurrentName})
}

func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, gateway.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, gateway.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
