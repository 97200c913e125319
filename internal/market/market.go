package market

import (
	"strings"
	"time"
)

// Operation is the kind of market request a source can serve.
type Operation string

const (
	OpSnapshot Operation = "snapshot"
	OpListing  Operation = "listing"
	OpPrices   Operation = "prices"
)

// Operations lists every operation a registered source must support.
var Operations = []Operation{OpSnapshot, OpListing, OpPrices}

// AssetRef names an asset both ways upstream APIs address it:
// slug ids (CoinGecko, CoinCap) and ticker symbols (CryptoCompare, Binance).
type AssetRef struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
}

// Request carries the parameters of one market operation.
type Request struct {
	Currency string
	PageSize int
	Assets   []AssetRef
}

// CurrencyOrDefault returns the lower-cased currency, "usd" when unset.
func (r Request) CurrencyOrDefault() string {
	c := strings.ToLower(strings.TrimSpace(r.Currency))
	if c == "" {
		return "usd"
	}
	return c
}

// PageSizeOrDefault returns the requested page size, DefaultPageSize when
// unset and MaxPageSize at most.
func (r Request) PageSizeOrDefault() int {
	switch {
	case r.PageSize <= 0:
		return DefaultPageSize
	case r.PageSize > MaxPageSize:
		return MaxPageSize
	}
	return r.PageSize
}

const (
	// DefaultPageSize is the listing size used when a caller does not ask for one.
	DefaultPageSize = 50
	// MaxPageSize matches the largest page CoinGecko serves.
	MaxPageSize = 250
)

// Snapshot is the global market overview.
type Snapshot struct {
	TotalMarketCap float64   `json:"total_market_cap"`
	TotalVolume24h float64   `json:"total_volume_24h"`
	DominancePct   float64   `json:"dominance_pct"`
	DominantAsset  string    `json:"dominant_asset"`
	ActiveAssets   int       `json:"active_assets"`
	Currency       string    `json:"currency"`
	Source         string    `json:"source"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// AssetQuote is one row of a rank-ordered listing.
type AssetQuote struct {
	ID           string  `json:"id"`
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	ImageURL     string  `json:"image_url"`
	Price        float64 `json:"price"`
	MarketCap    float64 `json:"market_cap"`
	Rank         int     `json:"rank"`
	Volume24h    float64 `json:"volume_24h"`
	Change24hPct float64 `json:"change_24h_pct"`
	Change7dPct  float64 `json:"change_7d_pct"`
}

// PricePair holds USD prices for two assets from the same source.
type PricePair struct {
	AssetA AssetRef `json:"asset_a"`
	AssetB AssetRef `json:"asset_b"`
	PriceA float64  `json:"price_a"`
	PriceB float64  `json:"price_b"`
	Source string   `json:"source"`
}

// Result is what a normalizer produces for one operation. Only the
// field matching Op is populated.
type Result struct {
	Op       Operation
	Currency string
	Snapshot *Snapshot
	Assets   []AssetQuote
	// Prices maps AssetRef.ID to its USD price.
	Prices map[string]float64
}

// Valid reports whether the result carries usable data for its operation.
func (r *Result) Valid(req Request) bool {
	if r == nil {
		return false
	}
	switch r.Op {
	case OpSnapshot:
		return r.Snapshot != nil && (r.Snapshot.ActiveAssets > 0 || r.Snapshot.TotalMarketCap > 0)
	case OpListing:
		return len(r.Assets) > 0
	case OpPrices:
		if len(r.Prices) == 0 {
			return false
		}
		for _, a := range req.Assets {
			if p, ok := r.Prices[a.ID]; !ok || p <= 0 {
				return false
			}
		}
		return true
	default:
		return false
	}
}
