package coingecko

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"marketfeed/internal/market"
	"marketfeed/internal/provider"
)

// Descriptor returns the default CoinGecko source description.
func Descriptor() provider.Descriptor {
	return provider.Descriptor{
		ID:      "primary",
		Name:    "CoinGecko",
		BaseURL: "https://api.coingecko.com/api/v3",
		Endpoints: map[market.Operation]string{
			market.OpSnapshot: "/global",
			market.OpListing:  "/coins/markets",
			market.OpPrices:   "/simple/price",
		},
		RateLimit: 50,
	}
}

// Normalizer understands the CoinGecko v3 public API.
type Normalizer struct{}

func New() *Normalizer { return &Normalizer{} }

func (n *Normalizer) URL(d provider.Descriptor, op market.Operation, req market.Request) (string, error) {
	base := d.Endpoint(op)
	switch op {
	case market.OpSnapshot:
		return base, nil
	case market.OpListing:
		q := url.Values{}
		q.Set("vs_currency", req.CurrencyOrDefault())
		q.Set("order", "market_cap_desc")
		q.Set("per_page", strconv.Itoa(req.PageSizeOrDefault()))
		q.Set("page", "1")
		q.Set("sparkline", "false")
		q.Set("price_change_percentage", "1h,24h,7d")
		return base + "?" + q.Encode(), nil
	case market.OpPrices:
		if len(req.Assets) == 0 {
			return "", fmt.Errorf("coingecko: no assets requested")
		}
		ids := make([]string, 0, len(req.Assets))
		for _, a := range req.Assets {
			ids = append(ids, a.ID)
		}
		q := url.Values{}
		q.Set("ids", strings.Join(ids, ","))
		q.Set("vs_currencies", "usd")
		return base + "?" + q.Encode(), nil
	default:
		return "", fmt.Errorf("coingecko: unsupported operation %q", op)
	}
}

func (n *Normalizer) Normalize(op market.Operation, req market.Request, body []byte) *market.Result {
	if !gjson.ValidBytes(body) {
		return nil
	}
	root := gjson.ParseBytes(body)
	switch op {
	case market.OpSnapshot:
		return snapshot(root, req)
	case market.OpListing:
		return listing(root, req)
	case market.OpPrices:
		return prices(root, req)
	default:
		return nil
	}
}

// {"data":{"active_cryptocurrencies":13000,"total_market_cap":{"usd":...},
// "total_volume":{"usd":...},"market_cap_percentage":{"btc":51.2}}}
func snapshot(root gjson.Result, req market.Request) *market.Result {
	data := root.Get("data")
	if !data.IsObject() {
		return nil
	}
	cur := req.CurrencyOrDefault()
	return &market.Result{
		Op:       market.OpSnapshot,
		Currency: cur,
		Snapshot: &market.Snapshot{
			TotalMarketCap: provider.Number(data.Get("total_market_cap." + cur)),
			TotalVolume24h: provider.Number(data.Get("total_volume." + cur)),
			DominancePct:   provider.Number(data.Get("market_cap_percentage.btc")),
			DominantAsset:  "btc",
			ActiveAssets:   int(provider.Number(data.Get("active_cryptocurrencies"))),
			Currency:       cur,
		},
	}
}

func listing(root gjson.Result, req market.Request) *market.Result {
	if !root.IsArray() {
		return nil
	}
	rows := root.Array()
	assets := make([]market.AssetQuote, 0, len(rows))
	for i, r := range rows {
		if !r.IsObject() {
			continue
		}
		rank := int(provider.Number(r.Get("market_cap_rank")))
		if rank <= 0 {
			rank = i + 1
		}
		assets = append(assets, market.AssetQuote{
			ID:           r.Get("id").String(),
			Symbol:       strings.ToLower(r.Get("symbol").String()),
			Name:         r.Get("name").String(),
			ImageURL:     r.Get("image").String(),
			Price:        provider.Number(r.Get("current_price")),
			MarketCap:    provider.Number(r.Get("market_cap")),
			Rank:         rank,
			Volume24h:    provider.Number(r.Get("total_volume")),
			Change24hPct: provider.Number(r.Get("price_change_percentage_24h")),
			Change7dPct:  provider.Number(r.Get("price_change_percentage_7d_in_currency")),
		})
	}
	return &market.Result{Op: market.OpListing, Currency: req.CurrencyOrDefault(), Assets: assets}
}

// {"bitcoin":{"usd":64000},"ethereum":{"usd":3100}}
func prices(root gjson.Result, req market.Request) *market.Result {
	if !root.IsObject() {
		return nil
	}
	byID := map[string]gjson.Result{}
	root.ForEach(func(k, v gjson.Result) bool {
		byID[k.String()] = v
		return true
	})
	out := make(map[string]float64, len(req.Assets))
	for _, a := range req.Assets {
		v, ok := byID[a.ID]
		if !ok {
			continue
		}
		if p := provider.Number(v.Get("usd")); p > 0 {
			out[a.ID] = p
		}
	}
	return &market.Result{Op: market.OpPrices, Currency: "usd", Prices: out}
}
