package coincap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"marketfeed/internal/market"
	"marketfeed/internal/provider"
)

// Heuristics for values CoinCap does not publish.
const (
	// FallbackDominance is reported when the aggregate cap is zero.
	FallbackDominance = 45.0
	// WeeklyChangeFactor estimates the 7d change from the 24h change.
	WeeklyChangeFactor = 1.2
	// PriceLookupLimit is how many assets a price lookup scans.
	PriceLookupLimit = 100
)

// Descriptor returns the default CoinCap source description.
func Descriptor() provider.Descriptor {
	return provider.Descriptor{
		ID:      "secondary",
		Name:    "CoinCap",
		BaseURL: "https://api.coincap.io/v2",
		Endpoints: map[market.Operation]string{
			market.OpSnapshot: "/assets",
			market.OpListing:  "/assets",
			market.OpPrices:   "/assets",
		},
		RateLimit: 200,
	}
}

// Normalizer understands the CoinCap v2 assets API. CoinCap only quotes USD.
type Normalizer struct{}

func New() *Normalizer { return &Normalizer{} }

func (n *Normalizer) URL(d provider.Descriptor, op market.Operation, req market.Request) (string, error) {
	switch op {
	case market.OpSnapshot, market.OpListing:
		return d.Endpoint(op) + "?limit=" + strconv.Itoa(req.PageSizeOrDefault()), nil
	case market.OpPrices:
		return d.Endpoint(op) + "?limit=" + strconv.Itoa(PriceLookupLimit), nil
	default:
		return "", fmt.Errorf("coincap: unsupported operation %q", op)
	}
}

// {"data":[{"id":"bitcoin","rank":"1","symbol":"BTC","name":"Bitcoin",
// "marketCapUsd":"1260000000000.12","volumeUsd24Hr":"...","priceUsd":"64000.1",
// "changePercent24Hr":"1.5"}],"timestamp":1700000000000}
func (n *Normalizer) Normalize(op market.Operation, req market.Request, body []byte) *market.Result {
	if !gjson.ValidBytes(body) {
		return nil
	}
	data := gjson.GetBytes(body, "data")
	if !data.IsArray() {
		return nil
	}
	rows := data.Array()
	switch op {
	case market.OpSnapshot:
		return snapshot(rows)
	case market.OpListing:
		return listing(rows)
	case market.OpPrices:
		return prices(rows, req)
	default:
		return nil
	}
}

func snapshot(rows []gjson.Result) *market.Result {
	var totalCap, totalVol, btcCap float64
	for _, r := range rows {
		c := provider.Number(r.Get("marketCapUsd"))
		totalCap += c
		totalVol += provider.Number(r.Get("volumeUsd24Hr"))
		if r.Get("id").String() == "bitcoin" || strings.EqualFold(r.Get("symbol").String(), "btc") {
			btcCap = c
		}
	}
	dominance := FallbackDominance
	if totalCap > 0 {
		dominance = provider.Finite(btcCap / totalCap * 100)
	}
	return &market.Result{
		Op:       market.OpSnapshot,
		Currency: "usd",
		Snapshot: &market.Snapshot{
			TotalMarketCap: totalCap,
			TotalVolume24h: totalVol,
			DominancePct:   dominance,
			DominantAsset:  "btc",
			ActiveAssets:   len(rows),
			Currency:       "usd",
		},
	}
}

func listing(rows []gjson.Result) *market.Result {
	assets := make([]market.AssetQuote, 0, len(rows))
	for i, r := range rows {
		name := r.Get("name").String()
		symbol := strings.ToLower(r.Get("symbol").String())
		rank := int(provider.Number(r.Get("rank")))
		if rank <= 0 {
			rank = i + 1
		}
		change := provider.Number(r.Get("changePercent24Hr"))
		assets = append(assets, market.AssetQuote{
			ID:           r.Get("id").String(),
			Symbol:       symbol,
			Name:         name,
			ImageURL:     logoURL(name, symbol),
			Price:        provider.Number(r.Get("priceUsd")),
			MarketCap:    provider.Number(r.Get("marketCapUsd")),
			Rank:         rank,
			Volume24h:    provider.Number(r.Get("volumeUsd24Hr")),
			Change24hPct: change,
			Change7dPct:  change * WeeklyChangeFactor,
		})
	}
	return &market.Result{Op: market.OpListing, Currency: "usd", Assets: assets}
}

func prices(rows []gjson.Result, req market.Request) *market.Result {
	out := make(map[string]float64, len(req.Assets))
	for _, a := range req.Assets {
		for _, r := range rows {
			if r.Get("id").String() != a.ID && !strings.EqualFold(r.Get("symbol").String(), a.Symbol) {
				continue
			}
			if p := provider.Number(r.Get("priceUsd")); p > 0 {
				out[a.ID] = p
			}
			break
		}
	}
	return &market.Result{Op: market.OpPrices, Currency: "usd", Prices: out}
}

func logoURL(name, symbol string) string {
	slug := strings.Join(strings.Fields(strings.ToLower(name)), "-")
	return "https://cryptologos.cc/logos/" + slug + "-" + symbol + "-logo.png"
}
