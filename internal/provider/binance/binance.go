package binance

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"marketfeed/internal/market"
	"marketfeed/internal/provider"
)

// Binance exposes exchange tickers, not market caps. These constants drive
// the rough estimates it reports instead.
const (
	// DefaultVolumeMultiplier estimates total market cap from quote volume.
	DefaultVolumeMultiplier = 50.0
	// BTCSupply approximates circulating bitcoin supply.
	BTCSupply = 19_000_000.0
	// FallbackBTCPrice is used when BTCUSDT is missing from the ticker set.
	FallbackBTCPrice = 50000.0
	// MaxDominance caps the estimated dominance.
	MaxDominance = 60.0
	// FallbackDominance is reported when the estimate cannot be made.
	FallbackDominance = 45.0
	// WeeklyChangeFactor estimates the 7d change from the 24h change.
	WeeklyChangeFactor = 1.3
)

const quote = "USDT"

// Descriptor returns the default Binance source description.
func Descriptor() provider.Descriptor {
	return provider.Descriptor{
		ID:      "quaternary",
		Name:    "Binance",
		BaseURL: "https://api.binance.com/api/v3",
		Endpoints: map[market.Operation]string{
			market.OpSnapshot: "/ticker/24hr",
			market.OpListing:  "/ticker/24hr",
			market.OpPrices:   "/ticker/price",
		},
		RateLimit: 1200,
	}
}

// Normalizer understands the Binance spot ticker API. Prices are USDT
// pairs reported as USD.
type Normalizer struct {
	// VolumeMultiplier scales total quote volume into an estimated market cap.
	VolumeMultiplier float64
}

func New() *Normalizer { return &Normalizer{VolumeMultiplier: DefaultVolumeMultiplier} }

func (n *Normalizer) URL(d provider.Descriptor, op market.Operation, _ market.Request) (string, error) {
	switch op {
	case market.OpSnapshot, market.OpListing, market.OpPrices:
		return d.Endpoint(op), nil
	default:
		return "", fmt.Errorf("binance: unsupported operation %q", op)
	}
}

type ticker struct {
	base        string
	lastPrice   float64
	volume      float64
	quoteVolume float64
	changePct   float64
}

// [{"symbol":"BTCUSDT","lastPrice":"64000.00","volume":"20000.5",
// "quoteVolume":"1280000000.0","priceChangePercent":"1.500"}]
func usdtTickers(rows []gjson.Result) []ticker {
	out := make([]ticker, 0, len(rows))
	for _, r := range rows {
		sym := r.Get("symbol").String()
		if !strings.HasSuffix(sym, quote) || len(sym) == len(quote) {
			continue
		}
		out = append(out, ticker{
			base:        strings.TrimSuffix(sym, quote),
			lastPrice:   provider.Number(r.Get("lastPrice")),
			volume:      provider.Number(r.Get("volume")),
			quoteVolume: provider.Number(r.Get("quoteVolume")),
			changePct:   provider.Number(r.Get("priceChangePercent")),
		})
	}
	return out
}

func (n *Normalizer) Normalize(op market.Operation, req market.Request, body []byte) *market.Result {
	if !gjson.ValidBytes(body) {
		return nil
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil
	}
	switch op {
	case market.OpSnapshot:
		return snapshot(usdtTickers(root.Array()), n.VolumeMultiplier)
	case market.OpListing:
		return listing(usdtTickers(root.Array()), req.PageSizeOrDefault())
	case market.OpPrices:
		return prices(root.Array(), req)
	default:
		return nil
	}
}

func snapshot(ts []ticker, multiplier float64) *market.Result {
	if multiplier <= 0 {
		multiplier = DefaultVolumeMultiplier
	}
	var volume float64
	btcPrice := FallbackBTCPrice
	for _, t := range ts {
		volume += t.quoteVolume
		if t.base == "BTC" && t.lastPrice > 0 {
			btcPrice = t.lastPrice
		}
	}
	estimatedCap := volume * multiplier
	dominance := FallbackDominance
	if estimatedCap > 0 {
		dominance = math.Min(provider.Finite(btcPrice*BTCSupply/estimatedCap*100), MaxDominance)
	}
	return &market.Result{
		Op:       market.OpSnapshot,
		Currency: "usd",
		Snapshot: &market.Snapshot{
			TotalMarketCap: estimatedCap,
			TotalVolume24h: volume,
			DominancePct:   dominance,
			DominantAsset:  "btc",
			ActiveAssets:   len(ts),
			Currency:       "usd",
		},
	}
}

// listing ranks pairs by quote volume, the closest proxy Binance offers.
func listing(ts []ticker, pageSize int) *market.Result {
	sort.SliceStable(ts, func(i, j int) bool { return ts[i].quoteVolume > ts[j].quoteVolume })
	if len(ts) > pageSize {
		ts = ts[:pageSize]
	}
	assets := make([]market.AssetQuote, 0, len(ts))
	for i, t := range ts {
		id := strings.ToLower(t.base)
		assets = append(assets, market.AssetQuote{
			ID:           id,
			Symbol:       id,
			Name:         t.base,
			ImageURL:     "https://bin.bnbstatic.com/static/assets/logos/" + t.base + ".png",
			Price:        t.lastPrice,
			MarketCap:    provider.Finite(t.lastPrice * t.volume),
			Rank:         i + 1,
			Volume24h:    t.quoteVolume,
			Change24hPct: t.changePct,
			Change7dPct:  t.changePct * WeeklyChangeFactor,
		})
	}
	return &market.Result{Op: market.OpListing, Currency: "usd", Assets: assets}
}

// [{"symbol":"BTCUSDT","price":"64000.00"}]
func prices(rows []gjson.Result, req market.Request) *market.Result {
	bySymbol := make(map[string]float64, len(rows))
	for _, r := range rows {
		bySymbol[r.Get("symbol").String()] = provider.Number(r.Get("price"))
	}
	out := make(map[string]float64, len(req.Assets))
	for _, a := range req.Assets {
		sym := strings.ToUpper(a.Symbol)
		if sym == quote {
			out[a.ID] = 1
			continue
		}
		if p := bySymbol[sym+quote]; p > 0 {
			out[a.ID] = p
		}
	}
	return &market.Result{Op: market.OpPrices, Currency: "usd", Prices: out}
}
