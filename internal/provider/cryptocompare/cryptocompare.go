package cryptocompare

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"marketfeed/internal/market"
	"marketfeed/internal/provider"
)

const (
	// FallbackDominance is reported when the aggregate cap is zero.
	FallbackDominance = 45.0
	// WeeklyChangeFactor estimates the 7d change from the 24h change.
	WeeklyChangeFactor = 1.5

	imageHost = "https://www.cryptocompare.com"
)

// Descriptor returns the default CryptoCompare source description.
func Descriptor() provider.Descriptor {
	return provider.Descriptor{
		ID:      "tertiary",
		Name:    "CryptoCompare",
		BaseURL: "https://min-api.cryptocompare.com/data",
		Endpoints: map[market.Operation]string{
			market.OpSnapshot: "/top/mktcapfull",
			market.OpListing:  "/top/mktcapfull",
			market.OpPrices:   "/pricemulti",
		},
		RateLimit: 100,
	}
}

// Normalizer understands the CryptoCompare min-api.
type Normalizer struct{}

func New() *Normalizer { return &Normalizer{} }

func tsym(req market.Request) string { return strings.ToUpper(req.CurrencyOrDefault()) }

func (n *Normalizer) URL(d provider.Descriptor, op market.Operation, req market.Request) (string, error) {
	q := url.Values{}
	switch op {
	case market.OpSnapshot, market.OpListing:
		q.Set("limit", strconv.Itoa(req.PageSizeOrDefault()))
		q.Set("tsym", tsym(req))
	case market.OpPrices:
		if len(req.Assets) == 0 {
			return "", fmt.Errorf("cryptocompare: no assets requested")
		}
		syms := make([]string, 0, len(req.Assets))
		for _, a := range req.Assets {
			syms = append(syms, strings.ToUpper(a.Symbol))
		}
		q.Set("fsyms", strings.Join(syms, ","))
		q.Set("tsyms", "USD")
	default:
		return "", fmt.Errorf("cryptocompare: unsupported operation %q", op)
	}
	return d.Endpoint(op) + "?" + q.Encode(), nil
}

func (n *Normalizer) Normalize(op market.Operation, req market.Request, body []byte) *market.Result {
	if !gjson.ValidBytes(body) {
		return nil
	}
	root := gjson.ParseBytes(body)
	// Errors come back as 200 with {"Response":"Error","Message":"..."}.
	if root.Get("Response").String() == "Error" {
		return nil
	}
	switch op {
	case market.OpSnapshot, market.OpListing:
		data := root.Get("Data")
		if !data.IsArray() {
			return nil
		}
		if op == market.OpSnapshot {
			return snapshot(data.Array(), req)
		}
		return listing(data.Array(), req)
	case market.OpPrices:
		return prices(root, req)
	default:
		return nil
	}
}

// {"Data":[{"CoinInfo":{"Name":"BTC","FullName":"Bitcoin","ImageUrl":"/media/1/btc.png"},
// "RAW":{"USD":{"PRICE":64000,"MKTCAP":1.26e12,"TOTALVOLUME24HTO":3.1e10,"CHANGEPCT24HOUR":1.5}}}]}
func snapshot(rows []gjson.Result, req market.Request) *market.Result {
	cur := tsym(req)
	var totalCap, totalVol, btcCap float64
	for _, r := range rows {
		raw := r.Get("RAW." + cur)
		c := provider.Number(raw.Get("MKTCAP"))
		totalCap += c
		totalVol += provider.Number(raw.Get("TOTALVOLUME24HTO"))
		if r.Get("CoinInfo.Name").String() == "BTC" {
			btcCap = c
		}
	}
	dominance := FallbackDominance
	if totalCap > 0 {
		dominance = provider.Finite(btcCap / totalCap * 100)
	}
	return &market.Result{
		Op:       market.OpSnapshot,
		Currency: strings.ToLower(cur),
		Snapshot: &market.Snapshot{
			TotalMarketCap: totalCap,
			TotalVolume24h: totalVol,
			DominancePct:   dominance,
			DominantAsset:  "btc",
			ActiveAssets:   len(rows),
			Currency:       strings.ToLower(cur),
		},
	}
}

func listing(rows []gjson.Result, req market.Request) *market.Result {
	cur := tsym(req)
	assets := make([]market.AssetQuote, 0, len(rows))
	for _, r := range rows {
		info := r.Get("CoinInfo")
		raw := r.Get("RAW." + cur)
		if !info.Exists() {
			continue
		}
		change := provider.Number(raw.Get("CHANGEPCT24HOUR"))
		var image string
		if p := info.Get("ImageUrl").String(); p != "" {
			image = imageHost + p
		}
		assets = append(assets, market.AssetQuote{
			ID:           strings.ToLower(info.Get("Name").String()),
			Symbol:       strings.ToLower(info.Get("Name").String()),
			Name:         info.Get("FullName").String(),
			ImageURL:     image,
			Price:        provider.Number(raw.Get("PRICE")),
			MarketCap:    provider.Number(raw.Get("MKTCAP")),
			Rank:         len(assets) + 1,
			Volume24h:    provider.Number(raw.Get("TOTALVOLUME24HTO")),
			Change24hPct: change,
			Change7dPct:  change * WeeklyChangeFactor,
		})
	}
	return &market.Result{Op: market.OpListing, Currency: strings.ToLower(cur), Assets: assets}
}

// {"BTC":{"USD":64000},"ETH":{"USD":3100}}
func prices(root gjson.Result, req market.Request) *market.Result {
	if !root.IsObject() {
		return nil
	}
	out := make(map[string]float64, len(req.Assets))
	for _, a := range req.Assets {
		sym := strings.ToUpper(a.Symbol)
		var row gjson.Result
		root.ForEach(func(k, v gjson.Result) bool {
			if k.String() == sym {
				row = v
				return false
			}
			return true
		})
		if p := provider.Number(row.Get("USD")); p > 0 {
			out[a.ID] = p
		}
	}
	return &market.Result{Op: market.OpPrices, Currency: "usd", Prices: out}
}
