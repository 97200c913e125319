package coincap_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marketfeed/internal/market"
	"marketfeed/internal/provider/coincap"
)

const assetsPayload = `{"data":[
  {"id":"bitcoin","rank":"1","symbol":"BTC","name":"Bitcoin","marketCapUsd":"600","volumeUsd24Hr":"60","priceUsd":"64000.5","changePercent24Hr":"2.0"},
  {"id":"ethereum","rank":"2","symbol":"ETH","name":"Ethereum","marketCapUsd":"300","volumeUsd24Hr":"30","priceUsd":"3100","changePercent24Hr":"-1.0"},
  {"id":"shiba-inu","rank":"","symbol":"SHIB","name":"Shiba Inu","marketCapUsd":null,"volumeUsd24Hr":"NaN","priceUsd":"0.00001","changePercent24Hr":null}
],"timestamp":1700000000000}`

func TestURL(t *testing.T) {
	t.Parallel()

	n := coincap.New()
	d := coincap.Descriptor()

	u, err := n.URL(d, market.OpListing, market.Request{PageSize: 20})
	require.NoError(t, err)
	require.Equal(t, "https://api.coincap.io/v2/assets?limit=20", u)

	u, err = n.URL(d, market.OpPrices, market.Request{})
	require.NoError(t, err)
	require.Equal(t, "https://api.coincap.io/v2/assets?limit=100", u)
}

func TestNormalize_Snapshot(t *testing.T) {
	t.Parallel()

	res := coincap.New().Normalize(market.OpSnapshot, market.Request{}, []byte(assetsPayload))
	require.NotNil(t, res)
	s := res.Snapshot
	require.InEpsilon(t, 900.0, s.TotalMarketCap, 1e-9)
	require.InEpsilon(t, 90.0, s.TotalVolume24h, 1e-9)
	require.InEpsilon(t, 600.0/900.0*100, s.DominancePct, 1e-9)
	require.Equal(t, 3, s.ActiveAssets)
	require.Equal(t, "usd", s.Currency)
}

func TestNormalize_SnapshotWithoutCaps(t *testing.T) {
	t.Parallel()

	res := coincap.New().Normalize(market.OpSnapshot, market.Request{}, []byte(`{"data":[{"id":"x","priceUsd":"1"}]}`))
	require.NotNil(t, res)
	require.InEpsilon(t, coincap.FallbackDominance, res.Snapshot.DominancePct, 1e-9)
}

func TestNormalize_Listing(t *testing.T) {
	t.Parallel()

	res := coincap.New().Normalize(market.OpListing, market.Request{}, []byte(assetsPayload))
	require.NotNil(t, res)
	require.Len(t, res.Assets, 3)

	btc := res.Assets[0]
	require.Equal(t, "btc", btc.Symbol)
	require.InEpsilon(t, 64000.5, btc.Price, 1e-9)
	require.InEpsilon(t, 2.0*coincap.WeeklyChangeFactor, btc.Change7dPct, 1e-9)
	require.Equal(t, "https://cryptologos.cc/logos/bitcoin-btc-logo.png", btc.ImageURL)

	shib := res.Assets[2]
	require.Equal(t, 3, shib.Rank)
	require.Zero(t, shib.MarketCap)
	require.Zero(t, shib.Volume24h)
	require.Equal(t, "https://cryptologos.cc/logos/shiba-inu-shib-logo.png", shib.ImageURL)
}

func TestNormalize_Prices(t *testing.T) {
	t.Parallel()

	req := market.Request{Assets: []market.AssetRef{{ID: "ethereum", Symbol: "ETH"}, {ID: "bitcoin", Symbol: "BTC"}}}
	res := coincap.New().Normalize(market.OpPrices, req, []byte(assetsPayload))
	require.NotNil(t, res)
	require.True(t, res.Valid(req))
	require.InEpsilon(t, 3100.0, res.Prices["ethereum"], 1e-9)
	require.InEpsilon(t, 64000.5, res.Prices["bitcoin"], 1e-9)
}

func TestNormalize_Invalid(t *testing.T) {
	t.Parallel()

	n := coincap.New()
	require.Nil(t, n.Normalize(market.OpListing, market.Request{}, []byte(`{"error":"limit exceeded"}`)))
	require.Nil(t, n.Normalize(market.OpListing, market.Request{}, []byte(`<html>`)))
}
