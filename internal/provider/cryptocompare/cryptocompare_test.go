package cryptocompare_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"marketfeed/internal/market"
	"marketfeed/internal/provider/cryptocompare"
)

const topPayload = `{"Message":"Success","Type":100,"Data":[
  {"CoinInfo":{"Name":"BTC","FullName":"Bitcoin","ImageUrl":"/media/37746251/btc.png"},
   "RAW":{"USD":{"PRICE":64000,"MKTCAP":750,"TOTALVOLUME24HTO":70,"CHANGEPCT24HOUR":2}}},
  {"CoinInfo":{"Name":"ETH","FullName":"Ethereum","ImageUrl":"/media/37746238/eth.png"},
   "RAW":{"USD":{"PRICE":3100,"MKTCAP":250,"TOTALVOLUME24HTO":30,"CHANGEPCT24HOUR":-4}}},
  {"CoinInfo":{"Name":"NEW","FullName":"Freshly Listed"}}
]}`

func TestURL(t *testing.T) {
	t.Parallel()

	n := cryptocompare.New()
	d := cryptocompare.Descriptor()

	u, err := n.URL(d, market.OpListing, market.Request{Currency: "eur"})
	require.NoError(t, err)
	parsed, err := url.Parse(u)
	require.NoError(t, err)
	require.Equal(t, "/data/top/mktcapfull", parsed.Path)
	require.Equal(t, "EUR", parsed.Query().Get("tsym"))
	require.Equal(t, "50", parsed.Query().Get("limit"))

	u, err = n.URL(d, market.OpPrices, market.Request{Assets: []market.AssetRef{{ID: "bitcoin", Symbol: "btc"}, {ID: "ethereum", Symbol: "eth"}}})
	require.NoError(t, err)
	parsed, err = url.Parse(u)
	require.NoError(t, err)
	require.Equal(t, "/data/pricemulti", parsed.Path)
	require.Equal(t, "BTC,ETH", parsed.Query().Get("fsyms"))
}

func TestNormalize_Snapshot(t *testing.T) {
	t.Parallel()

	res := cryptocompare.New().Normalize(market.OpSnapshot, market.Request{}, []byte(topPayload))
	require.NotNil(t, res)
	require.InEpsilon(t, 1000.0, res.Snapshot.TotalMarketCap, 1e-9)
	require.InEpsilon(t, 100.0, res.Snapshot.TotalVolume24h, 1e-9)
	require.InEpsilon(t, 75.0, res.Snapshot.DominancePct, 1e-9)
	require.Equal(t, 3, res.Snapshot.ActiveAssets)
}

func TestNormalize_Listing(t *testing.T) {
	t.Parallel()

	res := cryptocompare.New().Normalize(market.OpListing, market.Request{}, []byte(topPayload))
	require.NotNil(t, res)
	require.Len(t, res.Assets, 3)
	require.Equal(t, "btc", res.Assets[0].Symbol)
	require.Equal(t, "https://www.cryptocompare.com/media/37746251/btc.png", res.Assets[0].ImageURL)
	require.InEpsilon(t, -4*cryptocompare.WeeklyChangeFactor, res.Assets[1].Change7dPct, 1e-9)
	require.Equal(t, 3, res.Assets[2].Rank)
	require.Zero(t, res.Assets[2].Price)
	require.Empty(t, res.Assets[2].ImageURL)
}

func TestNormalize_Prices(t *testing.T) {
	t.Parallel()

	req := market.Request{Assets: []market.AssetRef{{ID: "bitcoin", Symbol: "BTC"}, {ID: "ethereum", Symbol: "ETH"}}}
	res := cryptocompare.New().Normalize(market.OpPrices, req, []byte(`{"BTC":{"USD":64000},"ETH":{"USD":3100}}`))
	require.NotNil(t, res)
	require.True(t, res.Valid(req))
	require.InEpsilon(t, 3100.0, res.Prices["ethereum"], 1e-9)
}

func TestNormalize_ErrorResponse(t *testing.T) {
	t.Parallel()

	body := []byte(`{"Response":"Error","Message":"rate limit","Data":[]}`)
	require.Nil(t, cryptocompare.New().Normalize(market.OpListing, market.Request{}, body))
	require.Nil(t, cryptocompare.New().Normalize(market.OpListing, market.Request{}, []byte(`{"Data":{}}`)))
}
