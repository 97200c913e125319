package gateway_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketfeed/internal/config"
	"marketfeed/internal/gateway"
	"marketfeed/internal/httpx"
	"marketfeed/internal/logging"
)

const (
	coingeckoGlobal  = `{"data":{"active_cryptocurrencies":13000,"total_market_cap":{"usd":2.5e12},"total_volume":{"usd":9e10},"market_cap_percentage":{"btc":51.2}}}`
	coingeckoPrices  = `{"bitcoin":{"usd":64000},"ethereum":{"usd":3100}}`
	coincapAssets    = `{"data":[{"id":"bitcoin","rank":"1","symbol":"BTC","name":"Bitcoin","priceUsd":"64000","marketCapUsd":"1260000000000","volumeUsd24Hr":"31000000000","changePercent24Hr":"1.5"},{"id":"ethereum","rank":"2","symbol":"ETH","name":"Ethereum","priceUsd":"3100","marketCapUsd":"370000000000","volumeUsd24Hr":"15000000000","changePercent24Hr":"-0.5"}]}`
	coingeckoMarkets = `[{"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":64000,"market_cap":1.26e12,"market_cap_rank":1,"total_volume":3.1e10},{"id":"ethereum","symbol":"eth","name":"Ethereum","current_price":3100,"market_cap":3.7e11,"market_cap_rank":2,"total_volume":1.5e10}]`
)

type upstream struct {
	srv     *httptest.Server
	hits    atomic.Int32
	handler http.HandlerFunc
}

func newUpstream(t *testing.T, h http.HandlerFunc) *upstream {
	t.Helper()
	u := &upstream{handler: h}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		u.handler(w, r)
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func hang(w http.ResponseWriter, r *http.Request) {
	select {
	case <-r.Context().Done():
	case <-time.After(5 * time.Second):
	}
}

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

// setup points the four default sources at test servers in priority order.
func setup(t *testing.T, handlers ...http.HandlerFunc) (*gateway.Gateway, []*upstream) {
	t.Helper()
	require.Len(t, handlers, 4)

	cfg := config.Default()
	ups := make([]*upstream, len(handlers))
	for i, h := range handlers {
		ups[i] = newUpstream(t, h)
		cfg.Gateway.Sources[i].BaseURL = ups[i].srv.URL
	}

	clock := &fixedClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	g, err := gateway.FromConfig(cfg, httpx.New(0),
		gateway.WithTimeout(100*time.Millisecond),
		gateway.WithClock(clock.Now),
		gateway.WithLogger(logging.Discard()),
	)
	require.NoError(t, err)
	return g, ups
}

func TestGateway_PrimaryTimeoutFailsOverToSecondary(t *testing.T) {
	t.Parallel()

	// Arrange:
	g, ups := setup(t,
		hang,
		respond(http.StatusOK, coincapAssets),
		respond(http.StatusInternalServerError, ""),
		respond(http.StatusInternalServerError, ""),
	)

	// Act:
	assets, err := g.FetchAssetListing(t.Context(), "usd", 10)

	// Assert:
	require.NoError(t, err)
	require.Len(t, assets, 2)
	require.Equal(t, "bitcoin", assets[0].ID)
	require.Equal(t, 1, assets[0].Rank)

	st := g.Status()
	require.Equal(t, "secondary", st.Current)
	require.Equal(t, "CoinCap", st.CurrentName)
	require.NotNil(t, st.LastSwitch)
	require.False(t, st.Sources[0].Active)
	require.NotNil(t, st.Sources[0].DeactivatedUntil)
	require.True(t, st.Sources[1].Active)
	require.Equal(t, 1, st.Sources[1].Requests)
	require.Zero(t, ups[2].hits.Load())
}

func TestGateway_AllSourcesFailing(t *testing.T) {
	t.Parallel()

	// Arrange:
	fail := respond(http.StatusInternalServerError, "boom")
	g, ups := setup(t, fail, fail, fail, fail)

	// Act:
	snap, err := g.FetchMarketSnapshot(t.Context(), "usd")

	// Assert:
	require.ErrorIs(t, err, gateway.ErrUnavailable)
	require.Nil(t, snap)
	for i, s := range g.Status().Sources {
		require.False(t, s.Active, s.ID)
		require.GreaterOrEqual(t, s.Failures, 1, s.ID)
		require.EqualValues(t, 1, ups[i].hits.Load(), s.ID)
	}
}

func TestGateway_PrimaryStaysInactiveAcrossTimeouts(t *testing.T) {
	t.Parallel()

	// Arrange:
	g, ups := setup(t,
		hang,
		respond(http.StatusOK, coincapAssets),
		respond(http.StatusInternalServerError, ""),
		respond(http.StatusInternalServerError, ""),
	)

	for call := range 3 {
		// Act:
		assets, err := g.FetchAssetListing(t.Context(), "usd", 10)

		// Assert:
		require.NoError(t, err, call)
		require.Len(t, assets, 2, call)
		st := g.Status()
		require.Equal(t, "secondary", st.Current, call)
		require.False(t, st.Sources[0].Active, call)
	}
	require.EqualValues(t, 1, ups[0].hits.Load())
	require.EqualValues(t, 3, ups[1].hits.Load())
	require.Zero(t, ups[2].hits.Load())
}

func TestGateway_AllSourcesFailingListing(t *testing.T) {
	t.Parallel()

	// Arrange:
	fail := respond(http.StatusInternalServerError, "boom")
	g, ups := setup(t, fail, fail, fail, fail)

	// Act:
	assets, err := g.FetchAssetListing(t.Context(), "usd", 10)

	// Assert:
	require.ErrorIs(t, err, gateway.ErrUnavailable)
	require.Nil(t, assets)
	for i, s := range g.Status().Sources {
		require.False(t, s.Active, s.ID)
		require.GreaterOrEqual(t, s.Failures, 1, s.ID)
		require.EqualValues(t, 1, ups[i].hits.Load(), s.ID)
	}
}

func TestGateway_UnsupportedCurrencyNeverReachesSources(t *testing.T) {
	t.Parallel()

	// Arrange:
	g, ups := setup(t,
		func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("vs_currency") != "usd" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(coingeckoMarkets))
		},
		respond(http.StatusOK, coincapAssets),
		respond(http.StatusOK, ""),
		respond(http.StatusOK, ""),
	)

	// Act:
	for range 3 {
		_, err := g.FetchAssetListing(t.Context(), "zzz", 10)
		require.ErrorIs(t, err, gateway.ErrInvalidRequest)
	}
	_, err := g.FetchMarketSnapshot(t.Context(), " ZZZ ")
	require.ErrorIs(t, err, gateway.ErrInvalidRequest)

	// Assert:
	for _, u := range ups {
		require.Zero(t, u.hits.Load())
	}
	st := g.Status()
	require.Equal(t, "primary", st.Current)
	require.True(t, st.Sources[0].Active)
	require.Zero(t, st.Sources[0].Failures)

	assets, err := g.FetchAssetListing(t.Context(), "USD", 10)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	require.EqualValues(t, 1, ups[0].hits.Load())
}

func TestGateway_ConfiguredCurrencies(t *testing.T) {
	t.Parallel()

	// Arrange:
	cfg := config.Default()
	primary := newUpstream(t, respond(http.StatusOK, `{"data":{"active_cryptocurrencies":13000,"total_market_cap":{"gbp":2e12},"total_volume":{"gbp":7e10},"market_cap_percentage":{"btc":51.2}}}`))
	cfg.Gateway.Sources[0].BaseURL = primary.srv.URL
	cfg.Gateway.Currencies = []string{"usd", "GBP"}
	g, err := gateway.FromConfig(cfg, httpx.New(0), gateway.WithLogger(logging.Discard()))
	require.NoError(t, err)

	// Act:
	_, eurErr := g.FetchMarketSnapshot(t.Context(), "eur")
	snap, gbpErr := g.FetchMarketSnapshot(t.Context(), "gbp")

	// Assert:
	require.ErrorIs(t, eurErr, gateway.ErrInvalidRequest)
	require.NoError(t, gbpErr)
	require.Equal(t, "CoinGecko", snap.Source)
	require.EqualValues(t, 1, primary.hits.Load())
}

func TestGateway_NonCriticalFailureKeepsSource(t *testing.T) {
	t.Parallel()

	// Arrange:
	g, ups := setup(t,
		respond(http.StatusTooManyRequests, ""),
		respond(http.StatusOK, coincapAssets),
		respond(http.StatusOK, ""),
		respond(http.StatusOK, ""),
	)

	// Act:
	_, err := g.FetchMarketSnapshot(t.Context(), "usd")

	// Assert:
	require.ErrorIs(t, err, gateway.ErrUnavailable)
	st := g.Status()
	require.Equal(t, "primary", st.Current)
	require.True(t, st.Sources[0].Active)
	require.Equal(t, 1, st.Sources[0].Failures)
	require.Zero(t, ups[1].hits.Load())
}

func TestGateway_ThirdNonCriticalFailureTrips(t *testing.T) {
	t.Parallel()

	// Arrange:
	g, _ := setup(t,
		respond(http.StatusOK, `{"unexpected":true}`),
		respond(http.StatusOK, coincapAssets),
		respond(http.StatusOK, ""),
		respond(http.StatusOK, ""),
	)

	// Act:
	for range 2 {
		_, err := g.FetchMarketSnapshot(t.Context(), "usd")
		require.ErrorIs(t, err, gateway.ErrUnavailable)
	}
	snap, err := g.FetchMarketSnapshot(t.Context(), "usd")

	// Assert:
	require.NoError(t, err)
	require.Equal(t, "CoinCap", snap.Source)
	require.Equal(t, 2, snap.ActiveAssets)
	require.Equal(t, "secondary", g.Status().Current)
}

func TestGateway_RateLimitedSourceIsSkipped(t *testing.T) {
	t.Parallel()

	// Arrange:
	cfg := config.Default()
	primary := newUpstream(t, respond(http.StatusOK, coingeckoGlobal))
	secondary := newUpstream(t, respond(http.StatusOK, coincapAssets))
	cfg.Gateway.Sources[0].BaseURL = primary.srv.URL
	cfg.Gateway.Sources[0].RateLimitPerMinute = 2 // budget of one request
	cfg.Gateway.Sources[1].BaseURL = secondary.srv.URL

	clock := &fixedClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	g, err := gateway.FromConfig(cfg, httpx.New(0), gateway.WithClock(clock.Now), gateway.WithLogger(logging.Discard()))
	require.NoError(t, err)

	// Act:
	first, err := g.FetchMarketSnapshot(t.Context(), "usd")
	require.NoError(t, err)
	second, err := g.FetchMarketSnapshot(t.Context(), "usd")
	require.NoError(t, err)

	// Assert:
	require.Equal(t, "CoinGecko", first.Source)
	require.InEpsilon(t, 51.2, first.DominancePct, 1e-9)
	require.Equal(t, clock.now, first.FetchedAt)
	require.Equal(t, "CoinCap", second.Source)
	require.EqualValues(t, 1, primary.hits.Load())
	require.EqualValues(t, 1, secondary.hits.Load())

	st := g.Status()
	require.True(t, st.Sources[0].Active)
	require.Zero(t, st.Sources[0].Failures)
}

func TestGateway_ListingTruncatedToPageSize(t *testing.T) {
	t.Parallel()

	g, _ := setup(t,
		respond(http.StatusOK, coingeckoMarkets),
		respond(http.StatusOK, ""),
		respond(http.StatusOK, ""),
		respond(http.StatusOK, ""),
	)

	assets, err := g.FetchAssetListing(t.Context(), "", 1)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	require.Equal(t, "bitcoin", assets[0].ID)
}

func TestGateway_FetchPricePairResolvesAliases(t *testing.T) {
	t.Parallel()

	// Arrange:
	var query string
	g, _ := setup(t,
		func(w http.ResponseWriter, r *http.Request) {
			query = r.URL.Query().Get("ids")
			_, _ = w.Write([]byte(coingeckoPrices))
		},
		respond(http.StatusOK, ""),
		respond(http.StatusOK, ""),
		respond(http.StatusOK, ""),
	)

	// Act:
	pair, err := g.FetchPricePair(t.Context(), "BTC", "ethereum")

	// Assert:
	require.NoError(t, err)
	require.Equal(t, "bitcoin,ethereum", query)
	require.Equal(t, "bitcoin", pair.AssetA.ID)
	require.Equal(t, "BTC", pair.AssetA.Symbol)
	require.Equal(t, "ETH", pair.AssetB.Symbol)
	require.InEpsilon(t, 64000.0, pair.PriceA, 1e-9)
	require.InEpsilon(t, 3100.0, pair.PriceB, 1e-9)
	require.Equal(t, "CoinGecko", pair.Source)
}

func TestGateway_FetchPricePairInvalidRequest(t *testing.T) {
	t.Parallel()

	g, ups := setup(t,
		respond(http.StatusOK, coingeckoPrices),
		respond(http.StatusOK, ""),
		respond(http.StatusOK, ""),
		respond(http.StatusOK, ""),
	)

	for _, tc := range [][2]string{{"", "btc"}, {"bitcoin", " "}, {"bitcoin", "BTC"}} {
		_, err := g.FetchPricePair(t.Context(), tc[0], tc[1])
		require.ErrorIs(t, err, gateway.ErrInvalidRequest, tc)
	}
	require.Zero(t, ups[0].hits.Load())
}

func TestGateway_MissingPriceIsNotServed(t *testing.T) {
	t.Parallel()

	g, _ := setup(t,
		respond(http.StatusOK, `{"bitcoin":{"usd":64000}}`),
		respond(http.StatusOK, ""),
		respond(http.StatusOK, ""),
		respond(http.StatusOK, ""),
	)

	_, err := g.FetchPricePair(t.Context(), "bitcoin", "ethereum")
	require.ErrorIs(t, err, gateway.ErrUnavailable)
	require.Equal(t, 1, g.Status().Sources[0].Failures)
}

func TestGateway_CancelledContextIsNotAFailure(t *testing.T) {
	t.Parallel()

	// Arrange:
	g, _ := setup(t,
		hang,
		respond(http.StatusOK, ""),
		respond(http.StatusOK, ""),
		respond(http.StatusOK, ""),
	)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	// Act:
	_, err := g.FetchMarketSnapshot(ctx, "usd")

	// Assert:
	require.ErrorIs(t, err, context.Canceled)
	st := g.Status()
	require.Equal(t, "primary", st.Current)
	require.Zero(t, st.Sources[0].Failures)
}

func TestGateway_ForceSwitch(t *testing.T) {
	t.Parallel()

	ok := respond(http.StatusOK, "")
	g, _ := setup(t, ok, ok, ok, ok)

	require.True(t, g.ForceSwitch())
	require.Equal(t, "secondary", g.Status().Current)
	require.True(t, g.ForceSwitch())
	require.True(t, g.ForceSwitch())
	require.True(t, g.ForceSwitch())
	require.Equal(t, "primary", g.Status().Current)
}

func TestGateway_Resolve(t *testing.T) {
	t.Parallel()

	ok := respond(http.StatusOK, "")
	g, _ := setup(t, ok, ok, ok, ok)

	require.Equal(t, "ethereum", g.Resolve("eth").ID)
	require.Equal(t, "ETH", g.Resolve("Ethereum").Symbol)
	unknown := g.Resolve(" Pepe ")
	require.Equal(t, "pepe", unknown.ID)
	require.Equal(t, "PEPE", unknown.Symbol)
}
