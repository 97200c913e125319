package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"marketfeed/internal/httpx"
	"marketfeed/internal/market"
	"marketfeed/internal/metrics"
	"marketfeed/internal/provider"
	"marketfeed/internal/provider/health"
)

var (
	// ErrUnavailable means no source could serve the request right now.
	ErrUnavailable = errors.New("no market source available")
	// ErrInvalidRequest is returned before any network call for bad input.
	ErrInvalidRequest = errors.New("invalid market request")

	errMalformed = errors.New("malformed upstream payload")
	errBadURL    = errors.New("cannot build upstream url")
)

// DefaultTimeout bounds every upstream request.
const DefaultTimeout = 10 * time.Second

// DefaultCurrencies are the quote currencies accepted when none are configured.
var DefaultCurrencies = []string{"usd", "eur", "brl"}

// Fetcher performs a GET and returns the body. *httpx.Client implements it.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Status is the diagnostic view of every source.
type Status = health.Status

// Gateway serves market data from one active source at a time, failing
// over along the registry order when a source trips.
type Gateway struct {
	registry *provider.Registry
	tracker  *health.Tracker
	client   Fetcher
	log      logrus.FieldLogger
	timeout  time.Duration
	now      func() time.Time

	symbols    map[string]string // id -> SYMBOL
	ids        map[string]string // SYMBOL -> id
	currencies map[string]bool
}

// Option configures a Gateway.
type Option func(*Gateway)

func WithLogger(log logrus.FieldLogger) Option {
	return func(g *Gateway) { g.log = log }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithAssets sets the id -> symbol table used to resolve price lookups.
func WithAssets(aliases map[string]string) Option {
	return func(g *Gateway) {
		for id, sym := range aliases {
			id, sym = strings.ToLower(id), strings.ToUpper(sym)
			g.symbols[id] = sym
			g.ids[sym] = id
		}
	}
}

// WithCurrencies replaces the accepted quote currencies. An empty list
// keeps DefaultCurrencies.
func WithCurrencies(codes []string) Option {
	return func(g *Gateway) {
		if len(codes) == 0 {
			return
		}
		g.currencies = make(map[string]bool, len(codes))
		for _, c := range codes {
			g.currencies[market.Request{Currency: c}.CurrencyOrDefault()] = true
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

func New(registry *provider.Registry, tracker *health.Tracker, client Fetcher, opts ...Option) *Gateway {
	g := &Gateway{
		registry: registry,
		tracker:  tracker,
		client:   client,
		log:      logrus.StandardLogger(),
		timeout:  DefaultTimeout,
		now:      time.Now,
		symbols:  map[string]string{},
		ids:      map[string]string{},
	}
	WithCurrencies(DefaultCurrencies)(g)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FetchMarketSnapshot returns the global market overview.
func (g *Gateway) FetchMarketSnapshot(ctx context.Context, currency string) (*market.Snapshot, error) {
	req := market.Request{Currency: currency}
	if err := g.checkCurrency(req); err != nil {
		return nil, err
	}
	res, src, err := g.fetch(ctx, market.OpSnapshot, req)
	if err != nil {
		return nil, err
	}
	s := *res.Snapshot
	s.Source = src.Name
	s.FetchedAt = g.now()
	return &s, nil
}

// FetchAssetListing returns up to pageSize assets in rank order.
func (g *Gateway) FetchAssetListing(ctx context.Context, currency string, pageSize int) ([]market.AssetQuote, error) {
	req := market.Request{Currency: currency, PageSize: pageSize}
	if err := g.checkCurrency(req); err != nil {
		return nil, err
	}
	res, _, err := g.fetch(ctx, market.OpListing, req)
	if err != nil {
		return nil, err
	}
	assets := res.Assets
	if n := req.PageSizeOrDefault(); len(assets) > n {
		assets = assets[:n]
	}
	return assets, nil
}

// FetchPricePair returns USD prices of two assets from one source.
// Assets may be given as slug ids ("bitcoin") or symbols ("BTC").
func (g *Gateway) FetchPricePair(ctx context.Context, assetA, assetB string) (*market.PricePair, error) {
	if strings.TrimSpace(assetA) == "" || strings.TrimSpace(assetB) == "" {
		return nil, fmt.Errorf("%w: two assets are required", ErrInvalidRequest)
	}
	a, b := g.Resolve(assetA), g.Resolve(assetB)
	if a.ID == b.ID {
		return nil, fmt.Errorf("%w: %s and %s are the same asset", ErrInvalidRequest, assetA, assetB)
	}
	res, src, err := g.fetch(ctx, market.OpPrices, market.Request{Assets: []market.AssetRef{a, b}})
	if err != nil {
		return nil, err
	}
	return &market.PricePair{
		AssetA: a,
		AssetB: b,
		PriceA: res.Prices[a.ID],
		PriceB: res.Prices[b.ID],
		Source: src.Name,
	}, nil
}

// checkCurrency rejects quote currencies no source is expected to serve,
// so bad input never counts against a source.
func (g *Gateway) checkCurrency(req market.Request) error {
	if c := req.CurrencyOrDefault(); !g.currencies[c] {
		return fmt.Errorf("%w: unsupported currency %q", ErrInvalidRequest, c)
	}
	return nil
}

// Resolve maps a user-supplied id or symbol onto both spellings.
func (g *Gateway) Resolve(s string) market.AssetRef {
	key := strings.ToLower(strings.TrimSpace(s))
	if sym, ok := g.symbols[key]; ok {
		return market.AssetRef{ID: key, Symbol: sym}
	}
	if id, ok := g.ids[strings.ToUpper(key)]; ok {
		return market.AssetRef{ID: id, Symbol: strings.ToUpper(key)}
	}
	return market.AssetRef{ID: key, Symbol: strings.ToUpper(key)}
}

// Status reports the active source and per-source counters.
func (g *Gateway) Status() Status { return g.tracker.Status() }

// ForceSwitch moves to the next active source. It returns false when no
// other source is available.
func (g *Gateway) ForceSwitch() bool {
	cur := g.tracker.Current()
	next := g.tracker.Advance(cur)
	if next == cur {
		return false
	}
	g.switched(cur, next, "manual")
	return true
}

// fetch runs one operation against at most one attempt per registered source.
func (g *Gateway) fetch(ctx context.Context, op market.Operation, req market.Request) (*market.Result, provider.Descriptor, error) {
	attempts := g.registry.Len()
	id := g.tracker.Current()
	for attempt := 0; attempt < attempts; attempt++ {
		if !g.tracker.IsActive(id) {
			next := g.tracker.Advance(id)
			g.switched(id, next, "inactive")
			id = next
		}

		if g.tracker.IsRateLimited(id) {
			next := g.tracker.Advance(id)
			if next == id {
				g.log.WithField("source", id).Warn("all sources rate limited")
				return nil, provider.Descriptor{}, ErrUnavailable
			}
			g.switched(id, next, "rate_limited")
			id = next
			continue
		}

		res, err := g.attempt(ctx, id, op, req)
		if err == nil {
			g.tracker.RecordSuccess(id)
			d, _ := g.registry.Describe(id)
			return res, d, nil
		}
		if ctx.Err() != nil {
			return nil, provider.Descriptor{}, ctx.Err()
		}

		critical := isCritical(err)
		tripped := g.tracker.RecordFailure(id, critical)
		g.log.WithFields(logrus.Fields{
			"source":    id,
			"operation": op,
			"critical":  critical,
			"tripped":   tripped,
		}).WithError(err).Warn("market source failed")
		if !tripped {
			return nil, provider.Descriptor{}, ErrUnavailable
		}
		metrics.RecordBreakerTrip(id, critical)
		if attempt == attempts-1 {
			break
		}
		next := g.tracker.Advance(id)
		g.switched(id, next, "breaker")
		id = next
	}
	return nil, provider.Descriptor{}, ErrUnavailable
}

func (g *Gateway) attempt(ctx context.Context, id string, op market.Operation, req market.Request) (*market.Result, error) {
	d, _ := g.registry.Describe(id)
	n, _ := g.registry.Normalizer(id)

	url, err := n.URL(d, op, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadURL, err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	body, err := g.client.Get(ctx, url)
	if err != nil {
		metrics.RecordSourceRequest(id, string(op), "error", time.Since(start))
		return nil, err
	}

	res := n.Normalize(op, req, body)
	if !res.Valid(req) {
		metrics.RecordSourceRequest(id, string(op), "malformed", time.Since(start))
		return nil, fmt.Errorf("%s %s: %w", d.Name, op, errMalformed)
	}
	metrics.RecordSourceRequest(id, string(op), "ok", time.Since(start))
	return res, nil
}

func (g *Gateway) switched(from, to, reason string) {
	if from == to {
		return
	}
	metrics.RecordFailover(from, to, reason)
	g.log.WithFields(logrus.Fields{"from": from, "to": to, "reason": reason}).Info("switched market source")
}

// isCritical reports whether err should trip the breaker on its own:
// transport failures, timeouts and 5xx responses.
func isCritical(err error) bool {
	var se *httpx.StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	if errors.Is(err, errMalformed) || errors.Is(err, errBadURL) {
		return false
	}
	return true
}
