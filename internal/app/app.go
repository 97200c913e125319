package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"marketfeed/internal/config"
	"marketfeed/internal/gateway"
	"marketfeed/internal/httpx"
	"marketfeed/internal/news"
	"marketfeed/internal/news/cryptopanic"
	"marketfeed/internal/news/rss2json"
)

// App holds the long-lived services shared by the server and the CLI.
type App struct {
	Config     config.Config
	Log        *logrus.Logger
	Gateway    *gateway.Gateway
	Aggregator *news.Aggregator
	News       *news.Cache
}

// New wires the market gateway and the news pipeline from cfg.
func New(cfg config.Config, log *logrus.Logger) (*App, error) {
	// Callers bound each request with their own timeouts.
	client := httpx.New(0)

	gw, err := gateway.FromConfig(cfg, client,
		gateway.WithLogger(log.WithField("component", "gateway")),
	)
	if err != nil {
		return nil, err
	}

	newsLog := log.WithField("component", "news")
	agg := news.NewAggregator(NewsSources(cfg.News, client),
		news.WithTimeout(cfg.News.Timeout()),
		news.WithLimits(cfg.News.MaxItems, cfg.News.DedupPrefix),
		news.WithLogger(newsLog),
	)
	cache := news.NewCache(agg, cfg.News.CacheTTL(), news.WithCacheLogger(newsLog))

	return &App{
		Config:     cfg,
		Log:        log,
		Gateway:    gw,
		Aggregator: agg,
		News:       cache,
	}, nil
}

// NewsSources builds the enabled news sources in priority order:
// CryptoPanic first, then the RSS feeds in config order.
func NewsSources(cfg config.News, client *httpx.Client) []news.Source {
	var sources []news.Source
	if cfg.CryptoPanic.Enabled {
		sources = append(sources, news.Limit(cryptopanic.New(cfg.CryptoPanic.URL, client), cfg.RequestsPerMinute))
	}
	if cfg.RSS2JSON.Enabled {
		bridge := rss2json.Config{
			Endpoint: cfg.RSS2JSON.URL,
			APIKey:   cfg.RSS2JSON.APIKey,
			Count:    cfg.RSS2JSON.Count,
		}
		for _, f := range cfg.Feeds {
			src := rss2json.New(bridge, rss2json.Feed{Name: f.Name, URL: f.URL}, client)
			sources = append(sources, news.Limit(src, cfg.RequestsPerMinute))
		}
	}
	return sources
}

// Schedule registers the background refresh jobs on a new cron. Empty
// schedules are skipped. The caller starts and stops the returned cron.
func (a *App) Schedule(ctx context.Context) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(a.Log))))

	if spec := a.Config.News.RefreshSchedule; spec != "" {
		if _, err := c.AddFunc(spec, func() { a.RefreshNews(ctx) }); err != nil {
			return nil, fmt.Errorf("news refresh schedule %q: %w", spec, err)
		}
	}
	if spec := a.Config.Server.MarketRefresh; spec != "" {
		if _, err := c.AddFunc(spec, func() { a.RefreshMarket(ctx) }); err != nil {
			return nil, fmt.Errorf("market refresh schedule %q: %w", spec, err)
		}
	}
	return c, nil
}

// RefreshNews forces a news cache refresh.
func (a *App) RefreshNews(ctx context.Context) {
	items := a.News.Get(ctx, true)
	a.Log.WithField("items", len(items)).Debug("news refreshed")
}

// RefreshMarket fetches a snapshot so source health stays current between
// client requests.
func (a *App) RefreshMarket(ctx context.Context) {
	snap, err := a.Gateway.FetchMarketSnapshot(ctx, "usd")
	if err != nil {
		a.Log.WithError(err).Warn("market refresh failed")
		return
	}
	a.Log.WithField("source", snap.Source).Debug("market refreshed")
}
