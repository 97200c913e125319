package gateway

import (
	"fmt"

	"marketfeed/internal/config"
	"marketfeed/internal/provider"
	"marketfeed/internal/provider/binance"
	"marketfeed/internal/provider/coincap"
	"marketfeed/internal/provider/coingecko"
	"marketfeed/internal/provider/cryptocompare"
	"marketfeed/internal/provider/health"
)

// Registry builds the source registry from config, in config order.
// Each source inherits its provider's defaults for anything left unset.
func Registry(cfg config.Gateway) (*provider.Registry, error) {
	entries := make([]provider.Entry, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		if s.Disabled {
			continue
		}
		e, err := entry(s, cfg)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return provider.NewRegistry(entries...)
}

func entry(s config.Source, cfg config.Gateway) (provider.Entry, error) {
	var e provider.Entry
	switch s.Provider {
	case "coingecko":
		e = provider.Entry{Descriptor: coingecko.Descriptor(), Normalizer: coingecko.New()}
	case "coincap":
		e = provider.Entry{Descriptor: coincap.Descriptor(), Normalizer: coincap.New()}
	case "cryptocompare":
		e = provider.Entry{Descriptor: cryptocompare.Descriptor(), Normalizer: cryptocompare.New()}
	case "binance":
		n := binance.New()
		if cfg.BinanceVolumeMultiplier > 0 {
			n.VolumeMultiplier = cfg.BinanceVolumeMultiplier
		}
		e = provider.Entry{Descriptor: binance.Descriptor(), Normalizer: n}
	default:
		return e, fmt.Errorf("source %q: unknown provider %q", s.ID, s.Provider)
	}
	if s.ID != "" {
		e.Descriptor.ID = s.ID
	}
	if s.Name != "" {
		e.Descriptor.Name = s.Name
	}
	if s.BaseURL != "" {
		e.Descriptor.BaseURL = s.BaseURL
	}
	if s.RateLimitPerMinute > 0 {
		e.Descriptor.RateLimit = s.RateLimitPerMinute
	}
	return e, nil
}

// TrackerConfig maps gateway config onto breaker settings.
func TrackerConfig(cfg config.Gateway) health.Config {
	return health.Config{
		FailureThreshold: cfg.FailureThreshold,
		Cooldown:         cfg.Cooldown(),
		Window:           cfg.Window(),
		Headroom:         cfg.Headroom,
	}
}

// FromConfig wires a gateway from config. The tracker shares the
// gateway's clock when one is passed via WithClock.
func FromConfig(cfg config.Config, client Fetcher, opts ...Option) (*Gateway, error) {
	reg, err := Registry(cfg.Gateway)
	if err != nil {
		return nil, fmt.Errorf("gateway registry: %w", err)
	}
	opts = append([]Option{WithTimeout(cfg.Gateway.Timeout()), WithAssets(cfg.Assets), WithCurrencies(cfg.Gateway.Currencies)}, opts...)
	g := New(reg, nil, client, opts...)
	g.tracker = health.New(TrackerConfig(cfg.Gateway), reg.Descriptors(), health.WithClock(g.now))
	return g, nil
}
