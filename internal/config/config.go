package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

type Server struct {
	Port              string `json:"port" yaml:"port" env:"PORT"`
	RequestTimeoutSec int    `json:"request_timeout_sec" yaml:"request_timeout_sec" env:"REQUEST_TIMEOUT_SEC"`
	// MarketRefresh is a cron spec for warming the market snapshot; empty disables it.
	MarketRefresh string `json:"market_refresh" yaml:"market_refresh" env:"MARKET_REFRESH"`
}

type Log struct {
	Level  string `json:"level" yaml:"level" env:"LOG_LEVEL"`
	Format string `json:"format" yaml:"format" env:"LOG_FORMAT"`
}

// Source overrides one market source. Sources are tried in list order.
type Source struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	// Provider selects the wire format: coingecko, coincap, cryptocompare or binance.
	Provider           string `json:"provider" yaml:"provider"`
	BaseURL            string `json:"base_url" yaml:"base_url"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	Disabled           bool   `json:"disabled" yaml:"disabled"`
}

type Gateway struct {
	TimeoutSec       int     `json:"timeout_sec" yaml:"timeout_sec" env:"GATEWAY_TIMEOUT_SEC"`
	FailureThreshold int     `json:"failure_threshold" yaml:"failure_threshold" env:"GATEWAY_FAILURE_THRESHOLD"`
	CooldownSec      int     `json:"cooldown_sec" yaml:"cooldown_sec" env:"GATEWAY_COOLDOWN_SEC"`
	WindowSec        int     `json:"window_sec" yaml:"window_sec" env:"GATEWAY_WINDOW_SEC"`
	Headroom         float64 `json:"headroom" yaml:"headroom" env:"GATEWAY_HEADROOM"`
	// BinanceVolumeMultiplier tunes the Binance market cap estimate.
	BinanceVolumeMultiplier float64 `json:"binance_volume_multiplier" yaml:"binance_volume_multiplier" env:"GATEWAY_BINANCE_VOLUME_MULTIPLIER"`
	// Currencies lists the accepted quote currencies.
	Currencies []string `json:"currencies" yaml:"currencies"`
	Sources    []Source `json:"sources" yaml:"sources"`
}

type CryptoPanic struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"CRYPTOPANIC_ENABLED"`
	URL     string `json:"url" yaml:"url" env:"CRYPTOPANIC_URL"`
}

type RSS2JSON struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"RSS2JSON_ENABLED"`
	URL     string `json:"url" yaml:"url" env:"RSS2JSON_URL"`
	APIKey  string `json:"api_key" yaml:"api_key" env:"RSS2JSON_API_KEY"`
	Count   int    `json:"count" yaml:"count" env:"RSS2JSON_COUNT"`
}

type Feed struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

type News struct {
	CacheTTLSec       int    `json:"cache_ttl_sec" yaml:"cache_ttl_sec" env:"NEWS_CACHE_TTL_SEC"`
	MaxItems          int    `json:"max_items" yaml:"max_items" env:"NEWS_MAX_ITEMS"`
	DedupPrefix       int    `json:"dedup_prefix" yaml:"dedup_prefix" env:"NEWS_DEDUP_PREFIX"`
	TimeoutSec        int    `json:"timeout_sec" yaml:"timeout_sec" env:"NEWS_TIMEOUT_SEC"`
	RequestsPerMinute int    `json:"requests_per_minute" yaml:"requests_per_minute" env:"NEWS_RPM"`
	RefreshSchedule   string `json:"refresh_schedule" yaml:"refresh_schedule" env:"NEWS_REFRESH_SCHEDULE"`

	CryptoPanic CryptoPanic `json:"cryptopanic" yaml:"cryptopanic"`
	RSS2JSON    RSS2JSON    `json:"rss2json" yaml:"rss2json"`
	Feeds       []Feed      `json:"feeds" yaml:"feeds"`
}

type Config struct {
	Server  Server  `json:"server" yaml:"server"`
	Log     Log     `json:"log" yaml:"log"`
	Gateway Gateway `json:"gateway" yaml:"gateway"`
	News    News    `json:"news" yaml:"news"`
	// Assets maps slug ids to ticker symbols for price lookups.
	Assets map[string]string `json:"assets" yaml:"assets"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 30, MarketRefresh: "@every 60s"},
		Log:    Log{Level: "info", Format: "text"},
		Gateway: Gateway{
			TimeoutSec:              10,
			FailureThreshold:        3,
			CooldownSec:             120,
			WindowSec:               60,
			Headroom:                0.8,
			BinanceVolumeMultiplier: 50,
			Currencies:              []string{"usd", "eur", "brl"},
			Sources: []Source{
				{ID: "primary", Provider: "coingecko", Name: "CoinGecko", BaseURL: "https://api.coingecko.com/api/v3", RateLimitPerMinute: 50},
				{ID: "secondary", Provider: "coincap", Name: "CoinCap", BaseURL: "https://api.coincap.io/v2", RateLimitPerMinute: 200},
				{ID: "tertiary", Provider: "cryptocompare", Name: "CryptoCompare", BaseURL: "https://min-api.cryptocompare.com/data", RateLimitPerMinute: 100},
				{ID: "quaternary", Provider: "binance", Name: "Binance", BaseURL: "https://api.binance.com/api/v3", RateLimitPerMinute: 1200},
			},
		},
		News: News{
			CacheTTLSec:       300,
			MaxItems:          16,
			DedupPrefix:       50,
			TimeoutSec:        10,
			RequestsPerMinute: 30,
			RefreshSchedule:   "@every 10m",
			CryptoPanic: CryptoPanic{
				Enabled: true,
				URL:     "https://cryptopanic.com/api/v1/posts/",
			},
			RSS2JSON: RSS2JSON{
				Enabled: true,
				URL:     "https://api.rss2json.com/v1/api.json",
				APIKey:  "public",
				Count:   10,
			},
			Feeds: []Feed{
				{Name: "CoinDesk", URL: "https://www.coindesk.com/arc/outboundfeeds/rss/"},
				{Name: "CoinTelegraph", URL: "https://cointelegraph.com/rss"},
				{Name: "Decrypt", URL: "https://decrypt.co/feed"},
			},
		},
		Assets: map[string]string{
			"bitcoin":       "BTC",
			"ethereum":      "ETH",
			"tether":        "USDT",
			"binancecoin":   "BNB",
			"solana":        "SOL",
			"ripple":        "XRP",
			"usd-coin":      "USDC",
			"cardano":       "ADA",
			"dogecoin":      "DOGE",
			"tron":          "TRX",
			"polkadot":      "DOT",
			"chainlink":     "LINK",
			"litecoin":      "LTC",
			"avalanche-2":   "AVAX",
			"shiba-inu":     "SHIB",
			"matic-network": "MATIC",
		},
	}
}

// Load reads config from path (JSON, or YAML for .yaml/.yml). If path is
// empty it looks for config.json or config.yaml in the working directory,
// falling back to defaults. Environment variables override file values.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		for _, candidate := range []string{"config.json", "config.yaml", "config.yml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			switch strings.ToLower(filepath.Ext(path)) {
			case ".yaml", ".yml":
				err = yaml.Unmarshal(b, &cfg)
			default:
				err = json.Unmarshal(b, &cfg)
			}
			if err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return cfg, fmt.Errorf("env config: %w", err)
	}
	return cfg, nil
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if p, err := strconv.Atoi(c.Server.Port); err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("server.port %q is not a valid port", c.Server.Port)
	}
	if c.Gateway.TimeoutSec <= 0 {
		return errors.New("gateway.timeout_sec must be positive")
	}
	if c.Gateway.Headroom <= 0 || c.Gateway.Headroom > 1 {
		return errors.New("gateway.headroom must be in (0, 1]")
	}
	for i, code := range c.Gateway.Currencies {
		if strings.TrimSpace(code) == "" {
			return fmt.Errorf("gateway.currencies[%d]: empty currency", i)
		}
	}
	seen := map[string]bool{}
	enabled := 0
	for i, s := range c.Gateway.Sources {
		if s.ID == "" {
			return fmt.Errorf("gateway.sources[%d]: missing id", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("gateway.sources[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
		if s.Disabled {
			continue
		}
		enabled++
		if s.Provider == "" {
			return fmt.Errorf("gateway.sources[%d]: missing provider", i)
		}
		if s.RateLimitPerMinute <= 0 {
			return fmt.Errorf("gateway.sources[%d]: rate_limit_per_minute must be positive", i)
		}
	}
	if enabled == 0 {
		return errors.New("gateway: no enabled sources")
	}
	if c.News.MaxItems <= 0 {
		return errors.New("news.max_items must be positive")
	}
	if c.News.DedupPrefix <= 0 {
		return errors.New("news.dedup_prefix must be positive")
	}
	for i, f := range c.News.Feeds {
		if f.Name == "" || f.URL == "" {
			return fmt.Errorf("news.feeds[%d]: name and url are required", i)
		}
	}
	return nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (g Gateway) Timeout() time.Duration  { return seconds(g.TimeoutSec) }
func (g Gateway) Cooldown() time.Duration { return seconds(g.CooldownSec) }
func (g Gateway) Window() time.Duration   { return seconds(g.WindowSec) }

func (n News) CacheTTL() time.Duration { return seconds(n.CacheTTLSec) }
func (n News) Timeout() time.Duration  { return seconds(n.TimeoutSec) }
