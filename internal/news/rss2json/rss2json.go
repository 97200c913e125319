package rss2json

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"marketfeed/internal/httpx"
	"marketfeed/internal/news"
)

// Defaults for the public bridge.
const (
	DefaultEndpoint = "https://api.rss2json.com/v1/api.json"
	DefaultAPIKey   = "public"
	DefaultCount    = 10
)

// Config points at an rss2json bridge.
type Config struct {
	Endpoint string
	APIKey   string
	Count    int
}

// Feed is one RSS feed to read through the bridge.
type Feed struct {
	Name string
	URL  string
}

// Source reads a single RSS feed converted to JSON by rss2json.
type Source struct {
	cfg    Config
	feed   Feed
	client *httpx.Client
}

func New(cfg Config, feed Feed, client *httpx.Client) *Source {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.APIKey == "" {
		cfg.APIKey = DefaultAPIKey
	}
	if cfg.Count <= 0 {
		cfg.Count = DefaultCount
	}
	return &Source{cfg: cfg, feed: feed, client: client}
}

func (s *Source) Name() string { return s.feed.Name }

// URL is the bridge request for this feed.
func (s *Source) URL() string {
	q := url.Values{}
	q.Set("rss_url", s.feed.URL)
	q.Set("api_key", s.cfg.APIKey)
	q.Set("count", strconv.Itoa(s.cfg.Count))
	return s.cfg.Endpoint + "?" + q.Encode()
}

type response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Feed    struct {
		URL string `json:"url"`
	} `json:"feed"`
	Items []entry `json:"items"`
}

type entry struct {
	Title       string `json:"title"`
	PubDate     string `json:"pubDate"`
	Link        string `json:"link"`
	Thumbnail   string `json:"thumbnail"`
	Description string `json:"description"`
	Content     string `json:"content"`
	// rss2json sends {} or [] when a feed has no enclosure.
	Enclosure json.RawMessage `json:"enclosure"`
}

func (s *Source) Fetch(ctx context.Context) ([]news.Item, error) {
	body, err := s.client.Get(ctx, s.URL())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.feed.Name, err)
	}

	var res response
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", s.feed.Name, err)
	}
	if res.Status != "ok" {
		return nil, fmt.Errorf("%s: rss2json status %q: %s", s.feed.Name, res.Status, res.Message)
	}

	sourceURL := res.Feed.URL
	if sourceURL == "" {
		sourceURL = s.feed.URL
	}
	prefix := "rss_" + strings.ToLower(s.feed.Name) + "_"

	items := make([]news.Item, 0, len(res.Items))
	for i, e := range res.Items {
		title := strings.TrimSpace(e.Title)
		if title == "" || !news.IsWebURL(e.Link) {
			continue
		}
		html := e.Description
		if strings.TrimSpace(html) == "" {
			html = e.Content
		}
		summary := news.CleanSummary(html)
		if summary == "" {
			summary = news.GenericSummary(title)
		}
		items = append(items, news.Item{
			ID:            prefix + strconv.Itoa(i),
			Title:         title,
			Summary:       summary,
			URL:           e.Link,
			PublishedAt:   news.ParseTime(e.PubDate),
			Source:        news.Origin{Name: s.feed.Name, URL: sourceURL},
			ImageURL:      image(e, html, i),
			Category:      news.Categorize(title),
			Authoritative: true,
		})
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s: %w", s.feed.Name, news.ErrNoItems)
	}
	return items, nil
}

// image prefers the feed thumbnail, then the enclosure, then the first
// inline image, then a stock picture.
func image(e entry, html string, i int) string {
	if news.IsWebURL(e.Thumbnail) {
		return e.Thumbnail
	}
	if link := gjson.GetBytes(e.Enclosure, "link").String(); news.IsWebURL(link) {
		return link
	}
	if src := news.FirstImage(html); src != "" {
		return src
	}
	return news.FallbackImage(i)
}
