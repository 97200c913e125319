package cryptopanic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"marketfeed/internal/httpx"
	"marketfeed/internal/news"
)

// DefaultURL is the public posts endpoint.
const DefaultURL = "https://cryptopanic.com/api/v1/posts/"

const name = "CryptoPanic"

// Source reads the public "hot news" feed. No API key is sent.
type Source struct {
	endpoint string
	client   *httpx.Client
}

func New(endpoint string, client *httpx.Client) *Source {
	if endpoint == "" {
		endpoint = DefaultURL
	}
	return &Source{endpoint: endpoint, client: client}
}

func (s *Source) Name() string { return name }

// URL is the request URL including the public query.
func (s *Source) URL() string {
	q := url.Values{}
	q.Set("public", "true")
	q.Set("kind", "news")
	q.Set("filter", "hot")
	return s.endpoint + "?" + q.Encode()
}

type response struct {
	Results []post `json:"results"`
}

type post struct {
	ID          json.Number `json:"id"`
	Title       string      `json:"title"`
	URL         string      `json:"url"`
	PublishedAt string      `json:"published_at"`
	CreatedAt   string      `json:"created_at"`
	Source      struct {
		Title  string `json:"title"`
		Name   string `json:"name"`
		Domain string `json:"domain"`
		URL    string `json:"url"`
	} `json:"source"`
}

func (s *Source) Fetch(ctx context.Context) ([]news.Item, error) {
	body, err := s.client.Get(ctx, s.URL())
	if err != nil {
		return nil, fmt.Errorf("cryptopanic: %w", err)
	}

	var res response
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("cryptopanic: decoding response: %w", err)
	}

	items := make([]news.Item, 0, len(res.Results))
	for i, p := range res.Results {
		title := strings.TrimSpace(p.Title)
		if title == "" || !news.IsWebURL(p.URL) {
			continue
		}
		id := p.ID.String()
		if id == "" {
			id = fmt.Sprint(i)
		}
		published := p.PublishedAt
		if published == "" {
			published = p.CreatedAt
		}
		items = append(items, news.Item{
			ID:            "cp_" + id,
			Title:         title,
			Summary:       news.GenericSummary(title),
			URL:           p.URL,
			PublishedAt:   news.ParseTime(published),
			Source:        news.Origin{Name: outlet(p), URL: firstNonEmpty(p.Source.URL, p.URL)},
			ImageURL:      news.FallbackImage(i),
			Category:      news.Categorize(title),
			Authoritative: true,
		})
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("cryptopanic: %w", news.ErrNoItems)
	}
	return items, nil
}

func outlet(p post) string {
	return firstNonEmpty(p.Source.Title, p.Source.Name, p.Source.Domain, name)
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
