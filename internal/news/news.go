package news

import (
	"context"
	"errors"
	"hash/fnv"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoItems is returned by a source whose payload held nothing usable.
var ErrNoItems = errors.New("no usable news items")

// Origin names the outlet an item was published by.
type Origin struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Item is one news article in canonical form.
type Item struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	Source      Origin    `json:"source"`
	ImageURL    string    `json:"image"`
	Category    string    `json:"category"`
	// Authoritative is false for placeholder items.
	Authoritative bool `json:"is_real"`
}

// Source fetches items from one upstream.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Item, error)
}

// Category names.
const (
	CategoryBitcoin    = "Bitcoin"
	CategoryEthereum   = "Ethereum"
	CategoryDeFi       = "DeFi"
	CategoryNFT        = "NFT"
	CategoryRegulation = "Regulation"
	CategoryStablecoin = "Stablecoin"
	CategoryGeneral    = "General"
)

// Short tickers only match as whole words so "sec" does not hit "second".
var categories = []struct {
	name string
	re   *regexp.Regexp
}{
	{CategoryBitcoin, regexp.MustCompile(`bitcoin|\bbtc\b`)},
	{CategoryEthereum, regexp.MustCompile(`ethereum|\beth\b`)},
	{CategoryDeFi, regexp.MustCompile(`defi|decentralized`)},
	{CategoryNFT, regexp.MustCompile(`\bnfts?\b|non-fungible`)},
	{CategoryRegulation, regexp.MustCompile(`regulat|legal|\bsec\b`)},
	{CategoryStablecoin, regexp.MustCompile(`stablecoin|\busdt\b|\busdc\b`)},
}

// Categorize assigns the first matching category by title keywords.
func Categorize(title string) string {
	t := strings.ToLower(title)
	for _, c := range categories {
		if c.re.MatchString(t) {
			return c.name
		}
	}
	return CategoryGeneral
}

// SummaryLimit is the longest summary kept from a feed description.
const SummaryLimit = 150

// CleanSummary strips markup from an HTML fragment, collapses whitespace
// and cuts the text to SummaryLimit runes.
func CleanSummary(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	text := strings.Join(strings.Fields(doc.Text()), " ")
	if utf8.RuneCountInString(text) <= SummaryLimit {
		return text
	}
	return strings.TrimSpace(string([]rune(text)[:SummaryLimit])) + "..."
}

// FirstImage returns the src of the first absolute <img> in an HTML fragment.
func FirstImage(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	var src string
	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := s.Attr("src"); ok && IsWebURL(v) {
			src = v
			return false
		}
		return true
	})
	return src
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseTime reads the timestamp formats news APIs use. Zone-less values
// are UTC. Unparseable input yields the zero time, which sorts last.
func ParseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}

// IsWebURL reports whether u is an absolute http(s) link.
func IsWebURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

var genericSummaries = []string{
	"A detailed look at the latest moves in the crypto market and what they mean.",
	"An important development that could have a significant impact on the blockchain sector.",
	"Relevant news on technology innovation and cryptocurrency adoption.",
	"An important update on regulation and government policy.",
	"A significant market move that deserves investors' attention.",
}

// GenericSummary picks a stock summary for items without one. The same
// title always gets the same summary.
func GenericSummary(title string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(title))
	return genericSummaries[h.Sum32()%uint32(len(genericSummaries))]
}

var fallbackImages = []string{
	"https://images.unsplash.com/photo-1518546305927-5a555bb7020d?w=400&h=250&fit=crop&auto=format&q=80",
	"https://images.unsplash.com/photo-1621761191319-c6fb62004040?w=400&h=250&fit=crop&auto=format&q=80",
	"https://images.unsplash.com/photo-1640340434855-6084b1f4901c?w=400&h=250&fit=crop&auto=format&q=80",
	"https://images.unsplash.com/photo-1639762681485-074b7f938ba0?w=400&h=250&fit=crop&auto=format&q=80",
	"https://images.unsplash.com/photo-1642104704074-907c0698cbd9?w=400&h=250&fit=crop&auto=format&q=80",
	"https://images.unsplash.com/photo-1644143379190-08a5f3a8d8e9?w=400&h=250&fit=crop&auto=format&q=80",
	"https://images.unsplash.com/photo-1605792657660-596af9009e82?w=400&h=250&fit=crop&auto=format&q=80",
	"https://images.unsplash.com/photo-1634704784915-aacf363b021f?w=400&h=250&fit=crop&auto=format&q=80",
}

// FallbackImage returns a stock image for position i.
func FallbackImage(i int) string {
	if i < 0 {
		i = -i
	}
	return fallbackImages[i%len(fallbackImages)]
}

// Placeholders is the fixed set served when no source produced anything.
// Timestamps are relative to now so the set always looks recent.
func Placeholders(now time.Time) []Item {
	return []Item{
		{
			ID:          "static_1",
			Title:       "Bitcoin holds above $40,000",
			Summary:     "Technical analysis shows bitcoin consolidating at a key level, with a possible move towards $45,000.",
			URL:         "https://www.coindesk.com/markets/2024/01/15/bitcoin-price-analysis/",
			PublishedAt: now.Add(-1 * time.Hour),
			Source:      Origin{Name: "CoinDesk", URL: "https://coindesk.com"},
			ImageURL:    fallbackImages[0],
			Category:    CategoryBitcoin,
		},
		{
			ID:          "static_2",
			Title:       "Ethereum network upgrade",
			Summary:     "Developers announce significant scalability improvements and lower gas fees.",
			URL:         "https://cointelegraph.com/news/ethereum-network-upgrade-2024",
			PublishedAt: now.Add(-2 * time.Hour),
			Source:      Origin{Name: "CoinTelegraph", URL: "https://cointelegraph.com"},
			ImageURL:    fallbackImages[1],
			Category:    CategoryEthereum,
		},
	}
}
