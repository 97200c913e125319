package cryptopanic_test

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"marketfeed/internal/httpx"
	"marketfeed/internal/httpx/httpxmock"
	"marketfeed/internal/news"
	"marketfeed/internal/news/cryptopanic"
)

const payload = `{"count":3,"results":[
  {"id":101,"title":"SEC delays decision on ETF","url":"https://cryptopanic.com/news/101/","published_at":"2024-05-01T10:00:00Z",
   "source":{"title":"The Block","domain":"theblock.co","url":"https://www.theblock.co"}},
  {"id":102,"title":"No link here","url":"","published_at":"2024-05-01T09:00:00Z","source":{"title":"X"}},
  {"id":103,"title":"ETH staking climbs","url":"https://cryptopanic.com/news/103/","created_at":"2024-05-01T08:00:00Z",
   "source":{"domain":"decrypt.co"}}
]}`

func reply(status int, body string) func(*http.Request) (*http.Response, error) {
	return func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}, nil
	}
}

func TestFetch(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock HTTP client
	ctrl := gomock.NewController(t)
	httpClient := httpxmock.NewMockHTTPClient(ctrl)

	// Assert: the public hot-news query is sent without credentials
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodGet, req.Method)
			require.Equal(t, "/api/v1/posts/", req.URL.Path)
			require.Equal(t, "true", req.URL.Query().Get("public"))
			require.Equal(t, "news", req.URL.Query().Get("kind"))
			require.Equal(t, "hot", req.URL.Query().Get("filter"))
			require.Empty(t, req.URL.Query().Get("auth_token"))
			require.Equal(t, "application/json", req.Header.Get("Accept"))
			return reply(http.StatusOK, payload)(req)
		}).
		Times(1)

	src := cryptopanic.New("", &httpx.Client{HTTP: httpClient, Headers: map[string]string{"Accept": "application/json"}})

	// Act:
	items, err := src.Fetch(t.Context())

	// Assert:
	require.NoError(t, err)
	require.Equal(t, "CryptoPanic", src.Name())
	require.Len(t, items, 2)

	first := items[0]
	require.Equal(t, "cp_101", first.ID)
	require.Equal(t, news.CategoryRegulation, first.Category)
	require.Equal(t, "The Block", first.Source.Name)
	require.Equal(t, "https://www.theblock.co", first.Source.URL)
	require.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), first.PublishedAt.UTC())
	require.Equal(t, news.FallbackImage(0), first.ImageURL)
	require.Equal(t, news.GenericSummary(first.Title), first.Summary)
	require.True(t, first.Authoritative)

	second := items[1]
	require.Equal(t, "cp_103", second.ID)
	require.Equal(t, news.CategoryEthereum, second.Category)
	require.Equal(t, "decrypt.co", second.Source.Name)
	require.Equal(t, "https://cryptopanic.com/news/103/", second.Source.URL)
	require.Equal(t, 8, second.PublishedAt.Hour())
	require.Equal(t, news.FallbackImage(2), second.ImageURL)
}

func TestFetch_NoResults(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := httpxmock.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(reply(http.StatusOK, `{"results":[]}`)).Times(1)

	_, err := cryptopanic.New("", &httpx.Client{HTTP: httpClient}).Fetch(t.Context())
	require.ErrorIs(t, err, news.ErrNoItems)
}

func TestFetch_UnexpectedStatus(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := httpxmock.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(reply(http.StatusForbidden, `{"status":"Incomplete"}`)).Times(1)

	_, err := cryptopanic.New("", &httpx.Client{HTTP: httpClient}).Fetch(t.Context())

	var se *httpx.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusForbidden, se.Code)
}

func TestFetch_PerformingRequest(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := httpxmock.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).Return(nil, errors.New("connection refused")).Times(1)

	_, err := cryptopanic.New("", &httpx.Client{HTTP: httpClient}).Fetch(t.Context())
	require.ErrorContains(t, err, "performing request")
}

func TestFetch_DecodingResponse(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := httpxmock.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(reply(http.StatusOK, `<html>`)).Times(1)

	_, err := cryptopanic.New("", &httpx.Client{HTTP: httpClient}).Fetch(t.Context())
	require.ErrorContains(t, err, "decoding response")
}

func TestURL(t *testing.T) {
	t.Parallel()

	src := cryptopanic.New("http://mirror.local/posts/", nil)
	require.Equal(t, "http://mirror.local/posts/?filter=hot&kind=news&public=true", src.URL())
}
