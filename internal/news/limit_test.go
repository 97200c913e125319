package news_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketfeed/internal/news"
)

func TestLimit_Passthrough(t *testing.T) {
	t.Parallel()

	src := &fakeSource{name: "a"}
	require.Same(t, news.Source(src), news.Limit(src, 0))
}

func TestLimit_WaitsForToken(t *testing.T) {
	t.Parallel()

	// Arrange:
	src := &fakeSource{name: "feed", items: []news.Item{item("a", "a", 0)}}
	limited := news.Limit(src, 1)

	// Act:
	first, err := limited.Fetch(t.Context())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	_, err = limited.Fetch(ctx)

	// Assert:
	require.Len(t, first, 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "feed rate limit")
	require.EqualValues(t, 1, src.calls.Load())
	require.Equal(t, "feed", limited.Name())
}
