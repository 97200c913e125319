package news_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketfeed/internal/news"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func item(id, title string, age time.Duration) news.Item {
	return news.Item{ID: id, Title: title, PublishedAt: base.Add(-age), Authoritative: true}
}

func TestDedupKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "hello", news.DedupKey("  HeLLo ", 50))
	require.Equal(t, "abc", news.DedupKey("abcdef", 3))
	require.Equal(t, "ünï", news.DedupKey("ÜNÏcode", 3))
}

func TestMerge_DedupKeepsEarlierSource(t *testing.T) {
	t.Parallel()

	// Arrange:
	shared := strings.Repeat("x", 50)
	batches := [][]news.Item{
		{item("cp_1", shared+" first ending", 2*time.Hour)},
		{item("rss_a_0", strings.ToUpper(shared)+" other ending", time.Hour)},
	}

	// Act:
	out := news.Merge(batches, 50, 16)

	// Assert:
	require.Len(t, out, 1)
	require.Equal(t, "cp_1", out[0].ID)
}

func TestMerge_SortsNewestFirstAndTruncates(t *testing.T) {
	t.Parallel()

	// Arrange:
	var a, b []news.Item
	for i := range 10 {
		a = append(a, item(fmt.Sprintf("a%d", i), fmt.Sprintf("alpha story %d", i), time.Duration(2*i)*time.Minute))
		b = append(b, item(fmt.Sprintf("b%d", i), fmt.Sprintf("beta story %d", i), time.Duration(2*i+1)*time.Minute))
	}

	// Act:
	out := news.Merge([][]news.Item{a, b}, 50, 16)

	// Assert:
	require.Len(t, out, 16)
	require.Equal(t, "a0", out[0].ID)
	require.Equal(t, "b0", out[1].ID)
	for i := 1; i < len(out); i++ {
		require.False(t, out[i].PublishedAt.After(out[i-1].PublishedAt))
	}
}

func TestMerge_EqualTimestampsKeepPriority(t *testing.T) {
	t.Parallel()

	out := news.Merge([][]news.Item{
		{item("first", "one", 0)},
		{item("second", "two", 0)},
	}, 50, 16)

	require.Equal(t, []string{"first", "second"}, []string{out[0].ID, out[1].ID})
}

func TestMerge_Empty(t *testing.T) {
	t.Parallel()

	require.Empty(t, news.Merge([][]news.Item{nil, nil}, 0, 0))
}
