package paging

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytdl-inline-bot/internal/cache"
	"ytdl-inline-bot/internal/logger"
)

func seeded(t *testing.T, key string, n int) (*cache.Cache, []cache.Record) {
	t.Helper()
	c, err := cache.Open(t.TempDir(), false, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	recs := make([]cache.Record, n)
	for i := range recs {
		recs[i] = cache.Record{YtID: fmt.Sprintf("id%09d", i), Title: fmt.Sprintf("t%d", i)}
	}
	require.NoError(t, c.SetResults(context.Background(), key, recs))
	return c, recs
}

func TestPager_EndToEnd(t *testing.T) {
	t.Parallel()
	c, recs := seeded(t, "abc12", 15)
	p := NewPager(c)
	ctx := context.Background()

	first, err := p.Page(ctx, "abc12", 0)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 15, first.Total)
	assert.Equal(t, recs[0], first.Record)

	second, err := p.Next(ctx, "abc12", 0, Forward)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, 15, second.Total)
	assert.Equal(t, recs[1], second.Record)
	assert.Equal(t, 1, second.Index)

	end, err := p.Next(ctx, "abc12", 14, Forward)
	require.NoError(t, err)
	assert.Nil(t, end)

	back, err := p.Next(ctx, "abc12", 0, Backward)
	require.NoError(t, err)
	assert.Nil(t, back)

	prev, err := p.Next(ctx, "abc12", 5, Backward)
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, recs[4], prev.Record)
}

func TestMarkup(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		index   int
		navLen  int
		counter string
	}{
		{"first page drops back", 0, 1, "1 / 15"},
		{"middle page", 4, 2, "5 / 15"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			kb := Markup("abc12", "dQw4w9WgXcQ", 15, tc.index)
			require.Len(t, kb.InlineKeyboard, 2)
			nav := kb.InlineKeyboard[0]
			require.Len(t, nav, tc.navLen)
			counter := nav[len(nav)-1]
			assert.Equal(t, tc.counter, counter.Text)
			assert.Equal(t, fmt.Sprintf("yt_next|abc12|%d", tc.index+1), *counter.CallbackData)
			if tc.navLen == 2 {
				assert.Equal(t, fmt.Sprintf("yt_back|abc12|%d", tc.index+1), *nav[0].CallbackData)
			}
			assert.Equal(t, "yt_listall|abc12", *kb.InlineKeyboard[1][0].CallbackData)
			assert.Equal(t, "yt_extract_info|dQw4w9WgXcQ", *kb.InlineKeyboard[1][1].CallbackData)
		})
	}
}

func TestCaption(t *testing.T) {
	t.Parallel()
	got := Caption(cache.Record{YtID: "abc", Title: "A & B", Duration: "3:00", ChannelName: "<chan>", ChannelID: "UC1"})
	assert.Contains(t, got, VideoURL+"abc")
	assert.Contains(t, got, "A &amp; B")
	assert.Contains(t, got, "<b>❯  Views</b> : N/A")
	assert.Contains(t, got, "&lt;chan&gt;")
	assert.False(t, strings.Contains(got, "<pre>"))

	line := ListLine(3, cache.Record{YtID: "x", Thumb: "https://t/x.jpg"})
	assert.Contains(t, line, "3. N/A")
	assert.Contains(t, line, `<img src="https://t/x.jpg">`)
}
