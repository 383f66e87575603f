package search

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"ytdl-inline-bot/internal/cache"
)

// Provider — источник результатов поиска
type Provider interface {
	Search(ctx context.Context, query string, limit int64) ([]cache.Record, error)
}

// YouTubeProvider — поиск через YouTube Data API v3
type YouTubeProvider struct {
	service *youtube.Service
}

// NewYouTubeProvider — клиент по API-ключу; opts для тестов (endpoint, http client)
func NewYouTubeProvider(ctx context.Context, apiKey string, opts ...option.ClientOption) (*YouTubeProvider, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service with API key: %w", err)
	}
	return &YouTubeProvider{service: service}, nil
}

// Search — Search.List за id, затем Videos.List за длительностью и просмотрами.
// Порядок выдачи сохраняется.
func (p *YouTubeProvider) Search(ctx context.Context, query string, limit int64) ([]cache.Record, error) {
	resp, err := p.service.Search.List([]string{"id", "snippet"}).
		Q(query).
		Type("video").
		MaxResults(limit).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to search videos: %w", err)
	}

	var ids []string
	for _, item := range resp.Items {
		if item.Id != nil && item.Id.VideoId != "" {
			ids = append(ids, item.Id.VideoId)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	details, err := p.service.Videos.List([]string{"snippet", "statistics", "contentDetails"}).
		Id(strings.Join(ids, ",")).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get video details: %w", err)
	}
	byID := make(map[string]*youtube.Video, len(details.Items))
	for _, v := range details.Items {
		byID[v.Id] = v
	}

	out := make([]cache.Record, 0, len(ids))
	for _, id := range ids {
		v, ok := byID[id]
		if !ok {
			continue
		}
		out = append(out, toRecord(v))
	}
	return out, nil
}

func toRecord(v *youtube.Video) cache.Record {
	r := cache.Record{YtID: v.Id}
	if s := v.Snippet; s != nil {
		r.Title = s.Title
		r.Body = snippet(s.Description, 200)
		r.ChannelName = s.ChannelTitle
		r.ChannelID = s.ChannelId
		if t, err := time.Parse(time.RFC3339, s.PublishedAt); err == nil {
			r.UploadDate = humanize.Time(t)
		}
	}
	if st := v.Statistics; st != nil && st.ViewCount > 0 {
		r.Views = humanize.Comma(int64(st.ViewCount)) + " views"
	}
	if cd := v.ContentDetails; cd != nil {
		r.Duration = ClockDuration(ParseISODuration(cd.Duration))
	}
	return r
}

func snippet(s string, n int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len([]rune(s)) > n {
		s = string([]rune(s)[:n]) + "..."
	}
	return s
}

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseISODuration — "PT1H2M3S" в time.Duration; 0 если формат не распознан
func ParseISODuration(s string) time.Duration {
	m := isoDuration.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, u := range units {
		if m[i+1] == "" {
			continue
		}
		n, _ := strconv.Atoi(m[i+1])
		d += time.Duration(n) * u
	}
	return d
}

// ClockDuration — "1:02:03" / "3:05"; пусто для нуля
func ClockDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	secs := int(d / time.Second)
	h, m, s := secs/3600, secs%3600/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
