package search

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

var thumbQualities = []string{"maxresdefault", "hqdefault", "sddefault", "mqdefault", "default"}

// Thumbs — лучшая доступная обложка ролика
type Thumbs struct {
	BaseURL  string
	Fallback string
	HTTP     *http.Client
}

func NewThumbs(fallback string) *Thumbs {
	return &Thumbs{
		BaseURL:  "https://i.ytimg.com/vi",
		Fallback: fallback,
		HTTP:     &http.Client{Timeout: 5 * time.Second},
	}
}

// Best — первая отвечающая 200 обложка, иначе Fallback
func (t *Thumbs) Best(ctx context.Context, ytID string) string {
	for _, q := range thumbQualities {
		link := fmt.Sprintf("%s/%s/%s.jpg", t.BaseURL, ytID, q)
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
		if err != nil {
			break
		}
		resp, err := t.HTTP.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return link
		}
	}
	return t.Fallback
}
