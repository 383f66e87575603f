package main

import (
	"context"
	"errors"

	"ytdl-inline-bot/internal/cache"
)

// noSearch — заглушка поиска без API-ключа; ссылки работают и без него
type noSearch struct{}

func (noSearch) Search(context.Context, string, int64) ([]cache.Record, error) {
	return nil, errors.New("youtube search is not configured")
}
