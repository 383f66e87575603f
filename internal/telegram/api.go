package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ytdl-inline-bot/internal/paging"
	"ytdl-inline-bot/internal/search"
	"ytdl-inline-bot/internal/state"
	"ytdl-inline-bot/internal/transfer"
)

// Updates — источник апдейтов (tgbotapi.BotAPI)
type Updates interface {
	GetUpdatesChan(u tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Searcher — поиск, листание и варианты загрузки
type Searcher interface {
	Parse(ctx context.Context, query string, extract bool) (*search.Result, error)
	Navigate(ctx context.Context, key string, page int, dir paging.Direction) (*search.Result, error)
	ExtractInfoFromKey(ctx context.Context, key string) (*search.Result, error)
	ListView(ctx context.Context, key string) (string, tgbotapi.InlineKeyboardMarkup, error)
}

// URLs — сохранённые ссылки по ключу
type URLs interface {
	GetURL(ctx context.Context, key string) (string, bool, error)
}

// Canceller — отмена передачи по id процесса
type Canceller interface {
	Cancel(id state.ProcessID)
}

// Transfers — запуск передачи целиком
type Transfers interface {
	Run(ctx context.Context, req transfer.Request) (*transfer.Result, error)
}
