package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Kind — тип медиа
type Kind string

const (
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindDocument Kind = "document"
)

// Target — редактируемое сообщение: обычное (chat+message) или inline
type Target struct {
	ChatID          int64
	MessageID       int
	InlineMessageID string
}

// BaseEdit — база для edit*-запросов tgbotapi
func (t Target) BaseEdit(markup *tgbotapi.InlineKeyboardMarkup) tgbotapi.BaseEdit {
	return tgbotapi.BaseEdit{
		ChatID:          t.ChatID,
		MessageID:       t.MessageID,
		InlineMessageID: t.InlineMessageID,
		ReplyMarkup:     markup,
	}
}

// Upload — файл для отправки в лог-канал
type Upload struct {
	ChatID    int64
	Kind      Kind
	FileName  string
	Reader    io.Reader
	Caption   string
	Thumb     string
	Duration  int
	Width     int
	Height    int
	Performer string
	Title     string
}

// Uploaded — ссылка на загруженное медиа
type Uploaded struct {
	FileID  string
	Kind    Kind
	Caption string
}

// Client — то, что ядру нужно от чат-платформы
type Client interface {
	EditText(ctx context.Context, t Target, text string, markup *tgbotapi.InlineKeyboardMarkup) error
	EditPhoto(ctx context.Context, t Target, photoURL, caption string, markup *tgbotapi.InlineKeyboardMarkup) error
	EditMedia(ctx context.Context, t Target, media Uploaded, markup *tgbotapi.InlineKeyboardMarkup) error
	AnswerCallback(ctx context.Context, id, text string, alert bool) error
	AnswerInline(ctx context.Context, cfg tgbotapi.InlineConfig) error
	SendPhoto(ctx context.Context, chatID int64, photoURL, caption string, markup *tgbotapi.InlineKeyboardMarkup, replyTo int) error
	SendText(ctx context.Context, chatID int64, text string, replyTo int) error
	SendMedia(ctx context.Context, u Upload) (*Uploaded, error)
}

// ErrContentUnchanged — правка ничего не меняет (ожидаемая ситуация)
var ErrContentUnchanged = errors.New("message is not modified")

// ErrNoText — у сообщения нет текста (фото), править нужно подпись
var ErrNoText = errors.New("message has no text")

// RateLimitError — flood control, ждать RetryAfter
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}
