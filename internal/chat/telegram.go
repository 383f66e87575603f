package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender — минимальный интерфейс Telegram API для тестирования
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// TelegramClient — Client поверх tgbotapi
type TelegramClient struct {
	api Sender
}

func NewTelegramClient(api Sender) *TelegramClient { return &TelegramClient{api: api} }

func (c *TelegramClient) EditText(ctx context.Context, t Target, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	cfg := tgbotapi.EditMessageTextConfig{
		BaseEdit:              t.BaseEdit(markup),
		Text:                  text,
		ParseMode:             tgbotapi.ModeHTML,
		DisableWebPagePreview: true,
	}
	err := c.request(ctx, cfg)
	if !errors.Is(err, ErrNoText) {
		return err
	}
	// сообщение с картинкой: правим подпись
	caption := tgbotapi.EditMessageCaptionConfig{
		BaseEdit:  t.BaseEdit(markup),
		Caption:   text,
		ParseMode: tgbotapi.ModeHTML,
	}
	return c.request(ctx, caption)
}

func (c *TelegramClient) EditPhoto(ctx context.Context, t Target, photoURL, caption string, markup *tgbotapi.InlineKeyboardMarkup) error {
	photo := tgbotapi.NewInputMediaPhoto(tgbotapi.FileURL(photoURL))
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	cfg := tgbotapi.EditMessageMediaConfig{BaseEdit: t.BaseEdit(markup), Media: photo}
	return c.request(ctx, cfg)
}

func (c *TelegramClient) EditMedia(ctx context.Context, t Target, media Uploaded, markup *tgbotapi.InlineKeyboardMarkup) error {
	file := tgbotapi.FileID(media.FileID)
	var m interface{}
	switch media.Kind {
	case KindVideo:
		v := tgbotapi.NewInputMediaVideo(file)
		v.Caption, v.ParseMode = media.Caption, tgbotapi.ModeHTML
		m = v
	case KindAudio:
		a := tgbotapi.NewInputMediaAudio(file)
		a.Caption, a.ParseMode = media.Caption, tgbotapi.ModeHTML
		m = a
	default:
		d := tgbotapi.NewInputMediaDocument(file)
		d.Caption, d.ParseMode = media.Caption, tgbotapi.ModeHTML
		m = d
	}
	cfg := tgbotapi.EditMessageMediaConfig{BaseEdit: t.BaseEdit(markup), Media: m}
	return c.request(ctx, cfg)
}

func (c *TelegramClient) AnswerCallback(ctx context.Context, id, text string, alert bool) error {
	cb := tgbotapi.NewCallback(id, text)
	cb.ShowAlert = alert
	return c.request(ctx, cb)
}

func (c *TelegramClient) AnswerInline(ctx context.Context, cfg tgbotapi.InlineConfig) error {
	return c.request(ctx, cfg)
}

func (c *TelegramClient) SendPhoto(ctx context.Context, chatID int64, photoURL, caption string, markup *tgbotapi.InlineKeyboardMarkup, replyTo int) error {
	p := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(photoURL))
	p.Caption = caption
	p.ParseMode = tgbotapi.ModeHTML
	p.ReplyToMessageID = replyTo
	if markup != nil {
		p.ReplyMarkup = *markup
	}
	_, err := c.send(ctx, p)
	return err
}

func (c *TelegramClient) SendText(ctx context.Context, chatID int64, text string, replyTo int) error {
	m := tgbotapi.NewMessage(chatID, text)
	m.ParseMode = tgbotapi.ModeHTML
	m.ReplyToMessageID = replyTo
	_, err := c.send(ctx, m)
	return err
}

// SendMedia — отправка файла в лог-канал; Reader читается по мере загрузки
func (c *TelegramClient) SendMedia(ctx context.Context, u Upload) (*Uploaded, error) {
	file := tgbotapi.FileReader{Name: u.FileName, Reader: u.Reader}
	var thumb tgbotapi.RequestFileData
	if u.Thumb != "" {
		thumb = tgbotapi.FilePath(u.Thumb)
	}

	var cfg tgbotapi.Chattable
	switch u.Kind {
	case KindVideo:
		v := tgbotapi.NewVideo(u.ChatID, file)
		v.Caption, v.ParseMode = u.Caption, tgbotapi.ModeHTML
		v.Duration = u.Duration
		v.SupportsStreaming = true
		v.DisableNotification = true
		v.Thumb = thumb
		cfg = v
	case KindAudio:
		a := tgbotapi.NewAudio(u.ChatID, file)
		a.Caption, a.ParseMode = u.Caption, tgbotapi.ModeHTML
		a.Duration = u.Duration
		a.Performer, a.Title = u.Performer, u.Title
		a.DisableNotification = true
		a.Thumb = thumb
		cfg = a
	default:
		return nil, fmt.Errorf("unsupported upload kind: %s", u.Kind)
	}

	msg, err := c.send(ctx, cfg)
	if err != nil {
		return nil, err
	}
	out := &Uploaded{Caption: u.Caption}
	switch {
	case msg.Video != nil:
		out.FileID, out.Kind = msg.Video.FileID, KindVideo
	case msg.Audio != nil:
		out.FileID, out.Kind = msg.Audio.FileID, KindAudio
	case msg.Document != nil:
		out.FileID, out.Kind = msg.Document.FileID, KindDocument
	default:
		return nil, errors.New("upload returned no media")
	}
	return out, nil
}

func (c *TelegramClient) request(ctx context.Context, cfg tgbotapi.Chattable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.api.Request(cfg)
	return Classify(err)
}

func (c *TelegramClient) send(ctx context.Context, cfg tgbotapi.Chattable) (tgbotapi.Message, error) {
	if err := ctx.Err(); err != nil {
		return tgbotapi.Message{}, err
	}
	msg, err := c.api.Send(cfg)
	return msg, Classify(err)
}

// Classify — приводит ошибки Bot API к RateLimitError / ErrContentUnchanged
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		var plain tgbotapi.Error
		if !errors.As(err, &plain) {
			return err
		}
		apiErr = &plain
	}
	if apiErr.RetryAfter > 0 || apiErr.Code == 429 {
		after := time.Duration(apiErr.RetryAfter) * time.Second
		if after <= 0 {
			after = time.Second
		}
		return &RateLimitError{RetryAfter: after}
	}
	if strings.Contains(strings.ToLower(apiErr.Message), "message is not modified") {
		return fmt.Errorf("%w: %s", ErrContentUnchanged, apiErr.Message)
	}
	if strings.Contains(strings.ToLower(apiErr.Message), "no text in the message") {
		return fmt.Errorf("%w: %s", ErrNoText, apiErr.Message)
	}
	return err
}
