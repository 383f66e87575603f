package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"ytdl-inline-bot/internal/chat"
	"ytdl-inline-bot/internal/config"
	"ytdl-inline-bot/internal/downloader"
	"ytdl-inline-bot/internal/files"
	"ytdl-inline-bot/internal/paging"
	"ytdl-inline-bot/internal/queue"
	"ytdl-inline-bot/internal/search"
	"ytdl-inline-bot/internal/state"
	"ytdl-inline-bot/internal/transfer"
)

// Deps — зависимости бота
type Deps struct {
	Updates   Updates
	Client    chat.Client
	Search    Searcher
	URLs      URLs
	Registry  Canceller
	Queue     *queue.Queue
	Transfers Transfers
	Log       *logrus.Entry
}

// Bot — inline-бот поиска и загрузки с YouTube
type Bot struct {
	cfg *config.Config
	d   Deps
	log *logrus.Entry
	wg  sync.WaitGroup
}

func NewBot(cfg *config.Config, d Deps) *Bot {
	return &Bot{cfg: cfg, d: d, log: d.Log}
}

func (b *Bot) Start(ctx context.Context) error {
	updCfg := tgbotapi.NewUpdate(0)
	updCfg.Timeout = 30

	updates := b.d.Updates.GetUpdatesChan(updCfg)
	b.log.WithField("download_dir", b.cfg.DownloadDir).Info("[bot] started")

	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			b.d.Updates.StopReceivingUpdates()
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.dispatch(ctx, u)
			}()
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, u tgbotapi.Update) {
	switch {
	case u.InlineQuery != nil:
		b.handleInline(ctx, u.InlineQuery)
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		b.handleMessage(ctx, u.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	text := strings.TrimSpace(m.Text)
	if text == "" || m.Chat == nil {
		return
	}

	switch {
	case strings.HasPrefix(text, "/start"):
		b.reply(ctx, m.Chat.ID, "Привет! Пришлите ссылку или поисковый запрос, либо используйте меня inline: <code>@bot запрос</code>.", 0)
		return
	case strings.HasPrefix(text, "/help"):
		b.reply(ctx, m.Chat.ID, "Ссылка на YouTube или любой сайт, который знает yt-dlp, покажет варианты загрузки. Текст ищется на YouTube. Файл загружается до 2 ГБ.", 0)
		return
	}

	res, err := b.d.Search.Parse(ctx, text, true)
	if err != nil || res == nil {
		b.replyError(ctx, m.Chat.ID, m.MessageID, err)
		return
	}
	if err := b.d.Client.SendPhoto(ctx, m.Chat.ID, res.ImageURL, res.Caption, &res.Buttons, m.MessageID); err != nil {
		b.log.WithError(err).WithField("chat_id", m.Chat.ID).Error("[bot] send result failed")
	}
}

func (b *Bot) handleInline(ctx context.Context, q *tgbotapi.InlineQuery) {
	query := strings.TrimSpace(q.Query)
	if query == "" {
		return
	}
	log := b.log.WithFields(logrus.Fields{"query": query, "user_id": userID(q.From)})

	res, err := b.d.Search.Parse(ctx, query, false)
	if err != nil || res == nil {
		if !errors.Is(err, search.ErrNoResultFound) && err != nil {
			log.WithError(err).Error("[bot] inline search failed")
		}
		_ = b.d.Client.AnswerInline(ctx, tgbotapi.InlineConfig{InlineQueryID: q.ID, Results: []interface{}{}, CacheTime: 1})
		return
	}

	photo := tgbotapi.NewInlineQueryResultPhotoWithThumb(res.Key, res.ImageURL, res.ImageURL)
	photo.Title = "🔍 " + query
	photo.Description = "[click here]"
	photo.Caption = res.Caption
	photo.ParseMode = tgbotapi.ModeHTML
	photo.ReplyMarkup = &res.Buttons

	cfg := tgbotapi.InlineConfig{InlineQueryID: q.ID, Results: []interface{}{photo}, CacheTime: 1}
	if err := b.d.Client.AnswerInline(ctx, cfg); err != nil {
		log.WithError(err).Error("[bot] answer inline failed")
	}
}

func (b *Bot) handleCallback(ctx context.Context, c *tgbotapi.CallbackQuery) {
	parts := strings.Split(c.Data, "|")
	log := b.log.WithFields(logrus.Fields{"data": c.Data, "user_id": userID(c.From)})

	p, err := state.NewProcess(c, "")
	if err != nil {
		log.WithError(err).Error("[bot] unsupported callback")
		b.answer(ctx, c.ID, "", false)
		return
	}

	switch {
	case parts[0] == "yt_cancel":
		id, ok := state.ParseCancelData(c.Data)
		if !ok {
			b.answer(ctx, c.ID, "", false)
			return
		}
		b.d.Registry.Cancel(id)
		log.WithField("process", id).Info("[bot] cancel requested")
		b.answer(ctx, c.ID, "Trying to Cancel Process..", false)

	case (parts[0] == "yt_back" || parts[0] == "yt_next") && len(parts) == 3:
		page, err := strconv.Atoi(parts[2])
		if err != nil {
			b.answer(ctx, c.ID, "", false)
			return
		}
		dir := paging.Forward
		if parts[0] == "yt_back" {
			dir = paging.Backward
		}
		res, err := b.d.Search.Navigate(ctx, parts[1], page, dir)
		if err != nil {
			log.WithError(err).Error("[bot] navigate failed")
		}
		if res == nil {
			b.answer(ctx, c.ID, "That's All Folks !", true)
			return
		}
		b.answer(ctx, c.ID, "", false)
		b.editPhoto(ctx, p.Target, res, log)

	case parts[0] == "yt_listall" && len(parts) == 2:
		b.answer(ctx, c.ID, "", false)
		image, markup, err := b.d.Search.ListView(ctx, parts[1])
		if err != nil {
			log.WithError(err).Error("[bot] list view failed")
			return
		}
		b.editPhoto(ctx, p.Target, &search.Result{ImageURL: image, Buttons: markup}, log)

	case parts[0] == "yt_extract_info" && len(parts) == 2:
		b.answer(ctx, c.ID, "", false)
		res, err := b.d.Search.ExtractInfoFromKey(ctx, parts[1])
		if err != nil || res == nil {
			log.WithError(err).Warn("[bot] nothing to extract")
			return
		}
		b.editPhoto(ctx, p.Target, res, log)

	case (parts[0] == "yt_dl" || parts[0] == "yt_gen") && len(parts) == 4:
		b.enqueue(ctx, c, p, parts, log)

	default:
		b.answer(ctx, c.ID, "", false)
	}
}

// enqueue — yt_dl|id|choice|a/v или yt_gen|key|choice|a/v
func (b *Bot) enqueue(ctx context.Context, c *tgbotapi.CallbackQuery, p *state.Process, parts []string, log *logrus.Entry) {
	ytURL := parts[0] == "yt_dl"
	link := paging.VideoURL + parts[1]
	if !ytURL {
		url, ok, err := b.d.URLs.GetURL(ctx, parts[1])
		if err != nil || !ok {
			log.WithError(err).Warn("[bot] saved url not found")
			b.answer(ctx, c.ID, "Ссылка устарела. Пришлите её ещё раз.", true)
			return
		}
		link = url
	}

	kind, mediaType := chat.KindVideo, "v"
	if parts[3] == "a" {
		kind, mediaType = chat.KindAudio, "a"
	}
	_, display := downloader.ChoiceByID(parts[2], mediaType, ytURL, b.cfg.MaxFileMB)

	job := queue.Job{
		CallbackID: c.ID,
		Request: transfer.Request{
			URL:     link,
			Choice:  parts[2],
			Kind:    kind,
			YouTube: ytURL,
			Link:    link,
			Process: p,
		},
	}
	if err := b.d.Queue.Enqueue(job); err != nil {
		log.WithError(err).Warn("[bot] enqueue failed")
		b.answer(ctx, c.ID, "Очередь переполнена, попробуйте позже.", true)
		return
	}
	b.answer(ctx, c.ID, fmt.Sprintf("⬇️ Downloading %s - %s", kind, display), true)
}

// Worker — обработчик задач очереди: передача целиком и итог в исходном сообщении
func (b *Bot) Worker(ctx context.Context, job queue.Job) {
	req := job.Request
	log := b.log.WithFields(logrus.Fields{"process": req.Process.ID, "url": req.URL})

	res, err := b.d.Transfers.Run(ctx, req)
	var text string
	switch {
	case err != nil:
		text = failureText(err)
	case res.Phase == transfer.Cancelled:
		text = "<code>Stopped Successfully</code>"
	default:
		return
	}
	if err := b.d.Client.EditText(ctx, req.Process.Target, text, nil); err != nil && !errors.Is(err, chat.ErrContentUnchanged) {
		log.WithError(err).Error("[bot] unable to report transfer result")
	}
}

func failureText(err error) string {
	switch {
	case errors.Is(err, files.ErrSizeExceeded):
		return "❌ <b>File is too large to upload</b> (max 2 GB)"
	case errors.Is(err, files.ErrFileNotFound):
		return "❌ <b>Downloaded file not found</b>"
	case errors.Is(err, transfer.ErrDownloadFailed):
		return "❌ <b>Download failed</b>"
	}
	return "❌ <b>Upload failed</b>: <code>" + html.EscapeString(err.Error()) + "</code>"
}

func (b *Bot) editPhoto(ctx context.Context, t chat.Target, res *search.Result, log *logrus.Entry) {
	err := b.d.Client.EditPhoto(ctx, t, res.ImageURL, res.Caption, &res.Buttons)
	if err != nil && !errors.Is(err, chat.ErrContentUnchanged) {
		log.WithError(err).Error("[bot] edit message failed")
	}
}

func (b *Bot) answer(ctx context.Context, id, text string, alert bool) {
	if err := b.d.Client.AnswerCallback(ctx, id, text, alert); err != nil {
		b.log.WithError(err).Debug("[bot] answer callback failed")
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string, replyTo int) {
	if err := b.d.Client.SendText(ctx, chatID, text, replyTo); err != nil {
		b.log.WithError(err).WithField("chat_id", chatID).Error("[bot] send message failed")
	}
}

func (b *Bot) replyError(ctx context.Context, chatID int64, replyTo int, err error) {
	if err == nil || errors.Is(err, search.ErrNoResultFound) {
		b.reply(ctx, chatID, "Ничего не найдено.", replyTo)
		return
	}
	b.log.WithError(err).WithField("chat_id", chatID).Error("[bot] search failed")
	b.reply(ctx, chatID, "Не удалось выполнить запрос, попробуйте позже.", replyTo)
}

func userID(u *tgbotapi.User) int64 {
	if u == nil {
		return 0
	}
	return u.ID
}
