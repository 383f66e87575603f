package telegram

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytdl-inline-bot/internal/cache"
	"ytdl-inline-bot/internal/chat"
	"ytdl-inline-bot/internal/config"
	"ytdl-inline-bot/internal/downloader"
	"ytdl-inline-bot/internal/logger"
	"ytdl-inline-bot/internal/queue"
	"ytdl-inline-bot/internal/search"
	"ytdl-inline-bot/internal/state"
	"ytdl-inline-bot/internal/transfer"
)

// fakeAPI — Sender + Updates, запоминает всё отправленное
type fakeAPI struct {
	calls   chan tgbotapi.Chattable
	updates chan tgbotapi.Update
	stopped chan struct{}
	once    sync.Once
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		calls:   make(chan tgbotapi.Chattable, 64),
		updates: make(chan tgbotapi.Update, 8),
		stopped: make(chan struct{}),
	}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.calls <- c
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.calls <- c
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return f.updates }

func (f *fakeAPI) StopReceivingUpdates() { f.once.Do(func() { close(f.stopped) }) }

type stubProvider struct{ n int }

func (p stubProvider) Search(_ context.Context, query string, limit int64) ([]cache.Record, error) {
	out := make([]cache.Record, 0, p.n)
	for i := 0; i < p.n && int64(i) < limit; i++ {
		out = append(out, cache.Record{YtID: fmt.Sprintf("yt%09d", i), Title: fmt.Sprintf("%s #%d", query, i), Thumb: "https://t/" + fmt.Sprint(i)})
	}
	return out, nil
}

type stubExtractor struct{}

func (stubExtractor) ExtractInfo(context.Context, string) (*downloader.Info, error) {
	return &downloader.Info{Title: "Clip", Formats: []downloader.Format{{FormatID: "22", Ext: "mp4", FormatNote: "720p"}}}, nil
}

type stubThumbs struct{}

func (stubThumbs) Best(_ context.Context, id string) string { return "https://t/" + id }

type stubPaster struct{}

func (stubPaster) Paste(context.Context, string, string) (string, error) {
	return "https://telegra.ph/x", nil
}

// fakeTransfers — вместо загрузки ждёт отмены или сразу завершается
type fakeTransfers struct {
	registry *state.Registry
	runs     chan transfer.Request
	wait     bool
}

func (f *fakeTransfers) Run(ctx context.Context, req transfer.Request) (*transfer.Result, error) {
	f.runs <- req
	if f.wait {
		for !f.registry.IsCancelled(req.Process.ID) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Millisecond):
			}
		}
		f.registry.Uncancel(req.Process.ID)
		return &transfer.Result{Phase: transfer.Cancelled}, nil
	}
	return &transfer.Result{Phase: transfer.Patched}, nil
}

type env struct {
	bot       *Bot
	api       *fakeAPI
	registry  *state.Registry
	transfers *fakeTransfers
	q         *queue.Queue
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store, err := cache.Open(t.TempDir(), false, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := search.NewService(search.Options{
		Store:     store,
		Provider:  stubProvider{n: 3},
		Extractor: stubExtractor{},
		Thumbs:    stubThumbs{},
		Paster:    stubPaster{},
		Log:       logger.Discard(),
	})
	e := &env{
		api:      newFakeAPI(),
		registry: state.NewRegistry(time.Hour),
		q:        queue.NewQueue(10, 1),
	}
	e.transfers = &fakeTransfers{registry: e.registry, runs: make(chan transfer.Request, 4)}
	e.bot = NewBot(&config.Config{DownloadDir: t.TempDir(), MaxFileMB: 50}, Deps{
		Updates:   e.api,
		Client:    chat.NewTelegramClient(e.api),
		Search:    svc,
		URLs:      store,
		Registry:  e.registry,
		Queue:     e.q,
		Transfers: e.transfers,
		Log:       logger.Discard(),
	})
	return e
}

// waitFor — первый Chattable нужного типа
func waitFor[T tgbotapi.Chattable](t *testing.T, ch <-chan tgbotapi.Chattable) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			var zero T
			t.Fatalf("did not receive %T in time", zero)
			return zero
		case c := <-ch:
			if v, ok := c.(T); ok {
				return v
			}
		}
	}
}

func callbackData(t *testing.T, m tgbotapi.InlineKeyboardMarkup, row, col int) string {
	t.Helper()
	require.Greater(t, len(m.InlineKeyboard), row)
	require.Greater(t, len(m.InlineKeyboard[row]), col)
	btn := m.InlineKeyboard[row][col]
	require.NotNil(t, btn.CallbackData)
	return *btn.CallbackData
}

func TestTelegramFlow_SearchPagingAndDownload(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.q.Start(ctx, e.bot.Worker)

	// 1) текст -> фото с кнопками
	chatRef := &tgbotapi.Chat{ID: 1234}
	e.bot.handleMessage(ctx, &tgbotapi.Message{MessageID: 1, Chat: chatRef, Text: "lofi beats"})
	photo := waitFor[tgbotapi.PhotoConfig](t, e.api.calls)
	assert.Equal(t, int64(1234), photo.ChatID)
	assert.Equal(t, 1, photo.ReplyToMessageID)
	markup, ok := photo.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	next := callbackData(t, markup, 0, 0)
	assert.Equal(t, "yt_next|"+search.SearchKey("lofi beats")+"|1", next)

	// 2) next -> правка фото на вторую страницу
	msg := &tgbotapi.Message{MessageID: 2, Chat: chatRef}
	e.bot.handleCallback(ctx, &tgbotapi.CallbackQuery{ID: "cb1", Message: msg, Data: next})
	edit := waitFor[tgbotapi.EditMessageMediaConfig](t, e.api.calls)
	assert.Equal(t, 2, edit.MessageID)
	require.NotNil(t, edit.ReplyMarkup)
	assert.Equal(t, "2 / 3", edit.ReplyMarkup.InlineKeyboard[0][1].Text)

	// 3) за последней страницей — алерт
	e.bot.handleCallback(ctx, &tgbotapi.CallbackQuery{ID: "cb2", Message: msg, Data: "yt_next|" + search.SearchKey("lofi beats") + "|3"})
	alert := waitFor[tgbotapi.CallbackConfig](t, e.api.calls)
	assert.Equal(t, "That's All Folks !", alert.Text)
	assert.True(t, alert.ShowAlert)

	// 4) yt_dl -> задача в очереди -> передача
	e.bot.handleCallback(ctx, &tgbotapi.CallbackQuery{ID: "cb3", Message: msg, Data: "yt_dl|yt000000001|mp3|a"})
	select {
	case req := <-e.transfers.runs:
		assert.Equal(t, "https://www.youtube.com/watch?v=yt000000001", req.URL)
		assert.Equal(t, chat.KindAudio, req.Kind)
		assert.True(t, req.YouTube)
		assert.Equal(t, state.ProcessID("1234.2"), req.Process.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("transfer was not started")
	}
}

func TestTelegramFlow_CancelInlineTransfer(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.transfers.wait = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.q.Start(ctx, e.bot.Worker)

	go func() { _ = e.bot.Start(ctx) }()

	key := search.SearchKey("x")
	e.api.updates <- tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "cb1", InlineMessageID: "AgAAA-b_1", Data: "yt_gen|" + key + "|mp4|v"}}
	// ключ не сохранён -> алерт
	alert := waitFor[tgbotapi.CallbackConfig](t, e.api.calls)
	assert.True(t, alert.ShowAlert)

	e.api.updates <- tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "cb2", InlineMessageID: "AgAAA-b_1", Data: "yt_dl|dQw4w9WgXcQ|22|v"}}
	var req transfer.Request
	select {
	case req = <-e.transfers.runs:
	case <-time.After(2 * time.Second):
		t.Fatal("transfer was not started")
	}
	assert.Equal(t, chat.Target{InlineMessageID: "AgAAA-b_1"}, req.Process.Target)

	// кнопка отмены с прогресса
	e.api.updates <- tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "cb3", InlineMessageID: "AgAAA-b_1", Data: req.Process.CancelData()}}
	stopped := waitFor[tgbotapi.EditMessageTextConfig](t, e.api.calls)
	assert.Equal(t, "AgAAA-b_1", stopped.InlineMessageID)
	assert.Contains(t, stopped.Text, "Stopped Successfully")

	cancel()
	select {
	case <-e.api.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("updates were not stopped")
	}
}

func TestTelegramFlow_InlineQuery(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	e.bot.handleInline(ctx, &tgbotapi.InlineQuery{ID: "iq1", Query: "https://youtu.be/dQw4w9WgXcQ"})
	cfg := waitFor[tgbotapi.InlineConfig](t, e.api.calls)
	require.Len(t, cfg.Results, 1)
	photo, ok := cfg.Results[0].(tgbotapi.InlineQueryResultPhoto)
	require.True(t, ok)
	assert.Equal(t, "dQw4w9WgXcQ", photo.ID)
	assert.Equal(t, "https://t/dQw4w9WgXcQ", photo.URL)
	require.NotNil(t, photo.ReplyMarkup)
	assert.Equal(t, "yt_extract_info|dQw4w9WgXcQ", callbackData(t, *photo.ReplyMarkup, 0, 0))

	e.bot.handleInline(ctx, &tgbotapi.InlineQuery{ID: "iq2", Query: "   "})
	select {
	case c := <-e.api.calls:
		t.Fatalf("unexpected call for empty query: %T", c)
	case <-time.After(50 * time.Millisecond):
	}
}
