package paging

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ytdl-inline-bot/internal/cache"
)

const (
	VideoURL   = "https://www.youtube.com/watch?v="
	ChannelURL = "https://www.youtube.com/channel/"
)

// Direction — направление листания
type Direction int

const (
	Forward  Direction = 1
	Backward Direction = -1
)

// Source — чтение страниц из KeyCache
type Source interface {
	GetPage(ctx context.Context, key string, index int) (int, cache.Record, bool, error)
}

// Page — одна страница поверх сохранённой выдачи
type Page struct {
	Key    string
	Index  int
	Total  int
	Record cache.Record
}

// Pager — листание результатов по ключу
type Pager struct {
	src Source
}

func NewPager(src Source) *Pager { return &Pager{src: src} }

// Page — страница index (с нуля); nil если ключа нет или индекс вне диапазона
func (p *Pager) Page(ctx context.Context, key string, index int) (*Page, error) {
	total, rec, ok, err := p.src.GetPage(ctx, key, index)
	if err != nil {
		return nil, fmt.Errorf("page %s/%d: %w", key, index, err)
	}
	if !ok {
		return nil, nil
	}
	return &Page{Key: key, Index: index, Total: total, Record: rec}, nil
}

// Next — соседняя страница; nil когда список исчерпан в этом направлении
func (p *Pager) Next(ctx context.Context, key string, current int, dir Direction) (*Page, error) {
	next := current + int(dir)
	if next < 0 {
		return nil, nil
	}
	return p.Page(ctx, key, next)
}

// Markup — кнопки страницы: [Back] [n/total], [List All] [Download].
// На первой странице Back нет.
func Markup(key, ytID string, total, index int) tgbotapi.InlineKeyboardMarkup {
	page := index + 1
	nav := tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️  Back", fmt.Sprintf("yt_back|%s|%d", key, page)),
		tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d / %d", page, total), fmt.Sprintf("yt_next|%s|%d", key, page)),
	)
	if page == 1 {
		nav = nav[1:]
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		nav,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📜  List All", "yt_listall|"+key),
			tgbotapi.NewInlineKeyboardButtonData("⬇️  Download", "yt_extract_info|"+ytID),
		),
	)
}

// FormatLine — строка "❯ Key : value"
func FormatLine(key, value string) string {
	if value == "" {
		value = "N/A"
	}
	return fmt.Sprintf("<b>❯  %s</b> : %s", key, value)
}

// Caption — HTML-подпись результата
func Caption(r cache.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<a href=\"%s%s\"><b>%s</b></a>\n", VideoURL, r.YtID, html.EscapeString(r.Title))
	if r.Body != "" {
		fmt.Fprintf(&b, "<pre>%s</pre>", html.EscapeString(r.Body))
	}
	b.WriteString(strings.Join([]string{
		FormatLine("Duration", r.Duration),
		FormatLine("Views", r.Views),
		FormatLine("Upload Date", r.UploadDate),
	}, "\n"))
	uploader := ""
	if r.ChannelName != "" {
		uploader = fmt.Sprintf("<a href=\"%s%s\">%s</a>", ChannelURL, r.ChannelID, html.EscapeString(r.ChannelName))
	}
	b.WriteString("\n" + FormatLine("Uploader", uploader))
	return b.String()
}

// ListLine — строка для list view (telegra.ph), n с единицы
func ListLine(n int, r cache.Record) string {
	title := r.Title
	if title == "" {
		title = "N/A"
	}
	return fmt.Sprintf("<img src=\"%s\"><b><a href=\"%s%s\">%d. %s</a></b>",
		r.Thumb, VideoURL, r.YtID, n, html.EscapeString(title))
}
