package search

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"html"
	"regexp"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"ytdl-inline-bot/internal/cache"
	"ytdl-inline-bot/internal/paging"
)

// DefaultThumb — картинка, когда своей нет
const DefaultThumb = "https://i.imgur.com/4LwPLai.png"

const (
	searchKeyLen = 10
	listTitle    = "📜  LIST VIEW"
	thumbWorkers = 5
)

var (
	ytURLRe      = regexp.MustCompile(`(?:youtube\.com|youtu\.be)/(?:[\w-]+\?v=|embed/|v/|shorts/)?([\w-]{11})`)
	genericURLRe = regexp.MustCompile(`^https?://\S+`)
)

// Store — то, что сервису нужно от KeyCache
type Store interface {
	paging.Source
	SaveURL(ctx context.Context, url string) (string, error)
	GetURL(ctx context.Context, key string) (string, bool, error)
	SetResults(ctx context.Context, key string, records []cache.Record) error
	GetResults(ctx context.Context, key string) ([]cache.Record, bool, error)
}

// Thumbnailer — ссылка на обложку по id ролика
type Thumbnailer interface {
	Best(ctx context.Context, ytID string) string
}

// Paster — публикация list view
type Paster interface {
	Paste(ctx context.Context, title, content string) (string, error)
}

// Options — зависимости Service
type Options struct {
	Store        Store
	Provider     Provider
	Extractor    InfoExtractor
	Thumbs       Thumbnailer
	Paster       Paster
	Limit        int64
	DefaultThumb string
	Log          *logrus.Entry
}

// Service — поиск, листание и разбор ссылок поверх KeyCache
type Service struct {
	store        Store
	pager        *paging.Pager
	provider     Provider
	extractor    InfoExtractor
	thumbs       Thumbnailer
	paster       Paster
	limit        int64
	defaultThumb string
	log          *logrus.Entry
	// одинаковые запросы в полёте схлопываются по ключу
	inflight singleflight.Group
}

func NewService(o Options) *Service {
	if o.Limit <= 0 {
		o.Limit = 15
	}
	if o.DefaultThumb == "" {
		o.DefaultThumb = DefaultThumb
	}
	return &Service{
		store:        o.Store,
		pager:        paging.NewPager(o.Store),
		provider:     o.Provider,
		extractor:    o.Extractor,
		thumbs:       o.Thumbs,
		paster:       o.Paster,
		limit:        o.Limit,
		defaultThumb: o.DefaultThumb,
		log:          o.Log,
	}
}

// SearchKey — ключ выдачи: начало sha1 от запроса
func SearchKey(query string) string {
	sum := sha1.Sum([]byte(query))
	return hex.EncodeToString(sum[:])[:searchKeyLen]
}

// Search — первая страница выдачи; повторный запрос берётся из кэша
func (s *Service) Search(ctx context.Context, query string) (*Result, error) {
	key := SearchKey(query)
	v, err, shared := s.inflight.Do(key, func() (any, error) {
		return s.search(ctx, key, query)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.log.WithField("key", key).Debug("[search] joined in-flight search")
	}
	return v.(*Result).clone(), nil
}

func (s *Service) search(ctx context.Context, key, query string) (*Result, error) {
	log := s.log.WithFields(logrus.Fields{"key": key, "query": query})

	page, err := s.pager.Page(ctx, key, 0)
	if err != nil {
		return nil, err
	}
	if page != nil {
		log.Debug("[search] cache hit")
		return s.pageResult(page), nil
	}

	records, err := s.provider.Search(ctx, query, s.limit)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	if len(records) == 0 {
		return nil, ErrNoResultFound
	}
	s.fillThumbs(ctx, records)

	if err := s.store.SetResults(ctx, key, records); err != nil {
		return nil, err
	}
	log.WithField("count", len(records)).Info("[search] results cached")

	page, err = s.pager.Page(ctx, key, 0)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, ErrNoResultFound
	}
	return s.pageResult(page), nil
}

func (s *Service) fillThumbs(ctx context.Context, records []cache.Record) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(thumbWorkers)
	for i := range records {
		if records[i].Thumb != "" {
			continue
		}
		i := i
		g.Go(func() error {
			records[i].Thumb = s.thumbs.Best(gctx, records[i].YtID)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) pageResult(p *paging.Page) *Result {
	image := p.Record.Thumb
	if image == "" {
		image = s.defaultThumb
	}
	return &Result{
		Key:      p.Key,
		Caption:  paging.Caption(p.Record),
		ImageURL: image,
		Buttons:  paging.Markup(p.Key, p.Record.YtID, p.Total, p.Index),
	}
}

// NextResult — страница page (с единицы); nil если её нет
func (s *Service) NextResult(ctx context.Context, key string, page int) (*Result, error) {
	if page < 1 {
		return nil, nil
	}
	p, err := s.pager.Page(ctx, key, page-1)
	if err != nil || p == nil {
		return nil, err
	}
	return s.pageResult(p), nil
}

// Navigate — шаг от текущей страницы page (с единицы) в направлении dir
func (s *Service) Navigate(ctx context.Context, key string, page int, dir paging.Direction) (*Result, error) {
	p, err := s.pager.Next(ctx, key, page-1, dir)
	if err != nil || p == nil {
		return nil, err
	}
	return s.pageResult(p), nil
}

// ExtractInfoFromKey — 11 символов считаются id YouTube, иначе ключ сохранённой ссылки
func (s *Service) ExtractInfoFromKey(ctx context.Context, key string) (*Result, error) {
	if len(key) == 11 {
		return s.DownloadButtons(ctx, key), nil
	}
	url, ok, err := s.store.GetURL(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return s.GenericExtract(ctx, key, url), nil
}

// Parse — разбор ввода пользователя: ссылка YouTube, любая другая ссылка
// или поисковый запрос. extract сразу отдаёт варианты загрузки,
// иначе показывается кнопка "Extract Info".
func (s *Service) Parse(ctx context.Context, query string, extract bool) (*Result, error) {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return nil, ErrNoResultFound
	}
	if len(fields) == 1 {
		link := fields[0]
		if m := ytURLRe.FindStringSubmatch(link); m != nil {
			ytID := m[1]
			if extract {
				return s.DownloadButtons(ctx, ytID), nil
			}
			return s.extractPrompt(ytID, fmt.Sprintf("<b>[YouTube URL]</b> -> <code>%s%s</code>", paging.VideoURL, ytID), s.thumbs.Best(ctx, ytID)), nil
		}
		if genericURLRe.MatchString(link) {
			key, err := s.store.SaveURL(ctx, link)
			if err != nil {
				return nil, err
			}
			if extract {
				res := s.GenericExtract(ctx, key, link)
				if res == nil {
					return nil, ErrNoResultFound
				}
				return res, nil
			}
			return s.extractPrompt(key, fmt.Sprintf("<b>[Generic URL]</b> -> <code>%s</code>", html.EscapeString(link)), s.defaultThumb), nil
		}
	}
	return s.Search(ctx, strings.TrimSpace(query))
}

func (s *Service) extractPrompt(key, caption, image string) *Result {
	return &Result{
		Key:      key,
		Caption:  caption,
		ImageURL: image,
		Buttons: tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			button("⚙️ Extract Info", "yt_extract_info|"+key),
		)),
	}
}

// ListView — вся выдача одной страницей telegra.ph.
// Возвращает обложку первого результата и кнопки.
func (s *Service) ListView(ctx context.Context, key string) (string, tgbotapi.InlineKeyboardMarkup, error) {
	var empty tgbotapi.InlineKeyboardMarkup
	records, ok, err := s.store.GetResults(ctx, key)
	if err != nil {
		return "", empty, err
	}
	if !ok || len(records) == 0 {
		return "", empty, ErrNoResultFound
	}

	lines := make([]string, 0, len(records))
	for i, r := range records {
		lines = append(lines, paging.ListLine(i+1, r))
	}
	link, err := s.paster.Paste(ctx, listTitle, strings.Join(lines, "\n"))
	if err != nil {
		return "", empty, fmt.Errorf("list view %s: %w", key, err)
	}

	image := records[0].Thumb
	if image == "" {
		image = s.defaultThumb
	}
	return image, tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonURL("↗️  Click To Open", link),
		button("📰  Detailed View", fmt.Sprintf("yt_next|%s|0", key)),
	)), nil
}
