package transfer

import (
	"context"
	"errors"
	"fmt"
	"html"
	"os"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ytdl-inline-bot/internal/chat"
	"ytdl-inline-bot/internal/downloader"
	"ytdl-inline-bot/internal/files"
	"ytdl-inline-bot/internal/media"
	"ytdl-inline-bot/internal/progress"
	"ytdl-inline-bot/internal/state"
)

// ErrDownloadFailed — движок загрузки вернул ошибку
var ErrDownloadFailed = downloader.ErrDownloadFailed

// длина ключа папки передачи
const scratchKeyLen = 8

// пауза между загрузкой в лог-канал и правкой сообщения
const patchDelay = 2 * time.Second

type Phase int

const (
	Selecting Phase = iota
	Downloading
	Probing
	Uploading
	Patched
	Cancelled
	Failed
)

func (p Phase) String() string {
	switch p {
	case Selecting:
		return "selecting"
	case Downloading:
		return "downloading"
	case Probing:
		return "probing"
	case Uploading:
		return "uploading"
	case Patched:
		return "patched"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Downloader — движок загрузки (yt-dlp)
type Downloader interface {
	Download(ctx context.Context, req downloader.Request, hook downloader.Hook) error
}

// Prober — поиск файла и метаданных в папке передачи
type Prober interface {
	Inspect(ctx context.Context, dir string, kind chat.Kind) (*media.Media, error)
}

// Uploader — часть чат-клиента, нужная передаче
type Uploader interface {
	progress.Editor
	SendMedia(ctx context.Context, u chat.Upload) (*chat.Uploaded, error)
	EditMedia(ctx context.Context, t chat.Target, m chat.Uploaded, markup *tgbotapi.InlineKeyboardMarkup) error
}

// Registry — реестр отмен
type Registry interface {
	progress.Cancellation
	Uncancel(id state.ProcessID)
}

// Request — одна передача: что качать и куда показывать прогресс
type Request struct {
	URL     string
	Choice  string // format_id из кнопки, "mkv"/"mp4"/"mp3" или битрейт
	Kind    chat.Kind
	YouTube bool
	Link    string // ссылка в подписи загруженного файла
	Process *state.Process
}

// Result — итог передачи
type Result struct {
	ID    string
	Key   string
	Phase Phase
	Media *chat.Uploaded
}

type Options struct {
	Downloader        Downloader
	Prober            Prober
	Uploader          Uploader
	Registry          Registry
	DownloadDir       string
	LogChannelID      int64
	MaxFileMB         int64
	EditRate          time.Duration
	DeleteAfterUpload bool
	Log               *logrus.Entry
}

// Orchestrator — загрузка, проверка файла, отправка в лог-канал и замена сообщения
type Orchestrator struct {
	opts Options
	log  *logrus.Entry

	removeAll func(string) error
	sleep     func(ctx context.Context, d time.Duration)
}

func New(opts Options) *Orchestrator {
	return &Orchestrator{
		opts:      opts,
		log:       opts.Log,
		removeAll: os.RemoveAll,
		sleep:     sleepCtx,
	}
}

func mediaType(k chat.Kind) string {
	if k == chat.KindAudio {
		return "a"
	}
	return "v"
}

// Run — полный цикл передачи. Отмена — нормальный исход (nil ошибка, фаза Cancelled).
// При DeleteAfterUpload папка передачи удаляется ровно один раз на любом выходе,
// кроме ошибки движка: тогда она остаётся для разбора.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	res := &Result{ID: uuid.NewString(), Phase: Selecting}
	log := o.log.WithFields(logrus.Fields{"transfer": res.ID, "process": req.Process.ID, "url": req.URL})
	defer o.opts.Registry.Uncancel(req.Process.ID)

	res.Phase = Downloading
	key, err := o.Download(ctx, req)
	res.Key = key
	keep := false
	defer func() {
		if key == "" || keep || !o.opts.DeleteAfterUpload {
			return
		}
		dir, err := files.ScratchDir(o.opts.DownloadDir, key)
		if err == nil {
			err = o.removeAll(dir)
		}
		if err != nil {
			log.WithError(err).Warn("[transfer] cleanup failed")
		}
	}()

	if err != nil {
		if o.cancelled(req, err) {
			log.Info("[transfer] cancelled while downloading")
			res.Phase = Cancelled
			return res, nil
		}
		keep = errors.Is(err, ErrDownloadFailed)
		log.WithError(err).WithField("key", key).Error("[transfer] download failed")
		res.Phase = Failed
		return res, err
	}

	res.Phase = Probing
	uploaded, phase, err := o.upload(ctx, key, req, res)
	res.Phase, res.Media = phase, uploaded
	switch phase {
	case Cancelled:
		log.Info("[transfer] cancelled while uploading")
		return res, nil
	case Failed:
		log.WithError(err).Error("[transfer] upload failed")
		return res, err
	}
	log.WithField("file_id", uploaded.FileID).Info("[transfer] done")
	return res, nil
}

// Download — загрузка в новую папку передачи; возвращает её ключ
func (o *Orchestrator) Download(ctx context.Context, req Request) (string, error) {
	format, display := downloader.ChoiceByID(req.Choice, mediaType(req.Kind), req.YouTube, o.opts.MaxFileMB)

	key := state.GenerateToken(scratchKeyLen)
	dir, err := files.ScratchDir(o.opts.DownloadDir, key)
	if err != nil {
		return "", err
	}
	if err := files.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}

	rep := progress.New(progress.Options{
		Mode:     progress.ModeDownload,
		Filename: display,
		EditRate: o.opts.EditRate,
		Process:  req.Process,
		Registry: o.opts.Registry,
		Editor:   o.opts.Uploader,
		Log:      o.log,
	})
	rep.Start(ctx)
	defer rep.Close()

	err = o.opts.Downloader.Download(ctx, downloader.Request{
		URL:    req.URL,
		Format: format,
		Kind:   req.Kind,
		Dir:    dir,
	}, rep.Hook)
	return key, err
}

// Upload — отправка файла из папки key в лог-канал и замена исходного сообщения на него
func (o *Orchestrator) Upload(ctx context.Context, key string, req Request) (*chat.Uploaded, error) {
	up, phase, err := o.upload(ctx, key, req, &Result{Key: key})
	if phase == Cancelled {
		return nil, progress.ErrStopTransmission
	}
	return up, err
}

func (o *Orchestrator) upload(ctx context.Context, key string, req Request, res *Result) (*chat.Uploaded, Phase, error) {
	dir, err := files.ScratchDir(o.opts.DownloadDir, key)
	if err != nil {
		return nil, Failed, err
	}
	m, err := o.opts.Prober.Inspect(ctx, dir, req.Kind)
	if err != nil {
		return nil, Failed, err
	}

	res.Phase = Uploading
	f, err := os.Open(m.Path)
	if err != nil {
		return nil, Failed, fmt.Errorf("open %s: %w", m.FileName, err)
	}
	defer f.Close()

	rep := progress.New(progress.Options{
		Mode:     progress.ModeUpload,
		Filename: m.FileName,
		EditRate: o.opts.EditRate,
		Process:  req.Process,
		Registry: o.opts.Registry,
		Editor:   o.opts.Uploader,
		Log:      o.log,
	})
	rep.Start(ctx)

	up, err := o.opts.Uploader.SendMedia(ctx, chat.Upload{
		ChatID:    o.opts.LogChannelID,
		Kind:      m.Kind,
		FileName:  m.FileName,
		Reader:    progress.NewReader(f, m.Size, m.FileName, rep.Hook),
		Caption:   Caption(m.Kind, req.Link, m.FileName),
		Thumb:     m.Thumb,
		Duration:  m.Duration,
		Width:     m.Width,
		Height:    m.Height,
		Performer: m.Performer,
		Title:     m.Title,
	})
	rep.Close()
	if err != nil {
		if o.cancelled(req, err) {
			return nil, Cancelled, nil
		}
		return nil, Failed, err
	}

	o.sleep(ctx, patchDelay)
	if o.opts.Registry.IsCancelled(req.Process.ID) {
		return up, Cancelled, nil
	}
	if err := o.patch(ctx, req.Process.Target, *up); err != nil {
		return up, Failed, err
	}
	return up, Patched, nil
}

// patch — заменить сообщение загруженным файлом и убрать кнопки
func (o *Orchestrator) patch(ctx context.Context, t chat.Target, up chat.Uploaded) error {
	err := o.opts.Uploader.EditMedia(ctx, t, up, nil)
	var rl *chat.RateLimitError
	if errors.As(err, &rl) {
		o.sleep(ctx, rl.RetryAfter)
		err = o.opts.Uploader.EditMedia(ctx, t, up, nil)
	}
	if errors.Is(err, chat.ErrContentUnchanged) {
		return nil
	}
	return err
}

func (o *Orchestrator) cancelled(req Request, err error) bool {
	return errors.Is(err, progress.ErrStopTransmission) || o.opts.Registry.IsCancelled(req.Process.ID)
}

// Caption — подпись загруженного файла: значок и ссылка на источник
func Caption(kind chat.Kind, link, name string) string {
	prefix := "📹  "
	if kind == chat.KindAudio {
		prefix = "🎵  "
	}
	if link == "" {
		return prefix + html.EscapeString(name)
	}
	return fmt.Sprintf("%s<a href=\"%s\">%s</a>", prefix, html.EscapeString(link), html.EscapeString(name))
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
