package downloader

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"ytdl-inline-bot/internal/chat"
	"ytdl-inline-bot/internal/config"
	"ytdl-inline-bot/internal/progress"
)

var (
	// ErrDownloadFailed — yt-dlp завершился с ошибкой
	ErrDownloadFailed = errors.New("download failed")
	// ErrUnsupportedURL — yt-dlp не знает такой сайт
	ErrUnsupportedURL = errors.New("unsupported url")
	// ErrExtraction — не удалось вытащить информацию
	ErrExtraction = errors.New("failed to extract info")
)

// маркер строк прогресса в stdout
const progressMarker = "[iytdl-progress] "

// OutputTemplate — имя файла внутри папки передачи
const OutputTemplate = "%(title)s-%(format)s.%(ext)s"

// Request — одна загрузка
type Request struct {
	URL    string
	Format string // -f для видео, качество в kbps для аудио
	Kind   chat.Kind
	Dir    string
}

// Hook — получатель событий прогресса; ошибка останавливает загрузку
type Hook func(progress.Event) error

type commandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// Runner — обёртка над yt-dlp
type Runner struct {
	cfg     *config.Config
	log     *logrus.Entry
	command commandFunc
}

func NewRunner(cfg *config.Config, log *logrus.Entry) *Runner {
	return &Runner{cfg: cfg, log: log, command: exec.CommandContext}
}

func (r *Runner) bin() string {
	if r.cfg.YtDlpPath != "" {
		return r.cfg.YtDlpPath
	}
	return "yt-dlp"
}

// commonArgs — ffmpeg, прокси, внешний загрузчик
func (r *Runner) commonArgs() []string {
	var args []string
	if r.cfg.FFmpegPath != "" {
		args = append(args, "--ffmpeg-location", r.cfg.FFmpegPath)
	}
	if r.cfg.HTTPProxy != "" {
		args = append(args, "--proxy", r.cfg.HTTPProxy)
	}
	return args
}

// Args — аргументы yt-dlp для загрузки
func (r *Runner) Args(req Request) ([]string, error) {
	args := []string{
		"--no-playlist", "--no-warnings", "--newline",
		"--progress-template", "download:" + progressMarker + "%(progress)j",
		"--geo-bypass", "--no-check-certificate",
		"--write-thumbnail", "--add-metadata",
		"-P", req.Dir, "-o", OutputTemplate,
	}
	args = append(args, r.commonArgs()...)
	if r.cfg.ExternalDownloader != "" {
		args = append(args, "--downloader", r.cfg.ExternalDownloader)
		if r.cfg.ExternalDownloaderArgs != "" {
			args = append(args, "--downloader-args", r.cfg.ExternalDownloader+":"+r.cfg.ExternalDownloaderArgs)
		}
	}

	switch req.Kind {
	case chat.KindVideo:
		args = append(args, "-f", req.Format)
	case chat.KindAudio:
		args = append(args, "-f", "bestaudio/best", "-x",
			"--audio-format", "mp3", "--audio-quality", req.Format+"K", "--embed-thumbnail")
	default:
		return nil, fmt.Errorf("unsupported download kind: %q", req.Kind)
	}
	return append(args, req.URL), nil
}

// Download — запуск yt-dlp; каждая строка прогресса уходит в hook синхронно.
// Если hook вернул ошибку, процесс убивается и ошибка возвращается как есть.
func (r *Runner) Download(ctx context.Context, req Request, hook Hook) error {
	args, err := r.Args(req)
	if err != nil {
		return err
	}

	ctxTO, cancel := context.WithTimeout(ctx, r.cfg.CmdTimeout())
	defer cancel()

	cmd := r.command(ctxTO, r.bin(), args...)
	cmd.Dir = req.Dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start yt-dlp: %v", ErrDownloadFailed, err)
	}

	var (
		hookErr  error
		finished bool
	)
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		ev, ok := ParseProgress(sc.Text())
		if !ok || hookErr != nil {
			continue
		}
		finished = finished || ev.Finished
		if err := hook(ev); err != nil {
			hookErr = err
			cancel()
		}
	}
	// дочитать stdout, иначе Wait может зависнуть
	_, _ = io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()

	if hookErr != nil {
		r.log.WithError(hookErr).WithField("url", req.URL).Warn("[yt-dlp] stopped by hook")
		return hookErr
	}
	if waitErr != nil {
		r.log.WithError(waitErr).WithField("url", req.URL).Error("[yt-dlp] download failed")
		return fmt.Errorf("%w: %v; stderr=%s", ErrDownloadFailed, waitErr, tail(stderr.String(), 400))
	}
	if !finished {
		return hook(progress.Event{Finished: true})
	}
	return nil
}

type rawProgress struct {
	Status             string   `json:"status"`
	DownloadedBytes    *int64   `json:"downloaded_bytes"`
	TotalBytes         *int64   `json:"total_bytes"`
	TotalBytesEstimate *float64 `json:"total_bytes_estimate"`
	Speed              *float64 `json:"speed"`
	ETA                *float64 `json:"eta"`
	Filename           string   `json:"filename"`
}

// ParseProgress — событие из строки stdout с маркером прогресса
func ParseProgress(line string) (progress.Event, bool) {
	i := strings.Index(line, progressMarker)
	if i < 0 {
		return progress.Event{}, false
	}
	var raw rawProgress
	if err := json.Unmarshal([]byte(line[i+len(progressMarker):]), &raw); err != nil {
		return progress.Event{}, false
	}
	ev := progress.Event{Finished: raw.Status == "finished"}
	if raw.Filename != "" {
		ev.Filename = filepath.Base(raw.Filename)
	}
	if raw.DownloadedBytes != nil {
		ev.Downloaded = *raw.DownloadedBytes
	}
	switch {
	case raw.TotalBytes != nil:
		ev.Total = *raw.TotalBytes
	case raw.TotalBytesEstimate != nil:
		ev.Total = int64(*raw.TotalBytesEstimate)
	}
	if ev.Finished && ev.Downloaded == 0 {
		ev.Downloaded = ev.Total
	}
	if raw.Speed != nil {
		ev.Speed = *raw.Speed
	}
	if raw.ETA != nil {
		ev.ETA = time.Duration(*raw.ETA * float64(time.Second))
	}
	return ev, true
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
