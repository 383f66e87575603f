package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"ytdl-inline-bot/internal/chat"
	"ytdl-inline-bot/internal/config"
	"ytdl-inline-bot/internal/files"
)

// Media — готовый к загрузке файл с метаданными
type Media struct {
	Kind      chat.Kind
	Path      string
	FileName  string
	Size      int64
	Thumb     string
	Duration  int
	Width     int
	Height    int
	Performer string
	Title     string
}

// Metadata — то, что отдаёт ffprobe
type Metadata struct {
	Duration float64
	Width    int
	Height   int
	Title    string
	Artist   string
}

type commandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// Prober — поиск файла в папке передачи и извлечение метаданных через ffprobe/ffmpeg
type Prober struct {
	cfg     *config.Config
	log     *logrus.Entry
	command commandFunc
	timeout time.Duration
}

func NewProber(cfg *config.Config, log *logrus.Entry) *Prober {
	return &Prober{cfg: cfg, log: log, command: exec.CommandContext, timeout: 2 * time.Minute}
}

func (p *Prober) ffmpeg() string {
	if p.cfg.FFmpegPath != "" {
		return p.cfg.FFmpegPath
	}
	return "ffmpeg"
}

func (p *Prober) ffprobe() string {
	if p.cfg.FFprobePath != "" {
		return p.cfg.FFprobePath
	}
	return "ffprobe"
}

// Inspect — медиафайл, превью и метаданные из папки передачи.
// Ошибки ffprobe/ffmpeg не фатальны: файл загрузится без них.
func (p *Prober) Inspect(ctx context.Context, dir string, kind chat.Kind) (*Media, error) {
	found, err := files.FindMedia(dir, kind, p.cfg.MaxUploadBytes)
	if err != nil {
		return nil, err
	}
	m := &Media{Kind: kind, Path: found.Path, FileName: found.FileName, Size: found.Size}
	log := p.log.WithField("file", found.FileName)

	if found.Thumb != "" {
		if thumb, err := p.ToJPEG(ctx, found.Thumb); err == nil {
			m.Thumb = thumb
		} else {
			log.WithError(err).Warn("[media] thumbnail conversion failed")
		}
	}

	meta, err := p.Probe(ctx, found.Path)
	if err != nil {
		log.WithError(err).Warn("[media] ffprobe failed")
		meta = &Metadata{}
	}
	m.Duration = int(meta.Duration)

	switch kind {
	case chat.KindAudio:
		m.Performer, m.Title = meta.Artist, meta.Title
		if m.Thumb == "" {
			if art, err := p.AlbumArt(ctx, found.Path); err == nil {
				m.Thumb = art
			}
		}
	case chat.KindVideo:
		m.Width, m.Height = meta.Width, meta.Height
		if m.Width == 0 || m.Height == 0 {
			m.Width, m.Height = 1280, 720
		}
		if m.Thumb == "" {
			if shot, err := p.Screenshot(ctx, found.Path, m.Duration/2); err == nil {
				m.Thumb = shot
			} else {
				log.WithError(err).Warn("[media] screenshot failed")
			}
		}
	}
	return m, nil
}

func (p *Prober) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctxTO, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	cmd := p.command(ctxTO, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", filepath.Base(name), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

type probeOutput struct {
	Format struct {
		Duration string            `json:"duration"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe — длительность, размеры и теги файла
func (p *Prober) Probe(ctx context.Context, path string) (*Metadata, error) {
	out, err := p.run(ctx, p.ffprobe(), "-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path)
	if err != nil {
		return nil, err
	}
	return ParseProbe(out)
}

// ParseProbe — разбор JSON вывода ffprobe
func ParseProbe(data []byte) (*Metadata, error) {
	var raw probeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode ffprobe: %w", err)
	}
	meta := &Metadata{}
	if d, err := strconv.ParseFloat(raw.Format.Duration, 64); err == nil {
		meta.Duration = d
	}
	for k, v := range raw.Format.Tags {
		switch strings.ToLower(k) {
		case "title":
			meta.Title = v
		case "artist":
			meta.Artist = v
		}
	}
	for _, s := range raw.Streams {
		if s.CodecType == "video" && s.Width > 0 {
			meta.Width, meta.Height = s.Width, s.Height
			break
		}
	}
	return meta, nil
}

// Screenshot — кадр на секунде at рядом с видео
func (p *Prober) Screenshot(ctx context.Context, video string, at int) (string, error) {
	out := strings.TrimSuffix(video, filepath.Ext(video)) + ".jpg"
	_, err := p.run(ctx, p.ffmpeg(), "-hide_banner", "-loglevel", "error", "-y",
		"-ss", strconv.Itoa(at), "-i", video, "-vframes", "1", out)
	if err != nil {
		return "", err
	}
	if !files.Exists(out) {
		return "", fmt.Errorf("screenshot %s not created", out)
	}
	return out, nil
}

// AlbumArt — встроенная обложка аудио в album_art.jpg
func (p *Prober) AlbumArt(ctx context.Context, audio string) (string, error) {
	out := filepath.Join(filepath.Dir(audio), "album_art.jpg")
	_, err := p.run(ctx, p.ffmpeg(), "-hide_banner", "-loglevel", "error", "-y",
		"-i", audio, "-an", "-c:v", "mjpeg", "-vframes", "1", out)
	if err != nil {
		return "", err
	}
	if !files.Exists(out) {
		return "", fmt.Errorf("album art %s not created", out)
	}
	return out, nil
}

// ToJPEG — превью в jpeg; jpg/jpeg возвращаются как есть
func (p *Prober) ToJPEG(ctx context.Context, img string) (string, error) {
	if files.IsJPEG(img) {
		return img, nil
	}
	out := strings.TrimSuffix(img, filepath.Ext(img)) + ".jpeg"
	if _, err := p.run(ctx, p.ffmpeg(), "-hide_banner", "-loglevel", "error", "-y", "-i", img, out); err != nil {
		return "", err
	}
	return out, nil
}
