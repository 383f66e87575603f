package downloader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Format — один формат из вывода yt-dlp -J
type Format struct {
	FormatID       string  `json:"format_id"`
	Format         string  `json:"format"`
	FormatNote     string  `json:"format_note"`
	Ext            string  `json:"ext"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
	TBR            float64 `json:"tbr"`
	ABR            float64 `json:"abr"`
	ACodec         string  `json:"acodec"`
	VCodec         string  `json:"vcodec"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
}

// Size — точный размер, иначе оценка
func (f Format) Size() int64 {
	if f.Filesize > 0 {
		return f.Filesize
	}
	return f.FilesizeApprox
}

// Info — метаданные ролика/страницы
type Info struct {
	ID          string   `json:"id"`
	Type        string   `json:"_type"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Duration    float64  `json:"duration"`
	Uploader    string   `json:"uploader"`
	Thumbnail   string   `json:"thumbnail"`
	WebpageURL  string   `json:"webpage_url"`
	Formats     []Format `json:"formats"`
	Entries     []Info   `json:"entries"`
}

// AllFormats — форматы ролика или первого элемента плейлиста
func (i *Info) AllFormats() []Format {
	if len(i.Formats) > 0 {
		return i.Formats
	}
	if i.Type == "playlist" && len(i.Entries) > 0 {
		return i.Entries[0].Formats
	}
	return nil
}

// ExtractInfo — yt-dlp -J без загрузки
func (r *Runner) ExtractInfo(ctx context.Context, url string) (*Info, error) {
	args := append([]string{"-J", "--no-playlist", "--no-warnings"}, r.commonArgs()...)
	args = append(args, url)

	ctxTO, cancel := context.WithTimeout(ctx, r.cfg.CmdTimeout())
	defer cancel()

	cmd := r.command(ctxTO, r.bin(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		log := r.log.WithField("url", url)
		if strings.Contains(msg, "Unsupported URL") {
			log.Error("[yt-dlp] url is not supported")
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedURL, url)
		}
		log.WithError(err).Warn("[yt-dlp] failed to extract info")
		return nil, fmt.Errorf("%w: %s", ErrExtraction, tail(msg, 400))
	}

	var info Info
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrExtraction, err)
	}
	return &info, nil
}
