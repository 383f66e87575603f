package search

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ytdl-inline-bot/internal/downloader"
	"ytdl-inline-bot/internal/files"
	"ytdl-inline-bot/internal/paging"
)

// InfoExtractor — метаданные по ссылке (yt-dlp -J)
type InfoExtractor interface {
	ExtractInfo(ctx context.Context, url string) (*downloader.Info, error)
}

var qualities = []string{"1440p", "1080p", "720p", "480p", "360p", "240p", "144p"}

const maxGenericFormats = 25

func button(text, data string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(text, data)
}

func sizeOrNA(n int64) string {
	if s := files.HumanSize(n); s != "" {
		return s
	}
	return "N/A"
}

// DownloadButtons — варианты загрузки ролика YouTube:
// лучшие mkv/mp4, mp4 по разрешениям, mp3 320 и аудио по битрейтам
func (s *Service) DownloadButtons(ctx context.Context, ytID string) *Result {
	rows := [][]tgbotapi.InlineKeyboardButton{{
		button("⭐️ BEST - 📹 MKV", fmt.Sprintf("yt_dl|%s|mkv|v", ytID)),
		button("⭐️ BEST - 📹 MP4", fmt.Sprintf("yt_dl|%s|mp4|v", ytID)),
	}}
	bestAudio := []tgbotapi.InlineKeyboardButton{
		button("⭐️ BEST - 🎵 320Kbps - MP3", fmt.Sprintf("yt_dl|%s|mp3|a", ytID)),
	}

	info, err := s.extractor.ExtractInfo(ctx, paging.VideoURL+ytID)
	if err != nil {
		s.log.WithError(err).WithField("yt_id", ytID).Warn("[search] extract info failed")
		rows = append(rows, bestAudio)
		return &Result{Key: ytID, ImageURL: s.defaultThumb, Buttons: tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}}
	}

	// разрешение -> format_id -> размер
	byQuality := map[string]map[string]int64{}
	audio := map[int]string{}
	for _, f := range info.Formats {
		if f.Ext == "mp4" {
			for _, q := range qualities {
				if f.FormatNote == q || f.FormatNote == q+"60" {
					if byQuality[q] == nil {
						byQuality[q] = map[string]int64{}
					}
					byQuality[q][f.FormatID] = f.Size()
				}
			}
		}
		if f.ACodec != "none" && f.ACodec != "" {
			if abr := int(f.ABR); abr != 0 {
				audio[abr] = fmt.Sprintf("🎵 %dKbps (%s)", abr, sizeOrNA(f.Size()))
			}
		}
	}

	var video []tgbotapi.InlineKeyboardButton
	for _, q := range qualities {
		ids := byQuality[q]
		if len(ids) == 0 {
			continue
		}
		keys := make([]string, 0, len(ids))
		for id := range ids {
			keys = append(keys, id)
		}
		sort.Strings(keys)
		id := keys[len(keys)-1]
		video = append(video, button(fmt.Sprintf("📹 %s (%s)", q, sizeOrNA(ids[id])), fmt.Sprintf("yt_dl|%s|%s|v", ytID, id)))
	}
	rows = append(rows, sublists(video, 2)...)
	rows = append(rows, bestAudio)

	bitrates := make([]int, 0, len(audio))
	for abr := range audio {
		bitrates = append(bitrates, abr)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(bitrates)))
	var audioBtns []tgbotapi.InlineKeyboardButton
	for _, abr := range bitrates {
		audioBtns = append(audioBtns, button(audio[abr], fmt.Sprintf("yt_dl|%s|%d|a", ytID, abr)))
	}
	rows = append(rows, sublists(audioBtns, 2)...)

	image := info.Thumbnail
	if image == "" {
		image = s.defaultThumb
	}
	return &Result{
		Key:      ytID,
		Caption:  fmt.Sprintf("<a href=\"%s%s\">%s</a>", paging.VideoURL, ytID, html.EscapeString(info.Title)),
		ImageURL: image,
		Buttons:  tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows},
	}
}

// GenericExtract — варианты загрузки для ссылки не с YouTube.
// nil, если сайт не поддерживается.
func (s *Service) GenericExtract(ctx context.Context, key, url string) *Result {
	rows := [][]tgbotapi.InlineKeyboardButton{{
		button("⭐️ BEST - 📹 Video", fmt.Sprintf("yt_gen|%s|mp4|v", key)),
		button("⭐️ BEST - 🎧 Audio", fmt.Sprintf("yt_gen|%s|mp3|a", key)),
	}}
	log := s.log.WithField("url", url)

	info, err := s.extractor.ExtractInfo(ctx, url)
	if errors.Is(err, downloader.ErrUnsupportedURL) {
		log.Error("[search] url is not supported")
		return nil
	}
	if err != nil {
		log.WithError(err).Warn("[search] failed to extract info")
		return &Result{Key: key, Caption: "[No Information]", ImageURL: s.defaultThumb, Buttons: tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}}
	}

	title := info.Title
	if title == "" {
		title = "[No Title]"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b><a href=\"%s\">%s</a></b>\n", html.EscapeString(url), html.EscapeString(title))
	if d := info.Description; d != "" {
		if r := []rune(d); len(r) > 380 {
			d = string(r[:380]) + "..."
		}
		fmt.Fprintf(&b, "<pre>%s</pre>\n", html.EscapeString(d))
	}
	if info.Duration > 0 {
		b.WriteString(paging.FormatLine("Duration", ClockDuration(time.Duration(info.Duration*float64(time.Second)))) + "\n")
	}
	if info.Uploader != "" {
		b.WriteString(paging.FormatLine("Uploader", html.EscapeString(info.Uploader)) + "\n")
	}

	var fmtBtns []tgbotapi.InlineKeyboardButton
	for _, f := range FilterGenericFormats(info.AllFormats()) {
		var parts []string
		for _, p := range []string{f.Format, f.Ext, files.HumanSize(f.Filesize)} {
			if p != "" {
				parts = append(parts, p)
			}
		}
		fmtBtns = append(fmtBtns, button(strings.Join(parts, " | "), fmt.Sprintf("yt_gen|%s|%s|v", key, f.FormatID)))
	}
	rows = append(rows, sublists(fmtBtns, 1)...)

	caption := b.String()
	if r := []rune(caption); len(r) > 1020 {
		caption = string(r[:1020])
	}
	image := info.Thumbnail
	if image == "" {
		image = s.defaultThumb
	}
	return &Result{Key: key, Caption: caption, ImageURL: image, Buttons: tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}}
}

// FilterGenericFormats — по убыванию битрейта, со звуком, по одному на ширину, до 25.
// Если отфильтровалось меньше двух, возвращаются все форматы.
func FilterGenericFormats(raw []downloader.Format) []downloader.Format {
	sorted := append([]downloader.Format(nil), raw...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TBR > sorted[j].TBR })

	widths := map[int]bool{}
	var out []downloader.Format
	for _, f := range sorted {
		if f.TBR == 0 || f.ACodec == "" || f.Width == 0 || widths[f.Width] {
			continue
		}
		widths[f.Width] = true
		out = append(out, f)
		if len(out) == maxGenericFormats {
			break
		}
	}
	if len(out) > 1 {
		return out
	}
	return raw
}
