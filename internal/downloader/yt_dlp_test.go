package downloader

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytdl-inline-bot/internal/chat"
	"ytdl-inline-bot/internal/config"
	"ytdl-inline-bot/internal/logger"
	"ytdl-inline-bot/internal/progress"
)

func TestChoiceByID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		choice    string
		mediaType string
		yt        bool
		want      string
	}{
		{"mkv", "mkv", "v", true, "(bestvideo+bestaudio/best)[ext!=?webm][filesize<?1950M]"},
		{"mp4 youtube", "mp4", "v", true, "(bestvideo[ext=mp4]+(258/256/bestaudio[ext=m4a])/best[ext=mp4]/best[ext!=webm])[filesize<?1950M]"},
		{"mp4 generic", "mp4", "v", false, "(bestvideo[ext=?mp4]+bestaudio[ext=?m4a]/best[ext=?mp4]/best[ext!=?webm]/best)[filesize<?1950M]"},
		{"mp3", "mp3", "a", true, "320"},
		{"video id youtube", "137", "v", true, "(137+(258/256/bestaudio[ext=?m4a]/bestaudio)/best[ext=mp4]/best)[ext!=?webm][filesize<?1950M]"},
		{"video id generic", "hls-720", "v", false, "(hls-720+bestaudio/best[ext=?mp4]/best)[ext!=?webm][filesize<?1950M]"},
		{"audio bitrate", "128", "a", true, "128"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, disp := ChoiceByID(tc.choice, tc.mediaType, tc.yt, 0)
			assert.Equal(t, tc.want, got)
			assert.NotEmpty(t, disp)
		})
	}

	got, _ := ChoiceByID("mkv", "v", true, 500)
	assert.Contains(t, got, "[filesize<?500M]")
}

func TestParseProgress(t *testing.T) {
	t.Parallel()
	ev, ok := ParseProgress(`[iytdl-progress] {"status":"downloading","downloaded_bytes":1024,"total_bytes":4096,"speed":512.5,"eta":6,"filename":"/tmp/x/Song-251.webm"}`)
	require.True(t, ok)
	assert.Equal(t, int64(1024), ev.Downloaded)
	assert.Equal(t, int64(4096), ev.Total)
	assert.Equal(t, 512.5, ev.Speed)
	assert.Equal(t, 6*time.Second, ev.ETA)
	assert.Equal(t, "Song-251.webm", ev.Filename)
	assert.False(t, ev.Finished)

	ev, ok = ParseProgress(`[iytdl-progress] {"status":"finished","total_bytes_estimate":2048.7,"speed":null,"eta":null}`)
	require.True(t, ok)
	assert.True(t, ev.Finished)
	assert.Equal(t, int64(2048), ev.Downloaded)

	_, ok = ParseProgress("[download] Destination: x.mp4")
	assert.False(t, ok)
	_, ok = ParseProgress("[iytdl-progress] NA")
	assert.False(t, ok)
}

func TestArgs(t *testing.T) {
	t.Parallel()
	r := NewRunner(&config.Config{ExternalDownloader: "aria2c", ExternalDownloaderArgs: "-x 16", HTTPProxy: "socks5://p"}, logger.Discard())

	args, err := r.Args(Request{URL: "https://youtu.be/x", Format: "320", Kind: chat.KindAudio, Dir: "/d/k"})
	require.NoError(t, err)
	assert.Subset(t, args, []string{"-x", "--audio-format", "mp3", "--audio-quality", "320K", "--downloader", "aria2c", "--downloader-args", "aria2c:-x 16", "--proxy", "socks5://p"})
	assert.Equal(t, "https://youtu.be/x", args[len(args)-1])

	_, err = r.Args(Request{Kind: chat.KindDocument})
	assert.Error(t, err)
}

func scriptRunner(t *testing.T, script string) *Runner {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r := NewRunner(&config.Config{CmdTimeoutSec: 30}, logger.Discard())
	r.command = func(ctx context.Context, _ string, _ ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", script)
	}
	return r
}

func TestDownload_HookReceivesEvents(t *testing.T) {
	t.Parallel()
	r := scriptRunner(t, `
echo 'noise'
echo '[iytdl-progress] {"status":"downloading","downloaded_bytes":10,"total_bytes":100}'
echo '[iytdl-progress] {"status":"downloading","downloaded_bytes":100,"total_bytes":100}'
`)
	var events []progress.Event
	err := r.Download(context.Background(), Request{URL: "u", Format: "mkv", Kind: chat.KindVideo, Dir: t.TempDir()}, func(ev progress.Event) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.True(t, events[2].Finished, "synthetic finished event")
}

func TestDownload_StopFromHook(t *testing.T) {
	t.Parallel()
	r := scriptRunner(t, `
echo '[iytdl-progress] {"status":"downloading","downloaded_bytes":10,"total_bytes":100}'
exec sleep 10
`)
	start := time.Now()
	err := r.Download(context.Background(), Request{URL: "u", Format: "mkv", Kind: chat.KindVideo, Dir: t.TempDir()}, func(progress.Event) error {
		return progress.ErrStopTransmission
	})
	assert.ErrorIs(t, err, progress.ErrStopTransmission)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDownload_EngineFailure(t *testing.T) {
	t.Parallel()
	r := scriptRunner(t, `echo 'ERROR: Video unavailable' >&2; exit 1`)
	err := r.Download(context.Background(), Request{URL: "u", Format: "mkv", Kind: chat.KindVideo, Dir: t.TempDir()}, func(progress.Event) error { return nil })
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDownloadFailed))
	assert.Contains(t, err.Error(), "Video unavailable")
}

func TestExtractInfo(t *testing.T) {
	t.Parallel()
	r := scriptRunner(t, `echo '{"id":"abc","title":"T","_type":"playlist","entries":[{"formats":[{"format_id":"18","ext":"mp4","filesize_approx":2048}]}]}'`)
	info, err := r.ExtractInfo(context.Background(), "https://example.com/v")
	require.NoError(t, err)
	assert.Equal(t, "T", info.Title)
	formats := info.AllFormats()
	require.Len(t, formats, 1)
	assert.Equal(t, int64(2048), formats[0].Size())

	r = scriptRunner(t, `echo 'ERROR: Unsupported URL: https://example.com' >&2; exit 1`)
	_, err = r.ExtractInfo(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, ErrUnsupportedURL)
}
