package progress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytdl-inline-bot/internal/chat"
	"ytdl-inline-bot/internal/state"
)

type fakeEditor struct {
	mu    sync.Mutex
	texts []string
	marks []*tgbotapi.InlineKeyboardMarkup
	errs  []error
}

func (f *fakeEditor) EditText(_ context.Context, _ chat.Target, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	f.marks = append(f.marks, markup)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

func (f *fakeEditor) Texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type harness struct {
	rep    *Reporter
	editor *fakeEditor
	reg    *state.Registry
	proc   *state.Process
	clock  time.Time
	slept  []time.Duration
	hook   *logtest.Hook
}

func newHarness(t *testing.T, mode Mode) *harness {
	t.Helper()
	log, hook := logtest.NewNullLogger()
	h := &harness{
		editor: &fakeEditor{},
		reg:    state.NewRegistry(time.Hour),
		proc:   &state.Process{ID: "10.20", Target: chat.Target{ChatID: 10, MessageID: 20}},
		clock:  time.Unix(1_700_000_000, 0),
		hook:   hook,
	}
	h.rep = New(Options{
		Mode:     mode,
		Filename: "video.mp4",
		EditRate: 8 * time.Second,
		Process:  h.proc,
		Registry: h.reg,
		Editor:   h.editor,
		Log:      logrus.NewEntry(log),
	})
	h.rep.now = func() time.Time { return h.clock }
	h.rep.sleep = func(_ context.Context, d time.Duration) { h.slept = append(h.slept, d) }
	return h
}

var pctRe = regexp.MustCompile(`(\d+) %`)

func TestHook_ThrottleAndMonotonicPercent(t *testing.T) {
	t.Parallel()
	h := newHarness(t, ModeDownload)
	h.rep.Start(context.Background())

	const total = 20 * 1024 * 1024
	for sec := 0; sec <= 20; sec++ {
		err := h.rep.Hook(Event{Downloaded: int64(sec) * 1024 * 1024, Total: total})
		require.NoError(t, err)
		h.clock = h.clock.Add(time.Second)
	}
	h.rep.Close()

	assert.LessOrEqual(t, h.rep.Renders(), 20/8+1+1)
	assert.Equal(t, 3, h.rep.Renders(), "renders at t=0, 8, 16")

	last := -1
	for _, text := range h.editor.Texts() {
		m := pctRe.FindStringSubmatch(text)
		require.NotNil(t, m, text)
		p, _ := strconv.Atoi(m[1])
		assert.GreaterOrEqual(t, p, last)
		last = p
	}
	assert.Equal(t, Done, h.rep.Phase())
}

func TestHook_CancelledStops(t *testing.T) {
	t.Parallel()
	h := newHarness(t, ModeDownload)
	h.rep.Start(context.Background())
	defer h.rep.Close()

	require.NoError(t, h.rep.Hook(Event{Downloaded: 1, Total: 10}))
	h.reg.Cancel(h.proc.ID)

	err := h.rep.Hook(Event{Downloaded: 2, Total: 10})
	assert.ErrorIs(t, err, ErrStopTransmission)
	assert.True(t, h.reg.IsCancelled(h.proc.ID))
	assert.Equal(t, logrus.WarnLevel, h.hook.LastEntry().Level)
}

func TestHook_FinishedOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, ModeUpload)
	h.rep.Start(context.Background())

	require.NoError(t, h.rep.Hook(Event{Downloaded: 5, Total: 10}))
	require.NoError(t, h.rep.Hook(Event{Downloaded: 10, Total: 10, Finished: true}))
	require.NoError(t, h.rep.Hook(Event{Downloaded: 10, Total: 10, Finished: true}))
	h.clock = h.clock.Add(time.Minute)
	require.NoError(t, h.rep.Hook(Event{Downloaded: 10, Total: 10}))
	assert.Equal(t, Finalizing, h.rep.Phase())
	h.rep.Close()

	texts := h.editor.Texts()
	require.NotEmpty(t, texts)
	assert.Equal(t, "<code>Finalizing upload process ...</code>", texts[len(texts)-1])
	assert.Nil(t, h.editor.marks[len(h.editor.marks)-1])
	assert.Equal(t, 2, h.rep.Renders())
}

func TestHook_UnknownTotal(t *testing.T) {
	t.Parallel()
	h := newHarness(t, ModeDownload)
	h.rep.Start(context.Background())
	require.NoError(t, h.rep.Hook(Event{Downloaded: 2048, Speed: 1024, Filename: "clip.webm"}))
	h.rep.Close()

	texts := h.editor.Texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "2.0 KiB / N/A")
	assert.Contains(t, texts[0], "clip.webm")
	assert.NotContains(t, texts[0], "Progress:")
	assert.Contains(t, texts[0], "1.0 KiB/s")

	mark := h.editor.marks[0]
	require.NotNil(t, mark)
	assert.Equal(t, "yt_cancel|10.20", *mark.InlineKeyboard[0][0].CallbackData)
}

func TestEditLoop_AbsorbsTransientErrors(t *testing.T) {
	t.Parallel()
	h := newHarness(t, ModeDownload)
	h.editor.errs = []error{
		&chat.RateLimitError{RetryAfter: 5 * time.Second},
		fmt.Errorf("%w: same text", chat.ErrContentUnchanged),
		errors.New("boom"),
	}
	h.rep.Start(context.Background())

	for i := 0; i < 3; i++ {
		require.NoError(t, h.rep.Hook(Event{Downloaded: int64(i + 1), Total: 10}))
		// ждём, пока правка уйдёт, иначе следующая её вытеснит
		require.Eventually(t, func() bool { return len(h.editor.Texts()) == i+1 }, time.Second, time.Millisecond)
		h.clock = h.clock.Add(9 * time.Second)
	}
	h.rep.Close()

	assert.Equal(t, []time.Duration{5 * time.Second}, h.slept)
	var errorsLogged int
	for _, e := range h.hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			errorsLogged++
		}
	}
	assert.Equal(t, 1, errorsLogged)
}

func TestClose_WithoutStart(t *testing.T) {
	t.Parallel()
	h := newHarness(t, ModeDownload)
	require.NoError(t, h.rep.Hook(Event{Downloaded: 1, Total: 2}))
	h.rep.Close()
	h.rep.Close()
	assert.NoError(t, h.rep.Hook(Event{Downloaded: 2, Total: 2}))
	assert.Equal(t, Done, h.rep.Phase())
}

func TestTimeFormat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{59 * time.Second, "59s"},
		{time.Hour, "1h"},
		{26*time.Hour + 3*time.Minute + 4*time.Second, "1d 2h 3m 4s"},
		{90 * time.Second, "1m 30s"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, TimeFormat(tc.in), tc.in.String())
	}
}

func TestBar(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "["+strings.Repeat("░", 15)+"]", Bar(0))
	assert.Equal(t, "["+strings.Repeat("█", 15)+"]", Bar(100))
	assert.Equal(t, "["+strings.Repeat("█", 4)+strings.Repeat("░", 11)+"]", Bar(33))
}

func TestReader_ReportsAndStops(t *testing.T) {
	t.Parallel()
	var events []Event
	r := NewReader(strings.NewReader(strings.Repeat("x", 100)), 100, "a.mp3", func(ev Event) error {
		events = append(events, ev)
		return nil
	})
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Len(t, data, 100)
	require.NotEmpty(t, events)
	finished := 0
	for _, ev := range events {
		if ev.Finished {
			finished++
			assert.Equal(t, int64(100), ev.Downloaded)
		}
	}
	assert.Equal(t, 1, finished)

	stop := NewReader(strings.NewReader("abcdef"), 6, "b", func(Event) error { return ErrStopTransmission })
	_, err = io.ReadAll(stop)
	assert.ErrorIs(t, err, ErrStopTransmission)
}

func TestStats_EngineSpeedWinsOverAverage(t *testing.T) {
	t.Parallel()
	h := newHarness(t, ModeDownload)
	h.rep.started = h.clock
	h.rep.startBytes = 1024
	now := h.clock.Add(4 * time.Second)

	// среднее с первого события
	st := h.rep.stats(Event{Downloaded: 5120, Total: 9216}, now)
	assert.InDelta(t, 1024, st.speed, 0.001)
	assert.Equal(t, 4*time.Second, st.eta)

	// скорость движка берётся как есть
	st = h.rep.stats(Event{Downloaded: 5120, Total: 9216, Speed: 2048}, now)
	assert.InDelta(t, 2048, st.speed, 0.001)
	assert.Equal(t, 2*time.Second, st.eta)
}
