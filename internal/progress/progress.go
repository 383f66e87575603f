package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"ytdl-inline-bot/internal/chat"
	"ytdl-inline-bot/internal/state"
)

// ErrStopTransmission — передача отменена пользователем
var ErrStopTransmission = errors.New("transmission stopped")

// DefaultEditRate — не чаще одной правки в 8 секунд
const DefaultEditRate = 8 * time.Second

type Mode string

const (
	ModeDownload Mode = "download"
	ModeUpload   Mode = "upload"
)

type Phase int

const (
	Idle Phase = iota
	Reporting
	Finalizing
	Done
)

// Event — событие прогресса от движка загрузки или от загрузчика в Telegram.
// Speed/ETA ноль, если источник их не знает.
type Event struct {
	Downloaded int64
	Total      int64
	Speed      float64
	ETA        time.Duration
	Finished   bool
	Filename   string
}

// Editor — правка сообщения с прогрессом
type Editor interface {
	EditText(ctx context.Context, t chat.Target, text string, markup *tgbotapi.InlineKeyboardMarkup) error
}

// Cancellation — чтение реестра отмен
type Cancellation interface {
	IsCancelled(id state.ProcessID) bool
}

type Options struct {
	Mode     Mode
	Filename string
	EditRate time.Duration
	Process  *state.Process
	Registry Cancellation
	Editor   Editor
	Log      *logrus.Entry
}

type edit struct {
	text   string
	markup *tgbotapi.InlineKeyboardMarkup
}

// Reporter — прогресс одной передачи.
// Hook вызывается синхронно из горутины движка и не делает I/O:
// текст уходит в канал на одно место (последний побеждает), правки делает одна горутина.
type Reporter struct {
	opts Options
	log  *logrus.Entry

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)

	mu         sync.Mutex
	phase      Phase
	closed     bool
	running    bool
	started    time.Time
	startBytes int64
	lastRender time.Time
	rendered   bool
	lastPct    int
	lastFile   string
	renders    int

	pending chan edit
	done    chan struct{}
}

func New(opts Options) *Reporter {
	if opts.EditRate <= 0 {
		opts.EditRate = DefaultEditRate
	}
	if opts.Mode == "" {
		opts.Mode = ModeDownload
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Reporter{
		opts:    opts,
		log:     log.WithFields(logrus.Fields{"process": opts.Process.ID, "mode": opts.Mode}),
		now:     time.Now,
		sleep:   sleepCtx,
		pending: make(chan edit, 1),
		done:    make(chan struct{}),
	}
}

// Start — запустить горутину правок
func (r *Reporter) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running || r.closed {
		return
	}
	r.running = true
	go r.editLoop(ctx)
}

// Close — дождаться последней правки; Hook после Close ничего не делает
func (r *Reporter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.pending)
	running := r.running
	r.mu.Unlock()

	if running {
		<-r.done
	}
	r.mu.Lock()
	r.phase = Done
	r.mu.Unlock()
}

func (r *Reporter) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Renders — сколько раз текст прогресса был принят к отправке
func (r *Reporter) Renders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renders
}

// Hook — обработка события: отмена, финал, затем троттлинг
func (r *Reporter) Hook(ev Event) error {
	if r.opts.Registry != nil && r.opts.Registry.IsCancelled(r.opts.Process.ID) {
		r.log.Warn("[progress] transfer cancelled")
		return ErrStopTransmission
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.phase == Finalizing {
		return nil
	}

	now := r.now()
	if r.phase == Idle {
		r.phase = Reporting
		r.started = now
		r.startBytes = ev.Downloaded
	}

	if ev.Finished {
		r.phase = Finalizing
		r.push(edit{text: finalText(r.opts.Mode), markup: r.finalMarkup()})
		return nil
	}

	if r.rendered && now.Sub(r.lastRender) < r.opts.EditRate {
		return nil
	}
	r.lastRender = now
	r.rendered = true

	if ev.Filename != r.lastFile {
		r.lastFile = ev.Filename
		r.lastPct = 0
	}
	st := r.stats(ev, now)
	if st.percent >= 0 {
		st.percent = max(st.percent, r.lastPct)
		r.lastPct = st.percent
	}

	markup := r.opts.Process.CancelMarkup()
	r.push(edit{text: render(r.opts.Mode, r.filename(ev), st), markup: &markup})
	return nil
}

func (r *Reporter) filename(ev Event) string {
	if ev.Filename != "" {
		return ev.Filename
	}
	return r.opts.Filename
}

func (r *Reporter) finalMarkup() *tgbotapi.InlineKeyboardMarkup {
	if r.opts.Mode == ModeUpload {
		return nil
	}
	m := r.opts.Process.CancelMarkup()
	return &m
}

// stats — скорость и ETA: из события, иначе по байтам с первого события
func (r *Reporter) stats(ev Event, now time.Time) stats {
	st := stats{current: ev.Downloaded, total: ev.Total, speed: ev.Speed, eta: ev.ETA, percent: -1}
	if st.speed <= 0 {
		if elapsed := now.Sub(r.started).Seconds(); elapsed > 0 {
			st.speed = float64(ev.Downloaded-r.startBytes) / elapsed
		}
	}
	if ev.Total > 0 {
		st.percent = percent(ev.Downloaded, ev.Total)
		if st.eta <= 0 && st.speed > 0 {
			st.eta = time.Duration(float64(ev.Total-ev.Downloaded)/st.speed+0.5) * time.Second
		}
	}
	return st
}

// push — положить правку, вытеснив неотправленную
func (r *Reporter) push(e edit) {
	r.renders++
	select {
	case r.pending <- e:
		return
	default:
	}
	select {
	case <-r.pending:
	default:
	}
	select {
	case r.pending <- e:
	default:
	}
}

func (r *Reporter) editLoop(ctx context.Context) {
	defer close(r.done)
	for e := range r.pending {
		if ctx.Err() != nil {
			continue
		}
		err := r.opts.Editor.EditText(ctx, r.opts.Process.Target, e.text, e.markup)
		var rl *chat.RateLimitError
		switch {
		case err == nil:
		case errors.As(err, &rl):
			r.log.WithField("retry_after", rl.RetryAfter).Warn("[progress] flood wait")
			r.sleep(ctx, rl.RetryAfter)
		case errors.Is(err, chat.ErrContentUnchanged):
		default:
			r.log.WithError(err).Error("[progress] unable to edit message")
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
