package progress

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const barCells = 15

type stats struct {
	current int64
	total   int64
	speed   float64
	eta     time.Duration
	percent int // -1 — размер неизвестен
}

func percent(current, total int64) int {
	p := int(math.Round(float64(current) / float64(total) * 100))
	return min(max(p, 0), 100)
}

// Bar — полоса из 15 ячеек
func Bar(pct int) string {
	filled := barCells * min(max(pct, 0), 100) / 100
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", barCells-filled) + "]"
}

// TimeFormat — "1d 2h 3m 4s", минимум секунды
func TimeFormat(d time.Duration) string {
	secs := int64(d.Round(time.Second) / time.Second)
	if secs < 0 {
		secs = 0
	}
	var parts []string
	if days := secs / 86400; days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
		secs %= 86400
	}
	if h := secs / 3600; h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
		secs %= 3600
	}
	if m := secs / 60; m > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
		secs %= 60
	}
	if secs > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", secs))
	}
	return strings.Join(parts, " ")
}

func size(n int64) string {
	if n <= 0 {
		return "N/A"
	}
	return humanize.IBytes(uint64(n))
}

func finalText(mode Mode) string {
	if mode == ModeDownload {
		return "🔄  Download finished, Uploading..."
	}
	return fmt.Sprintf("<code>Finalizing %s process ...</code>", mode)
}

func render(mode Mode, filename string, st stats) string {
	verb := "Uploading"
	if mode == ModeDownload {
		verb = "Downloading"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<i>%s:</i>  <code>%s</code>\n", verb, filename)
	fmt.Fprintf(&b, "<b>Completed:</b>  <code>%s / %s</code>\n", size(st.current), size(st.total))
	if st.percent >= 0 {
		fmt.Fprintf(&b, "<b>Progress:</b>  <code>%s %d %%</code>\n", Bar(st.percent), st.percent)
	}
	speed, eta := "-", "-"
	if st.speed > 0 {
		speed = size(int64(st.speed)) + "/s"
	}
	if st.eta > 0 {
		eta = TimeFormat(st.eta)
	}
	fmt.Fprintf(&b, "<b>Speed:</b>  <code>%s</code>\n", speed)
	fmt.Fprintf(&b, "<b>ETA:</b>  <code>%s</code>", eta)
	return b.String()
}

// Reader — io.Reader, сообщающий прогресс чтения в hook.
// Ошибка hook (отмена) прерывает чтение.
type Reader struct {
	r     io.Reader
	total int64
	name  string
	hook  func(Event) error

	mu       sync.Mutex
	read     int64
	finished bool
}

func NewReader(r io.Reader, total int64, name string, hook func(Event) error) *Reader {
	return &Reader{r: r, total: total, name: name, hook: hook}
}

func (c *Reader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)

	c.mu.Lock()
	c.read += int64(n)
	ev := Event{Downloaded: c.read, Total: c.total, Filename: c.name}
	if !c.finished && (err == io.EOF || (c.total > 0 && c.read >= c.total)) {
		c.finished = true
		ev.Finished = true
	} else if n == 0 {
		c.mu.Unlock()
		return n, err
	}
	c.mu.Unlock()

	if herr := c.hook(ev); herr != nil {
		return n, herr
	}
	return n, err
}
