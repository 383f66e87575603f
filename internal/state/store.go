package state

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// ProcessID — стабильный id передачи, выводится из редактируемого сообщения
type ProcessID string

// Registry — множество отменённых процессов.
// Живёт в одном экземпляре на процесс, передаётся явно.
type Registry struct {
	mu        sync.RWMutex
	cancelled map[ProcessID]time.Time
	ttl       time.Duration
}

func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Registry{cancelled: make(map[ProcessID]time.Time), ttl: ttl}
}

// Cancel — пометить процесс отменённым
func (r *Registry) Cancel(id ProcessID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled[id] = time.Now()
}

// Uncancel — снять отметку (вызывается по завершении передачи)
func (r *Registry) Uncancel(id ProcessID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancelled, id)
}

func (r *Registry) IsCancelled(id ProcessID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.cancelled[id]
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cancelled)
}

// StartGC — фоновая чистка забытых отметок старше ttl
func (r *Registry) StartGC(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				r.gc(time.Now())
			}
		}
	}()
}

func (r *Registry) gc(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, at := range r.cancelled {
		if now.Sub(at) > r.ttl {
			delete(r.cancelled, id)
			removed++
		}
	}
	return removed
}

// алфавит ключей: без цифр и 'z', как у исходных ключей кэша
var letters = []rune("_ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxy")

// GenerateToken — короткий случайный ключ для callback_data и папок загрузки
func GenerateToken(n int) string {
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
