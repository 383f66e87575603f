package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"ytdl-inline-bot/internal/transfer"
)

// ErrQueueFull — очередь заполнена, задача не принята
var ErrQueueFull = errors.New("queue is full")

// Job — задача на передачу

type Job struct {
	Request     transfer.Request
	CallbackID  string
	RequestedAt time.Time
}

// Queue — ограниченная очередь с воркерами

type Queue struct {
	ch      chan Job
	workers int
	wg      sync.WaitGroup
}

func NewQueue(capacity, workers int) *Queue {
	if capacity <= 0 {
		capacity = 100
	}
	if workers <= 0 {
		workers = 2
	}
	return &Queue{ch: make(chan Job, capacity), workers: workers}
}

// Enqueue — поставить задачу без ожидания
func (q *Queue) Enqueue(j Job) error {
	if j.RequestedAt.IsZero() {
		j.RequestedAt = time.Now()
	}
	select {
	case q.ch <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len — задач в ожидании
func (q *Queue) Len() int { return len(q.ch) }

func (q *Queue) Start(ctx context.Context, worker func(ctx context.Context, job Job)) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-q.ch:
					worker(ctx, j)
				}
			}
		}()
	}
}

// Wait — дождаться остановки воркеров после отмены ctx
func (q *Queue) Wait() { q.wg.Wait() }
