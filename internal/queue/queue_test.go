package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytdl-inline-bot/internal/transfer"
)

func TestQueue_FullAndDrain(t *testing.T) {
	t.Parallel()
	q := NewQueue(2, 1)
	require.NoError(t, q.Enqueue(Job{Request: transfer.Request{URL: "a"}}))
	require.NoError(t, q.Enqueue(Job{Request: transfer.Request{URL: "b"}}))
	assert.ErrorIs(t, q.Enqueue(Job{Request: transfer.Request{URL: "c"}}), ErrQueueFull)
	assert.Equal(t, 2, q.Len())

	ctx, cancel := context.WithCancel(context.Background())
	var done atomic.Int32
	q.Start(ctx, func(_ context.Context, j Job) {
		assert.False(t, j.RequestedAt.IsZero())
		done.Add(1)
	})
	require.Eventually(t, func() bool { return done.Load() == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	q.Wait()
	assert.Equal(t, 0, q.Len())
}
