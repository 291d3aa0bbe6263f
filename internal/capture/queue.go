package capture

import (
	"context"
	"sync"

	"github.com/nwehr/confab/pkg/audio"
)

// Queue buffers captured audio chunks between the capture goroutine and the
// transcription worker. Push never blocks and never drops: when transcription
// falls behind, the queue grows without bound rather than losing audio. The
// backlog is visible through Len so the orchestrator can report queue depth.
type Queue struct {
	mu     sync.Mutex
	items  []audio.Chunk
	closed bool

	// signal wakes one blocked Pop when an item arrives or the queue closes.
	signal chan struct{}
}

// NewQueue creates an empty open queue.
func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Push appends a chunk. It never blocks. Pushing to a closed queue is a
// silent no-op so a capture goroutine racing with shutdown needs no extra
// coordination.
func (q *Queue) Push(c audio.Chunk) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, c)
	q.mu.Unlock()
	q.wake()
}

// Pop removes and returns the oldest chunk. It blocks until a chunk is
// available, the queue is closed and drained (ok == false), or ctx is
// cancelled (ok == false with ctx.Err() pending for the caller to check).
func (q *Queue) Pop(ctx context.Context) (audio.Chunk, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			c := q.items[0]
			q.items = q.items[1:]
			remaining := len(q.items) > 0 || q.closed
			q.mu.Unlock()
			if remaining {
				q.wake()
			}
			return c, true
		}
		if q.closed {
			q.mu.Unlock()
			return audio.Chunk{}, false
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return audio.Chunk{}, false
		case <-q.signal:
		}
	}
}

// Close marks the queue closed. Chunks already queued remain available to
// Pop; once drained, Pop returns ok == false. Calling Close more than once is
// safe.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// Len returns the current backlog size.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
