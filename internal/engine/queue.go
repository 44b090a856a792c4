package engine

import (
	"sync"
	"time"

	"github.com/MrWong99/duplex/pkg/audio"
)

// PlaybackQueue is a bounded FIFO of frames awaiting render. Producers never
// block: Enqueue on a full queue drops the incoming frame and reports false.
// A single consumer (the render thread) dequeues.
type PlaybackQueue struct {
	mu     sync.Mutex
	frames []audio.Frame
	head   int
	count  int

	// notify is signalled (non-blocking, cap 1) whenever a frame is enqueued.
	notify chan struct{}
}

// NewPlaybackQueue returns an empty queue holding at most capacity frames.
// A capacity below one is raised to one.
func NewPlaybackQueue(capacity int) *PlaybackQueue {
	return &PlaybackQueue{
		frames: make([]audio.Frame, max(capacity, 1)),
		notify: make(chan struct{}, 1),
	}
}

// Enqueue appends a copy of f. It returns false, leaving the queue
// unchanged, when the queue is full.
func (q *PlaybackQueue) Enqueue(f audio.Frame) bool {
	cp := f.Clone()
	q.mu.Lock()
	if q.count == len(q.frames) {
		q.mu.Unlock()
		return false
	}
	q.frames[(q.head+q.count)%len(q.frames)] = cp
	q.count++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes and returns the oldest frame without waiting.
func (q *PlaybackQueue) TryDequeue() (audio.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return nil, false
	}
	f := q.frames[q.head]
	q.frames[q.head] = nil
	q.head = (q.head + 1) % len(q.frames)
	q.count--
	return f, true
}

// Dequeue removes and returns the oldest frame, waiting at most timeout for
// one to arrive.
func (q *PlaybackQueue) Dequeue(timeout time.Duration) (audio.Frame, bool) {
	if f, ok := q.TryDequeue(); ok || timeout <= 0 {
		return f, ok
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.notify:
			if f, ok := q.TryDequeue(); ok {
				return f, true
			}
		case <-timer.C:
			return q.TryDequeue()
		}
	}
}

// Clear drops every queued frame and returns how many were dropped.
func (q *PlaybackQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.count
	clear(q.frames)
	q.head = 0
	q.count = 0
	return n
}

// Len returns the number of queued frames.
func (q *PlaybackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the queue capacity in frames.
func (q *PlaybackQueue) Cap() int {
	return len(q.frames)
}
