package miniaudio

import "sync"

// ring is a fixed-capacity FIFO of samples shared between a device callback
// and a Go-side reader or writer. All methods are safe for concurrent use.
type ring struct {
	mu      sync.Mutex
	buf     []int16
	readPos int
	count   int

	// notEmpty is signalled whenever samples are added or the ring is closed.
	notEmpty *sync.Cond
	closed   bool
	dropped  int
}

func newRing(capacity int) *ring {
	r := &ring{buf: make([]int16, capacity)}
	r.notEmpty = sync.NewCond(&r.mu)
	return r
}

// write appends samples. When overwrite is true the oldest samples are
// discarded to make room; otherwise excess samples are discarded. Returns
// the number of input samples stored.
func (r *ring) write(samples []int16, overwrite bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0
	}
	size := len(r.buf)
	written := 0
	for _, s := range samples {
		if r.count == size {
			if !overwrite {
				r.dropped += len(samples) - written
				break
			}
			r.readPos = (r.readPos + 1) % size
			r.count--
			r.dropped++
		}
		r.buf[(r.readPos+r.count)%size] = s
		r.count++
		written++
	}
	if written > 0 {
		r.notEmpty.Signal()
	}
	return written
}

// readAvailable copies up to len(out) samples without blocking and
// zero-fills the remainder. Returns the number of real samples copied.
func (r *ring) readAvailable(out []int16) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.take(out)
	clear(out[n:])
	return n
}

// readBlocking waits until at least one sample is available, then copies up
// to len(out). Returns false once the ring is closed.
func (r *ring) readBlocking(out []int16) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.count == 0 && !r.closed {
		r.notEmpty.Wait()
	}
	if r.closed {
		return 0, false
	}
	return r.take(out), true
}

// take must be called with r.mu held.
func (r *ring) take(out []int16) int {
	n := min(len(out), r.count)
	size := len(r.buf)
	for i := range n {
		out[i] = r.buf[(r.readPos+i)%size]
	}
	r.readPos = (r.readPos + n) % size
	r.count -= n
	return n
}

func (r *ring) close() {
	r.mu.Lock()
	r.closed = true
	r.notEmpty.Broadcast()
	r.mu.Unlock()
}

// droppedSamples returns how many samples were discarded on overflow.
func (r *ring) droppedSamples() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *ring) closedState() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
