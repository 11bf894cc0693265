package faultlog

import "sync"

// ring is a fixed-capacity FIFO buffer of entries. Appending to a full ring
// evicts the oldest entry.
type ring struct {
	mu    sync.Mutex
	buf   []Entry
	start int
	count int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Entry, capacity)}
}

func (r *ring) append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

// snapshot returns up to n buffered entries in order of arrival, oldest
// first. n <= 0 returns everything buffered. When n is smaller than the
// buffered count, the newest n entries are returned.
func (r *ring) snapshot(n int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]Entry, n)
	first := r.start + (r.count - n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(first+i)%len(r.buf)]
	}
	return out
}

func (r *ring) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *ring) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf = make([]Entry, len(r.buf))
	r.start, r.count = 0, 0
}
