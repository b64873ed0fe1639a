// Package hub fans out live codex output to dashboard subscribers.
package hub

import (
	"sort"
	"sync"
)

// DefaultBacklog is how many lines each run keeps for late subscribers.
const DefaultBacklog = 1000

// ring is a fixed-capacity line buffer that overwrites its oldest entry.
type ring struct {
	lines []string
	next  int
}

func (r *ring) push(line string) {
	if len(r.lines) < cap(r.lines) {
		r.lines = append(r.lines, line)
	} else {
		r.lines[r.next] = line
	}
	r.next = (r.next + 1) % cap(r.lines)
}

// snapshot returns the buffered lines oldest first.
func (r *ring) snapshot() []string {
	n := len(r.lines)
	out := make([]string, n)
	if n < cap(r.lines) || r.next == 0 {
		copy(out, r.lines)
		return out
	}
	copy(out, r.lines[r.next:])
	copy(out[n-r.next:], r.lines[:r.next])
	return out
}

type stream struct {
	backlog ring
	subs    map[chan string]struct{}
	closed  bool
}

// Hub keeps one stream per run id. Late subscribers replay the backlog
// before receiving live lines.
type Hub struct {
	mu      sync.Mutex
	backlog int
	streams map[int64]*stream
}

// New creates a Hub with the default backlog.
func New() *Hub {
	return NewWithBacklog(DefaultBacklog)
}

// NewWithBacklog creates a Hub that keeps n lines per run.
func NewWithBacklog(n int) *Hub {
	if n <= 0 {
		n = DefaultBacklog
	}
	return &Hub{backlog: n, streams: make(map[int64]*stream)}
}

// caller holds h.mu
func (h *Hub) stream(id int64) *stream {
	s, ok := h.streams[id]
	if !ok {
		s = &stream{
			backlog: ring{lines: make([]string, 0, h.backlog)},
			subs:    make(map[chan string]struct{}),
		}
		h.streams[id] = s
	}
	return s
}

// Open registers a run so subscribers that arrive before its first line
// wait for output instead of ending at once. Opening a known run is a no-op.
func (h *Hub) Open(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stream(id)
}

// Publish appends a line to the run's backlog and forwards it to every
// subscriber. Slow subscribers drop lines rather than block the run.
func (h *Hub) Publish(id int64, line string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.stream(id)
	if s.closed {
		return
	}
	s.backlog.push(line)
	for ch := range s.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

// Subscribe returns a channel primed with the backlog and an unsubscribe
// func. The channel is closed when the run ends; for an already finished
// run it is closed right after the backlog. Unknown runs get a closed
// channel and leave no trace in the hub.
func (h *Hub) Subscribe(id int64) (<-chan string, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.streams[id]
	if !ok {
		ch := make(chan string)
		close(ch)
		return ch, func() {}
	}
	ch := make(chan string, h.backlog+64)
	for _, line := range s.backlog.snapshot() {
		ch <- line
	}
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	s.subs[ch] = struct{}{}
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
		}
	}
}

// Close ends the run's stream. Later Publish calls are dropped and the
// backlog stays available until Remove.
func (h *Hub) Close(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.streams[id]
	if !ok || s.closed {
		return
	}
	s.closed = true
	for ch := range s.subs {
		close(ch)
	}
	s.subs = nil
}

// Remove drops the run and its backlog, closing any subscribers.
func (h *Hub) Remove(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.streams[id]
	if !ok {
		return
	}
	for ch := range s.subs {
		close(ch)
	}
	delete(h.streams, id)
}

// IsActive reports whether the run has a stream that is still open.
func (h *Hub) IsActive(id int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.streams[id]
	return ok && !s.closed
}

// Active returns the ids of open streams in ascending order.
func (h *Hub) Active() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	var ids []int64
	for id, s := range h.streams {
		if !s.closed {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Prune drops finished streams beyond the keep most recent ids and returns
// how many it removed. Open streams are never pruned.
func (h *Hub) Prune(keep int) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	var finished []int64
	for id, s := range h.streams {
		if s.closed {
			finished = append(finished, id)
		}
	}
	if len(finished) <= keep {
		return 0
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i] > finished[j] })
	for _, id := range finished[keep:] {
		delete(h.streams, id)
	}
	return len(finished) - keep
}
