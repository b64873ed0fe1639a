package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const pageSize = 50

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/runs", http.StatusFound)
}

// handleRuns renders the run list, newest first.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.history.ListRuns(pageSize, 0)
	if err != nil {
		http.Error(w, "database error", http.StatusInternalServerError)
		return
	}
	views := ToRunViews(runs)
	for i := range views {
		views[i].Live = s.live(views[i].ID)
	}
	s.render(w, "runs.html", "Runs", struct{ Runs []RunView }{Runs: views})
}

// handleRun renders one run with its output as markdown.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid run ID", http.StatusBadRequest)
		return
	}
	run, err := s.history.GetRun(id)
	if err != nil {
		http.Error(w, "database error", http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.NotFound(w, r)
		return
	}
	view := ToRunView(*run)
	view.Live = s.live(id)
	s.render(w, "run.html", fmt.Sprintf("Run %d", id), view)
}

// handleRunStream relays live codex output for a run as server-sent
// events. A finished run replays whatever backlog the hub still holds and
// ends with a done event.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid run ID", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// A long retry keeps a reconnect from replaying the backlog as
	// duplicate output.
	_, _ = fmt.Fprint(w, "retry: 30000\n\n")
	flusher.Flush()

	if s.streams == nil {
		_, _ = fmt.Fprintf(w, "event: done\ndata: run %d: live output unavailable\n\n", id)
		flusher.Flush()
		return
	}

	ch, unsubscribe := s.streams.Subscribe(id)
	defer unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-ch:
			if !ok {
				_, _ = fmt.Fprint(w, "event: done\ndata: run complete\n\n")
				flusher.Flush()
				return
			}
			writeEvent(w, line)
			flusher.Flush()
		}
	}
}

// writeEvent writes one SSE message. Embedded newlines become separate
// data fields so the client sees the original text.
func writeEvent(w http.ResponseWriter, line string) {
	for _, part := range strings.Split(line, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", part)
	}
	_, _ = fmt.Fprint(w, "\n")
}

func (s *Server) live(id int64) bool {
	return s.streams != nil && s.streams.IsActive(id)
}
