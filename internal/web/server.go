// Package web serves a read-only dashboard of pipeline runs: a run list,
// a run page with rendered output, live codex output over SSE and a small
// JSON API.
package web

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/teabranch/agentic-developer-mcp/internal/config"
	"github.com/teabranch/agentic-developer-mcp/internal/db"
	"github.com/teabranch/agentic-developer-mcp/internal/pipeline"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// History reads recorded runs. *db.DB satisfies it.
type History interface {
	GetRun(id int64) (*db.Run, error)
	ListRuns(limit, offset int) ([]db.Run, error)
}

// Streams subscribes to live run output. *hub.Hub satisfies it.
type Streams interface {
	Subscribe(id int64) (<-chan string, func())
	IsActive(id int64) bool
}

// Developer starts runs from the API. *pipeline.Pipeline satisfies it.
// Begin records the run synchronously so its id can be returned before
// Execute runs in the background.
type Developer interface {
	Begin(req pipeline.Request) pipeline.Ticket
	Execute(ctx context.Context, req pipeline.Request, t pipeline.Ticket) string
}

// Option configures optional Server features.
type Option func(*Server)

// WithDeveloper enables POST /api/v1/runs.
func WithDeveloper(d Developer) Option {
	return func(s *Server) { s.developer = d }
}

// Server holds the dashboard handlers.
type Server struct {
	history   History
	streams   Streams
	developer Developer
	tmpl      *template.Template
	md        goldmark.Markdown

	// baseCtx bounds runs started from the API.
	baseCtx context.Context
	cancel  context.CancelFunc
	runs    sync.WaitGroup
}

// New creates the dashboard. streams may be nil, in which case live
// output is unavailable.
func New(history History, streams Streams, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		history: history,
		streams: streams,
		md:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
		baseCtx: ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.parseTemplates()
	return s
}

// Register adds the dashboard routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	staticSub, _ := fs.Sub(staticFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /runs", s.handleRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleRun)
	mux.HandleFunc("GET /runs/{id}/stream", s.handleRunStream)

	mux.HandleFunc("GET /api/v1/health", s.handleAPIHealth)
	mux.HandleFunc("GET /api/v1/runs", s.handleAPIListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.handleAPIGetRun)
	mux.HandleFunc("POST /api/v1/runs", s.handleAPICreateRun)
}

// Handler returns a mux serving only the dashboard.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// Shutdown cancels runs started from the API and waits for them, or for
// ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) parseTemplates() {
	funcMap := template.FuncMap{
		"fmtTimePtr": func(t *time.Time) string {
			if t == nil {
				return "--"
			}
			return t.Format("2006-01-02 15:04:05 UTC")
		},
		"fmtTime": func(t time.Time) string {
			return t.Format("2006-01-02 15:04:05 UTC")
		},
		"fmtMs": func(p *int64) string {
			if p == nil {
				return "--"
			}
			d := time.Duration(*p) * time.Millisecond
			if d < time.Second {
				return d.String()
			}
			return d.Truncate(time.Second).String()
		},
		"statusClass": func(status string) string {
			switch status {
			case db.StatusCompleted:
				return "status-ok"
			case db.StatusFailed, db.StatusTimedOut:
				return "status-failed"
			case db.StatusRunning:
				return "status-running"
			default:
				return "status-unknown"
			}
		},
		"renderMarkdown": s.renderMarkdown,
	}

	s.tmpl = template.Must(
		template.New("").Funcs(funcMap).ParseFS(templateFS, "templates/*.html"),
	)
}

// renderMarkdown converts codex output to HTML. goldmark drops raw HTML
// from the input since the unsafe renderer option is not set.
func (s *Server) renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(md), &buf); err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(md) + "</pre>")
	}
	return template.HTML(buf.String())
}

// render executes the named content template inside layout.html.
func (s *Server) render(w http.ResponseWriter, name, title string, data any) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("render template", "template", name, "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}

	layout := struct {
		Title   string
		Content template.HTML
		Version string
	}{
		Title:   title,
		Content: template.HTML(buf.String()),
		Version: config.Version,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "layout.html", layout); err != nil {
		slog.Error("render layout", "template", name, "error", err)
	}
}
