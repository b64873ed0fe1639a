package web

import (
	"time"

	"github.com/teabranch/agentic-developer-mcp/internal/db"
)

// RunView is a template- and JSON-friendly db.Run.
type RunView struct {
	ID             int64      `json:"id"`
	UUID           string     `json:"uuid"`
	Repository     string     `json:"repository"`
	Folder         string     `json:"folder,omitempty"`
	Request        string     `json:"request"`
	Status         string     `json:"status"`
	Mode           string     `json:"mode,omitempty"`
	ModelID        string     `json:"model_id,omitempty"`
	Branch         string     `json:"branch,omitempty"`
	Pushed         bool       `json:"pushed"`
	PullRequestURL string     `json:"pull_request_url,omitempty"`
	ErrorKind      string     `json:"error_kind,omitempty"`
	Output         string     `json:"output,omitempty"`
	Summary        string     `json:"summary,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	DurationMs     *int64     `json:"duration_ms,omitempty"`
	// Live is set when output is still streaming.
	Live bool `json:"live"`
}

// ToRunView converts a db.Run. Unparseable timestamps become zero values.
func ToRunView(r db.Run) RunView {
	v := RunView{
		ID:             r.ID,
		UUID:           r.UUID,
		Repository:     r.Repository,
		Folder:         r.Folder,
		Request:        r.Request,
		Status:         r.Status,
		Mode:           r.Mode,
		ModelID:        deref(r.ModelID),
		Branch:         deref(r.Branch),
		Pushed:         r.Pushed,
		PullRequestURL: deref(r.PullRequestURL),
		ErrorKind:      deref(r.ErrorKind),
		Output:         deref(r.Output),
		Summary:        deref(r.Summary),
		DurationMs:     r.DurationMs,
	}
	v.StartedAt, _ = time.Parse(time.RFC3339, r.StartedAt)
	if r.EndedAt != nil {
		if t, err := time.Parse(time.RFC3339, *r.EndedAt); err == nil {
			v.EndedAt = &t
		}
	}
	return v
}

// ToRunViews converts a slice of runs.
func ToRunViews(runs []db.Run) []RunView {
	out := make([]RunView, len(runs))
	for i, r := range runs {
		out[i] = ToRunView(r)
	}
	return out
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
