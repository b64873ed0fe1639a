package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/teabranch/agentic-developer-mcp/internal/config"
	"github.com/teabranch/agentic-developer-mcp/internal/pipeline"
)

const maxRequestBody = 1 << 20

// --- JSON Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writeJSON: encode error", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// parseLimitOffset reads limit and offset query params.
func parseLimitOffset(r *http.Request, defaultLimit int) (limit, offset int, err error) {
	limit = defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			return 0, 0, fmt.Errorf("limit must be a non-negative integer")
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

// --- API Handlers ---

func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": config.Version})
}

func (s *Server) handleAPIListRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, pageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.history.ListRuns(limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	views := ToRunViews(runs)
	for i := range views {
		views[i].Output = ""
		views[i].Live = s.live(views[i].ID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": views})
}

func (s *Server) handleAPIGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run ID")
		return
	}
	run, err := s.history.GetRun(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	view := ToRunView(*run)
	view.Live = s.live(id)
	writeJSON(w, http.StatusOK, view)
}

// createRunResponse identifies an accepted run. ID, Location and Stream
// are omitted when run history is disabled.
type createRunResponse struct {
	Status   string `json:"status"`
	ID       int64  `json:"id,omitempty"`
	UUID     string `json:"uuid"`
	Location string `json:"location,omitempty"`
	Stream   string `json:"stream,omitempty"`
}

// handleAPICreateRun records a pipeline run and executes it in the
// background. The response names the run so callers can follow it through
// the run API and the stream endpoint.
func (s *Server) handleAPICreateRun(w http.ResponseWriter, r *http.Request) {
	if s.developer == nil {
		writeError(w, http.StatusNotImplemented, "runs cannot be started from this server")
		return
	}
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	var req pipeline.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Repository) == "" || strings.TrimSpace(req.Request) == "" {
		writeError(w, http.StatusBadRequest, "repository and request are required")
		return
	}

	ticket := s.developer.Begin(req)
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		s.developer.Execute(s.baseCtx, req, ticket)
	}()

	resp := createRunResponse{Status: "accepted", ID: ticket.ID, UUID: ticket.UUID}
	if ticket.ID > 0 {
		resp.Location = fmt.Sprintf("/api/v1/runs/%d", ticket.ID)
		resp.Stream = fmt.Sprintf("/runs/%d/stream", ticket.ID)
		w.Header().Set("Location", resp.Location)
	}
	writeJSON(w, http.StatusAccepted, resp)
}
