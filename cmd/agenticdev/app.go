package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/teabranch/agentic-developer-mcp/internal/codex"
	"github.com/teabranch/agentic-developer-mcp/internal/config"
	"github.com/teabranch/agentic-developer-mcp/internal/credentials"
	"github.com/teabranch/agentic-developer-mcp/internal/db"
	"github.com/teabranch/agentic-developer-mcp/internal/gitprovider"
	"github.com/teabranch/agentic-developer-mcp/internal/hub"
	"github.com/teabranch/agentic-developer-mcp/internal/pipeline"
	"github.com/teabranch/agentic-developer-mcp/internal/process"
	"github.com/teabranch/agentic-developer-mcp/internal/publish"
	"github.com/teabranch/agentic-developer-mcp/internal/tracing"
)

// app holds what serve and run share.
type app struct {
	cfg      config.Config
	creds    credentials.Chain
	db       *db.DB // nil when history is unavailable
	hub      *hub.Hub
	tracing  *tracing.Provider
	pipeline *pipeline.Pipeline
}

// newApp wires the pipeline from cfg. Run history is best effort: if the
// database cannot be opened the server runs without it.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	mode, err := codex.ParseMode(cfg.CodexMode)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg: cfg,
		creds: credentials.Chain{
			credentials.Env{},
			credentials.NewDotenv(cfg.DotenvPath, 0),
		},
		hub: hub.New(),
	}

	a.tracing, err = tracing.NewProvider(ctx, tracing.Config{
		Enabled:      cfg.TracingEnabled,
		Exporter:     cfg.TracingExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRate:   cfg.TraceSampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	dbPath, err := resolveDBPath(cfg.DBPath)
	if err == nil {
		a.db, err = db.Open(dbPath)
	}
	if err != nil {
		slog.Warn("run history disabled", "path", dbPath, "error", err)
		a.db = nil
	} else if n, err := a.db.MarkInterrupted(); err != nil {
		slog.Warn("failed to mark interrupted runs", "error", err)
	} else if n > 0 {
		slog.Info("marked interrupted runs", "count", n)
	}

	deps := pipeline.Deps{
		Runner:      process.ExecRunner{},
		Credentials: a.creds,
		Providers:   gitprovider.NewRegistry(a.creds),
		Stream:      a.hub,
		Tracer:      a.tracing.Tracer(),
	}
	if a.db != nil {
		deps.Store = a.db
	}
	if key, ok := a.creds.Lookup(pipeline.AnthropicKeyVar); ok && cfg.SummaryModel != "" {
		deps.Summarizer = pipeline.NewAnthropicSummarizer(key, cfg.SummaryModel)
		slog.Info("run summaries enabled", "model", cfg.SummaryModel)
	}

	a.pipeline = pipeline.New(pipeline.Options{
		GitBinary:      cfg.GitBinary,
		WorkspaceRoot:  cfg.WorkspaceRoot,
		CloneDepth:     cfg.CloneDepth,
		GitTimeout:     cfg.GitTimeout,
		KeepWorkspace:  cfg.KeepWorkspace,
		FixPermissions: cfg.FixPermissions,
		Codex: codex.Options{
			Mode:         mode,
			Binary:       cfg.CodexBinary,
			DockerBinary: cfg.DockerBinary,
			Image:        cfg.CodexImage,
			TTY:          cfg.CodexTTY,
			Timeout:      cfg.CodexTimeout,
			APIKeyVar:    cfg.APIKeyVar,
		},
		Publish: publish.Options{
			AuthorName:  cfg.GitAuthorName,
			AuthorEmail: cfg.GitAuthorEmail,
			UsernameVar: cfg.UsernameVar,
			TokenVar:    cfg.TokenVar,
			OpenPR:      cfg.OpenPR,
			BaseBranch:  cfg.BaseBranch,
			Labels:      cfg.PRLabels,
			AllowHTTP:   cfg.AllowHTTPRemotes,
		},
	}, deps)

	return a, nil
}

// Close waits for background summaries, flushes spans and closes the
// database.
func (a *app) Close(ctx context.Context) {
	a.pipeline.Wait()
	if err := a.tracing.Shutdown(ctx); err != nil {
		slog.Warn("tracing shutdown", "error", err)
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func resolveDBPath(path string) (string, error) {
	if path == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(dir, "agenticdev", "runs.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return path, nil
}
