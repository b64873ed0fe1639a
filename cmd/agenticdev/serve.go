package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teabranch/agentic-developer-mcp/internal/config"
	applog "github.com/teabranch/agentic-developer-mcp/internal/log"
	"github.com/teabranch/agentic-developer-mcp/internal/mcpserver"
	"github.com/teabranch/agentic-developer-mcp/internal/web"
	"github.com/teabranch/agentic-developer-mcp/internal/workspace"
)

// portScanSpan is how far above --port free-port discovery looks.
const portScanSpan = 20

// sweepInterval is how often kept workspaces and finished streams are
// cleaned up.
const sweepInterval = 10 * time.Minute

// finishedStreams is how many finished runs keep their live-output backlog.
const finishedStreams = 50

func serve(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	applog.Setup(applog.Options{Verbose: cfg.Verbose, Quiet: cfg.Quiet, JSON: cfg.LogJSON})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a.Close(closeCtx)
	}()

	var history mcpserver.History
	if a.db != nil {
		history = a.db
	}
	mcp := mcpserver.New(a.pipeline, history)

	// Banner goes to stderr; stdout belongs to the stdio transport.
	fmt.Fprintf(os.Stderr, "%s %s starting\n", mcpserver.Name, config.Version)
	fmt.Fprintf(os.Stderr, "  Transport: %s\n", cfg.Transport)
	fmt.Fprintf(os.Stderr, "  Codex mode: %s\n", a.pipeline.Mode)
	fmt.Fprintf(os.Stderr, "  Clone depth: %d\n", cfg.CloneDepth)
	fmt.Fprintf(os.Stderr, "  Keep workspaces: %t\n", cfg.KeepWorkspace)
	fmt.Fprintf(os.Stderr, "  Run history: %t\n", a.db != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sweep(gctx, a)
		return nil
	})

	if cfg.Transport == config.TransportStdio {
		g.Go(func() error {
			err := mcp.ServeStdio(gctx)
			stop()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		return g.Wait()
	}

	ln, err := listen(cfg.Host, cfg.Port, cfg.FindFreePort)
	if err != nil {
		return err
	}
	addr := ln.Addr().(*net.TCPAddr)
	baseURL := fmt.Sprintf("http://%s:%d", cfg.Host, addr.Port)

	mux := http.NewServeMux()
	shutdownMCP, err := mcp.Mount(mux, cfg.Transport, baseURL)
	if err != nil {
		_ = ln.Close()
		return err
	}
	var dashboard *web.Server
	switch {
	case cfg.Dashboard && a.db != nil:
		dashboard = web.New(a.db, a.hub, web.WithDeveloper(a.pipeline))
		dashboard.Register(mux)
	case cfg.Dashboard:
		slog.Warn("dashboard disabled: run history is unavailable")
	}

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	fmt.Fprintf(os.Stderr, "  Listening: %s\n", baseURL)
	if dashboard != nil {
		fmt.Fprintf(os.Stderr, "  Dashboard: %s/runs\n", baseURL)
	}

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMCP(shutdownCtx); err != nil {
			slog.Warn("mcp transport shutdown", "error", err)
		}
		if dashboard != nil {
			if err := dashboard.Shutdown(shutdownCtx); err != nil {
				slog.Warn("dashboard shutdown", "error", err)
			}
		}
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// listen binds host:port. With scan set, a busy port makes it try the next
// portScanSpan ports.
func listen(host string, port int, scan bool) (net.Listener, error) {
	last := port
	if scan {
		last = port + portScanSpan
	}
	var firstErr error
	for p := port; p <= last; p++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(p)))
		if err == nil {
			if p != port {
				slog.Info("port busy, using next free port", "requested", port, "port", p)
			}
			return ln, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if scan {
		return nil, fmt.Errorf("no free port in %d-%d: %w", port, last, firstErr)
	}
	return nil, firstErr
}

// sweep removes stale kept workspaces and old live-output backlogs until
// ctx is done.
func sweep(ctx context.Context, a *app) {
	clean := func() {
		if a.cfg.KeepWorkspace && a.cfg.WorkspaceMaxAge > 0 {
			n, err := workspace.Sweep(a.cfg.WorkspaceRoot, a.cfg.WorkspaceMaxAge, time.Now())
			if err != nil {
				slog.Warn("workspace sweep failed", "error", err)
			} else if n > 0 {
				slog.Info("removed stale workspaces", "count", n)
			}
		}
		a.hub.Prune(finishedStreams)
	}

	clean()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			clean()
		}
	}
}
