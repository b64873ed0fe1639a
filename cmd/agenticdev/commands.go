package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teabranch/agentic-developer-mcp/internal/config"
	"github.com/teabranch/agentic-developer-mcp/internal/install"
	applog "github.com/teabranch/agentic-developer-mcp/internal/log"
	"github.com/teabranch/agentic-developer-mcp/internal/pipeline"
)

// runOnce executes a single pipeline run from the command line.
func runOnce(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	applog.Setup(applog.Options{Verbose: cfg.Verbose, Quiet: cfg.Quiet, JSON: cfg.LogJSON})

	f := cmd.Flags()
	repository, _ := f.GetString("repository")
	request, _ := f.GetString("request")
	folder, _ := f.GetString("folder")
	if strings.TrimSpace(repository) == "" || strings.TrimSpace(request) == "" {
		return errors.New("--repository and --request are required")
	}

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

	header := color.New(color.FgCyan, color.Bold)
	_, _ = header.Fprintf(os.Stderr, "==> %s", repository)
	if folder != "" {
		_, _ = header.Fprintf(os.Stderr, " (%s)", folder)
	}
	fmt.Fprintln(os.Stderr)

	out := a.pipeline.Run(ctx, pipeline.Request{Repository: repository, Request: request, Folder: folder})
	printResult(out)
	return nil
}

// printResult colors the trailer lines the pipeline appends.
func printResult(text string) {
	warn := color.New(color.FgYellow)
	ok := color.New(color.FgGreen)
	link := color.New(color.FgBlue, color.Underline)
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "Warning:"):
			_, _ = warn.Println(line)
		case strings.HasPrefix(line, "Changes saved to branch:"):
			_, _ = ok.Println(line)
		case strings.HasPrefix(line, "Pull request:"):
			_, _ = link.Println(line)
		default:
			fmt.Println(line)
		}
	}
}

// installServer adds this binary to an MCP client config as a stdio server.
func installServer(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	name, _ := cmd.Flags().GetString("name")

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}

	entry := install.Entry{Command: exe, Args: []string{"serve", "--transport", "stdio"}}
	if cf := viper.GetString("config_file"); cf != "" {
		abs, err := filepath.Abs(cf)
		if err != nil {
			return err
		}
		entry.Args = append(entry.Args, "--config-file", abs)
	}

	res, err := install.Merge(path, name, entry)
	if err != nil {
		return err
	}

	verb := "Added"
	if res.Replaced {
		verb = "Updated"
	}
	_, _ = color.New(color.FgGreen).Printf("%s %q in %s\n", verb, name, path)
	if res.Backup != "" {
		fmt.Printf("Original config saved to %s\n", res.Backup)
	}
	return nil
}
