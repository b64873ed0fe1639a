package main

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/teabranch/agentic-developer-mcp/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "agenticdev",
		Short:        "MCP server that turns requests into pushed branches via the codex CLI",
		Version:      config.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return readConfigFile()
		},
		RunE: serve,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (default)",
		Args:  cobra.NoArgs,
		RunE:  serve,
	}
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the developer pipeline once and print the result",
		Args:  cobra.NoArgs,
		RunE:  runOnce,
	}
	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Register this server in an MCP client config",
		Args:  cobra.NoArgs,
		RunE:  installServer,
	}
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(config.Version)
		},
	}

	// Settings shared by every command that builds a pipeline.
	p := rootCmd.PersistentFlags()
	p.String("config-file", "", "optional config file (yaml, toml or json)")
	p.Bool("verbose", false, "debug logging")
	p.Bool("quiet", false, "warnings and errors only")
	p.Bool("log-json", false, "emit JSON log records")
	p.String("db-path", "", "run history database (default: <user cache dir>/agenticdev/runs.db)")
	p.String("workspace-root", "", "parent directory for workspaces (default: system temp dir)")
	p.Bool("keep-workspace", false, "leave workspaces on disk after each run")
	p.Duration("workspace-max-age", 24*time.Hour, "age after which kept workspaces are swept")
	p.String("git-binary", "git", "git executable")
	p.Int("clone-depth", 1, "shallow clone depth, 0 for full history")
	p.Duration("git-timeout", 5*time.Minute, "timeout for each git command")
	p.String("git-author-name", "Agentic Developer", "commit author name")
	p.String("git-author-email", "agentic-developer@users.noreply.github.com", "commit author email")
	p.String("codex-mode", "container", "how codex runs: direct or container")
	p.String("codex-binary", "codex", "codex executable for direct mode")
	p.String("docker-binary", "docker", "docker executable for container mode")
	p.String("codex-image", "codex-cli", "container image for container mode")
	p.Bool("codex-tty", false, "allocate a TTY for the codex container")
	p.Duration("codex-timeout", 10*time.Minute, "timeout for one codex invocation")
	p.Bool("fix-permissions", true, "chown workspace files back after container runs")
	p.String("api-key-var", "OPENAI_API_KEY", "credential name holding the codex API key")
	p.String("username-var", "GIT_USERNAME", "credential name holding the git username")
	p.String("token-var", "GIT_TOKEN", "credential name holding the git personal access token")
	p.String("dotenv-path", ".env", "dotenv file consulted after the environment")
	p.Bool("open-pr", false, "open a pull request after pushing")
	p.String("base-branch", "main", "pull request base branch")
	p.String("pr-labels", "", "comma-separated pull request labels")
	p.Bool("allow-http-remotes", false, "send the git token to http:// remotes instead of upgrading them to https")
	p.Bool("tracing-enabled", false, "record OpenTelemetry spans")
	p.String("tracing-exporter", "stdout", "span exporter: stdout or otlp")
	p.String("otlp-endpoint", "localhost:4317", "OTLP gRPC endpoint")
	p.Float64("trace-sample-rate", 1.0, "fraction of runs traced")
	p.String("summary-model", "", "Claude model for run summaries (needs ANTHROPIC_API_KEY)")

	f := serveCmd.Flags()
	f.String("transport", "stdio", "MCP transport: stdio, sse or http")
	f.String("host", "localhost", "listen host for sse and http")
	f.Int("port", 8000, "listen port for sse and http")
	f.Bool("find-free-port", false, "scan upward for a free port when --port is taken")
	f.Bool("dashboard", true, "serve the run dashboard next to the network transports")
	rootCmd.Flags().AddFlagSet(f)

	r := runCmd.Flags()
	r.String("repository", "", "repository URL to clone")
	r.String("request", "", "change to make")
	r.String("folder", "", "sub-folder to work in (default: repository root)")

	installCmd.Flags().String("config", "", "MCP client config file to update (required)")
	installCmd.Flags().String("name", "agentic-developer", "server name in mcpServers")
	_ = installCmd.MarkFlagRequired("config")

	// Viper keys use underscores (clone_depth) so they match the env var
	// suffix after stripping the AGENTICDEV_ prefix.
	bindFlag := func(flags *pflag.FlagSet, viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, flags.Lookup(flagName))
	}
	p.VisitAll(func(fl *pflag.Flag) {
		bindFlag(p, strings.ReplaceAll(fl.Name, "-", "_"), fl.Name)
	})
	f.VisitAll(func(fl *pflag.Flag) {
		bindFlag(f, strings.ReplaceAll(fl.Name, "-", "_"), fl.Name)
	})

	viper.SetEnvPrefix("AGENTICDEV")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	rootCmd.AddCommand(serveCmd, runCmd, installCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func readConfigFile() error {
	path := viper.GetString("config_file")
	if path == "" {
		return nil
	}
	viper.SetConfigFile(path)
	return viper.ReadInConfig()
}
