// Package config reads runtime settings from viper. Flags, AGENTICDEV_*
// environment variables and an optional config file are merged by the
// cobra command in cmd/agenticdev before Load is called.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Transports accepted by --transport.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportHTTP  = "http"
)

// Config holds all runtime configuration for the server.
type Config struct {
	Transport    string
	Host         string
	Port         int
	FindFreePort bool
	Dashboard    bool
	DBPath       string

	WorkspaceRoot   string
	KeepWorkspace   bool
	WorkspaceMaxAge time.Duration

	GitBinary      string
	CloneDepth     int
	GitTimeout     time.Duration
	GitAuthorName  string
	GitAuthorEmail string

	CodexMode      string
	CodexBinary    string
	DockerBinary   string
	CodexImage     string
	CodexTTY       bool
	CodexTimeout   time.Duration
	FixPermissions bool

	APIKeyVar   string
	UsernameVar string
	TokenVar    string
	DotenvPath  string

	OpenPR           bool
	BaseBranch       string
	PRLabels         []string
	AllowHTTPRemotes bool

	TracingEnabled  bool
	TracingExporter string
	OTLPEndpoint    string
	TraceSampleRate float64

	SummaryModel string

	Verbose bool
	Quiet   bool
	LogJSON bool
}

// Load reads configuration from viper, which merges flag values, env vars,
// the config file and defaults.
func Load() Config {
	return Config{
		Transport:    strings.ToLower(viper.GetString("transport")),
		Host:         viper.GetString("host"),
		Port:         viper.GetInt("port"),
		FindFreePort: viper.GetBool("find_free_port"),
		Dashboard:    viper.GetBool("dashboard"),
		DBPath:       viper.GetString("db_path"),

		WorkspaceRoot:   viper.GetString("workspace_root"),
		KeepWorkspace:   viper.GetBool("keep_workspace"),
		WorkspaceMaxAge: viper.GetDuration("workspace_max_age"),

		GitBinary:      viper.GetString("git_binary"),
		CloneDepth:     viper.GetInt("clone_depth"),
		GitTimeout:     viper.GetDuration("git_timeout"),
		GitAuthorName:  viper.GetString("git_author_name"),
		GitAuthorEmail: viper.GetString("git_author_email"),

		CodexMode:      viper.GetString("codex_mode"),
		CodexBinary:    viper.GetString("codex_binary"),
		DockerBinary:   viper.GetString("docker_binary"),
		CodexImage:     viper.GetString("codex_image"),
		CodexTTY:       viper.GetBool("codex_tty"),
		CodexTimeout:   viper.GetDuration("codex_timeout"),
		FixPermissions: viper.GetBool("fix_permissions"),

		APIKeyVar:   viper.GetString("api_key_var"),
		UsernameVar: viper.GetString("username_var"),
		TokenVar:    viper.GetString("token_var"),
		DotenvPath:  viper.GetString("dotenv_path"),

		OpenPR:           viper.GetBool("open_pr"),
		BaseBranch:       viper.GetString("base_branch"),
		PRLabels:         splitList(viper.GetString("pr_labels")),
		AllowHTTPRemotes: viper.GetBool("allow_http_remotes"),

		TracingEnabled:  viper.GetBool("tracing_enabled"),
		TracingExporter: viper.GetString("tracing_exporter"),
		OTLPEndpoint:    viper.GetString("otlp_endpoint"),
		TraceSampleRate: viper.GetFloat64("trace_sample_rate"),

		SummaryModel: viper.GetString("summary_model"),

		Verbose: viper.GetBool("verbose"),
		Quiet:   viper.GetBool("quiet"),
		LogJSON: viper.GetBool("log_json"),
	}
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportStdio, TransportSSE, TransportHTTP:
	default:
		return fmt.Errorf("unknown transport %q (want stdio, sse or http)", c.Transport)
	}
	if c.Transport != TransportStdio && (c.Port <= 0 || c.Port > 65535) {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.CloneDepth < 0 {
		return fmt.Errorf("clone depth must be >= 0, got %d", c.CloneDepth)
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		return fmt.Errorf("trace sample rate must be in [0, 1], got %g", c.TraceSampleRate)
	}
	return nil
}

// Addr is the host:port the network transports listen on.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
