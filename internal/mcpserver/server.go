// Package mcpserver exposes the developer-agent pipeline as MCP tools,
// plus a small echo surface used to smoke-test clients. It serves over
// stdio, SSE or streamable HTTP.
package mcpserver

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/teabranch/agentic-developer-mcp/internal/config"
	"github.com/teabranch/agentic-developer-mcp/internal/db"
	"github.com/teabranch/agentic-developer-mcp/internal/pipeline"
)

// Name is the server name reported to MCP clients.
const Name = "Agentic Developer MCP Server"

// Transports accepted by Mount and the --transport flag.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportHTTP  = "http"
)

// Developer runs one instruct-developer request. *pipeline.Pipeline
// satisfies it.
type Developer interface {
	Run(ctx context.Context, req pipeline.Request) string
}

// History reads recorded runs. *db.DB satisfies it.
type History interface {
	GetRun(id int64) (*db.Run, error)
	ListRuns(limit, offset int) ([]db.Run, error)
}

// Server holds the MCP server and the collaborators its tools call.
type Server struct {
	developer Developer
	history   History
	mcp       *server.MCPServer
}

// New builds the MCP server. history may be nil, in which case the run
// history tools are not registered.
func New(developer Developer, history History) *Server {
	s := &Server{developer: developer, history: history}

	s.mcp = server.NewMCPServer(
		Name,
		config.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
	)

	tools := []server.ServerTool{
		{Tool: echoTool(), Handler: s.handleEcho},
		{Tool: instructDeveloperTool(), Handler: s.handleInstructDeveloper},
	}
	if history != nil {
		tools = append(tools,
			server.ServerTool{Tool: listRunsTool(), Handler: s.handleListRuns},
			server.ServerTool{Tool: getRunTool(), Handler: s.handleGetRun},
		)
	}
	s.mcp.AddTools(tools...)

	s.mcp.AddResource(echoStaticResource(), s.handleEchoStatic)
	s.mcp.AddResourceTemplate(echoResourceTemplate(), s.handleEchoTemplate)
	s.mcp.AddPrompt(echoPrompt(), s.handleEchoPrompt)

	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio serves JSON-RPC on stdin/stdout until ctx is cancelled or
// stdin closes.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(os.Stderr, "[mcp] ", log.LstdFlags))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// Mount registers the handlers for a network transport on mux and
// returns a func that shuts the transport down. baseURL is the externally
// visible address, used by SSE to advertise its message endpoint.
func (s *Server) Mount(mux *http.ServeMux, transport, baseURL string) (func(context.Context) error, error) {
	switch transport {
	case TransportSSE:
		var opts []server.SSEOption
		if baseURL != "" {
			opts = append(opts, server.WithBaseURL(baseURL))
		}
		sse := server.NewSSEServer(s.mcp, opts...)
		mux.Handle("/sse", sse)
		mux.Handle("/message", sse)
		return sse.Shutdown, nil
	case TransportHTTP:
		h := server.NewStreamableHTTPServer(s.mcp)
		mux.Handle("/mcp", h)
		return h.Shutdown, nil
	default:
		return nil, fmt.Errorf("transport %q cannot be mounted on HTTP", transport)
	}
}
