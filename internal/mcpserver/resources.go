package mcpserver

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const echoScheme = "echo://"

func echoStaticResource() mcp.Resource {
	return mcp.NewResource(
		echoScheme+"static",
		"echo-static",
		mcp.WithResourceDescription("Static echo resource"),
		mcp.WithMIMEType("text/plain"),
	)
}

func echoResourceTemplate() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(
		echoScheme+"{text}",
		"echo",
		mcp.WithTemplateDescription("Echo the text in the URI"),
		mcp.WithTemplateMIMEType("text/plain"),
	)
}

func echoPrompt() mcp.Prompt {
	return mcp.NewPrompt("echo",
		mcp.WithPromptDescription("Send the given text as a user message"),
		mcp.WithArgument("text", mcp.RequiredArgument(), mcp.ArgumentDescription("Text to send")),
	)
}

func (s *Server) handleEchoStatic(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "text/plain", Text: "Echo!"},
	}, nil
}

// handleEchoTemplate answers echo://{text}. The text is taken from the URI
// itself and percent-decoded.
func (s *Server) handleEchoTemplate(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	raw, ok := strings.CutPrefix(req.Params.URI, echoScheme)
	if !ok {
		return nil, fmt.Errorf("unexpected resource uri %q", req.Params.URI)
	}
	text, err := url.PathUnescape(raw)
	if err != nil {
		text = raw
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "text/plain", Text: "Echo: " + text},
	}, nil
}

func (s *Server) handleEchoPrompt(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	text := req.Params.Arguments["text"]
	return mcp.NewGetPromptResult(
		"Echo prompt",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
		},
	), nil
}
