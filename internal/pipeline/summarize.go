package pipeline

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicKeyVar is the credential that enables run summaries.
const AnthropicKeyVar = "ANTHROPIC_API_KEY"

// DefaultSummaryModel is used when no model is configured.
const DefaultSummaryModel = "claude-3-5-haiku-latest"

const summarizeSystemPrompt = "You are a concise technical summarizer. Summarize the following output of an automated coding agent in 2-4 sentences. Say which files or components changed, whether the changes were committed and pushed, and any warnings. Be specific."

// maxSummaryInput caps the text sent for summarization.
const maxSummaryInput = 32 * 1024

// AnthropicSummarizer summarizes run output with the Anthropic Messages API.
type AnthropicSummarizer struct {
	client anthropic.Client
	model  string
}

// NewAnthropicSummarizer creates a summarizer. Extra options are passed to
// the client, e.g. option.WithBaseURL in tests.
func NewAnthropicSummarizer(apiKey, model string, opts ...option.RequestOption) *AnthropicSummarizer {
	if model == "" {
		model = DefaultSummaryModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicSummarizer{client: anthropic.NewClient(opts...), model: model}
}

// Summarize implements Summarizer.
func (s *AnthropicSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	if len(text) > maxSummaryInput {
		text = text[len(text)-maxSummaryInput:]
	}
	msg, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: 200,
		System: []anthropic.TextBlockParam{
			{Text: summarizeSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text block in response")
}
