package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"creator_ingest/internal/normalize"
)

// DefaultModel is used when SUMMARY_MODEL is not set.
const DefaultModel = "claude-haiku-4-5"

const (
	maxBodyRunes = 8000
	maxTokens    = 1024
)

const systemPrompt = `You summarize posts, videos and articles published by creators.
Reply with a single JSON object and nothing else:
{"short": "<one sentence, at most 200 characters>", "long": "<one paragraph, at most 5 sentences>"}
Write in the language of the content. Do not invent facts that are not in the text.`

// AnthropicClient summarizes with the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
	model  string
}

// NewAnthropic creates a client for apiKey. Extra request options, such as a
// base URL, are passed through to the SDK.
func NewAnthropic(apiKey, model string, opts ...option.RequestOption) *AnthropicClient {
	if model == "" {
		model = DefaultModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicClient{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

// Model implements Summarizer.
func (c *AnthropicClient) Model() string { return c.model }

// Summarize implements Summarizer.
func (c *AnthropicClient) Summarize(ctx context.Context, in Input) (Summary, error) {
	prompt := fmt.Sprintf("Platform: %s\nURL: %s\nTitle: %s\n\n%s",
		in.Platform, in.URL, in.Title, normalize.Truncate(in.Body, maxBodyRunes))

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Summary{}, fmt.Errorf("anthropic API error: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return Summary{}, errors.New("no text in anthropic response")
	}
	return parseSummary(text)
}

func parseSummary(content string) (Summary, error) {
	content = cleanJSONResponse(content)
	var parsed struct {
		Short string `json:"short"`
		Long  string `json:"long"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return Summary{}, fmt.Errorf("parse summary: %w, content: %s", err, content)
	}
	if parsed.Short == "" && parsed.Long == "" {
		return Summary{}, errors.New("empty summary")
	}
	return Summary{Short: strings.TrimSpace(parsed.Short), Long: strings.TrimSpace(parsed.Long)}, nil
}

func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}
