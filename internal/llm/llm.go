// Package llm calls an OpenAI-compatible chat completion endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrNoCompletion is returned when the upstream response carries no choices.
var ErrNoCompletion = errors.New("llm: response has no completion")

// Config configures a Client.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Client sends one system message and one user message per call.
type Client struct {
	api       openai.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	tracer    trace.Tracer
}

// New creates a Client. httpClient may be nil.
func New(cfg Config, httpClient *http.Client) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 700
	}
	return &Client{
		api:       openai.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: int64(maxTokens),
		timeout:   cfg.Timeout,
		tracer:    otel.Tracer("github.com/zodiacbot/zodiacbot/internal/llm"),
	}
}

// Generate returns the first completion for prompt under the system persona.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "llm.Generate", trace.WithAttributes(
		attribute.String("llm.model", c.model),
		attribute.Int64("llm.max_tokens", c.maxTokens),
		attribute.Int("llm.prompt_chars", len(prompt)),
	))
	defer span.End()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		MaxTokens: openai.Int(c.maxTokens),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			span.SetAttributes(attribute.Int("http.status_code", apiErr.StatusCode))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat completion failed")
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		span.SetStatus(codes.Error, "no completion")
		return "", ErrNoCompletion
	}
	return resp.Choices[0].Message.Content, nil
}
