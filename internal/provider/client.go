// Package provider is the direct model-provider client used when the
// external agent is unavailable. It speaks the OpenAI chat completions API
// through the official SDK and classifies failures into a small taxonomy.
package provider

import (
	"context"
	"log/slog"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/kilobridge/kilobridge/internal/chat"
	"github.com/kilobridge/kilobridge/internal/metrics"
)

// DefaultModel is used when neither the config nor the call names a model.
const DefaultModel = "gpt-4o-mini"

// Config holds the provider connection settings.
type Config struct {
	APIKey      string
	BaseURL     string // Optional override (proxies, compatible gateways, tests)
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration // Per-request timeout; 0 leaves the SDK default
}

// Options tunes a single completion. Zero values fall back to the client
// configuration.
type Options struct {
	Model       string
	Temperature *float64
	MaxTokens   int
	JSONMode    bool
}

// Float returns a pointer to f, for Options.Temperature.
func Float(f float64) *float64 { return &f }

// Client is a configured provider client. It is safe for concurrent use.
// Failures are never retried here; retry policy belongs to the caller.
type Client struct {
	api      openai.Client
	defaults Options
	logger   *slog.Logger
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		api: openai.NewClient(opts...),
		defaults: Options{
			Model:       model,
			Temperature: Float(cfg.Temperature),
			MaxTokens:   cfg.MaxTokens,
		},
		logger: slog.With("component", "provider"),
	}
}

// Model returns the default model identifier.
func (c *Client) Model() string {
	return c.defaults.Model
}

// Complete runs a blocking completion and returns the trimmed reply text.
func (c *Client) Complete(ctx context.Context, messages []chat.Message, opts Options) (string, error) {
	params := c.params(messages, opts)
	start := time.Now()

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		pe := classify(err, string(params.Model))
		c.observe("blocking", pe, start)
		c.logger.Warn("completion failed", "model", params.Model, "kind", pe.Kind, "error", err)
		return "", pe
	}
	if len(resp.Choices) == 0 {
		pe := &Error{Kind: KindTransport, Message: "AI service error: empty completion"}
		c.observe("blocking", pe, start)
		c.logger.Warn("completion returned no choices", "model", params.Model)
		return "", pe
	}
	c.observe("blocking", nil, start)

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// CompleteStream starts a streaming completion. Tokens arrive in emission
// order; the returned stream must be closed by the caller.
func (c *Client) CompleteStream(ctx context.Context, messages []chat.Message, opts Options) *TokenStream {
	params := c.params(messages, opts)

	return NewTokenStream(ctx, func(ctx context.Context, yield func(string) bool) error {
		start := time.Now()
		stream := c.api.Chat.Completions.NewStreaming(ctx, params)
		defer func() { _ = stream.Close() }()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			token := chunk.Choices[0].Delta.Content
			if token == "" {
				continue
			}
			if !yield(token) {
				return ctx.Err()
			}
		}

		if err := stream.Err(); err != nil {
			pe := classify(err, string(params.Model))
			c.observe("streaming", pe, start)
			c.logger.Warn("stream failed", "model", params.Model, "kind", pe.Kind, "error", err)
			return pe
		}
		c.observe("streaming", nil, start)
		return nil
	})
}

func (c *Client) params(messages []chat.Message, opts Options) openai.ChatCompletionNewParams {
	model := opts.Model
	if model == "" {
		model = c.defaults.Model
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: toOpenAI(messages),
	}

	temperature := opts.Temperature
	if temperature == nil {
		temperature = c.defaults.Temperature
	}
	if temperature != nil {
		params.Temperature = openai.Float(*temperature)
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.defaults.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	if opts.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

func (c *Client) observe(form string, pe *Error, start time.Time) {
	outcome := "ok"
	if pe != nil {
		outcome = string(pe.Kind)
	}
	metrics.ProviderRequestsTotal.WithLabelValues(form, outcome).Inc()
	metrics.ProviderRequestDuration.WithLabelValues(form).Observe(time.Since(start).Seconds())
}

func toOpenAI(messages []chat.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case chat.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case chat.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
