package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"GeoTool/internal/config"
	"GeoTool/internal/domain"
	"GeoTool/internal/ports"
)

// Client implements ports.ChatClient against any OpenAI-compatible
// chat completions endpoint (DeepSeek, OpenAI, local gateways).
type Client struct {
	client      openai.Client
	name        string
	model       string
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

var _ ports.ChatClient = (*Client)(nil)

// NewClient builds the client used for the stage prompts.
func NewClient(cfg config.LLMConfig, logger *slog.Logger) *Client {
	return newClient("llm", cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Temperature, cfg.MaxTokens, cfg.Timeout, logger)
}

// NewEngineClient builds a client for one pressure-test engine.
func NewEngineClient(engine config.EngineConfig, timeout time.Duration, logger *slog.Logger) *Client {
	return newClient(engine.Name, engine.BaseURL, engine.APIKey, engine.Model, engine.Temperature, engine.MaxTokens, timeout, logger)
}

func newClient(name, baseURL, apiKey, model string, temperature float64, maxTokens int, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// Retries are driven by retry.Executor, not the SDK.
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}

	return &Client{
		client:      openai.NewClient(opts...),
		name:        name,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		logger:      logger.With("component", "llm", "engine", name),
	}
}

// Complete sends one chat completion and returns the first choice's text.
// Connection failures, throttling and upstream 5xx come back as
// *domain.TransientNetworkError; everything else is final.
func (c *Client) Complete(ctx context.Context, req ports.ChatRequest) (string, error) {
	if c == nil {
		return "", fmt.Errorf("llm client is nil")
	}

	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: toMessages(req.Messages),
	}
	if req.Model != "" {
		params.Model = req.Model
	}
	if params.Model == "" {
		return "", fmt.Errorf("llm client %s misconfigured: model is empty", c.name)
	}

	temperature := c.temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	if temperature > 0 {
		params.Temperature = openai.Float(temperature)
	}

	// max_tokens is what OpenAI-compatible providers understand.
	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	started := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", c.classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: completion returned no choices", c.name)
	}

	content := resp.Choices[0].Message.Content
	c.logger.Debug("completion received",
		"model", params.Model,
		"elapsed", time.Since(started),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return content, nil
}

func (c *Client) classify(ctx context.Context, err error) error {
	op := "llm." + c.name

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError {
			return &domain.TransientNetworkError{Op: op, Err: err}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &domain.TransientNetworkError{Op: op, Err: err}
}

func toMessages(messages []ports.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
