package ebookbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"
)

type ClaudeClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewClaudeClient builds a client from the llm section of cfg. Retries are
// left to the orchestrator, so the SDK's own retry loop is disabled.
func NewClaudeClient(cfg Config) *ClaudeClient {
	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	)
	return &ClaudeClient{
		client:    client,
		model:     cfg.LLM.Model,
		maxTokens: cfg.LLM.MaxTokens,
		timeout:   cfg.LLM.Timeout,
		limiter:   newLimiter(cfg.LLM.RequestsPerMinute),
		logger:    loggerOr(cfg.Logger),
	}
}

func (c *ClaudeClient) SendMessage(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for rate limiter: %w", err)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	message, err := c.client.Messages.New(
		ctx,
		anthropic.MessageNewParams{
			Model:     anthropic.F(anthropic.Model(c.model)),
			MaxTokens: anthropic.F(c.maxTokens),
			System: anthropic.F([]anthropic.TextBlockParam{
				anthropic.NewTextBlock(systemPrompt),
			}),
			Messages: anthropic.F([]anthropic.MessageParam{
				anthropic.NewUserMessage(
					anthropic.NewTextBlock(userPrompt),
				),
			}),
		},
	)
	if err != nil {
		llmCalls.WithLabelValues("error").Inc()
		return "", classifyAPIError(err)
	}
	llmCalls.WithLabelValues("ok").Inc()
	c.logger.Debug("claude call finished",
		"model", c.model,
		"duration", time.Since(start),
		"input_tokens", message.Usage.InputTokens,
		"output_tokens", message.Usage.OutputTokens)

	if len(message.Content) == 0 {
		return "", fmt.Errorf("%w: empty response from claude", ErrTransient)
	}
	return message.Content[0].Text, nil
}

// classifyAPIError marks retryable failures with ErrTransient.
func classifyAPIError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if transientStatus(apiErr.StatusCode) {
			return fmt.Errorf("%w: claude api: %v", ErrTransient, err)
		}
		return fmt.Errorf("claude api: %w", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: claude api: %v", ErrTransient, err)
	}
	return fmt.Errorf("claude api: %w", err)
}

func transientStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout,
		code == http.StatusConflict,
		code == http.StatusTooManyRequests,
		code >= 500:
		return true
	}
	return false
}

// newLimiter allows perMinute calls per minute with a burst of one.
// A non-positive rate disables limiting.
func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}
