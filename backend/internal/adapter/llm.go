package adapter

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "decision-graph/backend/pkg/errors"
	"decision-graph/backend/pkg/logger"
)

// Overhead tokens per message for role labels and formatting
const messageOverheadTokens = 10

// Backoff cap for the retry loop
const maxBackoff = 8 * time.Second

// How long a caller waits for a rate-limit slot before failing
const slotWaitTimeout = 30 * time.Second

// Status codes that mean "try again" or "server busy"
var retryableStatusCodes = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// Status codes indicating capacity/overload rather than a request defect.
// These escalate to the fallback model when one is configured.
var capacityStatusCodes = map[int]bool{
	429: true,
	503: true,
	529: true,
}

var thinkingTagPattern = regexp.MustCompile(`(?s)<think>.*?</think>\s*`)

// stripThinkingTags removes <think>...</think> blocks from model output
func stripThinkingTags(text string) string {
	return strings.TrimSpace(thinkingTagPattern.ReplaceAllString(text, ""))
}

// Client wraps the generation service with prompt-size pre-validation,
// per-caller rate limiting, exponential-backoff retry, and one-level model
// fallback.
type Client struct {
	client          *openai.Client
	model           string
	fallbackModel   string
	fallbackEnabled bool
	maxRetries      int
	retryBaseDelay  time.Duration
	maxPromptTokens int
	limiter         *RateLimiter
	logger          *zap.Logger
}

// ClientOptions configures a generation client
type ClientOptions struct {
	BaseURL         string
	APIKey          string
	Model           string
	FallbackModel   string
	FallbackEnabled bool
	MaxRetries      int
	RetryBaseDelay  time.Duration
	MaxPromptTokens int
	Limiter         *RateLimiter // nil disables rate limiting
}

// NewClient creates a generation client against an OpenAI-compatible
// endpoint.
func NewClient(opts ClientOptions) *Client {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimSuffix(opts.BaseURL, "/") + "/v1"

	return &Client{
		client:          openai.NewClientWithConfig(config),
		model:           opts.Model,
		fallbackModel:   opts.FallbackModel,
		fallbackEnabled: opts.FallbackEnabled,
		maxRetries:      opts.MaxRetries,
		retryBaseDelay:  opts.RetryBaseDelay,
		maxPromptTokens: opts.MaxPromptTokens,
		limiter:         opts.Limiter,
		logger:          logger.Named("llm"),
	}
}

// Generate sends a completion request and returns the response text with
// thinking tags stripped. callerID scopes the rate limit; pass
// AnonymousCaller for unauthenticated callers.
func (c *Client) Generate(ctx context.Context, callerID, systemPrompt, prompt string) (string, error) {
	estimated := estimateMessageTokens(systemPrompt, prompt)
	if c.maxPromptTokens > 0 && estimated > c.maxPromptTokens {
		c.logger.Error("prompt size validation failed",
			zap.Int("estimated_tokens", estimated),
			zap.Int("max_tokens", c.maxPromptTokens),
		)
		return "", apperrors.NewPromptTooLarge(estimated, c.maxPromptTokens)
	}
	if c.maxPromptTokens > 0 && float64(estimated) > float64(c.maxPromptTokens)*0.8 {
		c.logger.Warn("prompt size approaching limit",
			zap.Int("estimated_tokens", estimated),
			zap.Int("max_tokens", c.maxPromptTokens),
		)
	}

	if c.limiter != nil {
		ok, err := c.limiter.WaitForSlot(ctx, callerID, slotWaitTimeout)
		if err != nil {
			return "", err
		}
		if !ok {
			_, retryAfter, rerr := c.limiter.Remaining(ctx, callerID)
			if rerr != nil {
				retryAfter = slotWaitTimeout
			}
			return "", apperrors.NewRateLimitExceeded(callerID, retryAfter)
		}
	}

	messages := buildMessages(systemPrompt, prompt)

	content, err := c.completeWithRetry(ctx, c.model, messages)
	if err == nil {
		return stripThinkingTags(content), nil
	}

	// One fallback retry sequence when the primary persistently fails
	// with a capacity condition.
	if c.fallbackEnabled && c.fallbackModel != "" && isCapacityError(err) {
		c.logger.Warn("primary model overloaded, trying fallback",
			zap.String("primary", c.model),
			zap.String("fallback", c.fallbackModel),
			zap.Error(err),
		)
		content, fbErr := c.completeWithRetry(ctx, c.fallbackModel, messages)
		if fbErr == nil {
			return stripThinkingTags(content), nil
		}
		c.logger.Error("fallback model also failed", zap.Error(fbErr))
	}

	return "", err
}

func (c *Client) completeWithRetry(ctx context.Context, model string, messages []openai.ChatCompletionMessage) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       model,
			Messages:    messages,
			Temperature: 0.3,
			TopP:        0.95,
		})
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", apperrors.ErrLLMNoResponse
			}
			return resp.Choices[0].Message.Content, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			c.logger.Error("non-retryable generation error",
				zap.String("model", model),
				zap.Error(err),
			)
			return "", apperrors.NewLLMFailed(model, attempt+1, false, err)
		}
		if attempt == c.maxRetries {
			break
		}

		backoff := c.backoff(attempt)
		c.logger.Warn("retryable generation error",
			zap.String("model", model),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", c.maxRetries+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return "", apperrors.NewContextCancelled("generation request", ctx.Err())
		case <-time.After(backoff):
		}
	}

	c.logger.Error("generation failed after retries",
		zap.String("model", model),
		zap.Int("attempts", c.maxRetries+1),
		zap.Error(lastErr),
	)
	return "", apperrors.NewLLMFailed(model, c.maxRetries+1, true, lastErr)
}

// backoff returns base*2^attempt capped at 8s, plus 0-1s of jitter to
// prevent thundering herds.
func (c *Client) backoff(attempt int) time.Duration {
	exponential := math.Min(
		c.retryBaseDelay.Seconds()*math.Pow(2, float64(attempt)),
		maxBackoff.Seconds(),
	)
	jitter := rand.Float64()
	return time.Duration((exponential + jitter) * float64(time.Second))
}

func buildMessages(systemPrompt, prompt string) []openai.ChatCompletionMessage {
	var messages []openai.ChatCompletionMessage
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
	return messages
}

// estimateTokens estimates token count at roughly 4 characters per token.
// Fast and close enough for a pre-flight size check.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(text)/4 + 1
}

// estimateMessageTokens sums the per-message estimates plus formatting
// overhead; an empty system prompt contributes no message.
func estimateMessageTokens(systemPrompt, prompt string) int {
	total := estimateTokens(prompt) + messageOverheadTokens
	if systemPrompt != "" {
		total += estimateTokens(systemPrompt) + messageOverheadTokens
	}
	return total
}

// isRetryableError reports whether an error is a transient condition worth
// retrying: connection/timeout failures and a fixed set of status codes.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatusCodes[apiErr.HTTPStatusCode]
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatusCodes[reqErr.HTTPStatusCode]
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// isCapacityError reports whether an error indicates service overload
// rather than a defective request.
func isCapacityError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return capacityStatusCodes[apiErr.HTTPStatusCode]
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return capacityStatusCodes[reqErr.HTTPStatusCode]
	}
	return false
}
