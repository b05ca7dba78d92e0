package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/siherrmann/facter/helper"
	"github.com/siherrmann/facter/model"
	"golang.org/x/time/rate"
)

// OpenAIClient invokes extraction phases against an OpenAI-compatible chat
// completion endpoint in JSON mode. Requests are rate limited client-side
// and transport-class failures are retried with bounded exponential backoff.
type OpenAIClient struct {
	client  *openai.Client
	config  model.GenerationConfig
	limiter *rate.Limiter
	retry   RetryPolicy
	logger  *slog.Logger
}

// NewOpenAIClient creates a new generation client.
func NewOpenAIClient(config model.GenerationConfig, logger *slog.Logger) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, helper.NewError("generation config validation", fmt.Errorf("API key is required"))
	}
	if config.Model == "" {
		return nil, helper.NewError("generation config validation", fmt.Errorf("model is required"))
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	limit := rate.Limit(config.RequestsPerSecond)
	if config.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := config.Burst
	if burst < 1 {
		burst = 1
	}

	return &OpenAIClient{
		client:  openai.NewClientWithConfig(clientConfig),
		config:  config,
		limiter: rate.NewLimiter(limit, burst),
		retry:   RetryPolicy{MaxAttempts: config.MaxRetries, BackoffBase: config.BackoffBase},
		logger:  logger,
	}, nil
}

// InvokePhase sends one phase request and returns the validated new elements
// of that phase. Failures are *PhaseError values: transport-class errors
// after exhausting the retry budget, malformed output immediately.
func (c *OpenAIClient) InvokePhase(ctx context.Context, phase Phase, input *PhaseInput) (*model.Extraction, error) {
	if !phase.Valid() {
		return nil, helper.NewError("phase validation", fmt.Errorf("unknown phase %v", phase))
	}
	if input == nil || input.Payload == nil {
		return nil, helper.NewError("phase input validation", fmt.Errorf("payload is required"))
	}
	if phase != PhaseBasicElements && input.Accumulated == nil {
		return nil, helper.NewError("phase input validation", fmt.Errorf("accumulated output is required for phase %v", phase))
	}

	prompt, err := BuildPrompt(phase, input, input.Corrective)
	if err != nil {
		return nil, helper.NewError("build prompt", err)
	}

	var lastErr *PhaseError
	attempts := max(c.retry.MaxAttempts, 1)
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Retrying phase invocation", "phase", phase.String(), "attempt", attempt, "error", lastErr.Err.Error())
			if err := c.retry.Wait(ctx, attempt-1); err != nil {
				return nil, NewPhaseError(phase, ErrorKindTransportTimeout, err)
			}
		}

		raw, invokeErr := c.invoke(ctx, prompt)
		if invokeErr != nil {
			kind := classifyTransportError(invokeErr)
			lastErr = NewPhaseError(phase, kind, invokeErr)
			if !kind.Transient() || ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}

		extraction, parseErr := ParsePhaseResponse(phase, []byte(raw), input)
		if parseErr != nil {
			// Never retried as a transport error, the orchestrator owns the
			// single corrective retry.
			return nil, NewPhaseError(phase, ErrorKindMalformedOutput, parseErr)
		}

		return extraction, nil
	}

	return nil, lastErr
}

func (c *OpenAIClient) invoke(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctxWithTimeout, openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.config.MaxTokens,
		Temperature: 0.3,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from generation service")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// classifyTransportError maps a transport failure onto the error taxonomy.
func classifyTransportError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTransportTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorKindTransportTimeout
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return ErrorKindRateLimited
		case apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500:
			// Bad request, auth and permission failures do not heal with a
			// retry.
			return ErrorKindRequestRejected
		case apiErr.HTTPStatusCode >= 500:
			return ErrorKindServiceUnavailable
		}
	}

	return ErrorKindServiceUnavailable
}
