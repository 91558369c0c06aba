// Package synthesis turns retrieved chunks into user-facing output: grounded
// answers, transcript summaries and quizzes.
//
// The generative model is treated as an idempotent, side-effect-free
// collaborator. Transient call failures are retried a small bounded number of
// times; permanent failures surface as ErrGenerationFailed.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrInvalidConfig indicates invalid generator configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrGenerationFailed indicates the generative model call failed after
	// exhausting retries.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrMalformedOutput indicates the model returned output that does not
	// parse as the requested structure.
	ErrMalformedOutput = errors.New("malformed model output")
)

// Generator is the interface to the generative model.
//
// Complete returns free-form text. CompleteJSON requests a single JSON object
// as the entire response; implementations use the API's JSON response format
// where supported, but callers must still parse defensively.
type Generator interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	CompleteJSON(ctx context.Context, system, prompt string) (string, error)
}

// GeneratorConfig holds configuration for the OpenAI generator.
type GeneratorConfig struct {
	// APIKey authenticates requests. Required.
	APIKey string

	// BaseURL overrides the API endpoint, for OpenAI-compatible servers.
	BaseURL string

	// Model is the chat model. Default: gpt-4o-mini.
	Model string

	// Temperature controls sampling. Default 0.2; answers should stay close
	// to the provided context.
	Temperature float32

	// MaxRetries is the retry budget for transient failures. Default: 2.
	MaxRetries int

	// RetryBackoff is the initial backoff between retries. Default: 500ms.
	RetryBackoff time.Duration

	// RequestsPerSecond rate-limits outbound calls. Default: 5.
	RequestsPerSecond float64
}

// ApplyDefaults sets default values for unset fields.
func (c *GeneratorConfig) ApplyDefaults() {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 5
	}
}

// Validate validates the configuration.
func (c GeneratorConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: API key required", ErrInvalidConfig)
	}
	return nil
}

// OpenAIGenerator calls an OpenAI-compatible chat completion API.
type OpenAIGenerator struct {
	client  *openai.Client
	config  GeneratorConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewOpenAIGenerator creates a generator backed by the OpenAI chat API.
func NewOpenAIGenerator(cfg GeneratorConfig, logger *zap.Logger) (*OpenAIGenerator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIGenerator{
		client:  openai.NewClientWithConfig(clientCfg),
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logger,
	}, nil
}

// Complete returns the model's free-form completion of the prompt.
func (g *OpenAIGenerator) Complete(ctx context.Context, system, prompt string) (string, error) {
	return g.complete(ctx, system, prompt, nil)
}

// CompleteJSON returns the model's completion constrained to a single JSON
// object via the API's JSON response format.
func (g *OpenAIGenerator) CompleteJSON(ctx context.Context, system, prompt string) (string, error) {
	return g.complete(ctx, system, prompt, &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	})
}

func (g *OpenAIGenerator) complete(ctx context.Context, system, prompt string, format *openai.ChatCompletionResponseFormat) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.config.Model,
		Temperature: g.config.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: format,
	}

	var lastErr error
	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := g.config.RetryBackoff * time.Duration(1<<(attempt-1))
			g.logger.Warn("retrying generation",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return "", err
		}

		resp, err := g.client.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = errors.New("no choices in response")
			continue
		}
		return resp.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("%w: %v", ErrGenerationFailed, lastErr)
}
