// Package llm implements structured extraction (leads, quotes, open legs)
// on top of a chat-completion provider. OpenAI and the Lovable AI gateway
// go through openai-go; Anthropic is called over its Messages API.
package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

var tracer = otel.Tracer("llm")

// Usage is the token accounting of one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Completer runs one non-streaming completion.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, Usage, error)
}

// OpenAICompleter talks to any OpenAI-compatible endpoint.
type OpenAICompleter struct {
	client   openai.Client
	model    string
	provider string
}

// NewOpenAICompleter creates a completer. provider is only used in errors
// and metrics ("openai" or "lovable").
func NewOpenAICompleter(httpClient *http.Client, provider, baseURL, apiKey, model string, maxRetries int) (*OpenAICompleter, error) {
	if apiKey == "" {
		return nil, &domain.ErrNotConfigured{Integration: provider}
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(maxRetries),
		option.WithMiddleware(noRetryOnRateLimit),
		option.WithRequestTimeout(60 * time.Second),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &OpenAICompleter{
		client:   openai.NewClient(opts...),
		model:    model,
		provider: provider,
	}, nil
}

// noRetryOnRateLimit keeps the client's retry loop away from 429s; they go
// back to the caller with the provider's Retry-After.
func noRetryOnRateLimit(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
	res, err := next(req)
	if err == nil && res != nil && res.StatusCode == http.StatusTooManyRequests {
		res.Header.Set("x-should-retry", "false")
	}
	return res, err
}

func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, Usage, error) {
	ctx, span := tracer.Start(ctx, "OpenAICompleter.Complete")
	defer span.End()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			if apiErr.StatusCode == http.StatusTooManyRequests {
				rl := &domain.ErrRateLimited{Service: c.provider}
				if apiErr.Response != nil {
					rl.RetryAfter = apiErr.Response.Header.Get("Retry-After")
				}
				return "", Usage{}, rl
			}
			return "", Usage{}, &domain.ErrExternalService{Service: c.provider, StatusCode: apiErr.StatusCode, Err: err}
		}
		return "", Usage{}, &domain.ErrExternalService{Service: c.provider, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", Usage{}, &domain.ErrExternalService{Service: c.provider, Err: errors.New("empty completion")}
	}

	usage := Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}
	return resp.Choices[0].Message.Content, usage, nil
}
