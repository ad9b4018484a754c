package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/boddenberg/charter-leads-bfa/internal/chat/domain"
	maindomain "github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("chat/infra")

// ============================================================
// CompletionClient: streaming chat completions
// ============================================================
//
// Talks to any OpenAI-compatible /chat/completions endpoint (OpenAI itself
// or the Lovable AI gateway) with stream=true and hands back the raw SSE
// body. Only connection setup is retried; once bytes flow the stream is
// owned by the caller.

type CompletionClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	provider   string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewCompletionClient builds a client for baseURL (e.g. https://api.openai.com/v1).
func NewCompletionClient(httpClient *http.Client, provider, baseURL, apiKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *CompletionClient {
	return &CompletionClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		provider:   provider,
		cb:         cb,
		cfg:        cfg,
	}
}

// StreamCompletion posts req with stream=true and returns the open body.
func (c *CompletionClient) StreamCompletion(ctx context.Context, req *domain.CompletionRequest) (io.ReadCloser, error) {
	ctx, span := tracer.Start(ctx, "CompletionClient.StreamCompletion")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", c.provider),
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.messages", len(req.Messages)),
	)

	if c.apiKey == "" {
		return nil, &maindomain.ErrNotConfigured{Integration: c.provider + " api key"}
	}

	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	var stream io.ReadCloser
	_, err = c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
			if err != nil {
				return resilience.Permanent(fmt.Errorf("create http request: %w", err))
			}
			httpReq.Header.Set("Content-Type", "application/json")
			httpReq.Header.Set("Accept", "text/event-stream")
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return fmt.Errorf("http call to %s: %w", c.provider, err)
			}

			if resp.StatusCode != http.StatusOK {
				defer resp.Body.Close()
				msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
				return classifyStatus(c.provider, resp, msg)
			}

			stream = resp.Body
			return nil
		})
	})
	if err != nil {
		var rl *maindomain.ErrRateLimited
		var ext *maindomain.ErrExternalService
		switch {
		case errors.As(err, &rl):
			return nil, rl
		case errors.As(err, &ext):
			return nil, ext
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, &maindomain.ErrCircuitOpen{Service: c.provider}
		}
		return nil, &maindomain.ErrExternalService{Service: c.provider, Err: err}
	}
	return stream, nil
}

// classifyStatus turns a non-200 answer into an error. 4xx answers are
// permanent; 429 is surfaced to the caller as-is.
func classifyStatus(provider string, resp *http.Response, msg []byte) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return resilience.Permanent(&maindomain.ErrRateLimited{
			Service:    provider,
			RetryAfter: resp.Header.Get("Retry-After"),
		})
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return resilience.Permanent(&maindomain.ErrExternalService{
			Service:    provider,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(msg))),
		})
	default:
		return &maindomain.ErrExternalService{
			Service:    provider,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(msg))),
		}
	}
}
