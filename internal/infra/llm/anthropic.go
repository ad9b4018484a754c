package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

const anthropicVersion = "2023-06-01"

// AnthropicCompleter calls the Anthropic Messages API.
type AnthropicCompleter struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewAnthropicCompleter creates a completer.
func NewAnthropicCompleter(httpClient *http.Client, baseURL, apiKey, model string) (*AnthropicCompleter, error) {
	if apiKey == "" {
		return nil, &domain.ErrNotConfigured{Integration: "anthropic"}
	}
	return &AnthropicCompleter{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
	}, nil
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *AnthropicCompleter) Complete(ctx context.Context, system, user string) (string, Usage, error) {
	ctx, span := tracer.Start(ctx, "AnthropicCompleter.Complete")
	defer span.End()

	body, err := json.Marshal(anthropicRequest{
		Model:     c.model,
		MaxTokens: 2048,
		System:    system,
		Messages:  []anthropicMessage{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("marshal anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", Usage{}, fmt.Errorf("create anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", Usage{}, &domain.ErrExternalService{Service: "anthropic", Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", Usage{}, &domain.ErrRateLimited{Service: "anthropic", RetryAfter: resp.Header.Get("Retry-After")}
	}

	var out anthropicResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", Usage{}, &domain.ErrExternalService{Service: "anthropic", StatusCode: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(raw)
		if out.Error != nil {
			msg = out.Error.Message
		}
		return "", Usage{}, &domain.ErrExternalService{Service: "anthropic", StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), Usage{PromptTokens: out.Usage.InputTokens, CompletionTokens: out.Usage.OutputTokens}, nil
}
