// Package webhook posts JSON payloads to Zapier, Make or custom hooks.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("webhook")

const maxResponseBody = 4 << 10

// Poster implements port.WebhookPoster. It does not retry: every attempt
// is logged by the caller and replays are a user action.
type Poster struct {
	httpClient *http.Client
}

// NewPoster creates a poster.
func NewPoster(httpClient *http.Client) *Poster {
	return &Poster{httpClient: httpClient}
}

// Post sends payload and returns the response status and (truncated) body.
// A non-2xx status is not an error; err is only set when no response arrived.
func (p *Poster) Post(ctx context.Context, url string, payload []byte) (int, string, error) {
	ctx, span := tracer.Start(ctx, "Poster.Post")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, "", fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "charter-leads-bfa/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp.StatusCode, string(body), nil
}
