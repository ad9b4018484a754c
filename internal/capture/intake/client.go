// Package intake is the capture agent's HTTP client for POST /v1/leads/intake.
package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

var tracer = otel.Tracer("capture/intake")

// Client posts captures to the BFA.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient builds a client. token is the intake token or a Supabase
// access token; both travel as a Bearer header.
func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

// Send delivers one capture. A 401/403 answer returns an error wrapping
// *domain.ErrUnauthorized so the queue stops retrying.
func (c *Client) Send(ctx context.Context, req *domain.IntakeRequest) (*domain.IntakeResponse, error) {
	ctx, span := tracer.Start(ctx, "IntakeClient.Send")
	defer span.End()
	span.SetAttributes(attribute.String("page.url", req.PageData.URL))

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal intake request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/leads/intake", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post intake: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("intake returned %d: %w", resp.StatusCode,
			&domain.ErrUnauthorized{Message: errorMessage(raw)})
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("intake returned %d: %s", resp.StatusCode, errorMessage(raw))
	}

	var out domain.IntakeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode intake response: %w", err)
	}
	return &out, nil
}

func errorMessage(raw []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(raw))
}
