// Package supabase implements the persistence ports on top of Supabase
// PostgREST. Every table is reached through /rest/v1 with the service-role
// key; row-level filtering by user_id is done explicitly in each query.
package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/resilience"
)

var tracer = otel.Tracer("supabase")

// Client wraps HTTP calls to the Supabase PostgREST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	cfg            resilience.Config
	logger         *zap.Logger
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		cfg:            cfg,
		logger:         logger,
	}
}

// statusError is a non-2xx PostgREST answer.
type statusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("supabase %s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

func (c *Client) setHeaders(req *http.Request, prefer string) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceRoleKey)
	req.Header.Set("Content-Type", "application/json")
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
}

// doRequest executes an authenticated request to PostgREST and returns the
// raw body. 404 and 204 yield a nil body and no error.
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader, prefer string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, prefer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(raw)),
		)
		return nil, &statusError{Method: method, Path: path, Status: resp.StatusCode, Body: string(raw)}
	}

	c.logger.Debug("supabase: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)
	return raw, nil
}

// get runs a read through the breaker with retries and decodes the rows.
// Client errors (4xx) are not retried.
func (c *Client) get(ctx context.Context, service, path string, out any) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			raw, err := c.doRequest(ctx, http.MethodGet, path, nil, "")
			if err != nil {
				var se *statusError
				if errors.As(err, &se) && se.Status < 500 {
					return resilience.Permanent(err)
				}
				return err
			}
			if raw == nil {
				raw = []byte("[]")
			}
			if err := json.Unmarshal(raw, out); err != nil {
				return resilience.Permanent(fmt.Errorf("decode %s: %w", service, err))
			}
			return nil
		})
	})
	return c.mapError(service, err)
}

func (c *Client) mapError(service string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.ErrCircuitOpen{Service: "supabase"}
	}
	var se *statusError
	if errors.As(err, &se) {
		if se.Status == http.StatusConflict {
			return &domain.ErrConflict{Message: fmt.Sprintf("%s already exists", service)}
		}
		return &domain.ErrExternalService{Service: "supabase/" + service, StatusCode: se.Status, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &domain.ErrExternalService{Service: "supabase/" + service, Err: err}
}

// Ping checks that PostgREST answers with our key.
func (c *Client) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Supabase.Ping")
	defer span.End()

	_, err := c.doRequest(ctx, http.MethodGet, "leads?select=id&limit=1", nil, "")
	return c.mapError("ping", err)
}

// query builds a PostgREST path: table?col=op.value&...
func query(table string, params url.Values) string {
	if len(params) == 0 {
		return table
	}
	return table + "?" + params.Encode()
}

func eq(v string) string { return "eq." + v }
