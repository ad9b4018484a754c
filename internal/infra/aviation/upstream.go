// Package aviation holds the HTTP clients for the aviation data providers:
// AeroDataBox (airports, route times), Aviapages (operator fleets) and
// AirNav RadarBox (aircraft positions). None of them retry: a 429 is handed
// back to the caller as *domain.ErrRateLimited.
package aviation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

var tracer = otel.Tracer("aviation")

// RateLimitHook is told about every upstream 429.
type RateLimitHook func(service string)

// upstream is the request plumbing shared by the three clients.
type upstream struct {
	service    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	onLimit    RateLimitHook
	logger     *zap.Logger
}

// getJSON performs req through the breaker and decodes a 2xx body into out.
// Not-found and rate-limit answers mean the upstream is healthy, so they are
// returned to the caller without counting as breaker failures.
func (u *upstream) getJSON(ctx context.Context, req *http.Request, notFoundID string, out any) error {
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")

	var answer error
	_, err := u.cb.Execute(func() (any, error) {
		resp, err := u.httpClient.Do(req)
		if err != nil {
			return nil, &domain.ErrExternalService{Service: u.service, Err: err}
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, &domain.ErrExternalService{Service: u.service, Err: fmt.Errorf("read body: %w", err)}
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			if u.onLimit != nil {
				u.onLimit(u.service)
			}
			u.logger.Warn("upstream rate limited",
				zap.String("service", u.service),
				zap.String("retry_after", resp.Header.Get("Retry-After")),
			)
			answer = &domain.ErrRateLimited{Service: u.service, RetryAfter: resp.Header.Get("Retry-After")}
			return nil, nil
		case resp.StatusCode == http.StatusNotFound && notFoundID != "",
			resp.StatusCode == http.StatusNoContent:
			answer = &domain.ErrNotFound{Resource: u.service, ID: notFoundID}
			return nil, nil
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			u.logger.Warn("upstream non-2xx",
				zap.String("service", u.service),
				zap.Int("status", resp.StatusCode),
				zap.String("body", truncate(string(raw), 300)),
			)
			return nil, &domain.ErrExternalService{
				Service:    u.service,
				StatusCode: resp.StatusCode,
				Err:        errors.New(truncate(string(raw), 300)),
			}
		}

		if err := json.Unmarshal(raw, out); err != nil {
			return nil, &domain.ErrExternalService{Service: u.service, Err: fmt.Errorf("decode: %w", err)}
		}
		return nil, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.ErrCircuitOpen{Service: u.service}
	}
	if err != nil {
		return err
	}
	return answer
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
