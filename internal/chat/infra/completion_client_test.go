package infra_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boddenberg/charter-leads-bfa/internal/chat/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/chat/infra"
	maindomain "github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/resilience"
)

func newClient(url, key string) *infra.CompletionClient {
	return infra.NewCompletionClient(
		&http.Client{Timeout: 5 * time.Second},
		"lovable", url, key,
		resilience.NewCircuitBreaker("test-llm"),
		resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond},
	)
}

func TestStreamCompletion_ReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		var req domain.CompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if !req.Stream {
			t.Error("expected stream=true")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	body, err := newClient(srv.URL, "secret").StreamCompletion(context.Background(), &domain.CompletionRequest{Model: "m"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer body.Close()

	b, _ := io.ReadAll(body)
	if string(b) != "data: [DONE]\n\n" {
		t.Errorf("unexpected body %q", b)
	}
}

func TestStreamCompletion_RateLimitNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, "secret").StreamCompletion(context.Background(), &domain.CompletionRequest{})

	var rl *maindomain.ErrRateLimited
	if !errors.As(err, &rl) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if rl.RetryAfter != "12" {
		t.Errorf("expected retry-after 12, got %q", rl.RetryAfter)
	}
	if calls != 1 {
		t.Errorf("expected a single call, got %d", calls)
	}
}

func TestStreamCompletion_ServerErrorRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	body, err := newClient(srv.URL, "secret").StreamCompletion(context.Background(), &domain.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body.Close()
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestStreamCompletion_MissingKey(t *testing.T) {
	_, err := newClient("http://unused", "").StreamCompletion(context.Background(), &domain.CompletionRequest{})

	var nc *maindomain.ErrNotConfigured
	if !errors.As(err, &nc) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
