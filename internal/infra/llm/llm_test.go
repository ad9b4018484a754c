package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/llm"
)

type stubCompleter struct {
	answer string
	usage  llm.Usage
	err    error
	gotSys string
}

func (s *stubCompleter) Complete(_ context.Context, system, _ string) (string, llm.Usage, error) {
	s.gotSys = system
	return s.answer, s.usage, s.err
}

type usageSpy struct {
	prompt, completion int
	statuses           []string
}

func (u *usageSpy) RecordTokens(p, c int) { u.prompt += p; u.completion += c }
func (u *usageSpy) IncrLLMRequest(status string) { u.statuses = append(u.statuses, status) }

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, llm.StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, llm.StripFences("  {\"a\":1} "))
	assert.Equal(t, `[1]`, llm.StripFences("```\n[1]\n```"))
}

func TestExtractLead_UppercasesAirportsAndRecordsUsage(t *testing.T) {
	stub := &stubCompleter{
		answer: "```json\n{\"first_name\":\"Ana\",\"last_name\":\"Lima\",\"departure_airport\":\"kteb \",\"arrival_airport\":\"kmia\",\"departure_date\":\"2026-11-02\",\"passengers\":6}\n```",
		usage:  llm.Usage{PromptTokens: 120, CompletionTokens: 40},
	}
	spy := &usageSpy{}
	ex := llm.NewExtractor(stub, spy, zap.NewNop())

	req, err := ex.ExtractLead(context.Background(), "Ana Lima needs a jet Teterboro to Miami Nov 2 for 6")
	require.NoError(t, err)
	assert.Equal(t, "Ana", req.FirstName)
	assert.Equal(t, "KTEB", req.DepartureAirport)
	assert.Equal(t, "KMIA", req.ArrivalAirport)
	assert.Equal(t, 6, req.Passengers)
	assert.Equal(t, 120, spy.prompt)
	assert.Equal(t, 40, spy.completion)
	assert.Equal(t, []string{"success"}, spy.statuses)
}

func TestExtractQuotes_DefaultsCurrency(t *testing.T) {
	stub := &stubCompleter{answer: `{"quotes":[{"operator_name":"JetCo","aircraft_type":"Citation XLS","price":18500},{"operator_name":"Sky","aircraft_type":"Challenger 350","price":32000,"currency":"EUR"}]}`}
	ex := llm.NewExtractor(stub, nil, zap.NewNop())

	quotes, err := ex.ExtractQuotes(context.Background(), "email body")
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "USD", quotes[0].Currency)
	assert.Equal(t, "EUR", quotes[1].Currency)
	assert.InDelta(t, 32000, quotes[1].Price, 0.001)
}

func TestExtractOpenLegs(t *testing.T) {
	stub := &stubCompleter{answer: `{"open_legs":[{"operator_name":"JetCo","aircraft_type":"Phenom 300","departure_airport":"KVNY","arrival_airport":"KLAS","departure_date":"2026-10-20","seats":7}]}`}
	ex := llm.NewExtractor(stub, nil, zap.NewNop())

	legs, err := ex.ExtractOpenLegs(context.Background(), "empty leg VNY-LAS")
	require.NoError(t, err)
	require.Len(t, legs, 1)
	assert.Equal(t, 7, legs[0].Seats)
	assert.Contains(t, stub.gotSys, "open_legs")
}

func TestExtract_InvalidJSON(t *testing.T) {
	ex := llm.NewExtractor(&stubCompleter{answer: "sorry, I cannot"}, nil, zap.NewNop())

	_, err := ex.ExtractLead(context.Background(), "x")
	var extErr *domain.ErrExternalService
	assert.True(t, errors.As(err, &extErr))
}

func TestExtract_CompleterErrorCountsAsFailure(t *testing.T) {
	spy := &usageSpy{}
	ex := llm.NewExtractor(&stubCompleter{err: &domain.ErrRateLimited{Service: "lovable"}}, spy, zap.NewNop())

	_, err := ex.ExtractQuotes(context.Background(), "x")
	var rl *domain.ErrRateLimited
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, []string{"error"}, spy.statuses)
}

func TestAnthropicCompleter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("anthropic-version"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "system prompt", body["system"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"ok\":true}"}],"usage":{"input_tokens":11,"output_tokens":3}}`))
	}))
	defer srv.Close()

	c, err := llm.NewAnthropicCompleter(srv.Client(), srv.URL, "secret", "claude-test")
	require.NoError(t, err)

	text, usage, err := c.Complete(context.Background(), "system prompt", "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, text)
	assert.Equal(t, 11, usage.PromptTokens)
	assert.Equal(t, 3, usage.CompletionTokens)
}

func TestAnthropicCompleter_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := llm.NewAnthropicCompleter(srv.Client(), srv.URL, "secret", "claude-test")
	require.NoError(t, err)

	_, _, err = c.Complete(context.Background(), "s", "u")
	var rl *domain.ErrRateLimited
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, "30", rl.RetryAfter)
}

func TestOpenAICompleter_RequiresKey(t *testing.T) {
	_, err := llm.NewOpenAICompleter(nil, "lovable", "http://gateway", "", "m", 0)
	var nc *domain.ErrNotConfigured
	assert.True(t, errors.As(err, &nc))
}

func TestOpenAICompleter_ChatCompletions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{}"}}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`))
	}))
	defer srv.Close()

	c, err := llm.NewOpenAICompleter(srv.Client(), "lovable", srv.URL, "key", "m", 0)
	require.NoError(t, err)

	text, usage, err := c.Complete(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "{}", text)
	assert.Equal(t, 5, usage.PromptTokens)
}

func TestOpenAICompleter_RateLimitNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	c, err := llm.NewOpenAICompleter(srv.Client(), "openai", srv.URL, "key", "m", 3)
	require.NoError(t, err)

	_, _, err = c.Complete(context.Background(), "s", "u")
	var rl *domain.ErrRateLimited
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, "30", rl.RetryAfter)
	assert.Equal(t, int32(1), hits.Load())
}
