package intake_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/charter-leads-bfa/internal/capture/intake"
	"github.com/boddenberg/charter-leads-bfa/internal/capture/queue"
	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

func TestSend_PostsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/leads/intake", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req domain.IntakeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://example.com/req", req.PageData.URL)
		assert.Equal(t, "user-7", req.UserID)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(domain.IntakeResponse{Success: true, LeadID: "lead-42"})
	}))
	defer srv.Close()

	c := intake.NewClient(&http.Client{Timeout: 2 * time.Second}, srv.URL+"/", "tok")
	resp, err := c.Send(context.Background(), &domain.IntakeRequest{
		PageData: domain.PageData{URL: "https://example.com/req"},
		UserID:   "user-7",
	})
	require.NoError(t, err)
	assert.Equal(t, "lead-42", resp.LeadID)
}

func TestSend_UnauthorizedIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid intake token"}`))
	}))
	defer srv.Close()

	_, err := intake.NewClient(http.DefaultClient, srv.URL, "bad").Send(context.Background(), &domain.IntakeRequest{})

	var unauth *domain.ErrUnauthorized
	require.True(t, errors.As(err, &unauth))
	assert.Equal(t, "invalid intake token", unauth.Message)
	assert.True(t, queue.IsAuthError(err))
}

func TestSend_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "db down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := intake.NewClient(http.DefaultClient, srv.URL, "tok").Send(context.Background(), &domain.IntakeRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.False(t, queue.IsAuthError(err))
}
