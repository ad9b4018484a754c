package supabase

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/resilience"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond}
	return NewClient(srv.Client(), srv.URL, "anon", "service", resilience.NewCircuitBreaker("supabase-test"), cfg, zap.NewNop())
}

func TestGetLead_SendsKeysAndFilters(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != "anon" || r.Header.Get("Authorization") != "Bearer service" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		if r.URL.Path != "/rest/v1/leads" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("id") != "eq.lead-1" || q.Get("user_id") != "eq.user-1" {
			t.Errorf("unexpected filters %v", q)
		}
		w.Write([]byte(`[{"id":"lead-1","first_name":"Ana","status":"new","passengers":4}]`))
	})

	lead, err := c.GetLead(context.Background(), "user-1", "lead-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lead.FirstName != "Ana" || lead.Passengers != 4 {
		t.Errorf("unexpected lead %+v", lead)
	}
}

func TestGetLead_EmptyResultIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	_, err := c.GetLead(context.Background(), "user-1", "missing")
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkLeadConverted_AlreadyConvertedIsConflict(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		if got := r.URL.Query().Get("status"); got != "neq.converted" {
			t.Errorf("expected status guard, got %q", got)
		}
		w.Write([]byte(`[]`))
	})

	_, err := c.MarkLeadConverted(context.Background(), "lead-1", time.Now())
	var conflict *domain.ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpdateOpenLead_GuardsConvertedLeads(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("id") != "eq.lead-1" || q.Get("status") != "neq.converted" {
			t.Errorf("unexpected filters %v", q)
		}
		w.Write([]byte(`[]`))
	})

	_, err := c.UpdateOpenLead(context.Background(), "lead-1", map[string]any{"status": "contacted"})
	var conflict *domain.ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestGet_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[{"icao":"KJFK","name":"John F Kennedy Intl","latitude":40.6398,"longitude":-73.7789}]`))
	})

	a, err := c.GetAirport(context.Background(), "kjfk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ICAO != "KJFK" {
		t.Errorf("unexpected airport %+v", a)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestGet_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"bad filter"}`))
	})

	_, err := c.ListLeads(context.Background(), domain.LeadFilter{UserID: "u"})
	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) || ext.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected external error with 400, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestInsert_ConflictMapsToDomain(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":"23505"}`))
	})

	_, err := c.CreateOperator(context.Background(), &domain.TrustedOperator{ID: "op-1", Name: "Jet Co"})
	var conflict *domain.ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
