package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/handler"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/observability"
	"github.com/boddenberg/charter-leads-bfa/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	testSecret      = "router-test-secret-with-enough-length-123"
	testIntakeToken = "capture-agent-intake-token-42"
)

// ===== Fakes =====

type leadStore struct {
	mu       sync.Mutex
	leads    map[string]*domain.Lead
	accounts []domain.Account
	opps     []domain.Opportunity
}

func newLeadStore() *leadStore {
	return &leadStore{leads: map[string]*domain.Lead{}}
}

func (s *leadStore) CreateLead(_ context.Context, l *domain.Lead) (*domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	s.leads[l.ID] = &cp
	return &cp, nil
}

func (s *leadStore) GetLead(_ context.Context, userID, leadID string) (*domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[leadID]
	if !ok || l.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "lead", ID: leadID}
	}
	cp := *l
	return &cp, nil
}

func (s *leadStore) ListLeads(_ context.Context, f domain.LeadFilter) ([]domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Lead
	for _, l := range s.leads {
		if l.UserID == f.UserID && (f.Status == "" || l.Status == f.Status) {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (s *leadStore) UpdateLead(_ context.Context, leadID string, fields map[string]any) (*domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[leadID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "lead", ID: leadID}
	}
	if v, ok := fields["status"].(string); ok {
		l.Status = v
	}
	if v, ok := fields["notes"].(string); ok {
		l.Notes = v
	}
	if v, ok := fields["converted_at"]; ok && v == nil {
		l.ConvertedAt = nil
	}
	cp := *l
	return &cp, nil
}

func (s *leadStore) UpdateOpenLead(ctx context.Context, leadID string, fields map[string]any) (*domain.Lead, error) {
	s.mu.Lock()
	l, ok := s.leads[leadID]
	converted := ok && l.Status == domain.LeadStatusConverted
	s.mu.Unlock()
	if converted {
		return nil, &domain.ErrConflict{Message: "lead already converted"}
	}
	return s.UpdateLead(ctx, leadID, fields)
}

func (s *leadStore) MarkLeadConverted(_ context.Context, leadID string, at time.Time) (*domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[leadID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "lead", ID: leadID}
	}
	if l.Status == domain.LeadStatusConverted {
		return nil, &domain.ErrConflict{Message: "lead already converted"}
	}
	l.Status = domain.LeadStatusConverted
	l.ConvertedAt = &at
	cp := *l
	return &cp, nil
}

func (s *leadStore) CreateAccount(_ context.Context, a *domain.Account) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = append(s.accounts, *a)
	return a, nil
}

func (s *leadStore) CreateOpportunity(_ context.Context, o *domain.Opportunity) (*domain.Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opps = append(s.opps, *o)
	return o, nil
}

func (s *leadStore) ListOpportunities(_ context.Context, userID string) ([]domain.Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Opportunity
	for _, o := range s.opps {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

// ===== Helpers =====

func newTestRouter(t *testing.T, store *leadStore, intakeHash string) http.Handler {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	return handler.NewRouter(handler.Services{
		Auth:  service.NewAuthService(testSecret, intakeHash, logger),
		Leads: service.NewLeadService(store, store, nil, nil, metrics, logger),
		Store: pinger{},
	}, metrics, logger)
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	claims := service.SupabaseClaims{
		Email: userID + "@example.com",
		Role:  domain.RoleAuthenticated,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func do(router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeLead(t *testing.T, rec *httptest.ResponseRecorder) domain.Lead {
	t.Helper()
	var resp struct {
		Success bool        `json:"success"`
		Lead    domain.Lead `json:"lead"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success {
		t.Fatal("expected success=true")
	}
	return resp.Lead
}

// ===== Operational endpoints =====

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, newLeadStore(), "")

	rec := do(router, http.MethodGet, "/healthz", "", nil)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var health domain.HealthStatus
	json.NewDecoder(rec.Body).Decode(&health)
	if health.Status != "healthy" || len(health.Services) != 2 {
		t.Errorf("unexpected health: %+v", health)
	}
}

func TestReadyz_DatabaseDown(t *testing.T) {
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	router := handler.NewRouter(handler.Services{
		Auth:  service.NewAuthService(testSecret, "", logger),
		Store: pinger{err: errors.New("connection refused")},
	}, metrics, logger)

	rec := do(router, http.MethodGet, "/readyz", "", nil)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestMetricsAndPing(t *testing.T) {
	router := newTestRouter(t, newLeadStore(), "")

	for _, path := range []string{"/metrics", "/ping"} {
		if rec := do(router, http.MethodGet, path, "", nil); rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, newLeadStore(), "")

	req := httptest.NewRequest(http.MethodOptions, "/v1/leads", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected permissive CORS, got %q", got)
	}
}

// ===== Auth =====

func TestV1RequiresBearerToken(t *testing.T) {
	router := newTestRouter(t, newLeadStore(), "")

	cases := map[string]string{
		"missing": "",
		"garbage": "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(router, http.MethodGet, "/v1/leads", token, nil)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
}

// ===== Leads =====

func TestLeadLifecycle(t *testing.T) {
	store := newLeadStore()
	router := newTestRouter(t, store, "")
	token := tokenFor(t, "user-1")

	rec := do(router, http.MethodPost, "/v1/leads", token, map[string]any{
		"first_name":        "Ana",
		"email":             "ana@example.com",
		"departure_airport": "kteb",
		"arrival_airport":   "kpbi",
		"departure_date":    "2026-12-20",
		"passengers":        4,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	lead := decodeLead(t, rec)
	if lead.DepartureAirport != "KTEB" || lead.Status != domain.LeadStatusNew {
		t.Errorf("unexpected lead: %+v", lead)
	}

	if rec := do(router, http.MethodGet, "/v1/leads/"+lead.ID, tokenFor(t, "user-2"), nil); rec.Code != http.StatusNotFound {
		t.Errorf("other user: expected 404, got %d", rec.Code)
	}

	rec = do(router, http.MethodPost, "/v1/leads/"+lead.ID+"/convert", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("convert: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result domain.ConversionResult
	json.NewDecoder(rec.Body).Decode(&result)
	if !result.Success || result.Account == nil || result.Opportunity == nil {
		t.Errorf("unexpected conversion: %+v", result)
	}

	if rec := do(router, http.MethodPost, "/v1/leads/"+lead.ID+"/convert", token, nil); rec.Code != http.StatusConflict {
		t.Errorf("second convert: expected 409, got %d", rec.Code)
	}

	rec = do(router, http.MethodGet, "/v1/opportunities", token, nil)
	var opps domain.ListResponse[domain.Opportunity]
	json.NewDecoder(rec.Body).Decode(&opps)
	if opps.Total != 1 {
		t.Errorf("expected 1 opportunity, got %d", opps.Total)
	}
}

func TestCreateLead_ValidationIs400(t *testing.T) {
	router := newTestRouter(t, newLeadStore(), "")
	token := tokenFor(t, "user-1")

	rec := do(router, http.MethodPost, "/v1/leads", token, map[string]any{"email": "nope"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/leads", bytes.NewBufferString("{broken"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON: expected 400, got %d", rec.Code)
	}
}

func TestListLeads_EmptyIsArray(t *testing.T) {
	router := newTestRouter(t, newLeadStore(), "")

	rec := do(router, http.MethodGet, "/v1/leads", tokenFor(t, "user-1"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var raw map[string]json.RawMessage
	json.NewDecoder(rec.Body).Decode(&raw)
	if string(raw["data"]) != "[]" {
		t.Errorf("expected empty array, got %s", raw["data"])
	}
}

// ===== Intake =====

func TestIntake(t *testing.T) {
	hash, err := service.HashIntakeToken(testIntakeToken)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	store := newLeadStore()
	router := newTestRouter(t, store, hash)

	page := map[string]any{
		"url":    "https://charter.example.com/request/7",
		"title":  "Charter request from Ana",
		"text":   "Ana needs a jet TEB to PBI",
		"emails": []string{"ana@example.com"},
	}

	intake := func(token string, body map[string]any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		json.NewEncoder(&buf).Encode(body)
		req := httptest.NewRequest(http.MethodPost, "/v1/leads/intake", &buf)
		if token != "" {
			req.Header.Set(handler.IntakeTokenHeader, token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("intake token with user", func(t *testing.T) {
		rec := intake(testIntakeToken, map[string]any{"pageData": page, "userId": "user-1"})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp domain.IntakeResponse
		json.NewDecoder(rec.Body).Decode(&resp)
		lead := store.leads[resp.LeadID]
		if lead == nil || lead.UserID != "user-1" || lead.Source != domain.LeadSourceExtension {
			t.Errorf("unexpected stored lead: %+v", lead)
		}
	})

	t.Run("intake token without user", func(t *testing.T) {
		if rec := intake(testIntakeToken, map[string]any{"pageData": page}); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("wrong intake token", func(t *testing.T) {
		if rec := intake("wrong-token-wrong-token", map[string]any{"pageData": page, "userId": "user-1"}); rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("jwt caller owns the lead", func(t *testing.T) {
		rec := do(router, http.MethodPost, "/v1/leads/intake", tokenFor(t, "user-9"), map[string]any{"pageData": page, "userId": "user-1"})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
		var resp domain.IntakeResponse
		json.NewDecoder(rec.Body).Decode(&resp)
		if lead := store.leads[resp.LeadID]; lead == nil || lead.UserID != "user-9" {
			t.Errorf("expected lead owned by the JWT caller, got %+v", lead)
		}
	})
}

func TestUnmountedRoutesAre404(t *testing.T) {
	router := newTestRouter(t, newLeadStore(), "")

	rec := do(router, http.MethodPost, "/v1/aviation/distance", tokenFor(t, "user-1"), map[string]string{"departureCode": "KJFK", "arrivalCode": "KLAX"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without an aviation service, got %d", rec.Code)
	}
}
