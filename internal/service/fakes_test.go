package service_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

// --- In-memory store ---

type memStore struct {
	mu          sync.Mutex
	leads       map[string]*domain.Lead
	accounts    []domain.Account
	opps        []domain.Opportunity
	imports     map[string]*domain.PendingLeadImport
	hookLogs    []domain.WebhookLog
	airports    map[string]*domain.Airport
	aircraft    []domain.Aircraft
	fleets      map[string][]domain.AircraftLocation
	operators   map[string]*domain.TrustedOperator
	quotes      []domain.Quote
	openLegs    []domain.OpenLeg
	templates   map[string]*domain.EmailTemplate
	upserts     int
	accountErr  error
	oppErr      error
	convertHits int

	afterGetLead func(leadID string)
}

func newMemStore() *memStore {
	return &memStore{
		leads:     map[string]*domain.Lead{},
		imports:   map[string]*domain.PendingLeadImport{},
		airports:  map[string]*domain.Airport{},
		fleets:    map[string][]domain.AircraftLocation{},
		operators: map[string]*domain.TrustedOperator{},
		templates: map[string]*domain.EmailTemplate{},
	}
}

func (m *memStore) CreateLead(_ context.Context, l *domain.Lead) (*domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.leads[l.ID] = &cp
	return &cp, nil
}

func (m *memStore) GetLead(_ context.Context, userID, leadID string) (*domain.Lead, error) {
	m.mu.Lock()
	l, ok := m.leads[leadID]
	if !ok || l.UserID != userID {
		m.mu.Unlock()
		return nil, &domain.ErrNotFound{Resource: "lead", ID: leadID}
	}
	cp := *l
	hook := m.afterGetLead
	m.mu.Unlock()

	if hook != nil {
		hook(leadID)
	}
	return &cp, nil
}

func (m *memStore) ListLeads(_ context.Context, f domain.LeadFilter) ([]domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Lead{}
	for _, l := range m.leads {
		if l.UserID == f.UserID && (f.Status == "" || l.Status == f.Status) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) UpdateLead(_ context.Context, leadID string, fields map[string]any) (*domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[leadID]
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

func (m *memStore) UpdateOpenLead(ctx context.Context, leadID string, fields map[string]any) (*domain.Lead, error) {
	m.mu.Lock()
	l, ok := m.leads[leadID]
	converted := ok && l.Status == domain.LeadStatusConverted
	m.mu.Unlock()
	if converted {
		return nil, &domain.ErrConflict{Message: "lead " + leadID + " is already converted"}
	}
	return m.UpdateLead(ctx, leadID, fields)
}

func (m *memStore) MarkLeadConverted(_ context.Context, leadID string, at time.Time) (*domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[leadID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "lead", ID: leadID}
	}
	if l.Status == domain.LeadStatusConverted {
		return nil, &domain.ErrConflict{Message: "lead " + leadID + " is already converted"}
	}
	m.convertHits++
	l.Status = domain.LeadStatusConverted
	l.ConvertedAt = &at
	cp := *l
	return &cp, nil
}

func (m *memStore) CreateAccount(_ context.Context, a *domain.Account) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accountErr != nil {
		return nil, m.accountErr
	}
	m.accounts = append(m.accounts, *a)
	return a, nil
}

func (m *memStore) CreateOpportunity(_ context.Context, o *domain.Opportunity) (*domain.Opportunity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.oppErr != nil {
		return nil, m.oppErr
	}
	m.opps = append(m.opps, *o)
	return o, nil
}

func (m *memStore) ListOpportunities(_ context.Context, userID string) ([]domain.Opportunity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Opportunity{}
	for _, o := range m.opps {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) CreateImport(_ context.Context, imp *domain.PendingLeadImport) (*domain.PendingLeadImport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imports[imp.ID] = imp
	return imp, nil
}

func (m *memStore) ListImports(_ context.Context, userID string) ([]domain.PendingLeadImport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.PendingLeadImport{}
	for _, imp := range m.imports {
		if imp.UserID == userID {
			out = append(out, *imp)
		}
	}
	return out, nil
}

func (m *memStore) GetImport(_ context.Context, userID, id string) (*domain.PendingLeadImport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	imp, ok := m.imports[id]
	if !ok || imp.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "import", ID: id}
	}
	return imp, nil
}

func (m *memStore) DeleteImport(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.imports, id)
	return nil
}

func (m *memStore) CreateWebhookLog(_ context.Context, l *domain.WebhookLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hookLogs = append(m.hookLogs, *l)
	return nil
}

func (m *memStore) ListWebhookLogs(_ context.Context, userID string, limit int) ([]domain.WebhookLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.WebhookLog{}
	for _, l := range m.hookLogs {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) GetAirport(_ context.Context, code string) (*domain.Airport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.airports {
		if strings.EqualFold(a.ICAO, code) || strings.EqualFold(a.IATA, code) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "airport", ID: code}
}

func (m *memStore) ListAirports(_ context.Context) ([]domain.Airport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Airport{}
	for _, a := range m.airports {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ICAO < out[j].ICAO })
	return out, nil
}

func (m *memStore) UpsertAirport(_ context.Context, a *domain.Airport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.airports[a.ICAO] = &cp
	m.upserts++
	return nil
}

func (m *memStore) ListAircraft(_ context.Context, category string) ([]domain.Aircraft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Aircraft{}
	for _, a := range m.aircraft {
		if category == "" || strings.EqualFold(a.Category, category) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) UpsertAircraft(_ context.Context, list []domain.Aircraft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aircraft = append(m.aircraft[:0], list...)
	return nil
}

func (m *memStore) ListFleet(_ context.Context, operatorID string) ([]domain.AircraftLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AircraftLocation{}, m.fleets[operatorID]...), nil
}

func (m *memStore) ReplaceFleet(_ context.Context, operatorID string, fleet []domain.AircraftLocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fleets[operatorID] = append([]domain.AircraftLocation{}, fleet...)
	return nil
}

func (m *memStore) ListOperators(_ context.Context, userID string) ([]domain.TrustedOperator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.TrustedOperator{}
	for _, o := range m.operators {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memStore) ListAllOperators(_ context.Context) ([]domain.TrustedOperator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.TrustedOperator{}
	for _, o := range m.operators {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) GetOperator(_ context.Context, userID, id string) (*domain.TrustedOperator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.operators[id]
	if !ok || o.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "operator", ID: id}
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) CreateOperator(_ context.Context, o *domain.TrustedOperator) (*domain.TrustedOperator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.operators[o.ID] = &cp
	return o, nil
}

func (m *memStore) UpdateFleetCache(_ context.Context, id string, aircraft []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.operators[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "operator", ID: id}
	}
	o.CachedAircraft = aircraft
	o.FleetRefreshedAt = &at
	return nil
}

func (m *memStore) CreateQuotes(_ context.Context, q []domain.Quote) ([]domain.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes = append(m.quotes, q...)
	return q, nil
}

func (m *memStore) CreateOpenLegs(_ context.Context, legs []domain.OpenLeg) ([]domain.OpenLeg, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openLegs = append(m.openLegs, legs...)
	return legs, nil
}

func (m *memStore) ListTemplates(_ context.Context, userID string) ([]domain.EmailTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.EmailTemplate{}
	for _, t := range m.templates {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memStore) GetTemplate(_ context.Context, userID, id string) (*domain.EmailTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok || t.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "template", ID: id}
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) CreateTemplate(_ context.Context, t *domain.EmailTemplate) (*domain.EmailTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.templates[t.ID] = &cp
	return t, nil
}

func (m *memStore) UpdateTemplate(_ context.Context, id string, fields map[string]any) (*domain.EmailTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "template", ID: id}
	}
	if v, ok := fields["name"].(string); ok {
		t.Name = v
	}
	if v, ok := fields["subject"].(string); ok {
		t.Subject = v
	}
	if v, ok := fields["body"].(string); ok {
		t.Body = v
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) Ping(context.Context) error { return nil }

// --- Upstream fakes ---

type fakeExtractor struct {
	lead   *domain.CreateLeadRequest
	quotes []domain.Quote
	legs   []domain.OpenLeg
	err    error
}

func (f *fakeExtractor) ExtractLead(context.Context, string) (*domain.CreateLeadRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.lead
	return &cp, nil
}

func (f *fakeExtractor) ExtractQuotes(context.Context, string) ([]domain.Quote, error) {
	return f.quotes, f.err
}

func (f *fakeExtractor) ExtractOpenLegs(context.Context, string) ([]domain.OpenLeg, error) {
	return f.legs, f.err
}

type fakeArchive struct {
	key string
	err error
}

func (f *fakeArchive) Archive(context.Context, string, *domain.PageData) (string, error) {
	return f.key, f.err
}
