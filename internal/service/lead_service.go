// Package service provides the business logic layer (use cases) of the
// charter leads BFA: leads and their conversion, aviation lookups,
// trusted operators, quotes, templates, scraping imports and webhooks.
package service

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/observability"
	"github.com/boddenberg/charter-leads-bfa/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var leadTracer = otel.Tracer("service/leads")

const (
	defaultLeadLimit = 50
	maxLeadLimit     = 500
)

// LeadService owns the lead lifecycle: create, list, update, convert and
// the capture-agent intake.
type LeadService struct {
	leads     port.LeadStore
	accounts  port.AccountStore
	archive   port.PageArchive // optional
	extractor port.Extractor   // optional
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewLeadService creates the lead service. archive and extractor may be nil.
func NewLeadService(
	leads port.LeadStore,
	accounts port.AccountStore,
	archive port.PageArchive,
	extractor port.Extractor,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *LeadService {
	return &LeadService{
		leads:     leads,
		accounts:  accounts,
		archive:   archive,
		extractor: extractor,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// ============================================================
// Create / read / update
// ============================================================

func (s *LeadService) CreateLead(ctx context.Context, userID string, req *domain.CreateLeadRequest) (*domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.CreateLead")
	defer span.End()

	if err := normalizeLeadRequest(req); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	source := req.Source
	if source == "" {
		source = domain.LeadSourceManual
	}
	lead := &domain.Lead{
		ID:               uuid.NewString(),
		UserID:           userID,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Email:            req.Email,
		Phone:            req.Phone,
		Company:          req.Company,
		TripType:         req.TripType,
		DepartureAirport: req.DepartureAirport,
		ArrivalAirport:   req.ArrivalAirport,
		DepartureDate:    req.DepartureDate,
		DepartureTime:    req.DepartureTime,
		ReturnDate:       req.ReturnDate,
		ReturnTime:       req.ReturnTime,
		Passengers:       req.Passengers,
		Status:           domain.LeadStatusNew,
		Source:           source,
		SourceURL:        req.SourceURL,
		Notes:            req.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	created, err := s.leads.CreateLead(ctx, lead)
	if err != nil {
		return nil, fmt.Errorf("create lead: %w", err)
	}
	s.metrics.IncrLeadCreated(source)
	span.SetAttributes(attribute.String("lead.id", created.ID), attribute.String("lead.source", source))
	return created, nil
}

func (s *LeadService) GetLead(ctx context.Context, userID, leadID string) (*domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.GetLead")
	defer span.End()

	return s.leads.GetLead(ctx, userID, leadID)
}

func (s *LeadService) ListLeads(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.ListLeads")
	defer span.End()

	if filter.Status != "" && !domain.IsValidLeadStatus(filter.Status) {
		return nil, &domain.ErrValidation{Field: "status", Message: "unknown lead status " + filter.Status}
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultLeadLimit
	case filter.Limit > maxLeadLimit:
		filter.Limit = maxLeadLimit
	}
	return s.leads.ListLeads(ctx, filter)
}

// UpdateLead changes status and/or notes. Conversion has its own
// operation, so status "converted" is rejected here.
func (s *LeadService) UpdateLead(ctx context.Context, userID, leadID string, req *domain.UpdateLeadRequest) (*domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.UpdateLead")
	defer span.End()

	fields := map[string]any{}
	if req.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*req.Status))
		if !domain.IsValidLeadStatus(status) {
			return nil, &domain.ErrValidation{Field: "status", Message: "unknown lead status " + *req.Status}
		}
		if status == domain.LeadStatusConverted {
			return nil, &domain.ErrValidation{Field: "status", Message: "use the convert operation to convert a lead"}
		}
		fields["status"] = status
	}
	if req.Notes != nil {
		fields["notes"] = *req.Notes
	}
	if len(fields) == 0 {
		return nil, &domain.ErrValidation{Field: "body", Message: "nothing to update"}
	}

	current, err := s.leads.GetLead(ctx, userID, leadID)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.LeadStatusConverted && fields["status"] != nil {
		return nil, &domain.ErrConflict{Message: "lead " + leadID + " is already converted"}
	}

	update := s.leads.UpdateLead
	if _, ok := fields["status"]; ok {
		// A conversion may land between the read above and this write.
		update = s.leads.UpdateOpenLead
	}
	updated, err := update(ctx, leadID, fields)
	if err != nil {
		return nil, fmt.Errorf("update lead: %w", err)
	}
	return updated, nil
}

// ============================================================
// Conversion: Lead → Account + Opportunity
// ============================================================

// ConvertLead creates an Account and an Opportunity from the lead, copying
// the trip unchanged, and marks the lead converted exactly once. The store
// claims the lead atomically; a second conversion gets *domain.ErrConflict.
// If account or opportunity creation fails the claim is released.
func (s *LeadService) ConvertLead(ctx context.Context, userID, leadID string, req *domain.ConvertLeadRequest) (*domain.ConversionResult, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.ConvertLead")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", leadID))

	if req == nil {
		req = &domain.ConvertLeadRequest{}
	}
	if req.Probability < 0 || req.Probability > 100 {
		return nil, &domain.ErrValidation{Field: "probability", Message: "must be between 0 and 100"}
	}
	if req.Amount < 0 {
		return nil, &domain.ErrValidation{Field: "amount", Message: "must not be negative"}
	}

	lead, err := s.leads.GetLead(ctx, userID, leadID)
	if err != nil {
		return nil, err
	}
	if lead.Status == domain.LeadStatusConverted {
		return nil, &domain.ErrConflict{Message: "lead " + leadID + " is already converted"}
	}
	previousStatus := lead.Status

	now := s.now().UTC()
	converted, err := s.leads.MarkLeadConverted(ctx, leadID, now)
	if err != nil {
		return nil, err
	}

	account, opp, err := s.createAccountAndOpportunity(ctx, userID, lead, req, now)
	if err != nil {
		if _, rbErr := s.leads.UpdateLead(ctx, leadID, map[string]any{
			"status":       previousStatus,
			"converted_at": nil,
		}); rbErr != nil {
			s.logger.Error("failed to release lead conversion",
				zap.String("lead_id", leadID),
				zap.Error(rbErr),
			)
		}
		return nil, err
	}

	s.metrics.IncrLeadConverted()
	s.logger.Info("lead converted",
		zap.String("lead_id", leadID),
		zap.String("account_id", account.ID),
		zap.String("opportunity_id", opp.ID),
	)
	return &domain.ConversionResult{Success: true, Lead: converted, Account: account, Opportunity: opp}, nil
}

func (s *LeadService) createAccountAndOpportunity(ctx context.Context, userID string, lead *domain.Lead, req *domain.ConvertLeadRequest, now time.Time) (*domain.Account, *domain.Opportunity, error) {
	name := strings.TrimSpace(req.AccountName)
	if name == "" {
		name = lead.Company
	}
	if name == "" {
		name = lead.FullName()
	}

	account, err := s.accounts.CreateAccount(ctx, &domain.Account{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Email:     lead.Email,
		Phone:     lead.Phone,
		Company:   lead.Company,
		LeadID:    lead.ID,
		CreatedAt: now,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create account: %w", err)
	}

	stage := req.Stage
	if stage == "" {
		stage = domain.StageQualification
	}
	probability := req.Probability
	if probability == 0 {
		probability = 10
	}

	opp, err := s.accounts.CreateOpportunity(ctx, &domain.Opportunity{
		ID:               uuid.NewString(),
		UserID:           userID,
		AccountID:        account.ID,
		LeadID:           lead.ID,
		Name:             opportunityName(lead),
		Stage:            stage,
		Amount:           req.Amount,
		Probability:      probability,
		TripType:         lead.TripType,
		DepartureAirport: lead.DepartureAirport,
		ArrivalAirport:   lead.ArrivalAirport,
		DepartureDate:    lead.DepartureDate,
		DepartureTime:    lead.DepartureTime,
		ReturnDate:       lead.ReturnDate,
		ReturnTime:       lead.ReturnTime,
		Passengers:       lead.Passengers,
		CreatedAt:        now,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create opportunity: %w", err)
	}
	return account, opp, nil
}

func opportunityName(lead *domain.Lead) string {
	route := strings.Trim(lead.DepartureAirport+"-"+lead.ArrivalAirport, "-")
	if route == "" {
		return lead.FullName()
	}
	if lead.DepartureDate == "" {
		return lead.FullName() + " " + route
	}
	return fmt.Sprintf("%s %s %s", lead.FullName(), route, lead.DepartureDate)
}

func (s *LeadService) ListOpportunities(ctx context.Context, userID string) ([]domain.Opportunity, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.ListOpportunities")
	defer span.End()

	return s.accounts.ListOpportunities(ctx, userID)
}

// ============================================================
// Capture-agent intake & AI parsing
// ============================================================

// Intake turns a captured page into a lead. The raw page is archived when
// object storage is configured; archive failures are logged, not fatal.
// With an extractor configured the trip fields are parsed from the page
// text, otherwise the lead carries contact data and the page text as notes.
func (s *LeadService) Intake(ctx context.Context, userID string, req *domain.IntakeRequest) (*domain.IntakeResponse, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.Intake")
	defer span.End()

	page := &req.PageData
	if strings.TrimSpace(page.URL) == "" {
		return nil, &domain.ErrValidation{Field: "pageData.url", Message: "is required"}
	}
	if req.UserID != "" {
		userID = req.UserID
	}

	var archiveKey string
	if s.archive != nil {
		key, err := s.archive.Archive(ctx, userID, page)
		if err != nil {
			s.logger.Warn("page archive failed", zap.String("url", page.URL), zap.Error(err))
		} else {
			archiveKey = key
		}
	}

	leadReq := s.draftFromPage(ctx, page)
	leadReq.Source = domain.LeadSourceExtension
	leadReq.SourceURL = page.URL

	lead, err := s.CreateLead(ctx, userID, leadReq)
	if err != nil {
		return nil, err
	}
	return &domain.IntakeResponse{Success: true, LeadID: lead.ID, ArchiveKey: archiveKey}, nil
}

func (s *LeadService) draftFromPage(ctx context.Context, page *domain.PageData) *domain.CreateLeadRequest {
	draft := &domain.CreateLeadRequest{}
	if s.extractor != nil && strings.TrimSpace(page.Text) != "" {
		parsed, err := s.extractor.ExtractLead(ctx, truncateText(page.Text, 12000))
		if err != nil {
			s.logger.Warn("lead extraction failed, keeping raw capture", zap.String("url", page.URL), zap.Error(err))
		} else {
			draft = parsed
		}
	}

	if draft.Email == "" && len(page.Emails) > 0 {
		draft.Email = page.Emails[0]
	}
	if draft.Phone == "" && len(page.Phones) > 0 {
		draft.Phone = page.Phones[0]
	}
	if draft.FirstName == "" && draft.LastName == "" && draft.Email == "" && draft.Phone == "" {
		draft.FirstName = pageContactName(page)
	}
	if draft.Notes == "" {
		draft.Notes = strings.TrimSpace(page.Title + "\n" + truncateText(page.Text, 2000))
	}
	return draft
}

func pageContactName(page *domain.PageData) string {
	if t := strings.TrimSpace(page.Title); t != "" {
		return truncateText(t, 80)
	}
	if u, err := url.Parse(page.URL); err == nil && u.Host != "" {
		return u.Host
	}
	return "Captured lead"
}

// ParseLead extracts a lead draft from pasted text. Nothing is persisted.
func (s *LeadService) ParseLead(ctx context.Context, text string) (*domain.CreateLeadRequest, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.ParseLead")
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return nil, &domain.ErrValidation{Field: "text", Message: "is required"}
	}
	if s.extractor == nil {
		return nil, &domain.ErrNotConfigured{Integration: "LLM provider"}
	}

	draft, err := s.extractor.ExtractLead(ctx, truncateText(text, 12000))
	if err != nil {
		s.metrics.IncrExternalError("llm")
		return nil, fmt.Errorf("parse lead: %w", err)
	}
	draft.Source = domain.LeadSourceAIParse
	return draft, nil
}

// ============================================================
// Validation
// ============================================================

func normalizeLeadRequest(req *domain.CreateLeadRequest) error {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.DepartureAirport = strings.ToUpper(strings.TrimSpace(req.DepartureAirport))
	req.ArrivalAirport = strings.ToUpper(strings.TrimSpace(req.ArrivalAirport))

	if req.FirstName == "" && req.LastName == "" && req.Email == "" && req.Phone == "" {
		return &domain.ErrValidation{Field: "first_name", Message: "a name, email or phone is required"}
	}
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			return &domain.ErrValidation{Field: "email", Message: "invalid email address"}
		}
	}
	if req.Passengers < 0 {
		return &domain.ErrValidation{Field: "passengers", Message: "must not be negative"}
	}

	switch req.TripType {
	case "":
		req.TripType = domain.TripTypeOneWay
		if req.ReturnDate != "" {
			req.TripType = domain.TripTypeRoundTrip
		}
	case domain.TripTypeOneWay, domain.TripTypeRoundTrip, domain.TripTypeMultiLeg:
	default:
		return &domain.ErrValidation{Field: "trip_type", Message: "must be one_way, round_trip or multi_leg"}
	}

	for field, v := range map[string]string{"departure_date": req.DepartureDate, "return_date": req.ReturnDate} {
		if v == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", v); err != nil {
			return &domain.ErrValidation{Field: field, Message: "must be YYYY-MM-DD"}
		}
	}
	if req.DepartureDate != "" && req.ReturnDate != "" && req.ReturnDate < req.DepartureDate {
		return &domain.ErrValidation{Field: "return_date", Message: "must not be before departure_date"}
	}
	return nil
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
