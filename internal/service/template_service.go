package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
)

var templateTracer = otel.Tracer("service/templates")

// placeholderRe matches {{name}} with optional inner spaces.
var placeholderRe = regexp.MustCompile(`\{\{\s*([a-z_]+)\s*\}\}`)

// TemplateService manages email templates and renders them for a lead.
type TemplateService struct {
	templates port.TemplateStore
	leads     port.LeadStore
	now       func() time.Time
}

func NewTemplateService(templates port.TemplateStore, leads port.LeadStore) *TemplateService {
	return &TemplateService{templates: templates, leads: leads, now: time.Now}
}

func (s *TemplateService) ListTemplates(ctx context.Context, userID string) ([]domain.EmailTemplate, error) {
	ctx, span := templateTracer.Start(ctx, "TemplateService.ListTemplates")
	defer span.End()

	return s.templates.ListTemplates(ctx, userID)
}

func (s *TemplateService) CreateTemplate(ctx context.Context, userID string, req *domain.TemplateRequest) (*domain.EmailTemplate, error) {
	ctx, span := templateTracer.Start(ctx, "TemplateService.CreateTemplate")
	defer span.End()

	switch {
	case strings.TrimSpace(req.Name) == "":
		return nil, &domain.ErrValidation{Field: "name", Message: "is required"}
	case strings.TrimSpace(req.Subject) == "":
		return nil, &domain.ErrValidation{Field: "subject", Message: "is required"}
	case strings.TrimSpace(req.Body) == "":
		return nil, &domain.ErrValidation{Field: "body", Message: "is required"}
	}

	t, err := s.templates.CreateTemplate(ctx, &domain.EmailTemplate{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(req.Name),
		Subject:   req.Subject,
		Body:      req.Body,
		Category:  req.Category,
		UpdatedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return t, nil
}

// UpdateTemplate changes the non-empty fields of req.
func (s *TemplateService) UpdateTemplate(ctx context.Context, userID, templateID string, req *domain.TemplateRequest) (*domain.EmailTemplate, error) {
	ctx, span := templateTracer.Start(ctx, "TemplateService.UpdateTemplate")
	defer span.End()

	fields := map[string]any{}
	if v := strings.TrimSpace(req.Name); v != "" {
		fields["name"] = v
	}
	if req.Subject != "" {
		fields["subject"] = req.Subject
	}
	if req.Body != "" {
		fields["body"] = req.Body
	}
	if req.Category != "" {
		fields["category"] = req.Category
	}
	if len(fields) == 0 {
		return nil, &domain.ErrValidation{Field: "body", Message: "nothing to update"}
	}

	if _, err := s.templates.GetTemplate(ctx, userID, templateID); err != nil {
		return nil, err
	}
	t, err := s.templates.UpdateTemplate(ctx, templateID, fields)
	if err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return t, nil
}

// RenderTemplate fills the template placeholders with the lead's fields.
// Unknown placeholders are left in place so they stand out in review.
func (s *TemplateService) RenderTemplate(ctx context.Context, userID, templateID, leadID string) (*domain.RenderedEmail, error) {
	ctx, span := templateTracer.Start(ctx, "TemplateService.RenderTemplate")
	defer span.End()

	if leadID == "" {
		return nil, &domain.ErrValidation{Field: "leadId", Message: "is required"}
	}
	t, err := s.templates.GetTemplate(ctx, userID, templateID)
	if err != nil {
		return nil, err
	}
	lead, err := s.leads.GetLead(ctx, userID, leadID)
	if err != nil {
		return nil, err
	}

	values := templateValues(lead)
	return &domain.RenderedEmail{
		Subject: render(t.Subject, values),
		Body:    render(t.Body, values),
		To:      lead.Email,
	}, nil
}

func templateValues(l *domain.Lead) map[string]string {
	passengers := ""
	if l.Passengers > 0 {
		passengers = strconv.Itoa(l.Passengers)
	}
	return map[string]string{
		"first_name":        l.FirstName,
		"last_name":         l.LastName,
		"full_name":         l.FullName(),
		"email":             l.Email,
		"phone":             l.Phone,
		"company":           l.Company,
		"departure_airport": l.DepartureAirport,
		"arrival_airport":   l.ArrivalAirport,
		"route":             strings.Trim(l.DepartureAirport+" → "+l.ArrivalAirport, " →"),
		"departure_date":    l.DepartureDate,
		"departure_time":    l.DepartureTime,
		"return_date":       l.ReturnDate,
		"return_time":       l.ReturnTime,
		"passengers":        passengers,
		"trip_type":         strings.ReplaceAll(l.TripType, "_", " "),
	}
}

func render(text string, values map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := values[name]; ok {
			return v
		}
		return m
	})
}
