package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var importTracer = otel.Tracer("service/imports")

type leadCreator interface {
	CreateLead(ctx context.Context, userID string, req *domain.CreateLeadRequest) (*domain.Lead, error)
}

// ImportService scrapes pages into pending lead imports and turns approved
// imports into leads.
type ImportService struct {
	imports   port.ImportStore
	leads     leadCreator
	scraper   port.PageScraper // optional
	extractor port.Extractor   // optional
	logger    *zap.Logger
	now       func() time.Time
}

// NewImportService creates the service. leads is normally the LeadService.
func NewImportService(imports port.ImportStore, leads leadCreator, scraper port.PageScraper, extractor port.Extractor, logger *zap.Logger) *ImportService {
	return &ImportService{
		imports:   imports,
		leads:     leads,
		scraper:   scraper,
		extractor: extractor,
		logger:    logger,
		now:       time.Now,
	}
}

// Scrape loads the page in headless Chrome, extracts a lead draft and
// stores it as a pending import.
func (s *ImportService) Scrape(ctx context.Context, userID, rawURL string) (*domain.PendingLeadImport, error) {
	ctx, span := importTracer.Start(ctx, "ImportService.Scrape")
	defer span.End()

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &domain.ErrValidation{Field: "url", Message: "must be an absolute http(s) URL"}
	}
	if s.scraper == nil {
		return nil, &domain.ErrNotConfigured{Integration: "Browserless"}
	}

	page, err := s.scraper.Capture(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", u.Host, err)
	}

	draft := &domain.CreateLeadRequest{}
	if s.extractor != nil && strings.TrimSpace(page.Text) != "" {
		parsed, err := s.extractor.ExtractLead(ctx, truncateText(page.Text, 12000))
		if err != nil {
			return nil, fmt.Errorf("extract lead: %w", err)
		}
		draft = parsed
	}
	if draft.Email == "" && len(page.Emails) > 0 {
		draft.Email = page.Emails[0]
	}
	if draft.Phone == "" && len(page.Phones) > 0 {
		draft.Phone = page.Phones[0]
	}
	draft.Source = domain.LeadSourceScrape
	draft.SourceURL = page.URL

	imp, err := s.imports.CreateImport(ctx, &domain.PendingLeadImport{
		ID:        uuid.NewString(),
		UserID:    userID,
		SourceURL: page.URL,
		RawText:   truncateText(page.Text, 20000),
		Parsed:    draft,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("store import: %w", err)
	}
	s.logger.Info("page scraped into pending import", zap.String("import_id", imp.ID), zap.String("url", page.URL))
	return imp, nil
}

func (s *ImportService) ListImports(ctx context.Context, userID string) ([]domain.PendingLeadImport, error) {
	ctx, span := importTracer.Start(ctx, "ImportService.ListImports")
	defer span.End()

	return s.imports.ListImports(ctx, userID)
}

// Approve creates a lead from the import and deletes the import.
func (s *ImportService) Approve(ctx context.Context, userID, importID string) (*domain.Lead, error) {
	ctx, span := importTracer.Start(ctx, "ImportService.Approve")
	defer span.End()

	imp, err := s.imports.GetImport(ctx, userID, importID)
	if err != nil {
		return nil, err
	}
	req := imp.Parsed
	if req == nil {
		req = &domain.CreateLeadRequest{}
	}
	req.Source = domain.LeadSourceScrape
	if req.SourceURL == "" {
		req.SourceURL = imp.SourceURL
	}

	lead, err := s.leads.CreateLead(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	if err := s.imports.DeleteImport(ctx, imp.ID); err != nil {
		s.logger.Error("approved import not deleted", zap.String("import_id", imp.ID), zap.Error(err))
	}
	return lead, nil
}

// Reject deletes the import without creating a lead.
func (s *ImportService) Reject(ctx context.Context, userID, importID string) error {
	ctx, span := importTracer.Start(ctx, "ImportService.Reject")
	defer span.End()

	if _, err := s.imports.GetImport(ctx, userID, importID); err != nil {
		return err
	}
	return s.imports.DeleteImport(ctx, importID)
}
