package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/observability"
	"github.com/boddenberg/charter-leads-bfa/internal/port"
	"github.com/boddenberg/charter-leads-bfa/internal/quoteparse"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var quoteTracer = otel.Tracer("service/quotes")

const maxEmailBytes = 64 << 10

// QuoteService parses operator quotes and open legs out of pasted text or
// inbound emails.
type QuoteService struct {
	store     port.QuoteStore
	extractor port.Extractor // optional
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewQuoteService creates the service. Without an extractor, email parsing
// falls back to the regex parser.
func NewQuoteService(store port.QuoteStore, extractor port.Extractor, metrics *observability.Metrics, logger *zap.Logger) *QuoteService {
	return &QuoteService{store: store, extractor: extractor, metrics: metrics, logger: logger, now: time.Now}
}

// ParseQuotes splits pasted multi-option quote text with the regex parser.
func (s *QuoteService) ParseQuotes(ctx context.Context, text string) ([]domain.ParsedQuote, error) {
	_, span := quoteTracer.Start(ctx, "QuoteService.ParseQuotes")
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return nil, &domain.ErrValidation{Field: "text", Message: "is required"}
	}
	quotes := quoteparse.Parse(text)
	if quotes == nil {
		quotes = []domain.ParsedQuote{}
	}
	return quotes, nil
}

// ParseQuoteEmail extracts quotes from an operator email and stores them.
func (s *QuoteService) ParseQuoteEmail(ctx context.Context, userID string, req *domain.ParseEmailRequest) ([]domain.Quote, error) {
	ctx, span := quoteTracer.Start(ctx, "QuoteService.ParseQuoteEmail")
	defer span.End()

	email, err := emailBody(req.Email)
	if err != nil {
		return nil, err
	}

	var quotes []domain.Quote
	if s.extractor != nil {
		quotes, err = s.extractor.ExtractQuotes(ctx, email)
		if err != nil {
			s.metrics.IncrExternalError("llm")
			return nil, fmt.Errorf("extract quotes: %w", err)
		}
	} else {
		quotes = quotesFromRegex(email)
	}
	if len(quotes) == 0 {
		return []domain.Quote{}, nil
	}

	now := s.now().UTC()
	for i := range quotes {
		quotes[i].ID = uuid.NewString()
		quotes[i].UserID = userID
		quotes[i].LeadID = req.LeadID
		quotes[i].RawText = truncateText(email, 8000)
		quotes[i].CreatedAt = now
	}

	stored, err := s.store.CreateQuotes(ctx, quotes)
	if err != nil {
		return nil, fmt.Errorf("store quotes: %w", err)
	}
	s.logger.Info("quotes parsed from email", zap.Int("count", len(stored)), zap.String("lead_id", req.LeadID))
	return stored, nil
}

func quotesFromRegex(text string) []domain.Quote {
	parsed := quoteparse.Parse(text)
	quotes := make([]domain.Quote, 0, len(parsed))
	for _, p := range parsed {
		price, _ := quoteparse.PriceValue(p.Price)
		pax, _ := strconv.Atoi(p.Passengers)
		dep, ret := quoteparse.SplitDates(p.Dates)
		quotes = append(quotes, domain.Quote{
			AircraftType:  p.Aircraft,
			Category:      p.Category,
			Price:         price,
			Currency:      "USD",
			Passengers:    pax,
			Route:         p.Route,
			DepartureDate: dep,
			ReturnDate:    ret,
			SafetyRating:  p.SafetyRating,
		})
	}
	return quotes
}

// ParseOpenLegEmail extracts empty-leg offers from an operator email and
// stores them. It needs an LLM provider.
func (s *QuoteService) ParseOpenLegEmail(ctx context.Context, userID string, req *domain.ParseEmailRequest) ([]domain.OpenLeg, error) {
	ctx, span := quoteTracer.Start(ctx, "QuoteService.ParseOpenLegEmail")
	defer span.End()

	email, err := emailBody(req.Email)
	if err != nil {
		return nil, err
	}
	if s.extractor == nil {
		return nil, &domain.ErrNotConfigured{Integration: "LLM provider"}
	}

	legs, err := s.extractor.ExtractOpenLegs(ctx, email)
	if err != nil {
		s.metrics.IncrExternalError("llm")
		return nil, fmt.Errorf("extract open legs: %w", err)
	}
	if len(legs) == 0 {
		return []domain.OpenLeg{}, nil
	}

	now := s.now().UTC()
	for i := range legs {
		legs[i].ID = uuid.NewString()
		legs[i].UserID = userID
		legs[i].DepartureAirport = strings.ToUpper(strings.TrimSpace(legs[i].DepartureAirport))
		legs[i].ArrivalAirport = strings.ToUpper(strings.TrimSpace(legs[i].ArrivalAirport))
		legs[i].CreatedAt = now
	}

	stored, err := s.store.CreateOpenLegs(ctx, legs)
	if err != nil {
		return nil, fmt.Errorf("store open legs: %w", err)
	}
	return stored, nil
}

func emailBody(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", &domain.ErrValidation{Field: "email", Message: "is required"}
	}
	if len(email) > maxEmailBytes {
		return "", &domain.ErrValidation{Field: "email", Message: "is larger than 64 KiB"}
	}
	return email, nil
}
