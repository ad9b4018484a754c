package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

// UsageRecorder receives token accounting for every completion.
type UsageRecorder interface {
	RecordTokens(prompt, completion int)
	IncrLLMRequest(status string)
}

// Extractor implements port.Extractor.
type Extractor struct {
	completer Completer
	usage     UsageRecorder
	logger    *zap.Logger
}

// NewExtractor wires a completer. usage may be nil.
func NewExtractor(completer Completer, usage UsageRecorder, logger *zap.Logger) *Extractor {
	return &Extractor{completer: completer, usage: usage, logger: logger}
}

const leadPrompt = `You extract private jet charter requests from free text.
Answer with one JSON object and nothing else, using these keys:
first_name, last_name, email, phone, company, trip_type (one_way|round_trip|multi_leg),
departure_airport, arrival_airport (ICAO codes when you can infer them),
departure_date, return_date (YYYY-MM-DD), departure_time, return_time (HH:MM),
passengers (integer), notes.
Use an empty string for unknown text fields and 0 for unknown numbers.`

const quotesPrompt = `You extract operator charter quotes from an email.
Answer with a JSON object {"quotes":[...]} and nothing else. Each quote has:
operator_name, aircraft_type, category, price (number, no currency symbol), currency (ISO code),
passengers (integer), route (airport codes joined with "-"), departure_date, return_date (YYYY-MM-DD),
safety_rating (ARGUS/Wyvern rating if present).`

const openLegsPrompt = `You extract empty-leg (open leg) offers from an operator email.
Answer with a JSON object {"open_legs":[...]} and nothing else. Each leg has:
operator_name, aircraft_type, registration, departure_airport, arrival_airport (ICAO codes),
departure_date (YYYY-MM-DD), seats (integer), price (number), notes.`

func (e *Extractor) complete(ctx context.Context, system, user string, out any) error {
	text, usage, err := e.completer.Complete(ctx, system, user)
	if e.usage != nil {
		e.usage.RecordTokens(usage.PromptTokens, usage.CompletionTokens)
	}
	if err != nil {
		if e.usage != nil {
			e.usage.IncrLLMRequest("error")
		}
		return err
	}
	if e.usage != nil {
		e.usage.IncrLLMRequest("success")
	}

	if err := json.Unmarshal([]byte(StripFences(text)), out); err != nil {
		e.logger.Warn("llm returned invalid JSON", zap.String("text", text), zap.Error(err))
		return &domain.ErrExternalService{Service: "llm", Err: fmt.Errorf("invalid JSON answer: %w", err)}
	}
	return nil
}

// StripFences removes a surrounding ```json ... ``` block, if any.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ExtractLead parses a charter request out of free text.
func (e *Extractor) ExtractLead(ctx context.Context, text string) (*domain.CreateLeadRequest, error) {
	ctx, span := tracer.Start(ctx, "Extractor.ExtractLead")
	defer span.End()

	var req domain.CreateLeadRequest
	if err := e.complete(ctx, leadPrompt, text, &req); err != nil {
		return nil, err
	}
	req.DepartureAirport = strings.ToUpper(strings.TrimSpace(req.DepartureAirport))
	req.ArrivalAirport = strings.ToUpper(strings.TrimSpace(req.ArrivalAirport))
	return &req, nil
}

// ExtractQuotes parses operator quotes out of an email body.
func (e *Extractor) ExtractQuotes(ctx context.Context, email string) ([]domain.Quote, error) {
	ctx, span := tracer.Start(ctx, "Extractor.ExtractQuotes")
	defer span.End()

	var out struct {
		Quotes []domain.Quote `json:"quotes"`
	}
	if err := e.complete(ctx, quotesPrompt, email, &out); err != nil {
		return nil, err
	}
	for i := range out.Quotes {
		if out.Quotes[i].Currency == "" {
			out.Quotes[i].Currency = "USD"
		}
	}
	return out.Quotes, nil
}

// ExtractOpenLegs parses empty-leg offers out of an email body.
func (e *Extractor) ExtractOpenLegs(ctx context.Context, email string) ([]domain.OpenLeg, error) {
	ctx, span := tracer.Start(ctx, "Extractor.ExtractOpenLegs")
	defer span.End()

	var out struct {
		OpenLegs []domain.OpenLeg `json:"open_legs"`
	}
	if err := e.complete(ctx, openLegsPrompt, email, &out); err != nil {
		return nil, err
	}
	return out.OpenLegs, nil
}
