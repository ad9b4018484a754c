package port

import (
	"context"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

// QuoteStore persists parsed quotes and open legs.
type QuoteStore interface {
	CreateQuotes(ctx context.Context, quotes []domain.Quote) ([]domain.Quote, error)
	CreateOpenLegs(ctx context.Context, legs []domain.OpenLeg) ([]domain.OpenLeg, error)
}

// TemplateStore handles email templates.
type TemplateStore interface {
	ListTemplates(ctx context.Context, userID string) ([]domain.EmailTemplate, error)
	GetTemplate(ctx context.Context, userID, templateID string) (*domain.EmailTemplate, error)
	CreateTemplate(ctx context.Context, t *domain.EmailTemplate) (*domain.EmailTemplate, error)
	UpdateTemplate(ctx context.Context, templateID string, fields map[string]any) (*domain.EmailTemplate, error)
}

// Store is everything the BFA persists. Both backends implement it.
type Store interface {
	LeadStore
	AccountStore
	ImportStore
	WebhookLogStore
	AirportStore
	AircraftStore
	OperatorStore
	QuoteStore
	TemplateStore
	Ping(ctx context.Context) error
}
