package port

import (
	"context"
	"time"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

// LeadStore handles lead persistence. Leads are never deleted.
type LeadStore interface {
	CreateLead(ctx context.Context, lead *domain.Lead) (*domain.Lead, error)
	GetLead(ctx context.Context, userID, leadID string) (*domain.Lead, error)
	ListLeads(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, error)
	UpdateLead(ctx context.Context, leadID string, fields map[string]any) (*domain.Lead, error)

	// UpdateOpenLead applies fields only while the lead is not converted.
	// A converted lead yields *domain.ErrConflict.
	UpdateOpenLead(ctx context.Context, leadID string, fields map[string]any) (*domain.Lead, error)

	// MarkLeadConverted flips status to converted unless it already is.
	// A lead that was already converted yields *domain.ErrConflict.
	MarkLeadConverted(ctx context.Context, leadID string, at time.Time) (*domain.Lead, error)
}

// ImportStore holds scraped leads waiting for approval.
type ImportStore interface {
	CreateImport(ctx context.Context, imp *domain.PendingLeadImport) (*domain.PendingLeadImport, error)
	ListImports(ctx context.Context, userID string) ([]domain.PendingLeadImport, error)
	GetImport(ctx context.Context, userID, importID string) (*domain.PendingLeadImport, error)
	DeleteImport(ctx context.Context, importID string) error
}

// WebhookLogStore is the audit trail of outbound webhooks.
type WebhookLogStore interface {
	CreateWebhookLog(ctx context.Context, log *domain.WebhookLog) error
	ListWebhookLogs(ctx context.Context, userID string, limit int) ([]domain.WebhookLog, error)
}
