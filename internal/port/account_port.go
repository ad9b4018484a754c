package port

import (
	"context"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

// AccountStore persists the records created by lead conversion.
type AccountStore interface {
	CreateAccount(ctx context.Context, acct *domain.Account) (*domain.Account, error)
	CreateOpportunity(ctx context.Context, opp *domain.Opportunity) (*domain.Opportunity, error)
	ListOpportunities(ctx context.Context, userID string) ([]domain.Opportunity, error)
}
