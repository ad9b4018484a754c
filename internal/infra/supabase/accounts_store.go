package supabase

import (
	"context"
	"net/url"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

// ============================================================
// Accounts & opportunities
// ============================================================

func (c *Client) CreateAccount(ctx context.Context, acct *domain.Account) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateAccount")
	defer span.End()

	var rows []domain.Account
	if err := c.insert(ctx, "accounts", acct, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return acct, nil
	}
	return &rows[0], nil
}

func (c *Client) CreateOpportunity(ctx context.Context, opp *domain.Opportunity) (*domain.Opportunity, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateOpportunity")
	defer span.End()

	var rows []domain.Opportunity
	if err := c.insert(ctx, "opportunities", opp, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return opp, nil
	}
	return &rows[0], nil
}

func (c *Client) ListOpportunities(ctx context.Context, userID string) ([]domain.Opportunity, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListOpportunities")
	defer span.End()

	params := url.Values{"user_id": {eq(userID)}, "order": {"created_at.desc"}}
	rows := []domain.Opportunity{}
	if err := c.get(ctx, "opportunities", query("opportunities", params), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
