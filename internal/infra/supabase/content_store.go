package supabase

import (
	"context"
	"net/url"
	"time"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

// ============================================================
// Quotes & open legs
// ============================================================

func (c *Client) CreateQuotes(ctx context.Context, quotes []domain.Quote) ([]domain.Quote, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateQuotes")
	defer span.End()

	if len(quotes) == 0 {
		return []domain.Quote{}, nil
	}
	var rows []domain.Quote
	if err := c.insert(ctx, "quotes", quotes, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) CreateOpenLegs(ctx context.Context, legs []domain.OpenLeg) ([]domain.OpenLeg, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateOpenLegs")
	defer span.End()

	if len(legs) == 0 {
		return []domain.OpenLeg{}, nil
	}
	var rows []domain.OpenLeg
	if err := c.insert(ctx, "open_legs", legs, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ============================================================
// Email templates
// ============================================================

func (c *Client) ListTemplates(ctx context.Context, userID string) ([]domain.EmailTemplate, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListTemplates")
	defer span.End()

	params := url.Values{"user_id": {eq(userID)}, "order": {"name.asc"}}
	rows := []domain.EmailTemplate{}
	if err := c.get(ctx, "email_templates", query("email_templates", params), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) GetTemplate(ctx context.Context, userID, templateID string) (*domain.EmailTemplate, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetTemplate")
	defer span.End()

	params := url.Values{"id": {eq(templateID)}, "user_id": {eq(userID)}, "limit": {"1"}}
	var rows []domain.EmailTemplate
	if err := c.get(ctx, "email_templates", query("email_templates", params), &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "template", ID: templateID}
	}
	return &rows[0], nil
}

func (c *Client) CreateTemplate(ctx context.Context, t *domain.EmailTemplate) (*domain.EmailTemplate, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateTemplate")
	defer span.End()

	var rows []domain.EmailTemplate
	if err := c.insert(ctx, "email_templates", t, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return t, nil
	}
	return &rows[0], nil
}

func (c *Client) UpdateTemplate(ctx context.Context, templateID string, fields map[string]any) (*domain.EmailTemplate, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateTemplate")
	defer span.End()

	fields["updated_at"] = time.Now().UTC()

	var rows []domain.EmailTemplate
	if err := c.patch(ctx, "email_templates", url.Values{"id": {eq(templateID)}}, fields, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "template", ID: templateID}
	}
	return &rows[0], nil
}
