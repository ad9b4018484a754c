package supabase

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

// ============================================================
// Leads
// ============================================================

func (c *Client) CreateLead(ctx context.Context, lead *domain.Lead) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateLead")
	defer span.End()

	var rows []domain.Lead
	if err := c.insert(ctx, "leads", lead, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return lead, nil
	}
	return &rows[0], nil
}

func (c *Client) GetLead(ctx context.Context, userID, leadID string) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetLead")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", leadID))

	params := url.Values{"id": {eq(leadID)}, "limit": {"1"}}
	if userID != "" {
		params.Set("user_id", eq(userID))
	}

	var rows []domain.Lead
	if err := c.get(ctx, "leads", query("leads", params), &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "lead", ID: leadID}
	}
	return &rows[0], nil
}

func (c *Client) ListLeads(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListLeads")
	defer span.End()

	params := url.Values{"order": {"created_at.desc"}}
	if filter.UserID != "" {
		params.Set("user_id", eq(filter.UserID))
	}
	if filter.Status != "" {
		params.Set("status", eq(filter.Status))
	}
	if filter.Limit > 0 {
		params.Set("limit", strconv.Itoa(filter.Limit))
	}

	rows := []domain.Lead{}
	if err := c.get(ctx, "leads", query("leads", params), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) UpdateLead(ctx context.Context, leadID string, fields map[string]any) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateLead")
	defer span.End()

	fields["updated_at"] = time.Now().UTC()

	var rows []domain.Lead
	if err := c.patch(ctx, "leads", url.Values{"id": {eq(leadID)}}, fields, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "lead", ID: leadID}
	}
	return &rows[0], nil
}

func (c *Client) UpdateOpenLead(ctx context.Context, leadID string, fields map[string]any) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateOpenLead")
	defer span.End()

	fields["updated_at"] = time.Now().UTC()
	params := url.Values{
		"id":     {eq(leadID)},
		"status": {"neq." + domain.LeadStatusConverted},
	}

	var rows []domain.Lead
	if err := c.patch(ctx, "leads", params, fields, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrConflict{Message: "lead " + leadID + " is already converted"}
	}
	return &rows[0], nil
}

// MarkLeadConverted filters on status=neq.converted so that two concurrent
// conversions cannot both win.
func (c *Client) MarkLeadConverted(ctx context.Context, leadID string, at time.Time) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Supabase.MarkLeadConverted")
	defer span.End()

	params := url.Values{
		"id":     {eq(leadID)},
		"status": {"neq." + domain.LeadStatusConverted},
	}
	fields := map[string]any{
		"status":       domain.LeadStatusConverted,
		"converted_at": at.UTC(),
		"updated_at":   at.UTC(),
	}

	var rows []domain.Lead
	if err := c.patch(ctx, "leads", params, fields, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		c.logger.Warn("supabase: lead already converted", zap.String("lead_id", leadID))
		return nil, &domain.ErrConflict{Message: "lead " + leadID + " is already converted"}
	}
	return &rows[0], nil
}

// ============================================================
// Pending imports
// ============================================================

func (c *Client) CreateImport(ctx context.Context, imp *domain.PendingLeadImport) (*domain.PendingLeadImport, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateImport")
	defer span.End()

	var rows []domain.PendingLeadImport
	if err := c.insert(ctx, "pending_lead_imports", imp, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return imp, nil
	}
	return &rows[0], nil
}

func (c *Client) ListImports(ctx context.Context, userID string) ([]domain.PendingLeadImport, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListImports")
	defer span.End()

	params := url.Values{"user_id": {eq(userID)}, "order": {"created_at.desc"}}
	rows := []domain.PendingLeadImport{}
	if err := c.get(ctx, "pending_lead_imports", query("pending_lead_imports", params), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) GetImport(ctx context.Context, userID, importID string) (*domain.PendingLeadImport, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetImport")
	defer span.End()

	params := url.Values{"id": {eq(importID)}, "user_id": {eq(userID)}, "limit": {"1"}}
	var rows []domain.PendingLeadImport
	if err := c.get(ctx, "pending_lead_imports", query("pending_lead_imports", params), &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "import", ID: importID}
	}
	return &rows[0], nil
}

func (c *Client) DeleteImport(ctx context.Context, importID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteImport")
	defer span.End()

	return c.remove(ctx, "pending_lead_imports", url.Values{"id": {eq(importID)}})
}

// ============================================================
// Webhook logs
// ============================================================

func (c *Client) CreateWebhookLog(ctx context.Context, log *domain.WebhookLog) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateWebhookLog")
	defer span.End()

	return c.insert(ctx, "webhook_logs", log, nil)
}

func (c *Client) ListWebhookLogs(ctx context.Context, userID string, limit int) ([]domain.WebhookLog, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListWebhookLogs")
	defer span.End()

	params := url.Values{
		"user_id": {eq(userID)},
		"order":   {"created_at.desc"},
		"limit":   {strconv.Itoa(limit)},
	}
	rows := []domain.WebhookLog{}
	if err := c.get(ctx, "webhook_logs", query("webhook_logs", params), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
