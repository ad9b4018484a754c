package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

var leadColumns = []string{
	"id", "user_id", "first_name", "last_name", "email", "phone", "company",
	"trip_type", "departure_airport", "arrival_airport", "departure_date", "departure_time",
	"return_date", "return_time", "passengers", "status", "source", "source_url", "notes",
	"converted_at", "created_at", "updated_at",
}

func scanLead(row rowScanner) (*domain.Lead, error) {
	var l domain.Lead
	err := row.Scan(
		&l.ID, &l.UserID, &l.FirstName, &l.LastName, &l.Email, &l.Phone, &l.Company,
		&l.TripType, &l.DepartureAirport, &l.ArrivalAirport, &l.DepartureDate, &l.DepartureTime,
		&l.ReturnDate, &l.ReturnTime, &l.Passengers, &l.Status, &l.Source, &l.SourceURL, &l.Notes,
		&l.ConvertedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) queryLeads(ctx context.Context, b sq.SelectBuilder) ([]domain.Lead, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lead query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	leads := []domain.Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, *l)
	}
	return leads, rows.Err()
}

// ============================================================
// Leads
// ============================================================

func (s *Store) CreateLead(ctx context.Context, lead *domain.Lead) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateLead")
	defer span.End()

	query, args, err := psql.Insert("leads").
		Columns(leadColumns...).
		Values(
			lead.ID, lead.UserID, lead.FirstName, lead.LastName, lead.Email, lead.Phone, lead.Company,
			lead.TripType, lead.DepartureAirport, lead.ArrivalAirport, lead.DepartureDate, lead.DepartureTime,
			lead.ReturnDate, lead.ReturnTime, lead.Passengers, lead.Status, lead.Source, lead.SourceURL, lead.Notes,
			lead.ConvertedAt, lead.CreatedAt, lead.UpdatedAt,
		).
		Suffix("RETURNING " + joinColumns(leadColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert lead: %w", err)
	}

	created, err := scanLead(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapError("lead", err)
	}
	return created, nil
}

func (s *Store) GetLead(ctx context.Context, userID, leadID string) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetLead")
	defer span.End()

	where := sq.Eq{"id": leadID}
	if userID != "" {
		where["user_id"] = userID
	}
	query, args, err := psql.Select(leadColumns...).From("leads").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get lead: %w", err)
	}

	lead, err := scanLead(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "lead", ID: leadID}
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return lead, nil
}

// listLeadsQuery is split out so the filter logic can be tested without a database.
func listLeadsQuery(filter domain.LeadFilter) sq.SelectBuilder {
	b := psql.Select(leadColumns...).From("leads").OrderBy("created_at DESC")
	if filter.UserID != "" {
		b = b.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.Status != "" {
		b = b.Where(sq.Eq{"status": filter.Status})
	}
	if filter.Limit > 0 {
		b = b.Limit(uint64(filter.Limit))
	}
	return b
}

func (s *Store) ListLeads(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListLeads")
	defer span.End()

	return s.queryLeads(ctx, listLeadsQuery(filter))
}

func (s *Store) UpdateLead(ctx context.Context, leadID string, fields map[string]any) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Postgres.UpdateLead")
	defer span.End()

	query, args, err := updateLeadQuery(leadID, fields, false)
	if err != nil {
		return nil, err
	}

	lead, err := scanLead(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "lead", ID: leadID}
	}
	if err != nil {
		return nil, fmt.Errorf("update lead: %w", err)
	}
	return lead, nil
}

func (s *Store) UpdateOpenLead(ctx context.Context, leadID string, fields map[string]any) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Postgres.UpdateOpenLead")
	defer span.End()

	query, args, err := updateLeadQuery(leadID, fields, true)
	if err != nil {
		return nil, err
	}

	lead, err := scanLead(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrConflict{Message: "lead " + leadID + " is already converted"}
	}
	if err != nil {
		return nil, fmt.Errorf("update lead: %w", err)
	}
	return lead, nil
}

// updateLeadQuery builds the PATCH of a lead; open restricts it to leads
// that are not converted.
func updateLeadQuery(leadID string, fields map[string]any, open bool) (string, []any, error) {
	fields["updated_at"] = time.Now().UTC()
	b := psql.Update("leads").
		SetMap(fields).
		Where(sq.Eq{"id": leadID})
	if open {
		b = b.Where(sq.NotEq{"status": domain.LeadStatusConverted})
	}
	query, args, err := b.Suffix("RETURNING " + joinColumns(leadColumns)).ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build update lead: %w", err)
	}
	return query, args, nil
}

func (s *Store) MarkLeadConverted(ctx context.Context, leadID string, at time.Time) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Postgres.MarkLeadConverted")
	defer span.End()

	query, args, err := markConvertedQuery(leadID, at)
	if err != nil {
		return nil, err
	}

	lead, err := scanLead(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("postgres: lead already converted or missing", zap.String("lead_id", leadID))
		return nil, &domain.ErrConflict{Message: "lead " + leadID + " is already converted"}
	}
	if err != nil {
		return nil, fmt.Errorf("mark lead converted: %w", err)
	}
	return lead, nil
}

func markConvertedQuery(leadID string, at time.Time) (string, []any, error) {
	return psql.Update("leads").
		Set("status", domain.LeadStatusConverted).
		Set("converted_at", at.UTC()).
		Set("updated_at", at.UTC()).
		Where(sq.Eq{"id": leadID}).
		Where(sq.NotEq{"status": domain.LeadStatusConverted}).
		Suffix("RETURNING " + joinColumns(leadColumns)).
		ToSql()
}

// ============================================================
// Pending imports
// ============================================================

var importColumns = []string{"id", "user_id", "source_url", "raw_text", "parsed_data", "created_at"}

func scanImport(row rowScanner) (*domain.PendingLeadImport, error) {
	var (
		imp    domain.PendingLeadImport
		parsed []byte
	)
	if err := row.Scan(&imp.ID, &imp.UserID, &imp.SourceURL, &imp.RawText, &parsed, &imp.CreatedAt); err != nil {
		return nil, err
	}
	if len(parsed) > 0 {
		imp.Parsed = &domain.CreateLeadRequest{}
		if err := json.Unmarshal(parsed, imp.Parsed); err != nil {
			return nil, fmt.Errorf("decode parsed_data: %w", err)
		}
	}
	return &imp, nil
}

func (s *Store) CreateImport(ctx context.Context, imp *domain.PendingLeadImport) (*domain.PendingLeadImport, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateImport")
	defer span.End()

	parsed, err := json.Marshal(imp.Parsed)
	if err != nil {
		return nil, fmt.Errorf("encode parsed_data: %w", err)
	}
	query, args, err := psql.Insert("pending_lead_imports").
		Columns(importColumns...).
		Values(imp.ID, imp.UserID, imp.SourceURL, imp.RawText, parsed, imp.CreatedAt).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert import: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, mapError("import", err)
	}
	return imp, nil
}

func (s *Store) ListImports(ctx context.Context, userID string) ([]domain.PendingLeadImport, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListImports")
	defer span.End()

	query, args, err := psql.Select(importColumns...).From("pending_lead_imports").
		Where(sq.Eq{"user_id": userID}).OrderBy("created_at DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list imports: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	defer rows.Close()

	out := []domain.PendingLeadImport{}
	for rows.Next() {
		imp, err := scanImport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *imp)
	}
	return out, rows.Err()
}

func (s *Store) GetImport(ctx context.Context, userID, importID string) (*domain.PendingLeadImport, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetImport")
	defer span.End()

	query, args, err := psql.Select(importColumns...).From("pending_lead_imports").
		Where(sq.Eq{"id": importID, "user_id": userID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get import: %w", err)
	}
	imp, err := scanImport(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "import", ID: importID}
	}
	if err != nil {
		return nil, fmt.Errorf("get import: %w", err)
	}
	return imp, nil
}

func (s *Store) DeleteImport(ctx context.Context, importID string) error {
	ctx, span := tracer.Start(ctx, "Postgres.DeleteImport")
	defer span.End()

	query, args, err := psql.Delete("pending_lead_imports").Where(sq.Eq{"id": importID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete import: %w", err)
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// ============================================================
// Webhook logs
// ============================================================

var webhookLogColumns = []string{
	"id", "user_id", "lead_id", "target", "webhook_url", "request_payload",
	"response_status", "response_body", "success", "error_message", "created_at",
}

func (s *Store) CreateWebhookLog(ctx context.Context, log *domain.WebhookLog) error {
	ctx, span := tracer.Start(ctx, "Postgres.CreateWebhookLog")
	defer span.End()

	query, args, err := psql.Insert("webhook_logs").
		Columns(webhookLogColumns...).
		Values(log.ID, log.UserID, log.LeadID, log.Target, log.WebhookURL, []byte(log.RequestPayload),
			log.ResponseStatus, log.ResponseBody, log.Success, log.ErrorMessage, log.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert webhook log: %w", err)
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return mapError("webhook log", err)
}

func (s *Store) ListWebhookLogs(ctx context.Context, userID string, limit int) ([]domain.WebhookLog, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListWebhookLogs")
	defer span.End()

	query, args, err := psql.Select(webhookLogColumns...).From("webhook_logs").
		Where(sq.Eq{"user_id": userID}).OrderBy("created_at DESC").Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list webhook logs: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list webhook logs: %w", err)
	}
	defer rows.Close()

	out := []domain.WebhookLog{}
	for rows.Next() {
		var (
			l       domain.WebhookLog
			payload []byte
		)
		if err := rows.Scan(&l.ID, &l.UserID, &l.LeadID, &l.Target, &l.WebhookURL, &payload,
			&l.ResponseStatus, &l.ResponseBody, &l.Success, &l.ErrorMessage, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook log: %w", err)
		}
		l.RequestPayload = payload
		out = append(out, l)
	}
	return out, rows.Err()
}
