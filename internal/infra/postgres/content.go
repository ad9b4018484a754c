package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

// ============================================================
// Quotes & open legs
// ============================================================

func (s *Store) CreateQuotes(ctx context.Context, quotes []domain.Quote) ([]domain.Quote, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateQuotes")
	defer span.End()

	if len(quotes) == 0 {
		return []domain.Quote{}, nil
	}
	b := psql.Insert("quotes").Columns("id", "user_id", "lead_id", "operator_name", "aircraft_type", "category",
		"price", "currency", "passengers", "route", "departure_date", "return_date", "safety_rating", "raw_text", "created_at")
	for _, q := range quotes {
		b = b.Values(q.ID, q.UserID, q.LeadID, q.OperatorName, q.AircraftType, q.Category,
			q.Price, q.Currency, q.Passengers, q.Route, q.DepartureDate, q.ReturnDate, q.SafetyRating, q.RawText, q.CreatedAt)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert quotes: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, mapError("quote", err)
	}
	return quotes, nil
}

func (s *Store) CreateOpenLegs(ctx context.Context, legs []domain.OpenLeg) ([]domain.OpenLeg, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateOpenLegs")
	defer span.End()

	if len(legs) == 0 {
		return []domain.OpenLeg{}, nil
	}
	b := psql.Insert("open_legs").Columns("id", "user_id", "operator_name", "aircraft_type", "registration",
		"departure_airport", "arrival_airport", "departure_date", "seats", "price", "notes", "created_at")
	for _, l := range legs {
		b = b.Values(l.ID, l.UserID, l.OperatorName, l.AircraftType, l.Registration,
			l.DepartureAirport, l.ArrivalAirport, l.DepartureDate, l.Seats, l.Price, l.Notes, l.CreatedAt)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert open legs: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, mapError("open leg", err)
	}
	return legs, nil
}

// ============================================================
// Email templates
// ============================================================

var templateColumns = []string{"id", "user_id", "name", "subject", "body", "category", "updated_at"}

func scanTemplate(row rowScanner) (*domain.EmailTemplate, error) {
	var t domain.EmailTemplate
	if err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.Subject, &t.Body, &t.Category, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListTemplates(ctx context.Context, userID string) ([]domain.EmailTemplate, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListTemplates")
	defer span.End()

	query, args, err := psql.Select(templateColumns...).From("email_templates").
		Where(sq.Eq{"user_id": userID}).OrderBy("name").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list templates: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	out := []domain.EmailTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) GetTemplate(ctx context.Context, userID, templateID string) (*domain.EmailTemplate, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetTemplate")
	defer span.End()

	query, args, err := psql.Select(templateColumns...).From("email_templates").
		Where(sq.Eq{"id": templateID, "user_id": userID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get template: %w", err)
	}
	t, err := scanTemplate(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "template", ID: templateID}
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (s *Store) CreateTemplate(ctx context.Context, t *domain.EmailTemplate) (*domain.EmailTemplate, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateTemplate")
	defer span.End()

	query, args, err := psql.Insert("email_templates").Columns(templateColumns...).
		Values(t.ID, t.UserID, t.Name, t.Subject, t.Body, t.Category, t.UpdatedAt).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert template: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, mapError("template", err)
	}
	return t, nil
}

func (s *Store) UpdateTemplate(ctx context.Context, templateID string, fields map[string]any) (*domain.EmailTemplate, error) {
	ctx, span := tracer.Start(ctx, "Postgres.UpdateTemplate")
	defer span.End()

	fields["updated_at"] = time.Now().UTC()
	query, args, err := psql.Update("email_templates").SetMap(fields).
		Where(sq.Eq{"id": templateID}).
		Suffix("RETURNING " + joinColumns(templateColumns)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update template: %w", err)
	}
	t, err := scanTemplate(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "template", ID: templateID}
	}
	if err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return t, nil
}
