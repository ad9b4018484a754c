package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

// ============================================================
// Accounts & opportunities
// ============================================================

func (s *Store) CreateAccount(ctx context.Context, acct *domain.Account) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateAccount")
	defer span.End()

	var leadID any
	if acct.LeadID != "" {
		leadID = acct.LeadID
	}
	query, args, err := psql.Insert("accounts").
		Columns("id", "user_id", "name", "email", "phone", "company", "lead_id", "created_at").
		Values(acct.ID, acct.UserID, acct.Name, acct.Email, acct.Phone, acct.Company, leadID, acct.CreatedAt).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert account: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, mapError("account", err)
	}
	return acct, nil
}

var opportunityColumns = []string{
	"id", "user_id", "account_id", "lead_id", "name", "stage", "amount", "probability",
	"trip_type", "departure_airport", "arrival_airport", "departure_date", "departure_time",
	"return_date", "return_time", "passengers", "created_at",
}

func (s *Store) CreateOpportunity(ctx context.Context, opp *domain.Opportunity) (*domain.Opportunity, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateOpportunity")
	defer span.End()

	query, args, err := psql.Insert("opportunities").
		Columns(opportunityColumns...).
		Values(opp.ID, opp.UserID, opp.AccountID, opp.LeadID, opp.Name, opp.Stage, opp.Amount, opp.Probability,
			opp.TripType, opp.DepartureAirport, opp.ArrivalAirport, opp.DepartureDate, opp.DepartureTime,
			opp.ReturnDate, opp.ReturnTime, opp.Passengers, opp.CreatedAt).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert opportunity: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, mapError("opportunity", err)
	}
	return opp, nil
}

func (s *Store) ListOpportunities(ctx context.Context, userID string) ([]domain.Opportunity, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListOpportunities")
	defer span.End()

	query, args, err := psql.Select(opportunityColumns...).From("opportunities").
		Where(sq.Eq{"user_id": userID}).OrderBy("created_at DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list opportunities: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	defer rows.Close()

	out := []domain.Opportunity{}
	for rows.Next() {
		var o domain.Opportunity
		if err := rows.Scan(&o.ID, &o.UserID, &o.AccountID, &o.LeadID, &o.Name, &o.Stage, &o.Amount, &o.Probability,
			&o.TripType, &o.DepartureAirport, &o.ArrivalAirport, &o.DepartureDate, &o.DepartureTime,
			&o.ReturnDate, &o.ReturnTime, &o.Passengers, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan opportunity: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
