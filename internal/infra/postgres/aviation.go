package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

// ============================================================
// fallback_airports
// ============================================================

var airportColumns = []string{"icao", "iata", "name", "city", "country", "latitude", "longitude", "runway_length_ft"}

func scanAirport(row rowScanner) (*domain.Airport, error) {
	var a domain.Airport
	if err := row.Scan(&a.ICAO, &a.IATA, &a.Name, &a.City, &a.Country, &a.Latitude, &a.Longitude, &a.RunwayLength); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) GetAirport(ctx context.Context, code string) (*domain.Airport, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetAirport")
	defer span.End()

	code = strings.ToUpper(strings.TrimSpace(code))
	query, args, err := psql.Select(airportColumns...).From("fallback_airports").
		Where(sq.Or{sq.Eq{"icao": code}, sq.Eq{"iata": code}}).
		Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get airport: %w", err)
	}

	a, err := scanAirport(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "airport", ID: code}
	}
	if err != nil {
		return nil, fmt.Errorf("get airport: %w", err)
	}
	return a, nil
}

func (s *Store) ListAirports(ctx context.Context) ([]domain.Airport, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListAirports")
	defer span.End()

	query, args, err := psql.Select(airportColumns...).From("fallback_airports").OrderBy("icao").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list airports: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list airports: %w", err)
	}
	defer rows.Close()

	out := []domain.Airport{}
	for rows.Next() {
		a, err := scanAirport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan airport: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Store) UpsertAirport(ctx context.Context, a *domain.Airport) error {
	ctx, span := tracer.Start(ctx, "Postgres.UpsertAirport")
	defer span.End()

	query, args, err := psql.Insert("fallback_airports").
		Columns(airportColumns...).
		Values(strings.ToUpper(a.ICAO), strings.ToUpper(a.IATA), a.Name, a.City, a.Country, a.Latitude, a.Longitude, a.RunwayLength).
		Suffix(`ON CONFLICT (icao) DO UPDATE SET iata = EXCLUDED.iata, name = EXCLUDED.name, city = EXCLUDED.city,
			country = EXCLUDED.country, latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
			runway_length_ft = EXCLUDED.runway_length_ft`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert airport: %w", err)
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return mapError("airport", err)
}

// ============================================================
// Aircraft reference data & fleet
// ============================================================

func (s *Store) ListAircraft(ctx context.Context, category string) ([]domain.Aircraft, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListAircraft")
	defer span.End()

	b := psql.Select("id", "type", "manufacturer", "category", "max_passengers", "cruise_speed_kts", "range_nm", "hourly_rate").
		From("aircraft").OrderBy("max_passengers", "type")
	if category != "" {
		b = b.Where(sq.ILike{"category": category})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list aircraft: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list aircraft: %w", err)
	}
	defer rows.Close()

	out := []domain.Aircraft{}
	for rows.Next() {
		var a domain.Aircraft
		if err := rows.Scan(&a.ID, &a.Type, &a.Manufacturer, &a.Category, &a.MaxPassengers, &a.CruiseSpeedKts, &a.RangeNM, &a.HourlyRate); err != nil {
			return nil, fmt.Errorf("scan aircraft: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) UpsertAircraft(ctx context.Context, aircraft []domain.Aircraft) error {
	ctx, span := tracer.Start(ctx, "Postgres.UpsertAircraft")
	defer span.End()

	if len(aircraft) == 0 {
		return nil
	}
	b := psql.Insert("aircraft").
		Columns("type", "manufacturer", "category", "max_passengers", "cruise_speed_kts", "range_nm", "hourly_rate")
	for _, a := range aircraft {
		b = b.Values(a.Type, a.Manufacturer, a.Category, a.MaxPassengers, a.CruiseSpeedKts, a.RangeNM, a.HourlyRate)
	}
	query, args, err := b.Suffix(`ON CONFLICT (type) DO UPDATE SET manufacturer = EXCLUDED.manufacturer,
		category = EXCLUDED.category, max_passengers = EXCLUDED.max_passengers,
		cruise_speed_kts = EXCLUDED.cruise_speed_kts, range_nm = EXCLUDED.range_nm,
		hourly_rate = EXCLUDED.hourly_rate`).ToSql()
	if err != nil {
		return fmt.Errorf("build upsert aircraft: %w", err)
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return mapError("aircraft", err)
}

func (s *Store) ListFleet(ctx context.Context, operatorID string) ([]domain.AircraftLocation, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListFleet")
	defer span.End()

	query, args, err := psql.Select("id", "operator_id", "registration", "aircraft_type", "home_base", "year_of_make", "seats", "updated_at").
		From("aircraft_locations").Where(sq.Eq{"operator_id": operatorID}).OrderBy("registration").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list fleet: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list fleet: %w", err)
	}
	defer rows.Close()

	out := []domain.AircraftLocation{}
	for rows.Next() {
		var a domain.AircraftLocation
		if err := rows.Scan(&a.ID, &a.OperatorID, &a.Registration, &a.AircraftType, &a.HomeBase, &a.YearOfMake, &a.Seats, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan fleet: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ReplaceFleet swaps the operator's fleet rows in one transaction.
func (s *Store) ReplaceFleet(ctx context.Context, operatorID string, fleet []domain.AircraftLocation) error {
	ctx, span := tracer.Start(ctx, "Postgres.ReplaceFleet")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fleet tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	del, args, err := psql.Delete("aircraft_locations").Where(sq.Eq{"operator_id": operatorID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete fleet: %w", err)
	}
	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		return fmt.Errorf("delete fleet: %w", err)
	}

	if len(fleet) > 0 {
		b := psql.Insert("aircraft_locations").
			Columns("operator_id", "registration", "aircraft_type", "home_base", "year_of_make", "seats", "updated_at")
		for _, a := range fleet {
			b = b.Values(operatorID, a.Registration, a.AircraftType, a.HomeBase, a.YearOfMake, a.Seats, a.UpdatedAt)
		}
		ins, args, err := b.Suffix("ON CONFLICT (operator_id, registration) DO NOTHING").ToSql()
		if err != nil {
			return fmt.Errorf("build insert fleet: %w", err)
		}
		if _, err := tx.ExecContext(ctx, ins, args...); err != nil {
			return fmt.Errorf("insert fleet: %w", err)
		}
	}
	return tx.Commit()
}

// ============================================================
// Trusted operators
// ============================================================

var operatorColumns = []string{
	"id", "user_id", "name", "email", "phone", "website", "notes",
	"cached_aircraft", "fleet_refreshed_at", "created_at",
}

func scanOperator(row rowScanner) (*domain.TrustedOperator, error) {
	var op domain.TrustedOperator
	var cached pq.StringArray
	if err := row.Scan(&op.ID, &op.UserID, &op.Name, &op.Email, &op.Phone, &op.Website, &op.Notes,
		&cached, &op.FleetRefreshedAt, &op.CreatedAt); err != nil {
		return nil, err
	}
	op.CachedAircraft = []string(cached)
	if op.CachedAircraft == nil {
		op.CachedAircraft = []string{}
	}
	return &op, nil
}

func (s *Store) listOperators(ctx context.Context, b sq.SelectBuilder) ([]domain.TrustedOperator, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list operators: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}
	defer rows.Close()

	out := []domain.TrustedOperator{}
	for rows.Next() {
		op, err := scanOperator(rows)
		if err != nil {
			return nil, fmt.Errorf("scan operator: %w", err)
		}
		out = append(out, *op)
	}
	return out, rows.Err()
}

func (s *Store) ListOperators(ctx context.Context, userID string) ([]domain.TrustedOperator, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListOperators")
	defer span.End()

	return s.listOperators(ctx, psql.Select(operatorColumns...).From("trusted_operators").
		Where(sq.Eq{"user_id": userID}).OrderBy("name"))
}

func (s *Store) ListAllOperators(ctx context.Context) ([]domain.TrustedOperator, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListAllOperators")
	defer span.End()

	return s.listOperators(ctx, psql.Select(operatorColumns...).From("trusted_operators").OrderBy("name"))
}

func (s *Store) GetOperator(ctx context.Context, userID, operatorID string) (*domain.TrustedOperator, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetOperator")
	defer span.End()

	where := sq.Eq{"id": operatorID}
	if userID != "" {
		where["user_id"] = userID
	}
	query, args, err := psql.Select(operatorColumns...).From("trusted_operators").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get operator: %w", err)
	}
	op, err := scanOperator(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "operator", ID: operatorID}
	}
	if err != nil {
		return nil, fmt.Errorf("get operator: %w", err)
	}
	return op, nil
}

func (s *Store) CreateOperator(ctx context.Context, op *domain.TrustedOperator) (*domain.TrustedOperator, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateOperator")
	defer span.End()

	query, args, err := psql.Insert("trusted_operators").
		Columns(operatorColumns...).
		Values(op.ID, op.UserID, op.Name, op.Email, op.Phone, op.Website, op.Notes,
			pq.Array(op.CachedAircraft), op.FleetRefreshedAt, op.CreatedAt).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert operator: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, mapError("operator", err)
	}
	return op, nil
}

func (s *Store) UpdateFleetCache(ctx context.Context, operatorID string, aircraft []string, at time.Time) error {
	ctx, span := tracer.Start(ctx, "Postgres.UpdateFleetCache")
	defer span.End()

	query, args, err := psql.Update("trusted_operators").
		Set("cached_aircraft", pq.Array(aircraft)).
		Set("fleet_refreshed_at", at.UTC()).
		Where(sq.Eq{"id": operatorID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update fleet cache: %w", err)
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}
