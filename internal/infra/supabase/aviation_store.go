package supabase

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

// ============================================================
// fallback_airports
// ============================================================

func (c *Client) GetAirport(ctx context.Context, code string) (*domain.Airport, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetAirport")
	defer span.End()

	code = strings.ToUpper(strings.TrimSpace(code))
	params := url.Values{
		"or":    {fmt.Sprintf("(icao.eq.%s,iata.eq.%s)", code, code)},
		"limit": {"1"},
	}
	var rows []domain.Airport
	if err := c.get(ctx, "fallback_airports", query("fallback_airports", params), &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "airport", ID: code}
	}
	return &rows[0], nil
}

func (c *Client) ListAirports(ctx context.Context) ([]domain.Airport, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListAirports")
	defer span.End()

	rows := []domain.Airport{}
	if err := c.get(ctx, "fallback_airports", query("fallback_airports", url.Values{"order": {"icao.asc"}}), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) UpsertAirport(ctx context.Context, a *domain.Airport) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertAirport")
	defer span.End()

	return c.upsert(ctx, "fallback_airports", "icao", []domain.Airport{*a})
}

// ============================================================
// Aircraft reference data & fleet
// ============================================================

func (c *Client) ListAircraft(ctx context.Context, category string) ([]domain.Aircraft, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListAircraft")
	defer span.End()

	params := url.Values{"order": {"max_passengers.asc"}}
	if category != "" {
		params.Set("category", "ilike."+category)
	}
	rows := []domain.Aircraft{}
	if err := c.get(ctx, "aircraft", query("aircraft", params), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) UpsertAircraft(ctx context.Context, aircraft []domain.Aircraft) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertAircraft")
	defer span.End()

	if len(aircraft) == 0 {
		return nil
	}
	return c.upsert(ctx, "aircraft", "type", aircraft)
}

func (c *Client) ListFleet(ctx context.Context, operatorID string) ([]domain.AircraftLocation, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListFleet")
	defer span.End()

	params := url.Values{"operator_id": {eq(operatorID)}, "order": {"registration.asc"}}
	rows := []domain.AircraftLocation{}
	if err := c.get(ctx, "aircraft_locations", query("aircraft_locations", params), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ReplaceFleet deletes the operator's fleet rows and inserts the new list.
// PostgREST has no transaction across calls; a failed insert leaves the
// fleet empty until the next refresh.
func (c *Client) ReplaceFleet(ctx context.Context, operatorID string, fleet []domain.AircraftLocation) error {
	ctx, span := tracer.Start(ctx, "Supabase.ReplaceFleet")
	defer span.End()

	if err := c.remove(ctx, "aircraft_locations", url.Values{"operator_id": {eq(operatorID)}}); err != nil {
		return err
	}
	if len(fleet) == 0 {
		return nil
	}
	return c.insert(ctx, "aircraft_locations", fleet, nil)
}

// ============================================================
// Trusted operators
// ============================================================

func (c *Client) ListOperators(ctx context.Context, userID string) ([]domain.TrustedOperator, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListOperators")
	defer span.End()

	params := url.Values{"user_id": {eq(userID)}, "order": {"name.asc"}}
	rows := []domain.TrustedOperator{}
	if err := c.get(ctx, "trusted_operators", query("trusted_operators", params), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) ListAllOperators(ctx context.Context) ([]domain.TrustedOperator, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListAllOperators")
	defer span.End()

	rows := []domain.TrustedOperator{}
	if err := c.get(ctx, "trusted_operators", query("trusted_operators", url.Values{"order": {"name.asc"}}), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) GetOperator(ctx context.Context, userID, operatorID string) (*domain.TrustedOperator, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetOperator")
	defer span.End()

	params := url.Values{"id": {eq(operatorID)}, "limit": {"1"}}
	if userID != "" {
		params.Set("user_id", eq(userID))
	}
	var rows []domain.TrustedOperator
	if err := c.get(ctx, "trusted_operators", query("trusted_operators", params), &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "operator", ID: operatorID}
	}
	return &rows[0], nil
}

func (c *Client) CreateOperator(ctx context.Context, op *domain.TrustedOperator) (*domain.TrustedOperator, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateOperator")
	defer span.End()

	var rows []domain.TrustedOperator
	if err := c.insert(ctx, "trusted_operators", op, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return op, nil
	}
	return &rows[0], nil
}

func (c *Client) UpdateFleetCache(ctx context.Context, operatorID string, aircraft []string, at time.Time) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateFleetCache")
	defer span.End()

	return c.patch(ctx, "trusted_operators", url.Values{"id": {eq(operatorID)}}, map[string]any{
		"cached_aircraft":    aircraft,
		"fleet_refreshed_at": at.UTC(),
	}, nil)
}
