package port

import (
	"context"
	"time"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

// AirportStore reads and writes the fallback_airports table.
type AirportStore interface {
	// GetAirport matches either the ICAO or the IATA code.
	GetAirport(ctx context.Context, code string) (*domain.Airport, error)
	ListAirports(ctx context.Context) ([]domain.Airport, error)
	UpsertAirport(ctx context.Context, a *domain.Airport) error
}

// AircraftStore holds aircraft reference data and operator fleet records.
type AircraftStore interface {
	ListAircraft(ctx context.Context, category string) ([]domain.Aircraft, error)
	UpsertAircraft(ctx context.Context, aircraft []domain.Aircraft) error
	ListFleet(ctx context.Context, operatorID string) ([]domain.AircraftLocation, error)
	ReplaceFleet(ctx context.Context, operatorID string, fleet []domain.AircraftLocation) error
}

// OperatorStore handles the trusted-operator allowlist.
type OperatorStore interface {
	ListOperators(ctx context.Context, userID string) ([]domain.TrustedOperator, error)
	// ListAllOperators is used by the scheduled fleet refresh.
	ListAllOperators(ctx context.Context) ([]domain.TrustedOperator, error)
	GetOperator(ctx context.Context, userID, operatorID string) (*domain.TrustedOperator, error)
	CreateOperator(ctx context.Context, op *domain.TrustedOperator) (*domain.TrustedOperator, error)
	UpdateFleetCache(ctx context.Context, operatorID string, aircraft []string, at time.Time) error
}
