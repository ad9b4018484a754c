// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the service layer
// from the persistence backend (Supabase PostgREST or direct Postgres) and
// from the upstream aviation, LLM, search and storage providers.
package port

import (
	"context"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

// ============================================================
// Aviation data providers
// ============================================================

// AirportLookup resolves airports and route times from AeroDataBox.
type AirportLookup interface {
	LookupAirport(ctx context.Context, code string) (*domain.Airport, error)
	// FlightTimeMinutes returns the typical block time for an aircraft type
	// between two airports.
	FlightTimeMinutes(ctx context.Context, from, to, aircraftType string) (int, error)
}

// FleetProvider lists an operator's aircraft (Aviapages).
type FleetProvider interface {
	OperatorFleet(ctx context.Context, operatorName string) ([]domain.AircraftLocation, error)
}

// PositionProvider returns the last known position of a tail number (AirNav RadarBox).
type PositionProvider interface {
	LastPosition(ctx context.Context, registration string) (*domain.AircraftPosition, error)
}

// ============================================================
// Search, storage, scraping
// ============================================================

// AirportIndex is the full-text airport search index.
type AirportIndex interface {
	IndexAirports(ctx context.Context, airports []domain.Airport) error
	SearchAirports(ctx context.Context, query string, limit int) ([]domain.Airport, error)
}

// PageArchive stores raw captured HTML and returns the object key.
type PageArchive interface {
	Archive(ctx context.Context, userID string, page *domain.PageData) (string, error)
}

// PageScraper renders a URL in a headless browser.
type PageScraper interface {
	Capture(ctx context.Context, url string) (*domain.PageData, error)
}

// ============================================================
// LLM extraction
// ============================================================

// Extractor turns free text into structured records with an LLM.
type Extractor interface {
	ExtractLead(ctx context.Context, text string) (*domain.CreateLeadRequest, error)
	ExtractQuotes(ctx context.Context, email string) ([]domain.Quote, error)
	ExtractOpenLegs(ctx context.Context, email string) ([]domain.OpenLeg, error)
}

// ============================================================
// Webhooks
// ============================================================

// WebhookPoster sends a JSON payload and reports what the receiver answered.
// A non-2xx answer is not an error; only transport failures are.
type WebhookPoster interface {
	Post(ctx context.Context, url string, payload []byte) (status int, body string, err error)
}

// Cache is a keyed TTL cache.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
}
