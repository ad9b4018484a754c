// Package search indexes airports in Meilisearch for type-ahead lookup.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	meili "github.com/meilisearch/meilisearch-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

var tracer = otel.Tracer("search")

const idxAirports = "airports"

// Meili implements port.AirportIndex.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	logger  *zap.Logger
}

// NewMeili creates the client and configures the airports index. An
// unreachable server is not fatal: Healthy reports false and the caller
// falls back to the database.
func NewMeili(url, apiKey string, logger *zap.Logger) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		logger: logger,
	}

	if _, err := m.client.Health(); err != nil {
		logger.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
		return m
	}
	m.healthy.Store(true)
	m.configureIndex()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxAirports,
		PrimaryKey: "icao",
	}); err != nil {
		m.logger.Debug("create airports index (may already exist)", zap.Error(err))
	}

	searchable := []string{"icao", "iata", "name", "city", "country"}
	if _, err := m.client.Index(idxAirports).UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", zap.Error(err))
	}
}

// Healthy reports whether the last call reached Meilisearch.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// IndexAirports adds or replaces airports, keyed by ICAO code.
func (m *Meili) IndexAirports(ctx context.Context, airports []domain.Airport) error {
	_, span := tracer.Start(ctx, "Meili.IndexAirports")
	defer span.End()

	if len(airports) == 0 {
		return nil
	}
	if _, err := m.client.Index(idxAirports).AddDocuments(airports, nil); err != nil {
		m.healthy.Store(false)
		return &domain.ErrExternalService{Service: "meilisearch", Err: err}
	}
	m.healthy.Store(true)
	return nil
}

// SearchAirports runs a prefix/typo-tolerant query over codes, names and cities.
func (m *Meili) SearchAirports(ctx context.Context, query string, limit int) ([]domain.Airport, error) {
	_, span := tracer.Start(ctx, "Meili.SearchAirports")
	defer span.End()

	if limit <= 0 {
		limit = 10
	}
	resp, err := m.client.Index(idxAirports).Search(strings.TrimSpace(query), &meili.SearchRequest{
		Limit: int64(limit),
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, &domain.ErrExternalService{Service: "meilisearch", Err: err}
	}
	m.healthy.Store(true)

	airports := make([]domain.Airport, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		a, err := decodeAirport(hit)
		if err != nil {
			m.logger.Warn("skip undecodable airport hit", zap.Error(err))
			continue
		}
		airports = append(airports, a)
	}
	return airports, nil
}

func decodeAirport(hit meili.Hit) (domain.Airport, error) {
	var a domain.Airport
	raw, err := json.Marshal(hit)
	if err != nil {
		return a, fmt.Errorf("marshal hit: %w", err)
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return a, fmt.Errorf("decode hit: %w", err)
	}
	return a, nil
}
