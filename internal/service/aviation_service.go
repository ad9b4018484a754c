package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/geo"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/observability"
	"github.com/boddenberg/charter-leads-bfa/internal/port"
	"github.com/boddenberg/charter-leads-bfa/internal/reference"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var aviationTracer = otel.Tracer("service/aviation")

// DefaultFlightTimeFanOut bounds the number of aircraft priced per route.
const DefaultFlightTimeFanOut = 10

var airportCodeRe = regexp.MustCompile(`^[A-Z0-9]{3,4}$`)

// AviationDeps groups the optional upstreams. Nil fields disable the
// matching feature (lookups then use only the database and the local
// estimate).
type AviationDeps struct {
	Lookup    port.AirportLookup
	Positions port.PositionProvider
	Index     port.AirportIndex
	Airports  port.Cache[*domain.Airport]
	Minutes   port.Cache[int]
}

// AviationService answers airport, distance, flight-time and position
// questions.
type AviationService struct {
	airports port.AirportStore
	aircraft port.AircraftStore
	deps     AviationDeps
	catalog  []domain.Aircraft
	fanOut   int
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewAviationService creates the service. catalog is the fallback aircraft
// list when the aircraft table is empty.
func NewAviationService(
	airports port.AirportStore,
	aircraft port.AircraftStore,
	deps AviationDeps,
	catalog []domain.Aircraft,
	fanOut int,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *AviationService {
	if fanOut <= 0 || fanOut > DefaultFlightTimeFanOut {
		fanOut = DefaultFlightTimeFanOut
	}
	return &AviationService{
		airports: airports,
		aircraft: aircraft,
		deps:     deps,
		catalog:  catalog,
		fanOut:   fanOut,
		metrics:  metrics,
		logger:   logger,
	}
}

// ============================================================
// Airports
// ============================================================

func normalizeCode(field, code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !airportCodeRe.MatchString(code) {
		return "", &domain.ErrValidation{Field: field, Message: "must be a 3-letter IATA or 4-letter ICAO code"}
	}
	return code, nil
}

// LookupAirport resolves a code from the cache, then fallback_airports,
// then AeroDataBox. Upstream hits are written back to the table.
func (s *AviationService) LookupAirport(ctx context.Context, code string) (*domain.Airport, error) {
	ctx, span := aviationTracer.Start(ctx, "AviationService.LookupAirport")
	defer span.End()

	code, err := normalizeCode("code", code)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("airport.code", code))

	if s.deps.Airports != nil {
		if a, ok := s.deps.Airports.Get(code); ok {
			return a, nil
		}
	}

	a, err := s.airports.GetAirport(ctx, code)
	if err == nil {
		s.remember(code, a)
		return a, nil
	}
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) || s.deps.Lookup == nil {
		return nil, err
	}

	a, err = s.deps.Lookup.LookupAirport(ctx, code)
	if err != nil {
		s.countUpstreamError("aerodatabox", err)
		return nil, err
	}
	if err := s.airports.UpsertAirport(ctx, a); err != nil {
		s.logger.Warn("failed to store looked-up airport", zap.String("icao", a.ICAO), zap.Error(err))
	}
	if s.deps.Index != nil {
		if err := s.deps.Index.IndexAirports(ctx, []domain.Airport{*a}); err != nil {
			s.logger.Debug("airport not indexed", zap.String("icao", a.ICAO), zap.Error(err))
		}
	}
	s.remember(code, a)
	return a, nil
}

func (s *AviationService) remember(code string, a *domain.Airport) {
	if s.deps.Airports == nil {
		return
	}
	s.deps.Airports.Set(code, a)
	if a.ICAO != "" && a.ICAO != code {
		s.deps.Airports.Set(a.ICAO, a)
	}
}

// SearchAirports queries the search index, falling back to a substring
// scan of fallback_airports when the index is absent or failing.
func (s *AviationService) SearchAirports(ctx context.Context, query string, limit int) ([]domain.Airport, error) {
	ctx, span := aviationTracer.Start(ctx, "AviationService.SearchAirports")
	defer span.End()

	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return nil, &domain.ErrValidation{Field: "q", Message: "must have at least 2 characters"}
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	if s.deps.Index != nil {
		hits, err := s.deps.Index.SearchAirports(ctx, query, limit)
		if err == nil {
			return hits, nil
		}
		s.logger.Warn("airport index search failed, scanning table", zap.Error(err))
	}

	all, err := s.airports.ListAirports(ctx)
	if err != nil {
		return nil, fmt.Errorf("list airports: %w", err)
	}
	q := strings.ToLower(query)
	out := []domain.Airport{}
	for _, a := range all {
		if strings.EqualFold(a.ICAO, query) || strings.EqualFold(a.IATA, query) ||
			strings.Contains(strings.ToLower(a.Name), q) || strings.Contains(strings.ToLower(a.City), q) {
			out = append(out, a)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// ReindexAirports pushes every fallback airport into the search index.
func (s *AviationService) ReindexAirports(ctx context.Context) (int, error) {
	ctx, span := aviationTracer.Start(ctx, "AviationService.ReindexAirports")
	defer span.End()

	if s.deps.Index == nil {
		return 0, &domain.ErrNotConfigured{Integration: "airport search index"}
	}
	all, err := s.airports.ListAirports(ctx)
	if err != nil {
		return 0, fmt.Errorf("list airports: %w", err)
	}
	if err := s.deps.Index.IndexAirports(ctx, all); err != nil {
		return 0, err
	}
	s.logger.Info("airports reindexed", zap.Int("count", len(all)))
	return len(all), nil
}

// SeedAirports upserts the embedded seed airports.
func (s *AviationService) SeedAirports(ctx context.Context, seed []domain.Airport) error {
	for i := range seed {
		if err := s.airports.UpsertAirport(ctx, &seed[i]); err != nil {
			return fmt.Errorf("seed airport %s: %w", seed[i].ICAO, err)
		}
	}
	return nil
}

// ============================================================
// Distance & flight times
// ============================================================

func (s *AviationService) routeAirports(ctx context.Context, depCode, arrCode string) (*domain.Airport, *domain.Airport, error) {
	depCode, err := normalizeCode("departureCode", depCode)
	if err != nil {
		return nil, nil, err
	}
	arrCode, err = normalizeCode("arrivalCode", arrCode)
	if err != nil {
		return nil, nil, err
	}

	var dep, arr *domain.Airport
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := s.LookupAirport(gCtx, depCode)
		dep = a
		return err
	})
	g.Go(func() error {
		a, err := s.LookupAirport(gCtx, arrCode)
		arr = a
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return dep, arr, nil
}

func distanceBetween(dep, arr *domain.Airport) float64 {
	return geo.DistanceNM(
		geo.Point{Lat: dep.Latitude, Lon: dep.Longitude},
		geo.Point{Lat: arr.Latitude, Lon: arr.Longitude},
	)
}

func (s *AviationService) Distance(ctx context.Context, req *domain.DistanceRequest) (*domain.DistanceResponse, error) {
	ctx, span := aviationTracer.Start(ctx, "AviationService.Distance")
	defer span.End()

	dep, arr, err := s.routeAirports(ctx, req.DepartureCode, req.ArrivalCode)
	if err != nil {
		return nil, err
	}
	nm := distanceBetween(dep, arr)
	return &domain.DistanceResponse{
		Success:       true,
		Departure:     dep,
		Arrival:       arr,
		DistanceNM:    geo.Round1(nm),
		DistanceKM:    geo.Round1(nm * geo.NMToKM),
		DistanceMiles: geo.Round1(nm * geo.NMToMiles),
	}, nil
}

// FlightTimes prices up to fanOut candidate aircraft for the route in a
// bounded parallel fan-out. Each candidate uses AeroDataBox's route time
// and falls back to a cruise-speed estimate on failure; a 429 aborts the
// whole request and is returned as-is.
func (s *AviationService) FlightTimes(ctx context.Context, req *domain.FlightTimeRequest) (*domain.FlightTimeResponse, error) {
	ctx, span := aviationTracer.Start(ctx, "AviationService.FlightTimes")
	defer span.End()

	if req.Passengers < 0 || req.Passengers > 50 {
		return nil, &domain.ErrValidation{Field: "passengers", Message: "must be between 0 and 50"}
	}

	dep, arr, err := s.routeAirports(ctx, req.DepartureCode, req.ArrivalCode)
	if err != nil {
		return nil, err
	}
	nm := distanceBetween(dep, arr)

	catalog, err := s.aircraft.ListAircraft(ctx, "")
	if err != nil || len(catalog) == 0 {
		if err != nil {
			s.logger.Warn("aircraft table unavailable, using embedded catalog", zap.Error(err))
		}
		catalog = s.catalog
	}
	candidates := reference.Candidates(catalog, req.Passengers, nm, s.fanOut)
	span.SetAttributes(attribute.Int("candidates", len(candidates)))

	estimates := make([]domain.FlightTimeEstimate, len(candidates))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanOut)

	var mu sync.Mutex
	upstreamFailures := 0

	for i, a := range candidates {
		g.Go(func() error {
			minutes, source, err := s.flightMinutes(gCtx, dep.ICAO, arr.ICAO, a, nm)
			if err != nil {
				var rl *domain.ErrRateLimited
				if errors.As(err, &rl) {
					return err
				}
				mu.Lock()
				upstreamFailures++
				mu.Unlock()
			}
			estimates[i] = buildEstimate(a, nm, minutes, source)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if upstreamFailures > 0 {
		s.logger.Warn("flight time lookups fell back to estimates",
			zap.String("route", dep.ICAO+"-"+arr.ICAO),
			zap.Int("failures", upstreamFailures),
		)
	}

	return &domain.FlightTimeResponse{
		Success:    true,
		DistanceNM: geo.Round1(nm),
		Estimates:  estimates,
	}, nil
}

// flightMinutes returns the block time and its source. A non-nil error
// means the upstream failed; minutes then hold the local estimate, except
// for rate limits, which the caller must surface.
func (s *AviationService) flightMinutes(ctx context.Context, from, to string, a domain.Aircraft, nm float64) (int, string, error) {
	estimate := geo.EstimateFlightMinutes(nm, a.CruiseSpeedKts)
	if s.deps.Lookup == nil || from == "" || to == "" {
		return estimate, "estimate", nil
	}

	key := from + "-" + to + "-" + a.Type
	if s.deps.Minutes != nil {
		if m, ok := s.deps.Minutes.Get(key); ok {
			return m, "aerodatabox", nil
		}
	}

	m, err := s.deps.Lookup.FlightTimeMinutes(ctx, from, to, a.Type)
	if err != nil {
		s.countUpstreamError("aerodatabox", err)
		return estimate, "estimate", err
	}
	if s.deps.Minutes != nil {
		s.deps.Minutes.Set(key, m)
	}
	return m, "aerodatabox", nil
}

func buildEstimate(a domain.Aircraft, nm float64, minutes int, source string) domain.FlightTimeEstimate {
	return domain.FlightTimeEstimate{
		AircraftType:    a.Type,
		Category:        a.Category,
		Passengers:      a.MaxPassengers,
		DistanceNM:      geo.Round1(nm),
		FlightMinutes:   minutes,
		FlightTime:      geo.FormatMinutes(minutes),
		Source:          source,
		ExceedsRange:    nm > float64(a.RangeNM),
		EstimatedHourly: a.HourlyRate,
	}
}

func (s *AviationService) countUpstreamError(service string, err error) {
	var rl *domain.ErrRateLimited
	if errors.As(err, &rl) {
		return // counted by the client's rate-limit hook
	}
	var nf *domain.ErrNotFound
	if errors.As(err, &nf) {
		return
	}
	s.metrics.IncrExternalError(service)
}

// ============================================================
// Aircraft & positions
// ============================================================

// ListAircraft returns reference data, optionally by category. An empty
// table serves the embedded catalog.
func (s *AviationService) ListAircraft(ctx context.Context, category string) ([]domain.Aircraft, error) {
	ctx, span := aviationTracer.Start(ctx, "AviationService.ListAircraft")
	defer span.End()

	list, err := s.aircraft.ListAircraft(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("list aircraft: %w", err)
	}
	if len(list) > 0 {
		return list, nil
	}

	out := []domain.Aircraft{}
	for _, a := range s.catalog {
		if category == "" || strings.EqualFold(a.Category, category) {
			out = append(out, a)
		}
	}
	return out, nil
}

// SeedAircraft upserts the embedded catalog into the aircraft table.
func (s *AviationService) SeedAircraft(ctx context.Context) error {
	if len(s.catalog) == 0 {
		return nil
	}
	if err := s.aircraft.UpsertAircraft(ctx, s.catalog); err != nil {
		return fmt.Errorf("seed aircraft: %w", err)
	}
	s.logger.Info("aircraft catalog seeded", zap.Int("count", len(s.catalog)))
	return nil
}

// AircraftPosition asks AirNav for the last known position of a tail number.
func (s *AviationService) AircraftPosition(ctx context.Context, registration string) (*domain.AircraftPosition, error) {
	ctx, span := aviationTracer.Start(ctx, "AviationService.AircraftPosition")
	defer span.End()

	registration = strings.ToUpper(strings.TrimSpace(registration))
	if registration == "" {
		return nil, &domain.ErrValidation{Field: "registration", Message: "is required"}
	}
	if s.deps.Positions == nil {
		return nil, &domain.ErrNotConfigured{Integration: "AirNav"}
	}

	pos, err := s.deps.Positions.LastPosition(ctx, registration)
	if err != nil {
		s.countUpstreamError("airnav", err)
		return nil, err
	}
	return pos, nil
}
