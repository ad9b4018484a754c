package service_test

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/cache"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/observability"
	"github.com/boddenberg/charter-leads-bfa/internal/reference"
	"github.com/boddenberg/charter-leads-bfa/internal/service"

	"go.uber.org/zap"
)

var (
	jfk = domain.Airport{ICAO: "KJFK", IATA: "JFK", Name: "John F. Kennedy International Airport", City: "New York", Latitude: 40.6398, Longitude: -73.7789}
	lax = domain.Airport{ICAO: "KLAX", IATA: "LAX", Name: "Los Angeles International Airport", City: "Los Angeles", Latitude: 33.9425, Longitude: -118.4081}
)

type fakeLookup struct {
	airports  map[string]domain.Airport
	minutes   int
	err       error
	delay     time.Duration
	calls     atomic.Int32
	lookups   atomic.Int32
	inFlight  atomic.Int32
	maxFlight atomic.Int32
}

func (f *fakeLookup) LookupAirport(_ context.Context, code string) (*domain.Airport, error) {
	f.lookups.Add(1)
	a, ok := f.airports[code]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "airport", ID: code}
	}
	return &a, nil
}

func (f *fakeLookup) FlightTimeMinutes(ctx context.Context, _, _, _ string) (int, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxFlight.Load()
		if n <= m || f.maxFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return f.minutes, f.err
}

func newAviationService(t *testing.T, store *memStore, lookup *fakeLookup, fanOut int) *service.AviationService {
	t.Helper()
	catalog, err := reference.Aircraft()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	deps := service.AviationDeps{}
	if lookup != nil {
		deps.Lookup = lookup
	}
	return service.NewAviationService(store, store, deps, catalog, fanOut, observability.NewMetrics(), zap.NewNop())
}

func TestLookupAirport_StoreFirstThenUpstream(t *testing.T) {
	store := newMemStore()
	store.airports["KJFK"] = &jfk
	lookup := &fakeLookup{airports: map[string]domain.Airport{"KLAX": lax}}
	svc := newAviationService(t, store, lookup, 10)

	a, err := svc.LookupAirport(context.Background(), "jfk")
	if err != nil || a.ICAO != "KJFK" {
		t.Fatalf("expected KJFK from store, got %+v, %v", a, err)
	}
	if lookup.lookups.Load() != 0 {
		t.Error("store hit must not call upstream")
	}

	a, err = svc.LookupAirport(context.Background(), "KLAX")
	if err != nil || a.ICAO != "KLAX" {
		t.Fatalf("expected KLAX from upstream, got %+v, %v", a, err)
	}
	if store.upserts != 1 {
		t.Errorf("expected upstream airport written back, got %d upserts", store.upserts)
	}
}

func TestLookupAirport_UsesCache(t *testing.T) {
	store := newMemStore()
	lookup := &fakeLookup{airports: map[string]domain.Airport{"KLAX": lax}}
	airports := cache.New[*domain.Airport](time.Minute)
	defer airports.Close()

	catalog, _ := reference.Aircraft()
	svc := service.NewAviationService(store, store, service.AviationDeps{Lookup: lookup, Airports: airports}, catalog, 10, observability.NewMetrics(), zap.NewNop())

	for i := 0; i < 3; i++ {
		if _, err := svc.LookupAirport(context.Background(), "KLAX"); err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
	}
	if n := lookup.lookups.Load(); n != 1 {
		t.Errorf("expected one upstream lookup, got %d", n)
	}
}

func TestLookupAirport_InvalidCode(t *testing.T) {
	svc := newAviationService(t, newMemStore(), nil, 10)

	_, err := svc.LookupAirport(context.Background(), "K!")
	var ve *domain.ErrValidation
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDistance_JFKToLAX(t *testing.T) {
	store := newMemStore()
	store.airports["KJFK"] = &jfk
	store.airports["KLAX"] = &lax
	svc := newAviationService(t, store, nil, 10)

	resp, err := svc.Distance(context.Background(), &domain.DistanceRequest{DepartureCode: "KJFK", ArrivalCode: "KLAX"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if math.Abs(resp.DistanceNM-2145) > 10 {
		t.Errorf("expected ~2145 NM, got %.1f", resp.DistanceNM)
	}
	if math.Abs(resp.DistanceKM-resp.DistanceNM*1.852) > 1 {
		t.Errorf("km conversion off: %.1f", resp.DistanceKM)
	}
}

func TestFlightTimes_BoundedFanOut(t *testing.T) {
	store := newMemStore()
	store.airports["KJFK"] = &jfk
	store.airports["KLAX"] = &lax
	lookup := &fakeLookup{minutes: 330, delay: 20 * time.Millisecond}
	svc := newAviationService(t, store, lookup, 3)

	resp, err := svc.FlightTimes(context.Background(), &domain.FlightTimeRequest{DepartureCode: "KJFK", ArrivalCode: "KLAX", Passengers: 4})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(resp.Estimates) == 0 || len(resp.Estimates) > 3 {
		t.Fatalf("expected 1..3 estimates, got %d", len(resp.Estimates))
	}
	if peak := lookup.maxFlight.Load(); peak > 3 {
		t.Errorf("expected at most 3 concurrent lookups, saw %d", peak)
	}
	for _, e := range resp.Estimates {
		if e.Source != "aerodatabox" || e.FlightMinutes != 330 || e.FlightTime != "5h 30m" {
			t.Errorf("unexpected estimate: %+v", e)
		}
	}
}

func TestFlightTimes_NeverMoreThanTenCandidates(t *testing.T) {
	store := newMemStore()
	store.airports["KJFK"] = &jfk
	store.airports["KLAX"] = &lax
	for i := 0; i < 25; i++ {
		store.aircraft = append(store.aircraft, domain.Aircraft{Type: "Type " + string(rune('A'+i)), MaxPassengers: 8, CruiseSpeedKts: 450, RangeNM: 3000})
	}
	lookup := &fakeLookup{minutes: 300}
	svc := newAviationService(t, store, lookup, 50)

	resp, err := svc.FlightTimes(context.Background(), &domain.FlightTimeRequest{DepartureCode: "KJFK", ArrivalCode: "KLAX", Passengers: 2})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(resp.Estimates) != 10 || lookup.calls.Load() != 10 {
		t.Errorf("expected 10 estimates and calls, got %d/%d", len(resp.Estimates), lookup.calls.Load())
	}
}

func TestFlightTimes_UpstreamFailureFallsBackToEstimate(t *testing.T) {
	store := newMemStore()
	store.airports["KJFK"] = &jfk
	store.airports["KLAX"] = &lax
	lookup := &fakeLookup{err: &domain.ErrExternalService{Service: "aerodatabox", StatusCode: 500}}
	svc := newAviationService(t, store, lookup, 10)

	resp, err := svc.FlightTimes(context.Background(), &domain.FlightTimeRequest{DepartureCode: "KJFK", ArrivalCode: "KLAX", Passengers: 6})
	if err != nil {
		t.Fatalf("expected estimates, got %v", err)
	}
	for _, e := range resp.Estimates {
		if e.Source != "estimate" || e.FlightMinutes <= 0 {
			t.Errorf("expected positive local estimate, got %+v", e)
		}
	}
}

func TestFlightTimes_RateLimitIsSurfaced(t *testing.T) {
	store := newMemStore()
	store.airports["KJFK"] = &jfk
	store.airports["KLAX"] = &lax
	lookup := &fakeLookup{err: &domain.ErrRateLimited{Service: "aerodatabox", RetryAfter: "60"}}
	svc := newAviationService(t, store, lookup, 10)

	_, err := svc.FlightTimes(context.Background(), &domain.FlightTimeRequest{DepartureCode: "KJFK", ArrivalCode: "KLAX", Passengers: 6})
	var rl *domain.ErrRateLimited
	if !errors.As(err, &rl) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if rl.RetryAfter != "60" {
		t.Errorf("expected Retry-After to be kept, got %q", rl.RetryAfter)
	}
}

func TestFlightTimes_WithoutUpstreamUsesEstimates(t *testing.T) {
	store := newMemStore()
	store.airports["KJFK"] = &jfk
	store.airports["KLAX"] = &lax
	svc := newAviationService(t, store, nil, 10)

	resp, err := svc.FlightTimes(context.Background(), &domain.FlightTimeRequest{DepartureCode: "JFK", ArrivalCode: "LAX", Passengers: 12})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(resp.Estimates) == 0 {
		t.Fatal("expected estimates from the catalog")
	}
	for _, e := range resp.Estimates {
		if e.Passengers < 12 {
			t.Errorf("candidate %s seats only %d", e.AircraftType, e.Passengers)
		}
	}
}

func TestSearchAirports_FallsBackToTable(t *testing.T) {
	store := newMemStore()
	store.airports["KJFK"] = &jfk
	store.airports["KLAX"] = &lax
	svc := newAviationService(t, store, nil, 10)

	got, err := svc.SearchAirports(context.Background(), "angeles", 5)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 1 || got[0].ICAO != "KLAX" {
		t.Errorf("expected KLAX, got %+v", got)
	}
}

func TestReindexAirports_NotConfigured(t *testing.T) {
	svc := newAviationService(t, newMemStore(), nil, 10)

	_, err := svc.ReindexAirports(context.Background())
	var nc *domain.ErrNotConfigured
	if !errors.As(err, &nc) {
		t.Fatalf("expected not configured, got %v", err)
	}
}

func TestAircraftPosition_NotConfigured(t *testing.T) {
	svc := newAviationService(t, newMemStore(), nil, 10)

	_, err := svc.AircraftPosition(context.Background(), "N123AB")
	var nc *domain.ErrNotConfigured
	if !errors.As(err, &nc) {
		t.Fatalf("expected not configured, got %v", err)
	}
}

func TestSeedAircraft(t *testing.T) {
	store := newMemStore()
	svc := newAviationService(t, store, nil, 10)

	if err := svc.SeedAircraft(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	list, _ := svc.ListAircraft(context.Background(), "heavy")
	if len(list) == 0 {
		t.Error("expected heavy jets after seeding")
	}
}
