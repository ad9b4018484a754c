package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/observability"
	"github.com/boddenberg/charter-leads-bfa/internal/service"

	"go.uber.org/zap"
)

type fakeFleet struct {
	fleets map[string][]domain.AircraftLocation
	errs   map[string]error
	calls  []string
}

func (f *fakeFleet) OperatorFleet(_ context.Context, name string) ([]domain.AircraftLocation, error) {
	f.calls = append(f.calls, name)
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	return append([]domain.AircraftLocation{}, f.fleets[name]...), nil
}

func seedOperator(store *memStore, id, userID, name string) {
	store.operators[id] = &domain.TrustedOperator{ID: id, UserID: userID, Name: name, CachedAircraft: []string{}}
}

func TestRefreshFleet_ReplacesRowsAndCache(t *testing.T) {
	store := newMemStore()
	seedOperator(store, "op-1", "user-1", "Jet Edge")
	fleet := &fakeFleet{fleets: map[string][]domain.AircraftLocation{
		"Jet Edge": {
			{Registration: "N650JE", AircraftType: "Gulfstream G650", HomeBase: "KVNY"},
			{Registration: "N300JE"},
		},
	}}
	svc := service.NewOperatorService(store, store, fleet, observability.NewMetrics(), zap.NewNop())

	res, err := svc.RefreshFleet(context.Background(), "user-1", "op-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Success || len(res.Aircraft) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	for _, a := range res.Aircraft {
		if a.OperatorID != "op-1" || a.ID == "" || a.UpdatedAt.IsZero() {
			t.Errorf("fleet row not stamped: %+v", a)
		}
	}

	stored, _ := svc.GetFleet(context.Background(), "user-1", "op-1")
	if len(stored) != 2 {
		t.Errorf("expected 2 stored rows, got %d", len(stored))
	}

	op := store.operators["op-1"]
	want := []string{"Gulfstream G650 (N650JE)", "N300JE"}
	if len(op.CachedAircraft) != len(want) {
		t.Fatalf("expected cache %v, got %v", want, op.CachedAircraft)
	}
	for i := range want {
		if op.CachedAircraft[i] != want[i] {
			t.Errorf("cache[%d]: expected %q, got %q", i, want[i], op.CachedAircraft[i])
		}
	}
	if op.FleetRefreshedAt == nil {
		t.Error("expected fleet_refreshed_at to be set")
	}
}

func TestRefreshFleet_OtherUsersOperator(t *testing.T) {
	store := newMemStore()
	seedOperator(store, "op-1", "user-1", "Jet Edge")
	svc := service.NewOperatorService(store, store, &fakeFleet{}, observability.NewMetrics(), zap.NewNop())

	_, err := svc.RefreshFleet(context.Background(), "user-2", "op-1")
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRefreshFleet_NotConfigured(t *testing.T) {
	store := newMemStore()
	seedOperator(store, "op-1", "user-1", "Jet Edge")
	svc := service.NewOperatorService(store, store, nil, observability.NewMetrics(), zap.NewNop())

	_, err := svc.RefreshFleet(context.Background(), "user-1", "op-1")
	var nc *domain.ErrNotConfigured
	if !errors.As(err, &nc) {
		t.Fatalf("expected not configured, got %v", err)
	}
}

func TestRefreshAll_SkipsFailuresAndStopsOnRateLimit(t *testing.T) {
	store := newMemStore()
	seedOperator(store, "op-a", "user-1", "Alpha")
	seedOperator(store, "op-b", "user-1", "Bravo")
	seedOperator(store, "op-c", "user-2", "Charlie")
	seedOperator(store, "op-d", "user-2", "Delta")
	fleet := &fakeFleet{
		fleets: map[string][]domain.AircraftLocation{
			"Alpha":   {{Registration: "N1AA"}},
			"Charlie": {{Registration: "N3CC"}},
		},
		errs: map[string]error{
			"Bravo":   &domain.ErrNotFound{Resource: "operator", ID: "Bravo"},
			"Delta":   &domain.ErrRateLimited{Service: "aviapages"},
		},
	}
	svc := service.NewOperatorService(store, store, fleet, observability.NewMetrics(), zap.NewNop())

	n, err := svc.RefreshAll(context.Background())
	var rl *domain.ErrRateLimited
	if !errors.As(err, &rl) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 refreshed before the limit, got %d", n)
	}
	if len(fleet.calls) != 4 {
		t.Errorf("expected 4 upstream calls, got %v", fleet.calls)
	}
}

func TestRefreshAll_RateLimitHaltsRemainingOperators(t *testing.T) {
	store := newMemStore()
	seedOperator(store, "op-a", "user-1", "Alpha")
	seedOperator(store, "op-b", "user-1", "Bravo")
	fleet := &fakeFleet{errs: map[string]error{"Alpha": &domain.ErrRateLimited{Service: "aviapages"}}}
	svc := service.NewOperatorService(store, store, fleet, observability.NewMetrics(), zap.NewNop())

	_, err := svc.RefreshAll(context.Background())
	if err == nil {
		t.Fatal("expected rate limit error")
	}
	if len(fleet.calls) != 1 {
		t.Errorf("expected Bravo to be skipped, calls: %v", fleet.calls)
	}
}

func TestCreateOperator_Validation(t *testing.T) {
	svc := service.NewOperatorService(newMemStore(), newMemStore(), nil, observability.NewMetrics(), zap.NewNop())

	cases := map[string]*domain.CreateOperatorRequest{
		"missing name": {Email: "ops@example.com"},
		"bad email":    {Name: "Jet Edge", Email: "not-an-email"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateOperator(context.Background(), "user-1", req)
			var ve *domain.ErrValidation
			if !errors.As(err, &ve) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestScheduleFleetRefresh_RejectsBadCron(t *testing.T) {
	svc := service.NewOperatorService(newMemStore(), newMemStore(), nil, observability.NewMetrics(), zap.NewNop())

	if _, err := svc.ScheduleFleetRefresh(context.Background(), "not a cron"); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}
