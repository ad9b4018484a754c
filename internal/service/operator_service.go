package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/observability"
	"github.com/boddenberg/charter-leads-bfa/internal/port"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var operatorTracer = otel.Tracer("service/operators")

// OperatorService manages trusted operators and their cached fleets.
type OperatorService struct {
	operators port.OperatorStore
	aircraft  port.AircraftStore
	fleet     port.FleetProvider // optional
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewOperatorService creates the service. fleet may be nil when no
// Aviapages token is configured.
func NewOperatorService(
	operators port.OperatorStore,
	aircraft port.AircraftStore,
	fleet port.FleetProvider,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *OperatorService {
	return &OperatorService{
		operators: operators,
		aircraft:  aircraft,
		fleet:     fleet,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *OperatorService) ListOperators(ctx context.Context, userID string) ([]domain.TrustedOperator, error) {
	ctx, span := operatorTracer.Start(ctx, "OperatorService.ListOperators")
	defer span.End()

	return s.operators.ListOperators(ctx, userID)
}

func (s *OperatorService) CreateOperator(ctx context.Context, userID string, req *domain.CreateOperatorRequest) (*domain.TrustedOperator, error) {
	ctx, span := operatorTracer.Start(ctx, "OperatorService.CreateOperator")
	defer span.End()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "is required"}
	}
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			return nil, &domain.ErrValidation{Field: "email", Message: "invalid email address"}
		}
	}

	op, err := s.operators.CreateOperator(ctx, &domain.TrustedOperator{
		ID:             uuid.NewString(),
		UserID:         userID,
		Name:           name,
		Email:          strings.TrimSpace(req.Email),
		Phone:          strings.TrimSpace(req.Phone),
		Website:        strings.TrimSpace(req.Website),
		Notes:          req.Notes,
		CachedAircraft: []string{},
		CreatedAt:      s.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("create operator: %w", err)
	}
	return op, nil
}

// GetFleet returns the stored fleet records of an operator.
func (s *OperatorService) GetFleet(ctx context.Context, userID, operatorID string) ([]domain.AircraftLocation, error) {
	ctx, span := operatorTracer.Start(ctx, "OperatorService.GetFleet")
	defer span.End()

	if _, err := s.operators.GetOperator(ctx, userID, operatorID); err != nil {
		return nil, err
	}
	return s.aircraft.ListFleet(ctx, operatorID)
}

// RefreshFleet pulls the operator's fleet from Aviapages, replaces the
// stored fleet rows and updates the operator's cached aircraft list.
func (s *OperatorService) RefreshFleet(ctx context.Context, userID, operatorID string) (*domain.FleetRefreshResult, error) {
	ctx, span := operatorTracer.Start(ctx, "OperatorService.RefreshFleet")
	defer span.End()
	span.SetAttributes(attribute.String("operator.id", operatorID))

	op, err := s.operators.GetOperator(ctx, userID, operatorID)
	if err != nil {
		return nil, err
	}
	fleet, err := s.refresh(ctx, op)
	if err != nil {
		return nil, err
	}
	return &domain.FleetRefreshResult{Success: true, OperatorID: op.ID, Aircraft: fleet}, nil
}

func (s *OperatorService) refresh(ctx context.Context, op *domain.TrustedOperator) ([]domain.AircraftLocation, error) {
	if s.fleet == nil {
		return nil, &domain.ErrNotConfigured{Integration: "Aviapages"}
	}

	start := time.Now()
	fleet, err := s.fleet.OperatorFleet(ctx, op.Name)
	s.metrics.RecordRequestDuration("aviapages_fleet", time.Since(start))
	if err != nil {
		var nf *domain.ErrNotFound
		var rl *domain.ErrRateLimited
		if !errors.As(err, &nf) && !errors.As(err, &rl) {
			s.metrics.IncrExternalError("aviapages")
		}
		return nil, err
	}

	now := s.now().UTC()
	cached := make([]string, 0, len(fleet))
	for i := range fleet {
		fleet[i].OperatorID = op.ID
		fleet[i].UpdatedAt = now
		if fleet[i].ID == "" {
			fleet[i].ID = uuid.NewString()
		}
		cached = append(cached, fleetLabel(fleet[i]))
	}

	if err := s.aircraft.ReplaceFleet(ctx, op.ID, fleet); err != nil {
		return nil, fmt.Errorf("replace fleet: %w", err)
	}
	if err := s.operators.UpdateFleetCache(ctx, op.ID, cached, now); err != nil {
		return nil, fmt.Errorf("update fleet cache: %w", err)
	}

	s.logger.Info("operator fleet refreshed",
		zap.String("operator_id", op.ID),
		zap.String("operator", op.Name),
		zap.Int("aircraft", len(fleet)),
	)
	return fleet, nil
}

func fleetLabel(a domain.AircraftLocation) string {
	switch {
	case a.AircraftType == "":
		return a.Registration
	case a.Registration == "":
		return a.AircraftType
	default:
		return a.AircraftType + " (" + a.Registration + ")"
	}
}

// RefreshAll refreshes every operator of every user. A rate limit stops
// the run; other failures are logged and skipped.
func (s *OperatorService) RefreshAll(ctx context.Context) (refreshed int, err error) {
	ctx, span := operatorTracer.Start(ctx, "OperatorService.RefreshAll")
	defer span.End()

	ops, err := s.operators.ListAllOperators(ctx)
	if err != nil {
		return 0, fmt.Errorf("list operators: %w", err)
	}

	for i := range ops {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}
		if _, err := s.refresh(ctx, &ops[i]); err != nil {
			var rl *domain.ErrRateLimited
			if errors.As(err, &rl) {
				s.logger.Warn("fleet refresh stopped by rate limit", zap.Int("refreshed", refreshed), zap.Error(err))
				return refreshed, err
			}
			s.logger.Warn("fleet refresh failed", zap.String("operator_id", ops[i].ID), zap.Error(err))
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

// ScheduleFleetRefresh runs RefreshAll on the given cron expression.
// The caller stops the returned scheduler on shutdown.
func (s *OperatorService) ScheduleFleetRefresh(ctx context.Context, cronExpr string) (*gocron.Scheduler, error) {
	sched := gocron.NewScheduler(time.UTC)
	sched.SingletonModeAll()

	_, err := sched.Cron(cronExpr).Do(func() {
		n, err := s.RefreshAll(ctx)
		if err != nil {
			s.logger.Warn("scheduled fleet refresh ended early", zap.Int("refreshed", n), zap.Error(err))
			return
		}
		s.logger.Info("scheduled fleet refresh done", zap.Int("refreshed", n))
	})
	if err != nil {
		return nil, fmt.Errorf("schedule fleet refresh %q: %w", cronExpr, err)
	}
	sched.StartAsync()
	return sched, nil
}
