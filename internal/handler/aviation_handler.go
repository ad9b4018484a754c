package handler

import (
	"net/http"
	"strconv"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Airports
// ============================================================

func searchAirportsHandler(svc *service.AviationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/airports/search")
		defer span.End()

		airports, err := svc.SearchAirports(ctx, r.URL.Query().Get("q"), parseLimit(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeList(w, airports)
	}
}

func reindexAirportsHandler(svc *service.AviationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/airports/reindex")
		defer span.End()

		n, err := svc.ReindexAirports(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "indexed": n})
	}
}

func getAirportHandler(svc *service.AviationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/airports/{code}")
		defer span.End()

		airport, err := svc.LookupAirport(ctx, chi.URLParam(r, "code"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "airport": airport})
	}
}

// ============================================================
// Distance & flight times
// ============================================================

func distanceHandler(svc *service.AviationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/aviation/distance")
		defer span.End()

		var req domain.DistanceRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(
			attribute.String("route.from", req.DepartureCode),
			attribute.String("route.to", req.ArrivalCode),
		)
		resp, err := svc.Distance(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func flightTimesHandler(svc *service.AviationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/aviation/flight-times")
		defer span.End()

		var req domain.FlightTimeRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(
			attribute.String("route.from", req.DepartureCode),
			attribute.String("route.to", req.ArrivalCode),
			attribute.Int("passengers", req.Passengers),
		)
		resp, err := svc.FlightTimes(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// ============================================================
// Aircraft
// ============================================================

func listAircraftHandler(svc *service.AviationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/aircraft")
		defer span.End()

		list, err := svc.ListAircraft(ctx, r.URL.Query().Get("category"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeList(w, list)
	}
}

func aircraftPositionHandler(svc *service.AviationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/aircraft/{registration}/position")
		defer span.End()

		pos, err := svc.AircraftPosition(ctx, chi.URLParam(r, "registration"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "position": pos})
	}
}

// ============================================================
// Trusted operators
// ============================================================

func listOperatorsHandler(svc *service.OperatorService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/operators")
		defer span.End()

		ops, err := svc.ListOperators(ctx, domain.UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeList(w, ops)
	}
}

func createOperatorHandler(svc *service.OperatorService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/operators")
		defer span.End()

		var req domain.CreateOperatorRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		op, err := svc.CreateOperator(ctx, domain.UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "operator": op})
	}
}

func operatorFleetHandler(svc *service.OperatorService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/operators/{operatorId}/fleet")
		defer span.End()

		fleet, err := svc.GetFleet(ctx, domain.UserIDFromContext(ctx), chi.URLParam(r, "operatorId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeList(w, fleet)
	}
}

func refreshFleetHandler(svc *service.OperatorService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/operators/{operatorId}/refresh-fleet")
		defer span.End()

		operatorID := chi.URLParam(r, "operatorId")
		res, err := svc.RefreshFleet(ctx, domain.UserIDFromContext(ctx), operatorID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.Header().Set("X-Fleet-Size", strconv.Itoa(len(res.Aircraft)))
		writeJSON(w, http.StatusOK, res)
	}
}
