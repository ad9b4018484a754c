// Package handler exposes the BFA's HTTP API: lead CRM, aviation data,
// operators, quotes, templates, imports, webhooks and the streaming chat.
package handler

import (
	"context"
	"net/http"
	"time"

	chathandler "github.com/boddenberg/charter-leads-bfa/internal/chat/handler"
	chatservice "github.com/boddenberg/charter-leads-bfa/internal/chat/service"
	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/observability"
	"github.com/boddenberg/charter-leads-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Pinger is the database readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SearchHealth reports whether the airport search index is reachable.
type SearchHealth interface {
	Healthy() bool
}

// Services groups everything the router mounts. Nil services leave their
// routes unmounted; Auth is required.
type Services struct {
	Auth      *service.AuthService
	Leads     *service.LeadService
	Aviation  *service.AviationService
	Operators *service.OperatorService
	Quotes    *service.QuoteService
	Templates *service.TemplateService
	Imports   *service.ImportService
	Webhooks  *service.WebhookService
	Chat      *chatservice.ChatService

	Store  Pinger
	Search SearchHealth
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svcs Services, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "apikey", "x-client-info", IntakeTokenHeader},
		MaxAge:         300,
	}))
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svcs.Store, svcs.Search))
	r.Get("/readyz", readyzHandler(svcs.Store, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		if svcs.Leads != nil {
			r.With(IntakeAuthMiddleware(svcs.Auth, logger)).Post("/leads/intake", intakeHandler(svcs.Leads, logger))
		}

		r.Group(func(r chi.Router) {
			r.Use(SupabaseAuthMiddleware(svcs.Auth, logger))

			r.Get("/metrics/llm", llmMetricsHandler(metrics))

			// =============================================
			// Leads & opportunities
			// =============================================
			if svcs.Leads != nil {
				r.Post("/leads", createLeadHandler(svcs.Leads, logger))
				r.Get("/leads", listLeadsHandler(svcs.Leads, logger))
				r.Post("/leads/parse", parseLeadHandler(svcs.Leads, logger))
				r.Get("/leads/{leadId}", getLeadHandler(svcs.Leads, logger))
				r.Patch("/leads/{leadId}", updateLeadHandler(svcs.Leads, logger))
				r.Post("/leads/{leadId}/convert", convertLeadHandler(svcs.Leads, logger))
				r.Get("/opportunities", listOpportunitiesHandler(svcs.Leads, logger))
			}
			if svcs.Webhooks != nil {
				r.Post("/leads/{leadId}/webhook", sendLeadWebhookHandler(svcs.Webhooks, logger))
				r.Get("/webhooks/logs", listWebhookLogsHandler(svcs.Webhooks, logger))
			}

			// =============================================
			// Aviation
			// =============================================
			if svcs.Aviation != nil {
				r.Get("/airports/search", searchAirportsHandler(svcs.Aviation, logger))
				r.Post("/airports/reindex", reindexAirportsHandler(svcs.Aviation, logger))
				r.Get("/airports/{code}", getAirportHandler(svcs.Aviation, logger))
				r.Post("/aviation/distance", distanceHandler(svcs.Aviation, logger))
				r.Post("/aviation/flight-times", flightTimesHandler(svcs.Aviation, logger))
				r.Get("/aircraft", listAircraftHandler(svcs.Aviation, logger))
				r.Get("/aircraft/{registration}/position", aircraftPositionHandler(svcs.Aviation, logger))
			}
			if svcs.Operators != nil {
				r.Get("/operators", listOperatorsHandler(svcs.Operators, logger))
				r.Post("/operators", createOperatorHandler(svcs.Operators, logger))
				r.Get("/operators/{operatorId}/fleet", operatorFleetHandler(svcs.Operators, logger))
				r.Post("/operators/{operatorId}/refresh-fleet", refreshFleetHandler(svcs.Operators, logger))
			}

			// =============================================
			// Quotes, templates, imports
			// =============================================
			if svcs.Quotes != nil {
				r.Post("/quotes/parse", parseQuotesHandler(svcs.Quotes, logger))
				r.Post("/quotes/parse-email", parseQuoteEmailHandler(svcs.Quotes, logger))
				r.Post("/open-legs/parse-email", parseOpenLegEmailHandler(svcs.Quotes, logger))
			}
			if svcs.Templates != nil {
				r.Get("/templates", listTemplatesHandler(svcs.Templates, logger))
				r.Post("/templates", createTemplateHandler(svcs.Templates, logger))
				r.Put("/templates/{templateId}", updateTemplateHandler(svcs.Templates, logger))
				r.Post("/templates/{templateId}/render", renderTemplateHandler(svcs.Templates, logger))
			}
			if svcs.Imports != nil {
				r.Post("/imports/scrape", scrapeHandler(svcs.Imports, logger))
				r.Get("/imports", listImportsHandler(svcs.Imports, logger))
				r.Post("/imports/{importId}/approve", approveImportHandler(svcs.Imports, logger))
				r.Delete("/imports/{importId}", rejectImportHandler(svcs.Imports, logger))
			}

			// =============================================
			// Chat assistant (SSE)
			// =============================================
			if svcs.Chat != nil {
				r.Post("/chat/stream", chathandler.StreamHandler(svcs.Chat, logger))
			}
		})
	})

	return r
}

// ============================================================
// Operational handlers
// ============================================================

func healthzHandler(store Pinger, search SearchHealth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC().Format(time.RFC3339)
		services := []domain.ServiceHealth{
			{Name: "bfa-api", Status: "healthy", LastChecked: now},
		}

		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			start := time.Now()
			err := store.Ping(ctx)
			cancel()
			h := domain.ServiceHealth{Name: "database", Status: "healthy", LatencyMs: time.Since(start).Milliseconds(), LastChecked: now}
			if err != nil {
				h.Status = "unhealthy"
				h.Error = err.Error()
			}
			services = append(services, h)
		}
		if search != nil {
			h := domain.ServiceHealth{Name: "airport-search", Status: "healthy", LastChecked: now}
			if !search.Healthy() {
				h.Status = "degraded"
			}
			services = append(services, h)
		}

		overall := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overall = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overall = "degraded"
			}
		}
		writeJSON(w, http.StatusOK, domain.HealthStatus{Status: overall, Services: services})
	}
}

func readyzHandler(store Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				logger.Warn("readiness check failed", zap.Error(err))
				writeError(w, http.StatusServiceUnavailable, "database unavailable")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func llmMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetLLMSnapshot())
	}
}
