package handler

import (
	"net/http"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Leads
// ============================================================

func createLeadHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leads")
		defer span.End()

		var req domain.CreateLeadRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		lead, err := svc.CreateLead(ctx, domain.UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "lead": lead})
	}
}

func listLeadsHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/leads")
		defer span.End()

		leads, err := svc.ListLeads(ctx, domain.LeadFilter{
			UserID: domain.UserIDFromContext(ctx),
			Status: r.URL.Query().Get("status"),
			Limit:  parseLimit(r),
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeList(w, leads)
	}
}

func getLeadHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/leads/{leadId}")
		defer span.End()

		lead, err := svc.GetLead(ctx, domain.UserIDFromContext(ctx), chi.URLParam(r, "leadId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "lead": lead})
	}
}

func updateLeadHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/leads/{leadId}")
		defer span.End()

		var req domain.UpdateLeadRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		lead, err := svc.UpdateLead(ctx, domain.UserIDFromContext(ctx), chi.URLParam(r, "leadId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "lead": lead})
	}
}

func convertLeadHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leads/{leadId}/convert")
		defer span.End()

		leadID := chi.URLParam(r, "leadId")
		span.SetAttributes(attribute.String("lead.id", leadID))

		var req domain.ConvertLeadRequest
		if err := decodeJSON(w, r, &req, true); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		result, err := svc.ConvertLead(ctx, domain.UserIDFromContext(ctx), leadID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func parseLeadHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leads/parse")
		defer span.End()

		var req domain.ParseTextRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		draft, err := svc.ParseLead(ctx, req.Text)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "lead": draft})
	}
}

// intakeHandler receives pages from the capture agent. With an intake
// token the target user comes from the body; with a JWT it is the caller.
func intakeHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leads/intake")
		defer span.End()

		var req domain.IntakeRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, _ := domain.PrincipalFromContext(ctx)
		userID := ""
		if p != nil && p.Role != domain.RoleIntake {
			userID = p.UserID
			req.UserID = ""
		}
		if userID == "" && req.UserID == "" {
			writeError(w, http.StatusBadRequest, "userId is required with an intake token")
			return
		}

		resp, err := svc.Intake(ctx, userID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		logger.Info("page captured",
			zap.String("lead_id", resp.LeadID),
			zap.String("url", req.PageData.URL),
		)
		writeJSON(w, http.StatusCreated, resp)
	}
}

func listOpportunitiesHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/opportunities")
		defer span.End()

		opps, err := svc.ListOpportunities(ctx, domain.UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeList(w, opps)
	}
}

// ============================================================
// Webhooks
// ============================================================

func sendLeadWebhookHandler(svc *service.WebhookService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leads/{leadId}/webhook")
		defer span.End()

		var req domain.SendWebhookRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		entry, err := svc.SendLead(ctx, domain.UserIDFromContext(ctx), chi.URLParam(r, "leadId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "log": entry})
	}
}

func listWebhookLogsHandler(svc *service.WebhookService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/webhooks/logs")
		defer span.End()

		logs, err := svc.ListLogs(ctx, domain.UserIDFromContext(ctx), parseLimit(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeList(w, logs)
	}
}
