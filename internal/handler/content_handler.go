package handler

import (
	"net/http"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Quotes & open legs
// ============================================================

func parseQuotesHandler(svc *service.QuoteService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/quotes/parse")
		defer span.End()

		var req domain.ParseTextRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		quotes, err := svc.ParseQuotes(ctx, req.Text)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ParseQuotesResponse{Success: true, Quotes: quotes})
	}
}

func parseQuoteEmailHandler(svc *service.QuoteService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/quotes/parse-email")
		defer span.End()

		var req domain.ParseEmailRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		quotes, err := svc.ParseQuoteEmail(ctx, domain.UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeList(w, quotes)
	}
}

func parseOpenLegEmailHandler(svc *service.QuoteService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/open-legs/parse-email")
		defer span.End()

		var req domain.ParseEmailRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		legs, err := svc.ParseOpenLegEmail(ctx, domain.UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeList(w, legs)
	}
}

// ============================================================
// Email templates
// ============================================================

func listTemplatesHandler(svc *service.TemplateService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/templates")
		defer span.End()

		list, err := svc.ListTemplates(ctx, domain.UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeList(w, list)
	}
}

func createTemplateHandler(svc *service.TemplateService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/templates")
		defer span.End()

		var req domain.TemplateRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		t, err := svc.CreateTemplate(ctx, domain.UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "template": t})
	}
}

func updateTemplateHandler(svc *service.TemplateService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/templates/{templateId}")
		defer span.End()

		var req domain.TemplateRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		t, err := svc.UpdateTemplate(ctx, domain.UserIDFromContext(ctx), chi.URLParam(r, "templateId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "template": t})
	}
}

func renderTemplateHandler(svc *service.TemplateService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/templates/{templateId}/render")
		defer span.End()

		var req domain.RenderTemplateRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		out, err := svc.RenderTemplate(ctx, domain.UserIDFromContext(ctx), chi.URLParam(r, "templateId"), req.LeadID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "email": out})
	}
}

// ============================================================
// Pending imports
// ============================================================

func scrapeHandler(svc *service.ImportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/imports/scrape")
		defer span.End()

		var req domain.ScrapeRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		imp, err := svc.Scrape(ctx, domain.UserIDFromContext(ctx), req.URL)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "import": imp})
	}
}

func listImportsHandler(svc *service.ImportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/imports")
		defer span.End()

		list, err := svc.ListImports(ctx, domain.UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeList(w, list)
	}
}

func approveImportHandler(svc *service.ImportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/imports/{importId}/approve")
		defer span.End()

		lead, err := svc.Approve(ctx, domain.UserIDFromContext(ctx), chi.URLParam(r, "importId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "lead": lead})
	}
}

func rejectImportHandler(svc *service.ImportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/imports/{importId}")
		defer span.End()

		importID := chi.URLParam(r, "importId")
		if err := svc.Reject(ctx, domain.UserIDFromContext(ctx), importID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Success: true, ID: importID})
	}
}
