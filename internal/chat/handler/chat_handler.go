// Package handler exposes the streaming chat assistant over HTTP:
//
//	POST /v1/chat/stream  {"messages": [{"role": "user", "content": "..."}]}
//
// The response is an SSE stream in the OpenAI delta format, always
// terminated by `data: [DONE]`.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boddenberg/charter-leads-bfa/internal/chat/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/chat/service"
	"github.com/boddenberg/charter-leads-bfa/internal/chat/sse"
	maindomain "github.com/boddenberg/charter-leads-bfa/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("chat/handler")

// StreamHandler returns the handler for POST /v1/chat/stream.
func StreamHandler(chatSvc *service.ChatService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/chat/stream")
		defer span.End()

		userID := maindomain.UserIDFromContext(ctx)
		span.SetAttributes(attribute.String("user.id", userID))

		var req domain.StreamRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, `invalid request body: expected {"messages": [...]}`)
			return
		}
		if len(req.Messages) == 0 {
			writeError(w, http.StatusBadRequest, "messages is required")
			return
		}

		out := &deltaWriter{sse: sse.NewWriter(w)}
		if err := chatSvc.Stream(ctx, userID, &req, out); err != nil {
			handleServiceError(w, err, logger)
			return
		}
	}
}

// deltaWriter re-emits content as OpenAI-style delta frames.
type deltaWriter struct {
	sse *sse.Writer
}

type deltaFrame struct {
	Choices []deltaChoice `json:"choices"`
}

type deltaChoice struct {
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
}

func (d *deltaWriter) WriteContent(text string) error {
	frame := deltaFrame{Choices: make([]deltaChoice, 1)}
	frame.Choices[0].Delta.Content = text
	b, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return d.sse.WriteData(b)
}

func (d *deltaWriter) Close() error {
	return d.sse.WriteDone()
}

// ============================================================
// Helpers
// ============================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleServiceError maps errors raised before the stream starts.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var (
		rateLimited *maindomain.ErrRateLimited
		external    *maindomain.ErrExternalService
		circuit     *maindomain.ErrCircuitOpen
		notConf     *maindomain.ErrNotConfigured
	)
	switch {
	case errors.As(err, &rateLimited):
		if rateLimited.RetryAfter != "" {
			w.Header().Set("Retry-After", rateLimited.RetryAfter)
		}
		writeError(w, http.StatusTooManyRequests, rateLimited.Error())
	case errors.As(err, &external):
		logger.Error("external service error", zap.String("service", external.Service), zap.Error(external.Err))
		writeError(w, http.StatusBadGateway, external.Error())
	case errors.As(err, &circuit), errors.As(err, &notConf):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logger.Error("unexpected error in chat handler", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
