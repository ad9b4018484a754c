package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/observability"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/webhook"
	"github.com/boddenberg/charter-leads-bfa/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var webhookTracer = otel.Tracer("service/webhooks")

// WebhookService pushes leads to Zapier, Make or a custom URL and records
// every attempt in webhook_logs.
type WebhookService struct {
	leads   port.LeadStore
	logs    port.WebhookLogStore
	poster  port.WebhookPoster
	targets map[string]string
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewWebhookService creates the service. zapierURL and makeURL may be empty.
func NewWebhookService(
	leads port.LeadStore,
	logs port.WebhookLogStore,
	poster port.WebhookPoster,
	zapierURL, makeURL string,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *WebhookService {
	return &WebhookService{
		leads:  leads,
		logs:   logs,
		poster: poster,
		targets: map[string]string{
			domain.WebhookTargetZapier: zapierURL,
			domain.WebhookTargetMake:   makeURL,
		},
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *WebhookService) resolveURL(req *domain.SendWebhookRequest) (string, error) {
	target := strings.ToLower(strings.TrimSpace(req.Target))
	switch target {
	case domain.WebhookTargetZapier, domain.WebhookTargetMake:
		if s.targets[target] == "" {
			return "", &domain.ErrNotConfigured{Integration: target + " webhook"}
		}
		return s.targets[target], nil
	case domain.WebhookTargetCustom:
		u, err := url.Parse(strings.TrimSpace(req.URL))
		if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
			return "", &domain.ErrValidation{Field: "url", Message: "must be an absolute http(s) URL"}
		}
		if internalHost(u.Hostname()) {
			return "", &domain.ErrValidation{Field: "url", Message: "must point to a public host"}
		}
		return u.String(), nil
	default:
		return "", &domain.ErrValidation{Field: "target", Message: "must be zapier, make or custom"}
	}
}

// internalHost catches literal non-public IPs and localhost names. Hostnames
// that resolve to internal ranges are refused by the poster's dialer.
func internalHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return !webhook.PublicAddr(addr)
	}
	return false
}

// SendLead posts the lead to the chosen target. The attempt is logged
// whatever the outcome; a non-2xx answer is reported as an upstream error.
func (s *WebhookService) SendLead(ctx context.Context, userID, leadID string, req *domain.SendWebhookRequest) (*domain.WebhookLog, error) {
	ctx, span := webhookTracer.Start(ctx, "WebhookService.SendLead")
	defer span.End()

	hookURL, err := s.resolveURL(req)
	if err != nil {
		return nil, err
	}
	target := strings.ToLower(strings.TrimSpace(req.Target))
	span.SetAttributes(attribute.String("webhook.target", target))

	lead, err := s.leads.GetLead(ctx, userID, leadID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(domain.LeadWebhookPayload{
		Event:     "lead.exported",
		Lead:      lead,
		Timestamp: s.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode webhook payload: %w", err)
	}

	entry := &domain.WebhookLog{
		ID:             uuid.NewString(),
		UserID:         userID,
		LeadID:         leadID,
		Target:         target,
		WebhookURL:     hookURL,
		RequestPayload: payload,
		CreatedAt:      s.now().UTC(),
	}

	status, body, postErr := s.poster.Post(ctx, hookURL, payload)
	entry.ResponseStatus = status
	entry.ResponseBody = body
	entry.Success = postErr == nil && status >= 200 && status < 300
	switch {
	case postErr != nil:
		entry.ErrorMessage = postErr.Error()
	case !entry.Success:
		entry.ErrorMessage = fmt.Sprintf("webhook answered HTTP %d", status)
	}

	if err := s.logs.CreateWebhookLog(ctx, entry); err != nil {
		s.logger.Error("webhook log not stored", zap.String("lead_id", leadID), zap.Error(err))
	}

	outcome := "success"
	if !entry.Success {
		outcome = "error"
	}
	s.metrics.IncrWebhook(target, outcome)

	if !entry.Success {
		return entry, &domain.ErrExternalService{Service: target + " webhook", StatusCode: status, Err: errors.New(entry.ErrorMessage)}
	}
	return entry, nil
}

// ListLogs returns the most recent webhook attempts of the user.
func (s *WebhookService) ListLogs(ctx context.Context, userID string, limit int) ([]domain.WebhookLog, error) {
	ctx, span := webhookTracer.Start(ctx, "WebhookService.ListLogs")
	defer span.End()

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.logs.ListWebhookLogs(ctx, userID, limit)
}
