package domain

import (
	"encoding/json"
	"time"
)

// ============================================================
// Outbound webhooks
// ============================================================

// Webhook targets.
const (
	WebhookTargetZapier = "zapier"
	WebhookTargetMake   = "make"
	WebhookTargetCustom = "custom"
)

// WebhookLog is the audit record of one outbound webhook attempt.
type WebhookLog struct {
	ID             string          `json:"id,omitempty"`
	UserID         string          `json:"user_id,omitempty"`
	LeadID         string          `json:"lead_id,omitempty"`
	Target         string          `json:"target"`
	WebhookURL     string          `json:"webhook_url"`
	RequestPayload json.RawMessage `json:"request_payload"`
	ResponseStatus int             `json:"response_status"`
	ResponseBody   string          `json:"response_body,omitempty"`
	Success        bool            `json:"success"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// SendWebhookRequest is the body of POST /v1/leads/{leadId}/webhook.
type SendWebhookRequest struct {
	Target string `json:"target"`
	URL    string `json:"url,omitempty"` // only for target=custom
}

// LeadWebhookPayload is what Zapier/Make receive.
type LeadWebhookPayload struct {
	Event     string    `json:"event"`
	Lead      *Lead     `json:"lead"`
	Timestamp time.Time `json:"timestamp"`
}
