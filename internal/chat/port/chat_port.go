// Package port declares what the chat service needs from the outside:
// a streaming completion provider and the lead operations exposed as tools.
package port

import (
	"context"
	"io"

	chatdomain "github.com/boddenberg/charter-leads-bfa/internal/chat/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

// CompletionStreamer opens a streaming chat completion. The returned body
// is a raw SSE stream; the caller closes it.
type CompletionStreamer interface {
	StreamCompletion(ctx context.Context, req *chatdomain.CompletionRequest) (io.ReadCloser, error)
}

// LeadManager is the subset of the lead service the chat tools call.
type LeadManager interface {
	CreateLead(ctx context.Context, userID string, req *domain.CreateLeadRequest) (*domain.Lead, error)
	GetLead(ctx context.Context, userID, leadID string) (*domain.Lead, error)
	UpdateLead(ctx context.Context, userID, leadID string, req *domain.UpdateLeadRequest) (*domain.Lead, error)
	ListLeads(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, error)
}

// UsageRecorder receives token and tool accounting.
type UsageRecorder interface {
	RecordTokens(prompt, completion int)
	IncrLLMRequest(status string)
	IncrToolCall(tool, status string)
}
