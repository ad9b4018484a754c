// Package service implements the streaming chat assistant.
//
// ChatService opens an upstream completion stream, forwards text deltas to
// the caller, accumulates tool-call fragments per index and, when a tool
// block closes, runs the matching ChatTool and injects its summary into
// the outgoing stream. Tool failures become a visible "❌ Error: ..."
// chunk; the outgoing stream is always closed.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/boddenberg/charter-leads-bfa/internal/chat/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/chat/port"
	"github.com/boddenberg/charter-leads-bfa/internal/chat/sse"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var chatTracer = otel.Tracer("chat/service")

const systemPrompt = `You are the assistant of a private jet charter broker.
Help the broker manage leads: capture trip requests (route, dates, passengers, contact),
update lead status and notes, and summarise recent leads.
Use ICAO airport codes when you know them. Call a tool whenever the broker asks you to
create or change a lead; never invent lead IDs.`

// StreamWriter receives the outgoing stream.
type StreamWriter interface {
	WriteContent(text string) error
	Close() error
}

// ============================================================
// ChatTool: one server-side action the model can call
// ============================================================

// ChatTool is a named action exposed to the model. Execute performs one
// database operation and returns a human-readable summary.
type ChatTool interface {
	Definition() domain.ToolDefinition
	Execute(ctx context.Context, userID string, arguments json.RawMessage) (string, error)
}

// ============================================================
// ChatService
// ============================================================

type ChatService struct {
	streamer port.CompletionStreamer
	tools    map[string]ChatTool
	defs     []domain.ToolDefinition
	usage    port.UsageRecorder
	model    string
	logger   *zap.Logger
}

// NewChatService wires the streamer and the tools. usage may be nil.
func NewChatService(
	streamer port.CompletionStreamer,
	tools []ChatTool,
	usage port.UsageRecorder,
	model string,
	logger *zap.Logger,
) *ChatService {
	s := &ChatService{
		streamer: streamer,
		tools:    make(map[string]ChatTool, len(tools)),
		usage:    usage,
		model:    model,
		logger:   logger,
	}
	if s.usage == nil {
		s.usage = noopUsage{}
	}
	for _, t := range tools {
		def := t.Definition()
		s.tools[def.Function.Name] = t
		s.defs = append(s.defs, def)
	}
	return s
}

// Stream runs one assistant turn. An error is returned only when the
// upstream stream could not be opened; nothing has been written to out
// in that case. Once streaming starts every failure is reported in-band
// and out is closed.
func (s *ChatService) Stream(ctx context.Context, userID string, req *domain.StreamRequest, out StreamWriter) error {
	ctx, span := chatTracer.Start(ctx, "ChatService.Stream")
	defer span.End()
	span.SetAttributes(attribute.Int("chat.messages", len(req.Messages)))

	messages := make([]domain.Message, 0, len(req.Messages)+1)
	messages = append(messages, domain.Message{Role: "system", Content: systemPrompt})
	messages = append(messages, req.Messages...)

	body, err := s.streamer.StreamCompletion(ctx, &domain.CompletionRequest{
		Model:         s.model,
		Messages:      messages,
		Tools:         s.defs,
		StreamOptions: &domain.StreamOptions{IncludeUsage: true},
	})
	if err != nil {
		s.usage.IncrLLMRequest("error")
		s.logger.Error("chat stream open failed", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	defer body.Close()
	defer out.Close()

	s.logger.Info("chat stream opened",
		zap.String("user_id", userID),
		zap.Int("messages", len(req.Messages)),
	)

	status := s.consume(ctx, userID, body, out)
	s.usage.IncrLLMRequest(status)
	return nil
}

func (s *ChatService) consume(ctx context.Context, userID string, body io.Reader, out StreamWriter) string {
	acc := newToolAccumulator()
	status := "success"

	_, err := sse.NewReader(body, 0).Each(func(payload string) error {
		var chunk domain.Chunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			s.logger.Warn("skipping malformed stream frame", zap.Error(err))
			return nil
		}
		if chunk.Usage != nil {
			s.usage.RecordTokens(chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens)
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				if err := out.WriteContent(choice.Delta.Content); err != nil {
					return &clientGoneError{err: err}
				}
			}
			for _, d := range choice.Delta.ToolCalls {
				acc.add(d)
			}
			if choice.FinishReason != nil && *choice.FinishReason == domain.FinishToolCalls {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := s.runTools(ctx, userID, acc.drain(), out); err != nil {
					return err
				}
			}
		}
		return nil
	})
	var gone *clientGoneError
	clientGone := errors.As(err, &gone) || ctx.Err() != nil
	if err != nil {
		status = "error"
		s.logger.Warn("chat stream interrupted", zap.String("user_id", userID), zap.Error(err))
		if !clientGone {
			_ = out.WriteContent("\n\n❌ Error: " + err.Error())
		}
	}
	if clientGone {
		// Nobody would see the tool summaries.
		if pending := acc.drain(); len(pending) > 0 {
			s.logger.Warn("dropping tool calls after client left",
				zap.String("user_id", userID),
				zap.Int("tool_calls", len(pending)),
			)
		}
		return status
	}

	// Providers sometimes end the stream without a tool_calls finish reason.
	if pending := acc.drain(); len(pending) > 0 {
		_ = s.runTools(ctx, userID, pending, out)
	}
	return status
}

// runTools executes calls in order. Only a client write failure is returned.
func (s *ChatService) runTools(ctx context.Context, userID string, calls []domain.ToolCall, out StreamWriter) error {
	for _, call := range calls {
		text := s.execute(ctx, userID, call)
		if err := out.WriteContent("\n\n" + text); err != nil {
			return &clientGoneError{err: err}
		}
	}
	return nil
}

// clientGoneError marks a failed write to the caller's stream.
type clientGoneError struct{ err error }

func (e *clientGoneError) Error() string { return "write to client: " + e.err.Error() }
func (e *clientGoneError) Unwrap() error { return e.err }

func (s *ChatService) execute(ctx context.Context, userID string, call domain.ToolCall) string {
	ctx, span := chatTracer.Start(ctx, "ChatService.execute")
	defer span.End()
	span.SetAttributes(attribute.String("chat.tool", call.Name))

	tool, ok := s.tools[call.Name]
	if !ok {
		s.usage.IncrToolCall(call.Name, "error")
		return fmt.Sprintf("❌ Error: unknown tool %q", call.Name)
	}

	args := json.RawMessage(call.Arguments)
	if strings.TrimSpace(call.Arguments) == "" {
		args = json.RawMessage("{}")
	}
	if !json.Valid(args) {
		s.usage.IncrToolCall(call.Name, "error")
		return fmt.Sprintf("❌ Error: invalid arguments for %s", call.Name)
	}

	summary, err := tool.Execute(ctx, userID, args)
	if err != nil {
		s.usage.IncrToolCall(call.Name, "error")
		s.logger.Warn("chat tool failed",
			zap.String("tool", call.Name),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return "❌ Error: " + err.Error()
	}

	s.usage.IncrToolCall(call.Name, "success")
	s.logger.Info("chat tool executed", zap.String("tool", call.Name), zap.String("user_id", userID))
	return summary
}

// ============================================================
// toolAccumulator: joins tool-call fragments by index
// ============================================================

type toolAccumulator struct {
	calls map[int]*domain.ToolCall
}

func newToolAccumulator() *toolAccumulator {
	return &toolAccumulator{calls: make(map[int]*domain.ToolCall)}
}

func (a *toolAccumulator) add(d domain.ToolCallDelta) {
	call, ok := a.calls[d.Index]
	if !ok {
		call = &domain.ToolCall{}
		a.calls[d.Index] = call
	}
	if d.ID != "" {
		call.ID = d.ID
	}
	if d.Function.Name != "" {
		call.Name = d.Function.Name
	}
	call.Arguments += d.Function.Arguments
}

// drain returns the accumulated calls ordered by index and resets.
func (a *toolAccumulator) drain() []domain.ToolCall {
	if len(a.calls) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(a.calls))
	for i := range a.calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	calls := make([]domain.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		calls = append(calls, *a.calls[i])
	}
	a.calls = make(map[int]*domain.ToolCall)
	return calls
}

type noopUsage struct{}

func (noopUsage) RecordTokens(int, int) {}
func (noopUsage) IncrLLMRequest(string) {}
func (noopUsage) IncrToolCall(string, string) {}
