// Package domain holds the types of the streaming chat assistant
// (POST /v1/chat/stream).
//
// Flow:
//  1. The caller posts the conversation so far.
//  2. The BFA opens a streaming completion against an OpenAI-compatible
//     provider, advertising the CRM tools.
//  3. Text deltas are forwarded as they arrive.
//  4. Tool-call arguments are accumulated per index; once a tool block
//     closes the tool runs and its summary is injected into the stream.
//  5. The stream always ends with a [DONE] frame.
package domain

import "encoding/json"

// ============================================================
// Caller <-> BFA
// ============================================================

// Message is one turn of the conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// StreamRequest is the body of POST /v1/chat/stream.
type StreamRequest struct {
	Messages []Message `json:"messages"`
}

// ============================================================
// BFA <-> provider (OpenAI chat completions wire format)
// ============================================================

// CompletionRequest is the streaming request sent upstream.
type CompletionRequest struct {
	Model         string           `json:"model"`
	Messages      []Message        `json:"messages"`
	Tools         []ToolDefinition `json:"tools,omitempty"`
	Stream        bool             `json:"stream"`
	StreamOptions *StreamOptions   `json:"stream_options,omitempty"`
}

// StreamOptions asks the provider to append a usage frame.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// ToolDefinition advertises one callable tool.
type ToolDefinition struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// FunctionSpec describes a tool's name and JSON-schema parameters.
type FunctionSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Chunk is one decoded `data:` frame of the upstream stream.
type Chunk struct {
	ID      string        `json:"id,omitempty"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

// ChunkChoice carries the delta for a single choice.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta is the incremental content of a frame.
type Delta struct {
	Role      string          `json:"role,omitempty"`
	Content   string          `json:"content,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ToolCallDelta is a fragment of a tool call. Index identifies the call
// across frames; ID and name usually arrive only in the first fragment.
type ToolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

// ToolCall is a fully accumulated tool invocation.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Usage is token accounting reported by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// FinishToolCalls is the finish_reason closing a tool block.
const FinishToolCalls = "tool_calls"
