// Package llm provides the chat completion client used by workflow nodes.
//
// The wire protocol is the one spoken by a local Ollama server: a single
// POST /api/chat call returning either one JSON body (stream=false) or a
// sequence of newline-delimited JSON chunks (stream=true).
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Client is the chat completion service consumed by the engine.
// Implementations must be safe for concurrent use.
type Client interface {
	// Chat performs a blocking completion and returns the full response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Stream performs a streaming completion. Chunks are delivered on the
	// returned channel in the order produced by the service; the channel is
	// closed after the final chunk. A chunk with a non-nil Error terminates
	// the stream.
	Stream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)
}

// ChatRequest configures a completion call.
type ChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

// Message is a conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role identifies the message sender.
type Role string

// Standard message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// UserMessage builds a single-turn conversation from a prompt.
// Node execution always sends exactly one user-role message.
func UserMessage(content string) []Message {
	return []Message{{Role: RoleUser, Content: content}}
}

// ChatResponse is the output of a blocking completion call.
type ChatResponse struct {
	Content  string        `json:"content"`
	Model    string        `json:"model"`
	Duration time.Duration `json:"duration"`
}

// StreamChunk is a piece of a streaming response.
type StreamChunk struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done"`
	Error   error  `json:"-"` // Non-nil if streaming failed
}

// Error wraps failures from the completion service with operation context.
type Error struct {
	// Op is the operation that failed ("chat", "stream", "tags").
	Op string
	// Err is the underlying error.
	Err error
	// Retryable indicates the failure is likely transient.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error with operation context.
func NewError(op string, err error, retryable bool) *Error {
	return &Error{Op: op, Err: err, Retryable: retryable}
}

// isRetryableStatus reports whether an HTTP status line or message indicates
// a transient failure.
func isRetryableStatus(msg string) bool {
	msgLower := strings.ToLower(msg)
	return strings.Contains(msgLower, "timeout") ||
		strings.Contains(msgLower, "overloaded") ||
		strings.Contains(msgLower, "429") ||
		strings.Contains(msgLower, "503")
}
