package providers

import (
	"context"
	"time"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a normalized chat-completion request.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Response is a normalized synchronous completion.
type Response struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// Stream is an in-flight streaming completion. Recv returns fragments until
// io.EOF; Usage is valid once Recv has returned io.EOF. Close releases the
// connection and is safe to call at any point, including mid-stream
// cancellation.
type Stream interface {
	Recv() (string, error)
	Usage() (promptTokens, completionTokens int)
	Close() error
}

// Provider is implemented by each concrete chat-completion backend. The
// adapter keeps no state between calls beyond its HTTP client; all failures
// come back as *Error with a kind from the closed taxonomy.
type Provider interface {
	// Name returns the backend name (e.g. "openai")
	Name() string

	// Chat sends a synchronous chat completion request
	Chat(ctx context.Context, req Request) (*Response, error)

	// ChatStream opens a streaming chat completion
	ChatStream(ctx context.Context, req Request) (Stream, error)

	// Close performs cleanup when the provider is no longer needed
	Close() error
}
