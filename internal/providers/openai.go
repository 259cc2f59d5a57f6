package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAITimeout        = 60 * time.Second
)

// OpenAIProvider implements the Provider interface for OpenAI-compatible
// chat completion backends.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// OpenAIConfig holds settings for the OpenAI provider.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewOpenAIProvider creates a new OpenAI provider instance
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required for OpenAI provider")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = openAITimeout
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &OpenAIProvider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  client,
	}, nil
}

// Name returns the backend name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

type chatPayload struct {
	Model         string          `json:"model"`
	Messages      []Message       `json:"messages"`
	MaxTokens     int             `json:"max_tokens,omitempty"`
	Temperature   float64         `json:"temperature,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatCompletion struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage chatUsage `json:"usage"`
}

// Chat sends a synchronous chat completion request
func (p *OpenAIProvider) Chat(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	resp, err := p.send(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(ctx, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyResponse(resp.StatusCode, body)
	}

	var completion chatCompletion
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, NewError(KindUnavailable, resp.StatusCode, "malformed completion body", err)
	}
	content := ""
	if len(completion.Choices) > 0 {
		content = completion.Choices[0].Message.Content
	}

	return &Response{
		Content:          content,
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		Latency:          time.Since(start),
	}, nil
}

// ChatStream opens a streaming chat completion. Usage counts arrive in the
// final chunk via stream_options.include_usage.
func (p *OpenAIProvider) ChatStream(ctx context.Context, req Request) (Stream, error) {
	resp, err := p.send(ctx, req, true)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, classifyResponse(resp.StatusCode, body)
	}

	return &openAIStream{
		scanner: bufio.NewScanner(resp.Body),
		closer:  resp.Body,
	}, nil
}

// Close cleans up resources
func (p *OpenAIProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *OpenAIProvider) send(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	payload := chatPayload{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	if stream {
		payload.StreamOptions = &streamOptions{IncludeUsage: true}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewError(KindInvalidRequest, 0, "failed to marshal request", err)
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, NewError(KindInvalidRequest, 0, "failed to create request", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}
	return resp, nil
}

// classifyTransport maps a transport-level failure into the taxonomy.
// Only a failure whose request context is actually done passes through as
// cancellation; the http.Client timeout also surfaces as
// context.DeadlineExceeded, and that is a slow backend, not a cancelled
// caller.
func classifyTransport(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return NewError(KindUnavailable, 0, "request failed", err)
}

func classifyResponse(statusCode int, body []byte) error {
	message := extractAPIError(body)
	return NewError(ClassifyStatus(statusCode), statusCode, message, nil)
}

func extractAPIError(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

// openAIStream reads SSE fragments from a streaming completion.
type openAIStream struct {
	scanner          *bufio.Scanner
	closer           io.Closer
	promptTokens     int
	completionTokens int
	done             bool
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
}

// Recv returns the next content fragment. io.EOF signals a complete stream;
// token usage is available afterwards.
func (s *openAIStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 || !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		data := bytes.TrimPrefix(line, []byte("data: "))

		if bytes.Equal(data, []byte("[DONE]")) {
			s.done = true
			return "", io.EOF
		}

		var chunk streamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			s.promptTokens = chunk.Usage.PromptTokens
			s.completionTokens = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			return chunk.Choices[0].Delta.Content, nil
		}
	}

	if err := s.scanner.Err(); err != nil {
		return "", NewError(KindUnavailable, 0, "stream read failed", err)
	}
	s.done = true
	return "", io.EOF
}

// Usage returns the final token counts reported by the backend.
func (s *openAIStream) Usage() (int, int) {
	return s.promptTokens, s.completionTokens
}

// Close closes the stream connection.
func (s *openAIStream) Close() error {
	return s.closer.Close()
}
