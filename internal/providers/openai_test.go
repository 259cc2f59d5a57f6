package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewOpenAIProvider(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { provider.Close() })
	return provider
}

func chatRequest() Request {
	return Request{
		Model:       "gpt-4o-mini",
		Messages:    []Message{{Role: "user", Content: "hello"}},
		MaxTokens:   100,
		Temperature: 0.4,
	}
}

func TestOpenAIProvider_Chat(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var payload chatPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "gpt-4o-mini", payload.Model)
		assert.False(t, payload.Stream)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"choices": [{"message": {"content": "{\"title\":\"ok\"}"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 7}
		}`)
	})

	resp, err := provider.Chat(context.Background(), chatRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"title":"ok"}`, resp.Content)
	assert.Equal(t, 12, resp.PromptTokens)
	assert.Equal(t, 7, resp.CompletionTokens)
	assert.Greater(t, resp.Latency, time.Duration(0))
}

func TestOpenAIProvider_ErrorClassification(t *testing.T) {
	testCases := []struct {
		name       string
		statusCode int
		wantKind   ErrorKind
	}{
		{"429 is rate limited", http.StatusTooManyRequests, KindRateLimited},
		{"500 is unavailable", http.StatusInternalServerError, KindUnavailable},
		{"503 is unavailable", http.StatusServiceUnavailable, KindUnavailable},
		{"400 is invalid request", http.StatusBadRequest, KindInvalidRequest},
		{"404 is invalid request", http.StatusNotFound, KindInvalidRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				fmt.Fprint(w, `{"error": {"message": "nope"}}`)
			})

			_, err := provider.Chat(context.Background(), chatRequest())
			require.Error(t, err)

			perr, ok := AsError(err)
			require.True(t, ok, "error must carry a classified kind")
			assert.Equal(t, tc.wantKind, perr.Kind)
			assert.Equal(t, tc.statusCode, perr.StatusCode)
			assert.Equal(t, "nope", perr.Message)
		})
	}
}

func TestOpenAIProvider_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	provider, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = provider.Chat(context.Background(), chatRequest())
	require.Error(t, err)

	perr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindUnavailable, perr.Kind)
	assert.True(t, perr.Retryable())
}

func TestOpenAIProvider_CancellationPassesThrough(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := provider.Chat(ctx, chatRequest())
	require.Error(t, err)

	if _, ok := AsError(err); ok {
		t.Error("cancellation must not be reclassified as a provider failure")
	}
}

func TestOpenAIProvider_SlowBackendIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	provider, err := NewOpenAIProvider(OpenAIConfig{
		APIKey:  "k",
		BaseURL: server.URL,
		Timeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	// The caller's context stays alive; only the client timeout fires. That
	// is a slow backend, not a cancellation, and must stay retryable.
	_, err = provider.Chat(context.Background(), chatRequest())
	require.Error(t, err)

	perr, ok := AsError(err)
	require.True(t, ok, "a client timeout must carry a classified kind")
	assert.Equal(t, KindUnavailable, perr.Kind)
	assert.True(t, perr.Retryable())
}

func TestOpenAIProvider_ChatStream(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var payload chatPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.True(t, payload.Stream)
		require.NotNil(t, payload.StreamOptions)
		assert.True(t, payload.StreamOptions.IncludeUsage)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive comment\n\n")
		fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":9,\"completion_tokens\":2}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	stream, err := provider.ChatStream(context.Background(), chatRequest())
	require.NoError(t, err)
	defer stream.Close()

	var content string
	for {
		fragment, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content += fragment
	}

	assert.Equal(t, "Hello", content)
	promptTokens, completionTokens := stream.Usage()
	assert.Equal(t, 9, promptTokens)
	assert.Equal(t, 2, completionTokens)

	// Recv after EOF stays EOF
	_, err = stream.Recv()
	assert.Equal(t, io.EOF, err)
}

func TestOpenAIProvider_StreamErrorStatus(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "slow down"}}`)
	})

	_, err := provider.ChatStream(context.Background(), chatRequest())
	require.Error(t, err)

	perr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindRateLimited, perr.Kind)
}

func TestNewOpenAIProvider_RequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{})
	assert.Error(t, err)
}
