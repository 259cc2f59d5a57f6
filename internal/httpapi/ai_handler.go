package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"careerpilot/internal/runner"
)

// aiRequest is the request body for a feature invocation. All fields are
// optional: jd_text/resume_text override whatever the context resolver
// finds, which covers jobs the user has not tracked yet.
type aiRequest struct {
	JobID         int64  `json:"job_id,omitempty"`
	JDText        string `json:"jd_text,omitempty"`
	ResumeText    string `json:"resume_text,omitempty"`
	PromptVersion string `json:"prompt_version,omitempty"`
}

type aiUsage struct {
	Used      int  `json:"used"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
	Unbounded bool `json:"unbounded"`
}

type aiResponse struct {
	RunID            string          `json:"run_id"`
	Status           string          `json:"status"`
	Model            string          `json:"model"`
	PromptVersion    string          `json:"prompt_version"`
	Degraded         bool            `json:"degraded"`
	Payload          *runner.Payload `json:"payload"`
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
	CostUSD          *float64        `json:"cost_usd,omitempty"`
	DurationMS       int64           `json:"duration_ms"`
	Usage            aiUsage         `json:"usage"`
}

// handleAI serves POST /v1/ai/{feature}. With ?stream=1 the completion is
// forwarded as SSE fragments, followed by a final "result" event carrying
// the parsed payload and run metadata.
func (d *Dependencies) handleAI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID, err := callerID(r)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "missing or invalid X-User-ID header")
		return
	}

	feature := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/ai/"), "/")
	if feature == "" || strings.Contains(feature, "/") {
		writeJSONError(w, http.StatusNotFound, "unknown feature path")
		return
	}

	var body aiRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	in := runner.Input{
		UserID:        userID,
		Feature:       feature,
		JobID:         body.JobID,
		PromptVersion: body.PromptVersion,
		Extra:         map[string]string{},
	}
	if body.JDText != "" {
		in.Extra["jd_text"] = body.JDText
	}
	if body.ResumeText != "" {
		in.Extra["resume_text"] = body.ResumeText
	}

	if r.URL.Query().Get("stream") == "1" {
		d.handleAIStream(w, r, in)
		return
	}

	result, err := d.Runner.Execute(r.Context(), in)
	if err != nil {
		writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAIResponse(result))
}

// handleAIStream runs the invocation in streaming mode. SSE headers are
// written lazily on the first fragment so pre-call failures (quota,
// template) still go out as plain JSON errors.
func (d *Dependencies) handleAIStream(w http.ResponseWriter, r *http.Request, in runner.Input) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	started := false
	onFragment := func(fragment string) error {
		if !started {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		data, err := json.Marshal(map[string]string{"delta": fragment})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	result, err := d.Runner.ExecuteStream(r.Context(), in, onFragment)
	if err != nil {
		if !started {
			writeRunError(w, err)
			return
		}
		// Headers are out; a terminal error event plus the sentinel lets
		// clients distinguish a failed stream from a truncated one.
		kind := string(runner.KindInternal)
		if rerr, ok := runner.AsError(err); ok {
			kind = string(rerr.Kind)
		}
		if data, merr := json.Marshal(map[string]string{"kind": kind}); merr == nil {
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
		return
	}

	final, merr := json.Marshal(toAIResponse(result))
	if merr == nil {
		fmt.Fprintf(w, "event: result\ndata: %s\n\n", final)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func toAIResponse(result *runner.Result) aiResponse {
	return aiResponse{
		RunID:            result.RunID.String(),
		Status:           string(result.Status),
		Model:            result.Model,
		PromptVersion:    result.PromptVersion,
		Degraded:         result.Degraded,
		Payload:          result.Payload,
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
		CostUSD:          result.CostUSD,
		DurationMS:       result.Duration.Milliseconds(),
		Usage: aiUsage{
			Used:      result.Quota.Used,
			Limit:     result.Quota.Limit,
			Remaining: result.Quota.Remaining,
			Unbounded: result.Quota.Unbounded,
		},
	}
}

// writeRunError maps the run failure taxonomy onto HTTP statuses. Internal
// detail (template structure, provider error bodies) never leaks.
func writeRunError(w http.ResponseWriter, err error) {
	rerr, ok := runner.AsError(err)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	switch rerr.Kind {
	case runner.KindInvalidRequest:
		writeJSONError(w, http.StatusBadRequest, rerr.Message)
	case runner.KindQuotaExceeded:
		body := map[string]any{
			"error": map[string]any{
				"message": "monthly quota exceeded",
				"code":    http.StatusTooManyRequests,
			},
		}
		if rerr.Decision != nil {
			body["usage"] = aiUsage{
				Used:      rerr.Decision.Used,
				Limit:     rerr.Decision.Limit,
				Remaining: rerr.Decision.Remaining,
				Unbounded: rerr.Decision.Unbounded,
			}
		}
		writeJSON(w, http.StatusTooManyRequests, body)
	case runner.KindUnavailable, runner.KindRateLimited:
		writeJSONError(w, http.StatusServiceUnavailable, "model provider unavailable")
	case runner.KindProviderRequest:
		writeJSONError(w, http.StatusBadGateway, "model provider rejected the request")
	case runner.KindCancelled:
		// Client is gone; nothing useful to write.
	default:
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

// callerID reads the authenticated user from the X-User-ID header set by
// the auth layer in front of this service.
func callerID(r *http.Request) (int64, error) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		return 0, errors.New("missing X-User-ID header")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid X-User-ID header")
	}
	return id, nil
}
