package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"careerpilot/internal/logging"
	"careerpilot/internal/models"
	"careerpilot/internal/plans"
	"careerpilot/internal/pricing"
	"careerpilot/internal/prompts"
	"careerpilot/internal/providers"
	"careerpilot/internal/quota"
	"careerpilot/internal/resolver"
	"careerpilot/internal/router"
)

// ContextProvider assembles the prompt context for a run.
// *resolver.Resolver satisfies it.
type ContextProvider interface {
	Resolve(ctx context.Context, userID, jobID int64) (*resolver.RunContext, error)
}

// QuotaGate is the admission check in front of every provider call.
// *quota.Ledger satisfies it.
type QuotaGate interface {
	CheckAndConsume(ctx context.Context, userID int64, feature string, amount int) (quota.Decision, error)
}

// RunStore persists run records. *storage.RunRepository satisfies it.
type RunStore interface {
	Create(ctx context.Context, run *models.Run) error
	Finalize(ctx context.Context, run *models.Run) error
}

// Archiver receives finalized runs for best-effort archiving. May be nil.
type Archiver interface {
	Enqueue(ctx context.Context, run *models.Run)
}

// Config wires a Runner.
type Config struct {
	Resolver ContextProvider
	Prompts  *prompts.Store
	Quota    QuotaGate
	Plans    quota.PlanResolver
	Router   *router.Router
	Provider providers.Provider
	Runs     RunStore
	Archiver Archiver

	MaxTokens    int
	Temperature  float64
	RetryBackoff time.Duration
}

// Input is one feature invocation.
type Input struct {
	UserID  int64
	Feature string
	JobID   int64
	// PromptVersion pins a template revision; empty selects the latest.
	PromptVersion string
	// Extra overrides or supplies template variables directly, e.g. a pasted
	// job description for a job the user has not tracked yet.
	Extra map[string]string
}

// Runner drives one feature invocation through its full lifecycle: context
// assembly, prompt render, quota admission, model routing, the provider
// call, output parsing and the run record. Admission happens exactly once
// per invocation and every call that passes it leaves a finalized run row,
// success or not.
type Runner struct {
	resolver     ContextProvider
	prompts      *prompts.Store
	quota        QuotaGate
	planFn       quota.PlanResolver
	router       *router.Router
	provider     providers.Provider
	runs         RunStore
	archiver     Archiver
	logger       *logging.Logger
	maxTokens    int
	temperature  float64
	retryBackoff time.Duration
}

// New creates a runner.
func New(cfg Config) *Runner {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.4
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &Runner{
		resolver:     cfg.Resolver,
		prompts:      cfg.Prompts,
		quota:        cfg.Quota,
		planFn:       cfg.Plans,
		router:       cfg.Router,
		provider:     cfg.Provider,
		runs:         cfg.Runs,
		archiver:     cfg.Archiver,
		logger:       logging.NewLogger("runner"),
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		retryBackoff: cfg.RetryBackoff,
	}
}

// Execute runs one feature invocation synchronously.
func (r *Runner) Execute(ctx context.Context, in Input) (*Result, error) {
	return r.execute(ctx, in, nil)
}

// ExecuteStream runs one feature invocation, forwarding completion
// fragments to onFragment as they arrive. The parsed payload in the Result
// covers the full accumulated text. A non-nil error from onFragment aborts
// the stream; the run is still finalized.
func (r *Runner) ExecuteStream(ctx context.Context, in Input, onFragment func(string) error) (*Result, error) {
	if onFragment == nil {
		return nil, newError(KindInvalidRequest, "stream handler required", nil)
	}
	return r.execute(ctx, in, onFragment)
}

func (r *Runner) execute(ctx context.Context, in Input, onFragment func(string) error) (*Result, error) {
	start := time.Now()

	if !plans.IsSupported(in.Feature) {
		return nil, newError(KindInvalidRequest, fmt.Sprintf("unknown feature %q", in.Feature), nil)
	}

	plan := r.planFn.PlanFor(ctx, in.UserID)

	rc, err := r.resolver.Resolve(ctx, in.UserID, in.JobID)
	if err != nil {
		return nil, newError(KindInternal, "context assembly failed", err)
	}

	prompt, version, err := r.prompts.Render(in.Feature, in.PromptVersion, r.buildVars(rc, in.Extra))
	if err != nil {
		if errors.Is(err, prompts.ErrTemplateVariableMissing) || errors.Is(err, prompts.ErrTemplateNotFound) {
			return nil, newError(KindTemplateError, err.Error(), err)
		}
		return nil, newError(KindInternal, "prompt render failed", err)
	}

	// Admission: atomic, exactly once, before any run row or provider call.
	// A rejection leaves no run record; the ledger row is the trace.
	decision, err := r.quota.CheckAndConsume(ctx, in.UserID, in.Feature, 1)
	if err != nil {
		return nil, newError(KindInternal, "quota check failed", err)
	}
	if !decision.Allowed {
		ferr := newError(KindQuotaExceeded, fmt.Sprintf("monthly limit reached for %s (%d/%d)", in.Feature, decision.Used, decision.Limit), nil)
		ferr.Decision = &decision
		return nil, ferr
	}

	model := r.router.Route(in.Feature, plan)

	run := &models.Run{
		UserID:        in.UserID,
		Feature:       in.Feature,
		Model:         model,
		PromptVersion: version,
		Status:        models.RunPending,
	}
	if err := r.runs.Create(ctx, run); err != nil {
		return nil, newError(KindInternal, "run record insert failed", err)
	}

	req := providers.Request{
		Model:       model,
		Messages:    []providers.Message{{Role: "user", Content: prompt}},
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	}

	var resp *providers.Response
	if onFragment == nil {
		resp, err = r.chatWithRetry(ctx, req)
	} else {
		resp, err = r.streamChat(ctx, req, onFragment)
	}
	if err != nil {
		kind := classifyCallError(ctx, err)
		r.finalizeFailed(ctx, run, kind, time.Since(start))
		ferr := newError(kind, "provider call failed", err)
		ferr.Decision = &decision
		return nil, ferr
	}

	if strings.TrimSpace(resp.Content) == "" {
		r.finalizeFailed(ctx, run, KindUnavailable, time.Since(start))
		return nil, newError(KindUnavailable, "provider returned empty completion", nil)
	}

	payload, degraded := ParseOutput(resp.Content)
	if degraded {
		r.logger.Warn("Completion did not parse as JSON, returning degraded payload",
			"run_id", run.ID, "feature", in.Feature, "model", model)
	}

	run.PromptTokens = resp.PromptTokens
	run.CompletionTokens = resp.CompletionTokens
	if cost, ok := pricing.Estimate(model, resp.PromptTokens, resp.CompletionTokens); ok {
		run.CostUSD = &cost
	} else {
		r.logger.Warn("No pricing entry for model, recording null cost", "model", model, "run_id", run.ID)
	}
	run.Degraded = degraded
	run.Status = models.RunSucceeded
	run.DurationMS = time.Since(start).Milliseconds()
	r.finalize(ctx, run)

	return &Result{
		RunID:            run.ID,
		Status:           run.Status,
		Model:            model,
		PromptVersion:    version,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		CostUSD:          run.CostUSD,
		Degraded:         degraded,
		Payload:          payload,
		Duration:         time.Since(start),
		Quota:            decision,
	}, nil
}

// chatWithRetry retries transient provider failures at most once.
func (r *Runner) chatWithRetry(ctx context.Context, req providers.Request) (*providers.Response, error) {
	resp, err := r.provider.Chat(ctx, req)
	if err == nil {
		return resp, nil
	}
	perr, ok := providers.AsError(err)
	if !ok || !perr.Retryable() {
		return nil, err
	}

	r.logger.Debug("Retrying provider call", "model", req.Model, "error", err)
	select {
	case <-time.After(r.retryBackoff):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return r.provider.Chat(ctx, req)
}

// streamChat opens a stream, forwarding fragments and accumulating the full
// text. Transient failures on open are retried once; mid-stream failures
// are not, the partial text cannot be resumed.
func (r *Runner) streamChat(ctx context.Context, req providers.Request, onFragment func(string) error) (*providers.Response, error) {
	start := time.Now()

	stream, err := r.provider.ChatStream(ctx, req)
	if err != nil {
		if perr, ok := providers.AsError(err); ok && perr.Retryable() {
			select {
			case <-time.After(r.retryBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			stream, err = r.provider.ChatStream(ctx, req)
		}
		if err != nil {
			return nil, err
		}
	}
	defer stream.Close()

	var content strings.Builder
	for {
		fragment, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if fragment == "" {
			continue
		}
		content.WriteString(fragment)
		if err := onFragment(fragment); err != nil {
			return nil, fmt.Errorf("stream consumer aborted: %w", err)
		}
	}

	promptTokens, completionTokens := stream.Usage()
	return &providers.Response{
		Content:          content.String(),
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		Latency:          time.Since(start),
	}, nil
}

// buildVars flattens the resolved context into template variables, with
// caller-supplied values taking precedence.
func (r *Runner) buildVars(rc *resolver.RunContext, extra map[string]string) map[string]string {
	vars := map[string]string{
		"profile":         formatProfile(rc.Profile),
		"jd_text":         "",
		"resume_text":     "",
		"cover_letter":    "",
		"keyword_overlap": "",
	}
	if rc.Job != nil {
		vars["jd_text"] = rc.Job.JDText
	}
	if rc.Resume != nil {
		vars["resume_text"] = rc.Resume.Content
	}
	if rc.CoverLetter != nil {
		vars["cover_letter"] = rc.CoverLetter.Content
	}
	if len(rc.Keywords) > 0 {
		vars["keyword_overlap"] = fmt.Sprintf("%s (%.0f%% of resume keywords)",
			strings.Join(rc.Keywords, ", "), rc.KeywordRatio*100)
	}
	for name, value := range extra {
		if value != "" {
			vars[name] = value
		}
	}
	return vars
}

func formatProfile(profile *models.Profile) string {
	if profile == nil {
		return ""
	}
	parts := []string{profile.FullName}
	if profile.Headline != nil && *profile.Headline != "" {
		parts = append(parts, *profile.Headline)
	}
	if profile.VisaStatus != nil && *profile.VisaStatus != "" {
		parts = append(parts, "visa status: "+*profile.VisaStatus)
	}
	return strings.Join(parts, " | ")
}

// classifyCallError folds a provider failure into the run taxonomy. Only a
// done invocation context counts as cancellation; a deadline error with a
// live context is the provider timing out and stays retryable/unavailable.
func classifyCallError(ctx context.Context, err error) Kind {
	if ctx.Err() != nil {
		return KindCancelled
	}
	if perr, ok := providers.AsError(err); ok {
		switch perr.Kind {
		case providers.KindRateLimited:
			return KindRateLimited
		case providers.KindInvalidRequest:
			return KindProviderRequest
		default:
			return KindUnavailable
		}
	}
	return KindUnavailable
}

func (r *Runner) finalizeFailed(ctx context.Context, run *models.Run, kind Kind, elapsed time.Duration) {
	errorKind := string(kind)
	run.Status = models.RunFailed
	run.ErrorKind = &errorKind
	run.DurationMS = elapsed.Milliseconds()
	r.finalize(ctx, run)
}

// finalize writes the terminal run state. It must land even when the
// request context is already cancelled, so the write is detached from it.
func (r *Runner) finalize(ctx context.Context, run *models.Run) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := r.runs.Finalize(writeCtx, run); err != nil {
		r.logger.Error("Failed to finalize run", "run_id", run.ID, "error", err)
		return
	}
	if r.archiver != nil {
		r.archiver.Enqueue(writeCtx, run)
	}
}
