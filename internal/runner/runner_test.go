package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careerpilot/internal/models"
	"careerpilot/internal/plans"
	"careerpilot/internal/prompts"
	"careerpilot/internal/providers"
	"careerpilot/internal/quota"
	"careerpilot/internal/resolver"
	"careerpilot/internal/router"
)

type staticContext struct {
	rc  *resolver.RunContext
	err error
}

func (s staticContext) Resolve(ctx context.Context, userID, jobID int64) (*resolver.RunContext, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.rc != nil {
		return s.rc, nil
	}
	return &resolver.RunContext{}, nil
}

type stubPlans struct {
	plan plans.Plan
}

func (s stubPlans) PlanFor(ctx context.Context, userID int64) plans.Plan {
	return s.plan
}

// scriptedProvider replays a fixed sequence of outcomes.
type scriptedProvider struct {
	mu       sync.Mutex
	outcomes []func() (*providers.Response, error)
	calls    int
	streams  []providers.Stream
	lastReq  providers.Request
}

func (p *scriptedProvider) Name() string { return "scripted" }
func (p *scriptedProvider) Close() error { return nil }

func (p *scriptedProvider) Chat(ctx context.Context, req providers.Request) (*providers.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastReq = req
	if p.calls >= len(p.outcomes) {
		p.calls++
		return nil, providers.NewError(providers.KindUnavailable, 0, "script exhausted", nil)
	}
	outcome := p.outcomes[p.calls]
	p.calls++
	return outcome()
}

func (p *scriptedProvider) ChatStream(ctx context.Context, req providers.Request) (providers.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.streams) == 0 {
		return nil, providers.NewError(providers.KindUnavailable, 0, "no stream scripted", nil)
	}
	stream := p.streams[0]
	p.streams = p.streams[1:]
	p.calls++
	return stream, nil
}

func respondWith(content string, promptTokens, completionTokens int) func() (*providers.Response, error) {
	return func() (*providers.Response, error) {
		return &providers.Response{
			Content:          content,
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			Latency:          time.Millisecond,
		}, nil
	}
}

func failWith(kind providers.ErrorKind, statusCode int) func() (*providers.Response, error) {
	return func() (*providers.Response, error) {
		return nil, providers.NewError(kind, statusCode, "scripted failure", nil)
	}
}

type fakeStream struct {
	ctx       context.Context
	fragments []string
	pos       int
	pt, ct    int
	closed    bool
}

func (s *fakeStream) Recv() (string, error) {
	if s.ctx != nil && s.ctx.Err() != nil {
		return "", s.ctx.Err()
	}
	if s.pos >= len(s.fragments) {
		return "", io.EOF
	}
	fragment := s.fragments[s.pos]
	s.pos++
	return fragment, nil
}

func (s *fakeStream) Usage() (int, int) { return s.pt, s.ct }
func (s *fakeStream) Close() error      { s.closed = true; return nil }

// memRunStore is an in-memory RunStore mirroring the repository contract.
type memRunStore struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*models.Run
}

func newMemRunStore() *memRunStore {
	return &memRunStore{runs: make(map[uuid.UUID]*models.Run)}
}

func (s *memRunStore) Create(ctx context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.CreatedAt = time.Now().UTC()
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

func (s *memRunStore) Finalize(ctx context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.runs[run.ID]
	if !ok {
		return errors.New("run not found")
	}
	if existing.Status != models.RunPending {
		return errors.New("run already finalized")
	}
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

func (s *memRunStore) all() []*models.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Run, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	return out
}

type testHarness struct {
	runner   *Runner
	runs     *memRunStore
	provider *scriptedProvider
	ledger   *quota.Ledger
}

func newHarness(t *testing.T, plan plans.Plan, provider *scriptedProvider) *testHarness {
	t.Helper()

	promptStore, err := prompts.NewStore(prompts.DefaultTemplates())
	require.NoError(t, err)
	modelRouter, err := router.New()
	require.NoError(t, err)

	runs := newMemRunStore()
	ledger := quota.NewLedger(quota.NewMemoryStore(), stubPlans{plan})

	rc := &resolver.RunContext{
		Job:         &models.Job{ID: 1, JDText: "Senior Golang engineer, Postgres required"},
		Resume:      &models.ResumeVersion{ID: 1, Content: "Golang services on Postgres"},
		CoverLetter: &models.Document{ID: 1, Type: "cover_letter", Content: "Dear hiring manager, I build Go services."},
	}

	r := New(Config{
		Resolver:     staticContext{rc: rc},
		Prompts:      promptStore,
		Quota:        ledger,
		Plans:        stubPlans{plan},
		Router:       modelRouter,
		Provider:     provider,
		Runs:         runs,
		RetryBackoff: time.Millisecond,
	})

	return &testHarness{runner: r, runs: runs, provider: provider, ledger: ledger}
}

const goodJSON = `{"title":"Match score: 82/100","summary":"strong","content":"details","bullets":["add Terraform"]}`

func TestExecute_Success(t *testing.T) {
	provider := &scriptedProvider{outcomes: []func() (*providers.Response, error){
		respondWith(goodJSON, 120, 40),
	}}
	h := newHarness(t, plans.PlanFree, provider)

	result, err := h.runner.Execute(context.Background(), Input{UserID: 7, Feature: plans.FeatureJobMatch})
	require.NoError(t, err)

	assert.Equal(t, models.RunSucceeded, result.Status)
	assert.False(t, result.Degraded)
	assert.Equal(t, "gpt-4o-mini", result.Model)
	assert.Equal(t, "v2", result.PromptVersion)
	assert.Equal(t, "Match score: 82/100", result.Payload.Title)
	assert.Equal(t, 120, result.PromptTokens)
	assert.Equal(t, 40, result.CompletionTokens)
	require.NotNil(t, result.CostUSD)
	assert.Greater(t, *result.CostUSD, 0.0)
	assert.True(t, result.Quota.Allowed)
	assert.Equal(t, 1, result.Quota.Used)

	runs := h.runs.all()
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunSucceeded, runs[0].Status)
	assert.Nil(t, runs[0].ErrorKind)
	assert.NotNil(t, runs[0].FinishedAt)
}

func TestExecute_QuotaBoundary(t *testing.T) {
	// free plan allows two interview packs a month
	provider := &scriptedProvider{outcomes: []func() (*providers.Response, error){
		respondWith(goodJSON, 10, 10),
		respondWith(goodJSON, 10, 10),
	}}
	h := newHarness(t, plans.PlanFree, provider)
	ctx := context.Background()
	in := Input{UserID: 7, Feature: plans.FeatureInterviewPack}

	for i := 0; i < 2; i++ {
		_, err := h.runner.Execute(ctx, in)
		require.NoError(t, err)
	}

	_, err := h.runner.Execute(ctx, in)
	require.Error(t, err)
	rerr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindQuotaExceeded, rerr.Kind)
	require.NotNil(t, rerr.Decision)
	assert.Equal(t, 2, rerr.Decision.Used)
	assert.Equal(t, 2, rerr.Decision.Limit)
	assert.Equal(t, 0, rerr.Decision.Remaining)

	// the rejected call reached no provider and recorded no run
	assert.Equal(t, 2, provider.calls)
	assert.Len(t, h.runs.all(), 2)
}

func TestExecute_UnboundedPlan(t *testing.T) {
	outcomes := make([]func() (*providers.Response, error), 50)
	for i := range outcomes {
		outcomes[i] = respondWith(goodJSON, 10, 10)
	}
	h := newHarness(t, plans.PlanElite, &scriptedProvider{outcomes: outcomes})

	for i := 1; i <= 50; i++ {
		result, err := h.runner.Execute(context.Background(), Input{UserID: 7, Feature: plans.FeatureJobMatch})
		require.NoError(t, err)
		assert.True(t, result.Quota.Unbounded)
		assert.Equal(t, i, result.Quota.Used)
		assert.Equal(t, "gpt-4o", result.Model, "elite routes to the premium model")
	}
	assert.Len(t, h.runs.all(), 50)
}

func TestExecute_DegradedOutput(t *testing.T) {
	provider := &scriptedProvider{outcomes: []func() (*providers.Response, error){
		respondWith("The resume matches quite well overall.", 10, 10),
	}}
	h := newHarness(t, plans.PlanFree, provider)

	result, err := h.runner.Execute(context.Background(), Input{UserID: 7, Feature: plans.FeatureJobMatch})
	require.NoError(t, err)

	assert.Equal(t, models.RunSucceeded, result.Status)
	assert.True(t, result.Degraded)
	assert.Equal(t, "The resume matches quite well overall.", result.Payload.Content)

	runs := h.runs.all()
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Degraded)
	assert.Equal(t, models.RunSucceeded, runs[0].Status)
}

func TestExecute_RetriesTransientFailureOnce(t *testing.T) {
	provider := &scriptedProvider{outcomes: []func() (*providers.Response, error){
		failWith(providers.KindUnavailable, 503),
		respondWith(goodJSON, 10, 10),
	}}
	h := newHarness(t, plans.PlanFree, provider)

	result, err := h.runner.Execute(context.Background(), Input{UserID: 7, Feature: plans.FeatureJobMatch})
	require.NoError(t, err)
	assert.Equal(t, models.RunSucceeded, result.Status)
	assert.Equal(t, 2, provider.calls)

	// quota was consumed once, not per attempt
	decision, err := h.ledger.Usage(context.Background(), 7, plans.FeatureJobMatch)
	require.NoError(t, err)
	assert.Equal(t, 1, decision.Used)
}

func TestExecute_SecondFailureIsTerminal(t *testing.T) {
	provider := &scriptedProvider{outcomes: []func() (*providers.Response, error){
		failWith(providers.KindRateLimited, 429),
		failWith(providers.KindRateLimited, 429),
	}}
	h := newHarness(t, plans.PlanFree, provider)

	_, err := h.runner.Execute(context.Background(), Input{UserID: 7, Feature: plans.FeatureJobMatch})
	require.Error(t, err)
	rerr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindRateLimited, rerr.Kind)
	assert.Equal(t, 2, provider.calls, "at most one retry")

	runs := h.runs.all()
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunFailed, runs[0].Status)
	require.NotNil(t, runs[0].ErrorKind)
	assert.Equal(t, "provider_rate_limited", *runs[0].ErrorKind)
}

func TestExecute_OutreachPromptCarriesCoverLetter(t *testing.T) {
	provider := &scriptedProvider{outcomes: []func() (*providers.Response, error){
		respondWith(goodJSON, 10, 10),
	}}
	h := newHarness(t, plans.PlanFree, provider)

	_, err := h.runner.Execute(context.Background(), Input{UserID: 7, Feature: plans.FeatureOutreach})
	require.NoError(t, err)

	require.Len(t, provider.lastReq.Messages, 1)
	assert.Contains(t, provider.lastReq.Messages[0].Content, "Dear hiring manager, I build Go services.")
}

// clientTimeoutErr mimics the classified error the provider surfaces when an
// http.Client timeout fires while the caller's context is still alive.
func clientTimeoutErr() func() (*providers.Response, error) {
	return func() (*providers.Response, error) {
		return nil, providers.NewError(providers.KindUnavailable, 0, "request failed",
			fmt.Errorf("Post \"/chat/completions\": %w", context.DeadlineExceeded))
	}
}

func TestExecute_ProviderTimeoutIsRetried(t *testing.T) {
	provider := &scriptedProvider{outcomes: []func() (*providers.Response, error){
		clientTimeoutErr(),
		respondWith(goodJSON, 10, 10),
	}}
	h := newHarness(t, plans.PlanFree, provider)

	result, err := h.runner.Execute(context.Background(), Input{UserID: 7, Feature: plans.FeatureJobMatch})
	require.NoError(t, err)
	assert.Equal(t, models.RunSucceeded, result.Status)
	assert.Equal(t, 2, provider.calls, "a slow backend gets the one retry")
}

func TestExecute_ProviderTimeoutFinalizesUnavailable(t *testing.T) {
	provider := &scriptedProvider{outcomes: []func() (*providers.Response, error){
		clientTimeoutErr(),
		clientTimeoutErr(),
	}}
	h := newHarness(t, plans.PlanFree, provider)

	_, err := h.runner.Execute(context.Background(), Input{UserID: 7, Feature: plans.FeatureJobMatch})
	require.Error(t, err)
	rerr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindUnavailable, rerr.Kind, "a live caller context is not a cancellation")

	runs := h.runs.all()
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunFailed, runs[0].Status)
	require.NotNil(t, runs[0].ErrorKind)
	assert.Equal(t, "provider_unavailable", *runs[0].ErrorKind)
}

func TestExecute_NoRetryOnInvalidRequest(t *testing.T) {
	provider := &scriptedProvider{outcomes: []func() (*providers.Response, error){
		failWith(providers.KindInvalidRequest, 400),
	}}
	h := newHarness(t, plans.PlanFree, provider)

	_, err := h.runner.Execute(context.Background(), Input{UserID: 7, Feature: plans.FeatureJobMatch})
	require.Error(t, err)
	rerr, _ := AsError(err)
	assert.Equal(t, KindProviderRequest, rerr.Kind)
	assert.Equal(t, 1, provider.calls)

	runs := h.runs.all()
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunFailed, runs[0].Status)
}

func TestExecute_EmptyCompletionFails(t *testing.T) {
	provider := &scriptedProvider{outcomes: []func() (*providers.Response, error){
		respondWith("   ", 10, 0),
	}}
	h := newHarness(t, plans.PlanFree, provider)

	_, err := h.runner.Execute(context.Background(), Input{UserID: 7, Feature: plans.FeatureJobMatch})
	require.Error(t, err)
	rerr, _ := AsError(err)
	assert.Equal(t, KindUnavailable, rerr.Kind)

	runs := h.runs.all()
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunFailed, runs[0].Status)
}

func TestExecute_TemplateErrorBeforeQuota(t *testing.T) {
	h := newHarness(t, plans.PlanFree, &scriptedProvider{})

	// empty context: outreach requires jd_text, none supplied
	h.runner.resolver = staticContext{}

	_, err := h.runner.Execute(context.Background(), Input{UserID: 7, Feature: plans.FeatureOutreach})
	require.Error(t, err)
	rerr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindTemplateError, rerr.Kind)

	// nothing consumed, nothing recorded
	decision, err := h.ledger.Usage(context.Background(), 7, plans.FeatureOutreach)
	require.NoError(t, err)
	assert.Equal(t, 0, decision.Used)
	assert.Empty(t, h.runs.all())
}

func TestExecute_UnknownFeature(t *testing.T) {
	h := newHarness(t, plans.PlanFree, &scriptedProvider{})

	_, err := h.runner.Execute(context.Background(), Input{UserID: 7, Feature: "salary_negotiator"})
	require.Error(t, err)
	rerr, _ := AsError(err)
	assert.Equal(t, KindInvalidRequest, rerr.Kind)
	assert.Empty(t, h.runs.all())
}

func TestExecute_ExtraVariablesOverrideContext(t *testing.T) {
	provider := &scriptedProvider{outcomes: []func() (*providers.Response, error){
		respondWith(goodJSON, 10, 10),
	}}
	h := newHarness(t, plans.PlanFree, provider)
	h.runner.resolver = staticContext{} // no tracked job or resume

	result, err := h.runner.Execute(context.Background(), Input{
		UserID:  7,
		Feature: plans.FeatureJobMatch,
		Extra: map[string]string{
			"jd_text":     "pasted job description",
			"resume_text": "pasted resume",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.RunSucceeded, result.Status)
}

func TestExecuteStream(t *testing.T) {
	t.Run("forwards fragments and parses the whole", func(t *testing.T) {
		stream := &fakeStream{
			fragments: []string{`{"title":"t",`, `"summary":"s",`, `"content":"c"}`},
			pt:        15,
			ct:        9,
		}
		h := newHarness(t, plans.PlanFree, &scriptedProvider{streams: []providers.Stream{stream}})

		var got []string
		result, err := h.runner.ExecuteStream(context.Background(), Input{UserID: 7, Feature: plans.FeatureJobMatch}, func(fragment string) error {
			got = append(got, fragment)
			return nil
		})
		require.NoError(t, err)

		assert.Len(t, got, 3)
		assert.False(t, result.Degraded)
		assert.Equal(t, "t", result.Payload.Title)
		assert.Equal(t, 15, result.PromptTokens)
		assert.Equal(t, 9, result.CompletionTokens)
		assert.True(t, stream.closed)
	})

	t.Run("cancellation mid-stream finalizes the run", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		stream := &fakeStream{ctx: ctx, fragments: []string{"partial ", "answer"}}
		h := newHarness(t, plans.PlanFree, &scriptedProvider{streams: []providers.Stream{stream}})

		_, err := h.runner.ExecuteStream(ctx, Input{UserID: 7, Feature: plans.FeatureJobMatch}, func(fragment string) error {
			cancel()
			return nil
		})
		require.Error(t, err)
		rerr, ok := AsError(err)
		require.True(t, ok)
		assert.Equal(t, KindCancelled, rerr.Kind)

		runs := h.runs.all()
		require.Len(t, runs, 1)
		assert.Equal(t, models.RunFailed, runs[0].Status)
		require.NotNil(t, runs[0].ErrorKind)
		assert.Equal(t, "cancelled", *runs[0].ErrorKind)
		assert.True(t, stream.closed)
	})

	t.Run("nil handler rejected", func(t *testing.T) {
		h := newHarness(t, plans.PlanFree, &scriptedProvider{})
		_, err := h.runner.ExecuteStream(context.Background(), Input{UserID: 7, Feature: plans.FeatureJobMatch}, nil)
		require.Error(t, err)
	})
}

func TestExecute_ArchiverReceivesFinalizedRun(t *testing.T) {
	provider := &scriptedProvider{outcomes: []func() (*providers.Response, error){
		respondWith(goodJSON, 10, 10),
	}}
	h := newHarness(t, plans.PlanFree, provider)

	var archived []*models.Run
	h.runner.archiver = archiveFunc(func(ctx context.Context, run *models.Run) {
		archived = append(archived, run)
	})

	_, err := h.runner.Execute(context.Background(), Input{UserID: 7, Feature: plans.FeatureJobMatch})
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, models.RunSucceeded, archived[0].Status)
}

type archiveFunc func(ctx context.Context, run *models.Run)

func (f archiveFunc) Enqueue(ctx context.Context, run *models.Run) { f(ctx, run) }
