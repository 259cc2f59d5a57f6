package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"careerpilot/internal/logging"
	"careerpilot/internal/models"
	"careerpilot/internal/storage"
)

// lastResumeScope keys the memory entry remembering which résumé version a
// user last ran a feature against.
const lastResumeScope = "last_resume_version"

// coverLetterType is the document type carrying a user's past cover letters.
const coverLetterType = "cover_letter"

// ContextSource provides the read-only lookups the resolver draws from.
// *storage.ContextRepository satisfies it.
type ContextSource interface {
	Profile(ctx context.Context, userID int64) (*models.Profile, error)
	Job(ctx context.Context, jobID int64) (*models.Job, error)
	Documents(ctx context.Context, userID int64, filter models.DocumentFilter) ([]models.Document, error)
	ResumeVersions(ctx context.Context, userID int64, limit int) ([]models.ResumeVersion, error)
}

// MemoryCache stores small derived-context blobs. *storage.MemoryStore
// satisfies it; a nil cache disables the memory behavior.
type MemoryCache interface {
	Get(ctx context.Context, userID int64, scopeKey string) (*models.MemoryEntry, error)
	Put(ctx context.Context, userID int64, scopeKey string, value json.RawMessage) error
}

// RunContext is the assembled material a feature prompt renders from.
type RunContext struct {
	Profile *models.Profile
	Job     *models.Job
	Resume  *models.ResumeVersion
	// CoverLetter is the user's most recent cover letter document, giving
	// outreach drafts the user's own voice to imitate.
	CoverLetter  *models.Document
	Keywords     []string
	KeywordRatio float64
}

// Resolver assembles prompt context from storage. Missing rows degrade to
// empty context rather than failing the run; only infrastructure errors
// propagate.
type Resolver struct {
	source ContextSource
	memory MemoryCache
	logger *logging.Logger
}

// New creates a resolver over the given source. memory may be nil.
func New(source ContextSource, memory MemoryCache) *Resolver {
	return &Resolver{
		source: source,
		memory: memory,
		logger: logging.NewLogger("resolver"),
	}
}

// Resolve gathers the context for one run: the user's profile, the target
// job (when jobID > 0) and the résumé version to match against. The last
// used résumé version is remembered per user and preferred on the next run;
// the memory is a cache, stale reads are tolerated.
func (r *Resolver) Resolve(ctx context.Context, userID, jobID int64) (*RunContext, error) {
	rc := &RunContext{}

	profile, err := r.source.Profile(ctx, userID)
	if err != nil && !errors.Is(err, storage.ErrProfileNotFound) {
		return nil, err
	}
	rc.Profile = profile

	if jobID > 0 {
		job, err := r.source.Job(ctx, jobID)
		if err != nil && !errors.Is(err, storage.ErrJobNotFound) {
			return nil, err
		}
		rc.Job = job
	}

	resume, err := r.resolveResume(ctx, userID)
	if err != nil {
		return nil, err
	}
	rc.Resume = resume

	letters, err := r.source.Documents(ctx, userID, models.DocumentFilter{Type: coverLetterType, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(letters) > 0 {
		rc.CoverLetter = &letters[0]
	}

	if rc.Job != nil && rc.Resume != nil {
		rc.Keywords, rc.KeywordRatio = KeywordOverlap(rc.Job.JDText, rc.Resume.Content)
	}

	return rc, nil
}

// resolveResume prefers the remembered version when it is still present,
// falling back to the newest one.
func (r *Resolver) resolveResume(ctx context.Context, userID int64) (*models.ResumeVersion, error) {
	versions, err := r.source.ResumeVersions(ctx, userID, 5)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, nil
	}

	chosen := &versions[0]
	if lastID, ok := r.rememberedResume(ctx, userID); ok {
		for i := range versions {
			if versions[i].ID == lastID {
				chosen = &versions[i]
				break
			}
		}
	}

	r.rememberResume(ctx, userID, chosen.ID)
	return chosen, nil
}

func (r *Resolver) rememberedResume(ctx context.Context, userID int64) (int64, bool) {
	if r.memory == nil {
		return 0, false
	}
	entry, err := r.memory.Get(ctx, userID, lastResumeScope)
	if err != nil {
		r.logger.Warn("Failed to read resume memory", "user_id", userID, "error", err)
		return 0, false
	}
	if entry == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(string(entry.Value), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (r *Resolver) rememberResume(ctx context.Context, userID, versionID int64) {
	if r.memory == nil {
		return
	}
	value := json.RawMessage(strconv.FormatInt(versionID, 10))
	if err := r.memory.Put(ctx, userID, lastResumeScope, value); err != nil {
		r.logger.Warn("Failed to write resume memory", "user_id", userID, "error", err)
	}
}
