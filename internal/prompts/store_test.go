package prompts

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careerpilot/internal/plans"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore([]Template{
		{Feature: "job_match", Version: "v1", Text: "Match {jd_text} against {resume_text}.", Required: []string{"jd_text", "resume_text"}},
		{Feature: "job_match", Version: "v2", Text: "Score {jd_text} vs {resume_text}. Profile: {profile}", Required: []string{"jd_text", "resume_text"}},
		{Feature: "outreach", Version: "v1", Text: "Write to the hiring manager about {jd_text}.", Required: []string{"jd_text"}},
	})
	require.NoError(t, err)
	return store
}

func TestRender(t *testing.T) {
	store := testStore(t)

	t.Run("substitutes variables", func(t *testing.T) {
		prompt, version, err := store.Render("job_match", "v1", map[string]string{
			"jd_text":     "Go engineer",
			"resume_text": "ten years of Go",
		})
		require.NoError(t, err)
		assert.Equal(t, "v1", version)
		assert.Equal(t, "Match Go engineer against ten years of Go.", prompt)
	})

	t.Run("empty version selects latest", func(t *testing.T) {
		prompt, version, err := store.Render("job_match", "", map[string]string{
			"jd_text":     "jd",
			"resume_text": "resume",
		})
		require.NoError(t, err)
		assert.Equal(t, "v2", version)
		assert.Contains(t, prompt, "Score jd vs resume.")
	})

	t.Run("optional variable renders empty", func(t *testing.T) {
		prompt, _, err := store.Render("job_match", "v2", map[string]string{
			"jd_text":     "jd",
			"resume_text": "resume",
		})
		require.NoError(t, err)
		assert.Contains(t, prompt, "Profile: ")
		assert.NotContains(t, prompt, "{profile}")
	})

	t.Run("missing required variable", func(t *testing.T) {
		_, _, err := store.Render("job_match", "v1", map[string]string{
			"jd_text": "jd",
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTemplateVariableMissing))
		assert.Contains(t, err.Error(), "resume_text")
	})

	t.Run("whitespace-only required variable", func(t *testing.T) {
		_, _, err := store.Render("outreach", "v1", map[string]string{
			"jd_text": "   ",
		})
		assert.True(t, errors.Is(err, ErrTemplateVariableMissing))
	})

	t.Run("unknown feature", func(t *testing.T) {
		_, _, err := store.Render("salary_negotiator", "", nil)
		assert.True(t, errors.Is(err, ErrTemplateNotFound))
	})

	t.Run("unknown version", func(t *testing.T) {
		_, _, err := store.Render("outreach", "v9", map[string]string{"jd_text": "jd"})
		assert.True(t, errors.Is(err, ErrTemplateNotFound))
	})
}

func TestLatest_VersionOrder(t *testing.T) {
	store, err := NewStore([]Template{
		{Feature: "f", Version: "v1", Text: "a"},
		{Feature: "f", Version: "v9", Text: "b"},
		{Feature: "f", Version: "v10", Text: "c"},
	})
	require.NoError(t, err)

	latest, err := store.Latest("f")
	require.NoError(t, err)
	assert.Equal(t, "v10", latest)
}

func TestVariables(t *testing.T) {
	store := testStore(t)

	names, err := store.Variables("job_match", "v2")
	require.NoError(t, err)
	assert.Equal(t, []string{"jd_text", "resume_text", "profile"}, names)
}

func TestNewStore_RejectsDuplicates(t *testing.T) {
	_, err := NewStore([]Template{
		{Feature: "f", Version: "v1", Text: "a"},
		{Feature: "f", Version: "v1", Text: "b"},
	})
	assert.Error(t, err)
}

func TestDefaultTemplates(t *testing.T) {
	store, err := NewStore(DefaultTemplates())
	require.NoError(t, err)

	// Every supported feature must render with the variables the runner
	// supplies.
	vars := map[string]string{
		"profile":         "Jane Doe | backend engineer",
		"jd_text":         "Senior Go engineer",
		"resume_text":     "Go, Postgres, Redis",
		"keyword_overlap": "go, postgres (40% of resume keywords)",
	}
	for _, feature := range plans.Features {
		prompt, version, err := store.Render(feature, "", vars)
		require.NoError(t, err, feature)
		assert.NotEmpty(t, version, feature)
		assert.Empty(t, placeholderPattern.FindString(prompt), "unsubstituted placeholder in %s", feature)
		assert.True(t, strings.Contains(prompt, "JSON"), "missing output contract in %s", feature)
	}
}
