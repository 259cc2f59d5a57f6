package prompts

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrTemplateNotFound is returned when no template exists for a
// (feature, version) pair.
var ErrTemplateNotFound = errors.New("prompt template not found")

// ErrTemplateVariableMissing is returned when a required placeholder has no
// supplied value. This is a configuration error, never a silently empty
// substitution.
var ErrTemplateVariableMissing = errors.New("template variable missing")

// Template is one versioned prompt revision for a feature.
type Template struct {
	Feature string
	Version string
	Text    string
	// Required lists placeholders that must be non-empty at render time.
	// Placeholders not listed here render as empty strings when absent.
	Required []string
}

var placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// Store holds immutable prompt templates keyed by (feature, version).
// It is loaded once at startup and injected; rendering needs no locking.
type Store struct {
	templates map[string]map[string]Template // feature -> version -> template
}

// NewStore builds a store from a template list.
func NewStore(templates []Template) (*Store, error) {
	byFeature := make(map[string]map[string]Template)
	for _, tmpl := range templates {
		if tmpl.Feature == "" || tmpl.Version == "" {
			return nil, fmt.Errorf("prompts: template needs feature and version, got %q/%q", tmpl.Feature, tmpl.Version)
		}
		versions, ok := byFeature[tmpl.Feature]
		if !ok {
			versions = make(map[string]Template)
			byFeature[tmpl.Feature] = versions
		}
		if _, dup := versions[tmpl.Version]; dup {
			return nil, fmt.Errorf("prompts: duplicate template %s/%s", tmpl.Feature, tmpl.Version)
		}
		versions[tmpl.Version] = tmpl
	}
	return &Store{templates: byFeature}, nil
}

// Latest returns the highest version registered for a feature. Versions are
// "v1", "v2", ... so lexicographic order with length tiebreak is enough.
func (s *Store) Latest(feature string) (string, error) {
	versions, ok := s.templates[feature]
	if !ok || len(versions) == 0 {
		return "", fmt.Errorf("%w: feature %q", ErrTemplateNotFound, feature)
	}
	keys := make([]string, 0, len(versions))
	for v := range versions {
		keys = append(keys, v)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) < len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys[len(keys)-1], nil
}

// Render fills the (feature, version) template with the supplied variables.
// version "" selects the latest revision. The version actually used is
// returned so callers can record it for reproducibility.
func (s *Store) Render(feature, version string, vars map[string]string) (prompt, usedVersion string, err error) {
	if version == "" {
		version, err = s.Latest(feature)
		if err != nil {
			return "", "", err
		}
	}

	versions, ok := s.templates[feature]
	if !ok {
		return "", "", fmt.Errorf("%w: feature %q", ErrTemplateNotFound, feature)
	}
	tmpl, ok := versions[version]
	if !ok {
		return "", "", fmt.Errorf("%w: %s/%s", ErrTemplateNotFound, feature, version)
	}

	for _, name := range tmpl.Required {
		if strings.TrimSpace(vars[name]) == "" {
			return "", "", fmt.Errorf("%w: %q in %s/%s", ErrTemplateVariableMissing, name, feature, version)
		}
	}

	rendered := placeholderPattern.ReplaceAllStringFunc(tmpl.Text, func(match string) string {
		name := match[1 : len(match)-1]
		return vars[name]
	})
	return rendered, version, nil
}

// Variables returns the placeholder names a template references, in order
// of first appearance. The runner uses this to assemble just the context
// the template needs.
func (s *Store) Variables(feature, version string) ([]string, error) {
	if version == "" {
		var err error
		version, err = s.Latest(feature)
		if err != nil {
			return nil, err
		}
	}
	versions, ok := s.templates[feature]
	if !ok {
		return nil, fmt.Errorf("%w: feature %q", ErrTemplateNotFound, feature)
	}
	tmpl, ok := versions[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrTemplateNotFound, feature, version)
	}

	seen := make(map[string]bool)
	var names []string
	for _, match := range placeholderPattern.FindAllStringSubmatch(tmpl.Text, -1) {
		if !seen[match[1]] {
			seen[match[1]] = true
			names = append(names, match[1])
		}
	}
	return names, nil
}
