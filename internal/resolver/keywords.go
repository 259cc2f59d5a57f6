package resolver

import (
	"sort"
	"strings"
	"unicode"
)

// KeywordOverlap compares two texts by lower-cased token sets and returns
// the tokens common to both plus the share of the first text's distinct
// tokens found in the second. Tokens shorter than three runes are ignored
// so stopwords and initials do not inflate the score.
func KeywordOverlap(a, b string) ([]string, float64) {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 {
		return nil, 0
	}

	var common []string
	for token := range setA {
		if _, ok := setB[token]; ok {
			common = append(common, token)
		}
	}
	sort.Strings(common)

	return common, float64(len(common)) / float64(len(setA))
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#'
	})
	for _, token := range tokens {
		if len([]rune(token)) < 3 {
			continue
		}
		set[token] = struct{}{}
	}
	return set
}
