// Package keywords extracts, expands and ranks keyword tokens from short
// article titles.
package keywords

import (
	"regexp"
	"strings"
)

// tokenPattern matches runs of Hangul syllables, Latin letters or digits of
// at least two characters.
var tokenPattern = regexp.MustCompile(`[가-힣A-Za-z0-9]{2,}`)

// Tokenizer splits titles into normalized keyword tokens.
type Tokenizer struct {
	stopwords map[string]struct{}
}

// NewTokenizer creates a Tokenizer that drops the given stopwords.
// Stopwords are compared after lowercasing.
func NewTokenizer(stopwords []string) *Tokenizer {
	set := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return &Tokenizer{stopwords: set}
}

// Tokenize returns the lowercased tokens of title in order of occurrence.
// Duplicates are kept.
func (t *Tokenizer) Tokenize(title string) []string {
	runs := tokenPattern.FindAllString(title, -1)
	tokens := make([]string, 0, len(runs))
	for _, r := range runs {
		w := strings.ToLower(r)
		if _, stop := t.stopwords[w]; stop {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// TopKeyword returns the most frequent token of title, preferring the token
// that appears first on ties. It returns "" when title has no tokens.
func (t *Tokenizer) TopKeyword(title string) string {
	top := NewCounter(t.Tokenize(title)...).TopK(1)
	if len(top) == 0 {
		return ""
	}
	return top[0].Keyword
}
