package keywords

import (
	"strings"

	"github.com/samber/lo"

	"github.com/TobiSchelling/trendcrawler/internal/config"
)

// Expander widens a search term with its synonym groups.
type Expander struct {
	groups []config.SynonymGroup
}

// NewExpander creates an Expander over a fixed set of synonym groups.
// Keys and terms are lowercased once here.
func NewExpander(groups []config.SynonymGroup) *Expander {
	norm := make([]config.SynonymGroup, 0, len(groups))
	for _, g := range groups {
		key := strings.ToLower(strings.TrimSpace(g.Key))
		terms := lo.FilterMap(g.Terms, func(s string, _ int) (string, bool) {
			s = strings.ToLower(strings.TrimSpace(s))
			return s, s != ""
		})
		if key == "" && len(terms) == 0 {
			continue
		}
		norm = append(norm, config.SynonymGroup{Key: key, Terms: terms})
	}
	return &Expander{groups: norm}
}

// Expand returns the lowercased term followed by the members of every group
// whose key or members contain it. The result holds no duplicates and is
// empty for an empty term.
func (e *Expander) Expand(term string) []string {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil
	}

	terms := []string{term}
	for _, g := range e.groups {
		if g.Key == term || lo.Contains(g.Terms, term) {
			terms = append(terms, g.Terms...)
		}
	}
	return lo.Uniq(terms)
}
