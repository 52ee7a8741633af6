package keywords

import (
	"reflect"
	"testing"

	"github.com/TobiSchelling/trendcrawler/internal/config"
)

func defaultExpander() *Expander {
	return NewExpander(config.Default().Text.Synonyms)
}

func contains(terms []string, want string) bool {
	for _, t := range terms {
		if t == want {
			return true
		}
	}
	return false
}

func TestExpandCanonicalKey(t *testing.T) {
	terms := defaultExpander().Expand("ai")
	for _, want := range []string{"ai", "인공지능", "딥러닝", "머신러닝"} {
		if !contains(terms, want) {
			t.Errorf("Expand(ai) missing %q: %v", want, terms)
		}
	}
	if terms[0] != "ai" {
		t.Errorf("expected the term itself first, got %v", terms)
	}
}

func TestExpandMemberPullsWholeGroup(t *testing.T) {
	terms := defaultExpander().Expand("딥러닝")
	for _, want := range []string{"딥러닝", "ai", "챗봇", "생성형"} {
		if !contains(terms, want) {
			t.Errorf("Expand(딥러닝) missing %q: %v", want, terms)
		}
	}
}

func TestExpandOverlappingGroupsUnion(t *testing.T) {
	// "반도체" is a key of its own group and a member of the "it" group.
	terms := defaultExpander().Expand("반도체")
	for _, want := range []string{"파운드리", "dram", "클라우드", "아이티"} {
		if !contains(terms, want) {
			t.Errorf("Expand(반도체) missing %q: %v", want, terms)
		}
	}

	seen := make(map[string]bool)
	for _, term := range terms {
		if seen[term] {
			t.Errorf("duplicate term %q in %v", term, terms)
		}
		seen[term] = true
	}
}

func TestExpandUnknownAndEmpty(t *testing.T) {
	e := defaultExpander()
	if got := e.Expand("  Quantum "); len(got) != 1 || got[0] != "quantum" {
		t.Errorf("expected only the lowercased term, got %v", got)
	}
	if got := e.Expand("   "); len(got) != 0 {
		t.Errorf("expected no terms for empty input, got %v", got)
	}
}

func TestExpandSubstitutedConfig(t *testing.T) {
	e := NewExpander([]config.SynonymGroup{{Key: "Go", Terms: []string{"Golang", "gopher"}}})
	got := e.Expand("GOLANG")
	if !reflect.DeepEqual(got, []string{"golang", "gopher"}) {
		t.Errorf("unexpected expansion %v", got)
	}

	got = e.Expand("go")
	if !reflect.DeepEqual(got, []string{"go", "golang", "gopher"}) {
		t.Errorf("unexpected expansion for key %v", got)
	}
}
