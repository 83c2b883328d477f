package fusion

import (
	"reflect"
	"testing"

	"github.com/hyperjump/kontext/internal/models"
)

func TestFuse_SingleSourcePassesThrough(t *testing.T) {
	e := New(Config{})
	line := "配置: api_limit = 100/min (API rate limit)"
	got := e.Fuse(map[models.Backend][]string{models.BackendStructured: {line}}, "What is the API rate limit?")
	if !reflect.DeepEqual(got, []string{line}) {
		t.Errorf("got %v", got)
	}
}

func TestFuse_Dedupe(t *testing.T) {
	e := New(Config{})
	got := e.Fuse(map[models.Backend][]string{
		models.BackendSemantic:   {"Hello   World"},
		models.BackendStructured: {" hello world\n"},
	}, "hello")
	if len(got) != 1 || got[0] != "Hello   World" {
		t.Errorf("first occurrence should win, got %v", got)
	}
}

func TestFuse_SourceWeightOrdersEqualContent(t *testing.T) {
	e := New(Config{})
	got := e.Rank(map[models.Backend][]string{
		models.BackendSemantic:   {"alpha"},
		models.BackendStructured: {"beta"},
		models.BackendRelational: {"gamma"},
	}, "nothing")
	want := []models.Backend{models.BackendStructured, models.BackendRelational, models.BackendSemantic}
	for i, c := range got {
		if c.Source != want[i] {
			t.Errorf("position %d: %s, want %s", i, c.Source, want[i])
		}
	}
}

func TestFuse_Diversity(t *testing.T) {
	e := New(Config{})
	got := e.Rank(map[models.Backend][]string{
		models.BackendStructured: {"s1", "s2", "s3", "s4", "s5"},
		models.BackendSemantic:   {"v1", "v2"},
	}, "q")
	var sources []models.Backend
	for _, c := range got {
		sources = append(sources, c.Source)
	}
	want := []models.Backend{
		models.BackendStructured, models.BackendStructured, models.BackendStructured,
		models.BackendSemantic,
	}
	if !reflect.DeepEqual(sources, want) {
		t.Errorf("sources = %v, want %v", sources, want)
	}
}

func TestFuse_Cap(t *testing.T) {
	e := New(Config{TopUnconditional: 20, MaxItems: 8})
	var lines []string
	for i := 0; i < 12; i++ {
		lines = append(lines, string(rune('a'+i)))
	}
	got := e.Fuse(map[models.Backend][]string{models.BackendSemantic: lines}, "q")
	if len(got) != 8 {
		t.Errorf("len = %d, want 8", len(got))
	}
}

func TestFuse_CoverageAndDensity(t *testing.T) {
	e := New(Config{})
	got := e.Rank(map[models.Backend][]string{
		models.BackendSemantic: {"unrelated text", "API limit is 100 per Minute"},
	}, "api limit")
	if got[0].Content != "API limit is 100 per Minute" {
		t.Fatalf("covering line should rank first, got %v", got)
	}
	if got[0].Coverage != 1 {
		t.Errorf("coverage = %f, want 1", got[0].Coverage)
	}
	// "API" is not [A-Z][a-z]+; "100" and "Minute" are.
	if got[0].Density != 2 {
		t.Errorf("density = %d, want 2", got[0].Density)
	}
}

func TestFuse_Empty(t *testing.T) {
	if got := New(Config{}).Fuse(nil, "q"); len(got) != 0 {
		t.Errorf("got %v", got)
	}
}
