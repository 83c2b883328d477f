package graph

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/kontext/internal/models"
)

func seed(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "graph.json"))
	if err != nil {
		t.Fatal(err)
	}
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(s.AddNode("张三", "Person", map[string]string{models.PositionProperty: "工程师"}))
	must(s.AddNode("李四", "Person", map[string]string{models.PositionProperty: "经理"}))
	must(s.AddNode("王五", "Person", map[string]string{models.PositionProperty: "设计师"}))
	must(s.AddRelationship("张三", "李四", "合作", nil))
	must(s.AddRelationship("张三", "李四", "合作", map[string]string{"project": "kontext"}))
	must(s.AddRelationship("王五", "李四", "汇报", nil))
	must(s.AddRelationship("张三", "赵六", "合作", nil))
	return s
}

func TestFindRelationships(t *testing.T) {
	s := seed(t)
	got := s.FindRelationships("谁是张三的合作者", 5)
	if len(got) != 1 {
		t.Fatalf("want one deduplicated edge, got %+v", got)
	}
	r := got[0]
	if r.From.ID != "张三" || r.To.ID != "李四" || r.Relation != "合作" {
		t.Errorf("got %+v", r)
	}
	if want := "关系: 张三(工程师) -[合作]-> 李四(经理)"; models.Render(r) != want {
		t.Errorf("render = %q, want %q", models.Render(r), want)
	}
}

func TestFindRelationships_PropertyMatch(t *testing.T) {
	s := seed(t)
	got := s.FindRelationships("设计师的上级", 5)
	if len(got) != 1 || got[0].From.ID != "王五" {
		t.Errorf("node property match failed: %+v", got)
	}
	got = s.FindRelationships("KONTEXT project", 5)
	if len(got) != 1 || got[0].Properties["project"] != "kontext" {
		t.Errorf("edge property match failed: %+v", got)
	}
}

func TestFindRelationships_Limit(t *testing.T) {
	s := seed(t)
	if got := s.FindRelationships("李四", 1); len(got) != 1 {
		t.Errorf("limit not applied: %d", len(got))
	}
	if got := s.FindRelationships("???", 5); got != nil {
		t.Errorf("no keywords should return nil, got %+v", got)
	}
}

func TestNode_LastWins(t *testing.T) {
	s := seed(t)
	if err := s.AddNode("张三", "Person", map[string]string{models.PositionProperty: "架构师"}); err != nil {
		t.Fatal(err)
	}
	n, ok := s.Node("张三")
	if !ok || n.Properties[models.PositionProperty] != "架构师" {
		t.Errorf("got %+v", n)
	}
}

func TestPersistenceAndReload(t *testing.T) {
	s := seed(t)
	reopened, err := Open(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	nodes, rels := reopened.Stats()
	if nodes != 3 || rels != 4 {
		t.Errorf("stats = %d nodes, %d rels", nodes, rels)
	}

	if err := os.WriteFile(s.Path(), []byte(`{"nodes":[{"id":"甲","label":"P","properties":{"职位":"CEO","age":42}}],"relationships":[]}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := reopened.Reload(); err != nil {
		t.Fatal(err)
	}
	n, ok := reopened.Node("甲")
	if !ok || n.Properties["age"] != "42" {
		t.Errorf("non-string property not converted: %+v", n)
	}
}

func TestOpen_CorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	if err := os.WriteFile(path, []byte("{oops"), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if n, r := s.Stats(); n != 0 || r != 0 {
		t.Errorf("stats = %d, %d", n, r)
	}
}

func TestAdd_TwoWritersShareOneFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	a, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.AddNode("张三", "Person", map[string]string{"职位": "工程师"}); err != nil {
		t.Fatal(err)
	}
	if err := b.AddNode("李四", "Person", map[string]string{"职位": "经理"}); err != nil {
		t.Fatal(err)
	}
	if err := a.AddRelationship("张三", "李四", "合作", nil); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if n, r := reopened.Stats(); n != 2 || r != 1 {
		t.Errorf("stats after two writers = %d nodes, %d rels; want 2, 1", n, r)
	}
	if _, ok := a.Node("李四"); !ok {
		t.Error("writer should see nodes added by the other store")
	}
}

func TestAdd_CorruptFileIsNotOverwritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	if err := os.WriteFile(path, []byte("{oops"), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddNode("a", "A", nil); err == nil {
		t.Fatal("expected an error writing over an undecodable graph")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "{oops" {
		t.Errorf("file rewritten to %q", raw)
	}
	if n, _ := s.Stats(); n != 0 {
		t.Errorf("in-memory graph changed: %d nodes", n)
	}
}

func TestLastModified(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "graph.json"))
	if err != nil {
		t.Fatal(err)
	}
	lm, err := s.LastModified()
	if err != nil || !lm.IsZero() {
		t.Fatalf("missing file: %v, %v", lm, err)
	}
	_ = s.AddNode("a", "A", nil)
	if lm, _ := s.LastModified(); lm.IsZero() {
		t.Error("last modified should be set after a write")
	}
}

func TestKeywords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"谁是张三的合作者", []string{"谁是张", "三的合", "作者", "合作"}},
		{"张三 Alice", []string{"张三", "alice"}},
		{"上下游关系", []string{"上下游", "关系"}},
		{"甲", nil},
	}
	for _, tt := range tests {
		got := Keywords(tt.in)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Keywords(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
