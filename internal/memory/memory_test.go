package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kontext/internal/models"
)

func TestStore_WindowBounds(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 15; i++ {
		if err := s.Record(fmt.Sprintf("question number %d", i), fmt.Sprintf("answer %d", i)); err != nil {
			t.Fatal(err)
		}
	}
	turns := s.Turns()
	if len(turns) != 10 {
		t.Fatalf("window holds %d turns, want 10", len(turns))
	}
	if turns[0].User != "question number 5" || turns[9].User != "question number 14" {
		t.Errorf("window should hold turns 5..14, got %q..%q", turns[0].User, turns[9].User)
	}
	if s.Summary() == EmptySummary {
		t.Error("summary should be non-empty after the window filled")
	}
}

func TestStore_SummaryFragmentPerFullAppend(t *testing.T) {
	s, err := New(t.TempDir(), WithWindow(2))
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Record("deploy kubernetes cluster", "ok")
	if s.Summary() != EmptySummary {
		t.Fatal("no fragment before the window is full")
	}
	_ = s.Record("kubernetes ingress", "ok")
	_ = s.Record("kubernetes again", "ok")
	lines := strings.Split(s.Summary(), "\n")
	if len(lines) != 2 {
		t.Fatalf("want one fragment per full append, got %q", s.Summary())
	}
	if lines[0] != "最近讨论的主要话题: kubernetes, deploy, cluster, ingress" {
		t.Errorf("fragment = %q", lines[0])
	}
}

func TestStore_RecentContext(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Record("a", "1")
	_ = s.Record("b", "2")
	_ = s.Record("c", "3")

	if got, want := s.RecentContext(2), "用户: b\n助手: 2\n用户: c\n助手: 3"; got != want {
		t.Errorf("RecentContext(2) = %q, want %q", got, want)
	}
	if got := s.RecentContext(0); got != "" {
		t.Errorf("RecentContext(0) = %q", got)
	}
}

func TestStore_PersistAndReload(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, WithWindow(2))
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Record("first question here", "x")
	_ = s.Record("second question here", "y")

	reloaded, err := New(dir, WithWindow(2))
	if err != nil {
		t.Fatal(err)
	}
	if len(reloaded.Turns()) != 2 {
		t.Errorf("reloaded %d turns", len(reloaded.Turns()))
	}
	if reloaded.Summary() != s.Summary() {
		t.Errorf("summary not persisted: %q vs %q", reloaded.Summary(), s.Summary())
	}
}

func TestStore_TwoWritersShareOneDir(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir, WithWindow(3))
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(dir, WithWindow(3))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Record("from a", "x"); err != nil {
		t.Fatal(err)
	}
	if err := b.Record("from b", "y"); err != nil {
		t.Fatal(err)
	}
	if err := a.Record("again from a", "z"); err != nil {
		t.Fatal(err)
	}

	reloaded, err := New(dir, WithWindow(3))
	if err != nil {
		t.Fatal(err)
	}
	want := "用户: from a\n助手: x\n用户: from b\n助手: y\n用户: again from a\n助手: z"
	if got := reloaded.RecentContext(-1); got != want {
		t.Errorf("reloaded context = %q, want %q", got, want)
	}
	if got := a.RecentContext(-1); got != want {
		t.Errorf("writer context = %q, want %q", got, want)
	}
	if reloaded.Summary() == EmptySummary || reloaded.Summary() != a.Summary() {
		t.Errorf("summary = %q, writer has %q", reloaded.Summary(), a.Summary())
	}
}

func TestStore_FailedRecordIsNotServed(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "memory")
	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Record("saved", "turn"); err != nil {
		t.Fatal(err)
	}
	// Replace the directory with a file so neither the lock nor the data can be written.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir, nil, 0644); err != nil {
		t.Fatal(err)
	}

	if err := s.Record("unsaved", "turn"); err == nil {
		t.Fatal("expected an error when memory cannot be persisted")
	}
	if got, want := s.RecentContext(-1), "用户: saved\n助手: turn"; got != want {
		t.Errorf("context = %q, want %q", got, want)
	}
}

func TestStore_CorruptFileDegradesThatStoreOnly(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ShortTermFile), []byte("[{broken"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, LongTermFile), []byte(`{"summary":"旧摘要"}`), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Turns()) != 0 {
		t.Error("corrupt short-term file should load as empty")
	}
	if s.Summary() != "旧摘要" {
		t.Errorf("long-term summary should survive, got %q", s.Summary())
	}
}

func TestStore_Reset(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, WithWindow(1))
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Record("something long", "x")
	if err := s.Reset(); err != nil {
		t.Fatal(err)
	}
	if len(s.Turns()) != 0 || s.Summary() != EmptySummary {
		t.Error("reset should clear both stores")
	}
	for _, name := range []string{ShortTermFile, LongTermFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s should be removed", name)
		}
	}
}

func TestTopicSummary(t *testing.T) {
	window := []models.ConversationTurn{
		{User: "how to tune the api limit", Assistant: "ignored assistant words words words"},
		{User: "api limit for tenants"},
	}
	got := TopicSummary(window)
	want := "最近讨论的主要话题: api, limit, how, tune, the"
	if got != want {
		t.Errorf("TopicSummary = %q, want %q", got, want)
	}
	if TopicSummary([]models.ConversationTurn{{User: "a b"}}) != "" {
		t.Error("no qualifying words should yield no fragment")
	}
}
