package router

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/kontext/internal/models"
)

// axisEmbedder puts one dimension per keyword group so routing is predictable.
type axisEmbedder struct {
	axes [][]string
	fail bool
}

func (e *axisEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.fail {
		return nil, errors.New("embedder down")
	}
	text = strings.ToLower(text)
	v := make([]float32, len(e.axes)+1)
	for i, words := range e.axes {
		for _, w := range words {
			if strings.Contains(text, w) {
				v[i]++
			}
		}
	}
	v[len(e.axes)] = 0.01
	return v, nil
}

func (e *axisEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type stubClassifier struct {
	answer string
	err    error
	calls  int
}

func (c *stubClassifier) Classify(context.Context, string) (string, error) {
	c.calls++
	return c.answer, c.err
}

var testExamples = map[models.Backend][]string{
	models.BackendSemantic:   {"文档 tutorial"},
	models.BackendStructured: {"api 限制", "配置"},
	models.BackendRelational: {"合作"},
}

func newEmbedder() *axisEmbedder {
	return &axisEmbedder{axes: [][]string{
		{"文档", "tutorial"},
		{"api", "限制", "配置"},
		{"合作"},
	}}
}

func TestRoute_Unambiguous(t *testing.T) {
	clf := &stubClassifier{answer: "graph"}
	r, err := New(context.Background(), newEmbedder(), testExamples, WithClassifier(clf))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		query string
		want  models.Backend
	}{
		{"What is the API rate limit?", models.BackendStructured},
		{"谁是张三的合作者", models.BackendRelational},
		{"Python tutorial please", models.BackendSemantic},
	}
	for _, tt := range tests {
		d := r.Route(context.Background(), tt.query)
		if d.Selected != tt.want || d.UsedFallback {
			t.Errorf("Route(%q) = %+v, want %s without fallback", tt.query, d, tt.want)
		}
		again := r.Route(context.Background(), tt.query)
		if again.Selected != d.Selected || again.Scores[tt.want] != d.Scores[tt.want] {
			t.Errorf("Route(%q) not deterministic", tt.query)
		}
	}
	if clf.calls != 0 {
		t.Errorf("classifier called %d times on unambiguous queries", clf.calls)
	}
}

func TestRoute_AmbiguousUsesClassifier(t *testing.T) {
	tests := []struct {
		name string
		clf  *stubClassifier
		want models.Backend
	}{
		{"label", &stubClassifier{answer: "graph"}, models.BackendRelational},
		{"label in sentence", &stubClassifier{answer: "分类: sql"}, models.BackendStructured},
		{"garbage", &stubClassifier{answer: "unknown"}, models.BackendSemantic},
		{"error", &stubClassifier{err: context.DeadlineExceeded}, models.BackendSemantic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(context.Background(), newEmbedder(), testExamples, WithClassifier(tt.clf))
			if err != nil {
				t.Fatal(err)
			}
			d := r.Route(context.Background(), "hello there")
			if !d.UsedFallback {
				t.Fatal("expected fallback on ambiguous query")
			}
			if d.Selected != tt.want {
				t.Errorf("selected %s, want %s", d.Selected, tt.want)
			}
			if tt.clf.calls != 1 {
				t.Errorf("classifier calls = %d", tt.clf.calls)
			}
		})
	}
}

func TestRoute_EmbedFailureDegrades(t *testing.T) {
	e := newEmbedder()
	r, err := New(context.Background(), e, testExamples)
	if err != nil {
		t.Fatal(err)
	}
	e.fail = true
	d := r.Route(context.Background(), "API limit")
	if d.Selected != models.BackendSemantic || !d.UsedFallback {
		t.Errorf("got %+v", d)
	}
	for _, b := range models.Backends {
		if d.Scores[b] != 0 {
			t.Errorf("score for %s = %f, want 0", b, d.Scores[b])
		}
	}
}

func TestNew_MissingExamples(t *testing.T) {
	_, err := New(context.Background(), newEmbedder(), map[models.Backend][]string{
		models.BackendSemantic: {"x"},
	})
	if err == nil {
		t.Error("expected error when a backend has no examples")
	}
}

func TestRank_TiesUseFixedOrder(t *testing.T) {
	top, second := rank(map[models.Backend]float64{
		models.BackendSemantic:   0.5,
		models.BackendStructured: 0.5,
		models.BackendRelational: 0.5,
	})
	if top != models.BackendSemantic || second != models.BackendStructured {
		t.Errorf("rank = %s, %s", top, second)
	}
	top, second = rank(map[models.Backend]float64{
		models.BackendSemantic:   0.1,
		models.BackendStructured: 0.2,
		models.BackendRelational: 0.9,
	})
	if top != models.BackendRelational || second != models.BackendStructured {
		t.Errorf("rank = %s, %s", top, second)
	}
}

func TestParseLabel(t *testing.T) {
	tests := map[string]models.Backend{
		"vdb":           models.BackendSemantic,
		" SQL ":         models.BackendStructured,
		"graph":         models.BackendRelational,
		"sql or graph":  models.BackendStructured,
		"":              models.BackendSemantic,
		"vdb and graph": models.BackendSemantic,
	}
	for in, want := range tests {
		if got := ParseLabel(in); got != want {
			t.Errorf("ParseLabel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestExamplesFromLabels(t *testing.T) {
	got, err := ExamplesFromLabels(map[string][]string{"sql": {"a"}, "relational": {"b"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got[models.BackendStructured]) != 1 || len(got[models.BackendRelational]) != 1 {
		t.Errorf("got %v", got)
	}
	if _, err := ExamplesFromLabels(map[string][]string{"nosql": {"a"}}); !errors.Is(err, models.ErrUnknownBackend) {
		t.Errorf("err = %v", err)
	}
}
