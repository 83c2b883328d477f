package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/hyperjump/kontext/internal/cache"
	"github.com/hyperjump/kontext/internal/compress"
	"github.com/hyperjump/kontext/internal/fusion"
	"github.com/hyperjump/kontext/internal/memory"
	"github.com/hyperjump/kontext/internal/models"
	"github.com/hyperjump/kontext/internal/prompt"
	"github.com/hyperjump/kontext/internal/retriever"
	"github.com/hyperjump/kontext/internal/router"
	"github.com/hyperjump/kontext/internal/storage"
)

// axisEmbedder gives every keyword group its own dimension so routing is predictable.
type axisEmbedder struct {
	axes [][]string
}

func (e *axisEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
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
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

type fixedRouter models.Backend

func (r fixedRouter) Route(context.Context, string) models.RouteDecision {
	return models.RouteDecision{Selected: models.Backend(r), Scores: map[models.Backend]float64{}}
}

func newTestPipeline(t *testing.T, rt Router, retrievers retriever.Set, opts ...Option) *Pipeline {
	t.Helper()
	mem, err := memory.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c, err := cache.New(t.TempDir(), time.Hour, cache.WithBackends(models.BackendRelational))
	if err != nil {
		t.Fatal(err)
	}
	return NewPipeline(mem, rt, c, retrievers, fusion.New(fusion.Config{}), compress.New(compress.CharEstimator{}), opts...)
}

func TestProcess_APIRateLimit(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "structured.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.PutConfig(ctx, models.ConfigEntry{
		Key: "api_limit", Value: "100/min", Description: "API rate limit", Category: "api",
	}); err != nil {
		t.Fatal(err)
	}

	emb := &axisEmbedder{axes: [][]string{
		{"document", "tutorial", "文档"},
		{"api", "limit", "rate", "配置"},
		{"合作", "colleague", "关系"},
	}}
	rt, err := router.New(ctx, emb, map[models.Backend][]string{
		models.BackendSemantic:   {"tutorial document"},
		models.BackendStructured: {"api limit", "配置"},
		models.BackendRelational: {"合作 关系"},
	})
	if err != nil {
		t.Fatal(err)
	}
	p := newTestPipeline(t, rt, retriever.Set{
		models.BackendStructured: retriever.NewStructuredRetriever(store, 3),
	})

	res := p.Process(ctx, "What is the API rate limit?")
	if res.Failed {
		t.Fatalf("unexpected failure: %s", res.Error)
	}
	if res.Route != models.BackendStructured {
		t.Errorf("route = %s, want structured", res.Route)
	}
	if res.CacheHit {
		t.Error("structured results are not cached")
	}
	want := "配置: api_limit = 100/min (API rate limit)"
	if len(res.Retrieved) != 1 || res.Retrieved[0] != want {
		t.Fatalf("retrieved = %q, want [%q]", res.Retrieved, want)
	}
	if !strings.Contains(res.FinalPrompt, want) {
		t.Error("prompt should carry the config line unchanged")
	}
	if !strings.HasSuffix(res.FinalPrompt, "What is the API rate limit?") {
		t.Error("prompt should end with the question")
	}
	if n := utf8.RuneCountInString(res.FinalPrompt); n >= prompt.DefaultMaxLength {
		t.Errorf("prompt length %d", n)
	}
	if res.ShortTerm != "" || strings.Contains(res.FinalPrompt, "短期对话记忆") {
		t.Error("no memory yet, default variant expected")
	}
}

func TestProcess_RelationalIsCached(t *testing.T) {
	calls := 0
	rel := retriever.Func(func(context.Context, string) ([]models.Record, error) {
		calls++
		return []models.Record{models.Relationship{
			From:     models.Node{ID: "张三", Properties: map[string]string{models.PositionProperty: "工程师"}},
			To:       models.Node{ID: "李四", Properties: map[string]string{models.PositionProperty: "经理"}},
			Relation: "合作",
		}}, nil
	})
	p := newTestPipeline(t, fixedRouter(models.BackendRelational), retriever.Set{models.BackendRelational: rel})
	ctx := context.Background()

	first := p.Process(ctx, "张三的合作者")
	second := p.Process(ctx, "张三的合作者")
	if first.CacheHit || !second.CacheHit {
		t.Errorf("cache hits = %v, %v; want false, true", first.CacheHit, second.CacheHit)
	}
	if calls != 1 {
		t.Errorf("retriever called %d times, want 1", calls)
	}
	want := "关系: 张三(工程师) -[合作]-> 李四(经理)"
	if len(second.Retrieved) != 1 || second.Retrieved[0] != want {
		t.Errorf("cached retrieved = %q", second.Retrieved)
	}
}

func TestProcess_WithMemoryVariant(t *testing.T) {
	p := newTestPipeline(t, fixedRouter(models.BackendStructured), retriever.Set{})
	if err := p.RecordTurn("hi", "hello"); err != nil {
		t.Fatal(err)
	}
	res := p.Process(context.Background(), "again?")
	if res.ShortTerm != "用户: hi\n助手: hello" {
		t.Errorf("short term = %q", res.ShortTerm)
	}
	if !strings.Contains(res.FinalPrompt, "短期对话记忆:\n用户: hi") {
		t.Errorf("prompt missing short-term section:\n%s", res.FinalPrompt)
	}
	if res.LongTerm != memory.EmptySummary {
		t.Errorf("long term = %q", res.LongTerm)
	}
}

func TestProcess_RecoversPanic(t *testing.T) {
	boom := retriever.Func(func(context.Context, string) ([]models.Record, error) {
		panic("index corrupted")
	})
	p := newTestPipeline(t, fixedRouter(models.BackendSemantic), retriever.Set{models.BackendSemantic: boom})
	res := p.Process(context.Background(), "anything")
	if !res.Failed {
		t.Fatal("panic should yield a failed result")
	}
	if res.Question != "anything" || !strings.Contains(res.Error, "index corrupted") {
		t.Errorf("result = %+v", res)
	}
	if res.FinalPrompt != "" {
		t.Error("failed result should carry no prompt")
	}
}

func TestProcess_RetrievalErrorIsEmptyContext(t *testing.T) {
	broken := retriever.Func(func(context.Context, string) ([]models.Record, error) {
		return nil, errors.New("connection refused")
	})
	p := newTestPipeline(t, fixedRouter(models.BackendSemantic), retriever.Set{models.BackendSemantic: broken})
	res := p.Process(context.Background(), "what is kontext")
	if res.Failed {
		t.Fatalf("backend errors must not fail the request: %s", res.Error)
	}
	if len(res.Retrieved) != 0 {
		t.Errorf("retrieved = %q", res.Retrieved)
	}
	if strings.Contains(res.FinalPrompt, "相关知识检索结果") {
		t.Error("empty retrieval should omit the section")
	}
}

func TestProcess_UnsupportedVariant(t *testing.T) {
	p := newTestPipeline(t, fixedRouter(models.BackendSemantic), retriever.Set{}, WithVariant("haiku"))
	res := p.Process(context.Background(), "q")
	if !res.Failed || !strings.Contains(res.Error, prompt.ErrUnsupportedVariant.Error()) {
		t.Errorf("result = %+v", res)
	}
}

func TestProcess_MaxLength(t *testing.T) {
	long := retriever.Func(func(context.Context, string) ([]models.Record, error) {
		var recs []models.Record
		for i := 0; i < 6; i++ {
			recs = append(recs, models.ConfigEntry{
				Key:   "key" + strings.Repeat("x", i),
				Value: strings.Repeat("值", 300),
			})
		}
		return recs, nil
	})
	p := newTestPipeline(t, fixedRouter(models.BackendStructured),
		retriever.Set{models.BackendStructured: long}, WithMaxLength(600))
	res := p.Process(context.Background(), "how long is the key value")
	if res.Failed {
		t.Fatal(res.Error)
	}
	if n := utf8.RuneCountInString(res.FinalPrompt); n > 600 {
		t.Errorf("prompt length %d exceeds 600", n)
	}
	if !strings.HasSuffix(res.FinalPrompt, "how long is the key value") {
		t.Error("question must survive truncation")
	}
}

func TestResetMemory(t *testing.T) {
	p := newTestPipeline(t, fixedRouter(models.BackendSemantic), retriever.Set{})
	_ = p.RecordTurn("a question", "an answer")
	if err := p.ResetMemory(); err != nil {
		t.Fatal(err)
	}
	res := p.Process(context.Background(), "fresh")
	if res.ShortTerm != "" || res.LongTerm != memory.EmptySummary {
		t.Errorf("memory not cleared: %+v", res)
	}
}
