package embedding

import (
	"context"
	"testing"
)

type countingEmbedder struct {
	*MockEmbedder
	calls int
	texts int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	c.texts++
	return c.MockEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.texts += len(texts)
	return c.MockEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_Embed(t *testing.T) {
	base := &countingEmbedder{MockEmbedder: NewMockEmbedder(8)}
	c, err := NewCachedEmbedder(base, 2)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	first, _ := c.Embed(ctx, "a")
	first[0] = 42 // callers may mutate their copy
	second, _ := c.Embed(ctx, "a")
	if base.calls != 1 {
		t.Errorf("base called %d times, want 1", base.calls)
	}
	if second[0] == 42 {
		t.Error("cached vector was aliased to caller")
	}

	_, _ = c.Embed(ctx, "b")
	_, _ = c.Embed(ctx, "c") // evicts a
	_, _ = c.Embed(ctx, "a")
	if base.calls != 4 {
		t.Errorf("expected a to be evicted and re-embedded, calls=%d", base.calls)
	}
	if c.Len() != 2 {
		t.Errorf("Len=%d, want 2", c.Len())
	}
}

func TestCachedEmbedder_EmbedBatch(t *testing.T) {
	base := &countingEmbedder{MockEmbedder: NewMockEmbedder(8)}
	c, _ := NewCachedEmbedder(base, 10)
	ctx := context.Background()
	_, _ = c.Embed(ctx, "cached")

	out, err := c.EmbedBatch(ctx, []string{"x", "cached", "x", "y"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 4 {
		t.Fatalf("got %d vectors", len(out))
	}
	if base.texts != 3 {
		t.Errorf("base embedded %d texts, want 3 (cached once + x, y)", base.texts)
	}
	want, _ := NewMockEmbedder(8).Embed(ctx, "x")
	for i := range want {
		if out[0][i] != want[i] || out[2][i] != want[i] {
			t.Fatal("duplicate texts should get the same vector")
		}
	}
}

func TestNewCachedEmbedder_InvalidSize(t *testing.T) {
	if _, err := NewCachedEmbedder(NewMockEmbedder(4), 0); err == nil {
		t.Error("expected error for zero size")
	}
}
