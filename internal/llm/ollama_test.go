package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOllamaClassifier_Classify(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"  SQL\n"}`))
	}))
	defer srv.Close()

	c := NewOllamaClassifier(srv.URL, time.Second)
	answer, err := c.Classify(context.Background(), "API限制是多少")
	if err != nil {
		t.Fatal(err)
	}
	if answer != "sql" {
		t.Errorf("answer = %q, want sql", answer)
	}
	if got.Model != DefaultModel || got.Stream {
		t.Errorf("request = %+v", got)
	}
	if !strings.Contains(got.Prompt, "问题: API限制是多少\n分类:") {
		t.Errorf("prompt missing question: %q", got.Prompt)
	}
}

func TestOllamaClassifier_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := NewOllamaClassifier(srv.URL, time.Second).Classify(context.Background(), "q"); err == nil {
		t.Error("expected error on 500")
	}
}

func TestOllamaClassifier_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":""}`))
	}))
	defer srv.Close()

	_, err := NewOllamaClassifier(srv.URL, time.Second).Classify(context.Background(), "q")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestOllamaClassifier_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"response":"sql"}`))
	}))
	defer srv.Close()

	if _, err := NewOllamaClassifier(srv.URL, 20*time.Millisecond).Classify(context.Background(), "q"); err == nil {
		t.Error("expected timeout error")
	}
}
