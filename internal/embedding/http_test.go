package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPEmbedder_Embed(t *testing.T) {
	var got embeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embedding":[3,4]}`))
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, "", 2, time.Second)
	vecs, err := e.EmbedBatch(context.Background(), []string{"hello", "world"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors", len(vecs))
	}
	if math.Abs(float64(vecs[0][0])-0.6) > 1e-6 || math.Abs(float64(vecs[0][1])-0.8) > 1e-6 {
		t.Errorf("vector not normalized: %v", vecs[0])
	}
	if got.Model != DefaultModel || got.Prompt != "world" {
		t.Errorf("request = %+v", got)
	}
}

func TestHTTPEmbedder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{}`},
		{"empty embedding", http.StatusOK, `{"embedding":[]}`},
		{"wrong dimension", http.StatusOK, `{"embedding":[1,2,3]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			if _, err := NewHTTPEmbedder(srv.URL, "m", 2, time.Second).Embed(context.Background(), "q"); err == nil {
				t.Error("expected error")
			}
		})
	}
}
