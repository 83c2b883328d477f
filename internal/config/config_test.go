package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
router:
  threshold: 0.2
cache:
  ttl: 1h
  backends: ["relational", "structured"]
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Router.Threshold != 0.2 {
		t.Errorf("threshold = %f, want 0.2", cfg.Router.Threshold)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("ttl = %s, want 1h", cfg.Cache.TTL)
	}
	if len(cfg.Cache.Backends) != 2 {
		t.Errorf("cache backends: got %v", cfg.Cache.Backends)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("debug: true\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  data_dir: "./state"
  graph_path: "./kg/graph.json"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "kg", "graph.json"); cfg.Storage.GraphPath != want {
		t.Errorf("graph_path = %s, want %s", cfg.Storage.GraphPath, want)
	}
	if want := filepath.Join(dir, "state", "cache"); cfg.Storage.CacheDir != want {
		t.Errorf("cache_dir = %s, want %s", cfg.Storage.CacheDir, want)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"cache ttl", cfg.Cache.TTL, 24 * time.Hour},
		{"window", cfg.Memory.WindowSize, 10},
		{"recent turns", cfg.Memory.RecentTurns, 3},
		{"threshold", cfg.Router.Threshold, 0.1},
		{"classifier timeout", cfg.Router.Classifier.Timeout, 10 * time.Second},
		{"token budget", cfg.Compressor.TokenBudget, 1500},
		{"prompt max", cfg.Prompt.MaxLength, 4000},
		{"fusion cap", cfg.Fusion.MaxItems, 8},
		{"fusion top", cfg.Fusion.TopUnconditional, 3},
		{"diversity window", cfg.Fusion.DiversityWindow, 2},
		{"semantic k", cfg.Retrieval.SemanticK, 3},
		{"relational limit", cfg.Retrieval.RelationalLimit, 5},
		{"vector type", cfg.Vector.Type, "memory"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if len(cfg.Cache.Backends) != 1 || cfg.Cache.Backends[0] != "relational" {
		t.Errorf("cache backends should default to relational only, got %v", cfg.Cache.Backends)
	}
	if len(cfg.Router.Examples["sql"]) != 6 {
		t.Errorf("sql examples: got %v", cfg.Router.Examples["sql"])
	}
}

func TestApplyDefaults_examplesAreCopied(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Router.Examples["vdb"][0] = "changed"
	if DefaultRouterExamples["vdb"][0] == "changed" {
		t.Error("defaults must not alias the package-level example table")
	}
}

func TestClassifierConfig_EnabledOrDefault(t *testing.T) {
	c := &ClassifierConfig{}
	if !c.EnabledOrDefault() {
		t.Error("nil enabled should default to true")
	}
	f := false
	c.Enabled = &f
	if c.EnabledOrDefault() {
		t.Error("explicit false should disable the classifier")
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := Default(dir)
	cfg.Prompt.MaxLength = 2000
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Prompt.MaxLength != 2000 {
		t.Errorf("loaded max length: got %d", loaded.Prompt.MaxLength)
	}
	if loaded.Storage.CacheDir != cfg.Storage.CacheDir {
		t.Errorf("cache dir: got %s, want %s", loaded.Storage.CacheDir, cfg.Storage.CacheDir)
	}
}
