package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "refound.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_PG_DSN", "postgres://real-host/refound")

	path := writeConfig(t, `{
		"server": {"port": 9090},
		"database": {
			"postgres": {"dsn": "${TEST_PG_DSN}"},
			"redis": {"url": "${TEST_REDIS_URL:redis://localhost:6379}"}
		},
		"embedding": {"endpoint": "http://clip:8000", "model": "clip-vit-b-32", "dimension": 512}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Postgres.DSN != "postgres://real-host/refound" {
		t.Errorf("got DSN %q, want env value", cfg.Database.Postgres.DSN)
	}
	if cfg.Database.Redis.URL != "redis://localhost:6379" {
		t.Errorf("got redis URL %q, want default", cfg.Database.Redis.URL)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("got port %d, want 9090", cfg.Server.Port)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `{"embedding": {"endpoint": "http://clip:8000"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("got port %d, want default 8080", cfg.Server.Port)
	}
	if cfg.Matching.TextWeight != 0.4 || cfg.Matching.ImageWeight != 0.6 {
		t.Errorf("got weights %v/%v, want 0.4/0.6",
			cfg.Matching.TextWeight, cfg.Matching.ImageWeight)
	}
	if cfg.Matching.Threshold != 0.7 {
		t.Errorf("got threshold %v, want 0.7", cfg.Matching.Threshold)
	}
	if cfg.Matching.MaxResults != 10 {
		t.Errorf("got max results %d, want 10", cfg.Matching.MaxResults)
	}
	if cfg.Matching.EmbeddingVersion != "1.0" {
		t.Errorf("got version %q, want 1.0", cfg.Matching.EmbeddingVersion)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadBadJSON(t *testing.T) {
	path := writeConfig(t, `{"server": `)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
