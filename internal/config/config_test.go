package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("listen addr = %s, want :8080", cfg.ListenAddr)
	}
	if cfg.RateLimit.RequestsPerSecond != 50 {
		t.Fatalf("rps = %d, want 50", cfg.RateLimit.RequestsPerSecond)
	}
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
listen_addr: ":9090"
remotes:
  identity_url: "http://identity:8080"
  catalog_url: "http://catalog:8080"
  tagging_url: "http://tagging:8080"
rate_limit:
  requests_per_second: 10
  burst: 20
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("IDENTITY_URL", "http://identity-override:8080")
	t.Setenv("RATE_LIMIT_RPS", "25")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("listen addr = %s, want :9090", cfg.ListenAddr)
	}
	if cfg.Remotes.IdentityURL != "http://identity-override:8080" {
		t.Fatalf("identity url = %s, env override lost", cfg.Remotes.IdentityURL)
	}
	if cfg.Remotes.CatalogURL != "http://catalog:8080" {
		t.Fatalf("catalog url = %s", cfg.Remotes.CatalogURL)
	}
	if cfg.RateLimit.RequestsPerSecond != 25 {
		t.Fatalf("rps = %d, want 25", cfg.RateLimit.RequestsPerSecond)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("listen addr = %s, want default", cfg.ListenAddr)
	}
}
