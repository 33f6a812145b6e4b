package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("unexpected default addr %q", cfg.HTTP.Addr)
	}
	if cfg.Log.Format != "json" {
		t.Fatalf("unexpected default log format %q", cfg.Log.Format)
	}
}

func TestLoadParsesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
environment = "production"

[http]
addr = ":9090"

[tracing]
enabled = true
sampling_ratio = 0.5
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.IsProduction() {
		t.Fatal("expected production environment")
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("unexpected addr %q", cfg.HTTP.Addr)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.SamplingRatio != 0.5 {
		t.Fatalf("unexpected tracing config %+v", cfg.Tracing)
	}
}

func TestEnvOverridesWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[http]\naddr = \":9090\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CASEBILL_HTTP_ADDR", ":7070")
	t.Setenv("CASEBILL_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":7070" {
		t.Fatalf("expected env override, got %q", cfg.HTTP.Addr)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Log.Level)
	}
}
