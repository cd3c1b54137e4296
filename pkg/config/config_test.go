package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoad_RequiresCredentialsKey(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CONNECTION_CREDENTIALS_KEY", "")

	if _, err := Load("test"); err == nil {
		t.Fatal("expected error when credentials key is missing")
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	chdirTemp(t)
	yaml := "port: \"9000\"\ndiscovery:\n  timeout_seconds: 60\n"
	if err := os.WriteFile(filepath.Join(".", "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONNECTION_CREDENTIALS_KEY", "test-key")
	t.Setenv("PORT", "9999")

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9999" {
		t.Errorf("expected env override 9999, got %s", cfg.Port)
	}
	if cfg.DiscoveryTimeout() != 60*time.Second {
		t.Errorf("expected YAML discovery timeout 60s, got %v", cfg.DiscoveryTimeout())
	}
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CONNECTION_CREDENTIALS_KEY", "test-key")

	cfg, err := Load("v1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DocumentStore.MinPoolSize != 10 || cfg.DocumentStore.MaxPoolSize != 50 {
		t.Errorf("unexpected pool bounds: %d/%d", cfg.DocumentStore.MinPoolSize, cfg.DocumentStore.MaxPoolSize)
	}
	if cfg.DocumentStore.SelectTimeoutSeconds != 5 {
		t.Errorf("unexpected select timeout: %d", cfg.DocumentStore.SelectTimeoutSeconds)
	}
	if cfg.Discovery.TimeoutSeconds != 300 {
		t.Errorf("unexpected discovery timeout: %d", cfg.Discovery.TimeoutSeconds)
	}
	if cfg.Version != "v1" {
		t.Errorf("version not propagated: %s", cfg.Version)
	}
}

func TestLoad_CORSOrigins(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CONNECTION_CREDENTIALS_KEY", "k")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins: %v", cfg.CORSAllowedOrigins)
	}
}
