package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"API_ID", "API_HASH", "DATABASE_URL", "PORT", "LOG_LEVEL", "SESSION_TTL"} {
		t.Setenv(k, "")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
http:
  listen: ":8080"
telegram:
  api_id: 111
  api_hash: filehash
  phone_prefix: "+91"
  request_timeout: 5s
worker:
  reconcile_interval: 1m
`)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("API_HASH", "envhash")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/forwarder")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HTTP.Listen != ":8080" {
		t.Errorf("listen = %q", cfg.HTTP.Listen)
	}
	if cfg.Telegram.APIID != 111 {
		t.Errorf("api id = %d", cfg.Telegram.APIID)
	}
	if cfg.Telegram.APIHash != "envhash" {
		t.Errorf("api hash = %q, want env override", cfg.Telegram.APIHash)
	}
	if cfg.Telegram.PhonePrefix != "+91" {
		t.Errorf("phone prefix = %q", cfg.Telegram.PhonePrefix)
	}
	if cfg.Telegram.RequestTimeout != 5*time.Second {
		t.Errorf("request timeout = %v", cfg.Telegram.RequestTimeout)
	}
	if cfg.Worker.ReconcileInterval != time.Minute {
		t.Errorf("reconcile interval = %v", cfg.Worker.ReconcileInterval)
	}
	if cfg.Worker.RetryDelay != 10*time.Second {
		t.Errorf("retry delay default lost: %v", cfg.Worker.RetryDelay)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoadInvalidAPIID(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: info\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("API_ID", "abc")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for non-numeric API_ID")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Telegram.APIID = 42
	cfg.HTTP.SessionTTL = 2 * time.Hour

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Telegram.APIID != 42 || loaded.HTTP.SessionTTL != 2*time.Hour {
		t.Errorf("unexpected config after round trip: %+v", loaded)
	}
}

func TestValidateTelegram(t *testing.T) {
	cfg := Default()
	if err := cfg.ValidateTelegram(); err == nil {
		t.Fatal("expected error without credentials")
	}
	cfg.Telegram.APIID = 1
	cfg.Telegram.APIHash = "x"
	if err := cfg.ValidateTelegram(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
