package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Timeout != 15*time.Second {
		t.Fatalf("expected 15s timeout, got %s", cfg.API.Timeout)
	}
	if cfg.Cache.TTL != 5*time.Minute || cfg.Cache.MaxEntries != 100 {
		t.Fatalf("unexpected cache defaults: %+v", cfg.Cache)
	}
	if cfg.Poller.MaxAttempts != 10 || cfg.Poller.Schedule != "@every 1m" {
		t.Fatalf("unexpected poller defaults: %+v", cfg.Poller)
	}
	if cfg.Gateway.Port != DefaultPort {
		t.Fatalf("expected port %d, got %d", DefaultPort, cfg.Gateway.Port)
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Default()
	cfg.API.BaseURL = "http://127.0.0.1:3001/"
	cfg.Gateway.Port = 7001
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.API.BaseURL != "http://127.0.0.1:3001" {
		t.Fatalf("base url not normalised: %q", got.API.BaseURL)
	}
	if got.Gateway.Port != 7001 {
		t.Fatalf("expected port 7001, got %d", got.Gateway.Port)
	}
}
