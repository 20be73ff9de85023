package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.NATS.Bucket != "retro" {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Timer.DefaultMinutes != 30 || cfg.AutoSaveSeconds != 30 {
		t.Errorf("timer defaults = %+v", cfg)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
listen_addr: ":9090"
nats:
  url: "nats://broker:4222"
timer:
  default_minutes: 15
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.NATS.URL != "nats://broker:4222" {
		t.Errorf("nats url = %q", cfg.NATS.URL)
	}
	if cfg.Timer.DefaultMinutes != 15 {
		t.Errorf("timer minutes = %d", cfg.Timer.DefaultMinutes)
	}
	// Unset keys keep their defaults.
	if cfg.NATS.Bucket != "retro" {
		t.Errorf("bucket = %q, want default", cfg.NATS.Bucket)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RETRO_LISTEN_ADDR", ":7070")
	t.Setenv("RETRO_TIMER_MINUTES", "10")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListenAddr != ":7070" {
		t.Errorf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.Timer.DefaultMinutes != 10 {
		t.Errorf("timer minutes = %d", cfg.Timer.DefaultMinutes)
	}
}

func TestRejectsNonPositiveTimer(t *testing.T) {
	t.Setenv("RETRO_TIMER_MINUTES", "0")
	if _, err := Load(""); err == nil {
		t.Error("Load() accepted a zero timer duration")
	}
}
