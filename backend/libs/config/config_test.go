package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type nested struct {
	Addr string
	TTL  time.Duration `yaml:"ttl"`
}

type sample struct {
	Service string   `yaml:"service"`
	Port    int      `yaml:"port" env:"SAMPLE_PORT"`
	Debug   bool     `yaml:"debug"`
	Hosts   []string `yaml:"hosts"`
	Skipped string   `env:"-"`
	Redis   nested   `yaml:"redis"`
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	doc := []byte("service: from-file\nport: 80\nredis:\n  addr: file:6379\n  ttl: 1m\n")
	if err := os.WriteFile(path, doc, 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SAMPLE_PORT", "9090")
	t.Setenv("REDIS_ADDR", "env:6379")
	t.Setenv("REDIS_TTL", "45s")
	t.Setenv("HOSTS", "a, b,,c")
	t.Setenv("SKIPPED", "ignored")

	var cfg sample
	if err := LoadConfig(&cfg); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Service != "from-file" {
		t.Errorf("service = %q, want from-file", cfg.Service)
	}
	if cfg.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Port)
	}
	if cfg.Redis.Addr != "env:6379" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
	if cfg.Redis.TTL != 45*time.Second {
		t.Errorf("redis ttl = %s", cfg.Redis.TTL)
	}
	if len(cfg.Hosts) != 3 || cfg.Hosts[2] != "c" {
		t.Errorf("hosts = %v", cfg.Hosts)
	}
	if cfg.Skipped != "" {
		t.Errorf("skipped field was populated: %q", cfg.Skipped)
	}
}

func TestLoadConfigRejectsNonPointer(t *testing.T) {
	if err := LoadConfig(sample{}); err == nil {
		t.Fatal("expected error for non-pointer target")
	}
	if err := LoadConfig(nil); err == nil {
		t.Fatal("expected error for nil target")
	}
}

func TestLoadConfigBadValue(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SAMPLE_PORT", "not-a-number")
	var cfg sample
	if err := LoadConfig(&cfg); err == nil {
		t.Fatal("expected parse error")
	}
}
