package config

import (
    "os"
    "path/filepath"
    "testing"
)

func TestLoadDefaults(t *testing.T) {
    cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
    if err != nil {
        t.Fatalf("Load: %v", err)
    }
    if cfg.Server.Port != "8080" {
        t.Fatalf("port = %q, want 8080", cfg.Server.Port)
    }
    if cfg.Client.DefaultExchange != "GER" {
        t.Fatalf("default exchange = %q, want GER", cfg.Client.DefaultExchange)
    }
    if cfg.Store.Backend != "file" {
        t.Fatalf("store backend = %q, want file", cfg.Store.Backend)
    }
}

func TestLoadFile(t *testing.T) {
    path := filepath.Join(t.TempDir(), "config.yaml")
    body := "client:\n  legacy: true\n  default_exchange: FSE\nstore:\n  backend: redis\n  redis_addr: localhost:6379\n"
    if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
        t.Fatal(err)
    }

    cfg, err := Load(path)
    if err != nil {
        t.Fatalf("Load: %v", err)
    }
    if !cfg.Client.Legacy {
        t.Fatal("legacy not picked up from file")
    }
    if cfg.Client.DefaultExchange != "FSE" {
        t.Fatalf("default exchange = %q, want FSE", cfg.Client.DefaultExchange)
    }
    if cfg.Store.Backend != "redis" || cfg.Store.RedisAddr != "localhost:6379" {
        t.Fatalf("store = %+v, want redis backend", cfg.Store)
    }
    // Untouched keys keep their defaults.
    if cfg.Client.TimeoutSec != 10 {
        t.Fatalf("timeout = %d, want 10", cfg.Client.TimeoutSec)
    }
}

func TestLoadEnvOverride(t *testing.T) {
    t.Setenv("ONVISTA_CLIENT_USER_AGENT", "crawler/2.0")
    t.Setenv("ONVISTA_SERVER_PORT", "9090")
    t.Setenv("ONVISTA_CLIENT_THROTTLE_RPS", "0.5")

    cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
    if err != nil {
        t.Fatalf("Load: %v", err)
    }
    if cfg.Client.UserAgent != "crawler/2.0" {
        t.Fatalf("user agent = %q, want crawler/2.0", cfg.Client.UserAgent)
    }
    if cfg.Server.Port != "9090" {
        t.Fatalf("port = %q, want 9090", cfg.Server.Port)
    }
    if cfg.Client.ThrottleRPS != 0.5 {
        t.Fatalf("throttle rps = %v, want 0.5", cfg.Client.ThrottleRPS)
    }
}

func TestEnvBeatsFile(t *testing.T) {
    path := filepath.Join(t.TempDir(), "config.yaml")
    if err := os.WriteFile(path, []byte("server:\n  port: \"7777\"\n"), 0o644); err != nil {
        t.Fatal(err)
    }
    t.Setenv("ONVISTA_SERVER_PORT", "9999")

    cfg, err := Load(path)
    if err != nil {
        t.Fatalf("Load: %v", err)
    }
    if cfg.Server.Port != "9999" {
        t.Fatalf("port = %q, want env to win", cfg.Server.Port)
    }
}
