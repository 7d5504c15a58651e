package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "LISTEN_ADDR", "ALLOWED_ORIGINS", "NODE_ID", "REDIS_URL",
		"RULES_ENGINE", "RULES_URL", "RULES_TIMEOUT", "RULESD_ADDR", "GRACE_PERIOD",
		"FINISHED_RETENTION", "WAITING_TTL", "REAP_INTERVAL", "OUTBOX_SIZE",
		"WRITE_TIMEOUT", "MESSAGES_DIR",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.RulesEngine != RulesLocal {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.GracePeriod != 30*time.Second || cfg.OutboxSize != 64 {
		t.Fatalf("unexpected defaults: grace=%v outbox=%d", cfg.GracePeriod, cfg.OutboxSize)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GRACE_PERIOD", "45")
	t.Setenv("REAP_INTERVAL", "250ms")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("OUTBOX_SIZE", "128")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GracePeriod != 45*time.Second {
		t.Fatalf("GracePeriod = %v", cfg.GracePeriod)
	}
	if cfg.ReapInterval != 250*time.Millisecond {
		t.Fatalf("ReapInterval = %v", cfg.ReapInterval)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.OutboxSize != 128 {
		t.Fatalf("OutboxSize = %d", cfg.OutboxSize)
	}
}

func TestLoadRemoteRulesRequiresURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("RULES_ENGINE", "remote")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without RULES_URL")
	}
	t.Setenv("RULES_URL", "http://rules:8090")
	if _, err := Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("GRACE_PERIOD", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	body := "listen_addr: \":9000\"\ngrace_period: 2m\nnode_id: file-node\nallowed_origins:\n  - https://file.example\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("NODE_ID", "env-node")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9000" || cfg.GracePeriod != 2*time.Minute {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.NodeID != "env-node" {
		t.Fatalf("env should override file, got %q", cfg.NodeID)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://file.example" {
		t.Fatalf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}
