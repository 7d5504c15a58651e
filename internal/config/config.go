package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

type AppConfig struct {
	ListenAddr     string
	AllowedOrigins []string
	NodeID         string

	RedisURL string

	RulesEngine  string
	RulesURL     string
	RulesTimeout time.Duration
	RulesdAddr   string

	GracePeriod       time.Duration
	FinishedRetention time.Duration
	WaitingTTL        time.Duration
	ReapInterval      time.Duration

	OutboxSize   int
	WriteTimeout time.Duration

	MessagesDir string
}

const (
	RulesLocal  = "local"
	RulesRemote = "remote"
)

func defaults() *AppConfig {
	return &AppConfig{
		ListenAddr:        ":8080",
		RulesEngine:       RulesLocal,
		RulesTimeout:      2 * time.Second,
		RulesdAddr:        ":8090",
		GracePeriod:       30 * time.Second,
		FinishedRetention: 10 * time.Second,
		WaitingTTL:        30 * time.Minute,
		ReapInterval:      5 * time.Second,
		OutboxSize:        64,
		WriteTimeout:      5 * time.Second,
	}
}

// Load builds the config from defaults, an optional YAML file named by
// CONFIG_FILE, and then environment overrides.
func Load() (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("NODE_ID")); v != "" {
		cfg.NodeID = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("RULES_ENGINE")); v != "" {
		cfg.RulesEngine = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("RULES_URL")); v != "" {
		cfg.RulesURL = v
	}
	if v := strings.TrimSpace(os.Getenv("RULESD_ADDR")); v != "" {
		cfg.RulesdAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("MESSAGES_DIR")); v != "" {
		cfg.MessagesDir = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"RULES_TIMEOUT", &cfg.RulesTimeout},
		{"GRACE_PERIOD", &cfg.GracePeriod},
		{"FINISHED_RETENTION", &cfg.FinishedRetention},
		{"WAITING_TTL", &cfg.WaitingTTL},
		{"REAP_INTERVAL", &cfg.ReapInterval},
		{"WRITE_TIMEOUT", &cfg.WriteTimeout},
	}
	for _, d := range durations {
		v := strings.TrimSpace(os.Getenv(d.key))
		if v == "" {
			continue
		}
		parsed, err := parseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if v := strings.TrimSpace(os.Getenv("OUTBOX_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.OutboxSize = n
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var file fileConfig
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return file.apply(c)
}

func (c *AppConfig) validate() error {
	switch c.RulesEngine {
	case RulesLocal:
	case RulesRemote:
		if strings.TrimSpace(c.RulesURL) == "" {
			return errors.New("RULES_URL is required when RULES_ENGINE=remote")
		}
	default:
		return fmt.Errorf("unknown RULES_ENGINE %q", c.RulesEngine)
	}
	if c.GracePeriod <= 0 {
		return errors.New("GRACE_PERIOD must be positive")
	}
	if c.ReapInterval <= 0 {
		return errors.New("REAP_INTERVAL must be positive")
	}
	if c.OutboxSize <= 0 {
		return errors.New("OUTBOX_SIZE must be positive")
	}
	return nil
}

// parseDuration accepts Go durations ("45s", "2m") or bare seconds ("45").
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative duration %q", v)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
