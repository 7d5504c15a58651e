package config

import (
	"fmt"
	"time"
)

// fileConfig mirrors AppConfig with string durations so YAML files can use
// either "30s" or 30.
type fileConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	NodeID         string   `yaml:"node_id"`
	RedisURL       string   `yaml:"redis_url"`

	RulesEngine  string `yaml:"rules_engine"`
	RulesURL     string `yaml:"rules_url"`
	RulesTimeout string `yaml:"rules_timeout"`
	RulesdAddr   string `yaml:"rulesd_addr"`

	GracePeriod       string `yaml:"grace_period"`
	FinishedRetention string `yaml:"finished_retention"`
	WaitingTTL        string `yaml:"waiting_ttl"`
	ReapInterval      string `yaml:"reap_interval"`

	OutboxSize   int    `yaml:"outbox_size"`
	WriteTimeout string `yaml:"write_timeout"`
	MessagesDir  string `yaml:"messages_dir"`
}

func (f fileConfig) apply(c *AppConfig) error {
	setString(&c.ListenAddr, f.ListenAddr)
	setString(&c.NodeID, f.NodeID)
	setString(&c.RedisURL, f.RedisURL)
	setString(&c.RulesEngine, f.RulesEngine)
	setString(&c.RulesURL, f.RulesURL)
	setString(&c.RulesdAddr, f.RulesdAddr)
	setString(&c.MessagesDir, f.MessagesDir)
	if len(f.AllowedOrigins) > 0 {
		c.AllowedOrigins = append([]string(nil), f.AllowedOrigins...)
	}
	if f.OutboxSize > 0 {
		c.OutboxSize = f.OutboxSize
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"rules_timeout", f.RulesTimeout, &c.RulesTimeout},
		{"grace_period", f.GracePeriod, &c.GracePeriod},
		{"finished_retention", f.FinishedRetention, &c.FinishedRetention},
		{"waiting_ttl", f.WaitingTTL, &c.WaitingTTL},
		{"reap_interval", f.ReapInterval, &c.ReapInterval},
		{"write_timeout", f.WriteTimeout, &c.WriteTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := parseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config file %s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
