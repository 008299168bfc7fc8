// Package config loads, validates, and hot-reloads the daemon's
// configuration file. Loading follows the teacher's own loadConfig
// (strip a BOM first; parse YAML or JSON by file extension, and for any
// other extension try YAML, then JSON); hot-reload follows the teacher's
// fsnotify-based watchFiles, debounced the same way, but hands the reloaded
// Config to a callback instead of restarting any process.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oarkflow/processguard/internal/graph"
	"github.com/oarkflow/processguard/internal/model"
)

// NotificationsConfig configures the alert bus's cooldown and sinks.
type NotificationsConfig struct {
	CooldownSeconds float64 `json:"cooldown_seconds" yaml:"cooldown_seconds"`

	EmailEnabled bool           `json:"email_enabled" yaml:"email_enabled"`
	EmailSMTPServer string      `json:"email_smtp_server" yaml:"email_smtp_server"`
	EmailSMTPPort int           `json:"email_smtp_port" yaml:"email_smtp_port"`
	EmailSMTPUsername string    `json:"email_smtp_username" yaml:"email_smtp_username"`
	EmailSMTPPassword string    `json:"email_smtp_password" yaml:"email_smtp_password"`
	EmailSMTPUseTLS bool        `json:"email_smtp_use_tls" yaml:"email_smtp_use_tls"`
	EmailRecipients []string    `json:"email_recipients" yaml:"email_recipients"`

	WebhookEnabled bool             `json:"webhook_enabled" yaml:"webhook_enabled"`
	WebhookURL string                `json:"webhook_url" yaml:"webhook_url"`
	WebhookHeaders map[string]string `json:"webhook_headers" yaml:"webhook_headers"`

	SlackEnabled bool     `json:"slack_enabled" yaml:"slack_enabled"`
	SlackWebhookURL string `json:"slack_webhook_url" yaml:"slack_webhook_url"`
}

// Config is the top-level configuration file contract from spec.md §6.
type Config struct {
	LogLevel string              `json:"log_level" yaml:"log_level"`
	MonitorInterval float64      `json:"monitor_interval" yaml:"monitor_interval"`
	AutoStartProcesses bool      `json:"auto_start_processes" yaml:"auto_start_processes"`
	LogDir string                `json:"log_dir" yaml:"log_dir"`
	LogRotateBytes int64         `json:"log_rotate_bytes" yaml:"log_rotate_bytes"`
	LogRotateKeep int            `json:"log_rotate_keep" yaml:"log_rotate_keep"`
	Processes []model.ProcessDescriptor `json:"processes" yaml:"processes"`
	Notifications NotificationsConfig   `json:"notifications" yaml:"notifications"`
	// EnvFiles mirrors the teacher's envPaths: a list of dotenv-format
	// files loaded into the daemon's own environment (and thus every
	// child's inherited environment) at startup.
	EnvFiles []string `json:"env_files" yaml:"env_files"`
}

// WithDefaults fills in top-level defaults per spec.md §4.2/§4.3.
func (c Config) WithDefaults() Config {
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = 10
	}
	if c.LogDir == "" {
		c.LogDir = "./log/processguard"
	}
	if c.LogRotateBytes <= 0 {
		c.LogRotateBytes = 10 * 1024 * 1024
	}
	if c.LogRotateKeep <= 0 {
		c.LogRotateKeep = 5
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Notifications.CooldownSeconds <= 0 {
		c.Notifications.CooldownSeconds = 300
	}
	defaulted := make([]model.ProcessDescriptor, len(c.Processes))
	for i, p := range c.Processes {
		defaulted[i] = p.WithDefaults()
	}
	c.Processes = defaulted
	return c
}

// Load reads a JSON or YAML configuration file, stripping a UTF-8 BOM
// first exactly as the teacher's loadConfig does.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var cfg Config
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml"):
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, model.NewConfigError("parsing yaml config %s: %v", path, err)
		}
	case strings.HasSuffix(lower, ".json"):
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, model.NewConfigError("parsing json config %s: %v", path, err)
		}
	default:
		// Mirror the teacher's try-YAML-then-JSON fallback for an
		// unrecognized extension.
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			if jerr := json.Unmarshal(data, &cfg); jerr != nil {
				return nil, model.NewConfigError("unsupported config format: %s", path)
			}
		}
	}

	cfg = cfg.WithDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks duplicate names, threshold ranges, and the acyclicity
// of the dependency graph, per spec.md §3/§7's ConfigError.
func Validate(cfg Config) error {
	seen := map[string]struct{}{}
	g := graph.New()
	for _, p := range cfg.Processes {
		if p.Name == "" {
			return model.NewConfigError("process descriptor missing a name")
		}
		if _, dup := seen[p.Name]; dup {
			return model.NewConfigError("duplicate process name: %s", p.Name)
		}
		seen[p.Name] = struct{}{}

		if p.CPUThresholdPercent < 0 || p.CPUThresholdPercent > 100 {
			return model.NewConfigError("%s: cpu_threshold_percent out of [0,100]: %v", p.Name, p.CPUThresholdPercent)
		}
		if p.MemoryThresholdPercent < 0 || p.MemoryThresholdPercent > 100 {
			return model.NewConfigError("%s: memory_threshold_percent out of [0,100]: %v", p.Name, p.MemoryThresholdPercent)
		}
		if p.MaxRestarts < 0 {
			return model.NewConfigError("%s: max_restarts must be >= 0", p.Name)
		}
		if p.RestartDelaySeconds < 0 {
			return model.NewConfigError("%s: restart_delay_seconds must be >= 0", p.Name)
		}
		switch p.Action {
		case "", model.ActionDisable, model.ActionQuarantine, model.ActionKillDependencies:
		default:
			return model.NewConfigError("%s: unknown crash action %q", p.Name, p.Action)
		}

		g.AddNode(p.Name)
	}
	for _, p := range cfg.Processes {
		for _, dep := range p.Dependencies {
			if _, ok := seen[dep]; !ok {
				return model.NewConfigError("%s: depends on unknown process %s", p.Name, dep)
			}
			g.AddEdge(p.Name, dep)
		}
	}
	return g.Validate()
}

// DependencyGraph rebuilds the dependency graph implied by cfg.Processes.
// Validate and the supervisor each build their own graph and do not call it.
func DependencyGraph(cfg Config) *graph.Graph {
	g := graph.New()
	for _, p := range cfg.Processes {
		g.AddNode(p.Name)
	}
	for _, p := range cfg.Processes {
		for _, dep := range p.Dependencies {
			g.AddEdge(p.Name, dep)
		}
	}
	return g
}
