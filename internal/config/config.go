// Package config loads the bot configuration from the environment and
// from the build-targets file. The resulting Config value is passed
// explicitly into every component that needs it; nothing reads the
// environment after startup.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the layerbot service.
type Config struct {
	// Server settings
	Port int `env:"PORT" envDefault:"3000"`

	// GitHub App settings
	GitHubAppID         string `env:"GITHUB_APP_ID"`
	GitHubPrivateKey    string `env:"GITHUB_PRIVATE_KEY"`
	GitHubWebhookSecret string `env:"GITHUB_WEBHOOK_SECRET"`

	// Bot identity. AppName shows up in comments posted by the bot;
	// BotLogin is the account the bot acts as and must never be granted
	// command permission (loop guard).
	AppName  string `env:"BOT_APP_NAME" envDefault:"layerbot"`
	BotLogin string `env:"BOT_LOGIN" envDefault:"layerbot[bot]"`

	// Command settings
	CommandPrefix string   `env:"BOT_COMMAND_PREFIX" envDefault:"bot:"`
	CommandUsers  []string `env:"BOT_COMMAND_USERS" envSeparator:","`

	// Comment update settings. MaxAttempts counts total attempts per
	// phase (fetch, write), not additional retries.
	UpdateMaxAttempts int `env:"COMMENT_UPDATE_MAX_ATTEMPTS" envDefault:"3"`

	// Build target settings
	TargetsPath string `env:"BUILD_TARGETS_PATH" envDefault:"targets.yaml"`

	// Job submission commands
	BuildCommand  string `env:"BUILD_SUBMIT_COMMAND" envDefault:"submit-build"`
	DeployCommand string `env:"DEPLOY_COMMAND" envDefault:"deploy-artifacts"`

	// Scheduler settings
	SchedulerWorkers           int           `env:"SCHEDULER_WORKERS" envDefault:"4"`
	SchedulerQueueSize         int           `env:"SCHEDULER_QUEUE_SIZE" envDefault:"16"`
	SchedulerMaxAttempts       int           `env:"SCHEDULER_MAX_ATTEMPTS" envDefault:"3"`
	SchedulerRetryInitial      time.Duration `env:"SCHEDULER_RETRY_INITIAL" envDefault:"15s"`
	SchedulerRetryMax          time.Duration `env:"SCHEDULER_RETRY_MAX" envDefault:"5m"`
	SchedulerBackoffMultiplier float64       `env:"SCHEDULER_BACKOFF_MULTIPLIER" envDefault:"2"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Targets maps an architecture identifier to the repositories that
// should be built for it, e.g. "x86_64/intel" -> ["software-2024.06"].
type Targets struct {
	RepoTargetMap map[string][]string `yaml:"repo_target_map"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.GitHubPrivateKey = normalizePrivateKey(cfg.GitHubPrivateKey)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadTargets reads the build-target map from the configured YAML file.
func LoadTargets(path string) (*Targets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}

	targets := &Targets{}
	if err := yaml.Unmarshal(data, targets); err != nil {
		return nil, fmt.Errorf("failed to parse targets file %s: %w", path, err)
	}

	if len(targets.RepoTargetMap) == 0 {
		return nil, fmt.Errorf("targets file %s has an empty repo_target_map", path)
	}

	return targets, nil
}

func (c *Config) validate() error {
	if c.GitHubAppID == "" {
		return fmt.Errorf("GITHUB_APP_ID is required")
	}
	if c.GitHubPrivateKey == "" {
		return fmt.Errorf("GITHUB_PRIVATE_KEY is required")
	}
	if c.GitHubWebhookSecret == "" {
		return fmt.Errorf("GITHUB_WEBHOOK_SECRET is required")
	}
	if c.BotLogin == "" {
		return fmt.Errorf("BOT_LOGIN is required")
	}
	if c.CommandPrefix == "" {
		return fmt.Errorf("BOT_COMMAND_PREFIX must not be empty")
	}
	if c.UpdateMaxAttempts <= 0 {
		return fmt.Errorf("COMMENT_UPDATE_MAX_ATTEMPTS must be greater than 0")
	}
	if c.SchedulerWorkers <= 0 {
		return fmt.Errorf("SCHEDULER_WORKERS must be greater than 0")
	}
	if c.SchedulerQueueSize <= 0 {
		return fmt.Errorf("SCHEDULER_QUEUE_SIZE must be greater than 0")
	}
	if c.SchedulerMaxAttempts <= 0 {
		return fmt.Errorf("SCHEDULER_MAX_ATTEMPTS must be greater than 0")
	}
	if c.SchedulerRetryMax < c.SchedulerRetryInitial {
		return fmt.Errorf("SCHEDULER_RETRY_MAX must be >= SCHEDULER_RETRY_INITIAL")
	}
	if c.SchedulerBackoffMultiplier < 1 {
		return fmt.Errorf("SCHEDULER_BACKOFF_MULTIPLIER must be >= 1")
	}
	return nil
}

// normalizePrivateKey accepts PEM keys pasted into env files with
// escaped newlines or surrounding quotes and restores the real layout.
func normalizePrivateKey(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	if strings.HasPrefix(trimmed, "\"") && strings.HasSuffix(trimmed, "\"") {
		trimmed = strings.Trim(trimmed, "\"")
	}
	if strings.HasPrefix(trimmed, "'") && strings.HasSuffix(trimmed, "'") {
		trimmed = strings.Trim(trimmed, "'")
	}

	trimmed = strings.ReplaceAll(trimmed, "\r\n", "\n")
	trimmed = strings.ReplaceAll(trimmed, "\r", "\n")
	if strings.Contains(trimmed, "\\n") {
		trimmed = strings.ReplaceAll(trimmed, "\\r", "")
		trimmed = strings.ReplaceAll(trimmed, "\\n", "\n")
	}

	return trimmed
}
