// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "/app/config/config.yaml"

// Env holds the runtime knobs that come straight from the environment.
type Env struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`
	Workers     int    `env:"WORKERS" envDefault:"4"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	JobsQueue   string `env:"JOBS_QUEUE" envDefault:"autoreply:jobs"`
	ConfigPath  string `env:"CONFIG_PATH" envDefault:"/app/config/config.yaml"`
}

// MailboxConfig describes the email provider API.
type MailboxConfig struct {
	BaseURL       string
	AuthMode      string
	APIKey        string
	ClientID      string
	ClientSecret  string
	TokenURL      string
	Scopes        []string
	WebhookSecret string
}

// CompletionConfig describes the LLM completion API.
type CompletionConfig struct {
	BaseURL     string
	APIKey      string
	FastModel   string
	StrongModel string
}

// PipelineConfig holds the decision engine limits.
type PipelineConfig struct {
	ThreadLimit       int
	ThreadWindow      time.Duration
	DedupTTL          time.Duration
	MinReplyLength    int
	MaxReplyLength    int
	StrictOrderData   bool
	ThrottlePerMinute int
	DraftLimit        int
}

// Timeouts bounds each external call.
type Timeouts struct {
	Store    time.Duration
	Mailbox  time.Duration
	Send     time.Duration
	Guard    time.Duration
	Classify time.Duration
	Generate time.Duration
	Commerce time.Duration
	Run      time.Duration
}

// Config holds all configuration for the autoreply service.
type Config struct {
	Env

	Mailbox    MailboxConfig
	Completion CompletionConfig

	// Commerce
	CommerceAPIVersion string

	Pipeline PipelineConfig
	Timeouts Timeouts
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Redis struct {
		URL   string `yaml:"url"`
		Queue string `yaml:"queue"`
	} `yaml:"redis"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Mailbox struct {
		BaseURL string `yaml:"base_url"`
		Auth    struct {
			Mode         string   `yaml:"mode"`
			APIKey       string   `yaml:"api_key"`
			ClientID     string   `yaml:"client_id"`
			ClientSecret string   `yaml:"client_secret"`
			TokenURL     string   `yaml:"token_url"`
			Scopes       []string `yaml:"scopes"`
		} `yaml:"auth"`
		WebhookSecret string `yaml:"webhook_secret"`
	} `yaml:"mailbox"`
	Completion struct {
		BaseURL     string `yaml:"base_url"`
		APIKey      string `yaml:"api_key"`
		FastModel   string `yaml:"fast_model"`
		StrongModel string `yaml:"strong_model"`
	} `yaml:"completion"`
	Commerce struct {
		APIVersion string `yaml:"api_version"`
	} `yaml:"commerce"`
	Pipeline struct {
		ThreadLimit       int           `yaml:"thread_limit"`
		ThreadWindow      time.Duration `yaml:"thread_window"`
		DedupTTL          time.Duration `yaml:"dedup_ttl"`
		MinReplyLength    int           `yaml:"min_reply_length"`
		MaxReplyLength    int           `yaml:"max_reply_length"`
		StrictOrderData   bool          `yaml:"strict_order_data"`
		ThrottlePerMinute int           `yaml:"throttle_per_minute"`
		DraftLimit        int           `yaml:"draft_limit"`
	} `yaml:"pipeline"`
	Timeouts struct {
		Store    time.Duration `yaml:"store"`
		Mailbox  time.Duration `yaml:"mailbox"`
		Send     time.Duration `yaml:"send"`
		Guard    time.Duration `yaml:"guard"`
		Classify time.Duration `yaml:"classify"`
		Generate time.Duration `yaml:"generate"`
		Commerce time.Duration `yaml:"commerce"`
		Run      time.Duration `yaml:"run"`
	} `yaml:"timeouts"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for runtime settings. A local .env file, when
// present, is loaded first so it can feed both.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var e Env
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	var raw rawConfig
	data, err := os.ReadFile(e.ConfigPath)
	switch {
	case err == nil:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && e.ConfigPath == defaultConfigPath:
		// No file at the default location; run on environment alone.
	default:
		return nil, fmt.Errorf("read config file %s: %w", e.ConfigPath, err)
	}

	cfg := &Config{Env: e}
	cfg.RedisURL = firstNonEmpty(raw.Redis.URL, e.RedisURL)
	cfg.JobsQueue = firstNonEmpty(raw.Redis.Queue, e.JobsQueue)
	cfg.DatabaseURL = firstNonEmpty(raw.Database.URL, e.DatabaseURL)

	cfg.Mailbox = MailboxConfig{
		BaseURL:       strings.TrimRight(firstNonEmpty(raw.Mailbox.BaseURL, os.Getenv("MAILBOX_BASE_URL")), "/"),
		AuthMode:      firstNonEmpty(raw.Mailbox.Auth.Mode, "api_key"),
		APIKey:        firstNonEmpty(raw.Mailbox.Auth.APIKey, os.Getenv("MAILBOX_API_KEY")),
		ClientID:      raw.Mailbox.Auth.ClientID,
		ClientSecret:  raw.Mailbox.Auth.ClientSecret,
		TokenURL:      raw.Mailbox.Auth.TokenURL,
		Scopes:        raw.Mailbox.Auth.Scopes,
		WebhookSecret: firstNonEmpty(raw.Mailbox.WebhookSecret, os.Getenv("WEBHOOK_SECRET")),
	}

	cfg.Completion = CompletionConfig{
		BaseURL:   strings.TrimRight(firstNonEmpty(raw.Completion.BaseURL, os.Getenv("COMPLETION_BASE_URL")), "/"),
		APIKey:    firstNonEmpty(raw.Completion.APIKey, os.Getenv("COMPLETION_API_KEY")),
		FastModel: raw.Completion.FastModel,
	}
	cfg.Completion.StrongModel = firstNonEmpty(raw.Completion.StrongModel, cfg.Completion.FastModel)

	cfg.CommerceAPIVersion = firstNonEmpty(raw.Commerce.APIVersion, "2024-10")

	p := raw.Pipeline
	cfg.Pipeline = PipelineConfig{
		ThreadLimit:       intOr(p.ThreadLimit, 3),
		ThreadWindow:      durationOr(p.ThreadWindow, time.Hour),
		DedupTTL:          durationOr(p.DedupTTL, 24*time.Hour),
		MinReplyLength:    intOr(p.MinReplyLength, 20),
		MaxReplyLength:    intOr(p.MaxReplyLength, 2000),
		StrictOrderData:   p.StrictOrderData,
		ThrottlePerMinute: intOr(p.ThrottlePerMinute, 10),
		DraftLimit:        intOr(p.DraftLimit, 2000),
	}

	t := raw.Timeouts
	cfg.Timeouts = Timeouts{
		Store:    durationOr(t.Store, 5*time.Second),
		Mailbox:  durationOr(t.Mailbox, 10*time.Second),
		Send:     durationOr(t.Send, 15*time.Second),
		Guard:    durationOr(t.Guard, 10*time.Second),
		Classify: durationOr(t.Classify, 15*time.Second),
		Generate: durationOr(t.Generate, 30*time.Second),
		Commerce: durationOr(t.Commerce, 10*time.Second),
		Run:      durationOr(t.Run, 2*time.Minute),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("database url is required (database.url or DATABASE_URL)"))
	}
	if c.Mailbox.BaseURL == "" {
		errs = append(errs, errors.New("mailbox.base_url is required"))
	}
	switch c.Mailbox.AuthMode {
	case "api_key":
		if c.Mailbox.APIKey == "" {
			errs = append(errs, errors.New("mailbox.auth.api_key is required for api_key mode"))
		}
	case "client_credentials":
		if c.Mailbox.ClientID == "" || c.Mailbox.ClientSecret == "" || c.Mailbox.TokenURL == "" {
			errs = append(errs, errors.New("mailbox.auth needs client_id, client_secret and token_url"))
		}
	default:
		errs = append(errs, fmt.Errorf("mailbox.auth.mode %q is not supported", c.Mailbox.AuthMode))
	}
	if c.Completion.BaseURL == "" {
		errs = append(errs, errors.New("completion.base_url is required"))
	}
	if c.Completion.APIKey == "" {
		errs = append(errs, errors.New("completion.api_key is required"))
	}
	if c.Completion.FastModel == "" {
		errs = append(errs, errors.New("completion.fast_model is required"))
	}
	if c.Pipeline.MinReplyLength >= c.Pipeline.MaxReplyLength {
		errs = append(errs, fmt.Errorf("pipeline.min_reply_length (%d) must be below max_reply_length (%d)",
			c.Pipeline.MinReplyLength, c.Pipeline.MaxReplyLength))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("WORKERS must be positive, got %d", c.Workers))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func intOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
