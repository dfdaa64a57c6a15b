// Package config loads worksummary settings from defaults, an optional YAML
// file and WORKSUMMARY_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"worksummary/internal/reveal"
	"worksummary/internal/summary"
)

// EnvConfigPath names the variable that points at the YAML file.
const EnvConfigPath = "WORKSUMMARY_CONFIG"

type Config struct {
	SummaryURL string        `yaml:"summary_url" env:"SUMMARY_URL"`
	AuthURL    string        `yaml:"auth_url" env:"AUTH_URL"`
	Note       string        `yaml:"note" env:"NOTE"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	RetryDelay time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`

	RevealMode       string        `yaml:"reveal_mode" env:"REVEAL_MODE"`
	RevealDelay      time.Duration `yaml:"reveal_delay" env:"REVEAL_DELAY"`
	PlainRevealDelay time.Duration `yaml:"plain_reveal_delay" env:"PLAIN_REVEAL_DELAY"`

	StateDir string `yaml:"state_dir" env:"STATE_DIR"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
}

func Default() Config {
	return Config{
		SummaryURL:       "http://localhost:8080/hoge/api/jira-summary/",
		AuthURL:          "http://localhost:8080/hoge/top",
		Note:             summary.DefaultNote,
		Timeout:          summary.DefaultTimeout,
		RetryDelay:       summary.DefaultRetryDelay,
		MaxRetries:       summary.DefaultMaxRetries,
		RevealMode:       reveal.ModeMarkup.String(),
		RevealDelay:      reveal.DefaultDelay,
		PlainRevealDelay: reveal.DefaultPlainDelay,
		StateDir:         ".worksummary",
		LogLevel:         "info",
	}
}

// Load builds the effective configuration. path may be empty, in which case
// WORKSUMMARY_CONFIG is consulted. With neither set only defaults and the
// environment apply.
func Load(path string) (Config, error) {
	cfg := Default()

	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "WORKSUMMARY_"}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	for name, raw := range map[string]string{"summary_url": c.SummaryURL, "auth_url": c.AuthURL} {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s: invalid url %q", name, raw))
		}
	}
	if c.Timeout < 0 || c.RetryDelay < 0 || c.RevealDelay < 0 || c.PlainRevealDelay < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("max_retries must not be negative"))
	}
	if _, ok := reveal.ParseMode(c.RevealMode); !ok {
		errs = append(errs, fmt.Errorf("reveal_mode: unknown mode %q", c.RevealMode))
	}
	if _, ok := parseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level: unknown level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

// Mode returns the parsed reveal mode. Validate has already rejected
// unknown values.
func (c Config) Mode() reveal.Mode {
	m, _ := reveal.ParseMode(c.RevealMode)
	return m
}

// Delay is the per-unit reveal delay for the configured mode.
func (c Config) Delay() time.Duration {
	if c.Mode() == reveal.ModePlain {
		return c.PlainRevealDelay
	}
	return c.RevealDelay
}

// NewHandler wires the HTTP transport, orchestrator and message handler
// described by c.
func (c Config) NewHandler(log *slog.Logger) *summary.Handler {
	tr := summary.NewHTTPTransport(c.SummaryURL, c.Note, c.Timeout)
	orch := summary.NewOrchestrator(tr,
		summary.Classifier{LoginURL: c.AuthURL, MaxRetries: c.MaxRetries},
		summary.WithRetryDelay(c.RetryDelay),
		summary.WithLogger(log))
	return summary.NewHandler(orch, log)
}

func (c Config) NewScheduler() *reveal.Scheduler {
	return reveal.NewScheduler(c.Mode(), c.Delay())
}

func (c Config) Level() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, bool) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, false
	}
	return l, true
}
