// Package config loads the posthunter configuration from YAML with
// environment overrides for secrets and endpoints.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miclabs/posthunter/internal/models"
)

// Config is the full service configuration tree.
type Config struct {
	Accounts  []models.Account `yaml:"accounts"`
	Quality   QualityConfig    `yaml:"quality"`
	Generate  GenerateConfig   `yaml:"generate"`
	Stock     StockConfig      `yaml:"stock"`
	Monitor   MonitorConfig    `yaml:"monitor"`
	PDCA      PDCAConfig       `yaml:"pdca"`
	Server    ServerConfig     `yaml:"server"`
	Postgres  PostgresConfig   `yaml:"postgres"`
	Redis     RedisConfig      `yaml:"redis"`
	NATS      NATSConfig       `yaml:"nats"`
	Scheduler SchedulerConfig  `yaml:"scheduler"`
	Paused    bool             `yaml:"paused"`
}

// QualityConfig holds the gate pass threshold.
type QualityConfig struct {
	PassThreshold int `yaml:"pass_threshold"` // total score required to stock/post
}

// GenerateConfig bounds the generation retry loop.
type GenerateConfig struct {
	Endpoint     string        `yaml:"endpoint"` // external generator URL
	MaxAttempts  int           `yaml:"max_attempts"`
	AttemptDelay time.Duration `yaml:"attempt_delay"`
	Timeout      time.Duration `yaml:"timeout"`
	RatePerMin   int           `yaml:"rate_per_min"` // generator call budget
}

// StockConfig bounds the per-account inventory.
type StockConfig struct {
	MinPerAccount int `yaml:"min_per_account"` // low-stock floor
	MaxPerAccount int `yaml:"max_per_account"` // append beyond this prunes oldest
}

// MonitorConfig holds the engagement sweep thresholds.
type MonitorConfig struct {
	LikeThreshold int           `yaml:"like_threshold"`
	RateThreshold float64       `yaml:"rate_threshold"` // engagement rate percent
	MaxPerAccount int           `yaml:"max_per_account"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
}

// PDCAConfig holds the analyzer cutoffs.
type PDCAConfig struct {
	HighScoreCutoff int     `yaml:"high_score_cutoff"` // predicted score >= is "high"
	LowScoreCutoff  int     `yaml:"low_score_cutoff"`  // predicted score <= is "low"
	MinSamples      int     `yaml:"min_samples"`       // per-label minimum before ranking
	UnderperformPct float64 `yaml:"underperform_pct"`  // below this fraction of overall mean
	MaxRecs         int     `yaml:"max_recommendations"`
}

// ServerConfig holds the HTTP trigger surface settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Secret       string        `yaml:"secret"` // shared trigger secret, empty disables the check
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// PostgresConfig holds the record store connection settings. Empty DSN means
// the in-memory stores are used instead.
type PostgresConfig struct {
	DSN          string        `yaml:"dsn"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// RedisConfig holds the knowledge store connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NATSConfig holds the event emission settings. Empty URL disables emission.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// SchedulerConfig lists cron-driven jobs.
type SchedulerConfig struct {
	Jobs []Job `yaml:"jobs"`
}

// Job is one scheduled invocation of a core operation.
type Job struct {
	Name     string        `yaml:"name"`
	Schedule string        `yaml:"schedule"` // cron format: "0 */12 * * *"
	Type     string        `yaml:"type"`     // "post.run", "stock.refill", "monitor.sweep", "pdca.analyze"
	Enabled  bool          `yaml:"enabled"`
	DryRun   bool          `yaml:"dry_run"`
	Timeout  time.Duration `yaml:"timeout"` // per-run deadline, zero means 30m
}

// Default returns the built-in configuration used when no file is given.
func Default() Config {
	return Config{
		Quality: QualityConfig{PassThreshold: 7},
		Generate: GenerateConfig{
			MaxAttempts:  3,
			AttemptDelay: 0,
			Timeout:      60 * time.Second,
			RatePerMin:   20,
		},
		Stock: StockConfig{MinPerAccount: 3, MaxPerAccount: 5},
		Monitor: MonitorConfig{
			LikeThreshold: 10,
			RateThreshold: 3.0,
			MaxPerAccount: 20,
			FetchTimeout:  15 * time.Second,
		},
		PDCA: PDCAConfig{
			HighScoreCutoff: 12,
			LowScoreCutoff:  8,
			MinSamples:      2,
			UnderperformPct: 0.7,
			MaxRecs:         5,
		},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Postgres: PostgresConfig{MaxOpenConns: 10, QueryTimeout: 5 * time.Second},
	}
}

// Load reads a YAML config file on top of the defaults and applies
// environment overrides. An empty path returns defaults + env only.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv lets deploy-time secrets override the file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("POSTHUNTER_SECRET"); v != "" {
		cfg.Server.Secret = v
	}
	if v := os.Getenv("POSTHUNTER_PG_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("POSTHUNTER_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("POSTHUNTER_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("PAUSE_AUTOMATION"); v == "true" {
		cfg.Paused = true
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Generate.MaxAttempts < 1 {
		return fmt.Errorf("generate.max_attempts must be >= 1, got %d", c.Generate.MaxAttempts)
	}
	if c.Stock.MaxPerAccount < c.Stock.MinPerAccount {
		return fmt.Errorf("stock.max_per_account (%d) below min_per_account (%d)",
			c.Stock.MaxPerAccount, c.Stock.MinPerAccount)
	}
	seen := make(map[string]bool, len(c.Accounts))
	for _, a := range c.Accounts {
		if a.ID == "" {
			return fmt.Errorf("account with empty id")
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate account id %q", a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}

// Account returns the configured account with the given id.
func (c Config) Account(id string) (models.Account, bool) {
	for _, a := range c.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return models.Account{}, false
}
