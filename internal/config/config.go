package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"ballast/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the ballast risk daemon.
type Config struct {
	Logging Logging               `yaml:"logging"`
	Alpaca  Alpaca                `yaml:"alpaca"`
	Monitor Monitor               `yaml:"monitor"`
	Metrics Metrics               `yaml:"metrics"`
	Risk    domain.RiskParameters `yaml:"risk"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Alpaca holds credentials and endpoints for the Alpaca broker API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	BaseURL         string `yaml:"base_url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	PaperMode       bool   `yaml:"paper_mode"`
}

// Duration wraps time.Duration so YAML values like "30s" parse directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Monitor controls the polling cadence and history retention.
type Monitor struct {
	PollInterval Duration `yaml:"poll_interval"`
	StaleAfter   Duration `yaml:"stale_after"`
	HistorySize  int      `yaml:"history_size"`
	RetryCount   int      `yaml:"retry_count"`
}

// Metrics configures the Prometheus listener.
type Metrics struct {
	Addr string `yaml:"addr"`
}

// Default returns the stock configuration: paper mode against the Alpaca
// paper endpoint, 5s polling, default risk parameters.
func Default() *Config {
	return &Config{
		Logging: Logging{Level: "info", Format: "text"},
		Alpaca: Alpaca{
			BaseURL:         "https://paper-api.alpaca.markets",
			RateLimitPerMin: 200,
			PaperMode:       true,
		},
		Monitor: Monitor{
			PollInterval: Duration(5 * time.Second),
			StaleAfter:   Duration(30 * time.Second),
			HistorySize:  256,
			RetryCount:   3,
		},
		Metrics: Metrics{Addr: ":9104"},
		Risk:    domain.DefaultRiskParameters(),
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path over the defaults,
// applies environment variable overrides, and validates the risk parameters.
// An invalid file or parameter set returns an error; the caller keeps
// whatever configuration was previously active.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Risk.Validate(); err != nil {
		return nil, err
	}
	if cfg.Monitor.PollInterval.Std() <= 0 {
		return nil, fmt.Errorf("config: poll_interval must be positive, got %v", cfg.Monitor.PollInterval.Std())
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
