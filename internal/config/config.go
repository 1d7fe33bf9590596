// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rtpalgo/terminal/internal/types"
)

// Config represents the full application configuration.
type Config struct {
	Engine      EngineConfig      `yaml:"engine"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	Feed        FeedConfig        `yaml:"feed"`
	Instruments InstrumentsConfig `yaml:"instruments"`
	Sheet       SheetConfig       `yaml:"sheet"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Alerting    AlertingConfig    `yaml:"alerting"`
}

// EngineConfig holds order-lifecycle engine settings.
type EngineConfig struct {
	MaxRows                  int  `yaml:"max_rows"`
	TriggerPollIntervalMs    int  `yaml:"trigger_poll_interval_ms"`
	StopTargetPollIntervalMs int  `yaml:"sl_target_poll_interval_ms"`
	// HaltOnPlacementFailure stops the whole engine when placement
	// retries are exhausted instead of marking the one row ERROR.
	HaltOnPlacementFailure bool `yaml:"halt_on_placement_failure"`
}

// GatewayConfig holds brokerage gateway settings.
type GatewayConfig struct {
	Type                 string `yaml:"type"` // paper
	PaperTrade           bool   `yaml:"paper_trade"`
	MaxPlacementRetries  int    `yaml:"max_placement_retries"`
	RetryDelayMs         int    `yaml:"retry_delay_ms"`
	MaxRequestsPerSecond int    `yaml:"max_requests_per_second"`
	CredentialsFile      string `yaml:"credentials_file"`
}

// FeedConfig holds tick stream settings.
type FeedConfig struct {
	URL                 string `yaml:"url"`
	ReconnectBackoffMs  int    `yaml:"reconnect_backoff_ms"`
	MaxReconnectBackoffMs int  `yaml:"max_reconnect_backoff_ms"`
}

// InstrumentsConfig holds master-contract store settings.
type InstrumentsConfig struct {
	DBPath       string   `yaml:"db_path"`
	ContractsDir string   `yaml:"contracts_dir"`
	Exchanges    []string `yaml:"exchanges"`
}

// SheetConfig holds the user-facing sheet settings.
type SheetConfig struct {
	WatchFile              string `yaml:"watch_file"`
	StateFile              string `yaml:"state_file"`
	OrderBookFile          string `yaml:"order_book_file"`
	TickerFile             string `yaml:"ticker_file"`
	ProfileFile            string `yaml:"profile_file"`
	PollIntervalMs         int    `yaml:"poll_interval_ms"`
	OrderRefreshIntervalMs int    `yaml:"order_refresh_interval_ms"`
}

// MetricsConfig holds metrics server settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// AlertingConfig holds alerting settings.
type AlertingConfig struct {
	Enabled bool     `yaml:"enabled"`
	Events  []string `yaml:"events"`
}

// Default returns a configuration with working defaults for paper trading.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxRows:                  250,
			TriggerPollIntervalMs:    1000,
			StopTargetPollIntervalMs: 1000,
		},
		Gateway: GatewayConfig{
			Type:                 "paper",
			PaperTrade:           true,
			MaxPlacementRetries:  5,
			RetryDelayMs:         3000,
			MaxRequestsPerSecond: 10,
		},
		Feed: FeedConfig{
			ReconnectBackoffMs:    1000,
			MaxReconnectBackoffMs: 30000,
		},
		Instruments: InstrumentsConfig{
			DBPath:    "instruments.db",
			Exchanges: []string{"NSE", "NFO", "BSE", "MCX", "CDS", "BFO", "INDICES"},
		},
		Sheet: SheetConfig{
			WatchFile:              "marketwatch.csv",
			StateFile:              "positions.csv",
			OrderBookFile:          "orderbook.csv",
			TickerFile:             "ticker.csv",
			ProfileFile:            "profile.csv",
			PollIntervalMs:         100,
			OrderRefreshIntervalMs: 5000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := Default()

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Engine.MaxRows <= 0 {
		errs = append(errs, "engine.max_rows must be positive")
	}
	if c.Engine.TriggerPollIntervalMs <= 0 {
		errs = append(errs, "engine.trigger_poll_interval_ms must be positive")
	}
	if c.Engine.StopTargetPollIntervalMs <= 0 {
		errs = append(errs, "engine.sl_target_poll_interval_ms must be positive")
	}

	if c.Gateway.Type != "paper" && c.Gateway.Type != "alice" {
		errs = append(errs, "gateway.type must be 'paper' or 'alice'")
	}
	if c.Gateway.Type == "alice" && c.Gateway.CredentialsFile == "" {
		errs = append(errs, "gateway.credentials_file is required for the alice gateway")
	}
	if c.Gateway.MaxPlacementRetries <= 0 {
		errs = append(errs, "gateway.max_placement_retries must be positive")
	}
	if c.Gateway.MaxRequestsPerSecond <= 0 {
		errs = append(errs, "gateway.max_requests_per_second must be positive")
	}

	if c.Instruments.DBPath == "" {
		errs = append(errs, "instruments.db_path is required")
	}

	if c.Sheet.WatchFile == "" {
		errs = append(errs, "sheet.watch_file is required")
	}
	if c.Sheet.PollIntervalMs <= 0 {
		errs = append(errs, "sheet.poll_interval_ms must be positive")
	}
	if c.Sheet.OrderRefreshIntervalMs <= 0 {
		errs = append(errs, "sheet.order_refresh_interval_ms must be positive")
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		errs = append(errs, "metrics.port must be a valid port")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", types.ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

// TriggerPollInterval returns the conditional monitor period.
func (c *Config) TriggerPollInterval() time.Duration {
	return time.Duration(c.Engine.TriggerPollIntervalMs) * time.Millisecond
}

// StopTargetPollInterval returns the stoploss/target monitor period.
func (c *Config) StopTargetPollInterval() time.Duration {
	return time.Duration(c.Engine.StopTargetPollIntervalMs) * time.Millisecond
}

// RetryDelay returns the delay between placement retries.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Gateway.RetryDelayMs) * time.Millisecond
}

// SheetPollInterval returns the sheet poll period.
func (c *Config) SheetPollInterval() time.Duration {
	return time.Duration(c.Sheet.PollIntervalMs) * time.Millisecond
}

// OrderRefreshInterval returns how often order log statuses are
// re-queried from the gateway.
func (c *Config) OrderRefreshInterval() time.Duration {
	return time.Duration(c.Sheet.OrderRefreshIntervalMs) * time.Millisecond
}

// ReconnectBackoff returns the initial feed reconnect backoff.
func (c *Config) ReconnectBackoff() time.Duration {
	return time.Duration(c.Feed.ReconnectBackoffMs) * time.Millisecond
}

// MaxReconnectBackoff returns the feed reconnect backoff ceiling.
func (c *Config) MaxReconnectBackoff() time.Duration {
	return time.Duration(c.Feed.MaxReconnectBackoffMs) * time.Millisecond
}

// IsAlertEventEnabled checks if an alert event type is enabled.
func (c *Config) IsAlertEventEnabled(event string) bool {
	if !c.Alerting.Enabled {
		return false
	}
	if len(c.Alerting.Events) == 0 {
		return true
	}
	for _, e := range c.Alerting.Events {
		if e == event || e == "all" {
			return true
		}
	}
	return false
}
