// Package config loads the marlin YAML configuration and applies
// environment variable overrides.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the marlin platform.
type Config struct {
	Storage   Storage   `yaml:"storage"`
	Logging   Logging   `yaml:"logging"`
	Alpaca    Alpaca    `yaml:"alpaca"`
	Backtest  Backtest  `yaml:"backtest"`
	Execution Execution `yaml:"execution"`
	Portfolio Portfolio `yaml:"portfolio"`
	Pool      Pool      `yaml:"pool"`
	Results   Results   `yaml:"results"`
	Gather    Gather    `yaml:"gather"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Backtest defines simulation parameters shared by every ticker run.
type Backtest struct {
	StepFrequency       string  `yaml:"step_frequency"` // daily, hourly, minute, second, auto
	CapitalPerTrade     float64 `yaml:"capital_per_trade"`
	RiskFreeRate        float64 `yaml:"risk_free_rate"`
	InitialAccountValue float64 `yaml:"initial_account_value"`
}

// Execution configures the fill simulation.
type Execution struct {
	SlippageBps        float64 `yaml:"slippage_bps"`
	CommissionPerShare float64 `yaml:"commission_per_share"`
	UseLimitOrders     bool    `yaml:"use_limit_orders"`
	FillDelayMinutes   int     `yaml:"fill_delay_minutes"`
}

// Portfolio configures the portfolio manager and its rule pipeline.
type Portfolio struct {
	Enabled                  bool    `yaml:"enabled"`
	SettlementLagTradingDays int     `yaml:"settlement_lag_trading_days"`
	FractionOfEquity         float64 `yaml:"fraction_of_equity"`
	MaxDeployedPct           float64 `yaml:"max_deployed_pct"`
}

// Pool configures the worker pool and batch scheduler.
type Pool struct {
	MaxConcurrency  int `yaml:"max_concurrency"`
	TaskTimeoutSecs int `yaml:"task_timeout_secs"`
}

// Results selects and configures the results persistence backend.
type Results struct {
	Backend    string     `yaml:"backend"` // "sqlite" or "clickhouse"
	ClickHouse ClickHouse `yaml:"clickhouse"`
}

// ClickHouse holds connection settings for the ClickHouse results backend.
type ClickHouse struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Gather controls the Alpaca daily-bar ingest job.
type Gather struct {
	Symbols         []string `yaml:"symbols"`
	StartDate       string   `yaml:"start_date"`
	BatchSize       int      `yaml:"batch_size"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into
// a Config struct, applies defaults, and then applies environment variable
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyDefaults fills in zero-valued fields that have sensible defaults so
// a minimal config file still produces a runnable setup.
func applyDefaults(cfg *Config) {
	if cfg.Backtest.StepFrequency == "" {
		cfg.Backtest.StepFrequency = "auto"
	}
	if cfg.Backtest.CapitalPerTrade == 0 {
		cfg.Backtest.CapitalPerTrade = 10000
	}
	if cfg.Backtest.RiskFreeRate == 0 {
		cfg.Backtest.RiskFreeRate = 0.04
	}
	if cfg.Backtest.InitialAccountValue == 0 {
		cfg.Backtest.InitialAccountValue = 100000
	}
	if cfg.Execution.SlippageBps == 0 {
		cfg.Execution.SlippageBps = 5.0
	}
	if cfg.Execution.CommissionPerShare == 0 {
		cfg.Execution.CommissionPerShare = 0.005
	}
	if cfg.Pool.MaxConcurrency == 0 {
		cfg.Pool.MaxConcurrency = 4
	}
	if cfg.Pool.TaskTimeoutSecs == 0 {
		cfg.Pool.TaskTimeoutSecs = 300
	}
	if cfg.Portfolio.SettlementLagTradingDays == 0 {
		cfg.Portfolio.SettlementLagTradingDays = 2
	}
	if cfg.Results.Backend == "" {
		cfg.Results.Backend = "sqlite"
	}
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
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
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("CLICKHOUSE_ADDR"); v != "" {
		cfg.Results.ClickHouse.Addr = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		cfg.Results.ClickHouse.Password = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
