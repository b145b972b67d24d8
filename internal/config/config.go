package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Signals    SignalsConfig    `yaml:"signals" mapstructure:"signals"`
	Risk       RiskConfig       `yaml:"risk" mapstructure:"risk"`
	Forecast   ForecastConfig   `yaml:"forecast" mapstructure:"forecast"`
	Optimizer  OptimizerConfig  `yaml:"optimizer" mapstructure:"optimizer"`
	Policy     PolicyConfig     `yaml:"policy" mapstructure:"policy"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Events     EventsConfig     `yaml:"events" mapstructure:"events"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings. An empty key disables text
// generation and every caller falls back to its deterministic path.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SignalsConfig selects and tunes the signal source.
type SignalsConfig struct {
	Mode          string  `yaml:"mode" mapstructure:"mode"` // "synthetic" or "live"
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey        string  `yaml:"api_key" mapstructure:"api_key"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int     `yaml:"burst" mapstructure:"burst"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CacheTTLSecs  int     `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// RiskConfig tunes the risk aggregator.
type RiskConfig struct {
	DecayWindowHours float64         `yaml:"decay_window_hours" mapstructure:"decay_window_hours"`
	Weights          CategoryWeights `yaml:"weights" mapstructure:"weights"`
}

// CategoryWeights weight each signal category in the breakdown total.
type CategoryWeights struct {
	TradeNews      float64 `yaml:"trade_news" mapstructure:"trade_news"`
	Political      float64 `yaml:"political" mapstructure:"political"`
	PortCongestion float64 `yaml:"port_congestion" mapstructure:"port_congestion"`
}

// Sum returns the total of all category weights.
func (w CategoryWeights) Sum() float64 {
	return w.TradeNews + w.Political + w.PortCongestion
}

// ForecastConfig tunes the forecaster.
type ForecastConfig struct {
	Horizons     []int `yaml:"horizons" mapstructure:"horizons"`
	UseGenerator bool  `yaml:"use_generator" mapstructure:"use_generator"`
}

// OptimizerConfig tunes route optimization.
type OptimizerConfig struct {
	MaxAlternatives    int          `yaml:"max_alternatives" mapstructure:"max_alternatives"`
	Concurrency        int          `yaml:"concurrency" mapstructure:"concurrency"`
	IncludePredictions bool         `yaml:"include_predictions" mapstructure:"include_predictions"`
	CatalogPath        string       `yaml:"catalog_path" mapstructure:"catalog_path"`
	Bounds             BoundsConfig `yaml:"bounds" mapstructure:"bounds"`
}

// BoundsConfig sets the normalization range for cost and time.
type BoundsConfig struct {
	CostMinUSD  float64 `yaml:"cost_min_usd" mapstructure:"cost_min_usd"`
	CostMaxUSD  float64 `yaml:"cost_max_usd" mapstructure:"cost_max_usd"`
	TimeMinDays float64 `yaml:"time_min_days" mapstructure:"time_min_days"`
	TimeMaxDays float64 `yaml:"time_max_days" mapstructure:"time_max_days"`
}

// PolicyConfig tunes the execution policy.
type PolicyConfig struct {
	Mode                 string  `yaml:"mode" mapstructure:"mode"`
	AutoExecuteThreshold float64 `yaml:"auto_execute_threshold" mapstructure:"auto_execute_threshold"`
	MonitorThreshold     float64 `yaml:"monitor_threshold" mapstructure:"monitor_threshold"`
	AutoApproveThreshold float64 `yaml:"auto_approve_threshold" mapstructure:"auto_approve_threshold"`
	MinRiskReduction     float64 `yaml:"min_risk_reduction" mapstructure:"min_risk_reduction"`
	MaxAlternatives      int     `yaml:"max_alternatives" mapstructure:"max_alternatives"`
}

// ResilienceConfig configures retry and circuit breaking around external calls.
type ResilienceConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// EventsConfig configures where structured events are delivered.
type EventsConfig struct {
	Persist    bool   `yaml:"persist" mapstructure:"persist"`
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("REROUTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "reroute.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.timeout_secs", 30)
	v.SetDefault("signals.mode", "synthetic")
	v.SetDefault("signals.rate_per_second", 5.0)
	v.SetDefault("signals.burst", 5)
	v.SetDefault("signals.timeout_secs", 10)
	v.SetDefault("signals.cache_ttl_secs", 300)
	v.SetDefault("risk.decay_window_hours", 168)
	v.SetDefault("risk.weights.trade_news", 0.35)
	v.SetDefault("risk.weights.political", 0.40)
	v.SetDefault("risk.weights.port_congestion", 0.25)
	v.SetDefault("forecast.horizons", []int{3, 5, 7})
	v.SetDefault("forecast.use_generator", true)
	v.SetDefault("optimizer.max_alternatives", 5)
	v.SetDefault("optimizer.concurrency", 4)
	v.SetDefault("optimizer.include_predictions", true)
	v.SetDefault("optimizer.bounds.cost_min_usd", 5000.0)
	v.SetDefault("optimizer.bounds.cost_max_usd", 50000.0)
	v.SetDefault("optimizer.bounds.time_min_days", 10.0)
	v.SetDefault("optimizer.bounds.time_max_days", 30.0)
	v.SetDefault("policy.mode", "semi_automatic")
	v.SetDefault("policy.auto_execute_threshold", 0.75)
	v.SetDefault("policy.monitor_threshold", 0.50)
	v.SetDefault("policy.auto_approve_threshold", 0.50)
	v.SetDefault("policy.min_risk_reduction", 0.20)
	v.SetDefault("policy.max_alternatives", 3)
	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff_ms", 500)
	v.SetDefault("resilience.max_backoff_ms", 10000)
	v.SetDefault("resilience.multiplier", 2.0)
	v.SetDefault("resilience.jitter_fraction", 0.25)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 30)
	v.SetDefault("events.persist", true)
}

// Validate checks the configuration for the given command mode. Modes:
// "core" (scoring commands), "store" (commands that require a database),
// "serve" (HTTP server).
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "core":
	case "store":
		errs = append(errs, c.validateStore()...)
	case "serve":
		errs = append(errs, c.validateStore()...)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	errs = append(errs, c.validateCore()...)

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "none":
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite, postgres or none", c.Store.Driver))
	}
	return errs
}

func (c *Config) validateCore() []string {
	var errs []string

	switch c.Signals.Mode {
	case "synthetic":
	case "live":
		if c.Signals.BaseURL == "" {
			errs = append(errs, "signals.base_url is required when signals.mode is live")
		}
	default:
		errs = append(errs, fmt.Sprintf("signals.mode %q must be synthetic or live", c.Signals.Mode))
	}

	if c.Risk.DecayWindowHours <= 0 {
		errs = append(errs, "risk.decay_window_hours must be > 0")
	}
	w := c.Risk.Weights
	if w.TradeNews < 0 || w.Political < 0 || w.PortCongestion < 0 {
		errs = append(errs, "risk.weights values must be >= 0")
	}
	if math.Abs(w.Sum()-1) > 0.001 {
		errs = append(errs, fmt.Sprintf("risk.weights must sum to 1.0, got %.3f", w.Sum()))
	}

	for _, h := range c.Forecast.Horizons {
		if h <= 0 {
			errs = append(errs, "forecast.horizons must be positive day offsets")
			break
		}
	}

	if c.Optimizer.MaxAlternatives < 1 {
		errs = append(errs, "optimizer.max_alternatives must be >= 1")
	}
	if c.Optimizer.Concurrency < 1 || c.Optimizer.Concurrency > 32 {
		errs = append(errs, "optimizer.concurrency must be between 1 and 32")
	}
	b := c.Optimizer.Bounds
	if b.CostMaxUSD <= b.CostMinUSD {
		errs = append(errs, "optimizer.bounds.cost_max_usd must be > cost_min_usd")
	}
	if b.TimeMaxDays <= b.TimeMinDays {
		errs = append(errs, "optimizer.bounds.time_max_days must be > time_min_days")
	}

	switch c.Policy.Mode {
	case "automatic", "semi_automatic", "manual":
	default:
		errs = append(errs, fmt.Sprintf("policy.mode %q must be automatic, semi_automatic or manual", c.Policy.Mode))
	}
	for name, v := range map[string]float64{
		"auto_execute_threshold": c.Policy.AutoExecuteThreshold,
		"monitor_threshold":      c.Policy.MonitorThreshold,
		"auto_approve_threshold": c.Policy.AutoApproveThreshold,
		"min_risk_reduction":     c.Policy.MinRiskReduction,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Sprintf("policy.%s must be between 0 and 1", name))
		}
	}
	if c.Policy.MonitorThreshold > c.Policy.AutoExecuteThreshold {
		errs = append(errs, "policy.monitor_threshold must be <= auto_execute_threshold")
	}

	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
