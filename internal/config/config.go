// Package config defines the GLFT core's configuration surface
// (spec.md section 6). Config is loaded from a YAML file with
// MM_-prefixed environment variable overrides, following the teacher's
// `internal/config.Load`/`Validate` shape 1:1 (generalized from the
// teacher's Polymarket wallet/API/scanner sections, which are dropped
// here since chain signing and market discovery are out of scope).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration, one field per row of spec.md
// section 6's configuration table plus the ambient sections (logging,
// store, metrics) every example repo in the corpus carries regardless
// of the spec's feature non-goals.
type Config struct {
	Symbol     string `mapstructure:"symbol"`
	Instrument string `mapstructure:"instrument"` // "spot" | "perpetual"
	DryRun     bool   `mapstructure:"dry_run"`

	Strategy StrategyConfig `mapstructure:"strategy"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Sim      SimConfig      `mapstructure:"sim"`
	Store    StoreConfig    `mapstructure:"store"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// StrategyConfig tunes the GLFT quoter and κ provider.
type StrategyConfig struct {
	Gamma       float64       `mapstructure:"gamma"`
	KappaMode   string        `mapstructure:"kappa_mode"` // "constant" | "live"
	KappaValue  float64       `mapstructure:"kappa_value"`
	ArrivalRate float64       `mapstructure:"arrival_rate"`
	OrderSize   float64       `mapstructure:"order_size"`
	IntervalS   time.Duration `mapstructure:"interval_s"`
	FeeTier     string        `mapstructure:"fee_tier"`
	RoundTrip   string        `mapstructure:"round_trip_mode"` // "two_maker" | "maker_plus_taker"

	VolWindow         int     `mapstructure:"vol_window"`
	VolBootstrapSigma float64 `mapstructure:"vol_bootstrap_sigma_pct"`

	KappaLevels     int           `mapstructure:"kappa_levels"`
	KappaRefresh    time.Duration `mapstructure:"kappa_refresh"`
	KappaStaleLimit int           `mapstructure:"kappa_stale_limit"`
}

// RiskConfig sets the risk/safety gate's thresholds (spec.md section
// 4.5/6).
type RiskConfig struct {
	MinSpreadDollar       float64       `mapstructure:"min_spread_dollar"`
	MaxSpreadDollar       float64       `mapstructure:"max_spread_dollar"`
	InventorySoft         float64       `mapstructure:"inventory_soft"`
	InventoryHard         float64       `mapstructure:"inventory_hard"`
	RegimeFilter          bool          `mapstructure:"regime_filter"`
	Leverage              float64       `mapstructure:"leverage"`
	TickJumpPct           float64       `mapstructure:"tick_jump_pct"`
	DisplacementPct       float64       `mapstructure:"displacement_pct"`
	DispWidenMult         float64       `mapstructure:"disp_widen_mult"`
	DisplacementCooldownS time.Duration `mapstructure:"displacement_cooldown_s"`
	LiqThreshold          float64       `mapstructure:"liq_threshold"`
	NImb                  int           `mapstructure:"n_imb"`
	ImbThreshold          float64       `mapstructure:"imb_threshold"`
	ImbalanceCooldownS    time.Duration `mapstructure:"imbalance_cooldown_s"`
	AckTimeoutS           time.Duration `mapstructure:"ack_timeout_s"`
	PriceTolerance        float64       `mapstructure:"price_tolerance"`
	SizeTolerancePct      float64       `mapstructure:"size_tolerance_pct"`
	SupportsAmend         bool          `mapstructure:"supports_amend"`
	ReplaceThreshold      float64       `mapstructure:"replace_threshold"`
}

// SimConfig tunes the tick simulator (spec.md section 6:
// "ticks_per_candle, queue_alpha, sim_seed").
type SimConfig struct {
	TicksPerCandle int     `mapstructure:"ticks_per_candle"`
	QueueAlpha     float64 `mapstructure:"queue_alpha"`
	Seed           uint64  `mapstructure:"sim_seed"`
}

// StoreConfig sets where the trade log and equity snapshots are written.
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" | "text"
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load reads config from a YAML file with MM_-prefixed environment
// variable overrides (spec.md's configuration surface, generalized from
// the teacher's POLY_ prefix).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("MM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("strategy.interval_s", 5*time.Second)
	v.SetDefault("strategy.kappa_mode", "constant")
	v.SetDefault("strategy.round_trip_mode", "two_maker")
	v.SetDefault("strategy.vol_window", 60)
	v.SetDefault("strategy.kappa_levels", 10)
	v.SetDefault("strategy.kappa_refresh", 30*time.Second)
	v.SetDefault("strategy.kappa_stale_limit", 5)
	v.SetDefault("risk.tick_jump_pct", 0.02)
	v.SetDefault("risk.disp_widen_mult", 2.0)
	v.SetDefault("risk.displacement_cooldown_s", 10*time.Second)
	v.SetDefault("risk.liq_threshold", 0.20)
	v.SetDefault("risk.imbalance_cooldown_s", 60*time.Second)
	v.SetDefault("risk.ack_timeout_s", 3*time.Second)
	v.SetDefault("risk.price_tolerance", 0.01)
	v.SetDefault("risk.size_tolerance_pct", 0.10)
	v.SetDefault("risk.supports_amend", true)
	v.SetDefault("sim.ticks_per_candle", 100)
	v.SetDefault("sim.queue_alpha", 0.5)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
}

// Validate checks every required field and value range, matching the
// teacher's Validate shape 1:1: one descriptive error per violated
// constraint, returned as soon as found.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	switch c.Instrument {
	case "spot", "perpetual":
	default:
		return fmt.Errorf("instrument must be one of: spot, perpetual")
	}
	if c.Strategy.Gamma <= 0 {
		return fmt.Errorf("strategy.gamma must be > 0")
	}
	switch c.Strategy.KappaMode {
	case "constant":
		if c.Strategy.KappaValue <= 0 {
			return fmt.Errorf("strategy.kappa_value must be > 0 when kappa_mode is constant")
		}
		if c.Strategy.ArrivalRate <= 0 {
			return fmt.Errorf("strategy.arrival_rate must be > 0 when kappa_mode is constant")
		}
	case "live":
	default:
		return fmt.Errorf("strategy.kappa_mode must be one of: constant, live")
	}
	if c.Strategy.OrderSize <= 0 {
		return fmt.Errorf("strategy.order_size must be > 0")
	}
	if c.Strategy.IntervalS <= 0 {
		return fmt.Errorf("strategy.interval_s must be > 0")
	}
	switch c.Strategy.RoundTrip {
	case "two_maker", "maker_plus_taker":
	default:
		return fmt.Errorf("strategy.round_trip_mode must be one of: two_maker, maker_plus_taker")
	}
	if c.Risk.InventorySoft <= 0 {
		return fmt.Errorf("risk.inventory_soft must be > 0")
	}
	if c.Risk.InventoryHard <= c.Risk.InventorySoft {
		return fmt.Errorf("risk.inventory_hard must be > risk.inventory_soft")
	}
	if c.Risk.MaxSpreadDollar <= c.Risk.MinSpreadDollar {
		return fmt.Errorf("risk.max_spread_dollar must be > risk.min_spread_dollar")
	}
	if c.Instrument == "perpetual" && c.Risk.Leverage <= 0 {
		return fmt.Errorf("risk.leverage must be > 0 for perpetual instruments")
	}
	if c.Sim.TicksPerCandle <= 0 {
		return fmt.Errorf("sim.ticks_per_candle must be > 0")
	}
	if c.Sim.QueueAlpha <= 0 || c.Sim.QueueAlpha > 1 {
		return fmt.Errorf("sim.queue_alpha must be in (0, 1]")
	}
	return nil
}
