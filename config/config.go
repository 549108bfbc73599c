// Package config loads payroll engine settings.
//
// Precedence: environment (PAYROLL_ prefix, "." replaced by "_") > config
// file > defaults. A .env file in the working directory is loaded into the
// environment first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"db"`
	Log       LogConfig       `mapstructure:"log"`
	Payroll   PayrollConfig   `mapstructure:"payroll"`
	Bonus     BonusConfig     `mapstructure:"bonus"`
	Placement PlacementConfig `mapstructure:"placement"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
	File   string `mapstructure:"file"`   // optional, rotated
	// Rotation, only used when File is set.
	MaxSizeMB  int `mapstructure:"max_size_mb"`
	MaxBackups int `mapstructure:"max_backups"`
	MaxAgeDays int `mapstructure:"max_age_days"`
}

type PayrollConfig struct {
	OvertimeMode       string                 `mapstructure:"overtime_mode"`
	DailyOvertimeHours float64                `mapstructure:"daily_overtime_hours"`
	Workers            int                    `mapstructure:"workers"`
	RatesFile          string                 `mapstructure:"rates_file"`
	Rates              []RateConfig           `mapstructure:"rates"`
	Holidays           []factory.HolidayEntry `mapstructure:"holidays"`
}

// RateConfig is an inline rate. Values are converted to decimals on load.
type RateConfig struct {
	Role               string  `mapstructure:"role"`
	BaseHourly         float64 `mapstructure:"base_hourly"`
	OvertimeMultiplier float64 `mapstructure:"overtime_multiplier"`
	HolidayMultiplier  float64 `mapstructure:"holiday_multiplier"`
}

type BonusConfig struct {
	Type      string  `mapstructure:"type"`
	Threshold int     `mapstructure:"threshold"`
	Amount    float64 `mapstructure:"amount"`
}

type PlacementConfig struct {
	MinAssignments   int     `mapstructure:"min_assignments"`
	MinInstitutions  int     `mapstructure:"min_institutions"`
	MinFeedbackScore float64 `mapstructure:"min_feedback_score"`
}

type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// Load reads configuration from path (or ./config.yaml, ./config/config.yaml
// when path is empty) and the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PAYROLL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors.allow_origins", []string{"*"})

	v.SetDefault("db.path", "./data/payroll.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("payroll.overtime_mode", string(payroll.OvertimeStacked))
	v.SetDefault("payroll.daily_overtime_hours", payroll.DefaultDailyOvertimeHours)
	v.SetDefault("payroll.workers", 4)

	rule := payroll.DefaultBonusRule()
	v.SetDefault("bonus.type", string(rule.Type))
	v.SetDefault("bonus.threshold", rule.Threshold)
	v.SetDefault("bonus.amount", rule.Amount.InexactFloat64())

	criteria := payroll.DefaultEligibilityCriteria()
	v.SetDefault("placement.min_assignments", criteria.MinAssignments)
	v.SetDefault("placement.min_institutions", criteria.MinInstitutions)
	v.SetDefault("placement.min_feedback_score", criteria.MinFeedbackScore)

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval", "1h")
}

// Validate rejects settings the engine can't run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !payroll.OvertimeMode(c.Payroll.OvertimeMode).Valid() {
		return fmt.Errorf("config: payroll.overtime_mode must be %q or %q, got %q",
			payroll.OvertimeStacked, payroll.OvertimePremiumOnly, c.Payroll.OvertimeMode)
	}
	if c.Payroll.DailyOvertimeHours <= 0 {
		return fmt.Errorf("config: payroll.daily_overtime_hours must be positive")
	}
	if c.Payroll.Workers <= 0 {
		return fmt.Errorf("config: payroll.workers must be positive")
	}
	if err := c.BonusRule().Validate(); err != nil {
		return fmt.Errorf("config: bonus: %w", err)
	}
	if c.Placement.MinAssignments < 0 || c.Placement.MinInstitutions < 0 || c.Placement.MinFeedbackScore < 0 {
		return fmt.Errorf("config: placement thresholds must not be negative")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("config: scheduler.interval must be positive when the scheduler is enabled")
	}
	return nil
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func (c *Config) BonusRule() payroll.BonusRule {
	return payroll.BonusRule{
		Type:      payroll.BonusType(c.Bonus.Type),
		Threshold: c.Bonus.Threshold,
		Amount:    decimal.NewFromFloat(c.Bonus.Amount),
	}
}

func (c *Config) EligibilityCriteria() payroll.EligibilityCriteria {
	return payroll.EligibilityCriteria{
		MinAssignments:   c.Placement.MinAssignments,
		MinInstitutions:  c.Placement.MinInstitutions,
		MinFeedbackScore: c.Placement.MinFeedbackScore,
	}
}

// defaultRates apply when neither a rates file nor inline rates are set.
var defaultRates = []RateConfig{
	{Role: "Substitute Teacher", BaseHourly: 25, OvertimeMultiplier: 1.5, HolidayMultiplier: 2},
	{Role: "Teaching Assistant", BaseHourly: 20, OvertimeMultiplier: 1.5, HolidayMultiplier: 1.5},
	{Role: "Special Education Aide", BaseHourly: 22.5, OvertimeMultiplier: 1.5, HolidayMultiplier: 2},
}

// RateFile merges the rates file (if any) with inline rates and holidays.
// Inline entries for a role already in the file are rejected as duplicates.
func (c *Config) RateFile() (factory.RateFile, error) {
	var rf factory.RateFile
	if c.Payroll.RatesFile != "" {
		cfg, err := factory.NewRateFactory().LoadFile(c.Payroll.RatesFile)
		if err != nil {
			return rf, err
		}
		rf = factory.NewRateFactory().ToFile(cfg.Rates, cfg.Holidays)
	}
	inline := c.Payroll.Rates
	if c.Payroll.RatesFile == "" && len(inline) == 0 {
		inline = defaultRates
	}
	for _, r := range inline {
		rf.Rates = append(rf.Rates, factory.RateEntry{
			Role:               r.Role,
			BaseHourly:         decimal.NewFromFloat(r.BaseHourly),
			OvertimeMultiplier: decimal.NewFromFloat(r.OvertimeMultiplier),
			HolidayMultiplier:  decimal.NewFromFloat(r.HolidayMultiplier),
		})
	}
	rf.Holidays = append(rf.Holidays, c.Payroll.Holidays...)
	return rf, nil
}

// EarningsCalculator builds the calculator described by the payroll section.
func (c *Config) EarningsCalculator() (*payroll.EarningsCalculator, error) {
	rf, err := c.RateFile()
	if err != nil {
		return nil, err
	}
	rates, err := factory.NewRateFactory().FromFile(rf)
	if err != nil {
		return nil, err
	}

	calc := payroll.NewEarningsCalculator(rates.Rates)
	calc.Mode = payroll.OvertimeMode(c.Payroll.OvertimeMode)
	calc.DailyThreshold = decimal.NewFromFloat(c.Payroll.DailyOvertimeHours)
	calc.Holidays = rates.Holidays
	return calc, nil
}
