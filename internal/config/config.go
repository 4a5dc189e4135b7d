package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database  DatabaseConfig
	Ledger    LedgerConfig
	Reconcile ReconcileConfig
	Log       LogConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path          string
	MaxOpenConns  int `mapstructure:"max_open_conns"`
	BusyTimeoutMS int `mapstructure:"busy_timeout_ms"`
}

// LedgerConfig holds bookkeeping defaults.
type LedgerConfig struct {
	DefaultCurrency string `mapstructure:"default_currency"`
	CategoryRules   string `mapstructure:"category_rules"`
}

// ReconcileConfig holds duplicate detection settings.
type ReconcileConfig struct {
	AmountTolerance   string `mapstructure:"amount_tolerance"`
	DateToleranceDays int    `mapstructure:"date_tolerance_days"`
	AutoConfirmExact  bool   `mapstructure:"auto_confirm_exact"`
	Workers           int
}

// LogConfig holds slog settings.
type LogConfig struct {
	Level  string
	Format string
}

// Tolerance parses AmountTolerance.
func (c ReconcileConfig) Tolerance() (decimal.Decimal, error) {
	return decimal.NewFromString(c.AmountTolerance)
}

// Validate rejects settings the services cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is empty"))
	}
	if c.Database.MaxOpenConns < 1 {
		errs = append(errs, fmt.Errorf("database.max_open_conns must be at least 1, got %d", c.Database.MaxOpenConns))
	}
	if money.GetCurrency(c.Ledger.DefaultCurrency) == nil {
		errs = append(errs, fmt.Errorf("ledger.default_currency %q is not an ISO 4217 code", c.Ledger.DefaultCurrency))
	}
	if tol, err := c.Reconcile.Tolerance(); err != nil {
		errs = append(errs, fmt.Errorf("reconcile.amount_tolerance %q: %w", c.Reconcile.AmountTolerance, err))
	} else if tol.IsNegative() {
		errs = append(errs, fmt.Errorf("reconcile.amount_tolerance must not be negative, got %s", tol))
	}
	if c.Reconcile.DateToleranceDays < 0 {
		errs = append(errs, fmt.Errorf("reconcile.date_tolerance_days must not be negative, got %d", c.Reconcile.DateToleranceDays))
	}
	if c.Reconcile.Workers < 1 {
		errs = append(errs, fmt.Errorf("reconcile.workers must be at least 1, got %d", c.Reconcile.Workers))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// LoadEnv loads variables from a .env file before Load runs. A missing
// default .env is not an error; a missing explicit file is.
func LoadEnv(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func configPath() string {
	if p := os.Getenv("JASKLEDGER_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "jaskledger", "config.toml")
}

// Load reads configuration from file and env. Env var overrides use prefix JASKLEDGER_.
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "jaskledger", "jaskledger.db"))
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.busy_timeout_ms", 5000)
	v.SetDefault("ledger.default_currency", "EUR")
	v.SetDefault("ledger.category_rules", "")
	v.SetDefault("reconcile.amount_tolerance", "0.01")
	v.SetDefault("reconcile.date_tolerance_days", 3)
	v.SetDefault("reconcile.auto_confirm_exact", true)
	v.SetDefault("reconcile.workers", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetConfigType("toml")
	v.SetConfigFile(configPath())

	v.SetEnvPrefix("JASKLEDGER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Ledger.DefaultCurrency = strings.ToUpper(c.Ledger.DefaultCurrency)
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

// Save writes the provided config to disk, creating the config directory if needed.
func Save(cfg Config) error {
	path := configPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("database.path", cfg.Database.Path)
	v.Set("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.Set("database.busy_timeout_ms", cfg.Database.BusyTimeoutMS)
	v.Set("ledger.default_currency", cfg.Ledger.DefaultCurrency)
	v.Set("ledger.category_rules", cfg.Ledger.CategoryRules)
	v.Set("reconcile.amount_tolerance", cfg.Reconcile.AmountTolerance)
	v.Set("reconcile.date_tolerance_days", cfg.Reconcile.DateToleranceDays)
	v.Set("reconcile.auto_confirm_exact", cfg.Reconcile.AutoConfirmExact)
	v.Set("reconcile.workers", cfg.Reconcile.Workers)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.format", cfg.Log.Format)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
