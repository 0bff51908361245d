// Package config defines the top-level configuration for the arbitrager and
// provides loading and validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// duration wraps time.Duration so TOML values like "3s" parse directly.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ARB_* environment variables.
type Config struct {
	Venues   []VenueConfig  `toml:"venues"`
	Trading  TradingConfig  `toml:"trading"`
	Balancer BalancerConfig `toml:"balancer"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Notify   NotifyConfig   `toml:"notify"`
	// KeyPassphrase decrypts the venues' encrypted API credentials. Inject
	// it via ARB_KEY_PASSPHRASE rather than the config file.
	KeyPassphrase string `toml:"key_passphrase"`
	Mode          string `toml:"mode"`
	LogLevel      string `toml:"log_level"`
}

// VenueConfig describes one exchange.
type VenueConfig struct {
	Code              string  `toml:"code"`
	Name              string  `toml:"name"`
	CommissionPercent float64 `toml:"commission_percent"`
	Priority          int     `toml:"priority"`
	Enabled           bool    `toml:"enabled"`
	BaseURL           string  `toml:"base_url"`

	// Plain credentials, for development only.
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
	// Encrypted credentials: JSON blobs produced by the -encrypt-secret
	// command, decrypted at startup with the key passphrase.
	EncryptedAPIKey    string `toml:"encrypted_api_key"`
	EncryptedAPISecret string `toml:"encrypted_api_secret"`

	// Optional per-venue balance thresholds; zero means use the balancer
	// defaults.
	ThresholdJPY float64 `toml:"threshold_jpy"`
	ThresholdBTC float64 `toml:"threshold_btc"`
}

// TradingConfig holds the decision-engine and saga parameters.
type TradingConfig struct {
	// Slippage is added to best asks and subtracted from best bids, in JPY,
	// to bias toward guaranteed fills.
	Slippage         float64 `toml:"slippage"`
	MaxSize          float64 `toml:"max_size"`
	MinSize          float64 `toml:"min_size"`
	MinProfit        float64 `toml:"min_profit"`
	MinProfitPercent float64 `toml:"min_profit_percent"`
	MaxNetExposure   float64 `toml:"max_net_exposure"`

	// PriceIncrement is the venue tick size reverse prices are rounded to.
	PriceIncrement       float64 `toml:"price_increment"`
	ReverseOffsetPercent float64 `toml:"reverse_offset_percent"`

	PollInterval    duration `toml:"poll_interval"`
	RefreshInterval duration `toml:"refresh_interval"`
	RetryInterval   duration `toml:"retry_interval"`
	ExecutionWait   duration `toml:"execution_wait"`

	SecondLegRetries int `toml:"second_leg_retries"`
	ReverseRetries   int `toml:"reverse_retries"`
	CancelRetries    int `toml:"cancel_retries"`
}

// BalancerConfig holds balance refresh and health-check parameters.
type BalancerConfig struct {
	ThresholdJPY    float64  `toml:"threshold_jpy"`
	ThresholdBTC    float64  `toml:"threshold_btc"`
	RefreshInterval duration `toml:"refresh_interval"`
	CheckDeadline   duration `toml:"check_deadline"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Leaving Addr empty disables
// the cycle cache.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// NotifyConfig holds operator notification parameters.
type NotifyConfig struct {
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	Events         []string `toml:"events"`
}

// Defaults returns the built-in configuration defaults. The numeric trading
// parameters deliberately have no defaults; operators must set them.
func Defaults() Config {
	return Config{
		Trading: TradingConfig{
			PriceIncrement:   5,
			PollInterval:     duration{3 * time.Second},
			RefreshInterval:  duration{3 * time.Second},
			RetryInterval:    duration{3 * time.Second},
			ExecutionWait:    duration{60 * time.Second},
			SecondLegRetries: 10,
			ReverseRetries:   5,
			CancelRetries:    10,
		},
		Balancer: BalancerConfig{
			RefreshInterval: duration{3 * time.Second},
			CheckDeadline:   duration{60 * time.Second},
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// Validate checks the configuration for inconsistencies that would make the
// trading loop unsafe to start.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "trade", "monitor":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}

	enabled := 0
	seen := make(map[string]bool)
	for i, v := range c.Venues {
		if v.Code == "" {
			return fmt.Errorf("config: venues[%d]: code is required", i)
		}
		if seen[v.Code] {
			return fmt.Errorf("config: duplicate venue code %q", v.Code)
		}
		seen[v.Code] = true
		if v.Enabled {
			enabled++
		}
		if v.CommissionPercent < 0 {
			return fmt.Errorf("config: venue %s: negative commission", v.Code)
		}
	}
	if enabled < 2 {
		return fmt.Errorf("config: at least two enabled venues are required, got %d", enabled)
	}

	t := c.Trading
	if t.MaxSize <= 0 {
		return fmt.Errorf("config: trading.max_size must be positive")
	}
	if t.MinSize <= 0 || t.MinSize > t.MaxSize {
		return fmt.Errorf("config: trading.min_size must be in (0, max_size]")
	}
	if t.PriceIncrement <= 0 {
		return fmt.Errorf("config: trading.price_increment must be positive")
	}
	if t.ReverseOffsetPercent <= 0 {
		return fmt.Errorf("config: trading.reverse_offset_percent must be positive")
	}
	if t.MaxNetExposure <= 0 {
		return fmt.Errorf("config: trading.max_net_exposure must be positive")
	}
	if t.SecondLegRetries <= 0 || t.ReverseRetries <= 0 || t.CancelRetries <= 0 {
		return fmt.Errorf("config: trading retry counts must be positive")
	}

	if strings.ToLower(c.Mode) == "trade" && c.Postgres.DSN == "" && c.Postgres.Host == "" {
		return fmt.Errorf("config: trade mode requires a postgres connection")
	}

	return nil
}
