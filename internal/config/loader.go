package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.KeyPassphrase, "ARB_KEY_PASSPHRASE")
	setStr(&cfg.Mode, "ARB_MODE")
	setStr(&cfg.LogLevel, "ARB_LOG_LEVEL")

	setStr(&cfg.Postgres.DSN, "ARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARB_POSTGRES_SSLMODE")
	setBool(&cfg.Postgres.RunMigrations, "ARB_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "ARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARB_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "ARB_REDIS_TLS_ENABLED")

	setStr(&cfg.Notify.TelegramToken, "ARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStringSlice(&cfg.Notify.Events, "ARB_NOTIFY_EVENTS")

	setFloat64(&cfg.Trading.MaxSize, "ARB_TRADING_MAX_SIZE")
	setFloat64(&cfg.Trading.MinSize, "ARB_TRADING_MIN_SIZE")
	setFloat64(&cfg.Trading.MinProfit, "ARB_TRADING_MIN_PROFIT")
	setFloat64(&cfg.Trading.MinProfitPercent, "ARB_TRADING_MIN_PROFIT_PERCENT")
	setFloat64(&cfg.Trading.MaxNetExposure, "ARB_TRADING_MAX_NET_EXPOSURE")
	setDuration(&cfg.Trading.PollInterval, "ARB_TRADING_POLL_INTERVAL")
	setDuration(&cfg.Trading.ExecutionWait, "ARB_TRADING_EXECUTION_WAIT")

	// Per-venue credentials: ARB_VENUE_<CODE>_API_KEY / _API_SECRET.
	for i := range cfg.Venues {
		prefix := "ARB_VENUE_" + strings.ToUpper(cfg.Venues[i].Code)
		setStr(&cfg.Venues[i].APIKey, prefix+"_API_KEY")
		setStr(&cfg.Venues[i].APISecret, prefix+"_API_SECRET")
	}
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
