package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"cgm-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Nightscout NightscoutConfig `mapstructure:"nightscout"`
	Glucose    GlucoseConfig    `mapstructure:"glucose"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Timezone    string `mapstructure:"timezone"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RunImmediately  bool          `mapstructure:"run_immediately"`
}

// NightscoutConfig covers the telemetry source.
type NightscoutConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APISecret      string        `mapstructure:"api_secret"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	FetchCount     int           `mapstructure:"fetch_count"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// GlucoseConfig holds the point-alert limits in mg/dL.
type GlucoseConfig struct {
	LimitHigh int `mapstructure:"limit_high"`
	LimitLow  int `mapstructure:"limit_low"`
}

// AlertingConfig defines suppression policy and delivery channels.
type AlertingConfig struct {
	Enabled          bool           `mapstructure:"enabled"`
	Cooldown         time.Duration  `mapstructure:"cooldown"`
	RuleOverrideMute bool           `mapstructure:"rule_override_mute"`
	Telegram         TelegramConfig `mapstructure:"telegram"`
	Kafka            KafkaConfig    `mapstructure:"kafka"`
}

// TelegramConfig describes the bot used for commands and delivery.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// KafkaConfig describes the optional alert event stream.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AuthConfig lists usernames allowed to register for alerts.
type AuthConfig struct {
	Whitelist []string `mapstructure:"whitelist"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CGMWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cgmwatch")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.timezone", "America/Sao_Paulo")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x63676d77))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_immediately", true)

	v.SetDefault("nightscout.request_timeout", "10s")
	v.SetDefault("nightscout.fetch_count", 16)

	v.SetDefault("glucose.limit_high", 240)
	v.SetDefault("glucose.limit_low", 70)

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.rule_override_mute", true)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")
	v.SetDefault("alerting.kafka.enabled", false)
	v.SetDefault("alerting.kafka.topic", "cgm.alerts")
	v.SetDefault("alerting.kafka.write_timeout", "5s")

	v.SetDefault("auth.whitelist", []string{})

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9102")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Nightscout.FetchCount < 2 {
		return fmt.Errorf("nightscout.fetch_count must be at least 2")
	}
	if c.Glucose.LimitLow >= c.Glucose.LimitHigh {
		return fmt.Errorf("glucose.limit_low must be below glucose.limit_high")
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("app.timezone: %w", err)
	}
	if c.Alerting.Telegram.Enabled && c.Alerting.Telegram.BotToken == "" {
		return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
	}
	if c.Alerting.Kafka.Enabled {
		if len(c.Alerting.Kafka.Brokers) == 0 {
			return fmt.Errorf("alerting.kafka.brokers is required when kafka is enabled")
		}
		if c.Alerting.Kafka.Topic == "" {
			return fmt.Errorf("alerting.kafka.topic is required when kafka is enabled")
		}
	}
	return nil
}

// Location resolves app.timezone, defaulting to UTC when unset.
func (c *Config) Location() (*time.Location, error) {
	if c.App.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.App.Timezone)
}

// RequireNightscout checks the fields needed to reach the telemetry source.
func (c *Config) RequireNightscout() error {
	if c.Nightscout.BaseURL == "" {
		return fmt.Errorf("nightscout.base_url is required")
	}
	return nil
}
