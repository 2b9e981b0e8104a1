package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// Service
	App AppConfig `mapstructure:"app"`

	// Shield engine
	Shield ShieldConfig `mapstructure:"shield"`

	// Logging
	Logger LoggerConfig `mapstructure:"logger"`

	// PostgreSQL
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Redis
	Redis RedisConfig `mapstructure:"redis"`

	// NATS
	NATS NATSConfig `mapstructure:"nats"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

type AppConfig struct {
	Addr   string `mapstructure:"addr"`
	Env    string `mapstructure:"env"`
	Secret string `mapstructure:"secret"`
}

// Development reports whether the service runs outside production.
func (c AppConfig) Development() bool {
	return c.Env == "" || c.Env == "development" || c.Env == "dev"
}

type ShieldConfig struct {
	TickInterval      time.Duration `mapstructure:"tick_interval"`
	Grace             time.Duration `mapstructure:"grace"`
	AutoConfirmDelay  time.Duration `mapstructure:"auto_confirm_delay"`
	ObservationWindow time.Duration `mapstructure:"observation_window"`
	MinTrust          int           `mapstructure:"min_trust"`
	SessionTTL        time.Duration `mapstructure:"session_ttl"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	UltraNavigation   string        `mapstructure:"ultra_navigation"`
	LatchTTL          time.Duration `mapstructure:"latch_ttl"`
	LinkCacheTTL      time.Duration `mapstructure:"link_cache_ttl"`
	RecordTimeout     time.Duration `mapstructure:"record_timeout"`
	Cloak             CloakConfig   `mapstructure:"cloak"`
}

// CloakConfig is the generic content served to automated visitors.
type CloakConfig struct {
	SiteName string `mapstructure:"site_name"`
	Title    string `mapstructure:"title"`
	Body     string `mapstructure:"body"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Encoding   string `mapstructure:"encoding"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Port     int    `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	MaxConnLifetime   string `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `mapstructure:"health_check_period"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	MonitorPort int    `mapstructure:"monitor_port"`
}

type PrometheusConfig struct {
	Port           int    `mapstructure:"port"`
	Retention      string `mapstructure:"retention"`
	ScrapeInterval string `mapstructure:"scrape_interval"`
	Target         string `mapstructure:"target"`
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	setDefaults(v)

	// Preserve legacy env variable names.
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.addr", ":8080")
	v.SetDefault("app.env", "development")

	v.SetDefault("shield.tick_interval", 100*time.Millisecond)
	v.SetDefault("shield.grace", 500*time.Millisecond)
	v.SetDefault("shield.auto_confirm_delay", time.Second)
	v.SetDefault("shield.observation_window", 10*time.Second)
	v.SetDefault("shield.min_trust", 2)
	v.SetDefault("shield.session_ttl", 10*time.Minute)
	v.SetDefault("shield.sweep_interval", 30*time.Second)
	v.SetDefault("shield.ultra_navigation", "random")
	v.SetDefault("shield.latch_ttl", 15*time.Minute)
	v.SetDefault("shield.link_cache_ttl", time.Minute)
	v.SetDefault("shield.record_timeout", 5*time.Second)
	v.SetDefault("shield.cloak.site_name", "Notes")
	v.SetDefault("shield.cloak.title", "Notes on everyday things")
	v.SetDefault("shield.cloak.body", "A short collection of thoughts on reading, walking and cooking.")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "console")
	v.SetDefault("logger.max_size_mb", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age_days", 28)
}

func bindEnvVars(v *viper.Viper) {
	// Service
	v.BindEnv("app.addr", "APP_ADDR")
	v.BindEnv("app.env", "APP_ENV")
	v.BindEnv("app.secret", "SHIELD_SECRET")

	// Logging
	v.BindEnv("logger.level", "LOG_LEVEL")
	v.BindEnv("logger.file", "LOG_FILE")

	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// NATS
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")
	v.BindEnv("nats.monitor_port", "NATS_MONITOR_PORT")

	// Prometheus
	v.BindEnv("prometheus.port", "PROM_PORT")
	v.BindEnv("prometheus.retention", "PROM_RETENTION")
	v.BindEnv("prometheus.scrape_interval", "PROM_SCRAPE_INTERVAL")
	v.BindEnv("prometheus.target", "PROM_TARGET")
}
