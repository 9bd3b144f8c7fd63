package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	SQLite  SQLiteConfig  `mapstructure:"sqlite"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Scoring ScoringConfig `mapstructure:"scoring"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Terms   TermsConfig   `mapstructure:"terms"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RateLimit    int           `mapstructure:"rate_limit"`
	RateWindow   time.Duration `mapstructure:"rate_window"`
}

type SQLiteConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

type ScoringConfig struct {
	LookbackMonths     int           `mapstructure:"lookback_months"`
	BaseLimitFloor     float64       `mapstructure:"base_limit_floor"`
	BaseLimitCeiling   float64       `mapstructure:"base_limit_ceiling"`
	AssessmentStaleAge time.Duration `mapstructure:"assessment_stale_age"`
}

type MonitorConfig struct {
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
	SweepBatchSize     int           `mapstructure:"sweep_batch_size"`
	UtilizationRefresh time.Duration `mapstructure:"utilization_refresh"`
}

type TermsConfig struct {
	RulesPath    string        `mapstructure:"rules_path"`
	FreshnessAge time.Duration `mapstructure:"freshness_age"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("INVOSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.rate_limit", 100)
	v.SetDefault("server.rate_window", "1m")

	v.SetDefault("sqlite.path", "./data/invoscore.db")
	v.SetDefault("sqlite.max_open_conns", 10)
	v.SetDefault("sqlite.max_idle_conns", 5)
	v.SetDefault("sqlite.conn_max_lifetime", "1h")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.cache_ttl", "15m")

	v.SetDefault("scoring.lookback_months", 12)
	v.SetDefault("scoring.base_limit_floor", 10000)
	v.SetDefault("scoring.base_limit_ceiling", 500000)
	v.SetDefault("scoring.assessment_stale_age", "720h")

	v.SetDefault("monitor.sweep_interval", "6h")
	v.SetDefault("monitor.sweep_batch_size", 50)
	v.SetDefault("monitor.utilization_refresh", "1h")

	v.SetDefault("terms.rules_path", "./config/terms_rules.yaml")
	v.SetDefault("terms.freshness_age", "720h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Scoring.BaseLimitFloor <= 0 {
		return fmt.Errorf("base limit floor must be positive, got %.2f", c.Scoring.BaseLimitFloor)
	}
	if c.Scoring.BaseLimitCeiling <= c.Scoring.BaseLimitFloor {
		return fmt.Errorf("base limit ceiling must exceed floor")
	}
	if c.Monitor.SweepBatchSize < 1 {
		return fmt.Errorf("monitor sweep batch size must be at least 1")
	}
	return nil
}

func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
