package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Liveness   LivenessConfig
	Monitoring MonitoringConfig
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	StoreTimeout    time.Duration `mapstructure:"store_timeout"`
}

type DatabaseConfig struct {
	Telemetry PostgresConfig `mapstructure:"telemetry"`
	AppDB     PostgresConfig `mapstructure:"postgres_app"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Password        string `mapstructure:"password"`
	DB              int    `mapstructure:"db"`
	LivenessChannel string `mapstructure:"liveness_channel"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Issuer    string        `mapstructure:"issuer"`
}

type LivenessConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// TimeoutMultiplier derives a sensor's connection timeout from its
	// heartbeat interval when no explicit timeout is configured.
	TimeoutMultiplier        int           `mapstructure:"timeout_multiplier"`
	StaleGraceFactor         float64       `mapstructure:"stale_grace_factor"`
	DefaultHeartbeatInterval time.Duration `mapstructure:"default_heartbeat_interval"`
}

type MonitoringConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

// Load initializes configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetEnvPrefix("ENVIMON")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Load config file if exists
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.shutdown_timeout", "30s")
	viper.SetDefault("server.store_timeout", "5s")

	// Database defaults
	viper.SetDefault("database.telemetry.sslmode", "disable")
	viper.SetDefault("database.postgres_app.sslmode", "disable")

	// Redis defaults
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.liveness_channel", "envimon.liveness")

	// Auth defaults
	viper.SetDefault("auth.token_ttl", "12h")
	viper.SetDefault("auth.issuer", "envimon-hub")

	// Liveness defaults
	viper.SetDefault("liveness.sweep_interval", "5s")
	viper.SetDefault("liveness.timeout_multiplier", 3)
	viper.SetDefault("liveness.stale_grace_factor", 0.0)
	viper.SetDefault("liveness.default_heartbeat_interval", "60s")

	// Monitoring defaults
	viper.SetDefault("monitoring.log_level", "info")
}

func validateConfig(config *Config) error {
	if config.Database.Telemetry.Host == "" {
		return fmt.Errorf("telemetry database host is required")
	}
	if config.Database.AppDB.Host == "" {
		return fmt.Errorf("postgres app host is required")
	}
	if config.Auth.JWTSecret == "" {
		return fmt.Errorf("auth JWT secret is required")
	}
	if config.Liveness.TimeoutMultiplier <= 0 {
		return fmt.Errorf("liveness timeout multiplier must be positive")
	}
	return nil
}
