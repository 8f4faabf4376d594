package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Identify   IdentifyConfig   `mapstructure:"identify"`
	HTTPClient HTTPClientConfig `mapstructure:"http_client"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds access-token validation configuration.
// Token issuance lives in the accounts service; this gateway only verifies.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// IdentifyConfig holds identification gateway configuration.
type IdentifyConfig struct {
	// Provider selects the upstream service: "plantid" or "plantnet".
	Provider string `mapstructure:"provider"`

	PlantID  PlantIDConfig  `mapstructure:"plantid"`
	PlantNet PlantNetConfig `mapstructure:"plantnet"`

	Quota   QuotaConfig   `mapstructure:"quota"`
	Breaker BreakerConfig `mapstructure:"breaker"`
	Lock    LockConfig    `mapstructure:"lock"`

	// CacheTTL is how long identification results are memoized.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// PlantIDConfig holds Plant.id upstream configuration.
type PlantIDConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// PlantNetConfig holds PlantNet upstream configuration.
type PlantNetConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Project string `mapstructure:"project"`
}

// QuotaConfig holds upstream call quota configuration.
type QuotaConfig struct {
	Limit int `mapstructure:"limit"`
	// Period is the accounting window: "hourly", "daily" or "monthly".
	Period           string  `mapstructure:"period"`
	WarningThreshold float64 `mapstructure:"warning_threshold"`
	// FailOpen permits calls when the counter store is unreachable.
	FailOpen bool `mapstructure:"fail_open"`
}

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	SuccessThreshold uint32        `mapstructure:"success_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
}

// LockConfig holds distributed lock configuration.
type LockConfig struct {
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
	ExpireAfter    time.Duration `mapstructure:"expire_after"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"`
	// FailOpen proceeds without a lock when the lock store is unreachable.
	FailOpen bool `mapstructure:"fail_open"`
}

// HTTPClientConfig holds HTTP client configuration for connection pooling.
type HTTPClientConfig struct {
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `mapstructure:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`

	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `mapstructure:"tls_handshake_timeout"`
	ResponseTimeout     time.Duration `mapstructure:"response_timeout"`

	KeepAlive time.Duration `mapstructure:"keep_alive"`
}

// RateLimitConfig holds inbound per-user rate limit configuration.
type RateLimitConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Set config file name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/floralens")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	// Read from environment variables
	v.SetEnvPrefix("FLORALENS")
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override with environment variables for sensitive values
	if secret := os.Getenv("FLORALENS_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if password := os.Getenv("FLORALENS_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if key := os.Getenv("FLORALENS_PLANTID_API_KEY"); key != "" {
		cfg.Identify.PlantID.APIKey = key
	}
	if key := os.Getenv("FLORALENS_PLANTNET_API_KEY"); key != "" {
		cfg.Identify.PlantNet.APIKey = key
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Auth defaults
	v.SetDefault("auth.issuer", "floralens")

	// Identification gateway defaults
	v.SetDefault("identify.provider", "plantid")
	v.SetDefault("identify.plantid.base_url", "https://api.plant.id/v3")
	v.SetDefault("identify.plantnet.base_url", "https://my-api.plantnet.org/v2")
	v.SetDefault("identify.plantnet.project", "all")
	v.SetDefault("identify.quota.limit", 100)
	v.SetDefault("identify.quota.period", "daily")
	v.SetDefault("identify.quota.warning_threshold", 0.8)
	v.SetDefault("identify.quota.fail_open", true)
	v.SetDefault("identify.breaker.failure_threshold", 3)
	v.SetDefault("identify.breaker.success_threshold", 2)
	v.SetDefault("identify.breaker.reset_timeout", 60*time.Second)
	v.SetDefault("identify.lock.acquire_timeout", 15*time.Second)
	v.SetDefault("identify.lock.expire_after", 30*time.Second)
	v.SetDefault("identify.lock.retry_interval", 100*time.Millisecond)
	v.SetDefault("identify.lock.fail_open", true)
	v.SetDefault("identify.cache_ttl", 24*time.Hour)

	// HTTP client defaults
	v.SetDefault("http_client.max_idle_conns", 100)
	v.SetDefault("http_client.max_idle_conns_per_host", 10)
	v.SetDefault("http_client.max_conns_per_host", 50)
	v.SetDefault("http_client.idle_conn_timeout", 90*time.Second)
	v.SetDefault("http_client.dial_timeout", 5*time.Second)
	v.SetDefault("http_client.tls_handshake_timeout", 5*time.Second)
	v.SetDefault("http_client.response_timeout", 30*time.Second)
	v.SetDefault("http_client.keep_alive", 30*time.Second)

	// Rate limit defaults
	v.SetDefault("rate_limit.limit", 30)
	v.SetDefault("rate_limit.window", time.Minute)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
