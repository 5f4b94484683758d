package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration loaded from environment variables or config files.
type Config struct {
	AppEnv          string        `mapstructure:"APP_ENV" validate:"required,oneof=development staging production test"`
	HTTPAddr        string        `mapstructure:"HTTP_ADDR" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" validate:"required"`

	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"required,oneof=json console"`

	DatabaseDriver string `mapstructure:"DATABASE_DRIVER" validate:"required,oneof=postgres sqlite"`
	DatabaseURL    string `mapstructure:"DATABASE_URL" validate:"required"`

	RedisAddr     string `mapstructure:"REDIS_ADDR" validate:"required_if=DispatchMode queue,omitempty,hostname_port"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	// DispatchMode selects where pipelines run: in the API process or on asynq workers.
	DispatchMode     string `mapstructure:"DISPATCH_MODE" validate:"required,oneof=inline queue"`
	AsynqConcurrency int    `mapstructure:"ASYNQ_CONCURRENCY" validate:"gte=1,lte=1000"`

	ProvisionerDriver string        `mapstructure:"PROVISIONER_DRIVER" validate:"required,oneof=simulated http"`
	ProvisionerURL    string        `mapstructure:"PROVISIONER_URL" validate:"required_if=ProvisionerDriver http,omitempty,url"`
	ProvisionerToken  string        `mapstructure:"PROVISIONER_TOKEN"`
	InfraDriver       string        `mapstructure:"INFRA_DRIVER" validate:"omitempty,oneof=terraform"`
	WorkingDir        string        `mapstructure:"WORKING_DIR"`
	TerraformPath     string        `mapstructure:"TERRAFORM_PATH"`
	InfraRegion       string        `mapstructure:"INFRA_REGION" validate:"required"`
	SimulatedDelay    time.Duration `mapstructure:"SIMULATED_DELAY" validate:"gte=0"`

	StageTimeout   time.Duration `mapstructure:"STAGE_TIMEOUT" validate:"required"`
	HealthTimeout  time.Duration `mapstructure:"HEALTH_TIMEOUT" validate:"required"`
	HealthCacheTTL time.Duration `mapstructure:"HEALTH_CACHE_TTL" validate:"gte=0"`
	LivenessPath   string        `mapstructure:"LIVENESS_PATH" validate:"required,startswith=/"`
	BaseDomain     string        `mapstructure:"BASE_DOMAIN" validate:"required,fqdn"`
	CatalogPath    string        `mapstructure:"CATALOG_PATH"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS" validate:"gt=0"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST" validate:"gte=1"`

	GoMaxProcs int `mapstructure:"GOMAXPROCS" validate:"gte=0,lte=4096"`
}

var (
	cfg      *Config
	validate = validator.New(validator.WithRequiredStructEnabled())
)

var keys = []string{
	"APP_ENV",
	"HTTP_ADDR",
	"SHUTDOWN_TIMEOUT",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"DATABASE_DRIVER",
	"DATABASE_URL",
	"REDIS_ADDR",
	"REDIS_PASSWORD",
	"DISPATCH_MODE",
	"ASYNQ_CONCURRENCY",
	"PROVISIONER_DRIVER",
	"PROVISIONER_URL",
	"PROVISIONER_TOKEN",
	"INFRA_DRIVER",
	"WORKING_DIR",
	"TERRAFORM_PATH",
	"INFRA_REGION",
	"SIMULATED_DELAY",
	"STAGE_TIMEOUT",
	"HEALTH_TIMEOUT",
	"HEALTH_CACHE_TTL",
	"LIVENESS_PATH",
	"BASE_DOMAIN",
	"CATALOG_PATH",
	"RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST",
	"GOMAXPROCS",
}

var durationKeys = []string{
	"SHUTDOWN_TIMEOUT",
	"SIMULATED_DELAY",
	"STAGE_TIMEOUT",
	"HEALTH_TIMEOUT",
	"HEALTH_CACHE_TTL",
}

// Load initializes configuration using Viper. It loads from .env if present,
// applies defaults, binds env vars, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", "0.0.0.0:8080")
	v.SetDefault("SHUTDOWN_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("DATABASE_DRIVER", "postgres")
	v.SetDefault("DISPATCH_MODE", "inline")
	v.SetDefault("ASYNQ_CONCURRENCY", 10)
	v.SetDefault("PROVISIONER_DRIVER", "simulated")
	v.SetDefault("INFRA_REGION", "us-east-1")
	v.SetDefault("SIMULATED_DELAY", "2s")
	v.SetDefault("STAGE_TIMEOUT", "5m")
	v.SetDefault("HEALTH_TIMEOUT", "5s")
	v.SetDefault("HEALTH_CACHE_TTL", "0s")
	v.SetDefault("LIVENESS_PATH", "/healthz")
	v.SetDefault("BASE_DOMAIN", "apps.ikon.systems")
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("GOMAXPROCS", 0)

	_ = v.ReadInConfig()

	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}

	durations := map[string]*time.Duration{
		"SHUTDOWN_TIMEOUT": &c.ShutdownTimeout,
		"SIMULATED_DELAY":  &c.SimulatedDelay,
		"STAGE_TIMEOUT":    &c.StageTimeout,
		"HEALTH_TIMEOUT":   &c.HealthTimeout,
		"HEALTH_CACHE_TTL": &c.HealthCacheTTL,
	}
	for _, key := range durationKeys {
		s := v.GetString(key)
		if s == "" {
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		*durations[key] = d
	}

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if c.GoMaxProcs > 0 {
		runtime.GOMAXPROCS(c.GoMaxProcs)
	}

	cfg = &c
	return cfg, nil
}

// MustLoad loads configuration or exits the process on failure.
func MustLoad() *Config {
	c, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return c
}

// Get returns the loaded configuration. Panics if not loaded.
func Get() *Config {
	if cfg == nil {
		panic("config not loaded: call config.Load or config.MustLoad first")
	}
	return cfg
}

// IsQueue reports whether pipelines are dispatched to asynq workers.
func (c *Config) IsQueue() bool { return c.DispatchMode == "queue" }
