// Package config loads service configuration from an optional YAML file with
// environment-variable overrides. A .env file, when present, is loaded first.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	App struct {
		// Env is dev | staging | prod.
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`

	Redis struct {
		Addr string `yaml:"addr"`
		DB   int    `yaml:"db"`
	} `yaml:"redis"`

	Challenge struct {
		// Kind selects the ephemeral store backend: redis | memory.
		Kind   string        `yaml:"kind"`
		TTL    time.Duration `yaml:"ttl"`
		Digits int           `yaml:"digits"`
	} `yaml:"challenge"`

	Token struct {
		AccessSecret  string        `yaml:"access_secret"`
		RefreshSecret string        `yaml:"refresh_secret"`
		AccessTTL     time.Duration `yaml:"access_ttl"`
		RefreshTTL    time.Duration `yaml:"refresh_ttl"`
		Issuer        string        `yaml:"issuer"`
	} `yaml:"token"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		From     string `yaml:"from"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"smtp"`
}

// Load reads path (optional), applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	// Ignore a missing .env; real environments set variables directly.
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setStr(&c.App.Env, "APP_ENV")
	setStr(&c.App.LogLevel, "LOG_LEVEL")
	setStr(&c.Server.Addr, "SERVER_ADDR")
	setStr(&c.Postgres.DSN, "POSTGRES_DSN")
	setStr(&c.Redis.Addr, "REDIS_ADDR")
	setInt(&c.Redis.DB, "REDIS_DB")
	setStr(&c.Challenge.Kind, "CHALLENGE_STORE")
	setDur(&c.Challenge.TTL, "CHALLENGE_TTL")
	setInt(&c.Challenge.Digits, "CHALLENGE_DIGITS")
	setStr(&c.Token.AccessSecret, "JWT_SECRET")
	setStr(&c.Token.RefreshSecret, "JWT_RT_SECRET")
	setDur(&c.Token.AccessTTL, "ACCESS_TTL")
	setDur(&c.Token.RefreshTTL, "REFRESH_TTL")
	setStr(&c.Token.Issuer, "JWT_ISSUER")
	setStr(&c.SMTP.Host, "SMTP_HOST")
	setInt(&c.SMTP.Port, "SMTP_PORT")
	setStr(&c.SMTP.From, "SMTP_FROM")
	setStr(&c.SMTP.Username, "SMTP_USERNAME")
	setStr(&c.SMTP.Password, "SMTP_PASSWORD")
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Challenge.Kind == "" {
		c.Challenge.Kind = "redis"
	}
	if c.Challenge.TTL <= 0 {
		c.Challenge.TTL = 180 * time.Second
	}
	if c.Challenge.Digits <= 0 {
		c.Challenge.Digits = 6
	}
	if c.Token.AccessTTL <= 0 {
		c.Token.AccessTTL = 15 * time.Minute
	}
	if c.Token.RefreshTTL <= 0 {
		c.Token.RefreshTTL = 7 * 24 * time.Hour
	}
	if c.Token.Issuer == "" {
		c.Token.Issuer = "accountd"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
}

func (c *Config) validate() error {
	if c.Token.AccessSecret == "" || c.Token.RefreshSecret == "" {
		return fmt.Errorf("config: JWT_SECRET and JWT_RT_SECRET are required")
	}
	if c.Token.AccessSecret == c.Token.RefreshSecret {
		return fmt.Errorf("config: access and refresh secrets must differ")
	}
	switch c.Challenge.Kind {
	case "redis", "memory":
	default:
		return fmt.Errorf("config: unknown challenge store kind %q", c.Challenge.Kind)
	}
	return nil
}

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

func setDur(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
