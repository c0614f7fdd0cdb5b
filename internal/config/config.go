package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration of the API and the folioctl tool.
// Values come from defaults, then the YAML file named by FOLIO_CONFIG, then
// FOLIO_* environment variables.
type Config struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	PostgresDSN     string        `yaml:"postgres_dsn"`
	AuthSecret      string        `yaml:"auth_secret"`
	TokenTTL        time.Duration `yaml:"token_ttl"`
	DevTokens       bool          `yaml:"dev_tokens"`
	LogLevel        string        `yaml:"log_level"`
	LogPretty       bool          `yaml:"log_pretty"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr:        ":8080",
		GRPCAddr:        ":9090",
		TokenTTL:        time.Hour,
		LogLevel:        "info",
		RateLimitRPS:    20,
		RateLimitBurst:  40,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load builds the configuration from the environment.
func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path, ok := lookup("FOLIO_CONFIG"); ok && strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(strings.TrimSpace(path))
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str("FOLIO_HTTP_ADDR", &cfg.HTTPAddr)
	str("FOLIO_GRPC_ADDR", &cfg.GRPCAddr)
	str("FOLIO_PG_DSN", &cfg.PostgresDSN)
	str("FOLIO_AUTH_SECRET", &cfg.AuthSecret)
	str("FOLIO_LOG_LEVEL", &cfg.LogLevel)

	var errs []error
	if v, ok := lookup("FOLIO_TOKEN_TTL"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("FOLIO_TOKEN_TTL: %w", err))
		}
		cfg.TokenTTL = d
	}
	if v, ok := lookup("FOLIO_SHUTDOWN_TIMEOUT"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("FOLIO_SHUTDOWN_TIMEOUT: %w", err))
		}
		cfg.ShutdownTimeout = d
	}
	for key, dst := range map[string]*bool{"FOLIO_DEV_TOKENS": &cfg.DevTokens, "FOLIO_LOG_PRETTY": &cfg.LogPretty} {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
			*dst = b
		}
	}
	if v, ok := lookup("FOLIO_RATE_LIMIT_RPS"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("FOLIO_RATE_LIMIT_RPS: %w", err))
		}
		cfg.RateLimitRPS = f
	}
	if v, ok := lookup("FOLIO_RATE_LIMIT_BURST"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("FOLIO_RATE_LIMIT_BURST: %w", err))
		}
		cfg.RateLimitBurst = n
	}
	if v, ok := lookup("FOLIO_CORS_ORIGINS"); ok {
		cfg.CORSOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
			}
		}
	}
	return errors.Join(errs...)
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("token_ttl must be positive"))
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}
	if c.DevTokens && c.AuthSecret == "" {
		errs = append(errs, errors.New("dev_tokens requires auth_secret"))
	}
	return errors.Join(errs...)
}
