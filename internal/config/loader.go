package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "synod.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// CLIFlags holds command-line overrides. A nil field means the flag was
// not passed and the value resolved from lower layers stands.
type CLIFlags struct {
	Port       *string
	LogLevel   *string
	DSN        *string
	NatsURL    *string
	ConfigPath *string
}

// ParseFlags parses args into CLIFlags. Unknown flags are an error.
func ParseFlags(args []string) (CLIFlags, error) {
	var port, logLevel, dsn, natsURL, configPath string

	fs := flag.NewFlagSet("synod", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&port, "port", "", "HTTP listen port")
	fs.StringVar(&port, "p", "", "HTTP listen port (shorthand)")
	fs.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&dsn, "dsn", "", "PostgreSQL connection string")
	fs.StringVar(&natsURL, "nats-url", "", "NATS server URL")
	fs.StringVar(&configPath, "config", "", "path to YAML config file")
	fs.StringVar(&configPath, "c", "", "path to YAML config file (shorthand)")

	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, err
	}

	var flags CLIFlags
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port", "p":
			flags.Port = &port
		case "log-level":
			flags.LogLevel = &logLevel
		case "dsn":
			flags.DSN = &dsn
		case "nats-url":
			flags.NatsURL = &natsURL
		case "config", "c":
			flags.ConfigPath = &configPath
		}
	})

	return flags, nil
}

// LoadWithCLI returns a Config using the full hierarchy:
// defaults < YAML < ENV < CLI. It also returns the YAML path that was
// consulted so callers can reload from it later.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	yamlPath := DefaultConfigFile
	if flags.ConfigPath != nil {
		yamlPath = *flags.ConfigPath
	}

	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, "", fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, "", fmt.Errorf("config validate: %w", err)
	}

	return &cfg, yamlPath, nil
}

// applyCLI overlays non-nil flag values onto cfg.
func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Port != nil {
		cfg.Server.Port = *flags.Port
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.DSN != nil {
		cfg.Postgres.DSN = *flags.DSN
	}
	if flags.NatsURL != nil {
		cfg.NATS.URL = *flags.NatsURL
	}
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "SYNOD_PORT")
	setString(&cfg.Server.CORSOrigin, "SYNOD_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "SYNOD_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "SYNOD_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "SYNOD_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "SYNOD_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "SYNOD_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "SYNOD_LOG_LEVEL")
	setString(&cfg.Logging.Service, "SYNOD_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "SYNOD_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "SYNOD_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "SYNOD_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "SYNOD_RATE_RPS")
	setInt(&cfg.Rate.Burst, "SYNOD_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "SYNOD_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "SYNOD_RATE_MAX_IDLE_TIME")

	// Idempotency
	setString(&cfg.Idempotency.Bucket, "SYNOD_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.Idempotency.TTL, "SYNOD_IDEMPOTENCY_TTL")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "SYNOD_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "SYNOD_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "SYNOD_CACHE_L2_TTL")

	// Engine
	setInt(&cfg.Engine.MaxConcurrent, "SYNOD_ENGINE_MAX_CONCURRENT")
	setDuration(&cfg.Engine.AdvisorTimeout, "SYNOD_ENGINE_ADVISOR_TIMEOUT")
	setBool(&cfg.Engine.CacheDecisions, "SYNOD_ENGINE_CACHE_DECISIONS")
	setDuration(&cfg.Engine.DecisionTTL, "SYNOD_ENGINE_DECISION_TTL")

	// MCP
	setBool(&cfg.MCP.Enabled, "SYNOD_MCP_ENABLED")
	setString(&cfg.MCP.Addr, "SYNOD_MCP_ADDR")
	setString(&cfg.MCP.APIKey, "SYNOD_MCP_API_KEY")

	// Telemetry
	setBool(&cfg.Telemetry.Enabled, "SYNOD_OTEL_ENABLED")
	setString(&cfg.Telemetry.OTLPEndpoint, "SYNOD_OTEL_ENDPOINT")
	setFloat64(&cfg.Telemetry.SampleRatio, "SYNOD_OTEL_SAMPLE_RATIO")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Engine.MaxConcurrent < 1 {
		return errors.New("engine.max_concurrent must be >= 1")
	}
	for kind, w := range cfg.Engine.Weights {
		if w < 0 {
			return fmt.Errorf("engine.weights[%s] must be >= 0", kind)
		}
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return errors.New("telemetry.sample_ratio must be in [0,1]")
	}
	return nil
}

func setString(dst *string, key string) {
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

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
