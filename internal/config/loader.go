package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "gatehouse.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV.
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
	setString(&cfg.Server.Port, "GATEHOUSE_PORT")
	setString(&cfg.Server.CORSOrigin, "GATEHOUSE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "GATEHOUSE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "GATEHOUSE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "GATEHOUSE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "GATEHOUSE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "GATEHOUSE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Planner.URL, "GATEHOUSE_PLANNER_URL")
	setString(&cfg.Planner.APIKey, "GATEHOUSE_PLANNER_API_KEY")
	setDuration(&cfg.Planner.Timeout, "GATEHOUSE_PLANNER_TIMEOUT")
	setString(&cfg.Logging.Level, "GATEHOUSE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "GATEHOUSE_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "GATEHOUSE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "GATEHOUSE_BREAKER_TIMEOUT")
	setString(&cfg.Sandbox.WorkRoot, "GATEHOUSE_SANDBOX_WORK_ROOT")
	setBool(&cfg.Sandbox.KeepMaterialized, "GATEHOUSE_SANDBOX_KEEP")
	setString(&cfg.Checks.LintCommand, "GATEHOUSE_LINT_COMMAND")
	setString(&cfg.Checks.TestCommand, "GATEHOUSE_TEST_COMMAND")
	setString(&cfg.Checks.RunCommand, "GATEHOUSE_RUN_COMMAND")
	setDuration(&cfg.Checks.CommandTimeout, "GATEHOUSE_CHECK_TIMEOUT")
	setInt(&cfg.Checks.MaxOutputBytes, "GATEHOUSE_CHECK_MAX_OUTPUT")
	setBool(&cfg.Repair.Enabled, "GATEHOUSE_REPAIR_ENABLED")
	setInt(&cfg.Pool.MaxPerActorProject, "GATEHOUSE_POOL_MAX_PER_ACTOR_PROJECT")
	setInt64(&cfg.Cache.MaxSizeMB, "GATEHOUSE_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.StackTTL, "GATEHOUSE_CACHE_STACK_TTL")
	setDuration(&cfg.Cache.ResultTTL, "GATEHOUSE_CACHE_RESULT_TTL")
	setBool(&cfg.Cache.DedupEnable, "GATEHOUSE_CACHE_DEDUP")
	setBool(&cfg.Telemetry.Enabled, "GATEHOUSE_OTEL_ENABLED")
	setString(&cfg.Telemetry.OTLPEndpoint, "GATEHOUSE_OTLP_ENDPOINT")
	setBool(&cfg.MCP.Enabled, "GATEHOUSE_MCP_ENABLED")
	setString(&cfg.MCP.Addr, "GATEHOUSE_MCP_ADDR")
	setString(&cfg.MCP.APIKey, "GATEHOUSE_MCP_API_KEY")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Sandbox.WorkRoot == "" {
		return errors.New("sandbox.work_root is required")
	}
	if cfg.Checks.CommandTimeout <= 0 {
		return errors.New("checks.command_timeout must be positive")
	}
	if cfg.Pool.MaxPerActorProject < 1 {
		return errors.New("pool.max_per_actor_project must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
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
